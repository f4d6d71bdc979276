package main

// AbilityMeta is the contract the ability-content collaborator exposes per
// ability key. The validator and the match world consume it; balance data
// beyond cooldown/cost/range stays on the content side.
type AbilityMeta struct {
	Key      string
	Cooldown float64 // seconds
	ManaCost int
	Range    float64 // px, 0 = self-cast
	Damage   int     // 0 = non-damaging
}

// AbilityCatalog resolves ability keys to their metadata
type AbilityCatalog interface {
	Lookup(key string) (AbilityMeta, bool)
}

// StaticCatalog is a fixed in-memory catalog
type StaticCatalog map[string]AbilityMeta

// Lookup implements AbilityCatalog
func (c StaticCatalog) Lookup(key string) (AbilityMeta, bool) {
	m, ok := c[key]
	return m, ok
}

// DefaultAbilities is the baseline kit every match entity carries.
// Real deployments swap this for the content pipeline's table.
var DefaultAbilities = StaticCatalog{
	"strike":  {Key: "strike", Cooldown: 1.5, ManaCost: 10, Range: 500, Damage: 40},
	"bolt":    {Key: "bolt", Cooldown: 6.0, ManaCost: 35, Range: 700, Damage: 90},
	"nova":    {Key: "nova", Cooldown: 12.0, ManaCost: 60, Range: 350, Damage: 140},
	"mend":    {Key: "mend", Cooldown: 10.0, ManaCost: 45, Range: 0, Damage: 0},
	"barrier": {Key: "barrier", Cooldown: 15.0, ManaCost: 50, Range: 0, Damage: 0},
}

// Keys returns the catalog keys in no particular order
func (c StaticCatalog) Keys() []string {
	keys := make([]string, 0, len(c))
	for k := range c {
		keys = append(keys, k)
	}
	return keys
}
