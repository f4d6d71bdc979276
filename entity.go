package main

import "sort"

const (
	EntityMaxHP   = 500
	EntityMaxMana = 200
	RespawnTime   = 5.0 // seconds before respawn
)

// AbilityState tracks one ability slot on an entity
type AbilityState struct {
	Cooldown float64 // remaining, seconds
	LastUse  float64 // match time of last cast, 0 = never
}

// Entity is the single authoritative copy of a hero in a match.
// Health and mana never go below zero.
type Entity struct {
	ID       string
	Team     int
	X, Y     float64
	VX, VY   float64
	HP       int
	MaxHP    int
	Mana     int
	MaxMana  int
	Alive    bool
	Level    int
	RespawnT float64

	Kills       int
	Deaths      int
	DamageDealt int

	abilities map[string]*AbilityState
	manaFrac  float64 // sub-point regen accumulator
	spawnX    float64
	spawnY    float64
}

// NewEntity creates an entity at its spawn point with the catalog's kit
func NewEntity(id string, team int, x, y float64, catalog AbilityCatalog) *Entity {
	e := &Entity{
		ID:      id,
		Team:    team,
		X:       x,
		Y:       y,
		HP:      EntityMaxHP,
		MaxHP:   EntityMaxHP,
		Mana:    EntityMaxMana,
		MaxMana: EntityMaxMana,
		Alive:   true,
		Level:   1,
		spawnX:  x,
		spawnY:  y,
	}
	e.abilities = make(map[string]*AbilityState)
	if sc, ok := catalog.(StaticCatalog); ok {
		for key := range sc {
			e.abilities[key] = &AbilityState{}
		}
	}
	return e
}

// SetDirection applies a normalized movement direction at the given speed
func (e *Entity) SetDirection(dx, dy, speed float64) {
	if !e.Alive {
		return
	}
	nx, ny := Normalize(dx, dy)
	e.VX = nx * speed
	e.VY = ny * speed
}

// Update advances the entity one tick (dt in seconds)
func (e *Entity) Update(dt float64, cfg WorldConfig) {
	if !e.Alive {
		e.RespawnT -= dt
		if e.RespawnT <= 0 {
			e.Respawn()
		}
		return
	}

	e.X = Clamp(e.X+e.VX*dt, 0, cfg.Width)
	e.Y = Clamp(e.Y+e.VY*dt, 0, cfg.Height)

	// Mana regen
	e.manaFrac += cfg.ManaRegen * dt
	if e.manaFrac >= 1 {
		pts := int(e.manaFrac)
		e.manaFrac -= float64(pts)
		e.Mana += pts
		if e.Mana > e.MaxMana {
			e.Mana = e.MaxMana
		}
	}

	for _, st := range e.abilities {
		if st.Cooldown > 0 {
			st.Cooldown -= dt
			if st.Cooldown < 0 {
				st.Cooldown = 0
			}
		}
	}
}

// Respawn resets the entity at its spawn point
func (e *Entity) Respawn() {
	e.X = e.spawnX
	e.Y = e.spawnY
	e.VX = 0
	e.VY = 0
	e.HP = e.MaxHP
	e.Mana = e.MaxMana
	e.Alive = true
	e.RespawnT = 0
}

// TakeDamage reduces HP and returns true on death. Dead entities receive
// nothing; the caller logs that as an anomaly.
func (e *Entity) TakeDamage(dmg int) bool {
	if !e.Alive || dmg <= 0 {
		return false
	}
	e.HP -= dmg
	if e.HP <= 0 {
		e.HP = 0
		e.Alive = false
		e.Deaths++
		e.RespawnT = RespawnTime
		return true
	}
	return false
}

// Heal restores HP up to the cap
func (e *Entity) Heal(amount int) {
	if !e.Alive || amount <= 0 {
		return
	}
	e.HP += amount
	if e.HP > e.MaxHP {
		e.HP = e.MaxHP
	}
}

// CanCast reports whether the ability is off cooldown and affordable
func (e *Entity) CanCast(key string, meta AbilityMeta) bool {
	st, ok := e.abilities[key]
	if !ok {
		return false
	}
	return e.Alive && st.Cooldown <= 0 && e.Mana >= meta.ManaCost
}

// Cast spends mana and starts the cooldown. Returns false if not castable.
func (e *Entity) Cast(key string, meta AbilityMeta, matchTime float64) bool {
	if !e.CanCast(key, meta) {
		return false
	}
	st := e.abilities[key]
	e.Mana -= meta.ManaCost
	st.Cooldown = meta.Cooldown
	st.LastUse = matchTime
	return true
}

// Snapshot converts to the wire representation
func (e *Entity) Snapshot() EntitySnapshot {
	snap := EntitySnapshot{
		ID:      e.ID,
		Team:    e.Team,
		X:       e.X,
		Y:       e.Y,
		VX:      e.VX,
		VY:      e.VY,
		HP:      e.HP,
		MaxHP:   e.MaxHP,
		Mana:    e.Mana,
		MaxMana: e.MaxMana,
		Alive:   e.Alive,
		Level:   e.Level,
	}
	for key, st := range e.abilities {
		snap.Abilities = append(snap.Abilities, AbilityStatus{Key: key, Cooldown: st.Cooldown, LastUse: st.LastUse})
	}
	// Stable wire order so consumers can diff snapshots positionally
	sort.Slice(snap.Abilities, func(i, j int) bool {
		return snap.Abilities[i].Key < snap.Abilities[j].Key
	})
	return snap
}
