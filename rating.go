package main

import "math"

// K-factor schedule: new accounts move fast, high-rated accounts move slow.
const (
	ProvisionalGames = 10
	KProvisional     = 40.0
	KStandard        = 24.0
	KHighRated       = 12.0
	HighRatingCutoff = 2200

	DefaultRating = 1000
)

// Match outcomes for ApplyResult
const (
	ResultWin  = 1.0
	ResultDraw = 0.5
	ResultLoss = 0.0
)

// ExpectedScore returns the probability that a beats b under the ELO model
func ExpectedScore(a, b int) float64 {
	return 1.0 / (1.0 + math.Pow(10, float64(b-a)/400.0))
}

// KFactor returns the K to use for a player at the given rating and
// experience. Provisional accounts swing hardest; the high-rating cutoff
// wins over the provisional bonus.
func KFactor(rating, gamesPlayed int) float64 {
	if rating >= HighRatingCutoff {
		return KHighRated
	}
	if gamesPlayed < ProvisionalGames {
		return KProvisional
	}
	return KStandard
}

// ApplyResult computes the new rating after a game.
// actual is 1 for a win, 0.5 for a draw, 0 for a loss.
func ApplyResult(rating, opponentRating, gamesPlayed int, actual float64) int {
	expected := ExpectedScore(rating, opponentRating)
	k := KFactor(rating, gamesPlayed)
	return int(math.Round(float64(rating) + k*(actual-expected)))
}

// Tier is a named rating band
type Tier struct {
	Name string
	Min  int
	Max  int
}

// tierBands is ordered ascending; the last band is open-ended.
var tierBands = []Tier{
	{Name: "Bronze", Min: 0, Max: 1000},
	{Name: "Silver", Min: 1000, Max: 1300},
	{Name: "Gold", Min: 1300, Max: 1600},
	{Name: "Platinum", Min: 1600, Max: 1900},
	{Name: "Diamond", Min: 1900, Max: 2200},
	{Name: "Master", Min: 2200, Max: 2500},
	{Name: "Grandmaster", Min: 2500, Max: 3500},
}

// TierFor returns the band a rating falls in
func TierFor(rating int) Tier {
	for _, t := range tierBands {
		if rating < t.Max {
			return t
		}
	}
	return tierBands[len(tierBands)-1]
}

// TierProgress returns the fraction of the current band covered, in [0, 1]
func TierProgress(rating int) float64 {
	t := TierFor(rating)
	return Clamp(float64(rating-t.Min)/float64(t.Max-t.Min), 0, 1)
}
