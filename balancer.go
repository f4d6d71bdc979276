package main

import "sort"

// RatedParticipant is one entry in a roster to be split into sides
type RatedParticipant struct {
	ID     string
	Rating int
}

// BalanceResult holds the two sides plus quality metrics
type BalanceResult struct {
	SideA []RatedParticipant
	SideB []RatedParticipant
	// Quality is 0-100: 100 minus the rating-sum gap normalized against
	// the larger side's total.
	Quality float64
	// WinProbabilityA is the ELO expected score for side A over side B,
	// computed on average team ratings.
	WinProbabilityA float64
}

// BalanceTeams splits a roster into two sides of at most teamSize each.
// Sort descending by rating, then greedily assign each participant to the
// side with the lower running sum; ties go to the smaller side, and a side
// already at capacity is skipped.
func BalanceTeams(roster []RatedParticipant, teamSize int) BalanceResult {
	sorted := make([]RatedParticipant, len(roster))
	copy(sorted, roster)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Rating > sorted[j].Rating
	})

	var res BalanceResult
	sumA, sumB := 0, 0
	for _, p := range sorted {
		toA := false
		switch {
		case len(res.SideA) >= teamSize:
			toA = false
		case len(res.SideB) >= teamSize:
			toA = true
		case sumA < sumB:
			toA = true
		case sumB < sumA:
			toA = false
		default:
			toA = len(res.SideA) <= len(res.SideB)
		}
		if toA {
			res.SideA = append(res.SideA, p)
			sumA += p.Rating
		} else {
			res.SideB = append(res.SideB, p)
			sumB += p.Rating
		}
	}

	res.Quality = balanceQuality(sumA, sumB)
	res.WinProbabilityA = ExpectedScore(avgRating(res.SideA), avgRating(res.SideB))
	return res
}

func balanceQuality(sumA, sumB int) float64 {
	larger := sumA
	if sumB > larger {
		larger = sumB
	}
	if larger == 0 {
		return 100
	}
	gap := sumA - sumB
	if gap < 0 {
		gap = -gap
	}
	return Clamp(100-float64(gap)/float64(larger)*100, 0, 100)
}

func avgRating(side []RatedParticipant) int {
	if len(side) == 0 {
		return DefaultRating
	}
	sum := 0
	for _, p := range side {
		sum += p.Rating
	}
	return sum / len(side)
}
