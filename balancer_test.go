package main

import "testing"

func roster(ratings ...int) []RatedParticipant {
	out := make([]RatedParticipant, len(ratings))
	for i, r := range ratings {
		out[i] = RatedParticipant{ID: GenerateID(4), Rating: r}
	}
	return out
}

func sideSum(side []RatedParticipant) int {
	sum := 0
	for _, p := range side {
		sum += p.Rating
	}
	return sum
}

func TestBalanceTeamsEvenSplit(t *testing.T) {
	res := BalanceTeams(roster(1000, 1100, 1200, 1300), 2)
	if len(res.SideA) != 2 || len(res.SideB) != 2 {
		t.Fatalf("expected 2v2, got %dv%d", len(res.SideA), len(res.SideB))
	}
	// Greedy on sorted input pairs top with bottom: 1300+1000 vs 1200+1100
	gap := sideSum(res.SideA) - sideSum(res.SideB)
	if gap < 0 {
		gap = -gap
	}
	if gap != 0 {
		t.Errorf("sum gap %d, want 0", gap)
	}
}

func TestBalanceTeamsSpreadRoster(t *testing.T) {
	res := BalanceTeams(roster(1000, 1100, 1200, 1300, 1400), 3)
	if len(res.SideA)+len(res.SideB) != 5 {
		t.Fatalf("roster of 5 not fully assigned: %dv%d", len(res.SideA), len(res.SideB))
	}

	sumA, sumB := sideSum(res.SideA), sideSum(res.SideB)
	larger := sumA
	if sumB > larger {
		larger = sumB
	}
	gap := sumA - sumB
	if gap < 0 {
		gap = -gap
	}
	// A wide-spread roster should still split within 20% of the larger sum
	if float64(gap) > 0.2*float64(larger) {
		t.Errorf("sum gap %d exceeds 20%% of %d", gap, larger)
	}
	if res.Quality < 80 {
		t.Errorf("quality %f too low for this roster", res.Quality)
	}
}

func TestBalanceTeamsRespectsCapacity(t *testing.T) {
	res := BalanceTeams(roster(2000, 1900, 1800, 1700), 2)
	if len(res.SideA) > 2 || len(res.SideB) > 2 {
		t.Errorf("side over capacity: %dv%d", len(res.SideA), len(res.SideB))
	}
}

func TestBalanceTeamsIdenticalRatings(t *testing.T) {
	res := BalanceTeams(roster(1200, 1200, 1200, 1200), 2)
	if res.Quality != 100 {
		t.Errorf("identical ratings should balance perfectly, got %f", res.Quality)
	}
	if res.WinProbabilityA != 0.5 {
		t.Errorf("identical sides should be even odds, got %f", res.WinProbabilityA)
	}
}

func TestBalanceTeamsEmptyRoster(t *testing.T) {
	res := BalanceTeams(nil, 2)
	if len(res.SideA) != 0 || len(res.SideB) != 0 {
		t.Error("empty roster should yield empty sides")
	}
	if res.Quality != 100 {
		t.Errorf("empty split is trivially balanced, got %f", res.Quality)
	}
}

func TestBalanceTeamsDoesNotMutateInput(t *testing.T) {
	in := roster(1400, 1000, 1200)
	BalanceTeams(in, 2)
	if in[0].Rating != 1400 || in[1].Rating != 1000 || in[2].Rating != 1200 {
		t.Error("input roster order mutated")
	}
}
