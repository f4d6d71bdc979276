package main

import (
	"math"
	"testing"
)

func TestExpectedScoreSymmetry(t *testing.T) {
	// P(a beats b) + P(b beats a) must sum to 1
	pairs := [][2]int{{1000, 1000}, {1000, 1200}, {1500, 900}, {2400, 2300}}
	for _, p := range pairs {
		sum := ExpectedScore(p[0], p[1]) + ExpectedScore(p[1], p[0])
		if math.Abs(sum-1.0) > 1e-9 {
			t.Errorf("expected scores for %v sum to %f, want 1", p, sum)
		}
	}
}

func TestExpectedScoreEqualRatings(t *testing.T) {
	if e := ExpectedScore(1000, 1000); math.Abs(e-0.5) > 1e-9 {
		t.Errorf("equal ratings should give 0.5, got %f", e)
	}
}

func TestExpectedScore400GapGivesTenToOne(t *testing.T) {
	// A 400 point gap is 10:1 odds by construction
	e := ExpectedScore(1400, 1000)
	if math.Abs(e-10.0/11.0) > 1e-9 {
		t.Errorf("400 gap should give 10/11, got %f", e)
	}
}

func TestKFactorSchedule(t *testing.T) {
	if k := KFactor(1000, 3); k != KProvisional {
		t.Errorf("provisional account should use K=%v, got %v", KProvisional, k)
	}
	if k := KFactor(1000, 50); k != KStandard {
		t.Errorf("established account should use K=%v, got %v", KStandard, k)
	}
	if k := KFactor(2300, 500); k != KHighRated {
		t.Errorf("high-rated account should use K=%v, got %v", KHighRated, k)
	}
	// High rating wins over the provisional bonus
	if k := KFactor(2300, 3); k != KHighRated {
		t.Errorf("high-rated provisional account should use K=%v, got %v", KHighRated, k)
	}
}

func TestApplyResultEvenDrawIsNoOp(t *testing.T) {
	if r := ApplyResult(1200, 1200, 100, ResultDraw); r != 1200 {
		t.Errorf("draw between equals should not move rating, got %d", r)
	}
}

func TestApplyResultWinAndLoss(t *testing.T) {
	win := ApplyResult(1000, 1000, 100, ResultWin)
	loss := ApplyResult(1000, 1000, 100, ResultLoss)
	if win != 1012 {
		t.Errorf("even win at K=24 should gain 12, got %d", win-1000)
	}
	if loss != 988 {
		t.Errorf("even loss at K=24 should lose 12, got %d", 1000-loss)
	}
}

func TestApplyResultUpsetSwingsHarder(t *testing.T) {
	upset := ApplyResult(1000, 1400, 100, ResultWin)
	expected := ApplyResult(1400, 1000, 100, ResultWin)
	if upset-1000 <= expected-1400 {
		t.Errorf("upset win (+%d) should outgain expected win (+%d)", upset-1000, expected-1400)
	}
}

func TestTierFor(t *testing.T) {
	cases := []struct {
		rating int
		want   string
	}{
		{0, "Bronze"},
		{999, "Bronze"},
		{1000, "Silver"},
		{1299, "Silver"},
		{1300, "Gold"},
		{1899, "Platinum"},
		{2200, "Master"},
		{2500, "Grandmaster"},
		{9000, "Grandmaster"},
	}
	for _, c := range cases {
		if got := TierFor(c.rating).Name; got != c.want {
			t.Errorf("TierFor(%d) = %s, want %s", c.rating, got, c.want)
		}
	}
}

func TestTierProgressClamped(t *testing.T) {
	if p := TierProgress(1150); math.Abs(p-0.5) > 1e-9 {
		t.Errorf("1150 is halfway through Silver, got %f", p)
	}
	if p := TierProgress(9000); p != 1 {
		t.Errorf("progress above the top band should clamp to 1, got %f", p)
	}
}
