package main

import (
	"time"

	"github.com/google/uuid"
)

// MatchStatus is the lifecycle of a formed match
type MatchStatus int

const (
	MatchFormed MatchStatus = iota
	MatchStarting
	MatchLive
	MatchEnded
)

// Side identifiers
const (
	SideNone = 0
	SideA    = 1
	SideB    = 2
)

// Match is created atomically by the matchmaker: the two entries are removed
// from their pool and the match inserted in the same locked step, so no
// entry can belong to two matches.
type Match struct {
	ID       string
	Mode     string
	SideA    []RatedParticipant
	SideB    []RatedParticipant
	Quality  float64
	Balance  float64 // rating-sum balance of the two sides, 0-100
	WinProbA float64
	FormedAt time.Time
	Status   MatchStatus
}

// NewMatch builds a match from two queue entries
func NewMatch(a, b *QueueEntry, quality float64) *Match {
	m := &Match{
		ID:       uuid.NewString(),
		Mode:     a.Mode,
		SideA:    append([]RatedParticipant(nil), a.Members...),
		SideB:    append([]RatedParticipant(nil), b.Members...),
		Quality:  quality,
		FormedAt: time.Now(),
		Status:   MatchFormed,
	}
	m.Balance, m.WinProbA = EvaluateSides(m.SideA, m.SideB)
	return m
}

// NewBalancedMatch splits a custom roster into two skill-balanced sides.
// Used for lobby-created games that skip the queue.
func NewBalancedMatch(mode string, roster []RatedParticipant, teamSize int) *Match {
	split := BalanceTeams(roster, teamSize)
	return &Match{
		ID:       uuid.NewString(),
		Mode:     mode,
		SideA:    split.SideA,
		SideB:    split.SideB,
		Quality:  split.Quality,
		Balance:  split.Quality,
		WinProbA: split.WinProbabilityA,
		FormedAt: time.Now(),
		Status:   MatchFormed,
	}
}

// EvaluateSides scores two fixed sides: balance quality and the ELO
// expected score of side A, both from the Rating Engine's formulas.
func EvaluateSides(sideA, sideB []RatedParticipant) (float64, float64) {
	sumA, sumB := 0, 0
	for _, p := range sideA {
		sumA += p.Rating
	}
	for _, p := range sideB {
		sumB += p.Rating
	}
	return balanceQuality(sumA, sumB), ExpectedScore(avgRating(sideA), avgRating(sideB))
}

// ParticipantIDs returns every participant on both sides
func (m *Match) ParticipantIDs() []string {
	ids := make([]string, 0, len(m.SideA)+len(m.SideB))
	for _, p := range m.SideA {
		ids = append(ids, p.ID)
	}
	for _, p := range m.SideB {
		ids = append(ids, p.ID)
	}
	return ids
}

// SideOf returns which side a participant plays on, or SideNone
func (m *Match) SideOf(participantID string) int {
	for _, p := range m.SideA {
		if p.ID == participantID {
			return SideA
		}
	}
	for _, p := range m.SideB {
		if p.ID == participantID {
			return SideB
		}
	}
	return SideNone
}

// FoundMsg builds the MATCH_FOUND payload for this match
func (m *Match) FoundMsg() MatchFoundMsg {
	msg := MatchFoundMsg{MatchID: m.ID, Quality: m.Quality}
	for _, p := range m.SideA {
		msg.SideA = append(msg.SideA, p.ID)
	}
	for _, p := range m.SideB {
		msg.SideB = append(msg.SideB, p.ID)
	}
	return msg
}
