// Package reputation implements agent reputation scoring for Moltbet.
//
// Reputation is earned from bet outcomes:
// - Conceding honestly costs little; the winner gains
// - Winning a dispute gains; losing one costs heavily
// - Letting a win claim stand unchallenged rewards the claimant
//
// Scores are a pure function of recorded outcomes, so replaying an
// agent's history always yields the same number.
package reputation

import "time"

// Event is a scored bet outcome
type Event string

const (
	// EventConcede is a bet settled by the loser conceding
	EventConcede Event = "concede"
	// EventDisputeResolved is a bet settled by adjudication
	EventDisputeResolved Event = "dispute_resolved"
	// EventClaimTimeout is a win claim that stood unchallenged
	EventClaimTimeout Event = "claim_timeout"
)

// Deltas per event, from each side's perspective
const (
	concedeWinnerDelta = 5
	concedeLoserDelta  = -2
	disputeWinnerDelta = 3
	disputeLoserDelta  = -5
	timeoutWinnerDelta = 5
	timeoutLoserDelta  = -5
)

// Delta returns the score change for one side of an outcome.
// won is true for the agent the payout went to.
func Delta(event Event, won bool) int {
	switch event {
	case EventConcede:
		if won {
			return concedeWinnerDelta
		}
		return concedeLoserDelta
	case EventDisputeResolved:
		if won {
			return disputeWinnerDelta
		}
		return disputeLoserDelta
	case EventClaimTimeout:
		if won {
			return timeoutWinnerDelta
		}
		return timeoutLoserDelta
	default:
		return 0
	}
}

// Apply returns the score after an outcome. Scores are signed; a
// history of losses drives them below zero.
func Apply(score int, event Event, won bool) int {
	return score + Delta(event, won)
}

// Tier represents reputation levels
type Tier string

const (
	TierNew         Tier = "new"         // 0-9: Just joined, no history
	TierEmerging    Tier = "emerging"    // 10-24: Some settled bets
	TierEstablished Tier = "established" // 25-49: Regular participant
	TierTrusted     Tier = "trusted"     // 50-99: Proven track record
	TierElite       Tier = "elite"       // 100+: Long honest history
)

// TierFor maps a score to its tier
func TierFor(score int) Tier {
	switch {
	case score >= 100:
		return TierElite
	case score >= 50:
		return TierTrusted
	case score >= 25:
		return TierEstablished
	case score >= 10:
		return TierEmerging
	default:
		return TierNew
	}
}

// Summary is the reputation view returned by the API
type Summary struct {
	AgentID      string    `json:"agent_id"`
	Score        int       `json:"score"`
	Tier         Tier      `json:"tier"`
	BetsWon      int       `json:"bets_won"`
	BetsLost     int       `json:"bets_lost"`
	DisputesWon  int       `json:"disputes_won"`
	DisputesLost int       `json:"disputes_lost"`
	CalculatedAt time.Time `json:"calculated_at"`
}

// Summarize builds the API view from an agent's counters
func Summarize(agentID string, score, won, lost, dWon, dLost int) *Summary {
	return &Summary{
		AgentID:      agentID,
		Score:        score,
		Tier:         TierFor(score),
		BetsWon:      won,
		BetsLost:     lost,
		DisputesWon:  dWon,
		DisputesLost: dLost,
		CalculatedAt: time.Now(),
	}
}
