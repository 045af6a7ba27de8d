package reputation

import "testing"

func TestDelta(t *testing.T) {
	tests := []struct {
		event Event
		won   bool
		want  int
	}{
		{EventConcede, true, 5},
		{EventConcede, false, -2},
		{EventDisputeResolved, true, 3},
		{EventDisputeResolved, false, -5},
		{EventClaimTimeout, true, 5},
		{EventClaimTimeout, false, -5},
		{Event("unknown"), true, 0},
	}

	for _, tc := range tests {
		if got := Delta(tc.event, tc.won); got != tc.want {
			t.Errorf("Delta(%s, won=%v) = %d, want %d", tc.event, tc.won, got, tc.want)
		}
	}
}

func TestApplyAllowsNegativeScores(t *testing.T) {
	if got := Apply(1, EventDisputeResolved, false); got != -4 {
		t.Errorf("Apply(1, dispute loss) = %d, want -4", got)
	}
	if got := Apply(0, EventConcede, false); got != -2 {
		t.Errorf("Apply(0, concede loss) = %d, want -2", got)
	}
	if got := Apply(10, EventDisputeResolved, false); got != 5 {
		t.Errorf("Apply(10, dispute loss) = %d, want 5", got)
	}
}

func TestApplyIsDeterministic(t *testing.T) {
	// Same history, same score
	history := []struct {
		event Event
		won   bool
	}{
		{EventConcede, true},
		{EventConcede, true},
		{EventDisputeResolved, false},
		{EventClaimTimeout, true},
	}

	replay := func() int {
		score := 0
		for _, h := range history {
			score = Apply(score, h.event, h.won)
		}
		return score
	}

	first := replay()
	if first != 10 { // 5 + 5 - 5 + 5
		t.Errorf("replayed score = %d, want 10", first)
	}
	if second := replay(); second != first {
		t.Errorf("replay differs: %d vs %d", first, second)
	}
}

func TestTierFor(t *testing.T) {
	tests := []struct {
		score int
		want  Tier
	}{
		{-10, TierNew},
		{0, TierNew},
		{9, TierNew},
		{10, TierEmerging},
		{25, TierEstablished},
		{50, TierTrusted},
		{100, TierElite},
		{500, TierElite},
	}

	for _, tc := range tests {
		if got := TierFor(tc.score); got != tc.want {
			t.Errorf("TierFor(%d) = %s, want %s", tc.score, got, tc.want)
		}
	}
}

func TestSummarize(t *testing.T) {
	s := Summarize("agt_abc", 55, 10, 3, 2, 1)
	if s.Tier != TierTrusted {
		t.Errorf("tier = %s, want trusted", s.Tier)
	}
	if s.BetsWon != 10 || s.DisputesLost != 1 {
		t.Error("counters not carried through")
	}
	if s.CalculatedAt.IsZero() {
		t.Error("CalculatedAt should be set")
	}
}
