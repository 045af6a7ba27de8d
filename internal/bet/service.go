package bet

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/koredeycode/moltbet/internal/agent"
	"github.com/koredeycode/moltbet/internal/dispute"
	"github.com/koredeycode/moltbet/internal/idgen"
	"github.com/koredeycode/moltbet/internal/logging"
	"github.com/koredeycode/moltbet/internal/metrics"
	"github.com/koredeycode/moltbet/internal/notify"
	"github.com/koredeycode/moltbet/internal/reputation"
	"github.com/koredeycode/moltbet/internal/retry"
	"github.com/koredeycode/moltbet/internal/settlement"
	"github.com/koredeycode/moltbet/internal/syncutil"
	"github.com/koredeycode/moltbet/internal/usdc"
	"github.com/koredeycode/moltbet/internal/validation"
)

// AgentDirectory exposes the agent operations bet transitions need.
type AgentDirectory interface {
	Get(ctx context.Context, id string) (*agent.Agent, error)
	RequireVerified(ctx context.Context, id string) (*agent.Agent, error)
	RecordStake(ctx context.Context, id, amount string) error
	RecordOutcome(ctx context.Context, id string, event reputation.Event, won bool, payout string) error
}

// ActionLimiter throttles how often an agent may propose or counter.
// Check never consumes; Record counts one successful action.
type ActionLimiter interface {
	Check(agentID string) bool
	Record(agentID string)
}

// Notifier writes inbox entries as transitions happen.
type Notifier interface {
	Push(ctx context.Context, agentID string, typ notify.Type, betID, message string) (*notify.Notification, error)
}

// Broadcaster fans bet events out to realtime feed subscribers.
type Broadcaster interface {
	Broadcast(v any)
}

// Options bound the bet protocol. Zero values fall back to defaults.
type Options struct {
	MinStake      string
	MaxStake      string
	OfferTTL      time.Duration
	DisputeWindow time.Duration
}

// Service validates and executes every bet state transition. It is the
// sole writer of Bet.status; disputes mutate through it as well so the
// bet/dispute pair stays one atomic unit.
type Service struct {
	store  Store
	settle settlement.Facilitator
	agents AgentDirectory

	limiter ActionLimiter
	notify  Notifier
	feed    Broadcaster

	minStake      *big.Int
	maxStake      *big.Int
	offerTTL      time.Duration
	disputeWindow time.Duration

	locks syncutil.ShardedMutex // per-bet ID locks to serialize transitions
}

// NewService creates the bet lifecycle service.
func NewService(store Store, settle settlement.Facilitator, agents AgentDirectory, opts Options) *Service {
	s := &Service{
		store:         store,
		settle:        settle,
		agents:        agents,
		offerTTL:      opts.OfferTTL,
		disputeWindow: opts.DisputeWindow,
	}
	if s.offerTTL <= 0 {
		s.offerTTL = 72 * time.Hour
	}
	if s.disputeWindow <= 0 {
		s.disputeWindow = 48 * time.Hour
	}
	if raw, ok := usdc.Parse(opts.MinStake); ok && raw.Sign() > 0 {
		s.minStake = raw
	}
	if raw, ok := usdc.Parse(opts.MaxStake); ok && raw.Sign() > 0 {
		s.maxStake = raw
	}
	return s
}

// WithActionLimiter adds per-agent propose/counter throttling.
func (s *Service) WithActionLimiter(l ActionLimiter) *Service {
	s.limiter = l
	return s
}

// WithNotifier adds inbox delivery for transition side effects.
func (s *Service) WithNotifier(n Notifier) *Service {
	s.notify = n
	return s
}

// WithBroadcaster adds realtime feed fan-out.
func (s *Service) WithBroadcaster(b Broadcaster) *Service {
	s.feed = b
	return s
}

// DisputeWindow returns how long the counter-party has to dispute a
// win claim.
func (s *Service) DisputeWindow() time.Duration {
	return s.disputeWindow
}

// lockBet acquires the lock for the given bet ID and returns the
// unlock function. This serializes concurrent transitions (e.g. two
// counters, or concede racing a dispute resolution).
func (s *Service) lockBet(id string) func() {
	return s.locks.Lock(id)
}

// ValidateStake checks the stake format and bounds.
func (s *Service) ValidateStake(stake string) error {
	raw, ok := usdc.Parse(stake)
	if !ok || raw.Sign() <= 0 {
		return ErrInvalidStake
	}
	if s.minStake != nil && raw.Cmp(s.minStake) < 0 {
		return ErrInvalidStake
	}
	if s.maxStake != nil && raw.Cmp(s.maxStake) > 0 {
		return ErrInvalidStake
	}
	return nil
}

// CheckPropose validates everything about a propose request except the
// payment, so callers can reject before collecting a stake.
func (s *Service) CheckPropose(ctx context.Context, proposerID string, req ProposeRequest) error {
	if s.limiter != nil && !s.limiter.Check(proposerID) {
		return ErrRateLimited
	}
	if _, err := s.agents.RequireVerified(ctx, proposerID); err != nil {
		return err
	}
	if err := s.ValidateStake(req.Stake); err != nil {
		return err
	}
	if !ValidCategory(Category(req.Category)) {
		return ErrInvalidCategory
	}
	return nil
}

// Propose opens a bet. The caller has already verified the stake
// payment; escrowTx is its transaction reference. Any rejection after
// that payment triggers a compensating refund.
func (s *Service) Propose(ctx context.Context, proposerID string, req ProposeRequest, escrowTx string) (*Bet, error) {
	if err := s.CheckPropose(ctx, proposerID, req); err != nil {
		s.refundProposeStake(ctx, proposerID, req.Stake, escrowTx)
		return nil, err
	}
	proposer, err := s.agents.Get(ctx, proposerID)
	if err != nil {
		s.refundProposeStake(ctx, proposerID, req.Stake, escrowTx)
		return nil, err
	}

	ttl := s.offerTTL
	if req.ExpiresIn != "" {
		if d, err := time.ParseDuration(req.ExpiresIn); err == nil && d > 0 {
			ttl = d
		}
	}

	now := time.Now()
	stake := usdc.Normalize(req.Stake)
	b := &Bet{
		ID:           idgen.WithPrefix("bet_"),
		Title:        validation.SanitizeString(req.Title, 255),
		Description:  validation.SanitizeString(req.Description, 2000),
		Terms:        validation.SanitizeString(req.Terms, validation.MaxTermsLength),
		Category:     Category(req.Category),
		Status:       StatusOpen,
		Stake:        stake,
		ProposerID:   proposerID,
		EscrowTxHash: escrowTx,
		ExpiresAt:    now.Add(ttl),
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	ev := newEvent(b.ID, proposerID, EventCreated, CreatedPayload{
		Stake:    b.Stake,
		Title:    b.Title,
		Category: string(b.Category),
	})

	if err := s.store.CreateBet(ctx, b, ev); err != nil {
		// The stake is already in escrow; give it back
		s.refund(ctx, proposer.PayoutAddress, b.Stake, b.ID+":propose:refund")
		return nil, fmt.Errorf("failed to create bet: %w", err)
	}

	if s.limiter != nil {
		s.limiter.Record(proposerID)
	}
	_ = s.agents.RecordStake(ctx, proposerID, b.Stake)
	metrics.BetsProposedTotal.Inc()
	metrics.BetTransitionsTotal.WithLabelValues(string(StatusOpen)).Inc()
	s.broadcast(ev)

	return b, nil
}

// CheckCounter validates that agentID could counter the bet right now
// and returns it for stake pricing. The authoritative check runs again
// inside Counter under the bet lock.
func (s *Service) CheckCounter(ctx context.Context, betID, agentID string) (*Bet, error) {
	if s.limiter != nil && !s.limiter.Check(agentID) {
		return nil, ErrRateLimited
	}
	if _, err := s.agents.RequireVerified(ctx, agentID); err != nil {
		return nil, err
	}

	b, err := s.store.GetBet(ctx, betID)
	if err != nil {
		return nil, err
	}
	if err := counterable(b, agentID, time.Now()); err != nil {
		return nil, err
	}
	return b, nil
}

func counterable(b *Bet, agentID string, now time.Time) error {
	if b.Status != StatusOpen {
		return ErrInvalidState
	}
	if b.Expired(now) {
		return ErrExpired
	}
	if agentID == b.ProposerID {
		return ErrForbidden
	}
	return nil
}

// Counter matches an open bet. The caller has already verified a stake
// payment equal to the bet's; a lost race or a late precondition
// failure triggers a compensating refund of that payment.
func (s *Service) Counter(ctx context.Context, betID, agentID, escrowTx string) (*Bet, error) {
	counter, err := s.agents.RequireVerified(ctx, agentID)
	if err != nil {
		s.refundCounterStake(ctx, betID, agentID, escrowTx)
		return nil, err
	}

	unlock := s.lockBet(betID)
	defer unlock()

	b, err := s.store.GetBet(ctx, betID)
	if err != nil {
		s.refundCounterStake(ctx, betID, agentID, escrowTx)
		return nil, err
	}

	if err := counterable(b, agentID, time.Now()); err != nil {
		// Payment was collected before the lock; send it back
		s.refund(ctx, counter.PayoutAddress, b.Stake, counterRefundRef(betID, escrowTx))
		if err == ErrInvalidState {
			return nil, ErrConflict
		}
		return nil, err
	}

	now := time.Now()
	b.Status = StatusCountered
	b.CounterID = agentID
	b.CounteredAt = &now
	b.UpdatedAt = now

	ev := newEvent(b.ID, agentID, EventMatched, MatchedPayload{
		CounterID: agentID,
		Stake:     b.Stake,
		EscrowTx:  escrowTx,
	})

	if err := s.store.UpdateBet(ctx, b, StatusOpen, ev); err != nil {
		s.refund(ctx, counter.PayoutAddress, b.Stake, counterRefundRef(betID, escrowTx))
		return nil, err
	}

	if s.limiter != nil {
		s.limiter.Record(agentID)
	}
	_ = s.agents.RecordStake(ctx, agentID, b.Stake)
	s.push(ctx, b.ProposerID, notify.TypeBetCountered, b.ID,
		fmt.Sprintf("Your bet %q was countered; both stakes are escrowed", b.Title))
	metrics.BetsCounteredTotal.Inc()
	metrics.BetTransitionsTotal.WithLabelValues(string(StatusCountered)).Inc()
	s.broadcast(ev)

	return b, nil
}

// ClaimWin records a unilateral win claim and starts the dispute
// window.
func (s *Service) ClaimWin(ctx context.Context, betID, agentID, evidence string) (*Bet, error) {
	unlock := s.lockBet(betID)
	defer unlock()

	b, err := s.store.GetBet(ctx, betID)
	if err != nil {
		return nil, err
	}
	if !b.IsParticipant(agentID) {
		return nil, ErrForbidden
	}
	if b.IsTerminal() {
		return nil, ErrAlreadyResolved
	}
	if b.Status != StatusCountered {
		return nil, ErrInvalidState
	}

	now := time.Now()
	b.Status = StatusWinClaimed
	b.WinClaimerID = agentID
	b.WinClaimEvidence = validation.SanitizeString(evidence, validation.MaxEvidenceLength)
	b.WinClaimedAt = &now
	b.UpdatedAt = now

	ev := newEvent(b.ID, agentID, EventWinClaimed, WinClaimedPayload{
		ClaimerID: agentID,
		Evidence:  b.WinClaimEvidence,
	})

	if err := s.store.UpdateBet(ctx, b, StatusCountered, ev); err != nil {
		return nil, err
	}

	s.push(ctx, b.OtherParticipant(agentID), notify.TypeWinClaimed, b.ID,
		fmt.Sprintf("A win was claimed on bet %q; you have %s to dispute it", b.Title, s.disputeWindow))
	metrics.BetTransitionsTotal.WithLabelValues(string(StatusWinClaimed)).Inc()
	s.broadcast(ev)

	return b, nil
}

// Concede admits the loss and pays the other participant double the
// stake. Valid from countered or win_claimed, regardless of any
// outstanding claim.
func (s *Service) Concede(ctx context.Context, betID, agentID string) (*Bet, error) {
	unlock := s.lockBet(betID)
	defer unlock()

	b, err := s.store.GetBet(ctx, betID)
	if err != nil {
		return nil, err
	}
	if !b.IsParticipant(agentID) {
		return nil, ErrForbidden
	}
	if b.IsTerminal() {
		return nil, ErrAlreadyResolved
	}
	if b.Status != StatusCountered && b.Status != StatusWinClaimed {
		return nil, ErrInvalidState
	}

	winnerID := b.OtherParticipant(agentID)
	conceded := newEvent(b.ID, agentID, EventConceded, ConcededPayload{ConcededByID: agentID})

	if err := s.resolve(ctx, b, b.Status, winnerID, reputation.EventConcede, agentID, conceded); err != nil {
		return nil, err
	}
	return b, nil
}

// Cancel withdraws an open, never-countered offer and refunds the
// proposer's stake.
func (s *Service) Cancel(ctx context.Context, betID, agentID string) (*Bet, error) {
	unlock := s.lockBet(betID)
	defer unlock()

	b, err := s.store.GetBet(ctx, betID)
	if err != nil {
		return nil, err
	}
	if agentID != b.ProposerID {
		return nil, ErrForbidden
	}
	if b.Status != StatusOpen {
		return nil, ErrInvalidState
	}

	return b, s.cancel(ctx, b, agentID, "")
}

// cancel refunds the proposer and moves an open bet to cancelled.
// Caller holds the bet lock and has verified status.
func (s *Service) cancel(ctx context.Context, b *Bet, actorID, reason string) error {
	proposer, err := s.agents.Get(ctx, b.ProposerID)
	if err != nil {
		return err
	}

	// Crash-safe in-flight marker before moving money
	prior := b.Status
	b.Status = StatusCancelling
	b.UpdatedAt = time.Now()
	if err := s.store.UpdateBet(ctx, b, prior); err != nil {
		return err
	}

	receipt, err := s.settle.Refund(ctx, proposer.PayoutAddress, b.Stake, b.ID+":cancel")
	if err != nil {
		metrics.SettlementsTotal.WithLabelValues("refund", "error").Inc()
		// Revert the marker; nothing moved
		b.Status = prior
		b.UpdatedAt = time.Now()
		if revertErr := s.store.UpdateBet(ctx, b, StatusCancelling); revertErr != nil {
			logging.L(ctx).Error("CRITICAL: failed to revert cancelling marker",
				"bet_id", b.ID, "error", revertErr)
		}
		return fmt.Errorf("%w: %v", ErrSettlementFailed, err)
	}
	metrics.SettlementsTotal.WithLabelValues("refund", "ok").Inc()

	now := time.Now()
	b.Status = StatusCancelled
	b.ResolutionTxHash = receipt.TxRef
	b.ResolvedAt = &now
	b.UpdatedAt = now

	ev := newEvent(b.ID, actorID, EventCancelled, CancelledPayload{
		Reason:    reason,
		RefundRef: receipt.TxRef,
	})

	// Funds already moved; the record must follow.
	if err := retry.Do(ctx, 3, 100*time.Millisecond, func() error {
		return s.store.UpdateBet(ctx, b, StatusCancelling, ev)
	}); err != nil {
		logging.L(ctx).Error("CRITICAL: refund settled but bet record is stale",
			"bet_id", b.ID, "tx_ref", receipt.TxRef, "error", err)
		return fmt.Errorf("failed to record cancellation after refund (requires manual resolution): %w", err)
	}

	metrics.BetsCancelledTotal.Inc()
	metrics.BetTransitionsTotal.WithLabelValues(string(StatusCancelled)).Inc()
	s.broadcast(ev)
	return nil
}

// OpenDispute contests a win claim. Only the non-claiming participant
// may dispute, and only while the claim is outstanding.
func (s *Service) OpenDispute(ctx context.Context, betID, agentID, reason, evidence string) (*dispute.Dispute, error) {
	unlock := s.lockBet(betID)
	defer unlock()

	b, err := s.store.GetBet(ctx, betID)
	if err != nil {
		return nil, err
	}
	if !b.IsParticipant(agentID) || agentID == b.WinClaimerID {
		return nil, ErrForbidden
	}
	if b.IsTerminal() {
		return nil, ErrAlreadyResolved
	}
	if b.Status != StatusWinClaimed {
		return nil, ErrInvalidState
	}

	now := time.Now()
	d := &dispute.Dispute{
		ID:         idgen.WithPrefix("dsp_"),
		BetID:      b.ID,
		RaisedByID: agentID,
		Reason:     validation.SanitizeString(reason, validation.MaxTermsLength),
		Evidence:   validation.SanitizeString(evidence, validation.MaxEvidenceLength),
		Status:     dispute.StatusPending,
		CreatedAt:  now,
	}

	b.Status = StatusDisputed
	b.UpdatedAt = now

	ev := newEvent(b.ID, agentID, EventDisputed, DisputedPayload{
		DisputeID:  d.ID,
		RaisedByID: agentID,
		Reason:     d.Reason,
	})

	if err := s.store.CreateDispute(ctx, d, b, StatusWinClaimed, ev); err != nil {
		return nil, err
	}

	s.push(ctx, b.WinClaimerID, notify.TypeDisputeOpened, b.ID,
		fmt.Sprintf("Your win claim on bet %q was disputed; you may file one response", b.Title))
	metrics.DisputesTotal.WithLabelValues("opened").Inc()
	metrics.BetTransitionsTotal.WithLabelValues(string(StatusDisputed)).Inc()
	s.broadcast(ev)

	return d, nil
}

// GetDispute returns a dispute by ID.
func (s *Service) GetDispute(ctx context.Context, id string) (*dispute.Dispute, error) {
	return s.store.GetDispute(ctx, id)
}

// ListDisputes returns disputes filtered by status, newest first.
func (s *Service) ListDisputes(ctx context.Context, status dispute.Status, limit int) ([]*dispute.Dispute, error) {
	return s.store.ListDisputes(ctx, status, limit)
}

// RespondToDispute files the claimed winner's single rebuttal.
func (s *Service) RespondToDispute(ctx context.Context, disputeID, actorID, reason, evidence string) (*dispute.Dispute, error) {
	d, err := s.store.GetDispute(ctx, disputeID)
	if err != nil {
		return nil, err
	}

	unlock := s.lockBet(d.BetID)
	defer unlock()

	// Re-read under the lock
	d, err = s.store.GetDispute(ctx, disputeID)
	if err != nil {
		return nil, err
	}
	if d.Status != dispute.StatusPending {
		return nil, dispute.ErrNotPending
	}

	b, err := s.store.GetBet(ctx, d.BetID)
	if err != nil {
		return nil, err
	}
	if !b.IsParticipant(actorID) || actorID == d.RaisedByID {
		return nil, dispute.ErrForbidden
	}
	if d.RespondedAt != nil {
		return nil, dispute.ErrAlreadyResponded
	}

	now := time.Now()
	d.CounterReason = validation.SanitizeString(reason, validation.MaxTermsLength)
	d.CounterEvidence = validation.SanitizeString(evidence, validation.MaxEvidenceLength)
	d.RespondedAt = &now

	ev := newEvent(b.ID, actorID, EventDisputeResponse, DisputeResponsePayload{
		DisputeID:   d.ID,
		ResponderID: actorID,
	})

	if err := s.store.UpdateDispute(ctx, d, ev); err != nil {
		return nil, err
	}

	s.push(ctx, d.RaisedByID, notify.TypeEvidenceWanted, b.ID,
		fmt.Sprintf("A response was filed on your dispute for bet %q", b.Title))
	metrics.DisputesTotal.WithLabelValues("responded").Inc()
	s.broadcast(ev)

	return d, nil
}

// ResolveDispute settles a pending dispute in favor of winnerID. The
// payout, the dispute record, and the bet resolution commit as one
// unit; a second call observes AlreadyResolved without a second
// payout.
func (s *Service) ResolveDispute(ctx context.Context, disputeID, winnerID, notes, resolvedBy string) (*dispute.Resolution, error) {
	d, err := s.store.GetDispute(ctx, disputeID)
	if err != nil {
		return nil, err
	}

	unlock := s.lockBet(d.BetID)
	defer unlock()

	d, err = s.store.GetDispute(ctx, disputeID)
	if err != nil {
		return nil, err
	}
	if d.Status != dispute.StatusPending {
		return nil, dispute.ErrAlreadyResolved
	}

	b, err := s.store.GetBet(ctx, d.BetID)
	if err != nil {
		return nil, err
	}
	if !b.IsParticipant(winnerID) {
		return nil, dispute.ErrInvalidWinner
	}
	if b.IsTerminal() {
		return nil, dispute.ErrAlreadyResolved
	}
	if b.Status != StatusDisputed {
		return nil, ErrInvalidState
	}

	now := time.Now()
	d.Status = dispute.StatusResolved
	d.ResolvedByID = resolvedBy
	d.ResolutionNotes = validation.SanitizeString(notes, validation.MaxTermsLength)
	d.WinnerID = winnerID
	d.ResolvedAt = &now

	if err := s.resolveWithDispute(ctx, b, StatusDisputed, winnerID, reputation.EventDisputeResolved, resolvedBy, d); err != nil {
		if errors.Is(err, ErrSettlementFailed) {
			return nil, fmt.Errorf("%w: %v", dispute.ErrSettlementFailed, err)
		}
		return nil, err
	}

	if winnerID == b.WinClaimerID {
		metrics.DisputesTotal.WithLabelValues("overturned").Inc()
	} else {
		metrics.DisputesTotal.WithLabelValues("upheld").Inc()
	}
	s.push(ctx, d.RaisedByID, notify.TypeDisputeClosed, b.ID,
		fmt.Sprintf("Your dispute on bet %q was resolved", b.Title))

	return &dispute.Resolution{WinnerID: winnerID, SettlementRef: b.ResolutionTxHash}, nil
}

// resolve pays the winner double the stake and finalizes the bet.
// Caller holds the bet lock; expect is the bet's current status.
func (s *Service) resolve(ctx context.Context, b *Bet, expect Status, winnerID string, mode reputation.Event, actorID string, extraEvents ...*BetEvent) error {
	return s.resolveWithDispute(ctx, b, expect, winnerID, mode, actorID, nil, extraEvents...)
}

func (s *Service) resolveWithDispute(ctx context.Context, b *Bet, expect Status, winnerID string, mode reputation.Event, actorID string, d *dispute.Dispute, extraEvents ...*BetEvent) error {
	winner, err := s.agents.Get(ctx, winnerID)
	if err != nil {
		return err
	}
	payout, ok := usdc.Double(b.Stake)
	if !ok {
		return ErrInvalidStake
	}

	// Crash-safe in-flight marker before moving money
	b.Status = StatusResolving
	b.UpdatedAt = time.Now()
	if err := s.store.UpdateBet(ctx, b, expect); err != nil {
		return err
	}

	receipt, err := s.settle.Payout(ctx, winner.PayoutAddress, payout, b.ID+":resolve")
	if err != nil {
		metrics.SettlementsTotal.WithLabelValues("payout", "error").Inc()
		// Revert the marker; no ledger row changed
		b.Status = expect
		b.UpdatedAt = time.Now()
		if revertErr := s.store.UpdateBet(ctx, b, StatusResolving); revertErr != nil {
			logging.L(ctx).Error("CRITICAL: failed to revert resolving marker",
				"bet_id", b.ID, "error", revertErr)
		}
		return fmt.Errorf("%w: %v", ErrSettlementFailed, err)
	}
	metrics.SettlementsTotal.WithLabelValues("payout", "ok").Inc()

	now := time.Now()
	b.Status = StatusResolved
	b.WinnerID = winnerID
	b.ResolutionTxHash = receipt.TxRef
	b.ResolvedAt = &now
	b.UpdatedAt = now

	resolved := newEvent(b.ID, actorID, EventResolved, ResolvedPayload{
		WinnerID:      winnerID,
		SettlementRef: receipt.TxRef,
		Mode:          resolutionMode(mode),
	})
	events := append(extraEvents, resolved)

	// Funds already moved; the record must follow.
	if err := retry.Do(ctx, 3, 100*time.Millisecond, func() error {
		if d != nil {
			return s.store.ResolveDispute(ctx, d, b, StatusResolving, events...)
		}
		return s.store.UpdateBet(ctx, b, StatusResolving, events...)
	}); err != nil {
		logging.L(ctx).Error("CRITICAL: payout settled but bet record is stale",
			"bet_id", b.ID, "winner_id", winnerID, "tx_ref", receipt.TxRef, "error", err)
		return fmt.Errorf("failed to record resolution after payout (requires manual resolution): %w", err)
	}

	loserID := b.OtherParticipant(winnerID)
	_ = s.agents.RecordOutcome(ctx, winnerID, mode, true, payout)
	_ = s.agents.RecordOutcome(ctx, loserID, mode, false, "")

	s.push(ctx, winnerID, notify.TypeBetResolved, b.ID,
		fmt.Sprintf("You won bet %q; %s USDC paid out", b.Title, payout))
	s.push(ctx, loserID, notify.TypeBetResolved, b.ID,
		fmt.Sprintf("Bet %q was resolved against you", b.Title))

	metrics.BetsResolvedTotal.Inc()
	metrics.BetTransitionsTotal.WithLabelValues(string(StatusResolved)).Inc()
	metrics.BetDuration.Observe(now.Sub(b.CreatedAt).Seconds())
	s.broadcast(resolved)

	return nil
}

func resolutionMode(mode reputation.Event) string {
	switch mode {
	case reputation.EventConcede:
		return "concede"
	case reputation.EventDisputeResolved:
		return "dispute"
	case reputation.EventClaimTimeout:
		return "timeout"
	}
	return string(mode)
}

// Get returns a bet by ID.
func (s *Service) Get(ctx context.Context, id string) (*Bet, error) {
	return s.store.GetBet(ctx, id)
}

// Feed returns recent bets for the public feed.
func (s *Service) Feed(ctx context.Context, q FeedQuery) ([]*Bet, error) {
	if q.Limit <= 0 || q.Limit > 200 {
		q.Limit = 50
	}
	return s.store.ListFeed(ctx, q)
}

// Mine returns bets the agent participates in, newest first.
func (s *Service) Mine(ctx context.Context, agentID string, limit int) ([]*Bet, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	return s.store.ListByAgent(ctx, agentID, limit)
}

// Events returns a bet's audit log in insertion order.
func (s *Service) Events(ctx context.Context, betID string) ([]*BetEvent, error) {
	if _, err := s.store.GetBet(ctx, betID); err != nil {
		return nil, err
	}
	return s.store.ListEvents(ctx, betID)
}

// expireOffer cancels and refunds one expired open bet. Called by the
// sweep timer.
func (s *Service) expireOffer(ctx context.Context, betID string) error {
	unlock := s.lockBet(betID)
	defer unlock()

	b, err := s.store.GetBet(ctx, betID)
	if err != nil {
		return err
	}
	if b.Status != StatusOpen || !b.Expired(time.Now()) {
		return ErrInvalidState
	}

	if err := s.cancel(ctx, b, "system", "expired"); err != nil {
		return err
	}
	s.push(ctx, b.ProposerID, notify.TypeBetCancelled, b.ID,
		fmt.Sprintf("Your bet %q expired without a counter; stake refunded", b.Title))
	return nil
}

// resolveClaimTimeout resolves one win_claimed bet in the claimer's
// favor after the dispute window lapsed undisputed. Called by the
// sweep timer.
func (s *Service) resolveClaimTimeout(ctx context.Context, betID string) error {
	unlock := s.lockBet(betID)
	defer unlock()

	b, err := s.store.GetBet(ctx, betID)
	if err != nil {
		return err
	}
	if b.Status != StatusWinClaimed || b.WinClaimedAt == nil {
		return ErrInvalidState
	}
	if time.Since(*b.WinClaimedAt) < s.disputeWindow {
		return ErrInvalidState
	}

	return s.resolve(ctx, b, StatusWinClaimed, b.WinClaimerID, reputation.EventClaimTimeout, "system")
}

// refund is a best-effort compensating refund; failures are logged for
// manual follow-up rather than surfaced to the caller.
func (s *Service) refund(ctx context.Context, to, amount, reference string) {
	err := retry.Do(ctx, 3, 100*time.Millisecond, func() error {
		_, err := s.settle.Refund(ctx, to, amount, reference)
		return err
	})
	if err != nil {
		metrics.SettlementsTotal.WithLabelValues("refund", "error").Inc()
		logging.L(ctx).Error("CRITICAL: compensating refund failed",
			"to", to, "amount", amount, "reference", reference, "error", err)
		return
	}
	metrics.SettlementsTotal.WithLabelValues("refund", "ok").Inc()
}

// refundProposeStake returns a collected propose stake when the bet was
// rejected after payment. A blank escrowTx means nothing was collected.
func (s *Service) refundProposeStake(ctx context.Context, proposerID, stake, escrowTx string) {
	if escrowTx == "" {
		return
	}
	if raw, ok := usdc.Parse(stake); !ok || raw.Sign() <= 0 {
		logging.L(ctx).Error("CRITICAL: paid stake is unparseable, cannot refund",
			"agent_id", proposerID, "stake", stake, "escrow_tx", escrowTx)
		return
	}
	a, err := s.agents.Get(ctx, proposerID)
	if err != nil {
		logging.L(ctx).Error("CRITICAL: cannot refund stake, agent lookup failed",
			"agent_id", proposerID, "escrow_tx", escrowTx, "error", err)
		return
	}
	s.refund(ctx, a.PayoutAddress, usdc.Normalize(stake), "propose:refund:"+escrowTx)
}

// refundCounterStake returns a collected counter stake when the match
// was rejected before the bet row was read under the lock.
func (s *Service) refundCounterStake(ctx context.Context, betID, agentID, escrowTx string) {
	if escrowTx == "" {
		return
	}
	a, err := s.agents.Get(ctx, agentID)
	if err != nil {
		logging.L(ctx).Error("CRITICAL: cannot refund counter stake, agent lookup failed",
			"bet_id", betID, "agent_id", agentID, "escrow_tx", escrowTx, "error", err)
		return
	}
	b, err := s.store.GetBet(ctx, betID)
	if err != nil {
		logging.L(ctx).Error("CRITICAL: cannot price counter refund, bet lookup failed",
			"bet_id", betID, "agent_id", agentID, "escrow_tx", escrowTx, "error", err)
		return
	}
	s.refund(ctx, a.PayoutAddress, b.Stake, counterRefundRef(betID, escrowTx))
}

// counterRefundRef keys a counter refund to the payment it reverses, so
// repeat payments from the same agent refund independently.
func counterRefundRef(betID, escrowTx string) string {
	return betID + ":counter:refund:" + escrowTx
}

func (s *Service) push(ctx context.Context, agentID string, typ notify.Type, betID, message string) {
	if s.notify == nil || agentID == "" {
		return
	}
	if _, err := s.notify.Push(ctx, agentID, typ, betID, message); err != nil {
		logging.L(ctx).Warn("notification delivery failed", "agent_id", agentID, "error", err)
	}
}

func (s *Service) broadcast(ev *BetEvent) {
	if s.feed != nil && ev != nil {
		s.feed.Broadcast(ev)
	}
}
