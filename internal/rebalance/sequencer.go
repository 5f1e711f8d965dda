package rebalance

import (
	"context"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"go.uber.org/zap"

	xerrors "OpenRebalancer/internal/errors"
	"OpenRebalancer/internal/events"
	"OpenRebalancer/internal/observability/metrics"
	"OpenRebalancer/internal/portfolio"
	"OpenRebalancer/internal/txbuilder"
	"OpenRebalancer/pkg/logger"
)

// DefaultPlanTTL is how long a pinned plan stays addressable by token.
const DefaultPlanTTL = 10 * time.Minute

// SnapshotSource builds a fresh valuation of an address.
type SnapshotSource interface {
	Build(ctx context.Context, owner common.Address) (*portfolio.Snapshot, error)
}

// SkeletonBuilder turns one action into an unsigned transaction.
type SkeletonBuilder interface {
	Build(ctx context.Context, req txbuilder.Request) (*txbuilder.TransactionSkeleton, error)
}

// PlanRequest asks for the full plan.
type PlanRequest struct {
	Address    common.Address
	Allocation Allocation
}

// StepRequest asks for the skeleton of action Cursor. With a PlanToken the
// pinned plan is used; without one the plan is recomputed from fresh data.
type StepRequest struct {
	Address    common.Address
	Allocation Allocation
	Cursor     int
	PlanToken  string
}

// StepResult is one executed cursor position.
type StepResult struct {
	PlanToken    string
	Cursor       int
	Action       Action
	Transaction  *txbuilder.TransactionSkeleton
	NextCursor   int
	TotalActions int
}

// Sequencer serves plan and step requests. It holds no cursor state; the
// only state is the optional pinned plan.
type Sequencer struct {
	snapshots SnapshotSource
	planner   *Planner
	skeletons SkeletonBuilder
	store     PlanStore
	ttl       time.Duration
	publisher events.Publisher
	logger    *zap.Logger
	audit     *zap.Logger
	newToken  func() string
	now       func() time.Time
}

// SequencerOption customises a Sequencer.
type SequencerOption func(*Sequencer)

// WithPlanStore enables plan tokens. A non-positive ttl uses DefaultPlanTTL.
func WithPlanStore(store PlanStore, ttl time.Duration) SequencerOption {
	return func(s *Sequencer) {
		s.store = store
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

// WithPublisher sets where transaction_ready events go.
func WithPublisher(p events.Publisher) SequencerOption {
	return func(s *Sequencer) {
		if p != nil {
			s.publisher = p
		}
	}
}

// WithSequencerLogger sets the operational logger.
func WithSequencerLogger(l *zap.Logger) SequencerOption {
	return func(s *Sequencer) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithAuditLogger sets the logger that records every prepared transaction.
func WithAuditLogger(l *zap.Logger) SequencerOption {
	return func(s *Sequencer) {
		if l != nil {
			s.audit = l
		}
	}
}

// WithTokenGenerator overrides uuid plan tokens.
func WithTokenGenerator(fn func() string) SequencerOption {
	return func(s *Sequencer) {
		if fn != nil {
			s.newToken = fn
		}
	}
}

// NewSequencer wires the protocol.
func NewSequencer(snapshots SnapshotSource, planner *Planner, skeletons SkeletonBuilder, opts ...SequencerOption) *Sequencer {
	s := &Sequencer{
		snapshots: snapshots,
		planner:   planner,
		skeletons: skeletons,
		ttl:       DefaultPlanTTL,
		publisher: events.NoopPublisher{},
		logger:    logger.Named("rebalance"),
		audit:     logger.Audit(),
		newToken:  uuid.NewString,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// PlanTokensEnabled reports whether plans are pinned.
func (s *Sequencer) PlanTokensEnabled() bool { return s.store != nil }

// Plan builds a fresh snapshot, computes the plan and pins it when a store
// is configured.
func (s *Sequencer) Plan(ctx context.Context, req PlanRequest) (*Plan, error) {
	plan, err := s.compute(ctx, req.Address, req.Allocation)
	if err != nil {
		return nil, err
	}
	if s.store != nil {
		plan.Token = s.newToken()
		if err := s.store.Save(ctx, plan, s.ttl); err != nil {
			return nil, err
		}
	}
	s.logger.Info("rebalance plan ready",
		zap.String("address", req.Address.Hex()),
		zap.String("plan_token", plan.Token),
		zap.Int("total_actions", plan.Len()),
		zap.String("total_value", plan.Snapshot.TotalValue().String()))
	return plan, nil
}

// Step returns the skeleton for action req.Cursor.
func (s *Sequencer) Step(ctx context.Context, req StepRequest) (*StepResult, error) {
	if req.Cursor < 0 {
		return nil, xerrors.New(xerrors.CodeIndexOutOfRange, "action index out of range",
			xerrors.WithMetadata("index", strconv.Itoa(req.Cursor)))
	}

	plan, err := s.resolve(ctx, req)
	if err != nil {
		return nil, err
	}
	action, err := plan.At(req.Cursor)
	if err != nil {
		return nil, err
	}

	skeleton, err := s.skeletons.Build(ctx, txbuilder.Request{
		From:      req.Address,
		Symbol:    action.Symbol,
		AmountUSD: action.AmountUSD,
	})
	if err != nil {
		return nil, err
	}

	result := &StepResult{
		PlanToken:    plan.Token,
		Cursor:       req.Cursor,
		Action:       action,
		Transaction:  skeleton,
		NextCursor:   plan.NextCursor(req.Cursor),
		TotalActions: plan.Len(),
	}
	metrics.RecordTransaction(action.Symbol, string(action.Direction))
	s.record(result)
	s.publish(ctx, req.Address, result)
	return result, nil
}

func (s *Sequencer) compute(ctx context.Context, owner common.Address, allocation Allocation) (*Plan, error) {
	if len(allocation) == 0 {
		return nil, xerrors.New(xerrors.CodeMissingAllocations, "no target allocations provided")
	}
	snapshot, err := s.snapshots.Build(ctx, owner)
	if err != nil {
		return nil, err
	}
	plan := s.planner.Plan(snapshot, allocation)
	metrics.RecordPlan(plan.Len())
	return plan, nil
}

func (s *Sequencer) resolve(ctx context.Context, req StepRequest) (*Plan, error) {
	if req.PlanToken == "" {
		return s.compute(ctx, req.Address, req.Allocation)
	}
	if s.store == nil {
		return nil, xerrors.New(xerrors.CodePlanNotFound, "plan tokens are disabled on this server")
	}
	plan, err := s.store.Load(ctx, req.PlanToken)
	if err != nil {
		return nil, err
	}
	if plan.Owner != req.Address {
		return nil, xerrors.New(xerrors.CodePlanMismatch, "plan was computed for a different address")
	}
	if len(req.Allocation) > 0 && !sameAllocation(plan.Allocation, req.Allocation) {
		return nil, xerrors.New(xerrors.CodePlanMismatch, "plan was computed for a different allocation")
	}
	return plan, nil
}

func sameAllocation(a, b Allocation) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].Symbol != b[i].Symbol || !a[i].Percent.Equal(b[i].Percent) {
			return false
		}
	}
	return true
}

func (s *Sequencer) record(result *StepResult) {
	tx := result.Transaction
	s.audit.Info("transaction skeleton prepared",
		zap.String("plan_token", result.PlanToken),
		zap.String("from", tx.From.Hex()),
		zap.String("to", tx.To.Hex()),
		zap.Int("action_index", result.Cursor),
		zap.String("symbol", result.Action.Symbol),
		zap.String("direction", string(result.Action.Direction)),
		zap.String("amount_usd", result.Action.AmountUSD.String()),
		zap.String("value_wei", tx.Value.String()),
		zap.Uint64("nonce", tx.Nonce),
		zap.String("signing_hash", tx.SigningHash().Hex()))
}

func (s *Sequencer) publish(ctx context.Context, owner common.Address, result *StepResult) {
	event := events.TransactionReady{
		Type:        events.TypeTransactionReady,
		PlanToken:   result.PlanToken,
		Address:     owner.Hex(),
		ActionIndex: result.Cursor,
		NextIndex:   result.NextCursor,
		Symbol:      result.Action.Symbol,
		Direction:   string(result.Action.Direction),
		AmountUSD:   result.Action.AmountUSD.String(),
		Transaction: result.Transaction,
		OccurredAt:  s.now().UTC(),
	}
	if err := s.publisher.Publish(ctx, event); err != nil {
		s.logger.Warn("failed to publish transaction_ready event",
			zap.String("address", event.Address),
			zap.Int("action_index", event.ActionIndex),
			zap.Error(err))
	}
}
