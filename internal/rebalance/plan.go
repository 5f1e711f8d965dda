// Package rebalance computes rebalance plans and walks them one action at a
// time.
package rebalance

import (
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	xerrors "OpenRebalancer/internal/errors"
	"OpenRebalancer/internal/portfolio"
)

// DefaultThreshold is the absolute USD difference at or below which no
// action is emitted.
var DefaultThreshold = decimal.New(1, -2)

var hundred = decimal.NewFromInt(100)

// Direction of a rebalance action.
type Direction string

const (
	Buy  Direction = "buy"
	Sell Direction = "sell"
)

// Action moves one symbol's value towards its target.
type Action struct {
	Symbol          string          `json:"symbol"`
	Direction       Direction       `json:"direction"`
	AmountUSD       decimal.Decimal `json:"amount_usd"`
	CurrentValueUSD decimal.Decimal `json:"current_value_usd"`
	TargetValueUSD  decimal.Decimal `json:"target_value_usd"`
}

// Plan is the ordered list of actions derived from one snapshot and one
// allocation. Token is set once the plan has been pinned in a store.
type Plan struct {
	Token      string
	Owner      common.Address
	Actions    []Action
	Snapshot   *portfolio.Snapshot
	Allocation Allocation
	CreatedAt  time.Time
}

// Len returns the number of actions.
func (p *Plan) Len() int { return len(p.Actions) }

// At returns action i or INDEX_OUT_OF_RANGE.
func (p *Plan) At(i int) (Action, error) {
	if i < 0 || i >= len(p.Actions) {
		return Action{}, xerrors.New(xerrors.CodeIndexOutOfRange,
			"action index out of range",
			xerrors.WithMetadata("index", strconv.Itoa(i)),
			xerrors.WithMetadata("total_actions", strconv.Itoa(len(p.Actions))))
	}
	return p.Actions[i], nil
}

// NextCursor is i+1, or -1 once i is the last action.
func (p *Plan) NextCursor(i int) int {
	if i+1 < len(p.Actions) {
		return i + 1
	}
	return -1
}

// Planner is a pure function from snapshot and allocation to plan.
type Planner struct {
	threshold decimal.Decimal
}

// PlannerOption customises a Planner.
type PlannerOption func(*Planner)

// WithThreshold replaces DefaultThreshold. Negative values are ignored.
func WithThreshold(threshold decimal.Decimal) PlannerOption {
	return func(p *Planner) {
		if !threshold.IsNegative() {
			p.threshold = threshold
		}
	}
}

// NewPlanner builds a planner.
func NewPlanner(opts ...PlannerOption) *Planner {
	p := &Planner{threshold: DefaultThreshold}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Threshold reports the configured action threshold.
func (p *Planner) Threshold() decimal.Decimal { return p.threshold }

// Plan walks allocation in order. A target missing from the snapshot counts
// as zero current value; holdings without a target are left alone. An action
// is emitted only when |target - current| is strictly above the threshold.
func (p *Planner) Plan(snapshot *portfolio.Snapshot, allocation Allocation) *Plan {
	total := snapshot.TotalValue()
	actions := make([]Action, 0, len(allocation))
	for _, target := range allocation {
		targetValue := total.Mul(target.Percent).Div(hundred)
		currentValue := decimal.Zero
		if holding, ok := snapshot.Holding(target.Symbol); ok {
			currentValue = holding.Value()
		}

		diff := targetValue.Sub(currentValue)
		if diff.Abs().LessThanOrEqual(p.threshold) {
			continue
		}
		direction := Buy
		if diff.IsNegative() {
			direction = Sell
		}
		actions = append(actions, Action{
			Symbol:          target.Symbol,
			Direction:       direction,
			AmountUSD:       diff.Abs(),
			CurrentValueUSD: currentValue,
			TargetValueUSD:  targetValue,
		})
	}

	return &Plan{
		Owner:      snapshot.Owner(),
		Actions:    actions,
		Snapshot:   snapshot,
		Allocation: append(Allocation(nil), allocation...),
		CreatedAt:  snapshot.TakenAt(),
	}
}
