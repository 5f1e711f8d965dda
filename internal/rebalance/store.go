package rebalance

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	xerrors "OpenRebalancer/internal/errors"
	"OpenRebalancer/internal/portfolio"
)

// ErrPlanNotFound is returned for unknown or expired plan tokens.
var ErrPlanNotFound = xerrors.New(xerrors.CodePlanNotFound, "plan not found or expired")

// PlanStore pins plans under their token for a limited time.
type PlanStore interface {
	Save(ctx context.Context, plan *Plan, ttl time.Duration) error
	Load(ctx context.Context, token string) (*Plan, error)
	Close() error
}

type holdingRecord struct {
	Symbol string          `json:"symbol"`
	Amount decimal.Decimal `json:"amount"`
	Price  decimal.Decimal `json:"price"`
}

type planRecord struct {
	Token      string          `json:"token"`
	Owner      common.Address  `json:"owner"`
	CreatedAt  time.Time       `json:"created_at"`
	TakenAt    time.Time       `json:"taken_at"`
	Allocation []Target        `json:"allocation"`
	Holdings   []holdingRecord `json:"holdings"`
	Actions    []Action        `json:"actions"`
}

func encodePlan(plan *Plan) ([]byte, error) {
	if plan == nil || plan.Token == "" {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "plan token is required")
	}
	record := planRecord{
		Token:      plan.Token,
		Owner:      plan.Owner,
		CreatedAt:  plan.CreatedAt,
		Allocation: []Target(plan.Allocation),
		Actions:    plan.Actions,
	}
	if plan.Snapshot != nil {
		record.TakenAt = plan.Snapshot.TakenAt()
		for _, h := range plan.Snapshot.Holdings() {
			record.Holdings = append(record.Holdings, holdingRecord{Symbol: h.Symbol(), Amount: h.Amount(), Price: h.UnitPrice()})
		}
	}
	payload, err := json.Marshal(record)
	if err != nil {
		return nil, fmt.Errorf("encode plan %s: %w", plan.Token, err)
	}
	return payload, nil
}

func decodePlan(payload []byte) (*Plan, error) {
	var record planRecord
	if err := json.Unmarshal(payload, &record); err != nil {
		return nil, fmt.Errorf("decode plan: %w", err)
	}
	holdings := make([]portfolio.Holding, 0, len(record.Holdings))
	for _, h := range record.Holdings {
		holdings = append(holdings, portfolio.NewHolding(h.Symbol, h.Amount, h.Price))
	}
	actions := record.Actions
	if actions == nil {
		actions = []Action{}
	}
	return &Plan{
		Token:      record.Token,
		Owner:      record.Owner,
		Actions:    actions,
		Snapshot:   portfolio.NewSnapshot(record.Owner, holdings, record.TakenAt),
		Allocation: Allocation(record.Allocation),
		CreatedAt:  record.CreatedAt,
	}, nil
}

func storageFailure(err error, message string) error {
	return xerrors.Wrap(xerrors.CodeStorageFailure, err, message)
}
