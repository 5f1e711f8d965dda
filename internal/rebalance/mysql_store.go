package rebalance

import (
	"context"
	"errors"
	"time"

	"OpenRebalancer/internal/config"
	mysqlstore "OpenRebalancer/internal/storage/mysql"
)

// PlanRepository is the persistence surface MySQLPlanStore needs.
type PlanRepository interface {
	Save(ctx context.Context, row mysqlstore.PlanRow) error
	Get(ctx context.Context, token string) (*mysqlstore.PlanRow, error)
	DeleteExpired(ctx context.Context, now int64) (int64, error)
	Close() error
}

// MySQLPlanStore pins plans in the rebalance_plans table.
type MySQLPlanStore struct {
	repo PlanRepository
	now  func() time.Time
}

// NewMySQLPlanStore opens the pool and applies migrations.
func NewMySQLPlanStore(ctx context.Context, cfg config.MySQLConfig) (*MySQLPlanStore, error) {
	repo, err := mysqlstore.NewPlanRepository(ctx, mysqlstore.Config{
		DSN:             cfg.DSN,
		MaxOpenConns:    cfg.MaxOpenConns,
		MaxIdleConns:    cfg.MaxIdleConns,
		ConnMaxLifetime: time.Duration(cfg.ConnMaxLifetimeSeconds) * time.Second,
	})
	if err != nil {
		return nil, storageFailure(err, "failed to open mysql plan store")
	}
	return NewMySQLPlanStoreWithRepository(repo), nil
}

// NewMySQLPlanStoreWithRepository wraps an existing repository.
func NewMySQLPlanStoreWithRepository(repo PlanRepository) *MySQLPlanStore {
	return &MySQLPlanStore{repo: repo, now: time.Now}
}

// Save implements PlanStore. Expired rows are purged first.
func (s *MySQLPlanStore) Save(ctx context.Context, plan *Plan, ttl time.Duration) error {
	payload, err := encodePlan(plan)
	if err != nil {
		return err
	}
	now := s.now()
	if _, err := s.repo.DeleteExpired(ctx, now.Unix()); err != nil {
		return storageFailure(err, "failed to purge expired plans")
	}
	row := mysqlstore.PlanRow{
		Token:     plan.Token,
		Owner:     plan.Owner.Hex(),
		Payload:   payload,
		CreatedAt: now.Unix(),
		ExpiresAt: now.Add(ttl).Unix(),
	}
	if err := s.repo.Save(ctx, row); err != nil {
		return storageFailure(err, "failed to pin plan in mysql")
	}
	return nil
}

// Load implements PlanStore.
func (s *MySQLPlanStore) Load(ctx context.Context, token string) (*Plan, error) {
	row, err := s.repo.Get(ctx, token)
	if errors.Is(err, mysqlstore.ErrNotFound) {
		return nil, ErrPlanNotFound
	}
	if err != nil {
		return nil, storageFailure(err, "failed to load plan from mysql")
	}
	if row.ExpiresAt <= s.now().Unix() {
		return nil, ErrPlanNotFound
	}
	plan, err := decodePlan(row.Payload)
	if err != nil {
		return nil, storageFailure(err, "stored plan is corrupt")
	}
	return plan, nil
}

// Close implements PlanStore.
func (s *MySQLPlanStore) Close() error { return s.repo.Close() }
