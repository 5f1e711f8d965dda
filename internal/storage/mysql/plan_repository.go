package mysql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

// ErrNotFound 表示记录不存在。
var ErrNotFound = errors.New("record not found")

// PlanRow 是一条被固定的再平衡计划。Payload 为调用方自行编码的计划内容。
type PlanRow struct {
	Token     string
	Owner     string
	Payload   []byte
	CreatedAt int64
	ExpiresAt int64
}

// PlanRepository 负责 rebalance_plans 表的读写。
type PlanRepository struct {
	db *sql.DB
}

// NewPlanRepository 建立连接池并执行迁移。
func NewPlanRepository(ctx context.Context, cfg Config) (*PlanRepository, error) {
	db, err := openDatabase(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if err := Migrate(ctx, db); err != nil {
		db.Close()
		return nil, err
	}
	return &PlanRepository{db: db}, nil
}

// NewPlanRepositoryWithDB 复用已有连接，不执行迁移。
func NewPlanRepositoryWithDB(db *sql.DB) *PlanRepository {
	return &PlanRepository{db: db}
}

// Save 写入或覆盖一条计划。
func (r *PlanRepository) Save(ctx context.Context, row PlanRow) error {
	if strings.TrimSpace(row.Token) == "" {
		return errors.New("计划 token 不能为空")
	}
	const stmt = `INSERT INTO rebalance_plans (token, owner, payload, created_at, expires_at)
        VALUES (?, ?, ?, ?, ?)
        ON DUPLICATE KEY UPDATE owner = VALUES(owner), payload = VALUES(payload), expires_at = VALUES(expires_at)`
	if _, err := r.db.ExecContext(ctx, stmt, row.Token, row.Owner, row.Payload, row.CreatedAt, row.ExpiresAt); err != nil {
		return fmt.Errorf("写入计划失败: %w", err)
	}
	return nil
}

// Get 按 token 读取计划，过期判断由调用方完成。
func (r *PlanRepository) Get(ctx context.Context, token string) (*PlanRow, error) {
	const query = `SELECT token, owner, payload, created_at, expires_at FROM rebalance_plans WHERE token = ?`
	var row PlanRow
	err := r.db.QueryRowContext(ctx, query, token).Scan(&row.Token, &row.Owner, &row.Payload, &row.CreatedAt, &row.ExpiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("读取计划失败: %w", err)
	}
	return &row, nil
}

// DeleteExpired 清理 expires_at 不晚于 now 的计划，返回删除条数。
func (r *PlanRepository) DeleteExpired(ctx context.Context, now int64) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM rebalance_plans WHERE expires_at <= ?`, now)
	if err != nil {
		return 0, fmt.Errorf("清理过期计划失败: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, nil
	}
	return affected, nil
}

// Close 关闭连接池。
func (r *PlanRepository) Close() error {
	if r == nil || r.db == nil {
		return nil
	}
	return r.db.Close()
}
