package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/simaogato/wealthflow-planner/internal/domain"
)

type planRepository struct {
	db *DB
}

// NewPlanRepository creates a confirmed plan repository backed by SQLite
func NewPlanRepository(db *DB) domain.PlanRepository {
	return &planRepository{db: db}
}

func (r *planRepository) Save(ctx context.Context, plan *domain.ConfirmedPlan) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO confirmed_plans (id, session_id, monthly_income, confirmed_at) VALUES (?, ?, ?, ?)`,
		plan.ID.String(),
		plan.SessionID.String(),
		plan.MonthlyIncome.String(),
		formatTime(plan.ConfirmedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to insert confirmed plan: %w", err)
	}

	for i, b := range plan.Buckets {
		categories, err := encodeList(b.LinkedCategories)
		if err != nil {
			return err
		}
		accounts, err := encodeList(b.LinkedAccountIDs)
		if err != nil {
			return err
		}

		var target, months any
		if b.TargetAmount != nil {
			target = b.TargetAmount.String()
		}
		if b.MonthsToTarget != nil {
			months = *b.MonthsToTarget
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO confirmed_plan_buckets (
				id, plan_id, position, name, bucket_type,
				allocated_amount, recommended_amount, change_from_original, is_modifiable,
				linked_categories, linked_account_ids, target_amount, months_to_target
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			b.ID.String(),
			plan.ID.String(),
			i,
			b.Name,
			string(b.Type),
			b.AllocatedAmount.String(),
			b.RecommendedAmount.String(),
			b.ChangeFromOriginal.String(),
			b.IsModifiable,
			categories,
			accounts,
			target,
			months,
		)
		if err != nil {
			return fmt.Errorf("failed to insert bucket %s: %w", b.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit confirmed plan: %w", err)
	}
	return nil
}

func (r *planRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.ConfirmedPlan, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, session_id, monthly_income, confirmed_at FROM confirmed_plans WHERE id = ?`,
		id.String(),
	)
	plan, err := scanPlan(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("confirmed plan %s: %w", id, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get confirmed plan: %w", err)
	}

	if plan.Buckets, err = r.buckets(ctx, plan.ID); err != nil {
		return nil, err
	}
	return plan, nil
}

func (r *planRepository) List(ctx context.Context, limit int) ([]*domain.ConfirmedPlan, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, session_id, monthly_income, confirmed_at FROM confirmed_plans ORDER BY confirmed_at DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list confirmed plans: %w", err)
	}

	var plans []*domain.ConfirmedPlan
	for rows.Next() {
		plan, err := scanPlan(rows)
		if err != nil {
			_ = rows.Close()
			return nil, fmt.Errorf("failed to scan confirmed plan: %w", err)
		}
		plans = append(plans, plan)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, fmt.Errorf("error iterating confirmed plans: %w", err)
	}
	// Release the connection before the bucket queries; in-memory stores
	// only have one.
	_ = rows.Close()

	for _, plan := range plans {
		if plan.Buckets, err = r.buckets(ctx, plan.ID); err != nil {
			return nil, err
		}
	}
	return plans, nil
}

func (r *planRepository) buckets(ctx context.Context, planID uuid.UUID) ([]domain.AllocationBucket, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, name, bucket_type,
			allocated_amount, recommended_amount, change_from_original, is_modifiable,
			linked_categories, linked_account_ids, target_amount, months_to_target
		FROM confirmed_plan_buckets
		WHERE plan_id = ?
		ORDER BY position`,
		planID.String(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load plan buckets: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []domain.AllocationBucket
	for rows.Next() {
		var (
			b                              domain.AllocationBucket
			id, bucketType                 string
			allocated, recommended, change string
			categories, accounts           string
			target                         sql.NullString
			months                         sql.NullInt64
		)
		err := rows.Scan(&id, &b.Name, &bucketType,
			&allocated, &recommended, &change, &b.IsModifiable,
			&categories, &accounts, &target, &months)
		if err != nil {
			return nil, fmt.Errorf("failed to scan plan bucket: %w", err)
		}

		if b.ID, err = uuid.Parse(id); err != nil {
			return nil, fmt.Errorf("failed to parse bucket id: %w", err)
		}
		b.Type = domain.BucketType(bucketType)
		if b.AllocatedAmount, err = decimal.NewFromString(allocated); err != nil {
			return nil, fmt.Errorf("failed to parse allocated_amount: %w", err)
		}
		if b.RecommendedAmount, err = decimal.NewFromString(recommended); err != nil {
			return nil, fmt.Errorf("failed to parse recommended_amount: %w", err)
		}
		if b.ChangeFromOriginal, err = decimal.NewFromString(change); err != nil {
			return nil, fmt.Errorf("failed to parse change_from_original: %w", err)
		}
		if b.LinkedCategories, err = decodeList(categories); err != nil {
			return nil, err
		}
		if b.LinkedAccountIDs, err = decodeList(accounts); err != nil {
			return nil, err
		}
		if target.Valid {
			t, err := decimal.NewFromString(target.String)
			if err != nil {
				return nil, fmt.Errorf("failed to parse target_amount: %w", err)
			}
			b.TargetAmount = &t
		}
		if months.Valid {
			m := int(months.Int64)
			b.MonthsToTarget = &m
		}
		b.Acknowledged = true

		out = append(out, b)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPlan(row rowScanner) (*domain.ConfirmedPlan, error) {
	var id, sessionID, income, confirmedAt string
	if err := row.Scan(&id, &sessionID, &income, &confirmedAt); err != nil {
		return nil, err
	}

	var plan domain.ConfirmedPlan
	var err error
	if plan.ID, err = uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("failed to parse plan id: %w", err)
	}
	if plan.SessionID, err = uuid.Parse(sessionID); err != nil {
		return nil, fmt.Errorf("failed to parse session id: %w", err)
	}
	if plan.MonthlyIncome, err = decimal.NewFromString(income); err != nil {
		return nil, fmt.Errorf("failed to parse monthly_income: %w", err)
	}
	if plan.ConfirmedAt, err = parseTime(confirmedAt); err != nil {
		return nil, err
	}
	return &plan, nil
}

func encodeList(items []string) (string, error) {
	if items == nil {
		items = []string{}
	}
	raw, err := json.Marshal(items)
	if err != nil {
		return "", fmt.Errorf("failed to encode list: %w", err)
	}
	return string(raw), nil
}

func decodeList(raw string) ([]string, error) {
	var items []string
	if err := json.Unmarshal([]byte(raw), &items); err != nil {
		return nil, fmt.Errorf("failed to decode list: %w", err)
	}
	if len(items) == 0 {
		return nil, nil
	}
	return items, nil
}
