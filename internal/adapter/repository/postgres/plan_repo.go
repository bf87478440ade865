package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"github.com/simaogato/wealthflow-planner/internal/domain"
)

// planRepository implements domain.PlanRepository
type planRepository struct {
	db *DB
}

// NewPlanRepository creates a new confirmed plan repository
func NewPlanRepository(db *DB) domain.PlanRepository {
	return &planRepository{db: db}
}

// Save stores the plan header and its buckets in one transaction
func (r *planRepository) Save(ctx context.Context, plan *domain.ConfirmedPlan) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO confirmed_plans (id, session_id, monthly_income, confirmed_at)
		VALUES ($1, $2, $3, $4)
	`,
		plan.ID,
		plan.SessionID,
		plan.MonthlyIncome.String(),
		plan.ConfirmedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert confirmed plan: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO confirmed_plan_buckets (
			id, plan_id, position, name, bucket_type,
			allocated_amount, recommended_amount, change_from_original, is_modifiable,
			linked_categories, linked_account_ids, target_amount, months_to_target
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare bucket insert: %w", err)
	}
	defer stmt.Close()

	for i, b := range plan.Buckets {
		var target, months interface{}
		if b.TargetAmount != nil {
			target = b.TargetAmount.String()
		}
		if b.MonthsToTarget != nil {
			months = *b.MonthsToTarget
		}

		_, err := stmt.ExecContext(ctx,
			b.ID,
			plan.ID,
			i,
			b.Name,
			string(b.Type),
			b.AllocatedAmount.String(),
			b.RecommendedAmount.String(),
			b.ChangeFromOriginal.String(),
			b.IsModifiable,
			pq.Array(nonNil(b.LinkedCategories)),
			pq.Array(nonNil(b.LinkedAccountIDs)),
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

// GetByID retrieves a confirmed plan with its buckets
func (r *planRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.ConfirmedPlan, error) {
	query := `
		SELECT id, session_id, monthly_income, confirmed_at
		FROM confirmed_plans
		WHERE id = $1
	`

	plan, err := scanPlan(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("confirmed plan %s: %w", id, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get confirmed plan: %w", err)
	}

	buckets, err := r.loadBuckets(ctx, []uuid.UUID{plan.ID})
	if err != nil {
		return nil, err
	}
	plan.Buckets = buckets[plan.ID]

	return plan, nil
}

// List retrieves the most recently confirmed plans, newest first
func (r *planRepository) List(ctx context.Context, limit int) ([]*domain.ConfirmedPlan, error) {
	query := `
		SELECT id, session_id, monthly_income, confirmed_at
		FROM confirmed_plans
		ORDER BY confirmed_at DESC
		LIMIT $1
	`

	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list confirmed plans: %w", err)
	}
	defer rows.Close()

	var plans []*domain.ConfirmedPlan
	var ids []uuid.UUID
	for rows.Next() {
		plan, err := scanPlan(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan confirmed plan: %w", err)
		}
		plans = append(plans, plan)
		ids = append(ids, plan.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating confirmed plans: %w", err)
	}

	if len(plans) == 0 {
		return plans, nil
	}

	buckets, err := r.loadBuckets(ctx, ids)
	if err != nil {
		return nil, err
	}
	for _, plan := range plans {
		plan.Buckets = buckets[plan.ID]
	}

	return plans, nil
}

// loadBuckets fetches the buckets of every given plan in one query
func (r *planRepository) loadBuckets(ctx context.Context, planIDs []uuid.UUID) (map[uuid.UUID][]domain.AllocationBucket, error) {
	query := `
		SELECT plan_id, id, name, bucket_type,
			allocated_amount, recommended_amount, change_from_original, is_modifiable,
			linked_categories, linked_account_ids, target_amount, months_to_target
		FROM confirmed_plan_buckets
		WHERE plan_id = ANY($1)
		ORDER BY plan_id, position
	`

	ids := make([]string, len(planIDs))
	for i, id := range planIDs {
		ids[i] = id.String()
	}

	rows, err := r.db.QueryContext(ctx, query, pq.Array(ids))
	if err != nil {
		return nil, fmt.Errorf("failed to load plan buckets: %w", err)
	}
	defer rows.Close()

	out := make(map[uuid.UUID][]domain.AllocationBucket, len(planIDs))
	for rows.Next() {
		var (
			planID                         uuid.UUID
			b                              domain.AllocationBucket
			bucketType                     string
			allocated, recommended, change string
			target                         sql.NullString
			months                         sql.NullInt64
		)

		err := rows.Scan(
			&planID,
			&b.ID,
			&b.Name,
			&bucketType,
			&allocated,
			&recommended,
			&change,
			&b.IsModifiable,
			pq.Array(&b.LinkedCategories),
			pq.Array(&b.LinkedAccountIDs),
			&target,
			&months,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan plan bucket: %w", err)
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

		out[planID] = append(out[planID], b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating plan buckets: %w", err)
	}

	return out, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPlan(row rowScanner) (*domain.ConfirmedPlan, error) {
	var plan domain.ConfirmedPlan
	var incomeStr string

	if err := row.Scan(&plan.ID, &plan.SessionID, &incomeStr, &plan.ConfirmedAt); err != nil {
		return nil, err
	}

	income, err := decimal.NewFromString(incomeStr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse monthly_income: %w", err)
	}
	plan.MonthlyIncome = income

	return &plan, nil
}

// nonNil keeps NOT NULL array columns happy
func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
