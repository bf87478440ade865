package grpc

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/simaogato/wealthflow-planner/internal/domain"
	"github.com/simaogato/wealthflow-planner/internal/usecase/planner"
	"github.com/simaogato/wealthflow-planner/internal/usecase/progress"
	"github.com/simaogato/wealthflow-planner/internal/usecase/rebalancer"
	"github.com/simaogato/wealthflow-planner/internal/usecase/validation"
)

// fields reads typed values out of a request document
type fields map[string]*structpb.Value

func (f fields) str(key string) string {
	if v, ok := f[key]; ok {
		return v.GetStringValue()
	}
	return ""
}

func (f fields) boolean(key string) bool {
	if v, ok := f[key]; ok {
		return v.GetBoolValue()
	}
	return false
}

func (f fields) has(key string) bool {
	v, ok := f[key]
	if !ok {
		return false
	}
	_, isNull := v.GetKind().(*structpb.Value_NullValue)
	return !isNull
}

func (f fields) uuid(key string) (uuid.UUID, error) {
	id, err := uuid.Parse(f.str(key))
	if err != nil {
		return uuid.Nil, status.Errorf(codes.InvalidArgument, "invalid %s format: %v", key, err)
	}
	return id, nil
}

func (f fields) optionalUUID(key string) (*uuid.UUID, error) {
	if f.str(key) == "" {
		return nil, nil
	}
	id, err := f.uuid(key)
	if err != nil {
		return nil, err
	}
	return &id, nil
}

// decimal accepts both "12.34" strings and JSON numbers
func (f fields) decimal(key string) (decimal.Decimal, error) {
	v, ok := f[key]
	if !ok {
		return decimal.Zero, status.Errorf(codes.InvalidArgument, "%s is required", key)
	}
	switch kind := v.GetKind().(type) {
	case *structpb.Value_StringValue:
		d, err := decimal.NewFromString(kind.StringValue)
		if err != nil {
			return decimal.Zero, status.Errorf(codes.InvalidArgument, "invalid %s format: %v", key, err)
		}
		return d, nil
	case *structpb.Value_NumberValue:
		return decimal.NewFromFloat(kind.NumberValue), nil
	default:
		return decimal.Zero, status.Errorf(codes.InvalidArgument, "invalid %s format: expected decimal string", key)
	}
}

func (f fields) optionalDecimal(key string) (*decimal.Decimal, error) {
	if !f.has(key) {
		return nil, nil
	}
	d, err := f.decimal(key)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func (f fields) strings(key string) []string {
	v, ok := f[key]
	if !ok {
		return nil
	}
	var out []string
	for _, item := range v.GetListValue().GetValues() {
		out = append(out, item.GetStringValue())
	}
	return out
}

func (f fields) list(key string) []fields {
	v, ok := f[key]
	if !ok {
		return nil
	}
	var out []fields
	for _, item := range v.GetListValue().GetValues() {
		out = append(out, fields(item.GetStructValue().GetFields()))
	}
	return out
}

func parseBucketType(f fields) (domain.BucketType, error) {
	bt, err := domain.ParseBucketType(f.str("type"))
	if err != nil {
		return "", status.Errorf(codes.InvalidArgument, "%v", err)
	}
	return bt, nil
}

func parseRecommendation(f fields) (domain.Recommendation, error) {
	bt, err := parseBucketType(f)
	if err != nil {
		return domain.Recommendation{}, err
	}
	pct, err := f.decimal("percent")
	if err != nil {
		return domain.Recommendation{}, err
	}
	target, err := f.optionalDecimal("target_amount")
	if err != nil {
		return domain.Recommendation{}, err
	}

	rec := domain.Recommendation{
		Type:             bt,
		Name:             f.str("name"),
		Percent:          pct,
		LinkedCategories: f.strings("linked_categories"),
		LinkedAccountIDs: f.strings("linked_account_ids"),
		TargetAmount:     target,
	}
	if f.has("is_modifiable") {
		modifiable := f.boolean("is_modifiable")
		rec.IsModifiable = &modifiable
	}
	return rec, nil
}

func parseBucket(f fields) (domain.AllocationBucket, error) {
	bt, err := parseBucketType(f)
	if err != nil {
		return domain.AllocationBucket{}, err
	}
	allocated, err := f.decimal("allocated_amount")
	if err != nil {
		return domain.AllocationBucket{}, err
	}
	recommended := allocated
	if f.has("recommended_amount") {
		if recommended, err = f.decimal("recommended_amount"); err != nil {
			return domain.AllocationBucket{}, err
		}
	}
	target, err := f.optionalDecimal("target_amount")
	if err != nil {
		return domain.AllocationBucket{}, err
	}

	id := uuid.New()
	if parsed, err := f.optionalUUID("id"); err != nil {
		return domain.AllocationBucket{}, err
	} else if parsed != nil {
		id = *parsed
	}

	name := f.str("name")
	if name == "" {
		name = string(bt)
	}

	return domain.AllocationBucket{
		ID:                id,
		Name:              name,
		Type:              bt,
		AllocatedAmount:   allocated,
		RecommendedAmount: recommended,
		IsModifiable:      f.boolean("is_modifiable"),
		IsLocked:          f.boolean("is_locked"),
		LinkedCategories:  f.strings("linked_categories"),
		LinkedAccountIDs:  f.strings("linked_account_ids"),
		TargetAmount:      target,
	}, nil
}

func money(d decimal.Decimal) string {
	return d.StringFixed(2)
}

func stringList(items []string) []any {
	out := make([]any, 0, len(items))
	for _, s := range items {
		out = append(out, s)
	}
	return out
}

func bucketToMap(b domain.AllocationBucket, income decimal.Decimal) map[string]any {
	m := map[string]any{
		"id":                   b.ID.String(),
		"name":                 b.Name,
		"type":                 string(b.Type),
		"allocated_amount":     money(b.AllocatedAmount),
		"recommended_amount":   money(b.RecommendedAmount),
		"change_from_original": money(b.ChangeFromOriginal),
		"percentage_of_income": b.PercentageOfIncome(income).StringFixed(1),
		"is_modifiable":        b.IsModifiable,
		"is_locked":            b.IsLocked,
		"acknowledged":         b.Acknowledged,
		"linked_categories":    stringList(b.LinkedCategories),
		"linked_account_ids":   stringList(b.LinkedAccountIDs),
	}
	if b.TargetAmount != nil {
		m["target_amount"] = money(*b.TargetAmount)
	}
	if b.MonthsToTarget != nil {
		m["months_to_target"] = float64(*b.MonthsToTarget)
	}
	return m
}

func bucketsToList(buckets []domain.AllocationBucket, income decimal.Decimal) []any {
	out := make([]any, 0, len(buckets))
	for _, b := range buckets {
		out = append(out, bucketToMap(b, income))
	}
	return out
}

func reportToMap(r validation.Report) map[string]any {
	return map[string]any{
		"valid":                 r.Valid,
		"sum_ok":                r.SumOK,
		"sum_percent":           r.SumPercent.StringFixed(1),
		"discretionary_percent": r.DiscretionaryPercent.StringFixed(1),
		"discretionary_status":  string(r.DiscretionaryStatus),
		"degenerate_income":     r.DegenerateIncome,
		"messages":              stringList(r.Messages),
	}
}

func resultToMap(res *rebalancer.Result) map[string]any {
	adjustments := make([]any, 0, len(res.Adjustments))
	for _, adj := range res.Adjustments {
		adjustments = append(adjustments, map[string]any{
			"bucket_id": adj.BucketID.String(),
			"type":      string(adj.Type),
			"from":      money(adj.From),
			"to":        money(adj.To),
			"stage":     string(adj.Stage),
		})
	}
	return map[string]any{
		"outcome":     string(res.Outcome),
		"adjustments": adjustments,
		"imbalance":   money(res.Imbalance),
		"balanced":    res.IsBalanced(),
	}
}

func sessionToMap(v *planner.SessionView) map[string]any {
	m := map[string]any{
		"session_id":      v.ID.String(),
		"monthly_income":  money(v.MonthlyIncome),
		"buckets":         bucketsToList(v.Buckets, v.MonthlyIncome),
		"total_allocated": money(v.TotalAllocated),
		"percentage":      v.Percentage.StringFixed(1),
		"validation":      reportToMap(v.Report),
	}
	if v.LastUpdate != nil {
		m["last_update"] = resultToMap(v.LastUpdate)
	}
	return m
}

func planToMap(p *domain.ConfirmedPlan) map[string]any {
	return map[string]any{
		"plan_id":        p.ID.String(),
		"session_id":     p.SessionID.String(),
		"monthly_income": money(p.MonthlyIncome),
		"buckets":        bucketsToList(p.Buckets, p.MonthlyIncome),
		"confirmed_at":   p.ConfirmedAt.UTC().Format(time.RFC3339),
	}
}

func balanceToMap(b *domain.AccountBalance) map[string]any {
	return map[string]any{
		"id":         b.ID.String(),
		"account_id": b.AccountID,
		"balance":    money(b.Balance),
		"as_of":      b.AsOf.UTC().Format(time.RFC3339),
	}
}

func progressToMap(p *progress.PlanProgress) map[string]any {
	buckets := make([]any, 0, len(p.Buckets))
	for _, b := range p.Buckets {
		m := map[string]any{
			"bucket_id":        b.BucketID.String(),
			"name":             b.Name,
			"type":             string(b.Type),
			"allocated_amount": money(b.Allocated),
			"linked_balance":   money(b.LinkedBalance),
			"missing_accounts": stringList(b.MissingAccounts),
		}
		if b.TargetAmount != nil {
			m["target_amount"] = money(*b.TargetAmount)
		}
		if b.PercentComplete != nil {
			m["percent_complete"] = b.PercentComplete.StringFixed(1)
		}
		if b.MonthsRemaining != nil {
			m["months_remaining"] = float64(*b.MonthsRemaining)
		}
		buckets = append(buckets, m)
	}
	return map[string]any{
		"plan_id": p.PlanID.String(),
		"buckets": buckets,
	}
}

func toStruct(m map[string]any) (*structpb.Struct, error) {
	s, err := structpb.NewStruct(m)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "failed to encode response: %v", err)
	}
	return s, nil
}
