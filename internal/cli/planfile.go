package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/simaogato/wealthflow-planner/internal/domain"
	"github.com/simaogato/wealthflow-planner/internal/usecase/planner"
)

// PlanFile is the on-disk TOML form of a plan under review. It holds either
// recommendation percentages or concrete bucket amounts.
type PlanFile struct {
	MonthlyIncome   string               `toml:"monthly_income"`
	Recommendations []RecommendationLine `toml:"recommendation,omitempty"`
	Buckets         []BucketLine         `toml:"bucket,omitempty"`
}

// RecommendationLine is one [[recommendation]] table
type RecommendationLine struct {
	Type             string   `toml:"type"`
	Name             string   `toml:"name,omitempty"`
	Percent          string   `toml:"percent"`
	Modifiable       *bool    `toml:"modifiable,omitempty"`
	LinkedCategories []string `toml:"linked_categories,omitempty"`
	LinkedAccounts   []string `toml:"linked_accounts,omitempty"`
	Target           string   `toml:"target,omitempty"`
}

// BucketLine is one [[bucket]] table
type BucketLine struct {
	Type             string   `toml:"type"`
	Name             string   `toml:"name,omitempty"`
	Allocated        string   `toml:"allocated"`
	Recommended      string   `toml:"recommended,omitempty"`
	Modifiable       bool     `toml:"modifiable"`
	Locked           bool     `toml:"locked,omitempty"`
	LinkedCategories []string `toml:"linked_categories,omitempty"`
	LinkedAccounts   []string `toml:"linked_accounts,omitempty"`
	Target           string   `toml:"target,omitempty"`
}

// LoadPlanFile reads a plan file from disk
func LoadPlanFile(path string) (PlanFile, error) {
	var pf PlanFile
	data, err := os.ReadFile(path)
	if err != nil {
		return pf, fmt.Errorf("reading plan file: %w", err)
	}
	md, err := toml.Decode(string(data), &pf)
	if err != nil {
		return pf, fmt.Errorf("parsing plan file: %w", err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return pf, fmt.Errorf("parsing plan file: unknown key %q", undecoded[0].String())
	}
	return pf, nil
}

// SavePlanFile writes a plan file to disk
func SavePlanFile(path string, pf PlanFile) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("creating plan file: %w", err)
	}
	defer f.Close()

	if err := toml.NewEncoder(f).Encode(pf); err != nil {
		return fmt.Errorf("writing plan file: %w", err)
	}
	return nil
}

func parseAmount(field, s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid %s %q: %w", field, s, err)
	}
	return d, nil
}

func parseOptionalAmount(field, s string) (*decimal.Decimal, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	d, err := parseAmount(field, s)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// SessionInput converts the file into planner input. Bucket ids are
// assigned fresh on every load.
func (pf PlanFile) SessionInput() (planner.StartSessionInput, error) {
	var input planner.StartSessionInput

	income, err := parseAmount("monthly_income", pf.MonthlyIncome)
	if err != nil {
		return input, err
	}
	input.MonthlyIncome = income

	for _, line := range pf.Recommendations {
		bt, err := domain.ParseBucketType(line.Type)
		if err != nil {
			return input, err
		}
		pct, err := parseAmount("percent", line.Percent)
		if err != nil {
			return input, err
		}
		target, err := parseOptionalAmount("target", line.Target)
		if err != nil {
			return input, err
		}
		input.Recommendations = append(input.Recommendations, domain.Recommendation{
			Type:             bt,
			Name:             line.Name,
			Percent:          pct,
			IsModifiable:     line.Modifiable,
			LinkedCategories: line.LinkedCategories,
			LinkedAccountIDs: line.LinkedAccounts,
			TargetAmount:     target,
		})
	}

	for _, line := range pf.Buckets {
		bt, err := domain.ParseBucketType(line.Type)
		if err != nil {
			return input, err
		}
		allocated, err := parseAmount("allocated", line.Allocated)
		if err != nil {
			return input, err
		}
		recommended := allocated
		if line.Recommended != "" {
			if recommended, err = parseAmount("recommended", line.Recommended); err != nil {
				return input, err
			}
		}
		target, err := parseOptionalAmount("target", line.Target)
		if err != nil {
			return input, err
		}

		name := line.Name
		if name == "" {
			name = string(bt)
		}
		input.Buckets = append(input.Buckets, domain.AllocationBucket{
			ID:                uuid.New(),
			Name:              name,
			Type:              bt,
			AllocatedAmount:   allocated,
			RecommendedAmount: recommended,
			IsModifiable:      line.Modifiable,
			IsLocked:          line.Locked,
			LinkedCategories:  line.LinkedCategories,
			LinkedAccountIDs:  line.LinkedAccounts,
			TargetAmount:      target,
		})
	}

	return input, nil
}

// PlanFileFromBuckets builds the amount form of a plan file. Locks are not
// written back; they belong to the editing session.
func PlanFileFromBuckets(income decimal.Decimal, buckets []domain.AllocationBucket) PlanFile {
	pf := PlanFile{MonthlyIncome: income.StringFixed(2)}
	for _, b := range buckets {
		line := BucketLine{
			Type:             string(b.Type),
			Name:             b.Name,
			Allocated:        b.AllocatedAmount.StringFixed(2),
			Recommended:      b.RecommendedAmount.StringFixed(2),
			Modifiable:       b.IsModifiable,
			LinkedCategories: b.LinkedCategories,
			LinkedAccounts:   b.LinkedAccountIDs,
		}
		if b.TargetAmount != nil {
			line.Target = b.TargetAmount.StringFixed(2)
		}
		pf.Buckets = append(pf.Buckets, line)
	}
	return pf
}
