package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/simaogato/wealthflow-planner/internal/domain"
	"github.com/simaogato/wealthflow-planner/internal/usecase/planner"
)

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// openPlan loads a plan file into a fresh editing session
func openPlan(ctx context.Context, app *App, path string) (*planner.SessionView, error) {
	if path == "" {
		return nil, errors.New("--plan is required")
	}
	pf, err := LoadPlanFile(path)
	if err != nil {
		return nil, err
	}
	input, err := pf.SessionInput()
	if err != nil {
		return nil, err
	}
	return app.Planner.StartSession(ctx, input)
}

// resolveBucket finds a bucket by type (when unique) or by name
func resolveBucket(buckets []domain.AllocationBucket, key string) (domain.AllocationBucket, error) {
	if bt, err := domain.ParseBucketType(key); err == nil {
		var matches []domain.AllocationBucket
		for _, b := range buckets {
			if b.Type == bt {
				matches = append(matches, b)
			}
		}
		switch len(matches) {
		case 1:
			return matches[0], nil
		case 0:
		default:
			return domain.AllocationBucket{}, fmt.Errorf("%d buckets of type %s, refer to one by name", len(matches), bt)
		}
	}
	for _, b := range buckets {
		if strings.EqualFold(b.Name, key) {
			return b, nil
		}
	}
	return domain.AllocationBucket{}, fmt.Errorf("no bucket matches %q", key)
}

type edit struct {
	key    string
	amount decimal.Decimal
}

func parseEdits(raw []string) ([]edit, error) {
	edits := make([]edit, 0, len(raw))
	for _, r := range raw {
		key, value, ok := strings.Cut(r, "=")
		if !ok || strings.TrimSpace(key) == "" {
			return nil, fmt.Errorf("invalid --set %q, expected BUCKET=AMOUNT", r)
		}
		amount, err := parseAmount("amount", value)
		if err != nil {
			return nil, err
		}
		edits = append(edits, edit{key: strings.TrimSpace(key), amount: amount})
	}
	return edits, nil
}

// applyEdits locks the named buckets, then applies edits in order
func applyEdits(cmd *cobra.Command, app *App, view *planner.SessionView, locks []string, edits []edit) (*planner.SessionView, error) {
	ctx := cmd.Context()
	for _, key := range locks {
		b, err := resolveBucket(view.Buckets, key)
		if err != nil {
			return nil, err
		}
		if view, err = app.Planner.SetLocked(ctx, view.ID, b.ID, true); err != nil {
			return nil, err
		}
	}

	for _, e := range edits {
		b, err := resolveBucket(view.Buckets, e.key)
		if err != nil {
			return nil, err
		}
		if view, err = app.Planner.UpdateBucket(ctx, view.ID, b.ID, e.amount); err != nil {
			return nil, err
		}
		fmt.Fprint(cmd.OutOrStdout(), renderUpdate(fmt.Sprintf("%s = %s", b.Name, e.amount.StringFixed(2)), *view.LastUpdate))
	}
	return view, nil
}

func newShowCmd(app *App) *cobra.Command {
	var planPath string

	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show a plan file with percentages and validation",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			view, err := openPlan(cmd.Context(), app, planPath)
			if err != nil {
				return err
			}
			defer app.Planner.AbandonSession(cmd.Context(), view.ID)

			fmt.Fprintf(cmd.OutOrStdout(), "Monthly income: %s\n", view.MonthlyIncome.StringFixed(2))
			fmt.Fprintln(cmd.OutOrStdout(), renderBuckets(view.MonthlyIncome, view.Buckets))
			fmt.Fprint(cmd.OutOrStdout(), renderReport(view.Report))
			return nil
		},
	}
	cmd.Flags().StringVar(&planPath, "plan", "", "Path to the plan TOML file")
	return cmd
}

func newEditCmd(app *App) *cobra.Command {
	var (
		planPath string
		sets     []string
		locks    []string
		write    bool
	)

	cmd := &cobra.Command{
		Use:   "edit",
		Short: "Apply bucket edits and rebalance the rest",
		Long: "Applies each --set BUCKET=AMOUNT in order. Other buckets absorb the\n" +
			"difference by priority. BUCKET is a bucket type or name.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			edits, err := parseEdits(sets)
			if err != nil {
				return err
			}
			if len(edits) == 0 {
				return errors.New("at least one --set is required")
			}

			view, err := openPlan(cmd.Context(), app, planPath)
			if err != nil {
				return err
			}
			defer app.Planner.AbandonSession(cmd.Context(), view.ID)

			view, err = applyEdits(cmd, app, view, locks, edits)
			if err != nil {
				return err
			}

			fmt.Fprintln(cmd.OutOrStdout(), renderBuckets(view.MonthlyIncome, view.Buckets))
			fmt.Fprint(cmd.OutOrStdout(), renderReport(view.Report))

			if write {
				if err := SavePlanFile(planPath, PlanFileFromBuckets(view.MonthlyIncome, view.Buckets)); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", planPath)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&planPath, "plan", "", "Path to the plan TOML file")
	cmd.Flags().StringArrayVar(&sets, "set", nil, "Edit BUCKET=AMOUNT (repeatable, applied in order)")
	cmd.Flags().StringArrayVar(&locks, "lock", nil, "Lock BUCKET before editing (repeatable)")
	cmd.Flags().BoolVar(&write, "write", false, "Write the edited amounts back to the plan file")
	return cmd
}

func newConfirmCmd(app *App) *cobra.Command {
	var (
		planPath string
		sets     []string
		locks    []string
	)

	cmd := &cobra.Command{
		Use:   "confirm",
		Short: "Validate a plan and store it as confirmed",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			edits, err := parseEdits(sets)
			if err != nil {
				return err
			}

			view, err := openPlan(cmd.Context(), app, planPath)
			if err != nil {
				return err
			}
			if view, err = applyEdits(cmd, app, view, locks, edits); err != nil {
				return err
			}

			plan, err := app.Planner.ConfirmPlan(cmd.Context(), view.ID)
			if err != nil {
				_ = app.Planner.AbandonSession(cmd.Context(), view.ID)
				var invalid *planner.InvalidPlanError
				if errors.As(err, &invalid) {
					fmt.Fprint(cmd.OutOrStdout(), renderReport(invalid.Report))
				}
				return err
			}

			fmt.Fprintln(cmd.OutOrStdout(), renderBuckets(plan.MonthlyIncome, plan.Buckets))
			fmt.Fprintf(cmd.OutOrStdout(), "confirmed plan %s\n", plan.ID)
			return nil
		},
	}
	cmd.Flags().StringVar(&planPath, "plan", "", "Path to the plan TOML file")
	cmd.Flags().StringArrayVar(&sets, "set", nil, "Edit BUCKET=AMOUNT before confirming (repeatable)")
	cmd.Flags().StringArrayVar(&locks, "lock", nil, "Lock BUCKET before editing (repeatable)")
	return cmd
}

func newPlansCmd(app *App) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "plans [PLAN_ID]",
		Short: "List confirmed plans, or show one",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				id, err := uuid.Parse(args[0])
				if err != nil {
					return fmt.Errorf("invalid plan id: %w", err)
				}
				plan, err := app.Planner.GetPlan(cmd.Context(), id)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Plan %s confirmed %s\n", plan.ID, plan.ConfirmedAt.Local().Format("2006-01-02 15:04"))
				fmt.Fprintln(cmd.OutOrStdout(), renderBuckets(plan.MonthlyIncome, plan.Buckets))
				return nil
			}

			plans, err := app.Planner.ListPlans(cmd.Context(), limit)
			if err != nil {
				return err
			}
			if len(plans) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "no confirmed plans yet")
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderPlans(plans))
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 10, "Number of plans to list")
	return cmd
}

func newPolicyCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "policy",
		Short: "Print the effective rebalancing policy and limits",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprint(cmd.OutOrStdout(), renderPolicy(app.Policy, app.Limits))
			return nil
		},
	}
}
