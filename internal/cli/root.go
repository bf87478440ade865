package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/simaogato/wealthflow-planner/internal/config"
	"github.com/simaogato/wealthflow-planner/internal/domain"
	"github.com/simaogato/wealthflow-planner/internal/usecase/planner"
	"github.com/simaogato/wealthflow-planner/internal/usecase/progress"
	"github.com/simaogato/wealthflow-planner/internal/usecase/validation"
)

// App holds the services and settings used by CLI commands.
type App struct {
	Planner  *planner.PlannerService
	Progress *progress.ProgressService
	Policy   domain.Policy
	Limits   validation.Limits

	// ConfigPath is where "init" writes the default config
	ConfigPath string
}

// NewRootCmd creates the top-level "planctl" command and registers all
// subcommands against the provided App.
func NewRootCmd(app *App) *cobra.Command {
	root := &cobra.Command{
		Use:           "planctl",
		Short:         "Review, rebalance and confirm monthly allocation plans",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(
		newShowCmd(app),
		newEditCmd(app),
		newConfirmCmd(app),
		newPlansCmd(app),
		newPolicyCmd(app),
		newBalanceCmd(app),
		newProgressCmd(app),
		newInitCmd(app),
	)

	return root
}

func newInitCmd(app *App) *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write the default configuration file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !force && fileExists(app.ConfigPath) {
				fmt.Fprintf(cmd.OutOrStdout(), "config already exists at %s (use --force to overwrite)\n", app.ConfigPath)
				return nil
			}
			if err := config.Save(app.ConfigPath, config.DefaultConfig()); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", app.ConfigPath)
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing config file")
	return cmd
}
