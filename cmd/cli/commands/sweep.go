package commands

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jakechorley/teamclean/pkg/core/sweeps"
)

func sweepRunners(s *sweeps.Sweeper) map[string]func(context.Context) sweeps.Summary {
	return map[string]func(context.Context) sweeps.Summary{
		sweeps.SweepResponseExpiration: s.ProcessResponseExpirations,
		sweeps.SweepBackupTimeout:      s.ProcessBackupTimeouts,
		sweeps.SweepUnassignedReminder: s.ProcessUnassignedReminders,
		sweeps.SweepRequestExpiration:  s.ProcessRequestExpirations,
	}
}

func sweepNames() []string {
	names := []string{
		sweeps.SweepResponseExpiration,
		sweeps.SweepBackupTimeout,
		sweeps.SweepUnassignedReminder,
		sweeps.SweepRequestExpiration,
	}
	sort.Strings(names)
	return names
}

// SweepCmd creates the sweep command, which runs one sweep pass and exits
func SweepCmd(app *AppContext) *cobra.Command {
	return &cobra.Command{
		Use:       "sweep <name>",
		Short:     "Run one pass of a background sweep (" + strings.Join(sweepNames(), ", ") + ")",
		Args:      cobra.ExactArgs(1),
		ValidArgs: sweepNames(),
		RunE: func(cmd *cobra.Command, args []string) error {
			run, ok := sweepRunners(app.Sweeper)[args[0]]
			if !ok {
				return fmt.Errorf("unknown sweep %q, expected one of: %s", args[0], strings.Join(sweepNames(), ", "))
			}

			sum := run(app.Ctx)
			fmt.Print(formatSummary(sum))
			if sum.Errors > 0 {
				return fmt.Errorf("sweep %s finished with %d errors", sum.Sweep, sum.Errors)
			}
			return nil
		},
	}
}

func formatSummary(sum sweeps.Summary) string {
	var b strings.Builder
	fmt.Fprintf(&b, "\nSweep %s at %s\n\n", sum.Sweep, sum.Timestamp.Format("2006-01-02 15:04:05 MST"))
	fmt.Fprintf(&b, "  Processed:     %d\n", sum.Processed)
	fmt.Fprintf(&b, "  Skipped:       %d\n", sum.Skipped)
	fmt.Fprintf(&b, "  Errors:        %d\n", sum.Errors)
	fmt.Fprintf(&b, "  Notify errors: %d\n\n", sum.NotifyErrors)
	return b.String()
}
