package commands

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/jakechorley/teamclean/pkg/api"
	"github.com/jakechorley/teamclean/pkg/core/sweeps"
)

// ServeCmd creates the serve command: the HTTP API plus every sweep on its schedule
func ServeCmd(app *AppContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API and run the background sweeps",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			noSweeps, _ := cmd.Flags().GetBool("no-sweeps")

			ctx, cancel := signal.NotifyContext(app.Ctx, syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			if !noSweeps {
				stop, err := startSweeps(ctx, app)
				if err != nil {
					return err
				}
				defer stop()
			}

			server := api.NewServer(app.Service, app.Serializer, app.Logger)
			return server.Run(ctx, app.Cfg.Addr())
		},
	}

	cmd.Flags().Bool("no-sweeps", false, "Serve the API without running background sweeps")

	return cmd
}

func startSweeps(ctx context.Context, app *AppContext) (func(), error) {
	s := app.Sweeper
	stops := []func(){
		s.StartResponseExpiration(ctx, app.Cfg.SweepInterval(sweeps.SweepResponseExpiration)),
		s.StartBackupTimeout(ctx, app.Cfg.SweepInterval(sweeps.SweepBackupTimeout)),
		s.StartRequestExpiration(ctx, app.Cfg.SweepInterval(sweeps.SweepRequestExpiration)),
	}

	if expr := app.Cfg.Sweeps.ReminderRRule; expr != "" {
		schedule, err := sweeps.ParseRRule(expr, time.Now().UTC())
		if err != nil {
			for _, stop := range stops {
				stop()
			}
			return nil, fmt.Errorf("failed to parse reminder rrule: %w", err)
		}
		stops = append(stops, s.StartUnassignedRemindersOn(ctx, schedule))
		app.Logger.Info("Reminder sweep scheduled by rrule", zap.String("rrule", expr))
	} else {
		stops = append(stops, s.StartUnassignedReminders(ctx, app.Cfg.SweepInterval(sweeps.SweepUnassignedReminder)))
	}

	return func() {
		for _, stop := range stops {
			stop()
		}
	}, nil
}
