package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/jakechorley/teamclean/cmd/cli/commands"
	"github.com/jakechorley/teamclean/internal/config"
	"github.com/jakechorley/teamclean/pkg/clients/gmailclient"
	"github.com/jakechorley/teamclean/pkg/core/serializer"
	"github.com/jakechorley/teamclean/pkg/core/services"
	"github.com/jakechorley/teamclean/pkg/core/sweeps"
	"github.com/jakechorley/teamclean/pkg/notify"
	"github.com/jakechorley/teamclean/pkg/pii"
	"github.com/jakechorley/teamclean/pkg/postgres"
	"github.com/jakechorley/teamclean/pkg/utils/logging"
	"github.com/jakechorley/teamclean/pkg/utils/tracing"
)

const serviceVersion = "0.1.0"

var (
	env string
	app = &commands.AppContext{Ctx: context.Background()}

	database        *postgres.DB
	shutdownTracing func(context.Context) error
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "cli",
		Short: "TeamClean CLI - Coordinate multi-worker cleaning jobs",
		Long:  `A CLI for serving the job coordination API, running sweeps and inspecting join requests.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return initApp()
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			closeApp()
		},
	}

	rootCmd.PersistentFlags().StringVarP(&env, "env", "e", "", "Environment (required: test, prod, etc.)")
	rootCmd.MarkPersistentFlagRequired("env")

	rootCmd.AddCommand(commands.ServeCmd(app))
	rootCmd.AddCommand(commands.MigrateCmd(app))
	rootCmd.AddCommand(commands.SweepCmd(app))
	rootCmd.AddCommand(commands.CreateJobCmd(app))
	rootCmd.AddCommand(commands.AddHomeCmd(app))
	rootCmd.AddCommand(commands.ListRequestsCmd(app))

	if err := rootCmd.Execute(); err != nil {
		closeApp()
		os.Exit(1)
	}
}

// initApp sets up logger, config, tracing, database and services
func initApp() error {
	var err error

	app.Logger, err = logging.InitLogger(env, "")
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	app.Logger.Info("Starting application", zap.String("environment", env))

	app.Logger.Info("Loading configuration")
	app.Cfg, err = config.LoadWithEnv(env)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	app.Logger.Debug("Configuration loaded successfully")

	if app.Cfg.Tracing.Enabled {
		shutdownTracing, err = tracing.Init("teamclean", serviceVersion, app.Cfg.Tracing.OutputFile)
		if err != nil {
			return fmt.Errorf("failed to initialize tracing: %w", err)
		}
		app.Logger.Debug("Tracing initialized")
	}

	codec, err := pii.NewCodecFromHex(app.Cfg.PIIKey, app.Logger)
	if err != nil {
		return fmt.Errorf("failed to create pii codec: %w", err)
	}

	app.Logger.Info("Connecting to database")
	database, err = postgres.NewDB(app.Ctx, app.Cfg.DatabaseURL, app.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	app.Database = database
	app.Migrator = database
	app.Logger.Info("Database initialized successfully")

	var notifyOpts []notify.Option
	if gc := app.Cfg.Gmail; gc != nil {
		app.Logger.Info("Initializing gmail client", zap.String("sender", gc.Sender))
		gmailClient, err := gmailclient.NewClient(app.Ctx, gc.CredentialsFile, gc.Sender, gc.Interval)
		if err != nil {
			return fmt.Errorf("failed to create gmail client: %w", err)
		}
		notifyOpts = append(notifyOpts, notify.WithEmail(gmailClient, database))
		app.Logger.Debug("Gmail client initialized successfully")
	}
	notifier := notify.New(database, app.Logger, notifyOpts...)

	serviceOpts := app.Cfg.ServiceOptions()
	serviceOpts.Encrypter = codec
	app.Service = services.New(database, notifier, app.Logger, serviceOpts)
	app.Sweeper = sweeps.New(database, notifier, app.Logger, app.Cfg.SweepOptions())
	app.Serializer = serializer.New(app.Cfg.VisibilityPolicy(), codec)

	return nil
}

func closeApp() {
	if database != nil {
		database.Close()
		database = nil
	}
	if shutdownTracing != nil {
		if err := shutdownTracing(context.Background()); err != nil && app.Logger != nil {
			app.Logger.Warn("Failed to flush traces", zap.Error(err))
		}
		shutdownTracing = nil
	}
	if app.Logger != nil {
		app.Logger.Sync()
	}
}
