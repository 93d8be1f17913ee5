package commands

import (
	"context"

	"go.uber.org/zap"

	"github.com/jakechorley/teamclean/internal/config"
	"github.com/jakechorley/teamclean/pkg/core/serializer"
	"github.com/jakechorley/teamclean/pkg/core/services"
	"github.com/jakechorley/teamclean/pkg/core/sweeps"
	"github.com/jakechorley/teamclean/pkg/db"
)

// Migrator applies the store schema
type Migrator interface {
	RunMigrations(ctx context.Context) error
}

// AppContext holds the application dependencies shared across all commands
type AppContext struct {
	Cfg        *config.Config
	Database   db.Database
	Migrator   Migrator
	Service    *services.Service
	Sweeper    *sweeps.Sweeper
	Serializer *serializer.Serializer
	Logger     *zap.Logger
	Ctx        context.Context
}
