package server

import (
	"database/sql"
	"time"

	"nimbus/internal/audit"
	"nimbus/internal/auth"
	"nimbus/internal/config"
	"nimbus/internal/directory"
	"nimbus/internal/logger"
)

// App holds all application state and dependencies.
type App struct {
	Config    *config.Config
	Logger    *logger.Logger
	DB        *sql.DB
	Directory *directory.Store
	Sessions  *directory.SessionStore
	Audit     *audit.Trail

	// One authenticator per error flavor; both share the directory.
	QueryAuth *auth.Authenticator
	S3Auth    *auth.Authenticator

	StartedAt time.Time
}

// NewApp creates a new application instance.
func NewApp(cfg *config.Config, log *logger.Logger) *App {
	return &App{
		Config:    cfg,
		Logger:    log,
		StartedAt: time.Now(),
	}
}

// SetDB wires the directory stores, audit trail, and authenticators once the
// database is open.
func (app *App) SetDB(db *sql.DB) {
	app.DB = db
	app.Directory = directory.NewStore(db, app.Config.AccountID)
	app.Sessions = directory.NewSessionStore(db, app.Config.AccountID)
	app.Audit = audit.NewTrail(db, app.Config.Audit.MaxLogSizeBytes, app.Config.Audit.PurgePercentage)
	app.QueryAuth = auth.NewAuthenticator(app.Directory, app.Sessions,
		app.Config.AccountID, auth.FlavorGeneric, app.Logger)
	app.S3Auth = auth.NewAuthenticator(app.Directory, app.Sessions,
		app.Config.AccountID, auth.FlavorS3, app.Logger)
}
