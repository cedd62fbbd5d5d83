// app/app.go
package app

import (
	"context"
	"fmt"
	"net/http"

	"github.com/dalemusser/portfolio/config"
	"github.com/dalemusser/portfolio/httputil"
	"github.com/dalemusser/portfolio/logging"
	"github.com/dalemusser/portfolio/metrics"
	"github.com/dalemusser/portfolio/server"
	"go.uber.org/zap"
)

// Hooks are the integration points an application supplies to Run.
type Hooks[C any] struct {
	// Name is used only for logging.
	Name string

	// LoadConfig returns the core config and the app-specific config.
	// It usually calls config.LoadWithAppConfig plus app validation.
	LoadConfig func(logger *zap.Logger) (*config.CoreConfig, C, error)

	// Startup runs after the final logger is built and before the handler.
	// It may be nil.
	Startup func(ctx context.Context, core *config.CoreConfig, appCfg C, logger *zap.Logger) error

	// BuildHandler constructs the final http.Handler: router, middleware
	// and routes.
	BuildHandler func(core *config.CoreConfig, appCfg C, logger *zap.Logger) (http.Handler, error)
}

// Run executes the startup sequence:
//
//  1. Bootstrap logger
//  2. Load core + app config (Hooks.LoadConfig)
//  3. Build final logger based on core config
//  4. Register default metrics
//  5. Startup tasks (Hooks.Startup, if provided)
//  6. Wire shutdown signals to a context
//  7. Build the HTTP handler (Hooks.BuildHandler)
//  8. Start the HTTP(S) server and block until shutdown
func Run[C any](ctx context.Context, hooks Hooks[C]) error {
	if hooks.LoadConfig == nil || hooks.BuildHandler == nil {
		return fmt.Errorf("%s: LoadConfig and BuildHandler hooks are required", hooks.Name)
	}

	bootstrap := logging.BootstrapLogger()
	defer func() { _ = bootstrap.Sync() }()
	bootstrap.Info("bootstrap logger initialized", zap.String("app", hooks.Name))

	coreCfg, appCfg, err := hooks.LoadConfig(bootstrap)
	if err != nil {
		bootstrap.Error("config load failed", zap.Error(err))
		return fmt.Errorf("load config: %w", err)
	}
	bootstrap.Info("config loaded",
		zap.String("env", coreCfg.Env),
		zap.String("log_level", coreCfg.LogLevel),
	)

	logger, err := logging.BuildLogger(coreCfg.LogLevel, coreCfg.Env)
	if err != nil {
		bootstrap.Error("logger build failed", zap.Error(err))
		return fmt.Errorf("build logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()
	logger.Info("logger initialized", zap.String("app", hooks.Name))
	logger.Debug("core config", zap.String("config", coreCfg.Dump()))

	httputil.SetLogger(logger)
	metrics.RegisterDefault(logger)

	if hooks.Startup != nil {
		if err := hooks.Startup(ctx, coreCfg, appCfg, logger); err != nil {
			logger.Error("startup failed", zap.Error(err))
			return fmt.Errorf("startup: %w", err)
		}
	}

	ctx, cancel := server.WithShutdownSignals(ctx, logger)
	defer cancel()

	handler, err := hooks.BuildHandler(coreCfg, appCfg, logger)
	if err != nil {
		logger.Error("handler build failed", zap.Error(err))
		return fmt.Errorf("build handler: %w", err)
	}

	if err := server.ListenAndServeWithContext(ctx, coreCfg, handler, logger); err != nil {
		logger.Error("server exited with error", zap.Error(err))
		return err
	}
	logger.Info("server stopped")
	return nil
}
