package bootstrap

import (
	"context"
	"fmt"
	"net/http"

	"github.com/dalemusser/portfolio/app"
	"github.com/dalemusser/portfolio/config"
	"github.com/dalemusser/portfolio/health"
	"github.com/dalemusser/portfolio/internal/app/features/contact"
	"github.com/dalemusser/portfolio/mail"
	"github.com/dalemusser/portfolio/metrics"
	"github.com/dalemusser/portfolio/router"
	"github.com/dalemusser/portfolio/version"
	"go.uber.org/zap"
)

// LoadConfig loads the core config plus the contact settings.
func LoadConfig(logger *zap.Logger) (*config.CoreConfig, AppConfig, error) {
	coreCfg, vals, err := config.LoadWithAppConfig(logger, EnvPrefix, AppKeys)
	if err != nil {
		return nil, AppConfig{}, err
	}
	appCfg, err := NewAppConfig(vals)
	if err != nil {
		return nil, AppConfig{}, fmt.Errorf("contact config: %w", err)
	}
	if err := appCfg.checkTimeouts(coreCfg.HTTP); err != nil {
		return nil, AppConfig{}, fmt.Errorf("contact config: %w", err)
	}
	return coreCfg, appCfg, nil
}

// Startup optionally proves the relay credentials before serving.
func Startup(ctx context.Context, _ *config.CoreConfig, appCfg AppConfig, logger *zap.Logger) error {
	logger.Info("starting", zap.String("version", version.String()))
	if !appCfg.VerifyOnStart {
		return nil
	}
	sender, err := mail.NewSender(appCfg.MailConfig())
	if err != nil {
		return err
	}
	if err := sender.Ping(ctx); err != nil {
		return err
	}
	logger.Info("mail relay verified", zap.String("host", appCfg.MailHost), zap.Int("port", appCfg.MailPort))
	return nil
}

// BuildHandler wires the router, probes, metrics and contact routes.
func BuildHandler(coreCfg *config.CoreConfig, appCfg AppConfig, logger *zap.Logger) (http.Handler, error) {
	sender, err := mail.NewSender(appCfg.MailConfig())
	if err != nil {
		return nil, err
	}
	h, err := contact.NewHandler(sender, appCfg.MailTo, logger)
	if err != nil {
		return nil, err
	}

	r := router.New(coreCfg, logger)
	health.Mount(r, logger)
	// A relay login per probe would hammer the account; reuse the last answer.
	ready := map[string]health.Check{"smtp": health.Cached(sender.Ping, appCfg.ReadyInterval)}
	health.MountAt(r, "/ready", ready, appCfg.MailTimeout, logger)
	version.Mount(r)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())
	contact.Mount(r, h)

	return r, nil
}

// Hooks wires the contact service into app.Run.
var Hooks = app.Hooks[AppConfig]{
	Name:         "portfolio",
	LoadConfig:   LoadConfig,
	Startup:      Startup,
	BuildHandler: BuildHandler,
}
