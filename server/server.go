// server/server.go
package server

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/dalemusser/portfolio/config"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/crypto/acme/autocert"
)

// WithShutdownSignals returns a context that is canceled when the process
// receives SIGINT or SIGTERM. The returned cancel function also stops signal
// delivery.
func WithShutdownSignals(parent context.Context, logger *zap.Logger) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)

	// Ctrl+C plus SIGTERM from the process manager.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	go func() {
		select {
		case sig := <-sigCh:
			if logger != nil {
				logger.Info("shutdown signal received", zap.Any("signal", sig))
			}
			cancel()
		case <-ctx.Done():
			// Context was cancelled externally (e.g., programmatic shutdown)
		}
		// Clean up signal handling: stop delivery to this channel.
		signal.Stop(sigCh)
	}()

	return ctx, cancel
}

// ListenAndServeWithContext starts an HTTP or HTTPS server (manual certs or
// Let's Encrypt http-01) and blocks until ctx is canceled or the server hits
// a terminal error. On cancellation it drains in-flight requests, including
// contact sends waiting on the mail relay, for up to cfg.HTTP.ShutdownTimeout.
func ListenAndServeWithContext(
	ctx context.Context,
	cfg *config.CoreConfig,
	handler http.Handler,
	logger *zap.Logger,
) error {
	if cfg == nil {
		return errors.New("ListenAndServeWithContext: cfg is nil")
	}
	if handler == nil {
		return errors.New("ListenAndServeWithContext: handler is nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	// Build base http.Server with configured timeouts.
	srv := newHTTPServer(cfg, handler, logger)

	var (
		auxSrv   *http.Server // :80 ACME or redirect server in HTTPS modes
		ln       net.Listener
		serveErr = make(chan error, 1)
		auxErr   chan error // nil in HTTP-only mode; a nil channel never fires in select
	)

	startAux := func(h http.Handler, what string) {
		auxSrv = newHTTPServer(cfg, h, logger)
		auxSrv.Addr = ":80"
		auxErr = make(chan error, 1)
		go serveAuxiliary(auxSrv, auxErr)
		logger.Info(what+" server listening", zap.String("addr", auxSrv.Addr))
	}

	// Select serving mode based on config.
	switch {
	// ----------------------------- HTTP only -------------------------------
	case !cfg.HTTP.UseHTTPS:
		addr := ":" + strconv.Itoa(cfg.HTTP.HTTPPort)
		var err error
		ln, err = net.Listen("tcp", addr)
		if err != nil {
			return fmt.Errorf("listen http %s: %w", addr, err)
		}
		logger.Info("HTTP server listening", zap.String("addr", ln.Addr().String()))

	// ----------------------- HTTPS via Let's Encrypt -----------------------
	case cfg.TLS.UseLetsEncrypt:
		m := &autocert.Manager{
			Prompt:     autocert.AcceptTOS,
			HostPolicy: autocert.HostWhitelist(cfg.TLS.Domain),
			Cache:      autocert.DirCache(cfg.TLS.LetsEncryptCacheDir),
			Email:      cfg.TLS.LetsEncryptEmail,
		}
		// Port 80: ACME challenge + HTTPS redirect for everything else.
		startAux(m.HTTPHandler(httpRedirectHandler()), "ACME + redirect")

		// Pre-warm before binding :443
		if err := waitForCert(ctx, m, cfg.TLS.Domain, 60*time.Second); err != nil {
			logger.Warn("autocert pre-warm failed; first HTTPS hits may see TLS errors", zap.Error(err))
		}

		tlsCfg := &tls.Config{MinVersion: tls.VersionTLS12, GetCertificate: m.GetCertificate}
		var err error
		ln, err = listenTLS(cfg.HTTP.HTTPSPort, tlsCfg)
		if err != nil {
			// Cleanup auxiliary server that was already started
			_ = shutdownAux(context.Background(), auxSrv)
			return err
		}
		logger.Info("HTTPS server (Let's Encrypt) listening",
			zap.String("addr", ln.Addr().String()),
			zap.String("domain", cfg.TLS.Domain))

	// ----------------------- HTTPS via manual certs ------------------------
	default:
		// Validate TLS files exist and are accessible before proceeding
		if err := validateTLSFiles(cfg.TLS.CertFile, cfg.TLS.KeyFile); err != nil {
			if !errors.Is(err, errLooseKeyPerms) {
				return err
			}
			// In production, insecure key permissions are a hard error
			if cfg.Env == "prod" {
				return fmt.Errorf("production security: %w", err)
			}
			logger.Warn("TLS key file security warning (would block in prod)", zap.Error(err))
		}

		cert, err := tls.LoadX509KeyPair(cfg.TLS.CertFile, cfg.TLS.KeyFile)
		if err != nil {
			return fmt.Errorf("load TLS cert/key: %w", err)
		}
		// Port 80: redirect everything to HTTPS.
		startAux(httpRedirectHandler(), "HTTP → HTTPS redirect")

		// Port 443: primary HTTPS with provided certs.
		tlsCfg := &tls.Config{MinVersion: tls.VersionTLS12, Certificates: []tls.Certificate{cert}}
		ln, err = listenTLS(cfg.HTTP.HTTPSPort, tlsCfg)
		if err != nil {
			// Cleanup auxiliary server that was already started
			_ = shutdownAux(context.Background(), auxSrv)
			return err
		}
		logger.Info("HTTPS server (manual TLS) listening",
			zap.String("addr", ln.Addr().String()),
			zap.String("cert_file", cfg.TLS.CertFile))
	}

	go servePrimary(srv, ln, serveErr)

	// ---------- wait for shutdown / errors ----------
	for {
		select {
		case <-ctx.Done():
			// Graceful shutdown path requested by caller.
			logger.Info("shutting down server…")
			// ctx is already done; the drain window is independent of it.
			shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
			defer cancel()
			_ = shutdownAux(shutdownCtx, auxSrv)
			if err := srv.Shutdown(shutdownCtx); err != nil {
				_ = ln.Close()
				return fmt.Errorf("server shutdown: %w", err)
			}
			logger.Info("server stopped gracefully")
			return nil

		case err := <-serveErr:
			// Primary server crashed or closed unexpectedly.
			_ = shutdownAux(context.Background(), auxSrv)
			_ = ln.Close()
			if err != nil {
				return fmt.Errorf("primary server error: %w", err)
			}
			return nil

		case err := <-auxErr:
			// Auxiliary server (ACME / redirect) crashed.
			if err != nil {
				if closeErr := srv.Close(); closeErr != nil {
					logger.Error("failed to close primary server after auxiliary crash", zap.Error(closeErr))
				}
				// srv.Close() doesn't close listeners passed to Serve(), so close explicitly
				_ = ln.Close()
				return fmt.Errorf("auxiliary server error: %w", err)
			}
			// nil (ErrServerClosed) → continue waiting for ctx or primary.
			auxSrv, auxErr = nil, nil
		}
	}
}

func newHTTPServer(cfg *config.CoreConfig, h http.Handler, logger *zap.Logger) *http.Server {
	srv := &http.Server{
		Handler:           h,
		ReadTimeout:       cfg.HTTP.ReadTimeout,
		ReadHeaderTimeout: cfg.HTTP.ReadHeaderTimeout,
		WriteTimeout:      cfg.HTTP.WriteTimeout,
		IdleTimeout:       cfg.HTTP.IdleTimeout,
	}
	// stdlib server errors go to zap at Warn
	if stdlog, err := zap.NewStdLogAt(logger, zapcore.WarnLevel); err == nil {
		srv.ErrorLog = stdlog
	}
	return srv
}

func listenTLS(port int, tlsCfg *tls.Config) (net.Listener, error) {
	addr := ":" + strconv.Itoa(port)
	base, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen https %s: %w", addr, err)
	}
	return tls.NewListener(base, tlsCfg), nil
}

// servePrimary runs srv.Serve on the provided listener and reports terminal errors.
func servePrimary(srv *http.Server, ln net.Listener, ch chan<- error) {
	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		ch <- err
		return
	}
	ch <- nil
}

// serveAuxiliary runs auxSrv.ListenAndServe and reports terminal errors.
func serveAuxiliary(auxSrv *http.Server, ch chan<- error) {
	if err := auxSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		ch <- err
		return
	}
	ch <- nil
}

// shutdownAux gracefully shuts down the auxiliary server (if any).
func shutdownAux(ctx context.Context, auxSrv *http.Server) error {
	if auxSrv == nil {
		return nil
	}
	return auxSrv.Shutdown(ctx)
}

var errLooseKeyPerms = errors.New("overly permissive permissions")

// validateTLSFiles checks that the certificate and key files exist and that
// the key is not readable by group or others (Unix only).
func validateTLSFiles(certFile, keyFile string) error {
	if strings.TrimSpace(certFile) == "" || strings.TrimSpace(keyFile) == "" {
		return errors.New("manual TLS selected but cert_file / key_file not provided")
	}
	for _, f := range []struct{ kind, path string }{{"certificate", certFile}, {"key", keyFile}} {
		info, err := os.Stat(f.path)
		if err != nil {
			if os.IsNotExist(err) {
				return fmt.Errorf("TLS %s file does not exist: %s", f.kind, f.path)
			}
			return fmt.Errorf("cannot access TLS %s file %s: %w", f.kind, f.path, err)
		}
		if info.IsDir() {
			return fmt.Errorf("TLS %s path is a directory, not a file: %s", f.kind, f.path)
		}
		if f.kind == "key" && runtime.GOOS != "windows" && info.Mode().Perm()&0o077 != 0 {
			return fmt.Errorf("TLS key file %s has %w %o (recommended: 0600)", f.path, errLooseKeyPerms, info.Mode().Perm())
		}
	}
	return nil
}

// waitForCert blocks until autocert has a certificate for host, the timeout
// passes, or ctx is done, whichever comes first.
func waitForCert(ctx context.Context, m *autocert.Manager, host string, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var lastErr error
	for {
		_, err := m.GetCertificate(&tls.ClientHelloInfo{ServerName: host})
		if err == nil {
			return nil
		}
		lastErr = err

		// Context-aware sleep so shutdown signals are respected during wait
		select {
		case <-ctx.Done():
			return fmt.Errorf("waiting for cert for %q: %w (last error: %v)", host, ctx.Err(), lastErr)
		case <-time.After(time.Second):
		}
	}
}
