package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"time"

	cli "github.com/urfave/cli/v3"
	"go.uber.org/zap"

	"respbg/internal/config"
	"respbg/internal/htmlhost"
	"respbg/internal/proxy"
	"respbg/internal/state"
)

func proxyConfig(env *state.LocalEnv) proxy.Config {
	cfg := env.Cfg
	pc := proxy.DefaultConfig()
	pc.SitesDir = cfg.SitesDir
	pc.Srcset = cfg.Srcset()
	pc.Viewport = htmlhost.Viewport{Width: cfg.Viewport.Width, PixelRatio: cfg.Viewport.PixelRatio}
	pc.SessionTTL = cfg.SessionTTL()
	pc.Logger = env.Log.Named("http")
	if cfg.Browser.Enabled {
		pc.Browser = env.Browser()
	}
	return pc
}

func listenAddr(cmd *cli.Command, cfg *config.Config) string {
	if addr := cmd.String("addr"); addr != "" {
		return addr
	}
	if port := os.Getenv("PORT"); port != "" {
		return ":" + port
	}
	return cfg.Listen
}

func runServe(ctx context.Context, cmd *cli.Command) error {
	env := state.EnvFromContext(ctx)
	addr := listenAddr(cmd, env.Cfg)

	srv := &http.Server{
		Addr:    addr,
		Handler: proxy.New(proxyConfig(env)),
		// Conservative timeouts to avoid slowloris and leaked connections blocking the server
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      2 * time.Minute,
		IdleTimeout:       60 * time.Second,
		ErrorLog:          zap.NewStdLog(env.Log.Named("httperr")),
		ConnState: func(c net.Conn, s http.ConnState) {
			env.Log.Debug("CONN", zap.String("state", s.String()), zap.String("remote", c.RemoteAddr().String()))
		},
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", addr, err)
	}
	env.Log.Info("Listening", zap.String("addr", ln.Addr().String()), zap.Bool("browser", env.Cfg.Browser.Enabled))

	errc := make(chan error, 1)
	go func() { errc <- srv.Serve(ln) }()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}
	env.Log.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	if err := <-errc; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
