// Package state defines shared program state.
package state

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"respbg/internal/browser"
	"respbg/internal/config"
)

type envKey struct{}

// LocalEnv keeps everything program needs in a single place.
type LocalEnv struct {
	Cfg *config.Config
	Log *zap.Logger

	start         time.Time
	restoreStdLog func()

	browserOnce sync.Once
	browser     *browser.Browser
}

func EnvFromContext(ctx context.Context) *LocalEnv {
	if env, ok := ctx.Value(envKey{}).(*LocalEnv); ok {
		return env
	}
	// this should never happen
	panic("localenv not found in context")
}

func ContextWithEnv(ctx context.Context) context.Context {
	return context.WithValue(ctx, envKey{}, newLocalEnv())
}

func newLocalEnv() *LocalEnv {
	return &LocalEnv{
		Cfg:   config.Default(),
		Log:   zap.NewNop(),
		start: time.Now(),
	}
}

func (e *LocalEnv) Uptime() time.Duration {
	return time.Since(e.start)
}

// Browser starts the headless browser on first use. It is shut down by
// Close.
func (e *LocalEnv) Browser() *browser.Browser {
	e.browserOnce.Do(func() {
		bc := e.Cfg.Browser
		e.browser = browser.New(browser.Options{
			Timeout:       time.Duration(bc.TimeoutMS) * time.Millisecond,
			WaitAfterLoad: time.Duration(bc.WaitAfterLoadMS) * time.Millisecond,
			WaitSelector:  bc.WaitSelector,
		}, e.Log.Named("browser"))
	})
	return e.browser
}

// Close releases resources started on demand.
func (e *LocalEnv) Close() {
	if e.browser != nil {
		e.browser.Close()
	}
}

func (e *LocalEnv) RedirectStdLog() {
	if e.Log == nil {
		return
	}
	e.restoreStdLog = zap.RedirectStdLog(e.Log)
}

func (e *LocalEnv) RestoreStdLog() {
	if e.Log != nil {
		_ = e.Log.Sync()
	}
	if e.restoreStdLog != nil {
		e.restoreStdLog()
	}
}
