// Package state defines shared program state.
package state

import (
	"context"
	"io"
	"time"

	"go.uber.org/zap"
	"golang.org/x/text/encoding"

	"cssdeps/config"
	"cssdeps/deps"
)

type envKey struct{}

// LocalEnv keeps everything program needs in a single place.
type LocalEnv struct {
	Cfg *config.Config
	Rpt *config.Report
	Log *zap.Logger

	// standard streams, replaced in tests
	Stdin  io.Reader
	Stdout io.Writer

	// used by extract subcommand
	CodePage encoding.Encoding
	Tracer   *deps.Tracer

	start         time.Time
	restoreStdLog func()
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

func (e *LocalEnv) Uptime() time.Duration {
	return time.Since(e.start)
}

// FlushTrace moves collected extraction traces into debug report.
func (e *LocalEnv) FlushTrace() {
	if names := e.Tracer.Flush(e.Rpt); len(names) > 0 && e.Log != nil {
		e.Log.Debug("Extraction trace stored in report", zap.Int("entries", len(names)))
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
