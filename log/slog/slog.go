// Package slog adapts a *slog.Logger to oncecache.Logger.
package slog

import (
	"context"
	stdslog "log/slog"

	"github.com/unkn0wn-root/oncecache"
)

var _ oncecache.Logger = Logger{}

// Logger logs through L with an optional group wrapping the cache fields.
type Logger struct {
	L     *stdslog.Logger
	Group string
}

func (s Logger) log(level stdslog.Level, msg string, f oncecache.Fields) {
	ctx := context.Background()
	if !s.L.Enabled(ctx, level) {
		return
	}
	as := make([]stdslog.Attr, 0, len(f))
	for k, v := range f {
		as = append(as, stdslog.Any(k, v))
	}
	if s.Group != "" && len(as) > 0 {
		as = []stdslog.Attr{{Key: s.Group, Value: stdslog.GroupValue(as...)}}
	}
	s.L.LogAttrs(ctx, level, msg, as...)
}

func (s Logger) Debug(msg string, f oncecache.Fields) { s.log(stdslog.LevelDebug, msg, f) }
func (s Logger) Info(msg string, f oncecache.Fields)  { s.log(stdslog.LevelInfo, msg, f) }
func (s Logger) Warn(msg string, f oncecache.Fields)  { s.log(stdslog.LevelWarn, msg, f) }
func (s Logger) Error(msg string, f oncecache.Fields) { s.log(stdslog.LevelError, msg, f) }
