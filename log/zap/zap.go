// Package zap adapts a *zap.Logger to oncecache.Logger.
package zap

import (
	"sort"

	"github.com/unkn0wn-root/oncecache"
	"go.uber.org/zap"
)

var _ oncecache.Logger = Logger{}

type Logger struct{ L *zap.Logger }

// New names the logger "oncecache".
func New(l *zap.Logger) Logger { return Logger{L: l.Named("oncecache")} }

func (z Logger) Debug(msg string, f oncecache.Fields) { z.L.Debug(msg, fields(f)...) }
func (z Logger) Info(msg string, f oncecache.Fields)  { z.L.Info(msg, fields(f)...) }
func (z Logger) Warn(msg string, f oncecache.Fields)  { z.L.Warn(msg, fields(f)...) }
func (z Logger) Error(msg string, f oncecache.Fields) { z.L.Error(msg, fields(f)...) }

// fields sorts keys so output is stable; errors use zap's error encoding.
func fields(f oncecache.Fields) []zap.Field {
	if len(f) == 0 {
		return nil
	}
	keys := make([]string, 0, len(f))
	for k := range f {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]zap.Field, 0, len(f))
	for _, k := range keys {
		if err, ok := f[k].(error); ok {
			out = append(out, zap.NamedError(k, err))
			continue
		}
		out = append(out, zap.Any(k, f[k]))
	}
	return out
}
