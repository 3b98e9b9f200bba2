// Package logging builds the zap logger shared by the CLI and the engine, and
// adapts it into the engine's error sink.
package logging

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/palantir/contact-enrichment/internal/enrich"
	"github.com/palantir/contact-enrichment/pkg/pipeline/redact"
)

// New returns a JSON logger at level, or a console logger when development
// is set. Level accepts zap level names ("debug", "info", ...).
func New(level string, development bool) (*zap.Logger, error) {
	lvl := zapcore.InfoLevel
	if strings.TrimSpace(level) != "" {
		if err := lvl.UnmarshalText([]byte(strings.ToLower(strings.TrimSpace(level)))); err != nil {
			return nil, fmt.Errorf("invalid log level %q: %w", level, err)
		}
	}

	cfg := zap.NewProductionConfig()
	if development {
		cfg = zap.NewDevelopmentConfig()
	}
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	cfg.OutputPaths = []string{"stderr"}
	cfg.ErrorOutputPaths = []string{"stderr"}
	return cfg.Build()
}

// Reporter logs provider failures at error level with secrets scrubbed.
type Reporter struct {
	log *zap.Logger
}

var _ enrich.Reporter = (*Reporter)(nil)

func NewReporter(log *zap.Logger) *Reporter {
	if log == nil {
		log = zap.NewNop()
	}
	return &Reporter{log: log.Named("report")}
}

func (r *Reporter) Report(_ context.Context, message string, fields map[string]any) {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	zf := make([]zap.Field, 0, len(keys))
	for _, k := range keys {
		v := fields[k]
		if s, ok := v.(string); ok {
			v = redact.Secrets(s)
		}
		zf = append(zf, zap.Any(k, v))
	}
	r.log.Error(redact.Secrets(message), zf...)
}
