package app

import (
	"context"
	"errors"
	"net"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/palantir/contact-enrichment/internal/enrich"
	"github.com/palantir/contact-enrichment/internal/pipeline"
	"github.com/palantir/contact-enrichment/pkg/pipeline/core"
	"github.com/palantir/contact-enrichment/pkg/pipeline/redact"
)

// tracedEnricher logs every attempt made for a contact, including whether the
// worker is going to retry it.
type tracedEnricher struct {
	next           pipeline.Enricher
	log            *zap.Logger
	maxRetries     int
	requestTimeout time.Duration

	mu       sync.Mutex
	attempts map[string]int
}

func newTracedEnricher(next pipeline.Enricher, log *zap.Logger, opts pipeline.Options) *tracedEnricher {
	return &tracedEnricher{
		next:           next,
		log:            log,
		maxRetries:     opts.MaxRetries,
		requestTimeout: opts.RequestTimeout,
		attempts:       make(map[string]int),
	}
}

func (t *tracedEnricher) Enrich(ctx context.Context, req enrich.Request) (enrich.EnrichResult, error) {
	attempt := t.nextAttempt(req.ContactID)
	log := t.log.With(zap.String("contact", req.ContactID), zap.Int("attempt", attempt))

	deadlineIn := "none"
	if d, ok := ctx.Deadline(); ok {
		deadlineIn = time.Until(d).Round(time.Millisecond).String()
	}
	log.Debug("enrich request",
		zap.Duration("timeout", t.requestTimeout),
		zap.String("deadlineIn", deadlineIn),
		zap.Any("contact", req.Contact),
	)

	start := time.Now()
	out, err := t.next.Enrich(ctx, req)
	elapsed := time.Since(start).Round(time.Millisecond)

	if err != nil {
		maxRetries := maxRetryBudgetForErr(t.maxRetries, err)
		retryable := isRetryableError(err)
		log.Warn("enrich response",
			zap.Duration("duration", elapsed),
			zap.String("status", "error"),
			zap.Bool("retryable", retryable),
			zap.Bool("willRetry", retryable && attempt <= maxRetries),
			zap.Int("maxExtraRetries", maxRetries),
			zap.String("error", redact.Secrets(err.Error())),
			zap.Int("partialFields", len(out.Trace)),
		)
		return out, err
	}

	log.Info("enrich response",
		zap.Duration("duration", elapsed),
		zap.String("status", "ok"),
		zap.Int("rounds", out.Rounds),
		zap.Int("fields", len(out.Trace)),
		zap.String("record", out.RecordID),
	)
	return out, nil
}

func (t *tracedEnricher) nextAttempt(id string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.attempts[id]++
	return t.attempts[id]
}

type retryCap interface {
	MaxExtraRetries() int
}

func maxRetryBudgetForErr(defaultMax int, err error) int {
	if defaultMax < 0 {
		defaultMax = 0
	}
	var capErr retryCap
	if errors.As(err, &capErr) {
		capMax := max(capErr.MaxExtraRetries(), 0)
		if capMax < defaultMax {
			return capMax
		}
	}
	return defaultMax
}

func isRetryableError(err error) bool {
	if err == nil || core.IsPermanent(err) {
		return false
	}
	if core.IsTransient(err) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
