package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/palantir/contact-enrichment/internal/enrich"
	"github.com/palantir/contact-enrichment/pkg/pipeline/core"
	"github.com/palantir/contact-enrichment/pkg/pipeline/io/local"
	"github.com/palantir/contact-enrichment/pkg/pipeline/redact"
	"github.com/palantir/contact-enrichment/pkg/pipeline/worker"
)

const (
	StatusOK    = "ok"
	StatusEmpty = "empty"
	StatusError = "error"
)

// Row is the stable output schema of a batch run. Contact, Profile and Trace
// hold JSON objects; they are empty when nothing was found.
type Row struct {
	ContactID string
	Status    string
	Error     string
	RecordID  string
	Rounds    int
	Contact   string
	Profile   string
	Trace     string
}

// Header returns the stable CSV header for Row.
func Header() []string {
	return []string{
		"contact_id",
		"status",
		"error",
		"record_id",
		"rounds",
		"contact",
		"profile",
		"trace",
	}
}

type Options struct {
	// UserID owns every record written by the run.
	UserID         string
	Workers        int
	MaxRetries     int
	RequestTimeout time.Duration
	RateLimitRPS   float64
	FailFast       bool
	Logger         *zap.Logger
}

// Enricher is the part of *enrich.Engine the batch runner needs.
type Enricher interface {
	Enrich(ctx context.Context, req enrich.Request) (enrich.EnrichResult, error)
}

// RequestFromRecord turns one input row into an engine request. Social
// columns accept either a profile url or a bare handle.
func RequestFromRecord(userID string, c local.ContactRecord) enrich.Request {
	contact := enrich.Contact{
		FirstName: enrich.OptionalString(c.FirstName),
		LastName:  enrich.OptionalString(c.LastName),
		Company:   enrich.OptionalString(c.Company),
		Title:     enrich.OptionalString(c.Title),
	}
	if v := strings.TrimSpace(c.Email); v != "" {
		contact.Emails = []enrich.Email{{Address: v}}
	}
	if v := strings.TrimSpace(c.Phone); v != "" {
		contact.PhoneNumbers = []enrich.PhoneNumber{{Number: v}}
	}
	for _, s := range []struct{ label, value, host string }{
		{"linkedin", c.LinkedIn, "https://www.linkedin.com/in/"},
		{"github", c.GitHub, "https://github.com/"},
		{"twitter", c.Twitter, "https://twitter.com/"},
	} {
		v := strings.TrimSpace(s.value)
		if v == "" {
			continue
		}
		if !strings.Contains(v, "/") {
			v = s.host + strings.TrimPrefix(v, "@")
		}
		contact.Socials = append(contact.Socials, enrich.Social{Label: s.label, URL: v})
	}
	return enrich.Request{
		UserID:    userID,
		ContactID: strings.TrimSpace(c.ID),
		Contact:   contact,
	}
}

// EnrichContacts runs the enricher over all contacts and returns one row per
// contact, in input order.
//
// Errors from enrichment are recorded per-row and do not fail the full run
// unless FailFast is set.
func EnrichContacts(ctx context.Context, contacts []local.ContactRecord, enricher Enricher, opts Options) ([]Row, error) {
	policy := worker.FailurePolicyPartialOutput
	if opts.FailFast {
		policy = worker.FailurePolicyFailFast
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}

	runner := core.ProcessFunc[local.ContactRecord, enrich.EnrichResult](func(ctx context.Context, c local.ContactRecord) (enrich.EnrichResult, error) {
		req := RequestFromRecord(opts.UserID, c)
		if req.ContactID == "" {
			return enrich.EnrichResult{}, errors.New("empty contact id")
		}
		return enricher.Enrich(ctx, req)
	})

	out, err := worker.ProcessAll(ctx, contacts, runner.Process, worker.Options{
		Workers:           opts.Workers,
		MaxRetries:        opts.MaxRetries,
		RequestTimeout:    opts.RequestTimeout,
		RateLimitRPS:      opts.RateLimitRPS,
		FailurePolicy:     policy,
		BackoffInitial:    200 * time.Millisecond,
		BackoffMax:        2 * time.Second,
		BackoffJitterFrac: 0.2,
		Logger:            log,
	})
	if err != nil {
		return nil, err
	}

	rows := make([]Row, 0, len(out))
	for _, item := range out {
		row, err := toRow(item.Input.ID, item.Output, item.Err)
		if err != nil {
			return nil, fmt.Errorf("contact %s: %w", item.Input.ID, err)
		}
		if item.Err != nil {
			log.Warn("contact failed",
				zap.String("contact", item.Input.ID),
				zap.Int("attempts", item.Attempts),
				zap.String("error", row.Error),
			)
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func toRow(id string, res enrich.EnrichResult, runErr error) (Row, error) {
	row := Row{
		ContactID: strings.TrimSpace(id),
		RecordID:  res.RecordID,
		Rounds:    res.Rounds,
	}
	switch {
	case runErr != nil:
		row.Status = StatusError
		row.Error = redact.Secrets(runErr.Error())
	case len(res.Trace) == 0:
		row.Status = StatusEmpty
	default:
		row.Status = StatusOK
	}
	// A failed run still reports what was gathered before it stopped.
	if len(res.Trace) == 0 {
		return row, nil
	}

	var err error
	if row.Contact, err = jsonObject(res.Enriched.Contact); err != nil {
		return Row{}, err
	}
	if row.Profile, err = jsonObject(res.Enriched.Profile); err != nil {
		return Row{}, err
	}
	if row.Trace, err = jsonObject(res.Trace); err != nil {
		return Row{}, err
	}
	return row, nil
}

func jsonObject(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	if string(b) == "{}" {
		return "", nil
	}
	return string(b), nil
}
