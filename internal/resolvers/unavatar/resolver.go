// Package unavatar looks up a contact avatar by email address.
package unavatar

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/palantir/contact-enrichment/internal/enrich"
)

const (
	// Name identifies the resolver in traces and exclusivity rules.
	Name            = "unavatar"
	DefaultPriority = 6
	DefaultBaseURL  = "https://unavatar.io"
	DefaultMaxBytes = 5 << 20
)

// Config configures a Resolver. Uploader is required.
type Config struct {
	BaseURL  string
	Priority int
	// Client defaults to an http.Client with a 30s timeout.
	Client *http.Client
	// MaxBytes bounds an avatar; larger images are rejected.
	MaxBytes int64
	Uploader enrich.MediaUploader
}

// Resolver fetches avatars from unavatar and stores them through the uploader.
type Resolver struct {
	base     string
	priority int
	client   *http.Client
	maxBytes int64
	uploader enrich.MediaUploader
}

// New returns a Resolver for cfg.
func New(cfg Config) (*Resolver, error) {
	if cfg.Uploader == nil {
		return nil, errors.New("unavatar: uploader is required")
	}
	r := &Resolver{
		base:     strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"),
		priority: cfg.Priority,
		client:   cfg.Client,
		maxBytes: cfg.MaxBytes,
		uploader: cfg.Uploader,
	}
	if r.base == "" {
		r.base = DefaultBaseURL
	}
	if r.priority == 0 {
		r.priority = DefaultPriority
	}
	if r.client == nil {
		r.client = &http.Client{Timeout: 30 * time.Second}
	}
	if r.maxBytes <= 0 {
		r.maxBytes = DefaultMaxBytes
	}
	return r, nil
}

// Descriptor returns the engine-facing description of the resolver.
func (r *Resolver) Descriptor() *enrich.Resolver {
	return &enrich.Resolver{
		Name:      Name,
		Priority:  r.priority,
		Provides:  []enrich.FieldPath{enrich.ContactAvatarID},
		DependsOn: enrich.ContactEmails,
		Run:       r.Run,
	}
}

// Run tries each email in order and stores the first avatar found.
func (r *Resolver) Run(ctx context.Context, snapshot enrich.EnrichedData) (enrich.Result, error) {
	var lastErr *enrich.APIError
	for _, e := range snapshot.Contact.Emails {
		addr := strings.ToLower(strings.TrimSpace(e.Address))
		if addr == "" {
			continue
		}
		contentType, body, apiErr, err := r.fetch(ctx, addr)
		if err != nil {
			return enrich.Result{}, err
		}
		if apiErr != nil {
			if apiErr.HTTPStatusCode == http.StatusTooManyRequests || apiErr.HTTPStatusCode/100 == 5 {
				return enrich.Result{Error: apiErr, ShouldRetry: true}, nil
			}
			lastErr = apiErr
			continue
		}
		id, err := r.uploader.Upload(ctx, contentType, body)
		if err != nil {
			return enrich.Result{}, fmt.Errorf("unavatar: store avatar: %w", err)
		}
		return enrich.Result{Data: &enrich.EnrichedData{
			Contact: enrich.Contact{AvatarID: enrich.OptionalString(id)},
		}}, nil
	}
	return enrich.Result{Error: lastErr}, nil
}

func (r *Resolver) fetch(ctx context.Context, email string) (string, []byte, *enrich.APIError, error) {
	u := r.base + "/" + url.PathEscape(email) + "?fallback=false"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return "", nil, nil, fmt.Errorf("unavatar: build request: %w", err)
	}
	resp, err := r.client.Do(req)
	if err != nil {
		return "", nil, nil, fmt.Errorf("unavatar: get avatar: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		return "", nil, &enrich.APIError{Message: resp.Status, HTTPStatusCode: resp.StatusCode}, nil
	}
	contentType := resp.Header.Get("Content-Type")
	if !strings.HasPrefix(contentType, "image/") {
		return "", nil, &enrich.APIError{Message: "unexpected content type " + contentType, HTTPStatusCode: http.StatusNotFound}, nil
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, r.maxBytes+1))
	if err != nil {
		return "", nil, nil, fmt.Errorf("unavatar: read avatar: %w", err)
	}
	if int64(len(body)) > r.maxBytes {
		return "", nil, &enrich.APIError{
			Message:        fmt.Sprintf("avatar larger than %d bytes", r.maxBytes),
			HTTPStatusCode: http.StatusRequestEntityTooLarge,
		}, nil
	}
	return contentType, body, nil, nil
}
