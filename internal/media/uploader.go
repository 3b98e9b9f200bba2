// Package media fetches and stores avatar and logo images on behalf of
// resolver adapters.
package media

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/palantir/contact-enrichment/internal/enrich"
	"github.com/palantir/contact-enrichment/internal/storage/sqlite"
)

// Defaults applied by New.
const (
	DefaultTimeout  = 30 * time.Second
	DefaultMaxBytes = 5 << 20
)

// BlobStore persists uploaded bytes.
type BlobStore interface {
	PutAsset(ctx context.Context, a sqlite.Asset) error
}

// StatusError is returned when the source url answers with a non-200 status.
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("fetch %s: status %d", e.URL, e.StatusCode)
}

// ErrTooLarge is returned for sources bigger than the configured limit.
var ErrTooLarge = errors.New("media too large")

// Config tunes an Uploader. Zero values take the defaults.
type Config struct {
	Client *http.Client
	// Timeout bounds a background fetch. It is independent of the caller's
	// context so an upload outlives the round that started it.
	Timeout  time.Duration
	MaxBytes int64
	Logger   *zap.Logger
}

// Uploader implements enrich.MediaUploader.
type Uploader struct {
	store    BlobStore
	client   *http.Client
	timeout  time.Duration
	maxBytes int64
	log      *zap.Logger

	wg sync.WaitGroup
}

var _ enrich.MediaUploader = (*Uploader)(nil)

// New returns an Uploader writing to store.
func New(store BlobStore, cfg Config) *Uploader {
	u := &Uploader{
		store:    store,
		client:   cfg.Client,
		timeout:  cfg.Timeout,
		maxBytes: cfg.MaxBytes,
		log:      cfg.Logger,
	}
	if u.client == nil {
		u.client = &http.Client{}
	}
	if u.timeout <= 0 {
		u.timeout = DefaultTimeout
	}
	if u.maxBytes <= 0 {
		u.maxBytes = DefaultMaxBytes
	}
	if u.log == nil {
		u.log = zap.NewNop()
	}
	return u
}

// UploadFromURL assigns an id and fetches url in the background. The returned
// asset's Wait reports the outcome.
func (u *Uploader) UploadFromURL(ctx context.Context, url string) enrich.PendingAsset {
	id := uuid.NewString()
	done := make(chan struct{})
	var err error

	bg, cancel := context.WithTimeout(context.WithoutCancel(ctx), u.timeout)
	u.wg.Add(1)
	go func() {
		defer u.wg.Done()
		defer cancel()
		defer close(done)
		err = u.fetch(bg, id, url)
		if err != nil {
			u.log.Debug("media fetch failed", zap.String("asset", id), zap.String("url", url), zap.Error(err))
		}
	}()

	return enrich.PendingAsset{
		ID: id,
		Wait: func(ctx context.Context) error {
			select {
			case <-done:
				return err
			case <-ctx.Done():
				return ctx.Err()
			}
		},
	}
}

// Upload stores data directly and returns its id.
func (u *Uploader) Upload(ctx context.Context, contentType string, data []byte) (string, error) {
	if int64(len(data)) > u.maxBytes {
		return "", ErrTooLarge
	}
	id := uuid.NewString()
	if err := u.store.PutAsset(ctx, sqlite.Asset{ID: id, ContentType: contentType, Data: data}); err != nil {
		return "", err
	}
	return id, nil
}

// Wait blocks until every background fetch has settled.
func (u *Uploader) Wait() {
	u.wg.Wait()
}

func (u *Uploader) fetch(ctx context.Context, id, url string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	resp, err := u.client.Do(req)
	if err != nil {
		return fmt.Errorf("fetch %s: %w", url, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		return &StatusError{URL: url, StatusCode: resp.StatusCode}
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, u.maxBytes+1))
	if err != nil {
		return fmt.Errorf("read %s: %w", url, err)
	}
	if int64(len(data)) > u.maxBytes {
		return ErrTooLarge
	}
	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = http.DetectContentType(data)
	}
	contentType, _, _ = strings.Cut(contentType, ";")
	return u.store.PutAsset(ctx, sqlite.Asset{
		ID:          id,
		ContentType: strings.TrimSpace(contentType),
		SourceURL:   url,
		Data:        data,
	})
}
