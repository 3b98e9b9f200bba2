package enrich

import "context"

// EnrichmentRecord is the persisted shape of a run's output.
type EnrichmentRecord struct {
	UserID    string
	ContactID string
	Fields    Contact
	Profile   Profile
	// Trace is nil on updates that must leave the stored trace alone.
	Trace Trace
}

// Tx is the set of writes the engine issues inside one transaction.
type Tx interface {
	CreateEnrichment(ctx context.Context, rec EnrichmentRecord) (string, error)
	UpdateEnrichment(ctx context.Context, id string, rec EnrichmentRecord) error
	// ReferenceAssets retains newIDs and releases previousIDs.
	ReferenceAssets(ctx context.Context, newIDs, previousIDs []string) error
	IncrementEnrichmentCount(ctx context.Context, userID string) error
}

// Store runs fn in an all-or-nothing transaction.
type Store interface {
	InTx(ctx context.Context, fn func(tx Tx) error) error
}

// Reporter receives non-fatal provider errors and unexpected failures. It is
// never consulted for control decisions.
type Reporter interface {
	Report(ctx context.Context, message string, fields map[string]any)
}

// MediaUploader stores assets and hands back stable ids. Resolver adapters
// use it; the engine only sees the resulting PendingAsset values.
type MediaUploader interface {
	// UploadFromURL starts fetching url in the background.
	UploadFromURL(ctx context.Context, url string) PendingAsset
	Upload(ctx context.Context, contentType string, data []byte) (string, error)
}

type nopReporter struct{}

func (nopReporter) Report(context.Context, string, map[string]any) {}
