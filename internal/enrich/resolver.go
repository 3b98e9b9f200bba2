package enrich

import (
	"context"
	"errors"
	"fmt"
)

// ErrInvalidResolver is returned when a resolver descriptor is malformed.
var ErrInvalidResolver = errors.New("invalid resolver")

// RunFunc performs the provider call for the given snapshot. A returned error
// means the call itself failed; provider-level failures with a status belong
// in Result.Error.
type RunFunc func(ctx context.Context, snapshot EnrichedData) (Result, error)

// Resolver describes one provider: what it can supply and when it may run.
//
// Several resolvers may share a Name to model alternative strategies for the
// same provider. The engine tracks them by pointer, never by name.
type Resolver struct {
	Name string
	// Priority orders candidates; lower runs first.
	Priority  int
	Provides  []FieldPath
	DependsOn Expr
	Run       RunFunc
}

// Validate checks the descriptor against the field schema.
func (r *Resolver) Validate() error {
	if r == nil {
		return fmt.Errorf("%w: nil resolver", ErrInvalidResolver)
	}
	if r.Name == "" {
		return fmt.Errorf("%w: empty name", ErrInvalidResolver)
	}
	if r.Run == nil {
		return fmt.Errorf("%w: %s has no run function", ErrInvalidResolver, r.Name)
	}
	if len(r.Provides) == 0 {
		return fmt.Errorf("%w: %s provides no fields", ErrInvalidResolver, r.Name)
	}
	for _, p := range r.Provides {
		if !p.Valid() {
			return fmt.Errorf("%w: %s provides unknown field %q", ErrInvalidResolver, r.Name, p)
		}
	}
	for _, p := range ExtractFieldPaths(r.DependsOn) {
		if !p.Valid() {
			return fmt.Errorf("%w: %s depends on unknown field %q", ErrInvalidResolver, r.Name, p)
		}
	}
	return nil
}

// providesMissing reports whether at least one provided field is still
// missing from the snapshot.
func (r *Resolver) providesMissing(d EnrichedData) bool {
	for _, p := range r.Provides {
		if !IsMeaningful(GetFieldValue(d, p)) {
			return true
		}
	}
	return false
}

// APIError is a provider-reported failure. HTTPStatusCode is zero when the
// provider did not report one.
type APIError struct {
	Message        string
	HTTPStatusCode int
}

func (e *APIError) Error() string {
	if e == nil {
		return "provider error"
	}
	if e.HTTPStatusCode != 0 {
		return fmt.Sprintf("status %d: %s", e.HTTPStatusCode, e.Message)
	}
	return e.Message
}

// Result is what a resolver returns for one call.
type Result struct {
	// Data holds only the fields contributed by this call.
	Data  *EnrichedData
	Error *APIError
	// ShouldRetry keeps the resolver eligible for a later round.
	ShouldRetry bool
	// Media lists assets still uploading that Data refers to through
	// temporary logo ids.
	Media []PendingAsset
}

// PendingAsset is an asset whose upload may still be in flight. ID is known
// up front; Wait blocks until the upload settles.
type PendingAsset struct {
	ID   string
	Wait func(ctx context.Context) error
}

// ResolvedAsset returns a PendingAsset that has already settled with err.
func ResolvedAsset(id string, err error) PendingAsset {
	return PendingAsset{ID: id, Wait: func(context.Context) error { return err }}
}
