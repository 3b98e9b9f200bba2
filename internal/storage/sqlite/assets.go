package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// Asset is a stored media blob.
type Asset struct {
	ID          string
	ContentType string
	SourceURL   string
	Data        []byte
}

// PutAsset stores a media blob under id. Writing an existing id replaces it.
func (s *Store) PutAsset(ctx context.Context, a Asset) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO assets (id, content_type, source_url, data, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			content_type = excluded.content_type,
			source_url = excluded.source_url,
			data = excluded.data
	`, a.ID, a.ContentType, a.SourceURL, a.Data, s.now())
	if err != nil {
		return classify(fmt.Errorf("storing asset %s: %w", a.ID, err))
	}
	return nil
}

// Asset loads a media blob.
func (s *Store) Asset(ctx context.Context, id string) (Asset, error) {
	a := Asset{ID: id}
	err := s.db.QueryRowContext(ctx, `
		SELECT content_type, source_url, data FROM assets WHERE id = ?
	`, id).Scan(&a.ContentType, &a.SourceURL, &a.Data)
	if errors.Is(err, sql.ErrNoRows) {
		return a, fmt.Errorf("asset %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return a, fmt.Errorf("loading asset: %w", err)
	}
	return a, nil
}
