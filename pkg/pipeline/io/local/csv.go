package local

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/palantir/contact-enrichment/pkg/pipeline/core"
)

// ContactRecord is one input row. Every field is raw text; blank means unknown.
type ContactRecord struct {
	ID        string
	FirstName string
	LastName  string
	Company   string
	Title     string
	Email     string
	Phone     string
	LinkedIn  string
	GitHub    string
	Twitter   string
}

// Columns lists the recognised input columns. Header matching ignores case
// and underscores, so "first_name" and "FirstName" are both accepted.
func Columns() []string {
	return []string{"id", "firstName", "lastName", "company", "title", "email", "phone", "linkedin", "github", "twitter"}
}

// ReadContactsCSV reads contacts from a CSV with a header row. The "id"
// column is required; rows with a blank id get "row-<n>" (1-based).
// Unknown columns are ignored.
func ReadContactsCSV(r io.Reader) ([]ContactRecord, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	index := make(map[string]int, len(header))
	for i, col := range header {
		key := normalizeColumn(col)
		if _, dup := index[key]; !dup {
			index[key] = i
		}
	}
	if _, ok := index["id"]; !ok {
		return nil, fmt.Errorf("missing required column %q", "id")
	}

	var out []ContactRecord
	for n := 1; ; n++ {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read row %d: %w", n, err)
		}
		get := func(col string) string {
			i, ok := index[normalizeColumn(col)]
			if !ok || i >= len(rec) {
				return ""
			}
			return strings.TrimSpace(rec[i])
		}
		c := ContactRecord{
			ID:        get("id"),
			FirstName: get("firstName"),
			LastName:  get("lastName"),
			Company:   get("company"),
			Title:     get("title"),
			Email:     get("email"),
			Phone:     get("phone"),
			LinkedIn:  get("linkedin"),
			GitHub:    get("github"),
			Twitter:   get("twitter"),
		}
		if c.ID == "" {
			c.ID = fmt.Sprintf("row-%d", n)
		}
		out = append(out, c)
	}
	return out, nil
}

func normalizeColumn(s string) string {
	return strings.ToLower(strings.ReplaceAll(strings.TrimSpace(s), "_", ""))
}

// ContactsFile loads contacts from a CSV file on disk.
type ContactsFile struct {
	Path string
}

var _ core.InputAdapter[ContactRecord] = ContactsFile{}

func (f ContactsFile) Load(ctx context.Context) ([]ContactRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	in, err := os.Open(f.Path)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = in.Close()
	}()
	return ReadContactsCSV(in)
}
