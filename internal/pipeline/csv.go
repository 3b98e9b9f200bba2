package pipeline

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/palantir/contact-enrichment/pkg/pipeline/core"
)

// WriteCSV writes rows as a CSV with the stable Header() ordering.
func WriteCSV(w io.Writer, rows []Row) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Header()); err != nil {
		return err
	}
	for _, r := range rows {
		if err := cw.Write([]string{
			r.ContactID,
			r.Status,
			r.Error,
			r.RecordID,
			strconv.Itoa(r.Rounds),
			r.Contact,
			r.Profile,
			r.Trace,
		}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// ReadCSV reads rows from a CSV using the stable Header() contract.
//
// Extra columns are ignored. Required columns from Header() must exist.
func ReadCSV(r io.Reader) ([]Row, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err != nil {
		return nil, err
	}
	index := make(map[string]int, len(header))
	for i, name := range header {
		index[strings.TrimSpace(name)] = i
	}
	for _, name := range Header() {
		if _, ok := index[name]; !ok {
			return nil, fmt.Errorf("missing required column %q", name)
		}
	}

	var rows []Row
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			return rows, nil
		}
		if err != nil {
			return nil, err
		}

		get := func(col string) string {
			i := index[col]
			if i >= len(rec) {
				return ""
			}
			return rec[i]
		}

		rounds := 0
		if v := strings.TrimSpace(get("rounds")); v != "" {
			rounds, err = strconv.Atoi(v)
			if err != nil {
				return nil, fmt.Errorf("contact %s: invalid rounds %q", get("contact_id"), v)
			}
		}
		rows = append(rows, Row{
			ContactID: get("contact_id"),
			Status:    get("status"),
			Error:     get("error"),
			RecordID:  get("record_id"),
			Rounds:    rounds,
			Contact:   get("contact"),
			Profile:   get("profile"),
			Trace:     get("trace"),
		})
	}
}

// CSVFile stores rows at Path, replacing the file atomically.
type CSVFile struct {
	Path string
}

var _ core.OutputAdapter[Row] = CSVFile{}

func (f CSVFile) Store(ctx context.Context, rows []Row) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	dir := filepath.Dir(f.Path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, ".enrich-*.csv")
	if err != nil {
		return err
	}
	defer func() {
		_ = os.Remove(tmp.Name())
	}()
	if err := WriteCSV(tmp, rows); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), f.Path)
}
