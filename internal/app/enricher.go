package app

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/palantir/contact-enrichment/internal/pipeline"
	localio "github.com/palantir/contact-enrichment/pkg/pipeline/io/local"
)

// LocalOptions names the files of a local run.
type LocalOptions struct {
	InputPath  string
	OutputPath string
	// Incremental reuses rows with status ok from an existing output file
	// instead of enriching those contacts again.
	Incremental bool
}

// RunLocal reads a local input CSV of contacts and writes a local output CSV
// of enriched rows.
func RunLocal(ctx context.Context, files LocalOptions, opts pipeline.Options, enricher pipeline.Enricher, log *zap.Logger) error {
	if log == nil {
		log = zap.NewNop()
	}
	runID := fmt.Sprintf("run-%d", time.Now().UnixNano())
	log = log.With(zap.String("run", runID))
	runStart := time.Now()

	log.Info("local run start",
		zap.String("input", files.InputPath),
		zap.String("output", files.OutputPath),
		zap.Int("workers", opts.Workers),
		zap.Int("maxRetries", opts.MaxRetries),
		zap.Duration("timeout", opts.RequestTimeout),
		zap.Float64("rateLimitRPS", opts.RateLimitRPS),
		zap.Bool("failFast", opts.FailFast),
		zap.Bool("incremental", files.Incremental),
	)

	contacts, err := localio.ContactsFile{Path: files.InputPath}.Load(ctx)
	if err != nil {
		return err
	}
	log.Info("loaded contacts", zap.Int("count", len(contacts)))

	existing := map[string]pipeline.Row{}
	if files.Incremental {
		existing, err = readExistingOutputRows(files.OutputPath, log)
		if err != nil {
			return err
		}
	}
	plan := buildIncrementalPlan(contacts, existing)
	log.Info("incremental plan",
		zap.Int("inputRows", len(contacts)),
		zap.Int("cachedRows", plan.cachedRows),
		zap.Int("rowsToEnrich", plan.pendingRows),
		zap.Int("uniqueContactsToEnrich", len(plan.pending)),
	)

	enrichStart := time.Now()
	if len(plan.pending) > 0 {
		if opts.Logger == nil {
			opts.Logger = log
		}
		fresh, err := pipeline.EnrichContacts(ctx, plan.pending, newTracedEnricher(enricher, log, opts), opts)
		if err != nil {
			return err
		}
		if err := plan.applyEnrichedRows(fresh); err != nil {
			return err
		}
	}
	counts := countStatuses(plan.rows)
	log.Info("enrichment complete",
		zap.Int("produced", len(plan.rows)),
		zap.Int("ok", counts[pipeline.StatusOK]),
		zap.Int("empty", counts[pipeline.StatusEmpty]),
		zap.Int("error", counts[pipeline.StatusError]),
		zap.Duration("duration", time.Since(enrichStart).Round(time.Millisecond)),
	)

	if err := (pipeline.CSVFile{Path: files.OutputPath}).Store(ctx, plan.rows); err != nil {
		return err
	}
	log.Info("local run complete", zap.Duration("totalDuration", time.Since(runStart).Round(time.Millisecond)))
	return nil
}

type incrementalPlan struct {
	rows        []pipeline.Row
	pending     []localio.ContactRecord
	pendingIdx  map[string][]int
	cachedRows  int
	pendingRows int
}

// buildIncrementalPlan reuses prior ok rows and collects the contacts left to
// enrich. Duplicate ids in the input are enriched once.
func buildIncrementalPlan(contacts []localio.ContactRecord, existing map[string]pipeline.Row) incrementalPlan {
	plan := incrementalPlan{
		rows:       make([]pipeline.Row, len(contacts)),
		pendingIdx: make(map[string][]int),
	}
	for i, c := range contacts {
		key := contactKey(c.ID)
		if prev, ok := existing[key]; ok && prev.Status == pipeline.StatusOK {
			plan.rows[i] = prev
			plan.cachedRows++
			continue
		}
		if _, seen := plan.pendingIdx[key]; !seen {
			plan.pending = append(plan.pending, c)
		}
		plan.pendingIdx[key] = append(plan.pendingIdx[key], i)
		plan.pendingRows++
	}
	return plan
}

func (p *incrementalPlan) applyEnrichedRows(rows []pipeline.Row) error {
	if len(rows) != len(p.pending) {
		return fmt.Errorf("incremental enrichment mismatch: got %d rows for %d pending contacts", len(rows), len(p.pending))
	}
	for i, c := range p.pending {
		idxs, ok := p.pendingIdx[contactKey(c.ID)]
		if !ok || len(idxs) == 0 {
			return fmt.Errorf("incremental enrichment mismatch: missing pending indexes for %q", c.ID)
		}
		for _, idx := range idxs {
			p.rows[idx] = rows[i]
		}
	}
	return nil
}

func readExistingOutputRows(path string, log *zap.Logger) (map[string]pipeline.Row, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			log.Info("incremental: no prior output found", zap.String("output", path))
			return map[string]pipeline.Row{}, nil
		}
		return nil, err
	}
	defer func() {
		_ = f.Close()
	}()

	rows, err := pipeline.ReadCSV(f)
	if err != nil {
		return nil, fmt.Errorf("parse prior output csv: %w", err)
	}
	out := make(map[string]pipeline.Row, len(rows))
	for _, row := range rows {
		key := contactKey(row.ContactID)
		if key == "" {
			continue
		}
		out[key] = row
	}
	log.Info("incremental: loaded prior output rows", zap.Int("count", len(out)))
	return out, nil
}

func contactKey(id string) string {
	return strings.TrimSpace(id)
}

func countStatuses(rows []pipeline.Row) map[string]int {
	out := make(map[string]int, 3)
	for _, row := range rows {
		out[row.Status]++
	}
	return out
}
