package enrich

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// AwaitAssets waits for every pending asset concurrently and returns the ids
// that resolved, in input order. A failed asset is skipped; onFailure, when
// set, is called for it after all assets settled.
func AwaitAssets(ctx context.Context, pending []PendingAsset, onFailure func(id string, err error)) []string {
	errs := make([]error, len(pending))
	var g errgroup.Group
	for i, p := range pending {
		if p.Wait == nil {
			continue
		}
		g.Go(func() error {
			errs[i] = p.Wait(ctx)
			return nil
		})
	}
	_ = g.Wait()

	var resolved []string
	for i, p := range pending {
		if p.ID == "" {
			continue
		}
		if errs[i] != nil {
			if onFailure != nil {
				onFailure(p.ID, errs[i])
			}
			continue
		}
		resolved = append(resolved, p.ID)
	}
	return resolved
}

// FinalizeLogos promotes temporary logo ids that resolved to logo ids and
// drops the others. The temporary id is always cleared.
func FinalizeLogos(p Profile, resolved []string) Profile {
	ok := make(map[string]struct{}, len(resolved))
	for _, id := range resolved {
		ok[id] = struct{}{}
	}
	out := p.Clone()
	for i := range out.Positions {
		finalizeLogo(&out.Positions[i].TempLogoID, &out.Positions[i].LogoID, ok)
	}
	for i := range out.Education {
		finalizeLogo(&out.Education[i].TempLogoID, &out.Education[i].LogoID, ok)
	}
	return out
}

func finalizeLogo(temp, logo *string, ok map[string]struct{}) {
	if *temp == "" {
		return
	}
	if _, found := ok[*temp]; found {
		*logo = *temp
	}
	*temp = ""
}

// without removes one occurrence of each element of drop from ids.
func without(ids, drop []string) []string {
	var out []string
	left := make(map[string]int, len(drop))
	for _, id := range drop {
		left[id]++
	}
	for _, id := range ids {
		if left[id] > 0 {
			left[id]--
			continue
		}
		out = append(out, id)
	}
	return out
}

// finalizeMedia drains the assets a round left in flight, patches the
// profile lists that refer to them and, when a record exists, stores the
// result as a separate update. Only logos that reached the enriched profile
// gain a reference.
func (e *Engine) finalizeMedia(ctx context.Context, log *zap.Logger, req Request, s *runState, pending []PendingAsset) error {
	resolved := AwaitAssets(ctx, pending, func(id string, err error) {
		log.Warn("asset upload failed", zap.String("asset", id), zap.Error(err))
	})
	log.Debug("assets settled", zap.Int("pending", len(pending)), zap.Int("resolved", len(resolved)))

	before := assetIDs(s.enriched)
	s.enriched.Profile = FinalizeLogos(s.enriched.Profile, resolved)
	s.current.Profile = FinalizeLogos(s.current.Profile, resolved)
	promoted := without(assetIDs(s.enriched), before)

	if e.opts.Store == nil || s.recordID == "" {
		return nil
	}
	rec := EnrichmentRecord{
		UserID:    req.UserID,
		ContactID: req.ContactID,
		Fields:    s.enriched.Contact.Clone(),
		Profile:   s.enriched.Profile.Clone(),
	}
	recordID := s.recordID
	return e.opts.Store.InTx(ctx, func(tx Tx) error {
		if err := tx.ReferenceAssets(ctx, promoted, nil); err != nil {
			return fmt.Errorf("reference finalized assets: %w", err)
		}
		if err := tx.UpdateEnrichment(ctx, recordID, rec); err != nil {
			return fmt.Errorf("update enrichment %s: %w", recordID, err)
		}
		return nil
	})
}
