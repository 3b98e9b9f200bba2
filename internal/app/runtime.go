package app

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"go.uber.org/zap"

	"github.com/palantir/contact-enrichment/internal/config"
	"github.com/palantir/contact-enrichment/internal/enrich"
	"github.com/palantir/contact-enrichment/internal/logging"
	"github.com/palantir/contact-enrichment/internal/media"
	"github.com/palantir/contact-enrichment/internal/resolvers/countrycode"
	"github.com/palantir/contact-enrichment/internal/resolvers/gemini"
	"github.com/palantir/contact-enrichment/internal/resolvers/github"
	"github.com/palantir/contact-enrichment/internal/resolvers/unavatar"
	"github.com/palantir/contact-enrichment/internal/storage/sqlite"
)

// Runtime holds everything a run needs. Close releases it.
type Runtime struct {
	Engine    *enrich.Engine
	Resolvers []*enrich.Resolver
	// Store and Uploader are nil when no database is configured.
	Store    *sqlite.Store
	Uploader *media.Uploader
}

// Build wires the engine from cfg.
func Build(ctx context.Context, cfg config.Config, log *zap.Logger) (*Runtime, error) {
	if log == nil {
		log = zap.NewNop()
	}
	rt := &Runtime{}

	var uploader enrich.MediaUploader
	if path := strings.TrimSpace(cfg.Database); path != "" {
		store, err := sqlite.Open(path)
		if err != nil {
			return nil, fmt.Errorf("open store: %w", err)
		}
		rt.Store = store
		rt.Uploader = media.New(store, media.Config{Logger: log.Named("media")})
		uploader = rt.Uploader
		log.Info("persistence enabled", zap.String("database", store.Path()))
	} else {
		log.Info("persistence disabled; media resolvers run without an uploader")
	}

	resolvers, err := BuildResolvers(ctx, cfg, uploader, log)
	if err != nil {
		_ = rt.Close()
		return nil, err
	}
	rt.Resolvers = resolvers

	opts := enrich.Options{
		MaxRounds:   cfg.MaxRounds,
		Exclusivity: enrich.ExclusivityRules(cfg.Exclusivity),
		Reporter:    logging.NewReporter(log),
		Logger:      log.Named("engine"),
	}
	if rt.Store != nil {
		opts.Store = rt.Store
	}
	engine, err := enrich.NewEngine(resolvers, opts)
	if err != nil {
		_ = rt.Close()
		return nil, err
	}
	rt.Engine = engine
	return rt, nil
}

// Close waits for background uploads, then closes the store.
func (rt *Runtime) Close() error {
	if rt.Uploader != nil {
		rt.Uploader.Wait()
	}
	if rt.Store != nil {
		return rt.Store.Close()
	}
	return nil
}

// BuildResolvers returns the enabled resolvers in a stable order. Resolvers
// that cannot run with the given settings are skipped with a log line.
func BuildResolvers(ctx context.Context, cfg config.Config, uploader enrich.MediaUploader, log *zap.Logger) ([]*enrich.Resolver, error) {
	if log == nil {
		log = zap.NewNop()
	}
	rc := cfg.Resolvers
	var out []*enrich.Resolver

	if !rc.GitHub.Disabled {
		r, err := github.New(ctx, github.Config{
			Token:    rc.GitHub.Token,
			BaseURL:  rc.GitHub.BaseURL,
			Priority: rc.GitHub.Priority,
			Uploader: uploader,
		})
		if err != nil {
			return nil, err
		}
		out = append(out, r.Descriptor())
	}

	if !rc.Unavatar.Disabled {
		r, err := unavatar.New(unavatar.Config{
			BaseURL:  rc.Unavatar.BaseURL,
			Priority: rc.Unavatar.Priority,
			Uploader: uploader,
		})
		switch {
		case err == nil:
			out = append(out, r.Descriptor())
		case uploader == nil:
			log.Info("resolver skipped", zap.String("resolver", unavatar.Name), zap.String("reason", "no uploader"))
		default:
			return nil, err
		}
	}

	if !rc.CountryCode.Disabled {
		out = append(out, countrycode.Descriptor(rc.CountryCode.Priority))
	}

	if !rc.Gemini.Disabled {
		if strings.TrimSpace(rc.Gemini.APIKey) == "" {
			log.Info("resolver skipped", zap.String("resolver", gemini.Name), zap.String("reason", "GEMINI_API_KEY not set"))
		} else {
			r, err := gemini.New(ctx, gemini.Config{
				APIKey:       rc.Gemini.APIKey,
				Model:        rc.Gemini.Model,
				BaseURL:      rc.Gemini.BaseURL,
				Priority:     rc.Gemini.Priority,
				RateLimitRPS: rc.Gemini.RateLimitRPS,
				Uploader:     uploader,
			})
			if err != nil {
				return nil, err
			}
			out = append(out, r.Descriptor())
		}
	}

	if len(out) == 0 {
		return nil, errors.New("no resolver enabled")
	}
	return out, nil
}

// ResolverInfo is the printable form of a resolver descriptor.
type ResolverInfo struct {
	Name      string   `json:"name"`
	Priority  int      `json:"priority"`
	Provides  []string `json:"provides"`
	DependsOn string   `json:"dependsOn"`
	Blocks    []string `json:"blocks,omitempty"`
}

// Describe lists resolvers in scheduling order.
func Describe(resolvers []*enrich.Resolver, exclusivity map[string][]string) []ResolverInfo {
	sorted := slices.Clone(resolvers)
	slices.SortStableFunc(sorted, func(a, b *enrich.Resolver) int {
		return a.Priority - b.Priority
	})
	out := make([]ResolverInfo, 0, len(sorted))
	for _, r := range sorted {
		info := ResolverInfo{
			Name:      r.Name,
			Priority:  r.Priority,
			DependsOn: enrich.Describe(r.DependsOn),
			Blocks:    slices.Clone(exclusivity[r.Name]),
		}
		for _, p := range r.Provides {
			info.Provides = append(info.Provides, string(p))
		}
		out = append(out, info)
	}
	return out
}
