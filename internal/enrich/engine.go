package enrich

import (
	"cmp"
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"strings"

	"go.uber.org/zap"
)

// DefaultMaxRounds bounds a run when Options.MaxRounds is unset.
const DefaultMaxRounds = 5

// Options configures an Engine.
type Options struct {
	MaxRounds   int
	Exclusivity ExclusivityRules

	// Store persists results after every round that produced data. Nil
	// disables persistence.
	Store    Store
	Reporter Reporter
	Logger   *zap.Logger
}

func (o Options) withDefaults() Options {
	if o.MaxRounds <= 0 {
		o.MaxRounds = DefaultMaxRounds
	}
	if o.Reporter == nil {
		o.Reporter = nopReporter{}
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	return o
}

// Engine schedules resolvers against a contact until nothing more can be
// learned. An Engine holds no per-run state and may serve concurrent runs.
type Engine struct {
	resolvers []*Resolver
	opts      Options
}

// NewEngine validates the resolvers and returns an engine over them. The slice
// order is kept as the tie-break for equal priorities.
func NewEngine(resolvers []*Resolver, opts Options) (*Engine, error) {
	seen := make(map[*Resolver]struct{}, len(resolvers))
	for _, r := range resolvers {
		if err := r.Validate(); err != nil {
			return nil, err
		}
		if _, dup := seen[r]; dup {
			return nil, fmt.Errorf("%w: %s registered twice", ErrInvalidResolver, r.Name)
		}
		seen[r] = struct{}{}
	}
	opts = opts.withDefaults()
	opts.Exclusivity = opts.Exclusivity.Clone()
	return &Engine{resolvers: slices.Clone(resolvers), opts: opts}, nil
}

// Resolvers returns the registered resolvers.
func (e *Engine) Resolvers() []*Resolver {
	return slices.Clone(e.resolvers)
}

// Request is the input of one run.
type Request struct {
	UserID    string
	ContactID string
	Contact   Contact
	// Profile is usually empty; it seeds the profile section when known.
	Profile Profile
}

// CommittedError reports a run that failed after creating its record. The
// run must not be replayed from scratch: that would create a second record
// and count the contact twice.
type CommittedError struct {
	RecordID string
	Err      error
}

func (e *CommittedError) Error() string {
	return fmt.Sprintf("record %s written before failure: %v", e.RecordID, e.Err)
}

func (e *CommittedError) Unwrap() error {
	return e.Err
}

// Retryable always reports false, whatever the underlying error.
func (e *CommittedError) Retryable() bool {
	return false
}

// runState is the value folded over rounds. Each round works on a copy.
type runState struct {
	current  EnrichedData
	enriched EnrichedData
	trace    Trace
	used     map[*Resolver]struct{}
	recordID string
}

func (s runState) clone() runState {
	used := make(map[*Resolver]struct{}, len(s.used))
	for r := range s.used {
		used[r] = struct{}{}
	}
	return runState{
		current:  s.current.Clone(),
		enriched: s.enriched.Clone(),
		trace:    s.trace.Clone(),
		used:     used,
		recordID: s.recordID,
	}
}

func (s runState) result(rounds int) EnrichResult {
	return EnrichResult{
		Enriched: s.enriched,
		Trace:    s.trace,
		RecordID: s.recordID,
		Rounds:   rounds,
	}
}

// fail returns the partial result of a run stopped by err. Once a record was
// written the error is wrapped in a CommittedError.
func (s runState) fail(rounds int, err error) (EnrichResult, error) {
	res := s.result(rounds)
	if res.RecordID != "" {
		err = &CommittedError{RecordID: res.RecordID, Err: err}
	}
	return res, err
}

// Enrich runs resolvers round after round. Each round executes at most one
// resolver, then eligibility is recomputed from scratch. The run ends at the
// fixpoint (no candidate left) or after MaxRounds rounds.
//
// Provider failures never abort a run. An error is returned only when the
// context ends or the store fails; the result then holds what was gathered.
// A run that fails after its record was created returns a *CommittedError.
func (e *Engine) Enrich(ctx context.Context, req Request) (EnrichResult, error) {
	log := e.opts.Logger.With(zap.String("contact", req.ContactID))
	initial := EnrichedData{Contact: req.Contact.Clone(), Profile: req.Profile.Clone()}
	state := runState{
		current: initial.Clone(),
		trace:   Trace{},
		used:    make(map[*Resolver]struct{}),
	}

	rounds := 0
	for rounds < e.opts.MaxRounds {
		if err := ctx.Err(); err != nil {
			return state.fail(rounds, err)
		}
		candidates := e.candidates(state)
		if len(candidates) == 0 {
			log.Debug("fixpoint reached", zap.Int("rounds", rounds))
			break
		}
		rounds++

		next, err := e.round(ctx, log, req, initial, state, candidates)
		if err != nil {
			return next.fail(rounds, err)
		}
		state = next
	}

	log.Info("enrichment finished",
		zap.Int("rounds", rounds),
		zap.Int("fields", len(state.trace)),
		zap.String("record", state.recordID),
	)
	return state.result(rounds), nil
}

// candidates returns the resolvers eligible this round, by ascending priority.
func (e *Engine) candidates(s runState) []*Resolver {
	var out []*Resolver
	for _, r := range e.resolvers {
		if _, used := s.used[r]; used {
			continue
		}
		if !Evaluate(s.current, r.DependsOn) {
			continue
		}
		if !r.providesMissing(s.current) {
			continue
		}
		if e.opts.Exclusivity.Blocked(r.Name, s.trace) {
			continue
		}
		out = append(out, r)
	}
	slices.SortStableFunc(out, func(a, b *Resolver) int {
		return cmp.Compare(a.Priority, b.Priority)
	})
	return out
}

// round tries candidates in order until one completes, and returns the state
// that results from it.
func (e *Engine) round(
	ctx context.Context,
	log *zap.Logger,
	req Request,
	initial EnrichedData,
	prev runState,
	candidates []*Resolver,
) (runState, error) {
	next := prev.clone()
	for _, r := range candidates {
		rlog := log.With(zap.String("resolver", r.Name))
		if ce := rlog.Check(zap.DebugLevel, "running resolver"); ce != nil {
			ce.Write(
				zap.Int("priority", r.Priority),
				zap.String("dependsOn", Describe(r.DependsOn)),
				zap.String("inputs", inputSummary(next.current, r.DependsOn)),
			)
		}

		res, err := runResolver(ctx, r, next.current.Clone())
		if err != nil {
			next.used[r] = struct{}{}
			rlog.Warn("resolver failed", zap.Error(err))
			e.opts.Reporter.Report(ctx, fmt.Sprintf("Error in resolver %s: %v", r.Name, err), map[string]any{
				"resolver": r.Name,
				"contact":  req.ContactID,
			})
			continue
		}

		if res.Error != nil && res.Error.HTTPStatusCode != 0 && res.Error.HTTPStatusCode != 404 {
			e.opts.Reporter.Report(ctx, fmt.Sprintf("Error in resolver %s: %s", r.Name, res.Error.Message), map[string]any{
				"resolver":       r.Name,
				"contact":        req.ContactID,
				"httpStatusCode": res.Error.HTTPStatusCode,
			})
		}

		previousAssets := assetIDs(next.enriched)
		merged := next.apply(r.Name, initial, res.Data)
		rlog.Debug("resolver completed",
			zap.Int("merged", len(merged)),
			zap.Bool("retry", res.ShouldRetry),
			zap.Int("pendingAssets", len(res.Media)),
		)

		if len(merged) > 0 && e.opts.Store != nil {
			if err := e.persist(ctx, req, &next, previousAssets); err != nil {
				return next, err
			}
		}
		if len(res.Media) > 0 {
			if err := e.finalizeMedia(ctx, rlog, req, &next, res.Media); err != nil {
				return next, err
			}
		}

		if !res.ShouldRetry {
			next.used[r] = struct{}{}
		}
		return next, nil
	}
	return next, nil
}

func runResolver(ctx context.Context, r *Resolver, snapshot EnrichedData) (res Result, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("resolver %s panicked: %v", r.Name, p)
		}
	}()
	return r.Run(ctx, snapshot)
}

// apply folds a resolver's data into the state. The diff is taken against the
// initial snapshot, then deduplicated against the working snapshot. Values
// may be replaced by later resolvers but the first writer keeps the trace
// entry. It returns the paths that changed.
func (s *runState) apply(name string, initial EnrichedData, data *EnrichedData) []FieldPath {
	if data == nil {
		return nil
	}
	delta := EnrichedData{
		Contact: DedupeContact(DiffContact(initial.Contact, data.Contact), s.current.Contact),
		Profile: DiffProfile(initial.Profile, data.Profile),
	}
	delta = dropUnchanged(delta, s.current)
	paths := delta.Paths()
	if len(paths) == 0 {
		return nil
	}
	s.enriched = Merge(s.enriched, delta)
	s.current = Merge(s.current, delta)
	for _, p := range paths {
		if _, ok := s.trace[p]; !ok {
			s.trace[p] = name
		}
	}
	return paths
}

// dropUnchanged removes from delta what current already holds: equal scalars
// and list elements. Replacing a scalar with a different value still counts.
func dropUnchanged(delta, current EnrichedData) EnrichedData {
	return EnrichedData{
		Contact: dropSection(contactFields, delta.Contact, current.Contact),
		Profile: dropSection(profileFields, delta.Profile, current.Profile),
	}
}

func (e *Engine) persist(ctx context.Context, req Request, s *runState, previousAssets []string) error {
	current := assetIDs(s.enriched)
	rec := EnrichmentRecord{
		UserID:    req.UserID,
		ContactID: req.ContactID,
		Fields:    s.enriched.Contact.Clone(),
		Profile:   s.enriched.Profile.Clone(),
		Trace:     s.trace.Clone(),
	}
	recordID := s.recordID
	err := e.opts.Store.InTx(ctx, func(tx Tx) error {
		if err := tx.ReferenceAssets(ctx, current, previousAssets); err != nil {
			return fmt.Errorf("reference assets: %w", err)
		}
		if recordID != "" {
			if err := tx.UpdateEnrichment(ctx, recordID, rec); err != nil {
				return fmt.Errorf("update enrichment %s: %w", recordID, err)
			}
			return nil
		}
		id, err := tx.CreateEnrichment(ctx, rec)
		if err != nil {
			return fmt.Errorf("create enrichment: %w", err)
		}
		if req.UserID != "" {
			if err := tx.IncrementEnrichmentCount(ctx, req.UserID); err != nil {
				return fmt.Errorf("increment enrichment count: %w", err)
			}
		}
		recordID = id
		return nil
	})
	if err != nil {
		return err
	}
	s.recordID = recordID
	return nil
}

// assetIDs lists the asset ids the enriched data points at.
func assetIDs(d EnrichedData) []string {
	var out []string
	if v := d.Contact.AvatarID; truthy(v) {
		out = append(out, *v)
	}
	if v := d.Contact.LogoID; truthy(v) {
		out = append(out, *v)
	}
	for _, p := range d.Profile.Positions {
		if p.LogoID != "" {
			out = append(out, p.LogoID)
		}
	}
	for _, ed := range d.Profile.Education {
		if ed.LogoID != "" {
			out = append(out, ed.LogoID)
		}
	}
	return out
}

func inputSummary(d EnrichedData, expr Expr) string {
	paths := ExtractFieldPaths(expr)
	parts := make([]string, 0, len(paths))
	for _, p := range paths {
		b, _ := json.Marshal(GetFieldValue(d, p))
		parts = append(parts, string(p)+"="+string(b))
	}
	return strings.Join(parts, ", ")
}
