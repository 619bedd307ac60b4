package engine

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"archscore/internal/config"
	"archscore/internal/domain"
	"archscore/internal/events"
	"archscore/internal/heuristics"
	"archscore/internal/repo"
	"archscore/internal/rules"
)

// ErrConnectionRejected is returned by strict link creation when no rule
// allows the edge.
var ErrConnectionRejected = errors.New("connection rejected")

// Weights guards the runtime parameter weights. Readers get clones.
type Weights struct {
	mu sync.RWMutex
	w  domain.ParameterWeights
}

func NewWeights(w domain.ParameterWeights) *Weights {
	return &Weights{w: w.Clone()}
}

func (h *Weights) Snapshot() domain.ParameterWeights {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.w.Clone()
}

// Update applies every weight or none.
func (h *Weights) Update(updates map[domain.Parameter]float64) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.w.SetAll(updates)
}

func (h *Weights) ApplyPreset(p domain.Preset) {
	h.mu.Lock()
	h.w.ApplyPreset(p)
	h.mu.Unlock()
}

func (h *Weights) Reset() {
	h.mu.Lock()
	h.w.Reset()
	h.mu.Unlock()
}

type Engine struct {
	DB        *sql.DB
	Repo      repo.Repo
	Events    events.Writer
	Config    *config.Config
	Rules     RuleEngine
	Evaluator Evaluator
	Defaults  *heuristics.Provider
	Weights   *Weights
	Logger    *slog.Logger
	Now       func() time.Time
}

// New wires an engine over db with the built-in heuristics table and the
// weights described by cfg.
func New(db *sql.DB, cfg *config.Config) (Engine, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	w, err := cfg.Weights()
	if err != nil {
		return Engine{}, err
	}
	re := NewRuleEngine(rules.NewRegistry())
	return Engine{
		DB:        db,
		Repo:      repo.Repo{DB: db},
		Events:    events.Writer{DB: db},
		Config:    cfg,
		Rules:     re,
		Evaluator: NewEvaluator(re, heuristics.NewAggregator()),
		Defaults:  heuristics.NewProvider(),
		Weights:   NewWeights(w),
		Logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
		Now:       time.Now,
	}, nil
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e Engine) timestamp() string {
	return e.now().UTC().Format(time.RFC3339)
}

func (e Engine) log() *slog.Logger {
	if e.Logger != nil {
		return e.Logger
	}
	return slog.Default()
}

func (e Engine) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

func newID(id string) string {
	if strings.TrimSpace(id) != "" {
		return strings.TrimSpace(id)
	}
	return uuid.NewString()
}

// normalizeSubtype upper-cases subtype names the way type names are, so
// "in-memory" finds the IN_MEMORY row.
func normalizeSubtype(s string) string {
	s = strings.TrimSpace(s)
	if s == "" || strings.EqualFold(s, heuristics.DefaultSubtype) {
		return s
	}
	return strings.NewReplacer("-", "_", " ", "_").Replace(strings.ToUpper(s))
}

func notFound(kind, id string) error {
	return fmt.Errorf("%s %s: %w", kind, id, repo.ErrNotFound)
}

func wrapNotFound(err error, kind, id string) error {
	if errors.Is(err, repo.ErrNotFound) {
		return notFound(kind, id)
	}
	return err
}

// ComponentCreateOptions are parameters for creating a component.
type ComponentCreateOptions struct {
	ID         string
	Name       string
	Type       domain.ComponentType
	Subtype    string
	Properties domain.Properties
	// Heuristics overrides the seeded defaults for the named parameters.
	Heuristics map[domain.Parameter]float64
}

// CreateComponent seeds heuristics from the defaults table for (type, subtype),
// applies property adjustments, then any explicit overrides.
func (e Engine) CreateComponent(ctx context.Context, opts ComponentCreateOptions) (domain.Component, error) {
	if !opts.Type.Valid() {
		return domain.Component{}, fmt.Errorf("%w: unknown component type %q", domain.ErrValidation, opts.Type)
	}
	subtype := normalizeSubtype(opts.Subtype)
	h := e.Defaults.Adjusted(opts.Type, subtype, opts.Properties)
	if err := h.Merge(opts.Heuristics); err != nil {
		return domain.Component{}, err
	}
	now := e.timestamp()
	c := domain.Component{
		ID:         newID(opts.ID),
		Name:       strings.TrimSpace(opts.Name),
		Type:       opts.Type,
		Subtype:    subtype,
		Heuristics: h,
		Properties: opts.Properties,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	err := e.withTx(ctx, func(tx *sql.Tx) error {
		if err := e.Repo.InsertComponent(ctx, tx, c); err != nil {
			return fmt.Errorf("insert component: %w", err)
		}
		return e.Events.Append(ctx, tx, events.ComponentCreated, "component", c.ID, events.EventPayload{
			"name": c.Name, "type": c.Type, "subtype": c.Subtype,
		})
	})
	if err != nil {
		return domain.Component{}, err
	}
	e.log().Debug("component created", "id", c.ID, "type", c.Type)
	return c, nil
}

func (e Engine) GetComponent(ctx context.Context, id string) (domain.Component, error) {
	c, err := e.Repo.GetComponent(ctx, id)
	return c, wrapNotFound(err, "component", id)
}

// ComponentUpdateOptions encapsulates allowed updates.
type ComponentUpdateOptions struct {
	ID         string
	Name       *string
	Properties domain.Properties
	// Reseed recomputes heuristics from the defaults table and the new
	// properties, discarding manual scores.
	Reseed bool
}

func (e Engine) UpdateComponent(ctx context.Context, opts ComponentUpdateOptions) (domain.Component, error) {
	var c domain.Component
	err := e.withTx(ctx, func(tx *sql.Tx) error {
		var err error
		c, err = e.Repo.GetComponentTx(ctx, tx, opts.ID)
		if err != nil {
			return wrapNotFound(err, "component", opts.ID)
		}
		changed := []string{}
		if opts.Name != nil {
			c.Name = strings.TrimSpace(*opts.Name)
			changed = append(changed, "name")
		}
		if opts.Properties != nil {
			c.Properties = opts.Properties
			changed = append(changed, "properties")
		}
		if opts.Reseed {
			c.Heuristics = e.Defaults.Adjusted(c.Type, c.Subtype, c.Properties)
			changed = append(changed, "heuristics")
		}
		c.UpdatedAt = e.timestamp()
		if err := e.Repo.UpdateComponent(ctx, tx, c); err != nil {
			return err
		}
		return e.Events.Append(ctx, tx, events.ComponentUpdated, "component", c.ID, events.EventPayload{"changed": changed})
	})
	return c, err
}

// SetComponentScores merges scores into the component's profile. An invalid
// score rejects the whole update.
func (e Engine) SetComponentScores(ctx context.Context, id string, scores map[domain.Parameter]float64) (domain.Component, error) {
	var c domain.Component
	err := e.withTx(ctx, func(tx *sql.Tx) error {
		var err error
		c, err = e.Repo.GetComponentTx(ctx, tx, id)
		if err != nil {
			return wrapNotFound(err, "component", id)
		}
		if err := c.Heuristics.Merge(scores); err != nil {
			return err
		}
		c.UpdatedAt = e.timestamp()
		if err := e.Repo.UpdateComponent(ctx, tx, c); err != nil {
			return err
		}
		return e.Events.Append(ctx, tx, events.ComponentHeuristicsSet, "component", c.ID, events.EventPayload{"scores": scores})
	})
	return c, err
}

func (e Engine) DeleteComponent(ctx context.Context, id string) error {
	return e.withTx(ctx, func(tx *sql.Tx) error {
		if err := e.Repo.DeleteComponent(ctx, tx, id); err != nil {
			return wrapNotFound(err, "component", id)
		}
		return e.Events.Append(ctx, tx, events.ComponentDeleted, "component", id, nil)
	})
}

// ComponentScore is the component's weighted score under the current weights.
func (e Engine) ComponentScore(ctx context.Context, id string) (float64, error) {
	c, err := e.GetComponent(ctx, id)
	if err != nil {
		return 0, err
	}
	return c.Heuristics.WeightedScore(e.Weights.Snapshot()), nil
}

// LinkCreateOptions are parameters for creating a link.
type LinkCreateOptions struct {
	ID         string
	SourceID   string
	TargetID   string
	Type       domain.LinkType
	Properties domain.Properties
	Heuristics map[domain.Parameter]float64
	// Strict refuses links no rule allows.
	Strict bool
}

// LinkResult is a stored link plus the rule verdict at creation time.
type LinkResult struct {
	Link  domain.Link `json:"link"`
	Valid bool        `json:"valid"`
}

// CreateLink stores a link between two existing components. Rule violations
// are stored and reported unless Strict is set.
func (e Engine) CreateLink(ctx context.Context, opts LinkCreateOptions) (LinkResult, error) {
	if !opts.Type.Valid() {
		return LinkResult{}, fmt.Errorf("%w: unknown link type %q", domain.ErrValidation, opts.Type)
	}
	if opts.SourceID == "" || opts.TargetID == "" {
		return LinkResult{}, fmt.Errorf("%w: source_id and target_id are required", domain.ErrValidation)
	}
	h := e.Defaults.ForLinkType(opts.Type)
	if err := h.Merge(opts.Heuristics); err != nil {
		return LinkResult{}, err
	}
	l := domain.Link{
		ID:         newID(opts.ID),
		SourceID:   opts.SourceID,
		TargetID:   opts.TargetID,
		Type:       opts.Type,
		Heuristics: h,
		Properties: opts.Properties,
		CreatedAt:  e.timestamp(),
	}
	var valid bool
	err := e.withTx(ctx, func(tx *sql.Tx) error {
		src, err := e.Repo.GetComponentTx(ctx, tx, opts.SourceID)
		if err != nil {
			return wrapNotFound(err, "component", opts.SourceID)
		}
		dst, err := e.Repo.GetComponentTx(ctx, tx, opts.TargetID)
		if err != nil {
			return wrapNotFound(err, "component", opts.TargetID)
		}
		valid = e.Rules.ValidateConnection(&src, &dst, l.Type)
		if !valid && opts.Strict {
			return fmt.Errorf("%w: %s (%s) -> %s (%s) via %s", ErrConnectionRejected,
				src.DisplayName(), src.Type, dst.DisplayName(), dst.Type, l.Type)
		}
		if err := e.Repo.InsertLink(ctx, tx, l); err != nil {
			return fmt.Errorf("insert link: %w", err)
		}
		return e.Events.Append(ctx, tx, events.LinkCreated, "link", l.ID, events.EventPayload{
			"source_id": l.SourceID, "target_id": l.TargetID, "type": l.Type, "valid": valid,
		})
	})
	if err != nil {
		return LinkResult{}, err
	}
	if !valid {
		e.log().Warn("link violates connection rules", "id", l.ID, "type", l.Type)
	}
	return LinkResult{Link: l, Valid: valid}, nil
}

func (e Engine) GetLink(ctx context.Context, id string) (domain.Link, error) {
	l, err := e.Repo.GetLink(ctx, id)
	return l, wrapNotFound(err, "link", id)
}

func (e Engine) SetLinkScores(ctx context.Context, id string, scores map[domain.Parameter]float64) (domain.Link, error) {
	var l domain.Link
	err := e.withTx(ctx, func(tx *sql.Tx) error {
		var err error
		l, err = e.Repo.GetLinkTx(ctx, tx, id)
		if err != nil {
			return wrapNotFound(err, "link", id)
		}
		if err := l.Heuristics.Merge(scores); err != nil {
			return err
		}
		if err := e.Repo.UpdateLinkHeuristics(ctx, tx, id, l.Heuristics); err != nil {
			return err
		}
		return e.Events.Append(ctx, tx, events.LinkHeuristicsSet, "link", id, events.EventPayload{"scores": scores})
	})
	return l, err
}

func (e Engine) DeleteLink(ctx context.Context, id string) error {
	return e.withTx(ctx, func(tx *sql.Tx) error {
		if err := e.Repo.DeleteLink(ctx, tx, id); err != nil {
			return wrapNotFound(err, "link", id)
		}
		return e.Events.Append(ctx, tx, events.LinkDeleted, "link", id, nil)
	})
}

func (e Engine) componentPair(ctx context.Context, sourceID, targetID string) (domain.Component, domain.Component, error) {
	src, err := e.GetComponent(ctx, sourceID)
	if err != nil {
		return src, domain.Component{}, err
	}
	dst, err := e.GetComponent(ctx, targetID)
	return src, dst, err
}

// ValidateConnectionByID checks an edge between stored components.
func (e Engine) ValidateConnectionByID(ctx context.Context, sourceID, targetID string, lt domain.LinkType) (bool, error) {
	src, dst, err := e.componentPair(ctx, sourceID, targetID)
	if err != nil {
		return false, err
	}
	return e.Rules.ValidateConnection(&src, &dst, lt), nil
}

func (e Engine) SuggestByID(ctx context.Context, sourceID, targetID string) (Suggestion, error) {
	src, dst, err := e.componentPair(ctx, sourceID, targetID)
	if err != nil {
		return Suggestion{}, err
	}
	return e.Rules.Suggest(&src, &dst), nil
}

// ArchitectureCreateOptions are parameters for creating an architecture.
type ArchitectureCreateOptions struct {
	ID           string
	Name         string
	ComponentIDs []string
	LinkIDs      []string
}

func (e Engine) CreateArchitecture(ctx context.Context, opts ArchitectureCreateOptions) (domain.Architecture, error) {
	if strings.TrimSpace(opts.Name) == "" {
		return domain.Architecture{}, fmt.Errorf("%w: name is required", domain.ErrValidation)
	}
	a := domain.Architecture{ID: newID(opts.ID), Name: strings.TrimSpace(opts.Name), CreatedAt: e.timestamp()}
	err := e.withTx(ctx, func(tx *sql.Tx) error {
		if err := e.Repo.InsertArchitecture(ctx, tx, a); err != nil {
			return fmt.Errorf("insert architecture: %w", err)
		}
		for _, id := range opts.ComponentIDs {
			if err := e.addComponentTx(ctx, tx, a.ID, id); err != nil {
				return err
			}
		}
		for _, id := range opts.LinkIDs {
			if err := e.addLinkTx(ctx, tx, a.ID, id); err != nil {
				return err
			}
		}
		if err := e.Events.Append(ctx, tx, events.ArchitectureCreated, "architecture", a.ID, events.EventPayload{
			"name": a.Name, "components": len(opts.ComponentIDs), "links": len(opts.LinkIDs),
		}); err != nil {
			return err
		}
		var err error
		a, err = e.Repo.GetArchitectureTx(ctx, tx, a.ID)
		return err
	})
	return a, err
}

func (e Engine) addComponentTx(ctx context.Context, tx *sql.Tx, archID, componentID string) error {
	if _, err := e.Repo.GetComponentTx(ctx, tx, componentID); err != nil {
		return wrapNotFound(err, "component", componentID)
	}
	_, err := e.Repo.AddArchitectureComponent(ctx, tx, archID, componentID)
	return err
}

// addLinkTx adds the link only; endpoints outside the architecture are a
// reported violation, not an error.
func (e Engine) addLinkTx(ctx context.Context, tx *sql.Tx, archID, linkID string) error {
	if _, err := e.Repo.GetLinkTx(ctx, tx, linkID); err != nil {
		return wrapNotFound(err, "link", linkID)
	}
	_, err := e.Repo.AddArchitectureLink(ctx, tx, archID, linkID)
	return err
}

func (e Engine) AddComponent(ctx context.Context, archID, componentID string) (domain.Architecture, error) {
	return e.addMember(ctx, archID, "component", componentID, e.addComponentTx)
}

func (e Engine) AddLink(ctx context.Context, archID, linkID string) (domain.Architecture, error) {
	return e.addMember(ctx, archID, "link", linkID, e.addLinkTx)
}

func (e Engine) addMember(ctx context.Context, archID, kind, memberID string, add func(context.Context, *sql.Tx, string, string) error) (domain.Architecture, error) {
	var a domain.Architecture
	err := e.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := e.Repo.GetArchitectureTx(ctx, tx, archID); err != nil {
			return wrapNotFound(err, "architecture", archID)
		}
		if err := add(ctx, tx, archID, memberID); err != nil {
			return err
		}
		if err := e.Events.Append(ctx, tx, events.ArchitectureMemberAdded, "architecture", archID, events.EventPayload{
			"kind": kind, "id": memberID,
		}); err != nil {
			return err
		}
		var err error
		a, err = e.Repo.GetArchitectureTx(ctx, tx, archID)
		return err
	})
	return a, err
}

func (e Engine) GetArchitecture(ctx context.Context, id string) (domain.Architecture, error) {
	a, err := e.Repo.GetArchitecture(ctx, id)
	return a, wrapNotFound(err, "architecture", id)
}

func (e Engine) DeleteArchitecture(ctx context.Context, id string) error {
	return e.withTx(ctx, func(tx *sql.Tx) error {
		if err := e.Repo.DeleteArchitecture(ctx, tx, id); err != nil {
			return wrapNotFound(err, "architecture", id)
		}
		return e.Events.Append(ctx, tx, events.ArchitectureDeleted, "architecture", id, nil)
	})
}

func (e Engine) ValidateArchitectureByID(ctx context.Context, id string) (ValidationResult, error) {
	a, err := e.GetArchitecture(ctx, id)
	if err != nil {
		return ValidationResult{}, err
	}
	return e.Rules.ValidateArchitecture(a), nil
}

// Evaluate scores an architecture snapshot under the current weights without
// touching the store.
func (e Engine) Evaluate(arch domain.Architecture) Evaluation {
	return e.Evaluator.Evaluate(arch, e.Weights.Snapshot())
}

// EvaluateAdHoc scores a caller supplied graph. Members without heuristics are
// seeded from the defaults table; nothing is stored.
func (e Engine) EvaluateAdHoc(arch domain.Architecture) (Evaluation, error) {
	arch.Components = append([]domain.Component(nil), arch.Components...)
	arch.Links = append([]domain.Link(nil), arch.Links...)
	for i := range arch.Components {
		c := &arch.Components[i]
		if !c.Type.Valid() {
			return Evaluation{}, fmt.Errorf("%w: component %s has unknown type %q", domain.ErrValidation, c.DisplayName(), c.Type)
		}
		if len(c.Heuristics) == 0 {
			c.Heuristics = e.Defaults.Adjusted(c.Type, c.Subtype, c.Properties)
		} else if err := c.Heuristics.Validate(); err != nil {
			return Evaluation{}, err
		}
	}
	for i := range arch.Links {
		l := &arch.Links[i]
		if !l.Type.Valid() {
			return Evaluation{}, fmt.Errorf("%w: link %s has unknown type %q", domain.ErrValidation, l.ID, l.Type)
		}
		if len(l.Heuristics) == 0 {
			l.Heuristics = e.Defaults.ForLinkType(l.Type)
		} else if err := l.Heuristics.Validate(); err != nil {
			return Evaluation{}, err
		}
	}
	return e.Evaluate(arch), nil
}

// EvaluateByID evaluates a stored architecture and records the result in the
// evaluation history.
func (e Engine) EvaluateByID(ctx context.Context, id string) (Evaluation, error) {
	a, err := e.GetArchitecture(ctx, id)
	if err != nil {
		return Evaluation{}, err
	}
	weights := e.Weights.Snapshot()
	ev := e.Evaluator.Evaluate(a, weights)
	result, err := json.Marshal(ev)
	if err != nil {
		return Evaluation{}, err
	}
	rec := domain.EvaluationRecord{
		ID:             uuid.NewString(),
		ArchitectureID: a.ID,
		Overall:        ev.Overall,
		Valid:          ev.Valid,
		Weights:        weights.Map(),
		Result:         result,
		CreatedAt:      e.timestamp(),
	}
	err = e.withTx(ctx, func(tx *sql.Tx) error {
		if err := e.Repo.CreateEvaluationTx(ctx, tx, rec); err != nil {
			return fmt.Errorf("store evaluation: %w", err)
		}
		return e.Events.Append(ctx, tx, events.ArchitectureEvaluated, "architecture", a.ID, events.EventPayload{
			"evaluation_id": rec.ID, "overall_score": ev.Overall, "valid": ev.Valid, "violations": len(ev.Violations),
		})
	})
	if err != nil {
		return Evaluation{}, err
	}
	e.log().Info("architecture evaluated", "id", a.ID, "score", ev.Overall, "valid", ev.Valid)
	return ev, nil
}

// ScoreByID returns the detailed score breakdown of a stored architecture.
func (e Engine) ScoreByID(ctx context.Context, id string) (heuristics.Breakdown, error) {
	a, err := e.GetArchitecture(ctx, id)
	if err != nil {
		return heuristics.Breakdown{}, err
	}
	return e.Evaluator.Aggregator.Detailed(a.Components, a.Links, e.Weights.Snapshot()), nil
}

func (e Engine) EvaluationHistory(ctx context.Context, id string, limit int) ([]domain.EvaluationRecord, error) {
	if _, err := e.GetArchitecture(ctx, id); err != nil {
		return nil, err
	}
	return e.Repo.ListEvaluations(ctx, id, limit)
}

// CompareByID loads both architectures concurrently and compares them.
func (e Engine) CompareByID(ctx context.Context, idA, idB string) (Comparison, error) {
	var a, b domain.Architecture
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		a, err = e.GetArchitecture(gctx, idA)
		return err
	})
	g.Go(func() error {
		var err error
		b, err = e.GetArchitecture(gctx, idB)
		return err
	})
	if err := g.Wait(); err != nil {
		return Comparison{}, err
	}
	cmp, err := e.Evaluator.Compare(ctx, a, b, e.Weights.Snapshot())
	if err != nil {
		return Comparison{}, err
	}
	if err := e.Events.Record(ctx, events.ArchitectureCompared, "architecture", a.ID, events.EventPayload{
		"other_id": b.ID, "score_difference": cmp.ScoreDifference, "winner": cmp.Winner,
	}); err != nil {
		return Comparison{}, err
	}
	return cmp, nil
}

// UpdateWeights changes the runtime weights for the named parameters.
func (e Engine) UpdateWeights(ctx context.Context, updates map[domain.Parameter]float64) (domain.ParameterWeights, error) {
	if err := e.Weights.Update(updates); err != nil {
		return domain.ParameterWeights{}, err
	}
	w := e.Weights.Snapshot()
	return w, e.Events.Record(ctx, events.WeightsUpdated, "weights", "", events.EventPayload{"updates": updates})
}

func (e Engine) ApplyPreset(ctx context.Context, p domain.Preset) (domain.ParameterWeights, error) {
	e.Weights.ApplyPreset(p)
	w := e.Weights.Snapshot()
	return w, e.Events.Record(ctx, events.WeightsUpdated, "weights", "", events.EventPayload{"preset": p})
}

func (e Engine) ResetWeights(ctx context.Context) (domain.ParameterWeights, error) {
	e.Weights.Reset()
	w := e.Weights.Snapshot()
	return w, e.Events.Record(ctx, events.WeightsUpdated, "weights", "", events.EventPayload{"reset": true})
}

// ResetRules drops custom rules and restores the defaults.
func (e Engine) ResetRules(ctx context.Context) (rules.Stats, error) {
	e.Rules.Registry.Reset()
	stats := e.Rules.Registry.Stats()
	return stats, e.Events.Record(ctx, events.RulesReset, "rules", "", events.EventPayload{"total_rules": stats.TotalRules})
}

// RecordDefaultsReload logs a heuristics table swap in the event stream.
func (e Engine) RecordDefaultsReload(ctx context.Context, path string) error {
	return e.Events.Record(ctx, events.HeuristicsReloaded, "heuristics", "", events.EventPayload{"path": path})
}
