package rules

import (
	"fmt"
	"sync"

	"archscore/internal/domain"
)

// Pairer is implemented by table rules that can enumerate what they allow.
type Pairer interface {
	Pairs() [][2]domain.ComponentType
}

// Registry indexes rules by link type. Reads may run concurrently with each
// other; registration and resets are serialized.
type Registry struct {
	mu     sync.RWMutex
	byType map[domain.LinkType][]Rule
	all    []Rule
}

// NewRegistry returns a registry seeded with the default rules.
func NewRegistry() *Registry {
	r := NewEmptyRegistry()
	r.registerDefaults()
	return r
}

func NewEmptyRegistry() *Registry {
	return &Registry{byType: make(map[domain.LinkType][]Rule)}
}

type Stats struct {
	TotalRules         int                     `json:"total_rules"`
	SupportedLinkTypes int                     `json:"supported_link_types"`
	CountsByType       map[domain.LinkType]int `json:"counts_by_type"`
}

func (s Stats) String() string {
	return fmt.Sprintf("RegistryStats{totalRules=%d, supportedLinkTypes=%d}", s.TotalRules, s.SupportedLinkTypes)
}

func (r *Registry) Register(rule Rule) error {
	if rule == nil {
		return fmt.Errorf("%w: rule cannot be nil", domain.ErrValidation)
	}
	if !rule.LinkType().Valid() {
		return fmt.Errorf("%w: rule %q bound to unknown link type %q", domain.ErrValidation, rule.Name(), rule.LinkType())
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.add(rule)
	return nil
}

func (r *Registry) add(rule Rule) {
	r.all = append(r.all, rule)
	r.byType[rule.LinkType()] = append(r.byType[rule.LinkType()], rule)
}

func (r *Registry) registerDefaults() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, rule := range Defaults() {
		r.add(rule)
	}
}

// RulesFor returns the rules bound to lt in registration order. Never nil.
func (r *Registry) RulesFor(lt domain.LinkType) []Rule {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]Rule{}, r.byType[lt]...)
}

// All returns every rule in registration order.
func (r *Registry) All() []Rule {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]Rule{}, r.all...)
}

func (r *Registry) HasRulesFor(lt domain.LinkType) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byType[lt]) > 0
}

func (r *Registry) Count(lt domain.LinkType) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byType[lt])
}

// Allows reports whether any rule for lt accepts the pair. A link type with no
// rules denies everything. Rules run outside the lock, so a predicate may
// call back into the registry.
func (r *Registry) Allows(source, target domain.Component, lt domain.LinkType) bool {
	for _, rule := range r.RulesFor(lt) {
		if rule.IsValid(source, target, lt) {
			return true
		}
	}
	return false
}

// ClearType removes every rule bound to lt.
func (r *Registry) ClearType(lt domain.LinkType) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byType[lt]; !ok {
		return
	}
	delete(r.byType, lt)
	kept := r.all[:0]
	for _, rule := range r.all {
		if rule.LinkType() != lt {
			kept = append(kept, rule)
		}
	}
	r.all = kept
}

func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byType = make(map[domain.LinkType][]Rule)
	r.all = nil
}

// Reset drops every rule and registers the defaults again.
func (r *Registry) Reset() {
	r.mu.Lock()
	r.byType = make(map[domain.LinkType][]Rule)
	r.all = nil
	for _, rule := range Defaults() {
		r.add(rule)
	}
	r.mu.Unlock()
}

// IsRegistered reports whether a rule with the given name is registered.
func (r *Registry) IsRegistered(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, rule := range r.all {
		if rule.Name() == name {
			return true
		}
	}
	return false
}

func (r *Registry) Descriptions() map[domain.LinkType][]string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[domain.LinkType][]string, len(r.byType))
	for lt, rules := range r.byType {
		for _, rule := range rules {
			out[lt] = append(out[lt], rule.Description())
		}
	}
	return out
}

func (r *Registry) Stats() Stats {
	r.mu.RLock()
	defer r.mu.RUnlock()
	counts := make(map[domain.LinkType]int, len(r.byType))
	for lt, rules := range r.byType {
		counts[lt] = len(rules)
	}
	return Stats{
		TotalRules:         len(r.all),
		SupportedLinkTypes: len(r.byType),
		CountsByType:       counts,
	}
}
