package engine

import (
	"fmt"
	"strings"

	"archscore/internal/domain"
	"archscore/internal/rules"
)

// RuleEngine answers structural questions about edges and whole graphs
// against a rule Registry.
type RuleEngine struct {
	Registry *rules.Registry
}

func NewRuleEngine(reg *rules.Registry) RuleEngine {
	if reg == nil {
		reg = rules.NewRegistry()
	}
	return RuleEngine{Registry: reg}
}

// ValidateConnection reports whether some registered rule allows the edge.
// Missing arguments are never valid.
func (r RuleEngine) ValidateConnection(source, target *domain.Component, lt domain.LinkType) bool {
	if source == nil || target == nil || lt == "" {
		return false
	}
	return r.Registry.Allows(*source, *target, lt)
}

// ValidLinkTypes lists every link type allowed between the pair, in link type
// declaration order.
func (r RuleEngine) ValidLinkTypes(source, target *domain.Component) []domain.LinkType {
	out := []domain.LinkType{}
	if source == nil || target == nil {
		return out
	}
	for _, lt := range domain.LinkTypes() {
		if r.Registry.Allows(*source, *target, lt) {
			out = append(out, lt)
		}
	}
	return out
}

type Suggestion struct {
	CanConnect bool              `json:"can_connect"`
	Types      []domain.LinkType `json:"valid_link_types"`
	Message    string            `json:"message"`
}

func (r RuleEngine) Suggest(source, target *domain.Component) Suggestion {
	types := r.ValidLinkTypes(source, target)
	s := Suggestion{CanConnect: len(types) > 0, Types: types}
	src, dst := describe(source), describe(target)
	if !s.CanConnect {
		s.Message = fmt.Sprintf("No valid connection types found between %s and %s. These component types cannot be directly connected.", src, dst)
		return s
	}
	names := make([]string, len(types))
	for i, lt := range types {
		names[i] = string(lt)
	}
	s.Message = fmt.Sprintf("You can connect %s to %s using: %s", src, dst, strings.Join(names, ", "))
	return s
}

func describe(c *domain.Component) string {
	if c == nil {
		return "<none>"
	}
	return fmt.Sprintf("%s (%s)", c.DisplayName(), c.Type)
}

type ValidationResult struct {
	Valid      bool     `json:"valid"`
	Violations []string `json:"violations"`
	Warnings   []string `json:"warnings"`
}

// ValidateArchitecture checks every link and reports disconnected components.
// Structural problems are returned as data, never as an error.
func (r RuleEngine) ValidateArchitecture(arch domain.Architecture) ValidationResult {
	res := ValidationResult{Violations: []string{}, Warnings: []string{}}

	switch {
	case len(arch.Components) == 0:
		res.Warnings = append(res.Warnings, "Architecture has no components")
	case len(arch.Links) == 0 && len(arch.Components) > 1:
		res.Warnings = append(res.Warnings, "Architecture has multiple components but no links")
	}

	for _, l := range arch.Links {
		if v, ok := r.checkLink(arch, l); !ok {
			res.Violations = append(res.Violations, v...)
		}
	}

	if len(arch.Components) > 1 {
		for _, c := range arch.Components {
			connected := false
			for _, l := range arch.Links {
				if l.Touches(c.ID) {
					connected = true
					break
				}
			}
			if !connected {
				res.Warnings = append(res.Warnings, fmt.Sprintf("Component %s is not connected to any other components", c.DisplayName()))
			}
		}
	}

	res.Valid = len(res.Violations) == 0
	return res
}

func (r RuleEngine) checkLink(arch domain.Architecture, l domain.Link) ([]string, bool) {
	var problems []string
	if l.SourceID == "" {
		problems = append(problems, fmt.Sprintf("Link %s has null source", l.ID))
	}
	if l.TargetID == "" {
		problems = append(problems, fmt.Sprintf("Link %s has null target", l.ID))
	}
	if len(problems) > 0 {
		return problems, false
	}
	src, okSrc := arch.Component(l.SourceID)
	if !okSrc {
		problems = append(problems, fmt.Sprintf("Link %s references unknown source component %s", l.ID, l.SourceID))
	}
	dst, okDst := arch.Component(l.TargetID)
	if !okDst {
		problems = append(problems, fmt.Sprintf("Link %s references unknown target component %s", l.ID, l.TargetID))
	}
	if len(problems) > 0 {
		return problems, false
	}
	if !r.ValidateConnection(&src, &dst, l.Type) {
		return []string{fmt.Sprintf("Invalid link %s: %s (%s) -> %s (%s) via %s",
			l.ID, src.DisplayName(), src.Type, dst.DisplayName(), dst.Type, l.Type)}, false
	}
	return nil, true
}
