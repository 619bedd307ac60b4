package server

import (
	"encoding/json"
	"fmt"
	"strings"

	"archscore/internal/domain"
	"archscore/internal/heuristics"
)

// Request payloads

type CreateComponentRequest struct {
	ID         *string            `json:"id,omitempty"`
	Name       string             `json:"name"`
	Type       string             `json:"type" example:"DATABASE"`
	Subtype    string             `json:"subtype,omitempty" example:"SQL"`
	Properties map[string]any     `json:"properties,omitempty"`
	Heuristics map[string]float64 `json:"heuristics,omitempty"`
}

type UpdateComponentRequest struct {
	Name       *string        `json:"name,omitempty"`
	Properties map[string]any `json:"properties,omitempty"`
	// Reseed recomputes the heuristics from the defaults table.
	Reseed bool `json:"reseed,omitempty"`
}

type CreateLinkRequest struct {
	ID         *string            `json:"id,omitempty"`
	SourceID   string             `json:"source_id"`
	TargetID   string             `json:"target_id"`
	Type       string             `json:"type" example:"DATABASE_QUERY"`
	Properties map[string]any     `json:"properties,omitempty"`
	Heuristics map[string]float64 `json:"heuristics,omitempty"`
	Strict     bool               `json:"strict,omitempty"`
}

type ConnectionRequest struct {
	SourceID string `json:"source_id"`
	TargetID string `json:"target_id"`
	Type     string `json:"type,omitempty" example:"API_CALL"`
}

type CreateArchitectureRequest struct {
	ID           *string  `json:"id,omitempty"`
	Name         string   `json:"name"`
	ComponentIDs []string `json:"component_ids,omitempty"`
	LinkIDs      []string `json:"link_ids,omitempty"`
}

type AddComponentRequest struct {
	ComponentID string `json:"component_id"`
}

type AddLinkRequest struct {
	LinkID string `json:"link_id"`
}

type CompareRequest struct {
	ArchitectureID1 string `json:"architecture1_id"`
	ArchitectureID2 string `json:"architecture2_id"`
}

// EvaluateRequest is a graph evaluated without being stored.
type EvaluateRequest struct {
	ID         string           `json:"id,omitempty"`
	Name       string           `json:"name,omitempty"`
	Components []AdHocComponent `json:"components,omitempty"`
	Links      []AdHocLink      `json:"links,omitempty"`
}

type AdHocComponent struct {
	ID         string             `json:"id"`
	Name       string             `json:"name,omitempty"`
	Type       string             `json:"type" example:"CACHE"`
	Subtype    string             `json:"subtype,omitempty"`
	Properties map[string]any     `json:"properties,omitempty"`
	Heuristics map[string]float64 `json:"heuristics,omitempty"`
}

type AdHocLink struct {
	ID         string             `json:"id,omitempty"`
	SourceID   string             `json:"source_id,omitempty"`
	TargetID   string             `json:"target_id,omitempty"`
	Type       string             `json:"type" example:"CACHE_LOOKUP"`
	Heuristics map[string]float64 `json:"heuristics,omitempty"`
}

func (r EvaluateRequest) architecture() (domain.Architecture, error) {
	a := domain.Architecture{ID: r.ID, Name: r.Name, Components: []domain.Component{}, Links: []domain.Link{}}
	for _, in := range r.Components {
		typ, err := domain.ParseComponentType(in.Type)
		if err != nil {
			return a, err
		}
		scores, err := parseScores(in.Heuristics)
		if err != nil {
			return a, err
		}
		a.Components = append(a.Components, domain.Component{
			ID:         in.ID,
			Name:       in.Name,
			Type:       typ,
			Subtype:    in.Subtype,
			Properties: in.Properties,
			Heuristics: scores,
		})
	}
	for i, in := range r.Links {
		lt, err := domain.ParseLinkType(in.Type)
		if err != nil {
			return a, err
		}
		scores, err := parseScores(in.Heuristics)
		if err != nil {
			return a, err
		}
		id := in.ID
		if id == "" {
			id = fmt.Sprintf("link-%d", i+1)
		}
		a.Links = append(a.Links, domain.Link{ID: id, SourceID: in.SourceID, TargetID: in.TargetID, Type: lt, Heuristics: scores})
	}
	return a, nil
}

type PresetRequest struct {
	Preset string `json:"preset" example:"PERFORMANCE_FOCUSED"`
}

// Response payloads

type ValidateConnectionResponse struct {
	SourceID string          `json:"source_id"`
	TargetID string          `json:"target_id"`
	Type     domain.LinkType `json:"type"`
	Valid    bool            `json:"valid"`
}

type ScoreResponse struct {
	ID    string  `json:"id"`
	Score float64 `json:"score"`
}

type ComponentTypeResponse struct {
	Type     domain.ComponentType `json:"type"`
	Subtypes []string             `json:"subtypes"`
}

type RuleResponse struct {
	Name        string          `json:"name"`
	LinkType    domain.LinkType `json:"link_type"`
	Description string          `json:"description"`
}

type EventResponse struct {
	ID         int64          `json:"id"`
	TS         string         `json:"ts"`
	Type       string         `json:"type"`
	EntityKind string         `json:"entity_kind"`
	EntityID   string         `json:"entity_id,omitempty"`
	Payload    map[string]any `json:"payload"`
}

type paginatedEvents struct {
	Items      []EventResponse `json:"items"`
	NextCursor string          `json:"next_cursor,omitempty"`
}

type EvaluationHistoryResponse struct {
	Items []domain.EvaluationRecord `json:"items"`
}

type ScoreBreakdownResponse struct {
	ArchitectureID string `json:"architecture_id"`
	heuristics.Breakdown
}

// Mapping helpers

func parseScores(in map[string]float64) (map[domain.Parameter]float64, error) {
	out := make(map[domain.Parameter]float64, len(in))
	for name, v := range in {
		p, err := domain.ParseParameter(name)
		if err != nil {
			return nil, err
		}
		out[p] = v
	}
	return out, nil
}

func eventResponse(evt domain.Event) EventResponse {
	payload := map[string]any{}
	if evt.Payload != "" {
		if err := json.Unmarshal([]byte(evt.Payload), &payload); err != nil {
			payload = map[string]any{"raw": evt.Payload}
		}
	}
	return EventResponse{
		ID:         evt.ID,
		TS:         evt.TS,
		Type:       evt.Type,
		EntityKind: evt.EntityKind,
		EntityID:   evt.EntityID,
		Payload:    payload,
	}
}

// requireFields takes name, value pairs and reports the first empty value.
func requireFields(pairs ...string) error {
	for i := 0; i+1 < len(pairs); i += 2 {
		if strings.TrimSpace(pairs[i+1]) == "" {
			return fmt.Errorf("%w: %s is required", domain.ErrValidation, pairs[i])
		}
	}
	return nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
