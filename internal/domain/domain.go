package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrValidation marks input rejected before any mutation happened.
var ErrValidation = errors.New("validation error")

type ComponentType string

const (
	Database        ComponentType = "DATABASE"
	Cache           ComponentType = "CACHE"
	APIService      ComponentType = "API_SERVICE"
	Queue           ComponentType = "QUEUE"
	Storage         ComponentType = "STORAGE"
	LoadBalancer    ComponentType = "LOAD_BALANCER"
	StreamProcessor ComponentType = "STREAM_PROCESSOR"
	BatchProcessor  ComponentType = "BATCH_PROCESSOR"
	ExternalService ComponentType = "EXTERNAL_SERVICE"
	Client          ComponentType = "CLIENT"
)

var componentTypes = []ComponentType{
	Database, Cache, APIService, Queue, Storage, LoadBalancer,
	StreamProcessor, BatchProcessor, ExternalService, Client,
}

// ComponentTypes returns every component type in declaration order.
func ComponentTypes() []ComponentType {
	return append([]ComponentType(nil), componentTypes...)
}

func (t ComponentType) Valid() bool {
	for _, c := range componentTypes {
		if c == t {
			return true
		}
	}
	return false
}

func ParseComponentType(s string) (ComponentType, error) {
	t := ComponentType(normalizeEnum(s))
	if !t.Valid() {
		return "", fmt.Errorf("%w: unknown component type %q", ErrValidation, s)
	}
	return t, nil
}

type LinkType string

const (
	APICall       LinkType = "API_CALL"
	Stream        LinkType = "STREAM"
	Replication   LinkType = "REPLICATION"
	EtlPipeline   LinkType = "ETL_PIPELINE"
	BatchTransfer LinkType = "BATCH_TRANSFER"
	EventFlow     LinkType = "EVENT_FLOW"
	CacheLookup   LinkType = "CACHE_LOOKUP"
	DatabaseQuery LinkType = "DATABASE_QUERY"
)

var linkTypes = []LinkType{
	APICall, Stream, Replication, EtlPipeline, BatchTransfer, EventFlow, CacheLookup, DatabaseQuery,
}

// LinkTypes returns every link type in declaration order.
func LinkTypes() []LinkType {
	return append([]LinkType(nil), linkTypes...)
}

func (t LinkType) Valid() bool {
	for _, l := range linkTypes {
		if l == t {
			return true
		}
	}
	return false
}

func ParseLinkType(s string) (LinkType, error) {
	t := LinkType(normalizeEnum(s))
	if !t.Valid() {
		return "", fmt.Errorf("%w: unknown link type %q", ErrValidation, s)
	}
	return t, nil
}

func normalizeEnum(s string) string {
	s = strings.TrimSpace(strings.ToUpper(s))
	return strings.NewReplacer("-", "_", " ", "_").Replace(s)
}

// Properties holds loosely typed hints such as "replicas" or "memoryGB".
type Properties map[string]any

// Int reads key as an integer. ok is false when the key is absent; values that
// cannot be interpreted as a number read as 1.
func (p Properties) Int(key string) (n int, ok bool) {
	v, ok := p[key]
	if !ok {
		return 0, false
	}
	switch x := v.(type) {
	case int:
		return x, true
	case int64:
		return int(x), true
	case float64:
		return int(x), true
	case string:
		var parsed int
		if _, err := fmt.Sscanf(strings.TrimSpace(x), "%d", &parsed); err != nil {
			return 1, true
		}
		return parsed, true
	default:
		return 1, true
	}
}

func (p Properties) Has(key string) bool {
	_, ok := p[key]
	return ok
}

type Component struct {
	ID         string           `json:"id"`
	Name       string           `json:"name"`
	Type       ComponentType    `json:"type"`
	Subtype    string           `json:"subtype,omitempty"`
	Heuristics HeuristicProfile `json:"heuristics"`
	Properties Properties       `json:"properties,omitempty"`
	CreatedAt  string           `json:"created_at,omitempty" format:"date-time"`
	UpdatedAt  string           `json:"updated_at,omitempty" format:"date-time"`
}

// DisplayName is the name shown in messages; it falls back to the id.
func (c Component) DisplayName() string {
	if strings.TrimSpace(c.Name) != "" {
		return c.Name
	}
	return c.ID
}

type Link struct {
	ID         string           `json:"id"`
	SourceID   string           `json:"source_id"`
	TargetID   string           `json:"target_id"`
	Type       LinkType         `json:"type"`
	Heuristics HeuristicProfile `json:"heuristics"`
	Properties Properties       `json:"properties,omitempty"`
	CreatedAt  string           `json:"created_at,omitempty" format:"date-time"`
}

// Touches reports whether the link has componentID as either endpoint.
func (l Link) Touches(componentID string) bool {
	return componentID != "" && (l.SourceID == componentID || l.TargetID == componentID)
}

type Architecture struct {
	ID         string      `json:"id"`
	Name       string      `json:"name"`
	Components []Component `json:"components"`
	Links      []Link      `json:"links"`
	CreatedAt  string      `json:"created_at,omitempty" format:"date-time"`
}

// Component looks up a member component by id.
func (a Architecture) Component(id string) (Component, bool) {
	if id == "" {
		return Component{}, false
	}
	for _, c := range a.Components {
		if c.ID == id {
			return c, true
		}
	}
	return Component{}, false
}

// HasType reports whether any member component is of type t.
func (a Architecture) HasType(t ComponentType) bool {
	for _, c := range a.Components {
		if c.Type == t {
			return true
		}
	}
	return false
}

// DisplayName falls back to the id for unnamed architectures.
func (a Architecture) DisplayName() string {
	if strings.TrimSpace(a.Name) != "" {
		return a.Name
	}
	return a.ID
}

type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	Type       string `json:"type"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	Payload    string `json:"payload_json"`
}

// EvaluationRecord is a stored evaluation snapshot. Result holds the full
// evaluation document as produced at CreatedAt.
type EvaluationRecord struct {
	ID             string                `json:"id"`
	ArchitectureID string                `json:"architecture_id"`
	Overall        float64               `json:"overall_score"`
	Valid          bool                  `json:"valid"`
	Weights        map[Parameter]float64 `json:"weights"`
	Result         json.RawMessage       `json:"result"`
	CreatedAt      string                `json:"created_at" format:"date-time"`
}
