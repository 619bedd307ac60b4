package archscoresdk

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client is a minimal archscore HTTP API client.
type Client struct {
	BaseURL    string
	BasePath   string
	HTTPClient *http.Client
	Timeout    time.Duration
}

// New creates a client for the API served at baseURL under /v0.
func New(baseURL string) *Client {
	return &Client{
		BaseURL:  baseURL,
		BasePath: "/v0",
		Timeout:  10 * time.Second,
	}
}

type Component struct {
	ID         string             `json:"id"`
	Name       string             `json:"name"`
	Type       string             `json:"type"`
	Subtype    string             `json:"subtype,omitempty"`
	Heuristics map[string]float64 `json:"heuristics"`
	Properties map[string]any     `json:"properties,omitempty"`
	CreatedAt  string             `json:"created_at,omitempty"`
	UpdatedAt  string             `json:"updated_at,omitempty"`
}

type Link struct {
	ID         string             `json:"id"`
	SourceID   string             `json:"source_id"`
	TargetID   string             `json:"target_id"`
	Type       string             `json:"type"`
	Heuristics map[string]float64 `json:"heuristics"`
	Properties map[string]any     `json:"properties,omitempty"`
	CreatedAt  string             `json:"created_at,omitempty"`
}

// LinkResult is a created link with its rule check.
type LinkResult struct {
	Link  Link `json:"link"`
	Valid bool `json:"valid"`
}

type Architecture struct {
	ID         string      `json:"id"`
	Name       string      `json:"name"`
	Components []Component `json:"components"`
	Links      []Link      `json:"links"`
	CreatedAt  string      `json:"created_at,omitempty"`
}

type Bottleneck struct {
	ComponentID   string  `json:"component_id"`
	ComponentName string  `json:"component_name"`
	ComponentType string  `json:"component_type"`
	Score         float64 `json:"bottleneck_score"`
	Incoming      int     `json:"incoming_links"`
	Outgoing      int     `json:"outgoing_links"`
	Total         int     `json:"total_connections"`
}

type Evaluation struct {
	ArchitectureID   string             `json:"architecture_id"`
	ArchitectureName string             `json:"architecture_name"`
	Overall          float64            `json:"overall_score"`
	ComponentCount   int                `json:"component_count"`
	LinkCount        int                `json:"link_count"`
	ByParameter      map[string]float64 `json:"parameter_scores"`
	Bottlenecks      []Bottleneck       `json:"bottlenecks"`
	Insights         []string           `json:"insights"`
	Valid            bool               `json:"valid"`
	Violations       []string           `json:"violations"`
	Warnings         []string           `json:"warnings"`
}

type ComparisonSide struct {
	ID          string             `json:"id"`
	Name        string             `json:"name"`
	Score       float64            `json:"score"`
	ByParameter map[string]float64 `json:"parameter_scores"`
}

type Comparison struct {
	A               ComparisonSide `json:"architecture1"`
	B               ComparisonSide `json:"architecture2"`
	ScoreDifference float64        `json:"score_difference"`
	Winner          string         `json:"winner"`
	WinnerID        string         `json:"winner_id,omitempty"`
}

type Suggestion struct {
	CanConnect bool     `json:"can_connect"`
	Types      []string `json:"valid_link_types"`
	Message    string   `json:"message"`
}

type Event struct {
	ID         int64          `json:"id"`
	TS         string         `json:"ts"`
	Type       string         `json:"type"`
	EntityKind string         `json:"entity_kind"`
	EntityID   string         `json:"entity_id"`
	Payload    map[string]any `json:"payload"`
}

// PaginatedEvents wraps list responses with cursors.
type PaginatedEvents struct {
	Items      []Event `json:"items"`
	NextCursor string  `json:"next_cursor"`
}

// APIError wraps non-2xx responses. Code and Message come from the error
// envelope when the body carries one.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
	Body       string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("api error: status=%d code=%s message=%s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// IsNotFound reports whether err is a 404 from the API.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}

// ComponentInput describes a component to create. Missing heuristics are
// seeded server side.
type ComponentInput struct {
	ID         string             `json:"id,omitempty"`
	Name       string             `json:"name"`
	Type       string             `json:"type"`
	Subtype    string             `json:"subtype,omitempty"`
	Properties map[string]any     `json:"properties,omitempty"`
	Heuristics map[string]float64 `json:"heuristics,omitempty"`
}

type LinkInput struct {
	ID         string             `json:"id,omitempty"`
	SourceID   string             `json:"source_id"`
	TargetID   string             `json:"target_id"`
	Type       string             `json:"type"`
	Properties map[string]any     `json:"properties,omitempty"`
	Heuristics map[string]float64 `json:"heuristics,omitempty"`
	Strict     bool               `json:"strict,omitempty"`
}

func (c *Client) CreateComponent(ctx context.Context, in ComponentInput) (Component, error) {
	var resp Component
	err := c.do(ctx, http.MethodPost, "components", in, &resp)
	return resp, err
}

func (c *Client) GetComponent(ctx context.Context, id string) (Component, error) {
	var resp Component
	err := c.do(ctx, http.MethodGet, "components/"+url.PathEscape(id), nil, &resp)
	return resp, err
}

// ListComponents lists components, optionally of one type.
func (c *Client) ListComponents(ctx context.Context, componentType string) ([]Component, error) {
	endpoint := "components"
	if componentType != "" {
		endpoint += "?type=" + url.QueryEscape(componentType)
	}
	var resp []Component
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// SetComponentScores merges scores into the component's profile.
func (c *Client) SetComponentScores(ctx context.Context, id string, scores map[string]float64) (Component, error) {
	var resp Component
	err := c.do(ctx, http.MethodPut, "components/"+url.PathEscape(id)+"/heuristics", scores, &resp)
	return resp, err
}

func (c *Client) DeleteComponent(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "components/"+url.PathEscape(id), nil, nil)
}

func (c *Client) CreateLink(ctx context.Context, in LinkInput) (LinkResult, error) {
	var resp LinkResult
	err := c.do(ctx, http.MethodPost, "links", in, &resp)
	return resp, err
}

func (c *Client) DeleteLink(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "links/"+url.PathEscape(id), nil, nil)
}

// ValidateConnection asks whether sourceID may connect to targetID via linkType.
func (c *Client) ValidateConnection(ctx context.Context, sourceID, targetID, linkType string) (bool, error) {
	var resp struct {
		Valid bool `json:"valid"`
	}
	err := c.do(ctx, http.MethodPost, "links/validate", map[string]string{
		"source_id": sourceID,
		"target_id": targetID,
		"type":      linkType,
	}, &resp)
	return resp.Valid, err
}

func (c *Client) Suggest(ctx context.Context, sourceID, targetID string) (Suggestion, error) {
	var resp Suggestion
	err := c.do(ctx, http.MethodPost, "links/suggest", map[string]string{
		"source_id": sourceID,
		"target_id": targetID,
	}, &resp)
	return resp, err
}

func (c *Client) CreateArchitecture(ctx context.Context, id, name string, componentIDs, linkIDs []string) (Architecture, error) {
	body := map[string]any{"name": name}
	if id != "" {
		body["id"] = id
	}
	if len(componentIDs) > 0 {
		body["component_ids"] = componentIDs
	}
	if len(linkIDs) > 0 {
		body["link_ids"] = linkIDs
	}
	var resp Architecture
	err := c.do(ctx, http.MethodPost, "architectures", body, &resp)
	return resp, err
}

func (c *Client) GetArchitecture(ctx context.Context, id string) (Architecture, error) {
	var resp Architecture
	err := c.do(ctx, http.MethodGet, "architectures/"+url.PathEscape(id), nil, &resp)
	return resp, err
}

func (c *Client) AddComponent(ctx context.Context, archID, componentID string) (Architecture, error) {
	var resp Architecture
	err := c.do(ctx, http.MethodPost, "architectures/"+url.PathEscape(archID)+"/components",
		map[string]string{"component_id": componentID}, &resp)
	return resp, err
}

func (c *Client) AddLink(ctx context.Context, archID, linkID string) (Architecture, error) {
	var resp Architecture
	err := c.do(ctx, http.MethodPost, "architectures/"+url.PathEscape(archID)+"/links",
		map[string]string{"link_id": linkID}, &resp)
	return resp, err
}

// Evaluate scores a stored architecture and records the result server side.
func (c *Client) Evaluate(ctx context.Context, archID string) (Evaluation, error) {
	var resp Evaluation
	err := c.do(ctx, http.MethodGet, "architectures/"+url.PathEscape(archID)+"/evaluation", nil, &resp)
	return resp, err
}

// EvaluateGraph scores an architecture sent in full without storing it.
// Link IDs are optional here.
func (c *Client) EvaluateGraph(ctx context.Context, name string, components []ComponentInput, links []LinkInput) (Evaluation, error) {
	body := map[string]any{"name": name}
	if len(components) > 0 {
		body["components"] = components
	}
	if len(links) > 0 {
		graph := make([]map[string]any, 0, len(links))
		for _, l := range links {
			item := map[string]any{"source_id": l.SourceID, "target_id": l.TargetID, "type": l.Type}
			if l.ID != "" {
				item["id"] = l.ID
			}
			if len(l.Heuristics) > 0 {
				item["heuristics"] = l.Heuristics
			}
			graph = append(graph, item)
		}
		body["links"] = graph
	}
	var resp Evaluation
	err := c.do(ctx, http.MethodPost, "evaluate", body, &resp)
	return resp, err
}

func (c *Client) Compare(ctx context.Context, archID1, archID2 string) (Comparison, error) {
	var resp Comparison
	err := c.do(ctx, http.MethodPost, "architectures/compare", map[string]string{
		"architecture1_id": archID1,
		"architecture2_id": archID2,
	}, &resp)
	return resp, err
}

func (c *Client) Weights(ctx context.Context) (map[string]float64, error) {
	var resp map[string]float64
	err := c.do(ctx, http.MethodGet, "weights", nil, &resp)
	return resp, err
}

// UpdateWeights applies every weight or none.
func (c *Client) UpdateWeights(ctx context.Context, weights map[string]float64) (map[string]float64, error) {
	var resp map[string]float64
	err := c.do(ctx, http.MethodPut, "weights", weights, &resp)
	return resp, err
}

func (c *Client) ApplyPreset(ctx context.Context, preset string) (map[string]float64, error) {
	var resp map[string]float64
	err := c.do(ctx, http.MethodPost, "weights/preset", map[string]string{"preset": preset}, &resp)
	return resp, err
}

// Events returns recent events.
func (c *Client) Events(ctx context.Context, limit int) ([]Event, error) {
	page, err := c.EventsPage(ctx, limit, "")
	return page.Items, err
}

// EventsPage returns a paginated event listing.
func (c *Client) EventsPage(ctx context.Context, limit int, cursor string) (PaginatedEvents, error) {
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", fmt.Sprintf("%d", limit))
	}
	if cursor != "" {
		q.Set("cursor", cursor)
	}
	endpoint := "events"
	if len(q) > 0 {
		endpoint += "?" + q.Encode()
	}
	var resp PaginatedEvents
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, c.url(endpoint), &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		apiErr := &APIError{StatusCode: resp.StatusCode, Body: string(b)}
		var env struct {
			Error struct {
				Code    string `json:"code"`
				Message string `json:"message"`
			} `json:"error"`
		}
		if json.Unmarshal(b, &env) == nil {
			apiErr.Code = env.Error.Code
			apiErr.Message = env.Error.Message
		}
		return apiErr
	}
	if out != nil && resp.StatusCode != http.StatusNoContent {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) url(endpoint string) string {
	base := strings.TrimRight(c.BaseURL, "/")
	if p := strings.Trim(c.BasePath, "/"); p != "" {
		base += "/" + p
	}
	return base + "/" + strings.TrimLeft(endpoint, "/")
}
