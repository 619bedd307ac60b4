package server

import (
	"context"
	"fmt"
	"net/http"
	"strconv"

	"github.com/danielgtaylor/huma/v2"

	"archscore/internal/domain"
	"archscore/internal/engine"
	"archscore/internal/repo"
	"archscore/internal/rules"
)

func ruleResponses(in []rules.Rule) []RuleResponse {
	out := make([]RuleResponse, 0, len(in))
	for _, r := range in {
		out = append(out, RuleResponse{Name: r.Name(), LinkType: r.LinkType(), Description: r.Description()})
	}
	return out
}

func registerRules(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-rules",
		Method:      http.MethodGet,
		Path:        "/rules",
		Summary:     "List registered connection rules",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []RuleResponse `json:"body"`
	}, error) {
		return &struct {
			Body []RuleResponse `json:"body"`
		}{Body: ruleResponses(e.Rules.Registry.All())}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "rule-stats",
		Method:      http.MethodGet,
		Path:        "/rules/stats",
		Summary:     "Rule counts per link type",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body rules.Stats `json:"body"`
	}, error) {
		return &struct {
			Body rules.Stats `json:"body"`
		}{Body: e.Rules.Registry.Stats()}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "rules-for-link-type",
		Method:      http.MethodGet,
		Path:        "/rules/{link_type}",
		Summary:     "Rules bound to one link type",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		LinkType string `path:"link_type"`
	}) (*struct {
		Body []RuleResponse `json:"body"`
	}, error) {
		lt, err := domain.ParseLinkType(input.LinkType)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []RuleResponse `json:"body"`
		}{Body: ruleResponses(e.Rules.Registry.RulesFor(lt))}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "reset-rules",
		Method:      http.MethodPost,
		Path:        "/rules/reset",
		Summary:     "Restore the default rule set",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body rules.Stats `json:"body"`
	}, error) {
		stats, err := e.ResetRules(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body rules.Stats `json:"body"`
		}{Body: stats}, nil
	})
}

func registerWeights(api huma.API, e engine.Engine) {
	type weightsBody struct {
		Body map[domain.Parameter]float64 `json:"body"`
	}

	huma.Register(api, huma.Operation{
		OperationID: "get-weights",
		Method:      http.MethodGet,
		Path:        "/weights",
		Summary:     "Current parameter weights",
	}, func(ctx context.Context, _ *struct{}) (*weightsBody, error) {
		return &weightsBody{Body: e.Weights.Snapshot().Map()}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-weights",
		Method:      http.MethodPut,
		Path:        "/weights",
		Summary:     "Update parameter weights",
		Description: "Any negative weight or unknown parameter rejects the whole update.",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Body map[string]float64 `json:"body"`
	}) (*weightsBody, error) {
		updates, err := parseScores(input.Body)
		if err != nil {
			return nil, handleError(err)
		}
		w, err := e.UpdateWeights(ctx, updates)
		if err != nil {
			return nil, handleError(err)
		}
		return &weightsBody{Body: w.Map()}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "apply-weight-preset",
		Method:      http.MethodPost,
		Path:        "/weights/preset",
		Summary:     "Apply a weight preset",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Body PresetRequest `json:"body"`
	}) (*weightsBody, error) {
		p, err := domain.ParsePreset(input.Body.Preset)
		if err != nil {
			return nil, handleError(err)
		}
		w, err := e.ApplyPreset(ctx, p)
		if err != nil {
			return nil, handleError(err)
		}
		return &weightsBody{Body: w.Map()}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "reset-weights",
		Method:      http.MethodPost,
		Path:        "/weights/reset",
		Summary:     "Restore the default weights",
	}, func(ctx context.Context, _ *struct{}) (*weightsBody, error) {
		w, err := e.ResetWeights(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		return &weightsBody{Body: w.Map()}, nil
	})
}

func registerEvents(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-events",
		Method:      http.MethodGet,
		Path:        "/events",
		Summary:     "List recent events",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Type       string `query:"type"`
		EntityKind string `query:"entity_kind" doc:"component, link, architecture, weights, rules or heuristics"`
		EntityID   string `query:"entity_id"`
		Limit      int    `query:"limit" default:"50"`
		Cursor     string `query:"cursor"`
	}) (*struct {
		Body paginatedEvents `json:"body"`
	}, error) {
		limit := normalizeLimit(input.Limit)
		var cursorID int64
		if input.Cursor != "" {
			parsed, err := strconv.ParseInt(input.Cursor, 10, 64)
			if err != nil {
				return nil, newAPIError(http.StatusBadRequest, "bad_request", "invalid cursor", map[string]any{"cursor": input.Cursor})
			}
			cursorID = parsed
		}
		items, err := e.Repo.LatestEventsFrom(ctx, limit+1, cursorID, repo.EventFilters{
			Type:       input.Type,
			EntityKind: input.EntityKind,
			EntityID:   input.EntityID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		resp := paginatedEvents{Items: []EventResponse{}}
		if len(items) > limit {
			items = items[:limit]
			// the next page starts strictly below the last item returned
			resp.NextCursor = fmt.Sprintf("%d", items[limit-1].ID)
		}
		for _, evt := range items {
			resp.Items = append(resp.Items, eventResponse(evt))
		}
		return &struct {
			Body paginatedEvents `json:"body"`
		}{Body: resp}, nil
	})
}
