package server

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"archscore/internal/domain"
	"archscore/internal/engine"
	"archscore/internal/repo"
)

func registerComponents(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-component",
		Method:        http.MethodPost,
		Path:          "/components",
		Summary:       "Create component",
		Description:   "Heuristics are seeded from the defaults table for the type and subtype, adjusted by properties, then overridden by any explicit scores.",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Body CreateComponentRequest `json:"body"`
	}) (*struct {
		Body domain.Component `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, badRequest("body required", nil)
		}
		typ, err := domain.ParseComponentType(input.Body.Type)
		if err != nil {
			return nil, handleError(err)
		}
		scores, err := parseScores(input.Body.Heuristics)
		if err != nil {
			return nil, handleError(err)
		}
		c, err := e.CreateComponent(ctx, engine.ComponentCreateOptions{
			ID:         deref(input.Body.ID),
			Name:       input.Body.Name,
			Type:       typ,
			Subtype:    input.Body.Subtype,
			Properties: input.Body.Properties,
			Heuristics: scores,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Component `json:"body"`
		}{Body: c}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-components",
		Method:      http.MethodGet,
		Path:        "/components",
		Summary:     "List components",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Type  string `query:"type"`
		Limit int    `query:"limit"`
	}) (*struct {
		Body []domain.Component `json:"body"`
	}, error) {
		f := repo.ComponentFilters{Limit: input.Limit}
		if input.Type != "" {
			typ, err := domain.ParseComponentType(input.Type)
			if err != nil {
				return nil, handleError(err)
			}
			f.Type = typ
		}
		items, err := e.Repo.ListComponents(ctx, f)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.Component `json:"body"`
		}{Body: items}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-component",
		Method:      http.MethodGet,
		Path:        "/components/{component_id}",
		Summary:     "Get component",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ComponentID string `path:"component_id"`
	}) (*struct {
		Body domain.Component `json:"body"`
	}, error) {
		c, err := e.GetComponent(ctx, input.ComponentID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Component `json:"body"`
		}{Body: c}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-component",
		Method:      http.MethodPatch,
		Path:        "/components/{component_id}",
		Summary:     "Update component",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ComponentID string                 `path:"component_id"`
		Body        UpdateComponentRequest `json:"body"`
	}) (*struct {
		Body domain.Component `json:"body"`
	}, error) {
		c, err := e.UpdateComponent(ctx, engine.ComponentUpdateOptions{
			ID:         input.ComponentID,
			Name:       input.Body.Name,
			Properties: input.Body.Properties,
			Reseed:     input.Body.Reseed,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Component `json:"body"`
		}{Body: c}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "delete-component",
		Method:        http.MethodDelete,
		Path:          "/components/{component_id}",
		Summary:       "Delete component and its links",
		DefaultStatus: http.StatusNoContent,
		Errors:        []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ComponentID string `path:"component_id"`
	}) (*struct{}, error) {
		if err := e.DeleteComponent(ctx, input.ComponentID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "set-component-heuristics",
		Method:      http.MethodPut,
		Path:        "/components/{component_id}/heuristics",
		Summary:     "Set component scores",
		Description: "Merges the given scores. Any score outside 0..10 rejects the whole update.",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ComponentID string             `path:"component_id"`
		Body        map[string]float64 `json:"body"`
	}) (*struct {
		Body domain.Component `json:"body"`
	}, error) {
		scores, err := parseScores(input.Body)
		if err != nil {
			return nil, handleError(err)
		}
		c, err := e.SetComponentScores(ctx, input.ComponentID, scores)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Component `json:"body"`
		}{Body: c}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "component-score",
		Method:      http.MethodGet,
		Path:        "/components/{component_id}/score",
		Summary:     "Weighted component score",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ComponentID string `path:"component_id"`
	}) (*struct {
		Body ScoreResponse `json:"body"`
	}, error) {
		score, err := e.ComponentScore(ctx, input.ComponentID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ScoreResponse `json:"body"`
		}{Body: ScoreResponse{ID: input.ComponentID, Score: score}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "component-connections",
		Method:      http.MethodGet,
		Path:        "/components/{component_id}/connections",
		Summary:     "Incoming and outgoing link counts",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ComponentID string `path:"component_id"`
	}) (*struct {
		Body repo.ConnectionStats `json:"body"`
	}, error) {
		if _, err := e.GetComponent(ctx, input.ComponentID); err != nil {
			return nil, handleError(err)
		}
		stats, err := e.Repo.ConnectionStats(ctx, input.ComponentID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body repo.ConnectionStats `json:"body"`
		}{Body: stats}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "component-types",
		Method:      http.MethodGet,
		Path:        "/component-types",
		Summary:     "Component types and known subtypes",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []ComponentTypeResponse `json:"body"`
	}, error) {
		out := []ComponentTypeResponse{}
		for _, t := range domain.ComponentTypes() {
			out = append(out, ComponentTypeResponse{Type: t, Subtypes: e.Defaults.Subtypes(t)})
		}
		return &struct {
			Body []ComponentTypeResponse `json:"body"`
		}{Body: out}, nil
	})
}

func registerHeuristicDefaults(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "component-defaults",
		Method:      http.MethodGet,
		Path:        "/heuristics/defaults/{type}",
		Summary:     "Default heuristics for a component type",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Type    string `path:"type"`
		Subtype string `query:"subtype"`
	}) (*struct {
		Body domain.HeuristicProfile `json:"body"`
	}, error) {
		typ, err := domain.ParseComponentType(input.Type)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.HeuristicProfile `json:"body"`
		}{Body: e.Defaults.ForType(typ, input.Subtype)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "link-defaults",
		Method:      http.MethodGet,
		Path:        "/heuristics/links/{link_type}",
		Summary:     "Default heuristics for a link type",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		LinkType string `path:"link_type"`
	}) (*struct {
		Body domain.HeuristicProfile `json:"body"`
	}, error) {
		lt, err := domain.ParseLinkType(input.LinkType)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.HeuristicProfile `json:"body"`
		}{Body: e.Defaults.ForLinkType(lt)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "component-subtypes",
		Method:      http.MethodGet,
		Path:        "/heuristics/subtypes/{type}",
		Summary:     "Subtypes with their own defaults",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Type string `path:"type"`
	}) (*struct {
		Body []string `json:"body"`
	}, error) {
		typ, err := domain.ParseComponentType(input.Type)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []string `json:"body"`
		}{Body: e.Defaults.Subtypes(typ)}, nil
	})
}
