package server

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"archscore/internal/domain"
	"archscore/internal/engine"
	"archscore/internal/repo"
)

func registerLinks(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-link",
		Method:        http.MethodPost,
		Path:          "/links",
		Summary:       "Create link",
		Description:   "Both endpoints must exist. A link no rule allows is stored and reported as invalid, or rejected with 422 when strict is set.",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusNotFound, http.StatusUnprocessableEntity},
	}, func(ctx context.Context, input *struct {
		Body CreateLinkRequest `json:"body"`
	}) (*struct {
		Body engine.LinkResult `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, badRequest("body required", nil)
		}
		if err := requireFields("source_id", input.Body.SourceID, "target_id", input.Body.TargetID); err != nil {
			return nil, handleError(err)
		}
		lt, err := domain.ParseLinkType(input.Body.Type)
		if err != nil {
			return nil, handleError(err)
		}
		scores, err := parseScores(input.Body.Heuristics)
		if err != nil {
			return nil, handleError(err)
		}
		res, err := e.CreateLink(ctx, engine.LinkCreateOptions{
			ID:         deref(input.Body.ID),
			SourceID:   input.Body.SourceID,
			TargetID:   input.Body.TargetID,
			Type:       lt,
			Properties: input.Body.Properties,
			Heuristics: scores,
			Strict:     input.Body.Strict,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body engine.LinkResult `json:"body"`
		}{Body: res}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-links",
		Method:      http.MethodGet,
		Path:        "/links",
		Summary:     "List links",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		ComponentID string `query:"component_id"`
		SourceID    string `query:"source_id"`
		TargetID    string `query:"target_id"`
		Type        string `query:"type"`
	}) (*struct {
		Body []domain.Link `json:"body"`
	}, error) {
		f := repo.LinkFilters{ComponentID: input.ComponentID, SourceID: input.SourceID, TargetID: input.TargetID}
		if input.Type != "" {
			lt, err := domain.ParseLinkType(input.Type)
			if err != nil {
				return nil, handleError(err)
			}
			f.Type = lt
		}
		items, err := e.Repo.ListLinks(ctx, f)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.Link `json:"body"`
		}{Body: items}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-link",
		Method:      http.MethodGet,
		Path:        "/links/{link_id}",
		Summary:     "Get link",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		LinkID string `path:"link_id"`
	}) (*struct {
		Body domain.Link `json:"body"`
	}, error) {
		l, err := e.GetLink(ctx, input.LinkID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Link `json:"body"`
		}{Body: l}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "delete-link",
		Method:        http.MethodDelete,
		Path:          "/links/{link_id}",
		Summary:       "Delete link",
		DefaultStatus: http.StatusNoContent,
		Errors:        []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		LinkID string `path:"link_id"`
	}) (*struct{}, error) {
		if err := e.DeleteLink(ctx, input.LinkID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "set-link-heuristics",
		Method:      http.MethodPut,
		Path:        "/links/{link_id}/heuristics",
		Summary:     "Set link scores",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		LinkID string             `path:"link_id"`
		Body   map[string]float64 `json:"body"`
	}) (*struct {
		Body domain.Link `json:"body"`
	}, error) {
		scores, err := parseScores(input.Body)
		if err != nil {
			return nil, handleError(err)
		}
		l, err := e.SetLinkScores(ctx, input.LinkID, scores)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Link `json:"body"`
		}{Body: l}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "validate-connection",
		Method:      http.MethodPost,
		Path:        "/links/validate",
		Summary:     "Check whether two components may be connected with a link type",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		Body ConnectionRequest `json:"body"`
	}) (*struct {
		Body ValidateConnectionResponse `json:"body"`
	}, error) {
		if err := requireFields("source_id", input.Body.SourceID, "target_id", input.Body.TargetID, "type", input.Body.Type); err != nil {
			return nil, handleError(err)
		}
		lt, err := domain.ParseLinkType(input.Body.Type)
		if err != nil {
			return nil, handleError(err)
		}
		ok, err := e.ValidateConnectionByID(ctx, input.Body.SourceID, input.Body.TargetID, lt)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ValidateConnectionResponse `json:"body"`
		}{Body: ValidateConnectionResponse{
			SourceID: input.Body.SourceID,
			TargetID: input.Body.TargetID,
			Type:     lt,
			Valid:    ok,
		}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "suggest-connection",
		Method:      http.MethodPost,
		Path:        "/links/suggest",
		Summary:     "List link types allowed between two components",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		Body ConnectionRequest `json:"body"`
	}) (*struct {
		Body engine.Suggestion `json:"body"`
	}, error) {
		if err := requireFields("source_id", input.Body.SourceID, "target_id", input.Body.TargetID); err != nil {
			return nil, handleError(err)
		}
		s, err := e.SuggestByID(ctx, input.Body.SourceID, input.Body.TargetID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body engine.Suggestion `json:"body"`
		}{Body: s}, nil
	})
}
