package server

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"archscore/internal/domain"
	"archscore/internal/engine"
	"archscore/internal/repo"
)

type architecturePath struct {
	ArchitectureID string `path:"architecture_id"`
}

func registerArchitectures(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-architecture",
		Method:        http.MethodPost,
		Path:          "/architectures",
		Summary:       "Create architecture",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		Body CreateArchitectureRequest `json:"body"`
	}) (*struct {
		Body domain.Architecture `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, badRequest("body required", nil)
		}
		a, err := e.CreateArchitecture(ctx, engine.ArchitectureCreateOptions{
			ID:           deref(input.Body.ID),
			Name:         input.Body.Name,
			ComponentIDs: input.Body.ComponentIDs,
			LinkIDs:      input.Body.LinkIDs,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Architecture `json:"body"`
		}{Body: a}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-architectures",
		Method:      http.MethodGet,
		Path:        "/architectures",
		Summary:     "List architectures",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []repo.ArchitectureSummary `json:"body"`
	}, error) {
		items, err := e.Repo.ListArchitectures(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []repo.ArchitectureSummary `json:"body"`
		}{Body: items}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-architecture",
		Method:      http.MethodGet,
		Path:        "/architectures/{architecture_id}",
		Summary:     "Get architecture with its components and links",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *architecturePath) (*struct {
		Body domain.Architecture `json:"body"`
	}, error) {
		a, err := e.GetArchitecture(ctx, input.ArchitectureID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Architecture `json:"body"`
		}{Body: a}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "delete-architecture",
		Method:        http.MethodDelete,
		Path:          "/architectures/{architecture_id}",
		Summary:       "Delete architecture",
		Description:   "Member components and links are kept.",
		DefaultStatus: http.StatusNoContent,
		Errors:        []int{http.StatusNotFound},
	}, func(ctx context.Context, input *architecturePath) (*struct{}, error) {
		if err := e.DeleteArchitecture(ctx, input.ArchitectureID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "add-architecture-component",
		Method:      http.MethodPost,
		Path:        "/architectures/{architecture_id}/components",
		Summary:     "Add a component to an architecture",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ArchitectureID string              `path:"architecture_id"`
		Body           AddComponentRequest `json:"body"`
	}) (*struct {
		Body domain.Architecture `json:"body"`
	}, error) {
		if err := requireFields("component_id", input.Body.ComponentID); err != nil {
			return nil, handleError(err)
		}
		a, err := e.AddComponent(ctx, input.ArchitectureID, input.Body.ComponentID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Architecture `json:"body"`
		}{Body: a}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "add-architecture-link",
		Method:      http.MethodPost,
		Path:        "/architectures/{architecture_id}/links",
		Summary:     "Add a link to an architecture",
		Description: "Endpoints outside the architecture are reported by validation, not rejected here.",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ArchitectureID string         `path:"architecture_id"`
		Body           AddLinkRequest `json:"body"`
	}) (*struct {
		Body domain.Architecture `json:"body"`
	}, error) {
		if err := requireFields("link_id", input.Body.LinkID); err != nil {
			return nil, handleError(err)
		}
		a, err := e.AddLink(ctx, input.ArchitectureID, input.Body.LinkID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Architecture `json:"body"`
		}{Body: a}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "validate-architecture",
		Method:      http.MethodPost,
		Path:        "/architectures/{architecture_id}/validate",
		Summary:     "Validate every link and report disconnected components",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *architecturePath) (*struct {
		Body engine.ValidationResult `json:"body"`
	}, error) {
		res, err := e.ValidateArchitectureByID(ctx, input.ArchitectureID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body engine.ValidationResult `json:"body"`
		}{Body: res}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "evaluate-architecture",
		Method:      http.MethodGet,
		Path:        "/architectures/{architecture_id}/evaluation",
		Summary:     "Evaluate architecture",
		Description: "Scores, bottlenecks, insights and validation in one report. Each call is recorded in the evaluation history.",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *architecturePath) (*struct {
		Body engine.Evaluation `json:"body"`
	}, error) {
		ev, err := e.EvaluateByID(ctx, input.ArchitectureID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body engine.Evaluation `json:"body"`
		}{Body: ev}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-evaluations",
		Method:      http.MethodGet,
		Path:        "/architectures/{architecture_id}/evaluations",
		Summary:     "Evaluation history, newest first",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ArchitectureID string `path:"architecture_id"`
		Limit          int    `query:"limit" default:"20"`
	}) (*struct {
		Body EvaluationHistoryResponse `json:"body"`
	}, error) {
		items, err := e.EvaluationHistory(ctx, input.ArchitectureID, normalizeLimit(input.Limit))
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body EvaluationHistoryResponse `json:"body"`
		}{Body: EvaluationHistoryResponse{Items: items}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "score-architecture",
		Method:      http.MethodGet,
		Path:        "/architectures/{architecture_id}/score",
		Summary:     "Detailed score breakdown",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *architecturePath) (*struct {
		Body ScoreBreakdownResponse `json:"body"`
	}, error) {
		b, err := e.ScoreByID(ctx, input.ArchitectureID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ScoreBreakdownResponse `json:"body"`
		}{Body: ScoreBreakdownResponse{ArchitectureID: input.ArchitectureID, Breakdown: b}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "compare-architectures",
		Method:      http.MethodPost,
		Path:        "/architectures/compare",
		Summary:     "Compare two architectures",
		Description: "score_difference is architecture1 minus architecture2.",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		Body CompareRequest `json:"body"`
	}) (*struct {
		Body engine.Comparison `json:"body"`
	}, error) {
		if err := requireFields("architecture1_id", input.Body.ArchitectureID1, "architecture2_id", input.Body.ArchitectureID2); err != nil {
			return nil, handleError(err)
		}
		cmp, err := e.CompareByID(ctx, input.Body.ArchitectureID1, input.Body.ArchitectureID2)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body engine.Comparison `json:"body"`
		}{Body: cmp}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "evaluate-adhoc",
		Method:      http.MethodPost,
		Path:        "/evaluate",
		Summary:     "Evaluate a graph given in the request",
		Description: "Nothing is stored. Members without heuristics are seeded from the defaults table.",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Body EvaluateRequest `json:"body"`
	}) (*struct {
		Body engine.Evaluation `json:"body"`
	}, error) {
		arch, err := input.Body.architecture()
		if err != nil {
			return nil, handleError(err)
		}
		ev, err := e.EvaluateAdHoc(arch)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body engine.Evaluation `json:"body"`
		}{Body: ev}, nil
	})
}
