// Package server exposes the assignment engine over HTTP. Handlers stay thin:
// they decode, call the engine, and translate its errors into the API error
// envelope.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"

	"github.com/danielgtaylor/huma/v2"
	humachi "github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"

	"workdesk/internal/domain"
	"workdesk/internal/engine"
	"workdesk/internal/ledger"
	"workdesk/internal/repo"
	"workdesk/internal/roster"
)

// Config for the HTTP API handler.
type Config struct {
	Engine   engine.Engine
	BasePath string
}

type apiErrorBody struct {
	Code    string         `json:"code" example:"duplicate_person"`
	Message string         `json:"message" example:"person p-1 is already assigned to General Assignment - Account Executive"`
	Details map[string]any `json:"details,omitempty" jsonschema:"type=object,additionalProperties=true"`
}

// apiError models the error envelope every endpoint returns on failure.
type apiError struct {
	status int
	Body   apiErrorBody `json:"error"`
}

func (e *apiError) GetStatus() int { return e.status }
func (e *apiError) Error() string  { return e.Body.Message }

type actorKey struct{}

// actorID returns the caller identity recorded on events. Attribution only;
// there is no authentication layer.
func actorID(ctx context.Context) string {
	if v, ok := ctx.Value(actorKey{}).(string); ok && v != "" {
		return v
	}
	return "anonymous"
}

// New returns an HTTP handler exposing the Workdesk API.
func New(cfg Config) (http.Handler, error) {
	basePath := cfg.BasePath
	if basePath == "" {
		basePath = "/v0"
	}
	if !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}
	huma.DefaultArrayNullable = false
	// Override Huma errors to use the envelope.
	huma.NewError = func(status int, msg string, errs ...error) huma.StatusError {
		return newAPIError(status, "", msg, nil)
	}
	huma.NewErrorWithContext = func(_ huma.Context, status int, msg string, errs ...error) huma.StatusError {
		if status == http.StatusUnprocessableEntity && strings.Contains(strings.ToLower(msg), "validation") {
			// Schema/request validation errors should be 400 bad_request
			status = http.StatusBadRequest
		}
		var details map[string]any
		if len(errs) > 0 {
			details = map[string]any{"errors": errs}
		}
		return newAPIError(status, "", msg, details)
	}

	router := chi.NewRouter()
	router.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := context.WithValue(r.Context(), actorKey{}, r.Header.Get("X-Actor-Id"))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	})
	hcfg := huma.DefaultConfig("Workdesk API", "0.1.0")
	hcfg.OpenAPIPath = "/openapi"
	hcfg.DocsPath = "" // custom Swagger UI below
	api := humachi.New(router, hcfg)
	group := huma.NewGroup(api, basePath)

	registerDocs(router, basePath)
	registerHealth(group)
	registerWorkItems(group, cfg.Engine)
	registerAssignments(group, cfg.Engine)
	registerRoster(group, cfg.Engine)
	registerEvents(group, cfg.Engine)
	registerOpenAPI(router, api, basePath)

	return router, nil
}

func newAPIError(status int, code, message string, details map[string]any) huma.StatusError {
	if code == "" {
		code = defaultCodeForStatus(status)
	}
	return &apiError{
		status: status,
		Body: apiErrorBody{
			Code:    code,
			Message: message,
			Details: details,
		},
	}
}

func handleError(err error) huma.StatusError {
	if err == nil {
		return nil
	}
	var dup ledger.DuplicatePersonError
	if errors.As(err, &dup) {
		return newAPIError(http.StatusConflict, "duplicate_person", err.Error(), map[string]any{
			"person_id": dup.PersonID,
			"team_name": dup.TeamName,
			"role_name": dup.RoleName,
		})
	}
	var inv ledger.InvalidJustificationError
	if errors.As(err, &inv) {
		return newAPIError(http.StatusUnprocessableEntity, "invalid_justification", err.Error(), map[string]any{"length": inv.Length})
	}
	switch {
	case errors.Is(err, ledger.ErrFrozen):
		return newAPIError(http.StatusConflict, "work_item_frozen", err.Error(), nil)
	case errors.Is(err, ledger.ErrChairOccupied):
		return newAPIError(http.StatusConflict, "chair_occupied", err.Error(), nil)
	case errors.Is(err, ledger.ErrNotAssigned):
		return newAPIError(http.StatusConflict, "chair_not_assigned", err.Error(), nil)
	case errors.Is(err, engine.ErrHasAssignments):
		return newAPIError(http.StatusConflict, "has_assignments", err.Error(), nil)
	case errors.Is(err, ledger.ErrNoAssignments):
		return newAPIError(http.StatusUnprocessableEntity, "no_assignments", err.Error(), nil)
	case errors.Is(err, repo.ErrNotFound), errors.Is(err, roster.ErrNotFound):
		return newAPIError(http.StatusNotFound, "not_found", err.Error(), nil)
	}
	msg := err.Error()
	lowered := strings.ToLower(msg)
	switch {
	case strings.Contains(lowered, "invalid"),
		strings.Contains(lowered, "unknown"),
		strings.Contains(lowered, "required"):
		return newAPIError(http.StatusBadRequest, "bad_request", msg, nil)
	default:
		return newAPIError(http.StatusInternalServerError, "internal_error", "internal error", map[string]any{"error": msg})
	}
}

func defaultCodeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "bad_request"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusConflict:
		return "conflict"
	case http.StatusUnprocessableEntity:
		return "validation_failed"
	case http.StatusInternalServerError:
		return "internal_error"
	default:
		return strings.ToLower(strings.ReplaceAll(http.StatusText(status), " ", "_"))
	}
}

func registerDocs(r chi.Router, basePath string) {
	r.Get("/docs", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		io.WriteString(w, swaggerHTML(basePath))
	})
}

func registerOpenAPI(r chi.Router, api huma.API, basePath string) {
	var spec []byte
	specPath := path.Join(basePath, "openapi.json")
	r.Get(specPath, func(w http.ResponseWriter, r *http.Request) {
		if spec == nil {
			spec, _ = json.Marshal(api.OpenAPI())
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(spec)
	})
}

func swaggerHTML(basePath string) string {
	specURL := path.Join("/", path.Join(basePath, "openapi.json"))
	return fmt.Sprintf(`<!doctype html>
<html lang="en">
  <head>
    <meta charset="utf-8"/>
    <meta name="viewport" content="width=device-width, initial-scale=1"/>
    <title>Workdesk API Docs</title>
    <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@5/swagger-ui.css" />
  </head>
  <body>
    <div id="swagger-ui"></div>
    <script src="https://unpkg.com/swagger-ui-dist@5/swagger-ui-bundle.js" crossorigin></script>
    <script>
      window.onload = () => {
        SwaggerUIBundle({
          url: '%s',
          dom_id: '#swagger-ui'
        });
      };
    </script>
  </body>
</html>`, specURL)
}

func registerHealth(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "health",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body map[string]string `json:"body"`
	}, error) {
		return &struct {
			Body map[string]string `json:"body"`
		}{Body: map[string]string{"status": "ok"}}, nil
	})
}

func registerWorkItems(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-work-item",
		Method:        http.MethodPost,
		Path:          "/work-items",
		Summary:       "Create work item",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Body CreateWorkItemRequest `json:"body"`
	}) (*struct {
		Body WorkItemResponse `json:"body"`
	}, error) {
		if input.Body.ClientName == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "client_name is required", nil)
		}
		opts := engine.WorkItemCreateOptions{
			Kind:       input.Body.Kind,
			ClientName: input.Body.ClientName,
			ActorID:    actorID(ctx),
		}
		if input.Body.ID != nil {
			opts.ID = *input.Body.ID
		}
		if input.Body.DueDate != nil {
			opts.DueDate = *input.Body.DueDate
		}
		w, err := e.CreateWorkItem(ctx, opts)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body WorkItemResponse `json:"body"`
		}{Body: workItemResponse(w)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-work-items",
		Method:      http.MethodGet,
		Path:        "/work-items",
		Summary:     "List work items",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Kind            string `query:"kind"`
		Status          string `query:"status"`
		Limit           int    `query:"limit"`
		CursorCreatedAt string `query:"cursor_created_at"`
		CursorID        string `query:"cursor_id"`
	}) (*struct {
		Body []WorkItemResponse `json:"body"`
	}, error) {
		items, err := e.ListWorkItems(ctx, repo.WorkItemFilters{
			Kind:            input.Kind,
			Status:          input.Status,
			Limit:           input.Limit,
			CursorCreatedAt: input.CursorCreatedAt,
			CursorID:        input.CursorID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []WorkItemResponse `json:"body"`
		}{Body: mapWorkItems(items)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-work-item",
		Method:      http.MethodGet,
		Path:        "/work-items/{work_item_id}",
		Summary:     "Get work item",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		WorkItemID string `path:"work_item_id"`
	}) (*struct {
		Body WorkItemResponse `json:"body"`
	}, error) {
		w, err := e.GetWorkItem(ctx, input.WorkItemID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body WorkItemResponse `json:"body"`
		}{Body: workItemResponse(w)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-work-item-tree",
		Method:      http.MethodGet,
		Path:        "/work-items/{work_item_id}/tree",
		Summary:     "Get assignment tree",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		WorkItemID string `path:"work_item_id"`
	}) (*struct {
		Body TreeResponse `json:"body"`
	}, error) {
		w, teams, progress, err := e.Tree(ctx, input.WorkItemID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body TreeResponse `json:"body"`
		}{Body: TreeResponse{WorkItem: workItemResponse(w), Teams: teams, Progress: progress}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "complete-work-item",
		Method:      http.MethodPost,
		Path:        "/work-items/{work_item_id}/complete",
		Summary:     "Complete work item",
		Errors:      []int{http.StatusNotFound, http.StatusConflict, http.StatusUnprocessableEntity},
	}, func(ctx context.Context, input *struct {
		WorkItemID string                  `path:"work_item_id"`
		Body       CompleteWorkItemRequest `json:"body"`
	}) (*struct {
		Body WorkItemResponse `json:"body"`
	}, error) {
		w, err := e.Complete(ctx, input.WorkItemID, input.Body.Justification, actorID(ctx))
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body WorkItemResponse `json:"body"`
		}{Body: workItemResponse(w)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "cancel-work-item",
		Method:      http.MethodPost,
		Path:        "/work-items/{work_item_id}/cancel",
		Summary:     "Cancel work item",
		Errors:      []int{http.StatusNotFound, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		WorkItemID string                `path:"work_item_id"`
		Body       CancelWorkItemRequest `json:"body"`
	}) (*struct {
		Body WorkItemResponse `json:"body"`
	}, error) {
		w, err := e.Cancel(ctx, input.WorkItemID, input.Body.Notes, actorID(ctx))
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body WorkItemResponse `json:"body"`
		}{Body: workItemResponse(w)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "delete-work-item",
		Method:        http.MethodDelete,
		Path:          "/work-items/{work_item_id}",
		Summary:       "Delete work item",
		DefaultStatus: http.StatusNoContent,
		Errors:        []int{http.StatusNotFound, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		WorkItemID string `path:"work_item_id"`
	}) (*struct{}, error) {
		if err := e.DeleteWorkItem(ctx, input.WorkItemID, actorID(ctx)); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-saved-assignments",
		Method:      http.MethodGet,
		Path:        "/work-items/{work_item_id}/saved-assignments",
		Summary:     "List saved assignments",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		WorkItemID string `path:"work_item_id"`
	}) (*struct {
		Body []domain.SavedAssignment `json:"body"`
	}, error) {
		saved, err := e.SavedAssignments(ctx, input.WorkItemID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.SavedAssignment `json:"body"`
		}{Body: saved}, nil
	})
}

func registerAssignments(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "add-assignment",
		Method:        http.MethodPost,
		Path:          "/work-items/{work_item_id}/assignments",
		Summary:       "Assign a person to a chair",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusNotFound, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		WorkItemID string               `path:"work_item_id"`
		Body       AddAssignmentRequest `json:"body"`
	}) (*struct {
		Body AssignmentResponse `json:"body"`
	}, error) {
		if input.Body.RoleID == "" || input.Body.PersonID == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "role_id and person_id are required", nil)
		}
		a, progress, err := e.Assign(ctx, engine.AssignOptions{
			WorkItemID:         input.WorkItemID,
			RoleID:             input.Body.RoleID,
			ChairIndex:         input.Body.ChairIndex,
			PersonID:           input.Body.PersonID,
			Notes:              input.Body.Notes,
			WorkloadPercentage: input.Body.WorkloadPercentage,
			ActorID:            actorID(ctx),
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body AssignmentResponse `json:"body"`
		}{Body: AssignmentResponse{Assignment: a, Progress: progress}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "remove-assignment",
		Method:      http.MethodDelete,
		Path:        "/work-items/{work_item_id}/assignments/{role_id}/{chair_index}",
		Summary:     "Clear a chair",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		WorkItemID string `path:"work_item_id"`
		RoleID     string `path:"role_id"`
		ChairIndex int    `path:"chair_index" minimum:"0"`
	}) (*struct {
		Body ProgressResponse `json:"body"`
	}, error) {
		progress, err := e.Unassign(ctx, engine.UnassignOptions{
			WorkItemID: input.WorkItemID,
			RoleID:     input.RoleID,
			ChairIndex: input.ChairIndex,
			ActorID:    actorID(ctx),
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ProgressResponse `json:"body"`
		}{Body: ProgressResponse{Progress: progress}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "search-candidates",
		Method:      http.MethodGet,
		Path:        "/work-items/{work_item_id}/candidates",
		Summary:     "Search assignable candidates",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		WorkItemID string `path:"work_item_id"`
		Q          string `query:"q"`
		Location   string `query:"location"`
		Expertise  string `query:"expertise"`
		Limit      int    `query:"limit"`
	}) (*struct {
		Body []engine.Candidate `json:"body"`
	}, error) {
		candidates, err := e.SearchCandidates(ctx, engine.CandidateQuery{
			WorkItemID: input.WorkItemID,
			Text:       input.Q,
			Location:   input.Location,
			Expertise:  input.Expertise,
			Limit:      input.Limit,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []engine.Candidate `json:"body"`
		}{Body: candidates}, nil
	})
}

func registerRoster(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "search-roster",
		Method:      http.MethodGet,
		Path:        "/roster",
		Summary:     "Search the roster",
	}, func(ctx context.Context, input *struct {
		Q         string `query:"q"`
		Location  string `query:"location"`
		Expertise string `query:"expertise"`
		Limit     int    `query:"limit"`
	}) (*struct {
		Body []engine.Candidate `json:"body"`
	}, error) {
		candidates, err := e.SearchCandidates(ctx, engine.CandidateQuery{
			Text:      input.Q,
			Location:  input.Location,
			Expertise: input.Expertise,
			Limit:     input.Limit,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []engine.Candidate `json:"body"`
		}{Body: candidates}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "import-roster",
		Method:      http.MethodPost,
		Path:        "/roster/import",
		Summary:     "Import roster entries",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Body ImportRosterRequest `json:"body"`
	}) (*struct {
		Body ImportRosterResponse `json:"body"`
	}, error) {
		if len(input.Body.People) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "people is required", nil)
		}
		n, err := e.ImportRoster(ctx, input.Body.People, actorID(ctx))
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ImportRosterResponse `json:"body"`
		}{Body: ImportRosterResponse{Imported: n}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "preview-capacity",
		Method:      http.MethodGet,
		Path:        "/roster/{person_id}/capacity",
		Summary:     "Preview capacity impact of an assignment",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		PersonID string `path:"person_id"`
		Increase int    `query:"increase"`
	}) (*struct {
		Body engine.CapacityReport `json:"body"`
	}, error) {
		report, err := e.CapacityPreview(ctx, input.PersonID, input.Increase)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body engine.CapacityReport `json:"body"`
		}{Body: report}, nil
	})
}

func registerEvents(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-events",
		Method:      http.MethodGet,
		Path:        "/events",
		Summary:     "List events newest-first",
	}, func(ctx context.Context, input *struct {
		WorkItemID string `query:"work_item_id"`
		Type       string `query:"type"`
		Limit      int    `query:"limit"`
		Cursor     int64  `query:"cursor"`
	}) (*struct {
		Body []domain.Event `json:"body"`
	}, error) {
		items, err := e.Repo.LatestEvents(ctx, input.Limit, input.Cursor, input.WorkItemID, input.Type)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.Event `json:"body"`
		}{Body: items}, nil
	})
}
