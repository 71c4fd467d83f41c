package server

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/danielgtaylor/huma/v2"
	humachi "github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"questboard/internal/config"
	"questboard/internal/domain"
	"questboard/internal/engine"
	"questboard/internal/repo"
)

// Config for the HTTP API handler.
type Config struct {
	Engine   engine.Engine
	BasePath string
	Auth     AuthConfig
}

type apiErrorBody struct {
	Code    string         `json:"code" example:"not_found"`
	Message string         `json:"message" example:"quest not found"`
	Details map[string]any `json:"details,omitempty" jsonschema:"type=object,additionalProperties=true"`
}

type requestKey struct{}
type bodyBytesKey struct{}

// apiError models the error envelope returned by every endpoint.
type apiError struct {
	status int
	Body   apiErrorBody `json:"error"`
}

func (e *apiError) GetStatus() int { return e.status }
func (e *apiError) Error() string  { return e.Body.Message }

// New returns an HTTP handler exposing the Questboard API.
func New(cfg Config) (http.Handler, error) {
	basePath := cfg.BasePath
	if basePath == "" {
		basePath = "/v1"
	}
	if !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}
	huma.DefaultArrayNullable = false
	huma.NewError = func(status int, msg string, errs ...error) huma.StatusError {
		return newAPIError(status, "", msg, nil)
	}
	huma.NewErrorWithContext = func(_ huma.Context, status int, msg string, errs ...error) huma.StatusError {
		if status == http.StatusUnprocessableEntity && strings.Contains(strings.ToLower(msg), "validation") {
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
			bodyData, _ := io.ReadAll(r.Body)
			r.Body = io.NopCloser(bytes.NewBuffer(bodyData))
			ctx := context.WithValue(r.Context(), requestKey{}, r)
			ctx = context.WithValue(ctx, bodyBytesKey{}, bodyData)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	})
	router.Use(newAuthMiddleware(basePath, cfg.Auth, cfg.Engine.Repo))
	hcfg := huma.DefaultConfig("Questboard API", "0.1.0")
	hcfg.OpenAPIPath = "/openapi"
	hcfg.DocsPath = "" // custom Swagger UI below
	api := humachi.New(router, hcfg)
	group := huma.NewGroup(api, basePath)

	registerDocs(router, basePath)
	registerHealth(group)
	registerOrgs(group, cfg.Engine)
	registerMembers(group, cfg.Engine)
	registerGoals(group, cfg.Engine)
	registerQuestlines(group, cfg.Engine)
	registerQuests(group, cfg.Engine)
	registerTasks(group, cfg.Engine)
	registerDecks(group, cfg.Engine)
	registerRun(group, cfg.Engine)
	registerSummaries(group, cfg.Engine)
	registerEvents(group, cfg.Engine)
	registerAPIKeys(group, cfg.Engine)
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
	if errors.Is(err, repo.ErrNotFound) {
		return newAPIError(http.StatusNotFound, "not_found", err.Error(), nil)
	}
	msg := err.Error()
	lowered := strings.ToLower(msg)
	switch {
	case strings.Contains(lowered, "cannot move from"):
		return newAPIError(http.StatusConflict, "invalid_transition", msg, nil)
	case strings.Contains(lowered, "unique constraint"):
		return newAPIError(http.StatusConflict, "conflict", msg, nil)
	case strings.Contains(lowered, "invalid") || strings.Contains(lowered, "missing") || strings.Contains(lowered, "required") ||
		strings.Contains(lowered, "must"):
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
	case http.StatusForbidden:
		return "forbidden"
	case http.StatusInternalServerError:
		return "internal_error"
	default:
		return strings.ToLower(strings.ReplaceAll(http.StatusText(status), " ", "_"))
	}
}

func bodyBytes(ctx context.Context) []byte {
	if b, ok := ctx.Value(bodyBytesKey{}).([]byte); ok {
		return b
	}
	return nil
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
			oas := api.OpenAPI()
			applyAuthSecurity(oas, basePath)
			spec, _ = json.Marshal(oas)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(spec)
	})
}

func applyAuthSecurity(oas *huma.OpenAPI, basePath string) {
	if oas == nil {
		return
	}
	if oas.Components == nil {
		oas.Components = &huma.Components{}
	}
	if oas.Components.SecuritySchemes == nil {
		oas.Components.SecuritySchemes = map[string]*huma.SecurityScheme{}
	}
	oas.Components.SecuritySchemes["bearerAuth"] = &huma.SecurityScheme{
		Type:         "http",
		Scheme:       "bearer",
		BearerFormat: "JWT",
	}
	oas.Components.SecuritySchemes["apiKeyAuth"] = &huma.SecurityScheme{
		Type: "apiKey",
		In:   "header",
		Name: "X-Api-Key",
	}
	security := []map[string][]string{
		{"bearerAuth": {}},
		{"apiKeyAuth": {}},
	}
	oas.Security = security
	healthPath := path.Join(basePath, "health")
	if !strings.HasPrefix(healthPath, "/") {
		healthPath = "/" + healthPath
	}
	for route, item := range oas.Paths {
		for _, op := range []*huma.Operation{
			item.Get, item.Put, item.Post, item.Delete, item.Options, item.Head, item.Patch, item.Trace,
		} {
			if op == nil {
				continue
			}
			if route == healthPath {
				op.Security = []map[string][]string{}
				continue
			}
			op.Security = security
		}
	}
}

func swaggerHTML(basePath string) string {
	specURL := path.Join("/", path.Join(basePath, "openapi.json"))
	return fmt.Sprintf(`<!doctype html>
<html lang="en">
  <head>
    <meta charset="utf-8"/>
    <meta name="viewport" content="width=device-width, initial-scale=1"/>
    <title>Questboard API Docs</title>
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
    <p style="padding: 1rem; font-family: sans-serif; color: #444;">
      Authenticate with Authorization: Bearer &lt;token&gt; or X-Api-Key.
    </p>
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

type orgPath struct {
	OrgID string `path:"org_id"`
}

func registerOrgs(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-org",
		Method:        http.MethodPost,
		Path:          "/orgs",
		Summary:       "Create org",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusConflict, http.StatusInternalServerError},
	}, func(ctx context.Context, input *struct {
		Body CreateOrgRequest `json:"body"`
	}) (*struct {
		Body domain.Org `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		opts := engine.OrgCreateOptions{
			Name:         input.Body.Name,
			SlackEnabled: input.Body.SlackEnabled,
			SlackChannel: input.Body.SlackChannel,
			EmailEnabled: input.Body.EmailEnabled,
		}
		if input.Body.ID != nil {
			opts.ID = *input.Body.ID
		}
		org, err := e.CreateOrg(ctx, opts)
		if err != nil {
			return nil, handleError(err)
		}
		if err := e.Repo.UpsertOrgConfig(ctx, org.ID, config.Default(org.ID)); err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Org `json:"body"`
		}{Body: org}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-orgs",
		Method:      http.MethodGet,
		Path:        "/orgs",
		Summary:     "List orgs",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []domain.Org `json:"body"`
	}, error) {
		items, err := e.Repo.ListOrgs(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.Org `json:"body"`
		}{Body: items}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-org",
		Method:      http.MethodGet,
		Path:        "/orgs/{org_id}",
		Summary:     "Get org",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *orgPath) (*struct {
		Body domain.Org `json:"body"`
	}, error) {
		org, err := e.Repo.GetOrg(ctx, input.OrgID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Org `json:"body"`
		}{Body: org}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-org",
		Method:      http.MethodPatch,
		Path:        "/orgs/{org_id}",
		Summary:     "Update org",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		OrgID string           `path:"org_id"`
		Body  UpdateOrgRequest `json:"body"`
	}) (*struct {
		Body domain.Org `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		org, err := e.Repo.GetOrg(ctx, input.OrgID)
		if err != nil {
			return nil, handleError(err)
		}
		if input.Body.Name != nil {
			org.Name = *input.Body.Name
		}
		if input.Body.SlackEnabled != nil {
			org.SlackEnabled = *input.Body.SlackEnabled
		}
		if input.Body.SlackChannel != nil {
			org.SlackChannel = *input.Body.SlackChannel
		}
		if input.Body.EmailEnabled != nil {
			org.EmailEnabled = *input.Body.EmailEnabled
		}
		if err := e.Repo.UpdateOrg(ctx, org); err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Org `json:"body"`
		}{Body: org}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-org-status",
		Method:      http.MethodGet,
		Path:        "/orgs/{org_id}/status",
		Summary:     "Org status",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *orgPath) (*struct {
		Body OrgStatusResponse `json:"body"`
	}, error) {
		org, err := e.Repo.GetOrg(ctx, input.OrgID)
		if err != nil {
			return nil, handleError(err)
		}
		counts, err := e.Repo.CountTasksByStatus(ctx, org.ID)
		if err != nil {
			return nil, handleError(err)
		}
		members, err := e.Repo.ListMembers(ctx, org.ID)
		if err != nil {
			return nil, handleError(err)
		}
		quests, err := e.Repo.ListQuests(ctx, org.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body OrgStatusResponse `json:"body"`
		}{Body: OrgStatusResponse{
			OrgID:      org.ID,
			TaskCounts: counts,
			Members:    len(members),
			Quests:     len(quests),
		}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-org-config",
		Method:      http.MethodGet,
		Path:        "/orgs/{org_id}/config",
		Summary:     "Get org config",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *orgPath) (*struct {
		Body OrgConfigResponse `json:"body"`
	}, error) {
		cfg, err := e.Repo.GetOrgConfig(ctx, input.OrgID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body OrgConfigResponse `json:"body"`
		}{Body: OrgConfigResponse{OrgID: input.OrgID, Config: *cfg}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "put-org-config",
		Method:      http.MethodPut,
		Path:        "/orgs/{org_id}/config",
		Summary:     "Replace org config",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		OrgID string        `path:"org_id"`
		Body  config.Config `json:"body"`
	}) (*struct {
		Body OrgConfigResponse `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		if _, err := e.Repo.GetOrg(ctx, input.OrgID); err != nil {
			return nil, handleError(err)
		}
		cfg := input.Body
		if err := e.Repo.UpsertOrgConfig(ctx, input.OrgID, &cfg); err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body OrgConfigResponse `json:"body"`
		}{Body: OrgConfigResponse{OrgID: input.OrgID, Config: cfg}}, nil
	})
}

func registerMembers(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-member",
		Method:        http.MethodPost,
		Path:          "/orgs/{org_id}/members",
		Summary:       "Create member",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusNotFound, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		OrgID string              `path:"org_id"`
		Body  CreateMemberRequest `json:"body"`
	}) (*struct {
		Body domain.Member `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		if _, err := e.Repo.GetOrg(ctx, input.OrgID); err != nil {
			return nil, handleError(err)
		}
		opts := engine.MemberCreateOptions{
			OrgID:                input.OrgID,
			Email:                input.Body.Email,
			Profile:              input.Body.Profile,
			DailyCapacityMinutes: input.Body.DailyCapacityMinutes,
		}
		if input.Body.ID != nil {
			opts.ID = *input.Body.ID
		}
		if input.Body.Name != nil {
			opts.Name = *input.Body.Name
		}
		m, err := e.CreateMember(ctx, opts)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Member `json:"body"`
		}{Body: m}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-members",
		Method:      http.MethodGet,
		Path:        "/orgs/{org_id}/members",
		Summary:     "List members",
	}, func(ctx context.Context, input *orgPath) (*struct {
		Body []domain.Member `json:"body"`
	}, error) {
		items, err := e.Repo.ListMembers(ctx, input.OrgID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.Member `json:"body"`
		}{Body: items}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-member",
		Method:      http.MethodGet,
		Path:        "/members/{member_id}",
		Summary:     "Get member",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		MemberID string `path:"member_id"`
	}) (*struct {
		Body domain.Member `json:"body"`
	}, error) {
		m, err := e.Repo.GetMember(ctx, input.MemberID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Member `json:"body"`
		}{Body: m}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-member",
		Method:      http.MethodPatch,
		Path:        "/members/{member_id}",
		Summary:     "Update member",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		MemberID string              `path:"member_id"`
		Body     UpdateMemberRequest `json:"body"`
	}) (*struct {
		Body domain.Member `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		m, err := e.UpdateMember(ctx, engine.MemberUpdateOptions{
			ID:                   input.MemberID,
			Name:                 input.Body.Name,
			Profile:              input.Body.Profile,
			DailyCapacityMinutes: input.Body.DailyCapacityMinutes,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Member `json:"body"`
		}{Body: m}, nil
	})
}

func registerGoals(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-goal",
		Method:        http.MethodPost,
		Path:          "/orgs/{org_id}/goals",
		Summary:       "Create goal",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusNotFound, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		OrgID string            `path:"org_id"`
		Body  CreateGoalRequest `json:"body"`
	}) (*struct {
		Body domain.Goal `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		if _, err := e.Repo.GetOrg(ctx, input.OrgID); err != nil {
			return nil, handleError(err)
		}
		opts := engine.GoalCreateOptions{OrgID: input.OrgID, Title: input.Body.Title}
		if input.Body.ID != nil {
			opts.ID = *input.Body.ID
		}
		if input.Body.Status != nil {
			opts.Status = *input.Body.Status
		}
		g, err := e.CreateGoal(ctx, opts)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Goal `json:"body"`
		}{Body: g}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-goals",
		Method:      http.MethodGet,
		Path:        "/orgs/{org_id}/goals",
		Summary:     "List goals",
	}, func(ctx context.Context, input *orgPath) (*struct {
		Body []domain.Goal `json:"body"`
	}, error) {
		items, err := e.Repo.ListGoals(ctx, input.OrgID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.Goal `json:"body"`
		}{Body: items}, nil
	})
}

func registerQuestlines(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-questline",
		Method:        http.MethodPost,
		Path:          "/orgs/{org_id}/questlines",
		Summary:       "Create questline",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusNotFound, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		OrgID string                 `path:"org_id"`
		Body  CreateQuestlineRequest `json:"body"`
	}) (*struct {
		Body domain.Questline `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		if _, err := e.Repo.GetOrg(ctx, input.OrgID); err != nil {
			return nil, handleError(err)
		}
		opts := engine.QuestlineCreateOptions{OrgID: input.OrgID, GoalID: input.Body.GoalID, Title: input.Body.Title}
		if input.Body.ID != nil {
			opts.ID = *input.Body.ID
		}
		q, err := e.CreateQuestline(ctx, opts)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Questline `json:"body"`
		}{Body: q}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-questlines",
		Method:      http.MethodGet,
		Path:        "/orgs/{org_id}/questlines",
		Summary:     "List questlines",
	}, func(ctx context.Context, input *orgPath) (*struct {
		Body []domain.Questline `json:"body"`
	}, error) {
		items, err := e.Repo.ListQuestlines(ctx, input.OrgID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.Questline `json:"body"`
		}{Body: items}, nil
	})
}

func registerQuests(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-quest",
		Method:        http.MethodPost,
		Path:          "/orgs/{org_id}/quests",
		Summary:       "Create quest",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusNotFound, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		OrgID string             `path:"org_id"`
		Body  CreateQuestRequest `json:"body"`
	}) (*struct {
		Body domain.Quest `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		if _, err := e.Repo.GetOrg(ctx, input.OrgID); err != nil {
			return nil, handleError(err)
		}
		opts := engine.QuestCreateOptions{
			OrgID:            input.OrgID,
			Title:            input.Body.Title,
			UnlockConditions: input.Body.UnlockConditions,
		}
		if input.Body.ID != nil {
			opts.ID = *input.Body.ID
		}
		if input.Body.QuestlineID != nil {
			opts.QuestlineID = *input.Body.QuestlineID
		}
		if input.Body.Objective != nil {
			opts.Objective = *input.Body.Objective
		}
		q, err := e.CreateQuest(ctx, opts)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Quest `json:"body"`
		}{Body: q}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-quests",
		Method:      http.MethodGet,
		Path:        "/orgs/{org_id}/quests",
		Summary:     "List quests",
	}, func(ctx context.Context, input *orgPath) (*struct {
		Body []domain.Quest `json:"body"`
	}, error) {
		items, err := e.Repo.ListQuests(ctx, input.OrgID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.Quest `json:"body"`
		}{Body: items}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-quest",
		Method:      http.MethodGet,
		Path:        "/quests/{quest_id}",
		Summary:     "Get quest",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		QuestID string `path:"quest_id"`
	}) (*struct {
		Body domain.Quest `json:"body"`
	}, error) {
		q, err := e.Repo.GetQuest(ctx, input.QuestID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Quest `json:"body"`
		}{Body: q}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "set-quest-state",
		Method:      http.MethodPatch,
		Path:        "/quests/{quest_id}/state",
		Summary:     "Advance quest state",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		QuestID string               `path:"quest_id"`
		Body    SetQuestStateRequest `json:"body"`
	}) (*struct {
		Body domain.Quest `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		q, err := e.SetQuestState(ctx, input.QuestID, input.Body.State)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Quest `json:"body"`
		}{Body: q}, nil
	})
}

func registerTasks(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-task",
		Method:        http.MethodPost,
		Path:          "/orgs/{org_id}/tasks",
		Summary:       "Create task",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusNotFound, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		OrgID string            `path:"org_id"`
		Body  CreateTaskRequest `json:"body"`
	}) (*struct {
		Body domain.Task `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		if _, err := e.Repo.GetOrg(ctx, input.OrgID); err != nil {
			return nil, handleError(err)
		}
		opts := engine.TaskCreateOptions{
			OrgID:           input.OrgID,
			QuestID:         input.Body.QuestID,
			Title:           input.Body.Title,
			EstimateMinutes: input.Body.EstimateMinutes,
			Priority:        input.Body.Priority,
			Phase:           input.Body.Phase,
			Blockers:        input.Body.Blockers,
		}
		if input.Body.ID != nil {
			opts.ID = *input.Body.ID
		}
		if input.Body.AssigneeID != nil {
			opts.AssigneeID = *input.Body.AssigneeID
		}
		t, err := e.CreateTask(ctx, opts)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Task `json:"body"`
		}{Body: t}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-tasks",
		Method:      http.MethodGet,
		Path:        "/orgs/{org_id}/tasks",
		Summary:     "List tasks",
	}, func(ctx context.Context, input *struct {
		OrgID      string `path:"org_id"`
		QuestID    string `query:"quest_id"`
		Status     string `query:"status" enum:"todo,in-progress,blocked,done"`
		AssigneeID string `query:"assignee_id"`
		Unassigned bool   `query:"unassigned"`
	}) (*struct {
		Body []domain.Task `json:"body"`
	}, error) {
		items, err := e.Repo.ListTasks(ctx, repo.TaskFilters{
			OrgID:      input.OrgID,
			QuestID:    input.QuestID,
			Status:     domain.TaskStatus(input.Status),
			AssigneeID: input.AssigneeID,
			Unassigned: input.Unassigned,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.Task `json:"body"`
		}{Body: items}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-task",
		Method:      http.MethodGet,
		Path:        "/tasks/{task_id}",
		Summary:     "Get task",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		TaskID string `path:"task_id"`
	}) (*struct {
		Body domain.Task `json:"body"`
	}, error) {
		t, err := e.Repo.GetTask(ctx, input.TaskID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Task `json:"body"`
		}{Body: t}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-task",
		Method:      http.MethodPatch,
		Path:        "/tasks/{task_id}",
		Summary:     "Update task",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		TaskID string            `path:"task_id"`
		Body   UpdateTaskRequest `json:"body"`
	}) (*struct {
		Body domain.Task `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		t, err := e.UpdateTask(ctx, engine.TaskUpdateOptions{
			ID:         input.TaskID,
			Status:     input.Body.Status,
			AssigneeID: input.Body.AssigneeID,
			Blockers:   input.Body.Blockers,
			Priority:   input.Body.Priority,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Task `json:"body"`
		}{Body: t}, nil
	})
}

func registerDecks(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-decks",
		Method:      http.MethodGet,
		Path:        "/orgs/{org_id}/decks",
		Summary:     "List decks",
	}, func(ctx context.Context, input *struct {
		OrgID string `path:"org_id"`
		Date  string `query:"date"`
	}) (*struct {
		Body []domain.MemberQuestDeck `json:"body"`
	}, error) {
		items, err := e.Repo.ListDecks(ctx, input.OrgID, input.Date)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.MemberQuestDeck `json:"body"`
		}{Body: items}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-member-deck",
		Method:      http.MethodGet,
		Path:        "/members/{member_id}/deck",
		Summary:     "Get a member's deck for a date",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		MemberID string `path:"member_id"`
		Date     string `query:"date"`
	}) (*struct {
		Body domain.MemberQuestDeck `json:"body"`
	}, error) {
		date := input.Date
		if date == "" {
			date = time.Now().UTC().Format("2006-01-02")
		}
		d, err := e.Repo.GetDeck(ctx, input.MemberID, date)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.MemberQuestDeck `json:"body"`
		}{Body: d}, nil
	})
}

func registerRun(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "run-questmaster",
		Method:      http.MethodPost,
		Path:        "/orgs/{org_id}/questmaster/run",
		Summary:     "Run the questmaster batch for an org",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound, http.StatusInternalServerError},
	}, func(ctx context.Context, input *struct {
		OrgID string     `path:"org_id"`
		Body  RunRequest `json:"body,omitempty"`
	}) (*struct {
		Body domain.RunStats `json:"body"`
	}, error) {
		now := time.Now().UTC()
		if input.Body.Now != nil {
			parsed, err := time.Parse(time.RFC3339, *input.Body.Now)
			if err != nil {
				return nil, newAPIError(http.StatusBadRequest, "bad_request", "invalid now timestamp", nil)
			}
			now = parsed.UTC()
		}
		runCtx := ctx
		if e.Config != nil && e.Config.Questmaster.DeadlineSeconds > 0 {
			var cancel context.CancelFunc
			runCtx, cancel = context.WithTimeout(ctx, time.Duration(e.Config.Questmaster.DeadlineSeconds)*time.Second)
			defer cancel()
		}
		stats, err := e.RunQuestmaster(runCtx, input.OrgID, now)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.RunStats `json:"body"`
		}{Body: stats}, nil
	})
}

func registerSummaries(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-summaries",
		Method:      http.MethodGet,
		Path:        "/orgs/{org_id}/summaries",
		Summary:     "List run summaries",
	}, func(ctx context.Context, input *struct {
		OrgID string `path:"org_id"`
		Limit int    `query:"limit"`
	}) (*struct {
		Body []domain.JobRunSummary `json:"body"`
	}, error) {
		limit := input.Limit
		if limit <= 0 {
			limit = 20
		}
		items, err := e.Repo.ListSummaries(ctx, input.OrgID, limit)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.JobRunSummary `json:"body"`
		}{Body: items}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-summary",
		Method:      http.MethodGet,
		Path:        "/summaries/{summary_id}",
		Summary:     "Get run summary",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		SummaryID string `path:"summary_id"`
	}) (*struct {
		Body domain.JobRunSummary `json:"body"`
	}, error) {
		s, err := e.Repo.GetSummary(ctx, input.SummaryID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.JobRunSummary `json:"body"`
		}{Body: s}, nil
	})
}

func registerEvents(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-events",
		Method:      http.MethodGet,
		Path:        "/orgs/{org_id}/events",
		Summary:     "List latest events",
	}, func(ctx context.Context, input *struct {
		OrgID      string `path:"org_id"`
		Type       string `query:"type"`
		EntityKind string `query:"entity_kind"`
		EntityID   string `query:"entity_id"`
		Limit      int    `query:"limit"`
	}) (*struct {
		Body []domain.Event `json:"body"`
	}, error) {
		limit := input.Limit
		if limit <= 0 {
			limit = 50
		}
		items, err := e.Repo.LatestEvents(ctx, limit, input.OrgID, input.Type, input.EntityKind, input.EntityID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.Event `json:"body"`
		}{Body: items}, nil
	})
}

func registerAPIKeys(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-apikey",
		Method:        http.MethodPost,
		Path:          "/apikeys",
		Summary:       "Create API key",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Body CreateAPIKeyRequest `json:"body"`
	}) (*struct {
		Body APIKeyCreatedResponse `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		if strings.TrimSpace(input.Body.ActorID) == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "actor_id is required", nil)
		}
		raw, err := generateAPIKey()
		if err != nil {
			return nil, handleError(err)
		}
		key := domain.APIKey{
			ID:        uuid.New().String(),
			ActorID:   input.Body.ActorID,
			Name:      input.Body.Name,
			KeyHash:   repo.HashAPIKey(raw),
			CreatedAt: time.Now().UTC().Format(domain.TimeFormat),
		}
		if err := e.Repo.InsertAPIKey(ctx, key); err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body APIKeyCreatedResponse `json:"body"`
		}{Body: APIKeyCreatedResponse{ID: key.ID, ActorID: key.ActorID, Name: key.Name, Key: raw}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-apikeys",
		Method:      http.MethodGet,
		Path:        "/apikeys",
		Summary:     "List API keys",
	}, func(ctx context.Context, input *struct {
		ActorID string `query:"actor_id"`
	}) (*struct {
		Body []domain.APIKey `json:"body"`
	}, error) {
		items, err := e.Repo.ListAPIKeys(ctx, input.ActorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.APIKey `json:"body"`
		}{Body: items}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "delete-apikey",
		Method:      http.MethodDelete,
		Path:        "/apikeys/{key_id}",
		Summary:     "Delete API key",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		KeyID string `path:"key_id"`
	}) (*struct{}, error) {
		if err := e.Repo.DeleteAPIKey(ctx, input.KeyID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})
}

func generateAPIKey() (string, error) {
	buf := make([]byte, 24)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return "qb_" + hex.EncodeToString(buf), nil
}
