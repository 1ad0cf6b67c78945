package server

import (
	"context"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/google/uuid"

	"flowline/internal/domain"
	"flowline/internal/engine"
	"flowline/internal/engine/access"
	"flowline/internal/repo"
)

func registerIssues(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-issue",
		Method:        http.MethodPost,
		Path:          "/projects/{project_id}/issues",
		Summary:       "Create issue",
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusForbidden,
			http.StatusNotFound,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, input *struct {
		ProjectID string             `path:"project_id"`
		Body      CreateIssueRequest `json:"body"`
	}) (*struct {
		Body IssueResponse `json:"body"`
	}, error) {
		if input.Body.Title == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "title is required", nil)
		}
		if _, err := requireProjectPermission(ctx, e, input.ProjectID, "issue.create"); err != nil {
			return nil, handleError(err)
		}
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		i, err := e.CreateIssue(ctx, engine.IssueCreateOptions{
			ID:          input.Body.ID,
			ProjectID:   input.ProjectID,
			Title:       input.Body.Title,
			Description: stringOrEmpty(input.Body.Description),
			AssigneeID:  stringOrEmpty(input.Body.AssigneeID),
			ActorID:     userID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body IssueResponse `json:"body"`
		}{Body: issueResponse(i)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-issues",
		Method:      http.MethodGet,
		Path:        "/projects/{project_id}/issues",
		Summary:     "List issues",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ProjectID  string `path:"project_id"`
		StatusID   string `query:"status_id"`
		AssigneeID string `query:"assignee_id"`
		Limit      int    `query:"limit" default:"50"`
	}) (*struct {
		Body []IssueResponse `json:"body"`
	}, error) {
		if _, err := requireProjectPermission(ctx, e, input.ProjectID, "issue.read"); err != nil {
			return nil, handleError(err)
		}
		items, err := e.Repo.ListIssues(ctx, repo.IssueFilters{
			ProjectID:  input.ProjectID,
			StatusID:   input.StatusID,
			AssigneeID: input.AssigneeID,
			Limit:      normalizeLimit(input.Limit),
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []IssueResponse `json:"body"`
		}{Body: mapIssues(items)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-issue",
		Method:      http.MethodGet,
		Path:        "/projects/{project_id}/issues/{id}",
		Summary:     "Get issue",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ProjectID string `path:"project_id"`
		ID        string `path:"id"`
	}) (*struct {
		Body IssueResponse `json:"body"`
	}, error) {
		if _, err := requireProjectPermission(ctx, e, input.ProjectID, "issue.read"); err != nil {
			return nil, handleError(err)
		}
		i, err := e.Repo.GetIssue(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		if i.ProjectID != input.ProjectID {
			return nil, newAPIError(http.StatusNotFound, "not_found", "issue not found in project", nil)
		}
		return &struct {
			Body IssueResponse `json:"body"`
		}{Body: issueResponse(i)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-issue",
		Method:      http.MethodPatch,
		Path:        "/projects/{project_id}/issues/{id}",
		Summary:     "Update issue",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusForbidden,
			http.StatusNotFound,
		},
	}, func(ctx context.Context, input *struct {
		ProjectID string             `path:"project_id"`
		ID        string             `path:"id"`
		Body      UpdateIssueRequest `json:"body"`
	}) (*struct {
		Body IssueResponse `json:"body"`
	}, error) {
		if _, err := requireProjectPermission(ctx, e, input.ProjectID, "issue.update"); err != nil {
			return nil, handleError(err)
		}
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		existing, err := e.Repo.GetIssue(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		if existing.ProjectID != input.ProjectID {
			return nil, newAPIError(http.StatusNotFound, "not_found", "issue not found in project", nil)
		}
		i, err := e.UpdateIssue(ctx, engine.IssueUpdateOptions{
			ID:          input.ID,
			Title:       input.Body.Title,
			Description: input.Body.Description,
			AssigneeID:  input.Body.AssigneeID,
			ActorID:     userID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body IssueResponse `json:"body"`
		}{Body: issueResponse(i)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "delete-issue",
		Method:      http.MethodDelete,
		Path:        "/projects/{project_id}/issues/{id}",
		Summary:     "Delete issue",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ProjectID string `path:"project_id"`
		ID        string `path:"id"`
	}) (*struct{}, error) {
		if _, err := requireProjectPermission(ctx, e, input.ProjectID, "issue.delete"); err != nil {
			return nil, handleError(err)
		}
		i, err := e.Repo.GetIssue(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		if i.ProjectID != input.ProjectID {
			return nil, newAPIError(http.StatusNotFound, "not_found", "issue not found in project", nil)
		}
		if err := e.Repo.DeleteIssue(ctx, input.ID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "available-transitions",
		Method:      http.MethodGet,
		Path:        "/projects/{project_id}/issues/{id}/transitions",
		Summary:     "Transitions available from the issue's current status",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ProjectID string `path:"project_id"`
		ID        string `path:"id"`
	}) (*struct {
		Body []TransitionResponse `json:"body"`
	}, error) {
		if _, err := requireProjectPermission(ctx, e, input.ProjectID, "workflow.view"); err != nil {
			return nil, handleError(err)
		}
		i, err := e.Repo.GetIssue(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		if i.ProjectID != input.ProjectID {
			return nil, newAPIError(http.StatusNotFound, "not_found", "issue not found in project", nil)
		}
		items, err := e.AvailableTransitions(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []TransitionResponse `json:"body"`
		}{Body: nonNilSlice(mapTransitions(items))}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "transition-issue",
		Method:      http.MethodPost,
		Path:        "/projects/{project_id}/issues/{id}/transitions",
		Summary:     "Move issue along a workflow transition",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusForbidden,
			http.StatusNotFound,
			http.StatusConflict,
			http.StatusUnprocessableEntity,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, input *struct {
		ProjectID string                   `path:"project_id"`
		ID        string                   `path:"id"`
		Body      PerformTransitionRequest `json:"body"`
	}) (*struct {
		Body IssueResponse `json:"body"`
	}, error) {
		if input.Body.TransitionID == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "transition_id is required", nil)
		}
		user, authErr := currentUser(ctx, e.Repo)
		if authErr != nil {
			return nil, authErr
		}
		issue, err := e.Repo.GetIssue(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		if issue.ProjectID != input.ProjectID {
			return nil, newAPIError(http.StatusNotFound, "not_found", "issue not found in project", nil)
		}
		// an unknown edge keeps an empty target here; the permission check
		// still runs first and the engine reports not-found after it
		target := ""
		if t, err := e.Repo.GetTransition(ctx, input.Body.TransitionID); err == nil {
			target = t.ToStatusID
		}
		ok, err := e.Access.CanTransition(ctx, user, issue, target)
		if err != nil {
			return nil, handleError(err)
		}
		if !ok {
			return nil, handleError(access.ForbiddenError{Permission: access.PermTransition})
		}
		moved, err := e.PerformTransition(ctx, input.ID, input.Body.TransitionID, user.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body IssueResponse `json:"body"`
		}{Body: issueResponse(moved)}, nil
	})
}

func registerWorkflow(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-workflow-transitions",
		Method:      http.MethodGet,
		Path:        "/projects/{project_id}/workflow/transitions",
		Summary:     "List workflow transitions",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ProjectID string `path:"project_id"`
	}) (*struct {
		Body []TransitionResponse `json:"body"`
	}, error) {
		if _, err := requireProjectPermission(ctx, e, input.ProjectID, "workflow.view"); err != nil {
			return nil, handleError(err)
		}
		items, err := e.ProjectTransitions(ctx, input.ProjectID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []TransitionResponse `json:"body"`
		}{Body: nonNilSlice(mapTransitions(items))}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "create-workflow-transition",
		Method:        http.MethodPost,
		Path:          "/projects/{project_id}/workflow/transitions",
		Summary:       "Create workflow transition",
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusForbidden,
			http.StatusNotFound,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, input *struct {
		ProjectID string                  `path:"project_id"`
		Body      CreateTransitionRequest `json:"body"`
	}) (*struct {
		Body TransitionResponse `json:"body"`
	}, error) {
		if input.Body.Name == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "name is required", nil)
		}
		if input.Body.FromStatusID == "" || input.Body.ToStatusID == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "from_status_id and to_status_id are required", nil)
		}
		if _, err := requireProjectPermission(ctx, e, input.ProjectID, "workflow.manage"); err != nil {
			return nil, handleError(err)
		}
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		t, err := e.CreateTransition(ctx, engine.TransitionCreateOptions{
			ProjectID:    input.ProjectID,
			FromStatusID: input.Body.FromStatusID,
			ToStatusID:   input.Body.ToStatusID,
			Name:         input.Body.Name,
			Description:  stringOrEmpty(input.Body.Description),
			ActorID:      userID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body TransitionResponse `json:"body"`
		}{Body: transitionResponse(t)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "delete-workflow-transition",
		Method:      http.MethodDelete,
		Path:        "/projects/{project_id}/workflow/transitions/{transition_id}",
		Summary:     "Delete workflow transition",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ProjectID    string `path:"project_id"`
		TransitionID int64  `path:"transition_id"`
	}) (*struct{}, error) {
		if _, err := requireProjectPermission(ctx, e, input.ProjectID, "workflow.manage"); err != nil {
			return nil, handleError(err)
		}
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		t, err := e.Repo.GetTransition(ctx, input.TransitionID)
		if err != nil {
			return nil, handleError(err)
		}
		if t.ProjectID != input.ProjectID {
			return nil, newAPIError(http.StatusNotFound, "not_found", "transition not found in project", nil)
		}
		if err := e.DeleteTransition(ctx, input.TransitionID, userID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "validate-workflow",
		Method:      http.MethodGet,
		Path:        "/projects/{project_id}/workflow/validate",
		Summary:     "Validate workflow graph",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ProjectID string `path:"project_id"`
	}) (*struct {
		Body WorkflowReportResponse `json:"body"`
	}, error) {
		if _, err := requireProjectPermission(ctx, e, input.ProjectID, "workflow.view"); err != nil {
			return nil, handleError(err)
		}
		report, err := e.ValidateWorkflow(ctx, input.ProjectID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body WorkflowReportResponse `json:"body"`
		}{Body: reportResponse(report)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "apply-default-workflow",
		Method:      http.MethodPost,
		Path:        "/projects/{project_id}/workflow/defaults",
		Summary:     "Apply the default transition set to a project",
		Errors: []int{
			http.StatusForbidden,
			http.StatusNotFound,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, input *struct {
		ProjectID string `path:"project_id"`
	}) (*struct {
		Body []TransitionResponse `json:"body"`
	}, error) {
		if _, err := requireProjectPermission(ctx, e, input.ProjectID, "workflow.manage"); err != nil {
			return nil, handleError(err)
		}
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := e.CreateDefaultTransitions(ctx, input.ProjectID, userID); err != nil {
			return nil, handleError(err)
		}
		items, err := e.Repo.ListTransitionsByProject(ctx, input.ProjectID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []TransitionResponse `json:"body"`
		}{Body: nonNilSlice(mapTransitions(items))}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "bootstrap-default-workflows",
		Method:      http.MethodPost,
		Path:        "/workflow/defaults/bootstrap",
		Summary:     "Regenerate default workflows for projects below the minimum size",
		Errors: []int{
			http.StatusForbidden,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body map[string]int `json:"body"`
	}, error) {
		if err := requireGlobalAdmin(ctx, e); err != nil {
			return nil, handleError(err)
		}
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		updated, err := e.EnsureDefaultWorkflows(ctx, userID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body map[string]int `json:"body"`
		}{Body: map[string]int{"updated": updated}}, nil
	})
}

func registerLabels(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-label",
		Method:        http.MethodPost,
		Path:          "/projects/{project_id}/labels",
		Summary:       "Create label",
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusForbidden,
			http.StatusNotFound,
		},
	}, func(ctx context.Context, input *struct {
		ProjectID string             `path:"project_id"`
		Body      CreateLabelRequest `json:"body"`
	}) (*struct {
		Body LabelResponse `json:"body"`
	}, error) {
		if input.Body.Name == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "name is required", nil)
		}
		if _, err := requireProjectPermission(ctx, e, input.ProjectID, "label.manage"); err != nil {
			return nil, handleError(err)
		}
		l := domain.Label{
			ID:        input.Body.ID,
			ProjectID: input.ProjectID,
			Name:      input.Body.Name,
			Color:     input.Body.Color,
		}
		if l.ID == "" {
			l.ID = uuid.New().String()
		}
		if err := e.Repo.InsertLabel(ctx, l); err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body LabelResponse `json:"body"`
		}{Body: labelResponse(l)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-labels",
		Method:      http.MethodGet,
		Path:        "/projects/{project_id}/labels",
		Summary:     "List labels",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ProjectID string `path:"project_id"`
	}) (*struct {
		Body []LabelResponse `json:"body"`
	}, error) {
		if _, err := requireProjectPermission(ctx, e, input.ProjectID, "project.read"); err != nil {
			return nil, handleError(err)
		}
		items, err := e.Repo.ListLabels(ctx, input.ProjectID)
		if err != nil {
			return nil, handleError(err)
		}
		res := make([]LabelResponse, 0, len(items))
		for _, l := range items {
			res = append(res, labelResponse(l))
		}
		return &struct {
			Body []LabelResponse `json:"body"`
		}{Body: res}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "delete-label",
		Method:      http.MethodDelete,
		Path:        "/projects/{project_id}/labels/{label_id}",
		Summary:     "Delete label",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ProjectID string `path:"project_id"`
		LabelID   string `path:"label_id"`
	}) (*struct{}, error) {
		if _, err := requireProjectPermission(ctx, e, input.ProjectID, "label.manage"); err != nil {
			return nil, handleError(err)
		}
		l, err := e.Repo.GetLabel(ctx, input.LabelID)
		if err != nil {
			return nil, handleError(err)
		}
		if l.ProjectID != input.ProjectID {
			return nil, newAPIError(http.StatusNotFound, "not_found", "label not found in project", nil)
		}
		if err := e.Repo.DeleteLabel(ctx, input.LabelID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "attach-label",
		Method:      http.MethodPut,
		Path:        "/projects/{project_id}/issues/{id}/labels/{label_id}",
		Summary:     "Attach label to issue",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ProjectID string `path:"project_id"`
		ID        string `path:"id"`
		LabelID   string `path:"label_id"`
	}) (*struct{}, error) {
		if _, err := requireProjectPermission(ctx, e, input.ProjectID, "issue.update"); err != nil {
			return nil, handleError(err)
		}
		if _, err := e.Repo.GetIssue(ctx, input.ID); err != nil {
			return nil, handleError(err)
		}
		if _, err := e.Repo.GetLabel(ctx, input.LabelID); err != nil {
			return nil, handleError(err)
		}
		if err := e.Repo.AttachLabel(ctx, input.ID, input.LabelID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "detach-label",
		Method:      http.MethodDelete,
		Path:        "/projects/{project_id}/issues/{id}/labels/{label_id}",
		Summary:     "Detach label from issue",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ProjectID string `path:"project_id"`
		ID        string `path:"id"`
		LabelID   string `path:"label_id"`
	}) (*struct{}, error) {
		if _, err := requireProjectPermission(ctx, e, input.ProjectID, "issue.update"); err != nil {
			return nil, handleError(err)
		}
		if err := e.Repo.DetachLabel(ctx, input.ID, input.LabelID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})
}

func registerEvents(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-events",
		Method:      http.MethodGet,
		Path:        "/projects/{project_id}/events",
		Summary:     "List recent events",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ProjectID  string `path:"project_id"`
		Type       string `query:"type"`
		EntityKind string `query:"entity_kind" enum:"project,issue,transition"`
		EntityID   string `query:"entity_id"`
		Limit      int    `query:"limit" default:"50"`
	}) (*struct {
		Body []EventResponse `json:"body"`
	}, error) {
		if _, err := requireProjectPermission(ctx, e, input.ProjectID, "project.read"); err != nil {
			return nil, handleError(err)
		}
		items, err := e.Repo.LatestEvents(ctx, normalizeLimit(input.Limit), input.ProjectID, input.Type, input.EntityKind, input.EntityID)
		if err != nil {
			return nil, handleError(err)
		}
		res := make([]EventResponse, 0, len(items))
		for _, evt := range items {
			res = append(res, eventResponse(evt))
		}
		return &struct {
			Body []EventResponse `json:"body"`
		}{Body: res}, nil
	})
}

func registerAPIKeys(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-api-key",
		Method:        http.MethodPost,
		Path:          "/api-keys",
		Summary:       "Create API key",
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusForbidden,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, input *struct {
		Body CreateAPIKeyRequest `json:"body"`
	}) (*struct {
		Body APIKeyResponse `json:"body"`
	}, error) {
		if input.Body.UserID == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "user_id is required", nil)
		}
		if err := requireGlobalAdmin(ctx, e); err != nil {
			return nil, handleError(err)
		}
		if _, err := e.Repo.GetUser(ctx, input.Body.UserID); err != nil {
			return nil, handleError(err)
		}
		raw := uuid.New().String() + uuid.New().String()
		key := domain.APIKey{
			ID:        uuid.New().String(),
			UserID:    input.Body.UserID,
			Name:      input.Body.Name,
			KeyHash:   repo.HashAPIKey(raw),
			CreatedAt: e.Now().UTC().Format(time.RFC3339),
		}
		if err := e.Repo.InsertAPIKey(ctx, key); err != nil {
			return nil, handleError(err)
		}
		// The raw key is shown once, at creation.
		return &struct {
			Body APIKeyResponse `json:"body"`
		}{Body: APIKeyResponse{
			ID:        key.ID,
			UserID:    key.UserID,
			Name:      key.Name,
			Key:       raw,
			CreatedAt: key.CreatedAt,
		}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-api-keys",
		Method:      http.MethodGet,
		Path:        "/api-keys",
		Summary:     "List API keys",
		Errors:      []int{http.StatusForbidden},
	}, func(ctx context.Context, input *struct {
		UserID string `query:"user_id"`
	}) (*struct {
		Body []APIKeyResponse `json:"body"`
	}, error) {
		if err := requireGlobalAdmin(ctx, e); err != nil {
			return nil, handleError(err)
		}
		items, err := e.Repo.ListAPIKeys(ctx, input.UserID)
		if err != nil {
			return nil, handleError(err)
		}
		res := make([]APIKeyResponse, 0, len(items))
		for _, k := range items {
			res = append(res, APIKeyResponse{
				ID:        k.ID,
				UserID:    k.UserID,
				Name:      k.Name,
				CreatedAt: k.CreatedAt,
			})
		}
		return &struct {
			Body []APIKeyResponse `json:"body"`
		}{Body: res}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "delete-api-key",
		Method:      http.MethodDelete,
		Path:        "/api-keys/{id}",
		Summary:     "Delete API key",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct{}, error) {
		if err := requireGlobalAdmin(ctx, e); err != nil {
			return nil, handleError(err)
		}
		if err := e.Repo.DeleteAPIKey(ctx, input.ID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})
}

func normalizeLimit(in int) int {
	if in <= 0 {
		return 50
	}
	if in > 200 {
		return 200
	}
	return in
}
