package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"testing"
	"time"

	"flowline/internal/config"
	"flowline/internal/db"
	"flowline/internal/domain"
	"flowline/internal/engine"
	"flowline/internal/migrate"
)

type testServer struct {
	URL     string
	Engine  engine.Engine
	Project domain.Project
	client  *http.Client
	close   func()
}

func (s *testServer) Client() *http.Client { return s.client }
func (s *testServer) Close()               { s.close() }

func newTestServer(t *testing.T) (*testServer, func()) {
	t.Helper()
	workspace := t.TempDir()
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	e := engine.New(conn, config.Default())
	ctx := context.Background()
	if err := e.Seed(ctx); err != nil {
		t.Fatalf("seed: %v", err)
	}
	now := time.Now().UTC().Format(time.RFC3339)
	for _, u := range []domain.User{
		{ID: "root", Name: "Root", GlobalRole: domain.GlobalRoleSuperAdmin, CreatedAt: now},
		{ID: "worker", Name: "Worker", GlobalRole: domain.GlobalRoleUser, CreatedAt: now},
		{ID: "watcher", Name: "Watcher", GlobalRole: domain.GlobalRoleUser, CreatedAt: now},
	} {
		if err := e.Repo.InsertUser(ctx, u); err != nil {
			t.Fatalf("insert user %s: %v", u.ID, err)
		}
	}
	project, err := e.InitProject(ctx, engine.ProjectCreateOptions{Key: "FL", Name: "Flowline", ActorID: "root"})
	if err != nil {
		t.Fatalf("init project: %v", err)
	}
	for _, m := range []domain.ProjectMember{
		{ProjectID: project.ID, UserID: "worker", Role: domain.ProjectRoleContributor},
		{ProjectID: project.ID, UserID: "watcher", Role: domain.ProjectRoleViewer},
	} {
		if err := e.Repo.UpsertProjectMember(ctx, m); err != nil {
			t.Fatalf("upsert member %s: %v", m.UserID, err)
		}
	}
	handler, err := New(Config{
		Engine:   e,
		BasePath: "/v0",
		Auth:     AuthConfig{JWTSecret: "test-secret", AllowLegacyUserHeader: true},
	})
	if err != nil {
		t.Fatalf("build handler: %v", err)
	}
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	srv := &http.Server{Handler: handler}
	go srv.Serve(ln)
	testSrv := &testServer{
		URL:     "http://" + ln.Addr().String(),
		Engine:  e,
		Project: project,
		client:  &http.Client{},
		close: func() {
			srv.Shutdown(context.Background())
			ln.Close()
			conn.Close()
		},
	}
	return testSrv, func() { testSrv.Close() }
}

func doJSON(t *testing.T, client *http.Client, method, url string, body any, headers map[string]string) (*http.Response, []byte) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	res, err := client.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer res.Body.Close()
	data, err := io.ReadAll(res.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return res, data
}

func as(userID string) map[string]string {
	return map[string]string{"X-User-Id": userID}
}

func errorCode(t *testing.T, data []byte) string {
	t.Helper()
	var envelope struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		t.Fatalf("unmarshal error envelope: %v (%s)", err, string(data))
	}
	return envelope.Error.Code
}

func TestHealthIsOpen(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/health", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("health: %d %s", res.StatusCode, string(data))
	}
}

func TestUnauthenticatedRejected(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/projects", nil, nil)
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d %s", res.StatusCode, string(data))
	}
	if errorCode(t, data) != "unauthorized" {
		t.Fatalf("unexpected error code: %s", string(data))
	}
}

func TestDevLoginIssuesUsableToken(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/auth/dev/login", map[string]any{"user_id": "root"}, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("dev login: %d %s", res.StatusCode, string(data))
	}
	var login DevLoginResponse
	if err := json.Unmarshal(data, &login); err != nil || login.Token == "" {
		t.Fatalf("expected token: %v %s", err, string(data))
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/me", nil, map[string]string{
		"Authorization": "Bearer " + login.Token,
	})
	if res.StatusCode != http.StatusOK {
		t.Fatalf("me: %d %s", res.StatusCode, string(data))
	}
	var me WhoAmIResponse
	if err := json.Unmarshal(data, &me); err != nil {
		t.Fatal(err)
	}
	if me.UserID != "root" || me.GlobalRole != "super_admin" {
		t.Fatalf("unexpected principal: %+v", me)
	}
}

func TestIssueTransitionFlow(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()
	base := srv.URL + "/v0/projects/" + srv.Project.ID

	res, data := doJSON(t, client, http.MethodPost, base+"/issues", map[string]any{"title": "Ship feature"}, as("worker"))
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create issue: %d %s", res.StatusCode, string(data))
	}
	var issue IssueResponse
	if err := json.Unmarshal(data, &issue); err != nil {
		t.Fatal(err)
	}
	if issue.StatusID != "todo" {
		t.Fatalf("expected todo start, got %s", issue.StatusID)
	}

	res, data = doJSON(t, client, http.MethodGet, base+"/issues/"+issue.ID+"/transitions", nil, as("worker"))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("available transitions: %d %s", res.StatusCode, string(data))
	}
	var available []TransitionResponse
	if err := json.Unmarshal(data, &available); err != nil {
		t.Fatal(err)
	}
	if len(available) != 1 || available[0].Name != "Start Progress" {
		t.Fatalf("unexpected transitions: %s", string(data))
	}

	res, data = doJSON(t, client, http.MethodPost, base+"/issues/"+issue.ID+"/transitions", map[string]any{
		"transition_id": available[0].ID,
	}, as("worker"))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("perform transition: %d %s", res.StatusCode, string(data))
	}
	var moved IssueResponse
	if err := json.Unmarshal(data, &moved); err != nil {
		t.Fatal(err)
	}
	if moved.StatusID != "in_progress" {
		t.Fatalf("expected in_progress, got %s", moved.StatusID)
	}
}

func TestViewerCannotTransition(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()
	base := srv.URL + "/v0/projects/" + srv.Project.ID

	_, data := doJSON(t, client, http.MethodPost, base+"/issues", map[string]any{"title": "Guarded"}, as("worker"))
	var issue IssueResponse
	if err := json.Unmarshal(data, &issue); err != nil {
		t.Fatal(err)
	}
	_, data = doJSON(t, client, http.MethodGet, base+"/workflow/transitions", nil, as("worker"))
	var transitions []TransitionResponse
	if err := json.Unmarshal(data, &transitions); err != nil {
		t.Fatal(err)
	}

	res, data := doJSON(t, client, http.MethodPost, base+"/issues/"+issue.ID+"/transitions", map[string]any{
		"transition_id": transitions[0].ID,
	}, as("watcher"))
	if res.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403 for viewer, got %d %s", res.StatusCode, string(data))
	}
	if errorCode(t, data) != "forbidden" {
		t.Fatalf("unexpected error code: %s", string(data))
	}
}

func TestWrongSourceStatusIsUnprocessable(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()
	base := srv.URL + "/v0/projects/" + srv.Project.ID

	_, data := doJSON(t, client, http.MethodPost, base+"/issues", map[string]any{"title": "Stuck"}, as("worker"))
	var issue IssueResponse
	if err := json.Unmarshal(data, &issue); err != nil {
		t.Fatal(err)
	}
	_, data = doJSON(t, client, http.MethodGet, base+"/workflow/transitions", nil, as("worker"))
	var transitions []TransitionResponse
	if err := json.Unmarshal(data, &transitions); err != nil {
		t.Fatal(err)
	}
	var finish TransitionResponse
	for _, tr := range transitions {
		if tr.Name == "Finish" {
			finish = tr
		}
	}
	if finish.ID == 0 {
		t.Fatalf("Finish transition missing: %s", string(data))
	}

	res, data := doJSON(t, client, http.MethodPost, base+"/issues/"+issue.ID+"/transitions", map[string]any{
		"transition_id": finish.ID,
	}, as("worker"))
	if res.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d %s", res.StatusCode, string(data))
	}
	if errorCode(t, data) != "invalid_transition" {
		t.Fatalf("unexpected error code: %s", string(data))
	}
}

func TestUnknownTransitionIsNotFound(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()
	base := srv.URL + "/v0/projects/" + srv.Project.ID

	_, data := doJSON(t, client, http.MethodPost, base+"/issues", map[string]any{"title": "Lost"}, as("worker"))
	var issue IssueResponse
	if err := json.Unmarshal(data, &issue); err != nil {
		t.Fatal(err)
	}
	res, data := doJSON(t, client, http.MethodPost, base+"/issues/"+issue.ID+"/transitions", map[string]any{
		"transition_id": 424242,
	}, as("worker"))
	if res.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d %s", res.StatusCode, string(data))
	}
	if errorCode(t, data) != "not_found" {
		t.Fatalf("unexpected error code: %s", string(data))
	}
}

func TestMyProjectPermissions(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/projects/"+srv.Project.ID+"/me/permissions", nil, as("watcher"))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("permissions: %d %s", res.StatusCode, string(data))
	}
	var me WhoAmIResponse
	if err := json.Unmarshal(data, &me); err != nil {
		t.Fatal(err)
	}
	if me.ProjectRole != "viewer" {
		t.Fatalf("expected viewer role, got %+v", me)
	}
	seen := map[string]bool{}
	for _, p := range me.Permissions {
		seen[p] = true
	}
	if !seen["issue.read"] || seen["workflow.manage"] {
		t.Fatalf("unexpected permission set: %v", me.Permissions)
	}
}

func TestCreateUserRequiresGlobalAdmin(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/users", map[string]any{"name": "Eve"}, as("worker"))
	if res.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403, got %d %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/users", map[string]any{"id": "eve", "name": "Eve"}, as("root"))
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d %s", res.StatusCode, string(data))
	}
	var u UserResponse
	if err := json.Unmarshal(data, &u); err != nil {
		t.Fatal(err)
	}
	if u.GlobalRole != "user" {
		t.Fatalf("new users default to user role, got %s", u.GlobalRole)
	}
}

func TestBootstrapEndpoint(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	ctx := context.Background()
	now := time.Now().UTC().Format(time.RFC3339)
	bare := domain.Project{ID: "p-empty", Key: "PE", Name: "empty", CreatedAt: now}
	if err := srv.Engine.Repo.InsertProject(ctx, bare); err != nil {
		t.Fatal(err)
	}

	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/workflow/defaults/bootstrap", nil, as("root"))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("bootstrap: %d %s", res.StatusCode, string(data))
	}
	var out map[string]int
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatal(err)
	}
	if out["updated"] != 1 {
		t.Fatalf("expected 1 repaired project, got %v", out)
	}

	res, data = doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/workflow/defaults/bootstrap", nil, as("worker"))
	if res.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403 for non-admin, got %d %s", res.StatusCode, string(data))
	}
}
