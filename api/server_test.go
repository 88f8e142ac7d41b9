package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"tenantdesk/config"
	"tenantdesk/core/auth"
	"tenantdesk/core/incidents"
	"tenantdesk/core/rbac"
	"tenantdesk/core/realtime"
	"tenantdesk/core/store"
	"tenantdesk/core/tenancy"
)

type testServer struct {
	ts          *httptest.Server
	acme        *store.Tenant
	other       *store.Tenant
	acmeType    *store.IncidentType
	opToken     string
	clientToken string
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	ctx := context.Background()
	cfg := &config.AppConfig{
		DBDriver: "sqlite",
		DBURL:    filepath.Join(t.TempDir(), "api.db"),
		Auth:     config.AuthConfig{TokenSecret: "test-secret-test-secret-test-secret", TokenTTL: time.Hour, BcryptCost: 4},
		Realtime: config.RealtimeConfig{SendBuffer: 16},
		Security: config.SecurityConfig{LoginAttempts: 100, LoginWindow: time.Minute},
	}
	db, err := store.NewDB(cfg, nil)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := store.ApplyMigrations(ctx, db, nil); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	tenants := store.NewTenantsStore(db)
	users := store.NewUsersStore(db)
	types := store.NewIncidentTypesStore(db)
	router := realtime.NewRouter(nil)
	svc := incidents.NewService(cfg, incidents.ServiceDeps{
		Incidents: store.NewIncidentsStore(db),
		Types:     types,
		Tenants:   tenants,
		Users:     users,
		Scope:     tenancy.NewScope(rbac.MustPolicy(rbac.DefaultRoles())),
		Publisher: router,
	})
	sessions, err := auth.NewSessionManager(users, cfg, nil)
	if err != nil {
		t.Fatalf("sessions: %v", err)
	}

	env := &testServer{
		acme:  &store.Tenant{Name: "Acme Corporation", Slug: "acme", IsActive: true},
		other: &store.Tenant{Name: "TechCorp", Slug: "techcorp", IsActive: true},
	}
	for _, tn := range []*store.Tenant{env.acme, env.other} {
		if err := tenants.Create(ctx, tn); err != nil {
			t.Fatalf("create tenant: %v", err)
		}
	}
	hash := auth.MustHashPassword("password123", 4)
	for _, u := range []*store.User{
		{Email: "operator@example.com", PasswordHash: hash, Name: "John Operator", Role: rbac.RoleOperator},
		{Email: "client@acme.com", PasswordHash: hash, Name: "Alice Client", Role: rbac.RoleClient, TenantID: &env.acme.ID},
	} {
		if err := users.Create(ctx, u); err != nil {
			t.Fatalf("create user: %v", err)
		}
	}
	env.acmeType = &store.IncidentType{TenantID: env.acme.ID, Name: "Server Outage", Priority: 4, IsActive: true}
	if err := types.Create(ctx, env.acmeType); err != nil {
		t.Fatalf("create type: %v", err)
	}

	s := NewServer(cfg, ServerDeps{DB: db, Sessions: sessions, Incidents: svc, Realtime: router}, nil)
	env.ts = httptest.NewServer(s.Handler())
	t.Cleanup(env.ts.Close)
	env.opToken = env.login(t, "operator@example.com", "password123")
	env.clientToken = env.login(t, "client@acme.com", "password123")
	return env
}

func (e *testServer) do(t *testing.T, method, path, token string, body any) (int, map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req, err := http.NewRequest(method, e.ts.URL+path, &buf)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	out := map[string]any{}
	_ = json.NewDecoder(resp.Body).Decode(&out)
	return resp.StatusCode, out
}

func (e *testServer) login(t *testing.T, email, password string) string {
	t.Helper()
	code, body := e.do(t, http.MethodPost, "/api/auth/login", "", map[string]string{"email": email, "password": password})
	if code != http.StatusOK {
		t.Fatalf("login %s: status %d body %v", email, code, body)
	}
	token, _ := body["token"].(string)
	if token == "" {
		t.Fatalf("login %s: empty token", email)
	}
	return token
}

func errorCode(body map[string]any) string {
	e, _ := body["error"].(map[string]any)
	code, _ := e["code"].(string)
	return code
}

func (e *testServer) createIncident(t *testing.T, token, title string) string {
	t.Helper()
	code, body := e.do(t, http.MethodPost, "/api/incidents", token, map[string]any{
		"tenantId":       e.acme.ID,
		"incidentTypeId": e.acmeType.ID,
		"title":          title,
	})
	if code != http.StatusCreated {
		t.Fatalf("create incident: status %d body %v", code, body)
	}
	id, _ := body["id"].(string)
	if id == "" {
		t.Fatalf("create incident: missing id in %v", body)
	}
	return id
}

func TestLoginRejectsBadPassword(t *testing.T) {
	e := newTestServer(t)
	code, body := e.do(t, http.MethodPost, "/api/auth/login", "", map[string]string{"email": "operator@example.com", "password": "nope-nope"})
	if code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", code)
	}
	if errorCode(body) != "auth.invalid_credentials" {
		t.Fatalf("unexpected body %v", body)
	}
}

func TestMeReturnsActor(t *testing.T) {
	e := newTestServer(t)
	code, body := e.do(t, http.MethodGet, "/api/auth/me", e.clientToken, nil)
	if code != http.StatusOK {
		t.Fatalf("expected 200, got %d", code)
	}
	user, _ := body["user"].(map[string]any)
	if user["email"] != "client@acme.com" || user["tenantId"] != e.acme.ID {
		t.Fatalf("unexpected actor %v", user)
	}
	if code, _ := e.do(t, http.MethodGet, "/api/auth/me", "garbage", nil); code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for bad token, got %d", code)
	}
}

func TestHealth(t *testing.T) {
	e := newTestServer(t)
	code, body := e.do(t, http.MethodGet, "/health", "", nil)
	if code != http.StatusOK || body["status"] != "ok" {
		t.Fatalf("unexpected health %d %v", code, body)
	}
	if _, err := time.Parse(time.RFC3339, body["timestamp"].(string)); err != nil {
		t.Fatalf("bad timestamp: %v", err)
	}
}

func TestIncidentLifecycleOverHTTP(t *testing.T) {
	e := newTestServer(t)
	id := e.createIncident(t, e.clientToken, "Database down")

	code, body := e.do(t, http.MethodPut, "/api/incidents/"+id, e.opToken, map[string]any{"status": "completed"})
	if code != http.StatusUnprocessableEntity || errorCode(body) != "incidents.invalid_transition" {
		t.Fatalf("expected invalid transition, got %d %v", code, body)
	}
	code, body = e.do(t, http.MethodPut, "/api/incidents/"+id, e.opToken, map[string]any{"status": "in_progress", "priority": 3})
	if code != http.StatusOK || body["status"] != "in_progress" {
		t.Fatalf("update: %d %v", code, body)
	}
	code, body = e.do(t, http.MethodPut, "/api/incidents/"+id, e.opToken, map[string]any{"priority": 9})
	if code != http.StatusBadRequest || errorCode(body) != "incidents.invalid_priority" {
		t.Fatalf("expected invalid priority, got %d %v", code, body)
	}

	code, body = e.do(t, http.MethodGet, "/api/incidents/"+id+"/activity", e.clientToken, nil)
	if code != http.StatusOK {
		t.Fatalf("activity: %d", code)
	}
	items, _ := body["items"].([]any)
	if len(items) != 3 {
		t.Fatalf("expected created, status and priority entries, got %d", len(items))
	}
	first, _ := items[0].(map[string]any)
	if first["action"] == "created" {
		t.Fatalf("expected newest entry first, got %v", first)
	}

	code, body = e.do(t, http.MethodGet, "/api/incidents", e.clientToken, nil)
	if code != http.StatusOK {
		t.Fatalf("list: %d", code)
	}
	if list, _ := body["items"].([]any); len(list) != 1 {
		t.Fatalf("expected one incident, got %v", body["items"])
	}
}

func TestIncidentErrorsMapToStatus(t *testing.T) {
	e := newTestServer(t)
	code, body := e.do(t, http.MethodGet, "/api/incidents/00000000-0000-4000-8000-000000000000", e.opToken, nil)
	if code != http.StatusNotFound || errorCode(body) != "incidents.not_found" {
		t.Fatalf("expected not found, got %d %v", code, body)
	}
	code, body = e.do(t, http.MethodPost, "/api/incidents", e.clientToken, map[string]any{
		"tenantId":       e.other.ID,
		"incidentTypeId": e.acmeType.ID,
		"title":          "cross tenant",
	})
	if code != http.StatusForbidden || errorCode(body) != "tenancy.access_denied" {
		t.Fatalf("expected access denied, got %d %v", code, body)
	}
	code, body = e.do(t, http.MethodPost, "/api/incidents", e.clientToken, map[string]any{"tenantId": e.acme.ID})
	if code != http.StatusBadRequest {
		t.Fatalf("expected validation error, got %d %v", code, body)
	}
	code, _ = e.do(t, http.MethodPost, "/api/clients", e.clientToken, map[string]any{"name": "X", "slug": "x"})
	if code != http.StatusForbidden {
		t.Fatalf("expected client tenant create forbidden, got %d", code)
	}
}

func TestInternalCommentsHiddenFromClients(t *testing.T) {
	e := newTestServer(t)
	id := e.createIncident(t, e.opToken, "Login failures")
	for _, c := range []map[string]any{
		{"incidentId": id, "content": "visible", "isInternal": false},
		{"incidentId": id, "content": "staff only", "isInternal": true},
	} {
		if code, body := e.do(t, http.MethodPost, "/api/comments", e.opToken, c); code != http.StatusCreated {
			t.Fatalf("comment: %d %v", code, body)
		}
	}
	_, body := e.do(t, http.MethodGet, "/api/comments/incident/"+id, e.clientToken, nil)
	items, _ := body["items"].([]any)
	if len(items) != 1 {
		t.Fatalf("expected client to see one comment, got %v", items)
	}
	_, body = e.do(t, http.MethodGet, "/api/comments/incident/"+id, e.opToken, nil)
	if items, _ := body["items"].([]any); len(items) != 2 {
		t.Fatalf("expected operator to see both comments, got %v", items)
	}
}

func TestClientsAndIncidentTypes(t *testing.T) {
	e := newTestServer(t)
	code, body := e.do(t, http.MethodPost, "/api/clients", e.opToken, map[string]any{"name": "Global Solutions", "slug": "global-solutions"})
	if code != http.StatusCreated {
		t.Fatalf("create client: %d %v", code, body)
	}
	newID, _ := body["id"].(string)
	code, body = e.do(t, http.MethodPost, "/api/clients", e.opToken, map[string]any{"name": "Dup", "slug": "global-solutions"})
	if code != http.StatusBadRequest || errorCode(body) != "tenants.slug_taken" {
		t.Fatalf("expected slug taken, got %d %v", code, body)
	}
	code, body = e.do(t, http.MethodPost, "/api/clients/"+newID+"/incident-types", e.opToken, map[string]any{"name": "Phishing", "priority": 2})
	if code != http.StatusCreated {
		t.Fatalf("create type: %d %v", code, body)
	}
	typeID, _ := body["id"].(string)
	code, _ = e.do(t, http.MethodPut, "/api/incident-types/"+typeID, e.opToken, map[string]any{"name": "Phishing", "isActive": false})
	if code != http.StatusOK {
		t.Fatalf("update type: %d", code)
	}
	_, body = e.do(t, http.MethodGet, "/api/clients/"+newID+"/incident-types", e.opToken, nil)
	if items, _ := body["items"].([]any); len(items) != 0 {
		t.Fatalf("expected inactive type hidden, got %v", items)
	}

	_, body = e.do(t, http.MethodGet, "/api/clients", e.clientToken, nil)
	if items, _ := body["items"].([]any); len(items) != 1 {
		t.Fatalf("expected client to list only own tenant, got %v", items)
	}
	if code, _ := e.do(t, http.MethodGet, "/api/clients/"+e.other.ID, e.clientToken, nil); code != http.StatusForbidden {
		t.Fatalf("expected foreign tenant forbidden, got %d", code)
	}
}

type wsMessage struct {
	Event   string          `json:"event"`
	Room    string          `json:"room"`
	Payload json.RawMessage `json:"payload"`
}

func TestRealtimeJoinAndBroadcast(t *testing.T) {
	e := newTestServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	url := "ws" + strings.TrimPrefix(e.ts.URL, "http") + "/api/realtime?token=" + e.clientToken
	conn, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "done")

	read := func() wsMessage {
		var msg wsMessage
		if err := wsjson.Read(ctx, conn, &msg); err != nil {
			t.Fatalf("read: %v", err)
		}
		return msg
	}

	if err := wsjson.Write(ctx, conn, map[string]string{"type": "join-client", "id": e.other.ID}); err != nil {
		t.Fatalf("write: %v", err)
	}
	msg := read()
	if msg.Event != "error" || !strings.Contains(string(msg.Payload), "tenancy.access_denied") {
		t.Fatalf("expected rejected join, got %+v", msg)
	}

	if err := wsjson.Write(ctx, conn, map[string]string{"type": "join-client", "id": e.acme.ID}); err != nil {
		t.Fatalf("write: %v", err)
	}
	if msg := read(); msg.Event != "joined" || msg.Room != realtime.TenantRoom(e.acme.ID) {
		t.Fatalf("expected joined, got %+v", msg)
	}

	id := e.createIncident(t, e.opToken, "Broadcast me")
	msg = read()
	if msg.Event != incidents.EventCreated || !strings.Contains(string(msg.Payload), id) {
		t.Fatalf("expected created event for %s, got %+v", id, msg)
	}
}

func TestRealtimeRequiresSession(t *testing.T) {
	e := newTestServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	url := "ws" + strings.TrimPrefix(e.ts.URL, "http") + "/api/realtime"
	_, resp, err := websocket.Dial(ctx, url, nil)
	if err == nil {
		t.Fatalf("expected dial without token to fail")
	}
	if resp == nil || resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 response, got %v", resp)
	}
}

func TestUserProvisioning(t *testing.T) {
	e := newTestServer(t)
	newClient := map[string]any{"email": "New.User@Acme.com", "password": "secret12", "name": "New User", "role": "client", "tenantId": e.acme.ID}

	if code, body := e.do(t, http.MethodPost, "/api/users", e.clientToken, newClient); code != http.StatusForbidden || errorCode(body) != "rbac.users.manage" {
		t.Fatalf("client provisioning: %d %v", code, body)
	}
	if code, _ := e.do(t, http.MethodPost, "/api/users", "", newClient); code != http.StatusUnauthorized {
		t.Fatalf("anonymous provisioning: %d", code)
	}

	code, body := e.do(t, http.MethodPost, "/api/users", e.opToken, newClient)
	if code != http.StatusCreated {
		t.Fatalf("create user: %d %v", code, body)
	}
	user, _ := body["user"].(map[string]any)
	if user["email"] != "new.user@acme.com" || user["tenantId"] != e.acme.ID {
		t.Fatalf("unexpected user %v", user)
	}
	if _, leaked := user["passwordHash"]; leaked {
		t.Fatalf("password hash exposed: %v", user)
	}
	token := e.login(t, "new.user@acme.com", "secret12")
	if code, me := e.do(t, http.MethodGet, "/api/auth/me", token, nil); code != http.StatusOK {
		t.Fatalf("me: %d %v", code, me)
	}

	cases := []struct {
		name string
		body map[string]any
		code string
	}{
		{"taken email", newClient, "users.email_taken"},
		{"bad email", map[string]any{"email": "nope", "password": "secret12", "name": "X", "role": "client", "tenantId": e.acme.ID}, "users.invalid_email"},
		{"short password", map[string]any{"email": "a@acme.com", "password": "123", "name": "X", "role": "client", "tenantId": e.acme.ID}, "users.invalid_password"},
		{"unknown role", map[string]any{"email": "a@acme.com", "password": "secret12", "name": "X", "role": "admin"}, "users.invalid_role"},
		{"client without tenant", map[string]any{"email": "a@acme.com", "password": "secret12", "name": "X", "role": "client"}, "users.tenant_required"},
		{"client with missing tenant", map[string]any{"email": "a@acme.com", "password": "secret12", "name": "X", "role": "client", "tenantId": store.NewID()}, "users.unknown_tenant"},
		{"operator with tenant", map[string]any{"email": "a@example.com", "password": "secret12", "name": "X", "role": "operator", "tenantId": e.acme.ID}, "users.operator_tenant"},
	}
	for _, tc := range cases {
		code, body := e.do(t, http.MethodPost, "/api/users", e.opToken, tc.body)
		if code != http.StatusBadRequest || errorCode(body) != tc.code {
			t.Fatalf("%s: expected 400 %s, got %d %v", tc.name, tc.code, code, body)
		}
	}
}
