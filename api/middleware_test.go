package api

import (
	"context"
	"crypto/tls"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"tenantdesk/config"
	"tenantdesk/core/auth"
	"tenantdesk/core/rbac"
	"tenantdesk/core/tenancy"
)

func testScope() *tenancy.Scope {
	return tenancy.NewScope(rbac.MustPolicy(rbac.DefaultRoles()))
}

func okHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func TestRequirePermissionDeniesMissingPermission(t *testing.T) {
	s := &Server{scope: testScope()}
	handler := s.requirePermission(rbac.PermTenantsManage)(okHandler)
	req := httptest.NewRequest(http.MethodPost, "/api/clients", nil)
	req = req.WithContext(auth.WithActor(context.Background(), auth.Actor{ID: "u1", Role: rbac.RoleClient, TenantID: "t1"}))
	rr := httptest.NewRecorder()
	handler(rr, req)
	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected forbidden, got %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "rbac.tenants.manage") {
		t.Fatalf("expected permission code in body, got %s", rr.Body.String())
	}
}

func TestRequirePermissionAllowsOperator(t *testing.T) {
	s := &Server{scope: testScope()}
	handler := s.requirePermission(rbac.PermTenantsManage)(okHandler)
	req := httptest.NewRequest(http.MethodPost, "/api/clients", nil)
	req = req.WithContext(auth.WithActor(context.Background(), auth.Actor{ID: "u1", Role: rbac.RoleOperator}))
	rr := httptest.NewRecorder()
	handler(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected ok, got %d", rr.Code)
	}
}

func TestRequirePermissionWithoutActor(t *testing.T) {
	s := &Server{scope: testScope()}
	handler := s.requirePermission(rbac.PermIncidentsRead)(okHandler)
	rr := httptest.NewRecorder()
	handler(rr, httptest.NewRequest(http.MethodGet, "/api/incidents", nil))
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected unauthorized, got %d", rr.Code)
	}
}

func TestWithSessionRejectsMissingToken(t *testing.T) {
	s := &Server{}
	h := s.withSession(okHandler)
	rr := httptest.NewRecorder()
	h(rr, httptest.NewRequest(http.MethodGet, "/api/incidents", nil))
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected unauthorized, got %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "auth.unauthorized") {
		t.Fatalf("unexpected body %s", rr.Body.String())
	}
}

func TestWithSessionIgnoresQueryTokenOutsideUpgrade(t *testing.T) {
	s := &Server{}
	h := s.withSession(okHandler)
	rr := httptest.NewRecorder()
	h(rr, httptest.NewRequest(http.MethodGet, "/api/incidents?token=abc", nil))
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected unauthorized, got %d", rr.Code)
	}
}

func TestRecoverMiddlewareHidesPanic(t *testing.T) {
	s := &Server{}
	h := s.recoverMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("secret detail")
	}))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/incidents", nil))
	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rr.Code)
	}
	if strings.Contains(rr.Body.String(), "secret detail") {
		t.Fatalf("panic value leaked into response: %s", rr.Body.String())
	}
}

func TestLimiterBlocksAfterCapacityAndRefills(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	l := newLimiter(2, time.Minute)
	l.now = func() time.Time { return now }
	if !l.allow("k") || !l.allow("k") {
		t.Fatalf("expected first two attempts allowed")
	}
	if l.allow("k") {
		t.Fatalf("expected third attempt blocked")
	}
	if !l.allow("other") {
		t.Fatalf("expected separate key allowed")
	}
	now = now.Add(time.Minute)
	if !l.allow("k") {
		t.Fatalf("expected refill after window")
	}
}

func TestRateLimitMiddlewareThrottlesByEmail(t *testing.T) {
	s := &Server{cfg: &config.AppConfig{}, loginLimiter: newLimiter(1, time.Hour)}
	h := s.rateLimitMiddleware(okHandler)
	send := func(remote string) int {
		req := httptest.NewRequest(http.MethodPost, "/api/auth/login", strings.NewReader(`{"email":"Op@Example.com","password":"x"}`))
		req.RemoteAddr = remote
		rr := httptest.NewRecorder()
		h(rr, req)
		return rr.Code
	}
	if code := send("192.0.2.1:1000"); code != http.StatusOK {
		t.Fatalf("expected first login attempt through, got %d", code)
	}
	if code := send("192.0.2.2:1000"); code != http.StatusTooManyRequests {
		t.Fatalf("expected email bucket to throttle, got %d", code)
	}
}

func TestIsHTTPSRequestWithTLS(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/auth/me", nil)
	req.TLS = &tls.ConnectionState{}
	if !isHTTPSRequest(req, &config.AppConfig{}) {
		t.Fatalf("expected https request when TLS state is present")
	}
}

func TestIsHTTPSRequestWithTrustedProxyForwardedProto(t *testing.T) {
	cfg := &config.AppConfig{
		Security: config.SecurityConfig{
			TrustedProxies: []string{"10.0.0.0/24"},
		},
	}
	req := httptest.NewRequest(http.MethodGet, "/api/auth/me", nil)
	req.RemoteAddr = "10.0.0.10:12345"
	req.Header.Set("X-Forwarded-Proto", "https")
	if !isHTTPSRequest(req, cfg) {
		t.Fatalf("expected https request behind trusted proxy with x-forwarded-proto=https")
	}
}

func TestIsHTTPSRequestIgnoresUntrustedProxyHeader(t *testing.T) {
	cfg := &config.AppConfig{
		Security: config.SecurityConfig{
			TrustedProxies: []string{"10.0.0.10"},
		},
	}
	req := httptest.NewRequest(http.MethodGet, "/api/auth/me", nil)
	req.RemoteAddr = "192.168.1.20:12345"
	req.Header.Set("X-Forwarded-Proto", "https")
	if isHTTPSRequest(req, cfg) {
		t.Fatalf("expected non-https for untrusted proxy source")
	}
}

func TestClientIPUsesNearestUntrustedXFFHop(t *testing.T) {
	s := &Server{
		cfg: &config.AppConfig{
			Security: config.SecurityConfig{
				TrustedProxies: []string{"10.0.0.10", "10.0.0.11"},
			},
		},
	}
	req := httptest.NewRequest(http.MethodPost, "/api/auth/login", nil)
	req.RemoteAddr = "10.0.0.10:54321"
	req.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.11")
	if got := s.clientIP(req); got != "203.0.113.9" {
		t.Fatalf("expected client ip 203.0.113.9, got %s", got)
	}
}

func TestClientIPIgnoresXFFForUntrustedRemote(t *testing.T) {
	s := &Server{
		cfg: &config.AppConfig{
			Security: config.SecurityConfig{
				TrustedProxies: []string{"10.0.0.10"},
			},
		},
	}
	req := httptest.NewRequest(http.MethodPost, "/api/auth/login", nil)
	req.RemoteAddr = "192.168.1.20:54321"
	req.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.10")
	if got := s.clientIP(req); got != "192.168.1.20" {
		t.Fatalf("expected remote addr ip for untrusted source, got %s", got)
	}
}

func TestClientIPInvalidXFFFallsBackToRealIP(t *testing.T) {
	s := &Server{
		cfg: &config.AppConfig{
			Security: config.SecurityConfig{
				TrustedProxies: []string{"10.0.0.10"},
			},
		},
	}
	req := httptest.NewRequest(http.MethodPost, "/api/auth/login", nil)
	req.RemoteAddr = "10.0.0.10:54321"
	req.Header.Set("X-Forwarded-For", "garbage,not-an-ip")
	req.Header.Set("X-Real-IP", "198.51.100.8")
	if got := s.clientIP(req); got != "198.51.100.8" {
		t.Fatalf("expected fallback to valid X-Real-IP, got %s", got)
	}
}

func TestSecurityHeadersSkipHSTSForPlainHTTP(t *testing.T) {
	s := &Server{cfg: &config.AppConfig{}}
	h := s.securityHeadersMiddleware(http.HandlerFunc(okHandler))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rr.Header().Get("Strict-Transport-Security") != "" {
		t.Fatalf("expected no HSTS header for plain http")
	}
	if rr.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Fatalf("expected nosniff header")
	}
}
