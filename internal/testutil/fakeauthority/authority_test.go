package fakeauthority

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestRateLimiter(t *testing.T) {
	rl := NewRateLimiter(2, 2) // 2 req/sec with burst of 2

	// First two requests should succeed (burst)
	if !rl.Allow("127.0.0.1") {
		t.Error("first request should be allowed")
	}
	if !rl.Allow("127.0.0.1") {
		t.Error("second request should be allowed (burst)")
	}

	// Third request should be rate limited
	if rl.Allow("127.0.0.1") {
		t.Error("third request should be rate limited")
	}

	// Different IP should still be allowed
	if !rl.Allow("192.168.1.1") {
		t.Error("different IP should be allowed")
	}
}

func TestRateLimitMiddleware(t *testing.T) {
	a := New(WithRateLimit(1, 1))
	a.Seed()

	do := func() *httptest.ResponseRecorder {
		req := httptest.NewRequest("POST", "/login", strings.NewReader(`{"email":"admin@example.com","password":"admin123"}`))
		req.RemoteAddr = "127.0.0.1:1234"
		w := httptest.NewRecorder()
		a.Handler().ServeHTTP(w, req)
		return w
	}

	if w := do(); w.Code != http.StatusOK {
		t.Fatalf("first request status = %d, want %d", w.Code, http.StatusOK)
	}
	w := do()
	if w.Code != http.StatusTooManyRequests {
		t.Errorf("second request status = %d, want %d", w.Code, http.StatusTooManyRequests)
	}
	if w.Header().Get("Retry-After") == "" {
		t.Error("missing Retry-After header on rate limited response")
	}
}

func TestAuthMiddleware(t *testing.T) {
	a := New()
	a.Seed()
	token := a.IssueToken("user@example.com")
	if token == "" {
		t.Fatal("IssueToken returned empty token for a seeded user")
	}

	tests := []struct {
		name   string
		header string
		want   int
	}{
		{"missing header", "", http.StatusUnauthorized},
		{"bearer scheme", "Bearer " + token, http.StatusUnauthorized},
		{"unknown token", "Token nope", http.StatusUnauthorized},
		{"valid token", "Token " + token, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/records", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			a.Handler().ServeHTTP(w, req)
			if w.Code != tt.want {
				t.Errorf("status = %d, want %d", w.Code, tt.want)
			}
		})
	}

	a.RevokeAll()
	req := httptest.NewRequest("GET", "/records", nil)
	req.Header.Set("Authorization", "Token "+token)
	w := httptest.NewRecorder()
	a.Handler().ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("revoked token status = %d, want 401", w.Code)
	}
}

func TestListRecordsFilters(t *testing.T) {
	a := New()
	a.Seed()
	token := a.IssueToken("admin@example.com")

	tests := []struct {
		query string
		want  []int64
	}{
		{"", []int64{1, 2, 3}},
		{"status=done", []int64{3}},
		{"titleSubstring=BOARD", []int64{1, 3}},
		{"date=2024-02-05", []int64{2}},
		{"status=pending&titleSubstring=board", []int64{1}},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/records?"+tt.query, nil)
			req.Header.Set("Authorization", "Token "+token)
			w := httptest.NewRecorder()
			a.Handler().ServeHTTP(w, req)
			if w.Code != http.StatusOK {
				t.Fatalf("status = %d", w.Code)
			}
			var got []Summary
			if err := json.NewDecoder(w.Body).Decode(&got); err != nil {
				t.Fatal(err)
			}
			var ids []int64
			for _, s := range got {
				ids = append(ids, s.ID)
			}
			if len(ids) != len(tt.want) {
				t.Fatalf("ids = %v, want %v", ids, tt.want)
			}
			for i := range ids {
				if ids[i] != tt.want[i] {
					t.Errorf("ids = %v, want %v", ids, tt.want)
					break
				}
			}
		})
	}
}

func TestOverride(t *testing.T) {
	a := New()
	a.Seed()
	token := a.IssueToken("admin@example.com")
	a.Override("/media/", http.StatusInternalServerError, `{"error":"boom"}`)

	req := httptest.NewRequest("GET", "/media/actas/2024/board-march.pdf", nil)
	req.Header.Set("Authorization", "Token "+token)
	w := httptest.NewRecorder()
	a.Handler().ServeHTTP(w, req)
	if w.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", w.Code)
	}

	a.Override("/media/", 0, "")
	w = httptest.NewRecorder()
	a.Handler().ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("status after clearing override = %d, want 200", w.Code)
	}
	if got := w.Header().Get("Content-Type"); got != "application/pdf" {
		t.Errorf("Content-Type = %q", got)
	}
	if a.Hits("/media/") != 2 {
		t.Errorf("Hits(/media/) = %d, want 2", a.Hits("/media/"))
	}
}
