package audit

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
)

type fakeLogService struct {
	mu      sync.Mutex
	logins  int
	records []Record
	auth    []string
}

func (f *fakeLogService) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/auth/login", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.logins++
		f.mu.Unlock()
		exp := time.Now().Add(time.Hour).UTC().Format(time.RFC3339)
		_ = json.NewEncoder(w).Encode(map[string]string{"token": "tok-1", "expires_at": exp})
	})
	mux.HandleFunc("/api/v1/logs", func(w http.ResponseWriter, r *http.Request) {
		var rec Record
		_ = json.NewDecoder(r.Body).Decode(&rec)
		f.mu.Lock()
		f.records = append(f.records, rec)
		f.auth = append(f.auth, r.Header.Get("Authorization"))
		f.mu.Unlock()
		w.WriteHeader(http.StatusCreated)
	})
	return mux
}

func TestRecordLogsInOnce(t *testing.T) {
	svc := &fakeLogService{}
	srv := httptest.NewServer(svc.handler())
	defer srv.Close()

	c := &Client{BaseURL: srv.URL + "/", APIKey: "k"}
	c.Record(context.Background(), "execution", "info", map[string]any{"strategy": "momentum"})
	c.Record(context.Background(), "execution", "warn", nil)

	svc.mu.Lock()
	defer svc.mu.Unlock()
	if svc.logins != 1 {
		t.Fatalf("logins=%d want 1", svc.logins)
	}
	if len(svc.records) != 2 || svc.records[0].Agent != "tradehook" || svc.auth[0] != "Bearer tok-1" {
		t.Fatalf("records=%+v auth=%v", svc.records, svc.auth)
	}
}

func TestRecordNilClient(t *testing.T) {
	var c *Client
	c.Record(context.Background(), "noop", "info", nil)
	LogBestEffort(context.Background(), "noop", "info", nil)
}

func TestRequireBearerMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(RequireBearerMiddleware("secret"))
	r.GET("/api/users", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.POST("/webhook/alice/momentum", func(c *gin.Context) { c.Status(http.StatusOK) })

	cases := []struct {
		method, path, auth string
		want               int
	}{
		{http.MethodGet, "/api/users", "", http.StatusUnauthorized},
		{http.MethodGet, "/api/users", "Bearer nope", http.StatusUnauthorized},
		{http.MethodGet, "/api/users", "Bearer secret", http.StatusOK},
		{http.MethodPost, "/webhook/alice/momentum", "", http.StatusOK},
	}
	for _, tc := range cases {
		req := httptest.NewRequest(tc.method, tc.path, nil)
		if tc.auth != "" {
			req.Header.Set("Authorization", tc.auth)
		}
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		if w.Code != tc.want {
			t.Fatalf("%s %s auth=%q: code=%d want %d", tc.method, tc.path, tc.auth, w.Code, tc.want)
		}
	}
}

func TestWriteAuditMiddlewareSkipsReads(t *testing.T) {
	svc := &fakeLogService{}
	srv := httptest.NewServer(svc.handler())
	defer srv.Close()

	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(WriteAuditMiddleware(&Client{BaseURL: srv.URL, APIKey: "k"}))
	r.GET("/api/users", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.DELETE("/api/users/:owner", func(c *gin.Context) { c.Status(http.StatusNotFound) })

	for _, req := range []*http.Request{
		httptest.NewRequest(http.MethodGet, "/api/users", nil),
		httptest.NewRequest(http.MethodDelete, "/api/users/alice", nil),
	} {
		r.ServeHTTP(httptest.NewRecorder(), req)
	}

	svc.mu.Lock()
	defer svc.mu.Unlock()
	if len(svc.records) != 1 {
		t.Fatalf("records=%d want 1", len(svc.records))
	}
	if svc.records[0].Level != "warn" || svc.records[0].Details["route"] != "/api/users/:owner" {
		t.Fatalf("record=%+v", svc.records[0])
	}
}
