package routes

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"gorm.io/gorm"

	"printportal-backend/auth"
	"printportal-backend/config"
	"printportal-backend/controllers"
	"printportal-backend/database"
	"printportal-backend/logger"
	"printportal-backend/metrics"
	"printportal-backend/middlewares"
	"printportal-backend/models"
	"printportal-backend/notify"
	"printportal-backend/ratelimit"
	"printportal-backend/services"
	"printportal-backend/uploads"
)

const (
	testPassword = "s3cret-admin"
	sameOrigin   = "http://example.com"
)

type captureSender struct {
	mu   sync.Mutex
	sent []notify.Message
}

func (s *captureSender) Send(ctx context.Context, msg notify.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, msg)
	return nil
}

func (s *captureSender) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sent)
}

type testServer struct {
	app    *fiber.App
	db     *gorm.DB
	root   string
	tokens *auth.TokenService
	router *notify.Router
	sender *captureSender
}

func newTestServer(t *testing.T, adminPassword string) *testServer {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := database.Open(config.DatabaseConfig{Driver: "sqlite", DSN: dsn})
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	if err := database.AutoMigrate(db); err != nil {
		t.Fatalf("AutoMigrate() failed: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})

	log := logger.Discard()
	root := t.TempDir()
	storage, err := uploads.NewLocalStorage(root, log)
	if err != nil {
		t.Fatalf("NewLocalStorage() failed: %v", err)
	}

	sender := &captureSender{}
	router, err := notify.NewRouter(sender, notify.Recipients{Builder: "builder@shop.com", AeroLead: "aero@shop.com", MotoLead: "moto@shop.com"}, "http://portal.test", log)
	if err != nil {
		t.Fatalf("NewRouter() failed: %v", err)
	}

	tokens := auth.NewTokenService("test-secret", true)
	passwords, err := auth.NewPasswordChecker(adminPassword)
	if err != nil {
		t.Fatalf("NewPasswordChecker() failed: %v", err)
	}
	gate := uploads.NewGate(config.DefaultUploadExtensions, 5*1024*1024)
	requests := services.NewRequestService(services.Options{
		Store:    database.NewRequestRepository(db),
		Storage:  storage,
		Gate:     gate,
		Notifier: router,
		Logger:   log,
	})
	authMW := middlewares.NewAuth(tokens, "", false, log)

	registry := prometheus.NewRegistry()
	metrics.Register(registry)

	app := fiber.New(fiber.Config{ErrorHandler: middlewares.NewErrorHandler(log, false)})
	app.Use(middlewares.RequestLogger(log))
	Register(app, Deps{
		Handler: &controllers.Handler{
			DB:        db,
			Requests:  requests,
			Tokens:    tokens,
			Passwords: passwords,
			Auth:      authMW,
			Storage:   storage,
			Gate:      gate,
			Logger:    log,
		},
		Auth:    authMW,
		Limiter: ratelimit.New(log),
		DB:      db,
		Budgets: config.RateLimitConfig{
			Login:   config.Budget{Max: 5, Window: 15 * time.Minute},
			Submit:  config.Budget{Max: 10, Window: 15 * time.Minute},
			Presign: config.Budget{Max: 20, Window: 15 * time.Minute},
		},
		Gatherer: registry,
	})

	return &testServer{app: app, db: db, root: root, tokens: tokens, router: router, sender: sender}
}

func (s *testServer) do(t *testing.T, req *http.Request) (*http.Response, []byte) {
	t.Helper()
	resp, err := s.app.Test(req, -1)
	if err != nil {
		t.Fatalf("app.Test() failed: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	return resp, body
}

func (s *testServer) bearer(t *testing.T) string {
	t.Helper()
	token, err := s.tokens.Issue()
	if err != nil {
		t.Fatalf("Issue() failed: %v", err)
	}
	return "Bearer " + token
}

func jsonRequest(method, target string, body any) *http.Request {
	var r io.Reader
	if body != nil {
		raw, _ := json.Marshal(body)
		r = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, target, r)
	req.Header.Set("Content-Type", "application/json")
	return req
}

func multipartRequest(t *testing.T, target string, fields map[string]string, fileName, content string) *http.Request {
	t.Helper()
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return orderedMultipart(t, target, keys, fields, fileName, content)
}

// orderedMultipart writes fields in the given key order.
func orderedMultipart(t *testing.T, target string, keys []string, fields map[string]string, fileName, content string) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for _, k := range keys {
		if err := w.WriteField(k, fields[k]); err != nil {
			t.Fatalf("WriteField() failed: %v", err)
		}
	}
	if fileName != "" {
		fw, err := w.CreateFormFile("file", fileName)
		if err != nil {
			t.Fatalf("CreateFormFile() failed: %v", err)
		}
		fw.Write([]byte(content))
	}
	w.Close()
	req := httptest.NewRequest(http.MethodPost, target, &buf)
	req.Header.Set("Content-Type", w.FormDataContentType())
	return req
}

func submission() map[string]string {
	return map[string]string{
		"partNumber":     "CA-3D-001",
		"quantity":       "3",
		"requesterName":  "Jo",
		"requesterEmail": "jo@x.com",
		"requestType":    "rd_parts",
	}
}

func (s *testServer) create(t *testing.T, fields map[string]string, fileName, content string) models.PrintRequest {
	t.Helper()
	resp, body := s.do(t, multipartRequest(t, "/requests", fields, fileName, content))
	if resp.StatusCode != fiber.StatusCreated {
		t.Fatalf("Expected 201, got %d: %s", resp.StatusCode, body)
	}
	var rec models.PrintRequest
	if err := json.Unmarshal(body, &rec); err != nil {
		t.Fatalf("Unmarshal() failed: %v", err)
	}
	return rec
}

func (s *testServer) waitNotifications(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.router.Wait(ctx); err != nil {
		t.Fatalf("Wait() failed: %v", err)
	}
}

func TestLogin(t *testing.T) {
	s := newTestServer(t, testPassword)

	resp, body := s.do(t, jsonRequest(http.MethodPost, "/auth/login", map[string]string{"password": "wrong"}))
	if resp.StatusCode != fiber.StatusUnauthorized {
		t.Fatalf("Expected 401, got %d: %s", resp.StatusCode, body)
	}
	if !strings.Contains(string(body), "Invalid password") {
		t.Errorf("Unexpected body %s", body)
	}

	resp, _ = s.do(t, jsonRequest(http.MethodPost, "/auth/login", map[string]string{"password": testPassword}))
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("Expected 200, got %d", resp.StatusCode)
	}
	cookie := resp.Header.Get("Set-Cookie")
	for _, attr := range []string{middlewares.AuthCookie + "=", "HttpOnly", "SameSite=Strict", "max-age=86400", "path=/"} {
		if !strings.Contains(strings.ToLower(cookie), strings.ToLower(attr)) {
			t.Errorf("Cookie %q missing %q", cookie, attr)
		}
	}
}

func TestLogin_RateLimited(t *testing.T) {
	s := newTestServer(t, testPassword)

	for i := 0; i < 5; i++ {
		resp, _ := s.do(t, jsonRequest(http.MethodPost, "/auth/login", map[string]string{"password": "wrong"}))
		if resp.StatusCode != fiber.StatusUnauthorized {
			t.Fatalf("Attempt %d: expected 401, got %d", i+1, resp.StatusCode)
		}
	}
	// /api mirrors share the same budget.
	resp, body := s.do(t, jsonRequest(http.MethodPost, "/api/auth/login", map[string]string{"password": testPassword}))
	if resp.StatusCode != fiber.StatusTooManyRequests {
		t.Fatalf("Expected 429, got %d", resp.StatusCode)
	}
	var out map[string]any
	json.Unmarshal(body, &out)
	if _, ok := out["resetTime"]; !ok {
		t.Errorf("429 body must carry resetTime: %s", body)
	}
	if resp.Header.Get("X-RateLimit-Remaining") != "0" || resp.Header.Get("X-RateLimit-Limit") != "5" {
		t.Errorf("Unexpected rate-limit headers %v", resp.Header)
	}
}

func TestLogin_NoPasswordConfigured(t *testing.T) {
	s := newTestServer(t, "")

	resp, _ := s.do(t, jsonRequest(http.MethodPost, "/auth/login", map[string]string{"password": "anything"}))
	if resp.StatusCode != fiber.StatusInternalServerError {
		t.Errorf("Expected 500, got %d", resp.StatusCode)
	}
}

func TestVerifyAndLogout(t *testing.T) {
	s := newTestServer(t, testPassword)

	resp, body := s.do(t, httptest.NewRequest(http.MethodGet, "/auth/verify", nil))
	if resp.StatusCode != fiber.StatusUnauthorized || !strings.Contains(string(body), `"authenticated":false`) {
		t.Errorf("Expected 401 unauthenticated, got %d %s", resp.StatusCode, body)
	}

	token, _ := s.tokens.Issue()
	req := httptest.NewRequest(http.MethodGet, "/auth/verify", nil)
	req.AddCookie(&http.Cookie{Name: middlewares.AuthCookie, Value: token})
	resp, body = s.do(t, req)
	if resp.StatusCode != fiber.StatusOK || !strings.Contains(string(body), `"authenticated":true`) {
		t.Errorf("Expected authenticated, got %d %s", resp.StatusCode, body)
	}

	req = httptest.NewRequest(http.MethodPost, "/auth/logout", nil)
	req.Header.Set("Origin", "http://evil.example")
	if resp, _ = s.do(t, req); resp.StatusCode != fiber.StatusForbidden {
		t.Errorf("Cross-origin logout must be 403, got %d", resp.StatusCode)
	}

	req = httptest.NewRequest(http.MethodPost, "/auth/logout", nil)
	req.Header.Set("Origin", sameOrigin)
	resp, _ = s.do(t, req)
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("Expected 200, got %d", resp.StatusCode)
	}
	if c := resp.Header.Get("Set-Cookie"); !strings.HasPrefix(c, middlewares.AuthCookie+"=;") {
		t.Errorf("Logout must clear the cookie, got %q", c)
	}
}

func TestCreateRequest_Scenario(t *testing.T) {
	s := newTestServer(t, testPassword)

	rec := s.create(t, submission(), "", "")
	if rec.Status != models.StatusPending {
		t.Errorf("Expected pending, got %s", rec.Status)
	}
	s.waitNotifications(t)
	if s.sender.count() != 2 {
		t.Errorf("Expected confirmation + builder emails, got %d", s.sender.count())
	}

	fields := submission()
	fields["requestType"] = "work_order"
	fields["workOrderType"] = "aero"
	s.create(t, fields, "", "")
	s.waitNotifications(t)
	if s.sender.count() != 5 {
		t.Errorf("Work order must add the aero lead (5 total), got %d", s.sender.count())
	}
}

func TestCreateRequest_Validation(t *testing.T) {
	s := newTestServer(t, testPassword)

	fields := submission()
	fields["requestType"] = "work_order"
	fields["quantity"] = "many"
	resp, body := s.do(t, multipartRequest(t, "/requests", fields, "", ""))
	if resp.StatusCode != fiber.StatusBadRequest {
		t.Fatalf("Expected 400, got %d", resp.StatusCode)
	}
	var out struct {
		Error  string            `json:"error"`
		Fields map[string]string `json:"fields"`
	}
	json.Unmarshal(body, &out)
	if _, ok := out.Fields["workOrderType"]; !ok {
		t.Errorf("Expected workOrderType failure, got %s", body)
	}
	if _, ok := out.Fields["quantity"]; !ok {
		t.Errorf("Expected quantity failure, got %s", body)
	}

	resp, body = s.do(t, multipartRequest(t, "/requests", submission(), "virus.exe", "MZ"))
	if resp.StatusCode != fiber.StatusBadRequest || !strings.Contains(string(body), "Unsupported file type") {
		t.Errorf("Expected unsupported file type, got %d %s", resp.StatusCode, body)
	}
}

func TestCreateRequest_PartialAttachment(t *testing.T) {
	s := newTestServer(t, testPassword)

	cases := []struct {
		name    string
		extra   map[string]string
		missing []string
	}{
		{"name and size only", map[string]string{"fileName": "part.stl", "fileSize": "1024"}, []string{"fileUrl"}},
		{"url only", map[string]string{"fileUrl": "uploads/part.stl"}, []string{"fileName", "fileSize"}},
		{"unparsable size", map[string]string{"fileUrl": "uploads/part.stl", "fileName": "part.stl", "fileSize": "big"}, []string{"fileSize"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			fields := submission()
			for k, v := range tc.extra {
				fields[k] = v
			}
			resp, body := s.do(t, multipartRequest(t, "/requests", fields, "", ""))
			if resp.StatusCode != fiber.StatusBadRequest {
				t.Fatalf("Expected 400, got %d %s", resp.StatusCode, body)
			}
			var out struct {
				Fields map[string]string `json:"fields"`
			}
			json.Unmarshal(body, &out)
			for _, f := range tc.missing {
				if _, ok := out.Fields[f]; !ok {
					t.Errorf("Expected %s failure, got %s", f, body)
				}
			}
		})
	}

	var n int64
	s.db.Model(&models.PrintRequest{}).Count(&n)
	if n != 0 {
		t.Errorf("Partial attachments must not persist, got %d rows", n)
	}
}

func TestListRedaction(t *testing.T) {
	s := newTestServer(t, testPassword)
	s.create(t, submission(), "part.stl", "solid")

	resp, body := s.do(t, httptest.NewRequest(http.MethodGet, "/requests", nil))
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("Expected 200, got %d", resp.StatusCode)
	}
	for _, key := range []string{"requesterEmail", "notes", "filePath"} {
		if strings.Contains(string(body), `"`+key+`"`) {
			t.Errorf("Anonymous list leaked %q: %s", key, body)
		}
	}

	req := httptest.NewRequest(http.MethodGet, "/api/requests?status=pending&sortColumn=partNumber&sortDirection=asc", nil)
	req.Header.Set("Authorization", s.bearer(t))
	resp, body = s.do(t, req)
	if resp.StatusCode != fiber.StatusOK || !strings.Contains(string(body), `"requesterEmail":"jo@x.com"`) {
		t.Errorf("Authenticated list must be complete, got %d %s", resp.StatusCode, body)
	}

	resp, _ = s.do(t, httptest.NewRequest(http.MethodGet, "/requests?sortColumn=password", nil))
	if resp.StatusCode != fiber.StatusBadRequest {
		t.Errorf("Unknown sort column must be 400, got %d", resp.StatusCode)
	}
}

func TestUpdateRequest(t *testing.T) {
	s := newTestServer(t, testPassword)
	rec := s.create(t, submission(), "", "")
	s.waitNotifications(t)
	before := s.sender.count()

	resp, _ := s.do(t, jsonRequest(http.MethodPut, "/requests/"+rec.Id, map[string]string{"status": "completed"}))
	if resp.StatusCode != fiber.StatusUnauthorized {
		t.Errorf("Expected 401 without session, got %d", resp.StatusCode)
	}

	req := jsonRequest(http.MethodPut, "/requests/"+rec.Id, map[string]string{"status": "completed"})
	req.Header.Set("Authorization", s.bearer(t))
	req.Header.Set("Origin", "http://evil.example")
	if resp, _ = s.do(t, req); resp.StatusCode != fiber.StatusForbidden {
		t.Errorf("Expected 403 for cross-origin, got %d", resp.StatusCode)
	}

	req = jsonRequest(http.MethodPut, "/requests/"+rec.Id, map[string]string{"status": "completed"})
	req.Header.Set("Authorization", s.bearer(t))
	req.Header.Set("Origin", sameOrigin)
	resp, body := s.do(t, req)
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("Expected 200, got %d %s", resp.StatusCode, body)
	}
	var upd models.PrintRequest
	json.Unmarshal(body, &upd)
	if upd.CompletedAt == nil {
		t.Error("completedAt must be set")
	}
	s.waitNotifications(t)
	if s.sender.count()-before != 2 {
		t.Errorf("Status change must send exactly 2 emails, got %d", s.sender.count()-before)
	}

	req = jsonRequest(http.MethodPut, "/requests/missing", map[string]string{"notes": "x"})
	req.Header.Set("Authorization", s.bearer(t))
	if resp, _ = s.do(t, req); resp.StatusCode != fiber.StatusNotFound {
		t.Errorf("Expected 404, got %d", resp.StatusCode)
	}
}

func TestDeleteRequest(t *testing.T) {
	s := newTestServer(t, testPassword)
	rec := s.create(t, submission(), "part.step", "ISO-10303")
	os.Remove(filepath.Join(s.root, filepath.FromSlash(*rec.FilePath)))

	req := httptest.NewRequest(http.MethodDelete, "/requests/"+rec.Id, nil)
	req.Header.Set("Authorization", s.bearer(t))
	resp, body := s.do(t, req)
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("Delete must succeed with the file gone, got %d %s", resp.StatusCode, body)
	}

	if resp, _ = s.do(t, httptest.NewRequest(http.MethodGet, "/requests/"+rec.Id, nil)); resp.StatusCode != fiber.StatusNotFound {
		t.Errorf("Expected 404 after delete, got %d", resp.StatusCode)
	}
}

func TestDownloadFile(t *testing.T) {
	s := newTestServer(t, testPassword)
	rec := s.create(t, submission(), "bracket.stl", "solid bracket")

	if resp, _ := s.do(t, httptest.NewRequest(http.MethodGet, "/files/"+rec.Id, nil)); resp.StatusCode != fiber.StatusUnauthorized {
		t.Errorf("Expected 401 without session, got %d", resp.StatusCode)
	}

	req := httptest.NewRequest(http.MethodGet, "/files/"+rec.Id, nil)
	req.Header.Set("Authorization", s.bearer(t))
	resp, body := s.do(t, req)
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("Expected 200, got %d %s", resp.StatusCode, body)
	}
	if string(body) != "solid bracket" {
		t.Errorf("Unexpected content %q", body)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "application/octet-stream" {
		t.Errorf("Unexpected content type %q", ct)
	}
	if cd := resp.Header.Get("Content-Disposition"); cd != `attachment; filename="bracket.stl"` {
		t.Errorf("Unexpected disposition %q", cd)
	}
}

func TestDownloadFile_Traversal(t *testing.T) {
	s := newTestServer(t, testPassword)

	name, size := "passwd.stl", int64(10)
	for _, locator := range []string{"../../etc/passwd", "uploads/../../secret.stl", "/etc/passwd"} {
		path := locator
		rec := &models.PrintRequest{
			PartNumber: "X", Quantity: 1, RequestType: models.RequestTypeRDParts,
			RequesterName: "Mallory", RequesterEmail: "m@x.com", Status: models.StatusPending,
			FileName: &name, FilePath: &path, FileSize: &size,
		}
		if err := s.db.Create(rec).Error; err != nil {
			t.Fatalf("Create() failed: %v", err)
		}

		req := httptest.NewRequest(http.MethodGet, "/files/"+rec.Id, nil)
		req.Header.Set("Authorization", s.bearer(t))
		if resp, _ := s.do(t, req); resp.StatusCode != fiber.StatusForbidden {
			t.Errorf("%s: expected 403, got %d", locator, resp.StatusCode)
		}
	}

	req := httptest.NewRequest(http.MethodGet, "/files/missing", nil)
	req.Header.Set("Authorization", s.bearer(t))
	if resp, _ := s.do(t, req); resp.StatusCode != fiber.StatusNotFound {
		t.Errorf("Expected 404, got %d", resp.StatusCode)
	}
}

func TestPresign(t *testing.T) {
	s := newTestServer(t, testPassword)

	req := jsonRequest(http.MethodPost, "/uploads/presign", map[string]any{"fileName": "a.exe", "fileSize": 10})
	req.Header.Set("Origin", sameOrigin)
	if resp, _ := s.do(t, req); resp.StatusCode != fiber.StatusBadRequest {
		t.Errorf("Expected 400 for unsupported type, got %d", resp.StatusCode)
	}

	req = jsonRequest(http.MethodPost, "/uploads/presign", map[string]any{"fileName": "a.stl", "fileSize": 6 * 1024 * 1024})
	req.Header.Set("Origin", sameOrigin)
	resp, body := s.do(t, req)
	if resp.StatusCode != fiber.StatusBadRequest || !strings.Contains(string(body), "Max 5 MB") {
		t.Errorf("Expected too-large with ceiling, got %d %s", resp.StatusCode, body)
	}

	req = jsonRequest(http.MethodPost, "/uploads/presign", map[string]any{"fileName": "a.stl", "fileSize": 10})
	req.Header.Set("Origin", sameOrigin)
	if resp, _ = s.do(t, req); resp.StatusCode != fiber.StatusInternalServerError {
		t.Errorf("Local storage cannot presign, expected 500, got %d", resp.StatusCode)
	}

	req = jsonRequest(http.MethodPost, "/uploads/presign", map[string]any{"fileName": "a.stl", "fileSize": 10})
	req.Header.Set("Origin", "http://evil.example")
	if resp, _ = s.do(t, req); resp.StatusCode != fiber.StatusForbidden {
		t.Errorf("Expected 403 for cross-origin, got %d", resp.StatusCode)
	}
}

func TestIdempotentSubmission(t *testing.T) {
	s := newTestServer(t, testPassword)

	first := multipartRequest(t, "/requests", submission(), "", "")
	first.Header.Set("Idempotency-Key", "submit-1")
	resp, body1 := s.do(t, first)
	if resp.StatusCode != fiber.StatusCreated {
		t.Fatalf("Expected 201, got %d %s", resp.StatusCode, body1)
	}

	again := multipartRequest(t, "/requests", submission(), "", "")
	again.Header.Set("Idempotency-Key", "submit-1")
	resp, body2 := s.do(t, again)
	if resp.StatusCode != fiber.StatusCreated || resp.Header.Get("Idempotent-Replayed") != "true" {
		t.Fatalf("Expected replayed 201, got %d", resp.StatusCode)
	}
	if !bytes.Equal(body1, body2) {
		t.Error("Replay must return the original response")
	}

	other := submission()
	other["partNumber"] = "DIFFERENT"
	conflict := multipartRequest(t, "/requests", other, "", "")
	conflict.Header.Set("Idempotency-Key", "submit-1")
	if resp, _ = s.do(t, conflict); resp.StatusCode != fiber.StatusConflict {
		t.Errorf("Expected 409, got %d", resp.StatusCode)
	}

	var n int64
	s.db.Model(&models.PrintRequest{}).Count(&n)
	if n != 1 {
		t.Errorf("Expected exactly one stored request, got %d", n)
	}
}

func TestIdempotentSubmission_RetriesAreStable(t *testing.T) {
	s := newTestServer(t, testPassword)

	fields := submission()
	fields["description"] = "bracket for rig 4"
	keys := []string{"partNumber", "description", "quantity", "requestType", "requesterName", "requesterEmail"}
	reversed := make([]string, len(keys))
	for i, k := range keys {
		reversed[len(keys)-1-i] = k
	}

	first := orderedMultipart(t, "/requests", keys, fields, "bracket.stl", "solid bracket")
	first.Header.Set("Idempotency-Key", "retry-1")
	resp, body1 := s.do(t, first)
	if resp.StatusCode != fiber.StatusCreated {
		t.Fatalf("Expected 201, got %d %s", resp.StatusCode, body1)
	}

	// Field order differs between retries; every retry must replay.
	for i := 0; i < 6; i++ {
		order := keys
		if i%2 == 0 {
			order = reversed
		}
		retry := orderedMultipart(t, "/requests", order, fields, "bracket.stl", "solid bracket")
		retry.Header.Set("Idempotency-Key", "retry-1")
		resp, body := s.do(t, retry)
		if resp.StatusCode != fiber.StatusCreated || resp.Header.Get("Idempotent-Replayed") != "true" {
			t.Fatalf("Retry %d: expected replayed 201, got %d %s", i+1, resp.StatusCode, body)
		}
		if !bytes.Equal(body1, body) {
			t.Fatalf("Retry %d: replay differs from the first response", i+1)
		}
	}

	changed := orderedMultipart(t, "/requests", keys, fields, "bracket.stl", "solid bracket v2")
	changed.Header.Set("Idempotency-Key", "retry-1")
	if resp, _ := s.do(t, changed); resp.StatusCode != fiber.StatusConflict {
		t.Errorf("Different file content must be 409, got %d", resp.StatusCode)
	}

	var n int64
	s.db.Model(&models.PrintRequest{}).Count(&n)
	if n != 1 {
		t.Errorf("Expected exactly one stored request, got %d", n)
	}
}

func TestBatchEndpoints(t *testing.T) {
	s := newTestServer(t, testPassword)
	a := s.create(t, submission(), "", "")
	b := s.create(t, submission(), "", "")

	req := jsonRequest(http.MethodPost, "/requests/batch/status", map[string]any{"ids": []string{a.Id, b.Id, "missing"}, "status": "in_progress"})
	req.Header.Set("Authorization", s.bearer(t))
	resp, body := s.do(t, req)
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("Expected 200, got %d %s", resp.StatusCode, body)
	}
	var res services.BatchResult
	json.Unmarshal(body, &res)
	if res.Succeeded != 2 || res.Failed != 1 {
		t.Errorf("Expected 2/1, got %d/%d", res.Succeeded, res.Failed)
	}

	req = jsonRequest(http.MethodPost, "/requests/batch/delete", map[string]any{"ids": []string{a.Id, b.Id}})
	if resp, _ = s.do(t, req); resp.StatusCode != fiber.StatusUnauthorized {
		t.Errorf("Expected 401 without session, got %d", resp.StatusCode)
	}
}

func TestHealthAndMetrics(t *testing.T) {
	s := newTestServer(t, testPassword)

	resp, body := s.do(t, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if resp.StatusCode != fiber.StatusOK || !strings.Contains(string(body), `"ok"`) {
		t.Errorf("Unexpected health response %d %s", resp.StatusCode, body)
	}
	if resp, _ = s.do(t, httptest.NewRequest(http.MethodGet, "/metrics", nil)); resp.StatusCode != fiber.StatusOK {
		t.Errorf("Expected metrics 200, got %d", resp.StatusCode)
	}
}
