package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"agrinix/internal/adapter/sqlite"
	"agrinix/internal/domain"
	"agrinix/internal/http/handlers"
	"agrinix/internal/infra"
	"agrinix/internal/middleware"
	"agrinix/internal/providers/enrichment"
	"agrinix/internal/queue"
)

const testSecret = "router-secret"

var pngBytes = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01")

type lookupFunc func(string) (string, error)

func (f lookupFunc) CountryCode(ip string) (string, error) { return f(ip) }

type staticDiseases struct{}

func (staticDiseases) Enrich(ctx context.Context, class string) domain.DiseaseInfo {
	return domain.DiseaseInfo{Description: "About " + class, Causes: []string{"Fungus"}, Source: "static"}
}

type scriptedAdvisor struct {
	question, class string
	answer          string
	err             error
}

func (a *scriptedAdvisor) Ask(ctx context.Context, question, class string) (string, error) {
	a.question, a.class = question, class
	return a.answer, a.err
}

type testEnv struct {
	db      *sqlite.DB
	handler http.Handler
	advisor *scriptedAdvisor
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	ctx := context.Background()
	db, err := sqlite.Open(filepath.Join(t.TempDir(), "api.db"))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	for _, id := range []string{"farmer-1", "farmer-2"} {
		if err := db.Records().UpsertOwner(ctx, domain.Owner{ID: id, Email: id + "@example.com"}); err != nil {
			t.Fatalf("upsert owner: %v", err)
		}
	}

	cfg := &infra.Config{
		JWTSecret:       testSecret,
		StoragePath:     t.TempDir(),
		MaxImageBytes:   1024,
		RateLimitPerMin: 100,
	}
	q, err := queue.New(queue.Options{Jobs: db.Jobs(), Owners: db.Records(), MaxImageBytes: cfg.MaxImageBytes})
	if err != nil {
		t.Fatalf("queue.New: %v", err)
	}
	advisor := &scriptedAdvisor{answer: "Rotate crops and remove infected leaves."}
	app := &handlers.App{
		Config:   cfg,
		Logger:   zerolog.Nop(),
		Queue:    q,
		Tracker:  queue.NewTracker(db.Jobs(), 0),
		Store:    db,
		GeoIP:    lookupFunc(func(string) (string, error) { return "ke", nil }),
		Diseases: staticDiseases{},
		Advisor:  advisor,
	}
	return &testEnv{db: db, handler: NewRouter(app), advisor: advisor}
}

func token(t *testing.T, owner string) string {
	t.Helper()
	tok, err := middleware.SignJWT(testSecret, middleware.TokenClaims{Sub: owner, Exp: time.Now().Add(time.Hour).Unix()})
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return tok
}

func uploadRequest(t *testing.T, owner string, field string, data []byte, mime string) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", `form-data; name="`+field+`"; filename="leaf.png"`)
	header.Set("Content-Type", mime)
	part, err := mw.CreatePart(header)
	if err != nil {
		t.Fatalf("create part: %v", err)
	}
	_, _ = part.Write(data)
	_ = mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/crops/detect-disease", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	if owner != "" {
		req.Header.Set("Authorization", "Bearer "+token(t, owner))
	}
	return req
}

func (e *testEnv) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func (e *testEnv) get(t *testing.T, path, owner string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if owner != "" {
		req.Header.Set("Authorization", "Bearer "+token(t, owner))
	}
	return e.do(req)
}

func (e *testEnv) postJSON(t *testing.T, path, owner, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if owner != "" {
		req.Header.Set("Authorization", "Bearer "+token(t, owner))
	}
	return e.do(req)
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), v); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
}

func TestDetectDiseaseAcceptsUpload(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(uploadRequest(t, "farmer-1", "crop-image", pngBytes, "image/png"))
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202 (body %s)", rec.Code, rec.Body.String())
	}
	var resp struct {
		Message string `json:"message"`
		JobID   string `json:"jobId"`
		Status  string `json:"status"`
	}
	decode(t, rec, &resp)
	if resp.JobID == "" || resp.Status != "processing" {
		t.Fatalf("unexpected response %+v", resp)
	}

	job, err := env.db.Jobs().GetByID(context.Background(), resp.JobID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if job.OwnerID != "farmer-1" || job.State != domain.JobStateWaiting {
		t.Fatalf("job = %+v", job)
	}
	if job.Region != "KE" {
		t.Fatalf("region = %q, want KE", job.Region)
	}
}

func TestDetectDiseaseRejects(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		name string
		req  *http.Request
		want int
	}{
		{"no token", uploadRequest(t, "", "crop-image", pngBytes, "image/png"), http.StatusUnauthorized},
		{"wrong field", uploadRequest(t, "farmer-1", "photo", pngBytes, "image/png"), http.StatusBadRequest},
		{"not an image", uploadRequest(t, "farmer-1", "crop-image", []byte("plain text body"), "text/plain"), http.StatusBadRequest},
		{"too large for queue", uploadRequest(t, "farmer-1", "crop-image", append(append([]byte{}, pngBytes...), make([]byte, 2048)...), "image/png"), http.StatusBadRequest},
		{"unknown owner", uploadRequest(t, "ghost", "crop-image", pngBytes, "image/png"), http.StatusNotFound},
	}
	for _, tc := range tests {
		if rec := env.do(tc.req); rec.Code != tc.want {
			t.Fatalf("%s: status = %d, want %d (body %s)", tc.name, rec.Code, tc.want, rec.Body.String())
		}
	}
}

func TestDetectDiseaseBodyOverLimit(t *testing.T) {
	env := newTestEnv(t)

	huge := append(append([]byte{}, pngBytes...), make([]byte, 3<<20)...)
	rec := env.do(uploadRequest(t, "farmer-1", "crop-image", huge, "image/png"))
	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("status = %d, want 413", rec.Code)
	}
}

func TestJobStatusEndpoints(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(uploadRequest(t, "farmer-1", "crop-image", pngBytes, "image/png"))
	var created struct {
		JobID string `json:"jobId"`
	}
	decode(t, rec, &created)

	for _, path := range []string{"/crops/job-status?jobId=" + created.JobID, "/crops/jobs/" + created.JobID} {
		rec := env.get(t, path, "farmer-1")
		if rec.Code != http.StatusOK {
			t.Fatalf("GET %s = %d (body %s)", path, rec.Code, rec.Body.String())
		}
		var status map[string]any
		decode(t, rec, &status)
		if status["status"] != string(domain.JobStateWaiting) || status["jobId"] != created.JobID {
			t.Fatalf("GET %s body = %v", path, status)
		}
		if _, leaked := status["ownerId"]; leaked {
			t.Fatalf("owner id should not be serialised: %v", status)
		}

		if rec := env.get(t, path, "farmer-2"); rec.Code != http.StatusNotFound {
			t.Fatalf("GET %s as other owner = %d, want 404", path, rec.Code)
		}
	}

	if rec := env.get(t, "/crops/job-status", "farmer-1"); rec.Code != http.StatusBadRequest {
		t.Fatalf("missing jobId = %d, want 400", rec.Code)
	}
	if rec := env.get(t, "/crops/jobs/does-not-exist", "farmer-1"); rec.Code != http.StatusNotFound {
		t.Fatalf("unknown job = %d, want 404", rec.Code)
	}
}

func TestMyJobsListsOnlyCallerJobs(t *testing.T) {
	env := newTestEnv(t)
	for i := 0; i < 2; i++ {
		if rec := env.do(uploadRequest(t, "farmer-1", "crop-image", pngBytes, "image/png")); rec.Code != http.StatusAccepted {
			t.Fatalf("upload %d = %d", i, rec.Code)
		}
	}
	if rec := env.do(uploadRequest(t, "farmer-2", "crop-image", pngBytes, "image/png")); rec.Code != http.StatusAccepted {
		t.Fatalf("upload farmer-2 = %d", rec.Code)
	}

	rec := env.get(t, "/crops/my-jobs", "farmer-1")
	if rec.Code != http.StatusOK {
		t.Fatalf("my-jobs = %d", rec.Code)
	}
	var resp struct {
		Jobs []map[string]any `json:"jobs"`
	}
	decode(t, rec, &resp)
	if len(resp.Jobs) != 2 {
		t.Fatalf("got %d jobs, want 2", len(resp.Jobs))
	}
}

func TestDiseaseInfoEndpoint(t *testing.T) {
	env := newTestEnv(t)

	rec := env.postJSON(t, "/crops/ai/disease-info", "farmer-1", `{"diseaseClass":" tomato_leaf_mold "}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d (body %s)", rec.Code, rec.Body.String())
	}
	var resp struct {
		DiseaseClass string             `json:"diseaseClass"`
		DiseaseInfo  domain.DiseaseInfo `json:"diseaseInfo"`
	}
	decode(t, rec, &resp)
	if resp.DiseaseClass != "tomato_leaf_mold" || resp.DiseaseInfo.Description != "About tomato_leaf_mold" {
		t.Fatalf("unexpected response %+v", resp)
	}

	tests := []struct {
		name  string
		owner string
		body  string
		want  int
	}{
		{"unauthenticated", "", `{"diseaseClass":"x"}`, http.StatusUnauthorized},
		{"missing class", "farmer-1", `{"diseaseClass":"  "}`, http.StatusBadRequest},
		{"not json", "farmer-1", `diseaseClass=x`, http.StatusBadRequest},
	}
	for _, tc := range tests {
		if rec := env.postJSON(t, "/crops/ai/disease-info", tc.owner, tc.body); rec.Code != tc.want {
			t.Fatalf("%s: status = %d, want %d", tc.name, rec.Code, tc.want)
		}
	}
}

func TestAskEndpoint(t *testing.T) {
	env := newTestEnv(t)

	rec := env.postJSON(t, "/crops/ai/ask", "farmer-1", `{"question":"How do I treat it?","diseaseClass":"potato_early_blight"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d (body %s)", rec.Code, rec.Body.String())
	}
	var resp struct {
		Question string `json:"question"`
		Answer   string `json:"answer"`
	}
	decode(t, rec, &resp)
	if resp.Answer != "Rotate crops and remove infected leaves." || resp.Question != "How do I treat it?" {
		t.Fatalf("unexpected response %+v", resp)
	}
	if env.advisor.class != "potato_early_blight" {
		t.Fatalf("advisor got class %q", env.advisor.class)
	}

	long := `{"question":"` + strings.Repeat("a", 2001) + `"}`
	if rec := env.postJSON(t, "/crops/ai/ask", "farmer-1", long); rec.Code != http.StatusBadRequest {
		t.Fatalf("long question = %d, want 400", rec.Code)
	}
	if rec := env.postJSON(t, "/crops/ai/ask", "farmer-1", `{"question":""}`); rec.Code != http.StatusBadRequest {
		t.Fatalf("empty question = %d, want 400", rec.Code)
	}

	env.advisor.err = enrichment.ErrMissingAPIKey
	if rec := env.postJSON(t, "/crops/ai/ask", "farmer-1", `{"question":"why?"}`); rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("unconfigured advisor = %d, want 503", rec.Code)
	}
	env.advisor.err = errors.New("openrouter: status 500")
	if rec := env.postJSON(t, "/crops/ai/ask", "farmer-1", `{"question":"why?"}`); rec.Code != http.StatusBadGateway {
		t.Fatalf("failing advisor = %d, want 502", rec.Code)
	}
}

func TestHealthAndDocs(t *testing.T) {
	env := newTestEnv(t)

	rec := env.get(t, "/v1/healthz", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("healthz = %d", rec.Code)
	}
	rec = env.get(t, "/v1/openapi.json", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("openapi.json = %d", rec.Code)
	}
	var doc map[string]any
	decode(t, rec, &doc)
	if _, ok := doc["paths"]; !ok {
		t.Fatalf("openapi document missing paths")
	}
	etag := rec.Header().Get("ETag")
	if etag == "" {
		t.Fatalf("openapi.json missing ETag")
	}
	cached := httptest.NewRequest(http.MethodGet, "/v1/openapi.json", nil)
	cached.Header.Set("If-None-Match", etag)
	if rec := env.do(cached); rec.Code != http.StatusNotModified {
		t.Fatalf("conditional openapi.json = %d, want 304", rec.Code)
	}
	if rec := env.get(t, "/v1/docs", ""); rec.Code != http.StatusOK {
		t.Fatalf("docs = %d", rec.Code)
	}
}

func TestHealthReportsUnreachableStore(t *testing.T) {
	db, err := sqlite.Open(filepath.Join(t.TempDir(), "closed.db"))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	_ = db.Close()
	app := &handlers.App{Config: &infra.Config{JWTSecret: testSecret}, Logger: zerolog.Nop(), Store: db}

	rec := httptest.NewRecorder()
	NewRouter(app).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/healthz", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("healthz = %d, want 503", rec.Code)
	}
}
