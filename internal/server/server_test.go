package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/schemaflow/schemaflow/constants"
	"github.com/schemaflow/schemaflow/internal/common"
	"github.com/schemaflow/schemaflow/internal/core"
	"github.com/schemaflow/schemaflow/internal/entity"
	"github.com/schemaflow/schemaflow/internal/llm"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type stubDocs struct {
	docs map[uuid.UUID]*entity.Document
}

func (s *stubDocs) Create(_ context.Context, doc *entity.Document) error {
	if doc.ID == uuid.Nil {
		doc.ID = uuid.New()
	}
	s.docs[doc.ID] = doc
	return nil
}

func (s *stubDocs) Get(_ context.Context, id uuid.UUID) (*entity.Document, error) {
	d, ok := s.docs[id]
	if !ok {
		return nil, common.ErrNotFound
	}
	return d, nil
}

func (s *stubDocs) GetText(_ context.Context, id uuid.UUID) (string, error) {
	d, ok := s.docs[id]
	if !ok {
		return "", common.ErrNotFound
	}
	return d.RawText, nil
}

func (s *stubDocs) List(context.Context, int, int) ([]entity.Document, error) { return nil, nil }
func (s *stubDocs) Delete(_ context.Context, id uuid.UUID) error {
	if _, ok := s.docs[id]; !ok {
		return common.ErrNotFound
	}
	delete(s.docs, id)
	return nil
}

type stubSchemas struct {
	schemas map[uuid.UUID]*entity.ExtractionSchema
}

func (s *stubSchemas) Create(_ context.Context, xs *entity.ExtractionSchema) error {
	if xs.ID == uuid.Nil {
		xs.ID = uuid.New()
	}
	s.schemas[xs.ID] = xs
	return nil
}

func (s *stubSchemas) Get(_ context.Context, id uuid.UUID) (*entity.ExtractionSchema, error) {
	xs, ok := s.schemas[id]
	if !ok {
		return nil, common.ErrNotFound
	}
	return xs, nil
}

func (s *stubSchemas) List(context.Context, int, int) ([]entity.ExtractionSchema, error) {
	return nil, nil
}
func (s *stubSchemas) Update(context.Context, *entity.ExtractionSchema) error { return nil }
func (s *stubSchemas) Delete(context.Context, uuid.UUID) error                { return nil }

type stubJobs struct {
	jobs map[uuid.UUID]*entity.ProcessingJob
}

func (s *stubJobs) Create(_ context.Context, job *entity.ProcessingJob) error {
	if job.ID == uuid.Nil {
		job.ID = uuid.New()
	}
	if job.Status == "" {
		job.Status = constants.JobStatusPending
	}
	s.jobs[job.ID] = job
	return nil
}

func (s *stubJobs) Get(_ context.Context, id uuid.UUID) (*entity.ProcessingJob, error) {
	j, ok := s.jobs[id]
	if !ok {
		return nil, common.ErrNotFound
	}
	return j, nil
}

func (s *stubJobs) List(_ context.Context, status constants.JobStatus, limit, offset int) ([]entity.ProcessingJob, error) {
	var out []entity.ProcessingJob
	for _, j := range s.jobs {
		if status == "" || j.Status == status {
			out = append(out, *j)
		}
	}
	sort.Slice(out, func(i, k int) bool { return out[i].CreatedAt.After(out[k].CreatedAt) })
	if offset > len(out) {
		offset = len(out)
	}
	out = out[offset:]
	if limit > 0 && limit < len(out) {
		out = out[:limit]
	}
	return out, nil
}
func (s *stubJobs) ListByDocument(context.Context, uuid.UUID) ([]entity.ProcessingJob, error) {
	return nil, nil
}
func (s *stubJobs) ClaimNext(context.Context) (*entity.ProcessingJob, error) {
	return nil, common.ErrNotFound
}
func (s *stubJobs) MarkChunked(context.Context, uuid.UUID, int) error { return nil }
func (s *stubJobs) SaveProgress(context.Context, uuid.UUID, int, json.RawMessage) error {
	return nil
}
func (s *stubJobs) FinishSuccess(context.Context, uuid.UUID, json.RawMessage) error { return nil }
func (s *stubJobs) ScheduleRetry(context.Context, uuid.UUID, string, string, time.Time) error {
	return nil
}
func (s *stubJobs) FinishFailure(context.Context, uuid.UUID, string, string) error { return nil }

func (s *stubJobs) RequeueStale(context.Context, time.Duration) (int, error) { return 0, nil }

func (s *stubJobs) RequestCancel(_ context.Context, id uuid.UUID) error {
	j, ok := s.jobs[id]
	if !ok {
		return common.ErrNotFound
	}
	if !j.Status.Active() {
		return common.ErrConflict
	}
	j.CancelRequested = true
	return nil
}

func (s *stubJobs) CancelRequested(_ context.Context, id uuid.UUID) (bool, error) {
	j, ok := s.jobs[id]
	if !ok {
		return false, common.ErrNotFound
	}
	return j.CancelRequested, nil
}

func (s *stubJobs) ResetForRetry(_ context.Context, id uuid.UUID) error {
	j, ok := s.jobs[id]
	if !ok {
		return common.ErrNotFound
	}
	if j.Status != constants.JobStatusFailed {
		return common.ErrConflict
	}
	j.Status = constants.JobStatusPending
	j.RetryCount = 0
	return nil
}

func (s *stubJobs) CountByStatus(context.Context) (map[constants.JobStatus]int, error) {
	out := make(map[constants.JobStatus]int)
	for _, j := range s.jobs {
		out[j.Status]++
	}
	return out, nil
}

type stubSuggestions struct {
	suggestions map[uuid.UUID]*entity.SchemaSuggestion
}

func (s *stubSuggestions) Create(_ context.Context, sg *entity.SchemaSuggestion) error {
	if sg.ID == uuid.Nil {
		sg.ID = uuid.New()
	}
	s.suggestions[sg.ID] = sg
	return nil
}

func (s *stubSuggestions) Get(_ context.Context, id uuid.UUID) (*entity.SchemaSuggestion, error) {
	sg, ok := s.suggestions[id]
	if !ok {
		return nil, common.ErrNotFound
	}
	return sg, nil
}

func (s *stubSuggestions) ClaimNext(context.Context) (*entity.SchemaSuggestion, error) {
	return nil, common.ErrNotFound
}
func (s *stubSuggestions) FinishSuccess(context.Context, uuid.UUID, string, string, json.RawMessage) error {
	return nil
}
func (s *stubSuggestions) ScheduleRetry(context.Context, uuid.UUID, string, time.Time) error {
	return nil
}
func (s *stubSuggestions) FinishFailure(context.Context, uuid.UUID, string) error { return nil }

func (s *stubSuggestions) RequeueStale(context.Context, time.Duration) (int, error) { return 0, nil }

type fixture struct {
	docs        *stubDocs
	schemas     *stubSchemas
	jobs        *stubJobs
	suggestions *stubSuggestions
	router      *gin.Engine
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		docs:        &stubDocs{docs: make(map[uuid.UUID]*entity.Document)},
		schemas:     &stubSchemas{schemas: make(map[uuid.UUID]*entity.ExtractionSchema)},
		jobs:        &stubJobs{jobs: make(map[uuid.UUID]*entity.ProcessingJob)},
		suggestions: &stubSuggestions{suggestions: make(map[uuid.UUID]*entity.SchemaSuggestion)},
	}
	srv := New(f.docs, f.schemas, f.jobs, f.suggestions, llm.NewRegistry(), nil, core.ProcessorConfig{}, 3, nil)
	f.router = srv.Router()
	return f
}

func (f *fixture) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("response %q: %v", w.Body.String(), err)
	}
	return out
}

func TestCreateSchema(t *testing.T) {
	t.Run("valid definition normalized with ids", func(t *testing.T) {
		f := newFixture(t)
		w := f.do(t, http.MethodPost, "/api/schemas", gin.H{
			"name": "Invoice",
			"schema_definition": gin.H{"fields": []gin.H{
				{"name": "total", "type": "number"},
			}},
		})
		if w.Code != http.StatusCreated {
			t.Fatalf("status = %d, body %s", w.Code, w.Body)
		}
		body := decodeBody(t, w)
		def := body["schema_definition"].(map[string]any)
		field := def["fields"].([]any)[0].(map[string]any)
		if field["id"] == nil || field["id"] == "" {
			t.Error("stored definition must carry generated field ids")
		}
	})

	t.Run("structural problems rejected", func(t *testing.T) {
		f := newFixture(t)
		cases := []gin.H{
			{"fields": []gin.H{}},
			{"fields": []gin.H{{"name": "", "type": "string"}}},
			{"fields": []gin.H{{"name": "x", "type": "array"}}},
			{"fields": []gin.H{{"name": "a", "type": "string"}, {"name": "a", "type": "number"}}},
		}
		for i, def := range cases {
			w := f.do(t, http.MethodPost, "/api/schemas", gin.H{"name": "Bad", "schema_definition": def})
			if w.Code != http.StatusBadRequest {
				t.Errorf("case %d: status = %d, body %s", i, w.Code, w.Body)
			}
		}
	})

	t.Run("missing name rejected", func(t *testing.T) {
		f := newFixture(t)
		w := f.do(t, http.MethodPost, "/api/schemas", gin.H{
			"schema_definition": gin.H{"fields": []gin.H{{"name": "x", "type": "string"}}},
		})
		if w.Code != http.StatusBadRequest {
			t.Errorf("status = %d", w.Code)
		}
	})
}

func TestCreateJobs(t *testing.T) {
	f := newFixture(t)
	xs := &entity.ExtractionSchema{Name: "S", Definition: json.RawMessage(`{"fields":[]}`)}
	if err := f.schemas.Create(context.Background(), xs); err != nil {
		t.Fatal(err)
	}
	docA := &entity.Document{Title: "a"}
	docB := &entity.Document{Title: "b"}
	for _, d := range []*entity.Document{docA, docB} {
		if err := f.docs.Create(context.Background(), d); err != nil {
			t.Fatal(err)
		}
	}

	t.Run("one pending job per document", func(t *testing.T) {
		w := f.do(t, http.MethodPost, "/api/jobs", gin.H{
			"document_ids": []uuid.UUID{docA.ID, docB.ID},
			"schema_id":    xs.ID,
		})
		if w.Code != http.StatusCreated {
			t.Fatalf("status = %d, body %s", w.Code, w.Body)
		}
		if len(f.jobs.jobs) != 2 {
			t.Errorf("jobs created = %d", len(f.jobs.jobs))
		}
		for _, j := range f.jobs.jobs {
			if j.Status != constants.JobStatusPending {
				t.Errorf("job status = %s", j.Status)
			}
			if j.MaxRetries != 3 {
				t.Errorf("max_retries = %d", j.MaxRetries)
			}
		}
	})

	t.Run("unknown schema is 404", func(t *testing.T) {
		w := f.do(t, http.MethodPost, "/api/jobs", gin.H{
			"document_ids": []uuid.UUID{docA.ID},
			"schema_id":    uuid.New(),
		})
		if w.Code != http.StatusNotFound {
			t.Errorf("status = %d", w.Code)
		}
	})

	t.Run("empty document list is 400", func(t *testing.T) {
		w := f.do(t, http.MethodPost, "/api/jobs", gin.H{
			"document_ids": []uuid.UUID{},
			"schema_id":    xs.ID,
		})
		if w.Code != http.StatusBadRequest {
			t.Errorf("status = %d", w.Code)
		}
	})
}

func TestJobStatusEndpoint(t *testing.T) {
	f := newFixture(t)
	job := &entity.ProcessingJob{
		Status:          constants.JobStatusProcessing,
		IsChunked:       true,
		TotalChunks:     4,
		ProcessedChunks: 2,
	}
	if err := f.jobs.Create(context.Background(), job); err != nil {
		t.Fatal(err)
	}

	w := f.do(t, http.MethodGet, "/api/jobs/"+job.ID.String()+"/status", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	body := decodeBody(t, w)
	if body["progress"] != 0.5 {
		t.Errorf("progress = %v", body["progress"])
	}
	if _, present := body["result_data"]; present {
		t.Error("polling endpoint must not carry the result payload")
	}

	t.Run("invalid id is 400", func(t *testing.T) {
		w := f.do(t, http.MethodGet, "/api/jobs/not-a-uuid/status", nil)
		if w.Code != http.StatusBadRequest {
			t.Errorf("status = %d", w.Code)
		}
	})
}

func TestJobResultEndpoint(t *testing.T) {
	f := newFixture(t)
	doc := &entity.Document{Title: "Invoice 42"}
	if err := f.docs.Create(context.Background(), doc); err != nil {
		t.Fatal(err)
	}
	done := &entity.ProcessingJob{
		DocumentID: doc.ID,
		Status:     constants.JobStatusCompleted,
		ResultData: json.RawMessage(`{"total": 9}`),
	}
	pending := &entity.ProcessingJob{DocumentID: doc.ID, Status: constants.JobStatusPending}
	for _, j := range []*entity.ProcessingJob{done, pending} {
		if err := f.jobs.Create(context.Background(), j); err != nil {
			t.Fatal(err)
		}
	}

	t.Run("completed job downloads", func(t *testing.T) {
		w := f.do(t, http.MethodGet, "/api/jobs/"+done.ID.String()+"/result?download=true", nil)
		if w.Code != http.StatusOK {
			t.Fatalf("status = %d, body %s", w.Code, w.Body)
		}
		if cd := w.Header().Get("Content-Disposition"); !strings.Contains(cd, "Invoice_42_extraction.json") {
			t.Errorf("Content-Disposition = %q", cd)
		}
		if !strings.Contains(w.Body.String(), `"total"`) {
			t.Errorf("body = %s", w.Body)
		}
	})

	t.Run("pending job refused with code", func(t *testing.T) {
		w := f.do(t, http.MethodGet, "/api/jobs/"+pending.ID.String()+"/result", nil)
		if w.Code != http.StatusBadRequest {
			t.Fatalf("status = %d", w.Code)
		}
		if body := decodeBody(t, w); body["code"] != "JOB_NOT_COMPLETED" {
			t.Errorf("code = %v", body["code"])
		}
	})
}

func TestJobControl(t *testing.T) {
	f := newFixture(t)
	failed := &entity.ProcessingJob{Status: constants.JobStatusFailed, RetryCount: 3}
	running := &entity.ProcessingJob{Status: constants.JobStatusProcessing}
	completed := &entity.ProcessingJob{Status: constants.JobStatusCompleted}
	for _, j := range []*entity.ProcessingJob{failed, running, completed} {
		if err := f.jobs.Create(context.Background(), j); err != nil {
			t.Fatal(err)
		}
	}

	t.Run("retry resets a failed job", func(t *testing.T) {
		w := f.do(t, http.MethodPost, "/api/jobs/"+failed.ID.String()+"/retry", nil)
		if w.Code != http.StatusOK {
			t.Fatalf("status = %d, body %s", w.Code, w.Body)
		}
		if failed.Status != constants.JobStatusPending || failed.RetryCount != 0 {
			t.Errorf("job after retry: status=%s retry_count=%d", failed.Status, failed.RetryCount)
		}
	})

	t.Run("retry of a running job conflicts", func(t *testing.T) {
		w := f.do(t, http.MethodPost, "/api/jobs/"+running.ID.String()+"/retry", nil)
		if w.Code != http.StatusConflict {
			t.Errorf("status = %d", w.Code)
		}
	})

	t.Run("cancel of an active job accepted", func(t *testing.T) {
		w := f.do(t, http.MethodPost, "/api/jobs/"+running.ID.String()+"/cancel", nil)
		if w.Code != http.StatusAccepted {
			t.Fatalf("status = %d", w.Code)
		}
		if !running.CancelRequested {
			t.Error("cancel flag not set")
		}
	})

	t.Run("cancel of a terminal job conflicts", func(t *testing.T) {
		w := f.do(t, http.MethodPost, "/api/jobs/"+completed.ID.String()+"/cancel", nil)
		if w.Code != http.StatusConflict {
			t.Errorf("status = %d", w.Code)
		}
	})
}

func TestListPresets(t *testing.T) {
	f := newFixture(t)
	w := f.do(t, http.MethodGet, "/api/presets", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	body := decodeBody(t, w)
	presets, ok := body["presets"].([]any)
	if !ok || len(presets) == 0 {
		t.Errorf("presets = %v", body["presets"])
	}
}

func TestStats(t *testing.T) {
	f := newFixture(t)
	for i, status := range []constants.JobStatus{
		constants.JobStatusCompleted,
		constants.JobStatusCompleted,
		constants.JobStatusFailed,
	} {
		job := &entity.ProcessingJob{Status: status, CreatedAt: time.Now().Add(time.Duration(i) * time.Second)}
		if err := f.jobs.Create(context.Background(), job); err != nil {
			t.Fatal(err)
		}
	}

	w := f.do(t, http.MethodGet, "/api/stats", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body)
	}
	body := decodeBody(t, w)

	if body["total"] != float64(3) {
		t.Errorf("total = %v, want 3", body["total"])
	}
	counts, ok := body["jobs"].(map[string]any)
	if !ok || counts["completed"] != float64(2) || counts["failed"] != float64(1) {
		t.Errorf("jobs = %v", body["jobs"])
	}
	recent, ok := body["recent"].([]any)
	if !ok || len(recent) != 3 {
		t.Fatalf("recent = %v, want all 3 jobs", body["recent"])
	}
	// Newest first.
	first := recent[0].(map[string]any)
	if first["status"] != string(constants.JobStatusFailed) {
		t.Errorf("recent[0] status = %v, want the newest job first", first["status"])
	}
}
