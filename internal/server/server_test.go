package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"meeting-insights-go/internal/logger"
	"meeting-insights-go/internal/pipeline"
	"meeting-insights-go/internal/store"
	"meeting-insights-go/internal/types"
)

type fakeRunner struct {
	got *pipeline.Submission
	res *pipeline.Result
	err error
}

func (f *fakeRunner) Run(ctx context.Context, sub pipeline.Submission) (*pipeline.Result, error) {
	f.got = &sub
	return f.res, f.err
}

type fakePinger struct{ err error }

func (f fakePinger) Ping(ctx context.Context) error { return f.err }

type part struct {
	field, filename, body string
}

func multipartBody(t *testing.T, parts []part, values map[string]string) (*bytes.Buffer, string) {
	t.Helper()
	var b bytes.Buffer
	w := multipart.NewWriter(&b)
	for _, p := range parts {
		fw, err := w.CreateFormFile(p.field, p.filename)
		if err != nil {
			t.Fatalf("create part: %v", err)
		}
		fw.Write([]byte(p.body))
	}
	for k, v := range values {
		w.WriteField(k, v)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close writer: %v", err)
	}
	return &b, w.FormDataContentType()
}

func newTestServer(runner Runner, db Pinger, maxUpload int64) http.Handler {
	reg := prometheus.NewRegistry()
	return New(runner, db, Options{MaxUploadBytes: maxUpload, Registerer: reg, Gatherer: reg}, logger.Discard()).Handler()
}

func post(t *testing.T, h http.Handler, parts []part, values map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	body, ct := multipartBody(t, parts, values)
	req := httptest.NewRequest(http.MethodPost, "/api/upload", body)
	req.Header.Set("Content-Type", ct)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return out
}

func TestUploadSuccess(t *testing.T) {
	id := uint(7)
	runner := &fakeRunner{res: &pipeline.Result{
		Merged:    "s3://b/recordings/merged-1.mp3",
		Originals: []types.OriginalLocator{{Field: "user_audio", Key: "k", Locator: "s3://b/k"}},
		Analysis:  types.AnalysisResult{Transcript: "hi", Summary: "s"},
		MeetingID: &id,
	}}
	h := newTestServer(runner, fakePinger{}, 1<<20)

	rec := post(t, h, []part{
		{"remote_10", "c.webm", "ccc"},
		{"user_audio", "me.webm", "aaa"},
		{"remote_2", "b.webm", "bbb"},
	}, map[string]string{"meetingData": `{"userProfile":{"email":"h@example.com"},"meetingInfo":{"meetingCode":"x"}}`})

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	out := decode(t, rec)
	if out["ok"] != true || out["merged"] != "s3://b/recordings/merged-1.mp3" || out["meeting_id"] != float64(7) {
		t.Fatalf("unexpected body %v", out)
	}
	analysis, _ := out["analysis"].(map[string]any)
	if analysis["transcript"] != "hi" || analysis["structured_note"] != "" {
		t.Fatalf("unexpected analysis %v", analysis)
	}

	sub := runner.got
	if sub.Primary.Field != "user_audio" || string(sub.Primary.Data) != "aaa" || sub.Primary.Role != types.RolePrimary {
		t.Fatalf("unexpected primary %+v", sub.Primary)
	}
	if len(sub.Remotes) != 2 || sub.Remotes[0].Field != "remote_2" || sub.Remotes[1].Field != "remote_10" {
		t.Fatalf("remotes should be ordered numerically: %+v", sub.Remotes)
	}
	if sub.Session.HostEmail() != "h@example.com" {
		t.Fatalf("metadata not parsed: %+v", sub.Session)
	}
	if rec.Header().Get("X-Request-ID") == "" {
		t.Fatalf("missing request id header")
	}
}

func TestUploadMetadataAsFilePart(t *testing.T) {
	runner := &fakeRunner{res: &pipeline.Result{}}
	h := newTestServer(runner, fakePinger{}, 1<<20)

	rec := post(t, h, []part{
		{"user_audio", "me.webm", "aaa"},
		{"meetingData", "meeting.json", `{"meetingInfo":{"meetingTitle":"Standup"}}`},
	}, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if runner.got.Session == nil || runner.got.Session.MeetingInfo.MeetingTitle != "Standup" {
		t.Fatalf("metadata file part not parsed")
	}
}

func TestUploadValidation(t *testing.T) {
	cases := []struct {
		name   string
		parts  []part
		values map[string]string
		want   string
	}{
		{"missing primary", []part{{"remote_1", "a.webm", "a"}}, nil, "missing user_audio"},
		{"empty primary", []part{{"user_audio", "a.webm", ""}}, nil, "user_audio is empty"},
		{"bad metadata", []part{{"user_audio", "a.webm", "a"}}, map[string]string{"meetingData": "[1,2]"}, "meetingData"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			runner := &fakeRunner{}
			rec := post(t, newTestServer(runner, fakePinger{}, 1<<20), tc.parts, tc.values)
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d", rec.Code)
			}
			out := decode(t, rec)
			if out["ok"] != false || !strings.Contains(out["error"].(string), tc.want) {
				t.Fatalf("unexpected body %v", out)
			}
			if runner.got != nil {
				t.Fatalf("pipeline must not run on invalid input")
			}
		})
	}
}

func TestUploadTooLarge(t *testing.T) {
	runner := &fakeRunner{}
	rec := post(t, newTestServer(runner, fakePinger{}, 512), []part{{"user_audio", "a.webm", strings.Repeat("x", 4096)}}, nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	if runner.got != nil {
		t.Fatalf("pipeline must not run on oversized input")
	}
}

func TestUploadPipelineFailure(t *testing.T) {
	runner := &fakeRunner{err: &pipeline.StageError{
		Stage: pipeline.StageStaged,
		Kind:  pipeline.KindTranscoding,
		Err:   errors.New("ffmpeg: /tmp/run/me.webm: Invalid data"),
	}}
	rec := post(t, newTestServer(runner, fakePinger{}, 1<<20), []part{{"user_audio", "a.webm", "a"}}, nil)
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
	out := decode(t, rec)
	if out["ok"] != false || strings.Contains(rec.Body.String(), "/tmp") {
		t.Fatalf("unexpected body %s", rec.Body.String())
	}
}

func TestHealth(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		code   int
		status string
		want   string
	}{
		{"healthy", nil, http.StatusOK, "healthy", ""},
		{"unhealthy", errors.New("dial tcp: password authentication failed"), http.StatusInternalServerError, "unhealthy", "database unavailable"},
		{"pool exhausted", store.ErrPoolTimeout, http.StatusInternalServerError, "unhealthy", "database connection pool exhausted"},
		{"query failed", fmt.Errorf("%w: %w", store.ErrQuery, errors.New("pq: password authentication failed")), http.StatusInternalServerError, "unhealthy", "database query failed"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := newTestServer(&fakeRunner{}, fakePinger{err: tc.err}, 1<<20)
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/health", nil))
			if rec.Code != tc.code {
				t.Fatalf("expected %d, got %d", tc.code, rec.Code)
			}
			out := decode(t, rec)
			if out["status"] != tc.status || strings.Contains(rec.Body.String(), "password") {
				t.Fatalf("unexpected body %s", rec.Body.String())
			}
			if tc.want != "" && out["error"] != tc.want {
				t.Fatalf("expected error %q, got %v", tc.want, out["error"])
			}
		})
	}
}

func TestMetricsEndpoint(t *testing.T) {
	h := newTestServer(&fakeRunner{}, fakePinger{}, 1<<20)
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/healthz", nil))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "meeting_http_requests_total") {
		t.Fatalf("metrics not exposed: %d %s", rec.Code, rec.Body.String())
	}
}
