package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/clipforge/clipforge-agent/internal/catalog"
	"github.com/clipforge/clipforge-agent/internal/export"
	"github.com/clipforge/clipforge-agent/internal/ffmpeg"
)

func testConfig(t *testing.T) (ServerConfig, *fakeService, *fakeRepo) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := &fakeService{clips: map[string]*catalog.Clip{}}
	repo := &fakeRepo{token: "test-token"}

	exporter := export.NewExporter(&stubRunner{}, &stubProber{}, t.TempDir(), export.EncodeOptions{}, logger)

	return ServerConfig{
		CatalogService: svc,
		PlaybackServer: &fakePlayback{},
		Repository:     repo,
		Manager:        export.NewManager(repo, exporter, logger),
		Doctor:         ffmpeg.NewDoctor("", "", logger),
		Logger:         logger,
		StartTime:      time.Now().Add(-10 * time.Second),
		DeviceID:       "test-device",
	}, svc, repo
}

func withURLParam(r *http.Request, key, value string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add(key, value)
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

func decodeJSONBody(t *testing.T, rr *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()

	var body map[string]interface{}
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to decode response body: %v", err)
	}
	return body
}

func testClip(id string) *catalog.Clip {
	return &catalog.Clip{
		ID:        id,
		Filename:  "take.mp4",
		Path:      "/data/clips/take.mp4",
		Kind:      catalog.ClipKindImport,
		Duration:  5.25,
		Width:     1920,
		Height:    1080,
		Codec:     "h264",
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
}

func TestHealthHandler(t *testing.T) {
	cfg, _, _ := testConfig(t)

	rr := httptest.NewRecorder()
	healthHandler(cfg).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("status code = %d, want %d", rr.Code, http.StatusOK)
	}
	body := decodeJSONBody(t, rr)
	if body["status"] != "ok" || body["device_id"] != "test-device" {
		t.Errorf("body = %v", body)
	}
	if body["uptime_s"].(float64) < 10 {
		t.Errorf("uptime_s = %v, want at least 10", body["uptime_s"])
	}
}

func TestStatusHandler_Idle(t *testing.T) {
	cfg, svc, repo := testConfig(t)
	svc.count = 3
	repo.pending = 1

	rr := httptest.NewRecorder()
	statusHandler(cfg).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/status", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("status code = %d", rr.Code)
	}
	body := decodeJSONBody(t, rr)
	if body["state"] != "idle" {
		t.Errorf("state = %v, want idle", body["state"])
	}
	if body["clips_count"].(float64) != 3 || body["jobs_queued"].(float64) != 1 {
		t.Errorf("counts = %v", body)
	}
	if _, ok := body["tools"]; ok {
		t.Error("tools should be omitted before the toolchain probe")
	}
	if _, ok := body["active_job"]; ok {
		t.Error("active_job should be omitted when idle")
	}
}

func TestStatusHandler_LastError(t *testing.T) {
	cfg, _, repo := testConfig(t)
	repo.jobs = []*catalog.Job{
		{ID: "j2", Status: catalog.JobStatusCompleted},
		{ID: "j1", Status: catalog.JobStatusFailed, Error: "process clip 1/2: boom"},
	}

	rr := httptest.NewRecorder()
	statusHandler(cfg).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/status", nil))

	body := decodeJSONBody(t, rr)
	if body["last_error"] != "process clip 1/2: boom" {
		t.Errorf("last_error = %v", body["last_error"])
	}
}

func TestImportClipHandler(t *testing.T) {
	cfg, svc, _ := testConfig(t)
	svc.importClip = testClip("clip-1")

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/clips", strings.NewReader(`{"path": "/videos/take.mp4"}`))
	importClipHandler(cfg).ServeHTTP(rr, req)

	if rr.Code != http.StatusCreated {
		t.Fatalf("status code = %d: %s", rr.Code, rr.Body.String())
	}
	body := decodeJSONBody(t, rr)
	if body["id"] != "clip-1" || body["duration_seconds"].(float64) != 5.25 {
		t.Errorf("body = %v", body)
	}
	if svc.imported != "/videos/take.mp4" {
		t.Errorf("imported path = %q", svc.imported)
	}
}

func TestImportClipHandler_MissingPath(t *testing.T) {
	cfg, _, _ := testConfig(t)

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/clips", strings.NewReader(`{}`))
	importClipHandler(cfg).ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status code = %d", rr.Code)
	}
}

func TestImportClipHandler_ServiceError(t *testing.T) {
	cfg, svc, _ := testConfig(t)
	svc.importErr = errors.New("not a video file: report.pdf")

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/clips", strings.NewReader(`{"path": "/tmp/report.pdf"}`))
	importClipHandler(cfg).ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status code = %d", rr.Code)
	}
	body := decodeJSONBody(t, rr)
	if !strings.Contains(body["error"].(string), "not a video file") {
		t.Errorf("error = %v", body["error"])
	}
}

func TestListClipsHandler(t *testing.T) {
	cfg, svc, _ := testConfig(t)
	svc.list = []*catalog.Clip{testClip("a"), testClip("b")}

	rr := httptest.NewRecorder()
	listClipsHandler(cfg).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/clips", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("status code = %d", rr.Code)
	}
	var resp ClipsResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if len(resp.Clips) != 2 || resp.Clips[0].ID != "a" || resp.Clips[1].ID != "b" {
		t.Errorf("clips = %+v", resp.Clips)
	}
}

func TestGetClipHandler_NotFound(t *testing.T) {
	cfg, _, _ := testConfig(t)

	rr := httptest.NewRecorder()
	req := withURLParam(httptest.NewRequest(http.MethodGet, "/clips/ghost", nil), "id", "ghost")
	getClipHandler(cfg).ServeHTTP(rr, req)

	if rr.Code != http.StatusNotFound {
		t.Fatalf("status code = %d", rr.Code)
	}
}

func TestDeleteClipHandler(t *testing.T) {
	cfg, svc, _ := testConfig(t)
	svc.clips["clip-1"] = testClip("clip-1")

	rr := httptest.NewRecorder()
	req := withURLParam(httptest.NewRequest(http.MethodDelete, "/clips/clip-1", nil), "id", "clip-1")
	deleteClipHandler(cfg).ServeHTTP(rr, req)

	if rr.Code != http.StatusNoContent {
		t.Fatalf("status code = %d", rr.Code)
	}
	if len(svc.removed) != 1 || svc.removed[0] != "clip-1" {
		t.Errorf("removed = %v", svc.removed)
	}
}

func TestDeleteClipHandler_NotFound(t *testing.T) {
	cfg, svc, _ := testConfig(t)
	svc.removeErr = catalog.ErrClipNotFound

	rr := httptest.NewRecorder()
	req := withURLParam(httptest.NewRequest(http.MethodDelete, "/clips/ghost", nil), "id", "ghost")
	deleteClipHandler(cfg).ServeHTTP(rr, req)

	if rr.Code != http.StatusNotFound {
		t.Fatalf("status code = %d", rr.Code)
	}
}

func TestTrimClipHandler(t *testing.T) {
	cfg, svc, _ := testConfig(t)
	svc.trimClip = testClip("clip-2")
	svc.trimClip.Kind = catalog.ClipKindEdit

	rr := httptest.NewRecorder()
	req := withURLParam(httptest.NewRequest(http.MethodPost, "/clips/clip-1/trim",
		strings.NewReader(`{"start": 1.5, "end": 4}`)), "id", "clip-1")
	trimClipHandler(cfg).ServeHTTP(rr, req)

	if rr.Code != http.StatusCreated {
		t.Fatalf("status code = %d: %s", rr.Code, rr.Body.String())
	}
	if svc.trimStart != 1.5 || svc.trimEnd != 4 {
		t.Errorf("trim args = %v..%v", svc.trimStart, svc.trimEnd)
	}
	body := decodeJSONBody(t, rr)
	if body["kind"] != catalog.ClipKindEdit {
		t.Errorf("kind = %v", body["kind"])
	}
}

func TestTrimClipHandler_InvalidRange(t *testing.T) {
	cfg, svc, _ := testConfig(t)
	svc.trimErr = errors.New("invalid trim range 4..1.5")

	rr := httptest.NewRecorder()
	req := withURLParam(httptest.NewRequest(http.MethodPost, "/clips/clip-1/trim",
		strings.NewReader(`{"start": 4, "end": 1.5}`)), "id", "clip-1")
	trimClipHandler(cfg).ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status code = %d", rr.Code)
	}
}

func TestTrimClipHandler_FFmpegFailure(t *testing.T) {
	cfg, svc, _ := testConfig(t)
	svc.trimErr = &ffmpeg.ExecError{ExitCode: 1, Stderr: "moov atom not found"}

	rr := httptest.NewRecorder()
	req := withURLParam(httptest.NewRequest(http.MethodPost, "/clips/clip-1/trim",
		strings.NewReader(`{"start": 0, "end": 2}`)), "id", "clip-1")
	trimClipHandler(cfg).ServeHTTP(rr, req)

	if rr.Code != http.StatusBadGateway {
		t.Fatalf("status code = %d, want 502 for transcoder failures", rr.Code)
	}
	body := decodeJSONBody(t, rr)
	if body["code"] != "FFMPEG_FAILED" {
		t.Errorf("code = %v", body["code"])
	}
}

func TestExtractAudioHandler(t *testing.T) {
	cfg, svc, _ := testConfig(t)
	svc.audioPath = "/data/audio/take_ab12.mp3"

	rr := httptest.NewRecorder()
	req := withURLParam(httptest.NewRequest(http.MethodPost, "/clips/clip-1/audio", nil), "id", "clip-1")
	extractAudioHandler(cfg).ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status code = %d", rr.Code)
	}
	body := decodeJSONBody(t, rr)
	if body["path"] != "/data/audio/take_ab12.mp3" {
		t.Errorf("path = %v", body["path"])
	}
}

func TestProbeHandler(t *testing.T) {
	cfg, svc, _ := testConfig(t)
	svc.probeMeta = &ffmpeg.Metadata{DurationSeconds: 5.312, Width: 1920, Height: 1080, Codec: "h264", FrameRate: 29.97}

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/probe", strings.NewReader(`{"path": "/videos/take.mp4"}`))
	probeHandler(cfg).ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status code = %d", rr.Code)
	}
	body := decodeJSONBody(t, rr)
	if body["codec"] != "h264" || body["width"].(float64) != 1920 {
		t.Errorf("body = %v", body)
	}
}

func TestProbeHandler_MissingPath(t *testing.T) {
	cfg, _, _ := testConfig(t)

	rr := httptest.NewRecorder()
	probeHandler(cfg).ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/probe", strings.NewReader(`{}`)))

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status code = %d", rr.Code)
	}
}

func TestSaveRecordingHandler_RawOnly(t *testing.T) {
	cfg, svc, _ := testConfig(t)
	svc.recPath = "/data/recordings/recording_1.webm"

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/recordings?name=take&convert=false",
		bytes.NewReader([]byte("webm-bytes")))
	saveRecordingHandler(cfg).ServeHTTP(rr, req)

	if rr.Code != http.StatusCreated {
		t.Fatalf("status code = %d: %s", rr.Code, rr.Body.String())
	}
	if svc.recConvert {
		t.Error("convert=false should be passed through")
	}
	body := decodeJSONBody(t, rr)
	if _, ok := body["clip"]; ok {
		t.Error("raw-only recording should not return a clip")
	}
	if body["path"] != "/data/recordings/recording_1.webm" {
		t.Errorf("path = %v", body["path"])
	}
}

func TestSaveRecordingHandler_Converted(t *testing.T) {
	cfg, svc, _ := testConfig(t)
	svc.recClip = testClip("rec-1")
	svc.recClip.Kind = catalog.ClipKindRecording

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/recordings?name=take",
		bytes.NewReader([]byte("webm-bytes")))
	saveRecordingHandler(cfg).ServeHTTP(rr, req)

	if rr.Code != http.StatusCreated {
		t.Fatalf("status code = %d", rr.Code)
	}
	if !svc.recConvert {
		t.Error("convert should default to true")
	}
	body := decodeJSONBody(t, rr)
	clip, ok := body["clip"].(map[string]interface{})
	if !ok {
		t.Fatal("clip missing from response")
	}
	if clip["kind"] != catalog.ClipKindRecording {
		t.Errorf("clip kind = %v", clip["kind"])
	}
}

func TestSaveRecordingHandler_BadConvert(t *testing.T) {
	cfg, _, _ := testConfig(t)

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/recordings?convert=maybe", nil)
	saveRecordingHandler(cfg).ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status code = %d", rr.Code)
	}
}

func TestWorkspaceHandlers(t *testing.T) {
	cfg, svc, _ := testConfig(t)

	rr := httptest.NewRecorder()
	getWorkspaceHandler(cfg).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/workspace", nil))
	if rr.Code != http.StatusOK || rr.Body.String() != "{}" {
		t.Errorf("empty workspace = %d %q, want 200 {}", rr.Code, rr.Body.String())
	}

	rr = httptest.NewRecorder()
	putWorkspaceHandler(cfg).ServeHTTP(rr, httptest.NewRequest(http.MethodPut, "/workspace",
		strings.NewReader(`{"timeline": []}`)))
	if rr.Code != http.StatusNoContent {
		t.Fatalf("put status = %d", rr.Code)
	}
	if svc.savedWorkspace != `{"timeline": []}` {
		t.Errorf("saved = %q", svc.savedWorkspace)
	}

	rr = httptest.NewRecorder()
	putWorkspaceHandler(cfg).ServeHTTP(rr, httptest.NewRequest(http.MethodPut, "/workspace",
		strings.NewReader(`{broken`)))
	if rr.Code != http.StatusBadRequest {
		t.Errorf("invalid JSON status = %d", rr.Code)
	}

	rr = httptest.NewRecorder()
	resetWorkspaceHandler(cfg).ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/workspace/reset", nil))
	if rr.Code != http.StatusNoContent {
		t.Fatalf("reset status = %d", rr.Code)
	}
	if svc.resetCalls != 1 {
		t.Errorf("reset calls = %d", svc.resetCalls)
	}
}

func TestRegenerateThumbnailsHandler(t *testing.T) {
	cfg, svc, _ := testConfig(t)
	svc.regenCount = 4

	rr := httptest.NewRecorder()
	regenerateThumbnailsHandler(cfg).ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/thumbnails/regenerate", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("status code = %d", rr.Code)
	}
	body := decodeJSONBody(t, rr)
	if body["count"].(float64) != 4 {
		t.Errorf("count = %v", body["count"])
	}
}

func TestPlaybackHandler(t *testing.T) {
	cfg, svc, _ := testConfig(t)
	svc.clips["clip-1"] = testClip("clip-1")
	pb := cfg.PlaybackServer.(*fakePlayback)

	rr := httptest.NewRecorder()
	req := withURLParam(httptest.NewRequest(http.MethodGet, "/playback/clip-1", nil), "id", "clip-1")
	playbackHandler(cfg).ServeHTTP(rr, req)

	if len(pb.served) != 1 || pb.served[0] != "/data/clips/take.mp4" {
		t.Errorf("served = %v", pb.served)
	}
}

func TestThumbnailHandler_NoThumbnail(t *testing.T) {
	cfg, svc, _ := testConfig(t)
	svc.clips["clip-1"] = testClip("clip-1")

	rr := httptest.NewRecorder()
	req := withURLParam(httptest.NewRequest(http.MethodGet, "/playback/clip-1/thumbnail", nil), "id", "clip-1")
	thumbnailHandler(cfg).ServeHTTP(rr, req)

	if rr.Code != http.StatusNotFound {
		t.Fatalf("status code = %d", rr.Code)
	}
}

// fakeService implements catalog.CatalogService with canned responses.
type fakeService struct {
	clips          map[string]*catalog.Clip
	list           []*catalog.Clip
	importClip     *catalog.Clip
	importErr      error
	imported       string
	removed        []string
	removeErr      error
	count          int
	probeMeta      *ffmpeg.Metadata
	probeErr       error
	trimClip       *catalog.Clip
	trimErr        error
	trimStart      float64
	trimEnd        float64
	audioPath      string
	audioErr       error
	recClip        *catalog.Clip
	recPath        string
	recErr         error
	recConvert     bool
	regenCount     int
	workspace      string
	savedWorkspace string
	resetCalls     int
}

func (f *fakeService) ImportFile(ctx context.Context, path string) (*catalog.Clip, error) {
	f.imported = path
	return f.importClip, f.importErr
}

func (f *fakeService) ListClips(ctx context.Context) ([]*catalog.Clip, error) {
	return f.list, nil
}

func (f *fakeService) GetClip(ctx context.Context, id string) (*catalog.Clip, error) {
	return f.clips[id], nil
}

func (f *fakeService) RemoveClip(ctx context.Context, id string) error {
	f.removed = append(f.removed, id)
	return f.removeErr
}

func (f *fakeService) CountClips(ctx context.Context) (int, error) {
	return f.count, nil
}

func (f *fakeService) Probe(ctx context.Context, path string) (*ffmpeg.Metadata, error) {
	return f.probeMeta, f.probeErr
}

func (f *fakeService) TrimClip(ctx context.Context, id string, start, end float64) (*catalog.Clip, error) {
	f.trimStart, f.trimEnd = start, end
	return f.trimClip, f.trimErr
}

func (f *fakeService) ExtractAudio(ctx context.Context, id string) (string, error) {
	return f.audioPath, f.audioErr
}

func (f *fakeService) SaveRecording(ctx context.Context, name string, body io.Reader, convert bool) (*catalog.Clip, string, error) {
	f.recConvert = convert
	if f.recClip != nil {
		return f.recClip, f.recClip.Path, f.recErr
	}
	return nil, f.recPath, f.recErr
}

func (f *fakeService) RegenerateThumbnails(ctx context.Context) (int, error) {
	return f.regenCount, nil
}

func (f *fakeService) Workspace(ctx context.Context) (string, error) {
	return f.workspace, nil
}

func (f *fakeService) SaveWorkspace(ctx context.Context, blob string) error {
	f.savedWorkspace = blob
	return nil
}

func (f *fakeService) ResetWorkspace(ctx context.Context) error {
	f.resetCalls++
	return nil
}

// fakeRepo implements catalog.Repository. Only the job and config methods
// the handlers touch carry state; the rest return zero values.
type fakeRepo struct {
	token   string
	jobs    []*catalog.Job
	jobByID map[string]*catalog.Job
	pending int
}

func (f *fakeRepo) CreateClip(ctx context.Context, clip *catalog.Clip) error { return nil }
func (f *fakeRepo) GetClip(ctx context.Context, id string) (*catalog.Clip, error) {
	return nil, nil
}
func (f *fakeRepo) GetClipByPath(ctx context.Context, path string) (*catalog.Clip, error) {
	return nil, nil
}
func (f *fakeRepo) ListClips(ctx context.Context) ([]*catalog.Clip, error)          { return nil, nil }
func (f *fakeRepo) DeleteClip(ctx context.Context, id string) error                 { return nil }
func (f *fakeRepo) DeleteAllClips(ctx context.Context) error                        { return nil }
func (f *fakeRepo) UpdateClipThumbnail(ctx context.Context, id, path string) error  { return nil }
func (f *fakeRepo) UpdateClipAudioPath(ctx context.Context, id, path string) error  { return nil }
func (f *fakeRepo) CountClips(ctx context.Context) (int, error)                     { return 0, nil }
func (f *fakeRepo) CreateJob(ctx context.Context, job *catalog.Job) error           { return nil }
func (f *fakeRepo) GetJob(ctx context.Context, id string) (*catalog.Job, error) {
	return f.jobByID[id], nil
}
func (f *fakeRepo) ListJobs(ctx context.Context, limit int) ([]*catalog.Job, error) {
	return f.jobs, nil
}
func (f *fakeRepo) UpdateJobStatus(ctx context.Context, id, status, errorMsg string) error {
	return nil
}
func (f *fakeRepo) UpdateJobProgress(ctx context.Context, id string, progress int) error {
	return nil
}
func (f *fakeRepo) CountJobsByStatus(ctx context.Context, status string) (int, error) {
	return f.pending, nil
}
func (f *fakeRepo) GetConfig(ctx context.Context, key string) (string, error) {
	return f.token, nil
}
func (f *fakeRepo) SetConfig(ctx context.Context, key, value string) error { return nil }
func (f *fakeRepo) DeleteConfig(ctx context.Context, key string) error     { return nil }

type fakePlayback struct {
	served []string
}

func (f *fakePlayback) ServeFile(w http.ResponseWriter, r *http.Request, filePath string) error {
	f.served = append(f.served, filePath)
	_, err := io.WriteString(w, "media-bytes")
	return err
}

// stubRunner and stubProber satisfy the export interfaces for configs
// whose tests never reach the transcoder.
type stubRunner struct{}

func (s *stubRunner) RunProgress(ctx context.Context, spec ffmpeg.Spec, window ffmpeg.Window, totalSeconds float64, emit func(int)) error {
	return nil
}

type stubProber struct{}

func (s *stubProber) Probe(ctx context.Context, path string) (*ffmpeg.Metadata, error) {
	return &ffmpeg.Metadata{DurationSeconds: 1}, nil
}
