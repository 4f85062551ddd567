package export

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/clipforge/clipforge-agent/internal/catalog"
	"github.com/clipforge/clipforge-agent/internal/db"
	"github.com/clipforge/clipforge-agent/internal/ffmpeg"
)

type managerFixture struct {
	manager *Manager
	runner  *fakeRunner
	repo    catalog.Repository
	srcDir  string
	outDir  string
}

func newManagerFixture(t *testing.T) *managerFixture {
	t.Helper()
	base := t.TempDir()
	database, err := db.New(filepath.Join(base, "test.db"), nil)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { database.Close() })

	f := &managerFixture{
		runner: &fakeRunner{},
		repo:   catalog.NewRepository(database.Conn()),
		srcDir: filepath.Join(base, "src"),
		outDir: filepath.Join(base, "out"),
	}
	scratch := filepath.Join(base, "scratch")
	for _, d := range []string{f.srcDir, f.outDir, scratch} {
		if err := os.MkdirAll(d, 0o755); err != nil {
			t.Fatal(err)
		}
	}
	exporter := NewExporter(f.runner, &fakeProber{}, scratch, EncodeOptions{}, testLogger())
	f.manager = NewManager(f.repo, exporter, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go f.manager.Run(ctx)
	return f
}

func (f *managerFixture) request(t *testing.T, clips int) Request {
	t.Helper()
	req := Request{Resolution: "720p", OutputPath: filepath.Join(f.outDir, "final.mp4")}
	for i := 0; i < clips; i++ {
		req.Clips = append(req.Clips, ClipSpec{
			Path:  writeClip(t, f.srcDir, catalog.NewID()+".mp4"),
			Start: 0,
			End:   2,
		})
	}
	return req
}

func waitForStatus(t *testing.T, repo catalog.Repository, id, want string) *catalog.Job {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		job, err := repo.GetJob(context.Background(), id)
		if err != nil {
			t.Fatal(err)
		}
		if job != nil && job.Status == want {
			return job
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("job %s never reached status %q", id, want)
	return nil
}

func TestManagerRunsSubmittedJob(t *testing.T) {
	f := newManagerFixture(t)

	job, err := f.manager.Submit(context.Background(), f.request(t, 2))
	if err != nil {
		t.Fatal(err)
	}
	if job.Status != catalog.JobStatusPending || job.ClipCount != 2 {
		t.Errorf("submitted job = %+v", job)
	}

	done := waitForStatus(t, f.repo, job.ID, catalog.JobStatusCompleted)
	if done.Progress != 100 {
		t.Errorf("final progress = %d, want 100", done.Progress)
	}
	if done.Error != "" {
		t.Errorf("completed job carries error %q", done.Error)
	}
	if f.runner.callCount() != 3 {
		t.Errorf("runner calls = %d, want 2 clips + concat", f.runner.callCount())
	}
}

func TestManagerRejectsInvalidRequest(t *testing.T) {
	f := newManagerFixture(t)

	_, err := f.manager.Submit(context.Background(), Request{Resolution: "720p"})
	var ire *InvalidRequestError
	if !errors.As(err, &ire) {
		t.Fatalf("err = %v, want InvalidRequestError", err)
	}

	jobs, err := f.repo.ListJobs(context.Background(), 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(jobs) != 0 {
		t.Errorf("invalid request persisted %d jobs", len(jobs))
	}
}

func TestManagerRecordsFailure(t *testing.T) {
	f := newManagerFixture(t)
	f.runner.runFn = func(ctx context.Context, spec ffmpeg.Spec, window ffmpeg.Window, total float64, emit func(int)) error {
		return &ffmpeg.ExecError{ExitCode: 1, Stderr: "Invalid data found when processing input"}
	}

	job, err := f.manager.Submit(context.Background(), f.request(t, 2))
	if err != nil {
		t.Fatal(err)
	}

	failed := waitForStatus(t, f.repo, job.ID, catalog.JobStatusFailed)
	if !strings.Contains(failed.Error, "clip 1/2") {
		t.Errorf("failure message %q should carry the clip position", failed.Error)
	}
}

func TestManagerCancelRunning(t *testing.T) {
	f := newManagerFixture(t)
	started := make(chan struct{})
	f.runner.runFn = func(ctx context.Context, spec ffmpeg.Spec, window ffmpeg.Window, total float64, emit func(int)) error {
		close(started)
		<-ctx.Done()
		return ctx.Err()
	}

	job, err := f.manager.Submit(context.Background(), f.request(t, 1))
	if err != nil {
		t.Fatal(err)
	}
	<-started

	if err := f.manager.Cancel(context.Background(), job.ID); err != nil {
		t.Fatal(err)
	}
	canceled := waitForStatus(t, f.repo, job.ID, catalog.JobStatusCanceled)
	if canceled.Error != "export canceled" {
		t.Errorf("canceled job error = %q", canceled.Error)
	}
}

func TestManagerCancelQueued(t *testing.T) {
	f := newManagerFixture(t)
	release := make(chan struct{})
	f.runner.runFn = func(ctx context.Context, spec ffmpeg.Spec, window ffmpeg.Window, total float64, emit func(int)) error {
		select {
		case <-release:
		case <-ctx.Done():
			return ctx.Err()
		}
		return os.WriteFile(spec.Output, []byte("clip"), 0o644)
	}

	first, err := f.manager.Submit(context.Background(), f.request(t, 1))
	if err != nil {
		t.Fatal(err)
	}
	waitForStatus(t, f.repo, first.ID, catalog.JobStatusRunning)

	queued, err := f.manager.Submit(context.Background(), f.request(t, 1))
	if err != nil {
		t.Fatal(err)
	}
	if err := f.manager.Cancel(context.Background(), queued.ID); err != nil {
		t.Fatal(err)
	}
	canceled := waitForStatus(t, f.repo, queued.ID, catalog.JobStatusCanceled)
	if canceled.Error != "canceled before start" {
		t.Errorf("canceled job error = %q", canceled.Error)
	}

	// The worker must skip the canceled job once it dequeues it.
	close(release)
	waitForStatus(t, f.repo, first.ID, catalog.JobStatusCompleted)
	time.Sleep(50 * time.Millisecond)
	still, err := f.repo.GetJob(context.Background(), queued.ID)
	if err != nil {
		t.Fatal(err)
	}
	if still.Status != catalog.JobStatusCanceled {
		t.Errorf("skipped job status = %q", still.Status)
	}
}

func TestManagerCancelErrors(t *testing.T) {
	f := newManagerFixture(t)

	if err := f.manager.Cancel(context.Background(), "no-such-job"); !errors.Is(err, ErrJobNotFound) {
		t.Errorf("unknown id err = %v, want ErrJobNotFound", err)
	}

	job, err := f.manager.Submit(context.Background(), f.request(t, 1))
	if err != nil {
		t.Fatal(err)
	}
	waitForStatus(t, f.repo, job.ID, catalog.JobStatusCompleted)
	if err := f.manager.Cancel(context.Background(), job.ID); !errors.Is(err, ErrJobFinished) {
		t.Errorf("finished job err = %v, want ErrJobFinished", err)
	}
}

func TestManagerSubscribeSeesProgressAndClose(t *testing.T) {
	f := newManagerFixture(t)
	release := make(chan struct{})
	f.runner.runFn = func(ctx context.Context, spec ffmpeg.Spec, window ffmpeg.Window, total float64, emit func(int)) error {
		<-release
		emit(50)
		if err := os.WriteFile(spec.Output, []byte("clip"), 0o644); err != nil {
			return err
		}
		emit(100)
		return nil
	}

	job, err := f.manager.Submit(context.Background(), f.request(t, 1))
	if err != nil {
		t.Fatal(err)
	}
	ch := f.manager.Subscribe(job.ID)
	defer f.manager.Unsubscribe(job.ID, ch)
	close(release)

	var got []int
	for p := range ch {
		got = append(got, p)
	}
	if len(got) != 2 || got[0] != 50 || got[1] != 100 {
		t.Errorf("subscriber saw %v, want [50 100]", got)
	}

	final, err := f.repo.GetJob(context.Background(), job.ID)
	if err != nil {
		t.Fatal(err)
	}
	if final.Status != catalog.JobStatusCompleted {
		t.Errorf("job status after close = %q, channel close must follow the final write", final.Status)
	}
}
