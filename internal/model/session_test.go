package model

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/voxbookapp/voxbook-server/internal/errors"
)

type fakeBackend struct {
	mu        sync.Mutex
	loaded    bool
	loads     int
	releases  int
	generates int

	loadDelay time.Duration
	loadErr   error
	reply     string

	inFlight atomic.Int32
	overlap  atomic.Bool
}

func (f *fakeBackend) Name() string { return "fake" }

func (f *fakeBackend) IsLoaded() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.loaded
}

func (f *fakeBackend) Load(_ context.Context) error {
	time.Sleep(f.loadDelay)
	f.mu.Lock()
	defer f.mu.Unlock()
	f.loads++
	if f.loadErr != nil {
		return f.loadErr
	}
	f.loaded = true
	return nil
}

func (f *fakeBackend) Generate(_ context.Context, _ GenerateRequest) (string, error) {
	if f.inFlight.Add(1) > 1 {
		f.overlap.Store(true)
	}
	time.Sleep(5 * time.Millisecond)
	f.inFlight.Add(-1)

	f.mu.Lock()
	defer f.mu.Unlock()
	f.generates++
	return f.reply, nil
}

func (f *fakeBackend) Release(_ context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.releases++
	f.loaded = false
	return nil
}

func (f *fakeBackend) counts() (loads, releases, generates int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.loads, f.releases, f.generates
}

func TestSession_Acquire_DeduplicatesLoads(t *testing.T) {
	backend := &fakeBackend{loadDelay: 30 * time.Millisecond}
	session := NewSession(backend, nil, testLogger())

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := session.Acquire(context.Background()); err != nil {
				t.Errorf("Acquire() failed: %v", err)
			}
		}()
	}
	wg.Wait()

	loads, _, _ := backend.counts()
	if loads != 1 {
		t.Errorf("concurrent acquires triggered %d loads, want 1", loads)
	}
}

func TestSession_Release_OnlyWhenLastHolderLeaves(t *testing.T) {
	backend := &fakeBackend{}
	session := NewSession(backend, nil, testLogger())

	ctx := context.Background()
	if err := session.Acquire(ctx); err != nil {
		t.Fatalf("Acquire() failed: %v", err)
	}
	if err := session.Acquire(ctx); err != nil {
		t.Fatalf("Acquire() failed: %v", err)
	}

	if err := session.Release(ctx); err != nil {
		t.Fatalf("Release() failed: %v", err)
	}
	if _, releases, _ := backend.counts(); releases != 0 {
		t.Errorf("backend released with a holder remaining (%d releases)", releases)
	}

	if err := session.Release(ctx); err != nil {
		t.Fatalf("Release() failed: %v", err)
	}
	if _, releases, _ := backend.counts(); releases != 1 {
		t.Errorf("backend releases = %d, want 1", releases)
	}
}

func TestSession_Acquire_FailedLoadRegistersNoInterest(t *testing.T) {
	backend := &fakeBackend{loadErr: errors.ModelUnavailable("down")}
	session := NewSession(backend, nil, testLogger())

	if err := session.Acquire(context.Background()); err == nil {
		t.Fatal("Acquire() should surface the load failure")
	}

	// No holder was registered, so a release goes straight to the backend.
	if err := session.Release(context.Background()); err != nil {
		t.Fatalf("Release() failed: %v", err)
	}
	if _, releases, _ := backend.counts(); releases != 1 {
		t.Errorf("releases = %d, want 1", releases)
	}
}

func TestSession_Generate_Serializes(t *testing.T) {
	backend := &fakeBackend{loaded: true, reply: "ok"}
	session := NewSession(backend, nil, testLogger())

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := session.Generate(context.Background(), GenerateRequest{Prompt: "p"}); err != nil {
				t.Errorf("Generate() failed: %v", err)
			}
		}()
	}
	wg.Wait()

	if backend.overlap.Load() {
		t.Error("two inferences ran concurrently")
	}
	if _, _, generates := backend.counts(); generates != 4 {
		t.Errorf("generates = %d, want 4", generates)
	}
}

func TestSession_Generate_CancelledBeforeInference(t *testing.T) {
	backend := &fakeBackend{loaded: true, reply: "ok"}
	session := NewSession(backend, nil, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := session.Generate(ctx, GenerateRequest{Prompt: "p"})
	if err == nil {
		t.Fatal("expected an error")
	}
	if code := errors.CodeOf(err); code != errors.CodeCancelled {
		t.Errorf("error code = %s, want %s", code, errors.CodeCancelled)
	}
	if _, _, generates := backend.counts(); generates != 0 {
		t.Errorf("backend was called %d times after cancellation", generates)
	}
}

func TestSession_Generate_LoadsOnDemand(t *testing.T) {
	backend := &fakeBackend{reply: "ok"}
	session := NewSession(backend, nil, testLogger())

	out, err := session.Generate(context.Background(), GenerateRequest{Prompt: "p"})
	if err != nil {
		t.Fatalf("Generate() failed: %v", err)
	}
	if out != "ok" {
		t.Errorf("output = %q", out)
	}
	if loads, _, _ := backend.counts(); loads != 1 {
		t.Errorf("loads = %d, want 1", loads)
	}
}
