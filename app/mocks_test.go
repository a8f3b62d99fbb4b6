package app

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/artpar/fetchvault/adapters/memory"
	"github.com/artpar/fetchvault/adapters/metrics"
	"github.com/artpar/fetchvault/domain/batch"
	"github.com/artpar/fetchvault/domain/billing"
	"github.com/artpar/fetchvault/domain/fetch"
	"github.com/prometheus/client_golang/prometheus"
)

// newTestCollector returns a collector on a private registry so tests
// never collide on the default one.
func newTestCollector() *metrics.Collector {
	return metrics.NewWithRegistry(prometheus.NewRegistry())
}

// stubStarter records StartBatch calls instead of processing.
type stubStarter struct {
	mu  sync.Mutex
	ids []string
}

func (s *stubStarter) StartBatch(batchID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ids = append(s.ids, batchID)
}

func (s *stubStarter) started() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.ids...)
}

// stubFetcher fakes the external download tool. The default behavior
// writes a small file named after the item and reports full progress.
type stubFetcher struct {
	mu    sync.Mutex
	calls int
	fn    func(ctx context.Context, req fetch.Request, outputDir string, onProgress func(float64)) (string, error)
}

func (f *stubFetcher) Fetch(ctx context.Context, req fetch.Request, outputDir string, onProgress func(float64)) (string, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()

	if f.fn != nil {
		return f.fn(ctx, req, outputDir, onProgress)
	}
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return "", err
	}
	path := filepath.Join(outputDir, req.TargetID+".mp4")
	if err := os.WriteFile(path, []byte("media bytes for "+req.URL), 0o644); err != nil {
		return "", err
	}
	onProgress(50)
	onProgress(100)
	return path, nil
}

func (f *stubFetcher) fetchCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// stubObjectStore records uploads and hands back synthetic references.
type stubObjectStore struct {
	mu   sync.Mutex
	puts map[string]string // key → localPath at upload time
	err  error
}

func newStubObjectStore() *stubObjectStore {
	return &stubObjectStore{puts: make(map[string]string)}
}

func (s *stubObjectStore) Put(ctx context.Context, key, localPath string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return "", s.err
	}
	s.puts[key] = localPath
	return "obj://" + key, nil
}

func (s *stubObjectStore) uploaded() map[string]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]string, len(s.puts))
	for k, v := range s.puts {
		out[k] = v
	}
	return out
}

// stubProvider returns a canned billing event or a verification error.
type stubProvider struct {
	event billing.Event
	err   error
}

func (p *stubProvider) Name() string { return "stub" }

func (p *stubProvider) ParseWebhook(payload []byte, signature string) (billing.Event, error) {
	if p.err != nil {
		return billing.Event{}, p.err
	}
	return p.event, nil
}

// failingBatchStore rejects every Create; reads pass through.
type failingBatchStore struct {
	*memory.BatchStore
}

func (s *failingBatchStore) Create(ctx context.Context, b batch.Batch) error {
	return errors.New("storage down")
}

func mustCreateBatch(t *testing.T, store *memory.BatchStore, b batch.Batch) {
	t.Helper()
	if err := store.Create(context.Background(), b); err != nil {
		t.Fatal(err)
	}
}
