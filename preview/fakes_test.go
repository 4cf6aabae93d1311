package preview

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

type memStore struct {
	mu        sync.Mutex
	converted map[string]string
	pages     map[string][]string
	saves     int
}

func newMemStore() *memStore {
	return &memStore{converted: map[string]string{}, pages: map[string][]string{}}
}

func (s *memStore) LookupConverted(_ context.Context, key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rel, ok := s.converted[key]
	return rel, ok, nil
}

func (s *memStore) SaveConverted(_ context.Context, key, rel string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.converted[key] = rel
	s.saves++
	return nil
}

func (s *memStore) DeleteConverted(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.converted, key)
	return nil
}

func (s *memStore) LookupPages(_ context.Context, key string) ([]string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rels, ok := s.pages[key]
	return rels, ok, nil
}

func (s *memStore) SavePages(_ context.Context, key string, rels []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pages[key] = rels
	return nil
}

func (s *memStore) DeletePages(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.pages, key)
	return nil
}

func (s *memStore) saveCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saves
}

type fakeGate struct {
	protected bool
	password  string
}

func (g *fakeGate) IsProtected(string) bool { return g.protected }

func (g *fakeGate) IsCompatible(_ string, credential string) bool {
	return !g.protected || credential == g.password
}

type fakeFetcher struct {
	dir   string
	calls atomic.Int32
	err   error
	last  atomic.Value
}

func (f *fakeFetcher) Fetch(_ context.Context, req DocumentRequest) (string, error) {
	f.calls.Add(1)
	if f.err != nil {
		return "", f.err
	}
	p := filepath.Join(f.dir, "source-"+req.Name)
	if err := os.WriteFile(p, []byte("office document"), 0644); err != nil {
		return "", err
	}
	f.last.Store(p)
	return p, nil
}

func (f *fakeFetcher) lastPath() string {
	p, _ := f.last.Load().(string)
	return p
}

type fakeDocuments struct {
	calls    atomic.Int32
	password string // credential the engine insists on, empty when unprotected
	err      error
	delay    time.Duration
	started  chan struct{} // receives one value per call when set
	release  chan struct{} // calls block until it is closed when set
	lastOpts ConvertOptions
	seen     []string // credential of each call
	mu       sync.Mutex
}

func (d *fakeDocuments) Convert(_ context.Context, src, dest string, opts ConvertOptions) error {
	d.calls.Add(1)
	d.mu.Lock()
	d.lastOpts = opts
	d.seen = append(d.seen, opts.Credential)
	d.mu.Unlock()
	if d.started != nil {
		d.started <- struct{}{}
	}
	if d.release != nil {
		<-d.release
	}
	if d.delay > 0 {
		time.Sleep(d.delay)
	}
	if d.err != nil {
		return d.err
	}
	if d.password != "" && opts.Credential != d.password {
		return NewEngineError("fake", ErrorKindSecurity, "document is encrypted", nil)
	}
	if _, err := os.Stat(src); err != nil {
		return NewEngineError("fake", ErrorKindIO, "cannot read source", err)
	}
	return os.WriteFile(dest, []byte("%PDF-1.7 converted"), 0644)
}

func (d *fakeDocuments) credentials() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.seen...)
}

type fakeImages struct {
	calls atomic.Int32
	pages int
	err   error
}

func (f *fakeImages) RenderPages(_ context.Context, pdfPath, destDir string) ([]string, error) {
	f.calls.Add(1)
	if f.err != nil {
		return nil, f.err
	}
	if _, err := os.Stat(pdfPath); err != nil {
		return nil, err
	}
	paths := make([]string, 0, f.pages)
	for i := 0; i < f.pages; i++ {
		p := filepath.Join(destDir, fmt.Sprintf("%d.jpg", i))
		if err := os.WriteFile(p, []byte("jpeg"), 0644); err != nil {
			return nil, err
		}
		paths = append(paths, p)
	}
	return paths, nil
}

type harness struct {
	orchestrator *Orchestrator
	cache        *ConversionCache
	store        *memStore
	gate         *fakeGate
	fetcher      *fakeFetcher
	documents    *fakeDocuments
	images       *fakeImages
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		store:     newMemStore(),
		gate:      &fakeGate{},
		fetcher:   &fakeFetcher{dir: t.TempDir()},
		documents: &fakeDocuments{},
		images:    &fakeImages{pages: 3},
	}
	cache, err := NewConversionCache(h.store, t.TempDir(), "/files")
	if err != nil {
		t.Fatalf("Failed to create cache: %v", err)
	}
	h.cache = cache
	o, err := NewOrchestrator(Options{
		Cache:     cache,
		Gate:      h.gate,
		Fetcher:   h.fetcher,
		Documents: h.documents,
		Images:    h.images,
	})
	if err != nil {
		t.Fatalf("Failed to create orchestrator: %v", err)
	}
	h.orchestrator = o
	return h
}

func (h *harness) resetCounts() {
	h.fetcher.calls.Store(0)
	h.documents.calls.Store(0)
	h.images.calls.Store(0)
}

var errBoom = errors.New("boom")

// cachingPolicy keeps sources so tests can inspect them
var cachingPolicy = Policy{CacheEnabled: true}
