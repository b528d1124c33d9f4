package loadtest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"sync"
	"time"
)

// ErrBaselineCorrupt is wrapped when a stored baseline cannot be decoded.
// Callers treat it as an absent baseline.
var ErrBaselineCorrupt = errors.New("baseline record is corrupt")

// BaselineStore persists one baseline per test suite. Load returns (nil, nil)
// when no baseline exists. Save fully replaces the suite's previous record.
type BaselineStore interface {
	Load(ctx context.Context, testSuite string) (*Baseline, error)
	Save(ctx context.Context, testSuite string, stats Statistics, resources *ResourceSummary, environment map[string]string) (*Baseline, error)
}

func newBaseline(testSuite string, stats Statistics, resources *ResourceSummary, environment map[string]string) *Baseline {
	env := make(map[string]string, len(environment))
	for k, v := range environment {
		env[k] = v
	}
	var res *ResourceSummary
	if resources != nil {
		r := *resources
		res = &r
	}
	return &Baseline{
		TestSuite:   testSuite,
		CreatedAt:   time.Now().UTC(),
		Statistics:  stats,
		Resources:   res,
		Environment: env,
	}
}

// FileBaselineStore keeps each suite's baseline in <dir>/<suite>.json.
type FileBaselineStore struct {
	dir string

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewFileBaselineStore creates a store rooted at dir. The directory is
// created on first save.
func NewFileBaselineStore(dir string) *FileBaselineStore {
	return &FileBaselineStore{
		dir:   dir,
		locks: make(map[string]*sync.Mutex),
	}
}

// Dir returns the store's root directory.
func (s *FileBaselineStore) Dir() string { return s.dir }

func (s *FileBaselineStore) lockFor(testSuite string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[testSuite]
	if !ok {
		l = &sync.Mutex{}
		s.locks[testSuite] = l
	}
	return l
}

var unsafeSuiteChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

func (s *FileBaselineStore) path(testSuite string) string {
	name := unsafeSuiteChars.ReplaceAllString(testSuite, "_")
	return filepath.Join(s.dir, name+".json")
}

// Load reads the suite's baseline. A missing file is not an error.
func (s *FileBaselineStore) Load(ctx context.Context, testSuite string) (*Baseline, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	l := s.lockFor(testSuite)
	l.Lock()
	defer l.Unlock()

	data, err := os.ReadFile(s.path(testSuite))
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read baseline: %w", err)
	}

	var baseline Baseline
	if err := json.Unmarshal(data, &baseline); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrBaselineCorrupt, testSuite, err)
	}
	if baseline.TestSuite == "" {
		baseline.TestSuite = testSuite
	}
	return &baseline, nil
}

// Save writes a new baseline record, replacing any previous one. The write
// goes through a temp file and rename so readers never see a partial record.
func (s *FileBaselineStore) Save(ctx context.Context, testSuite string, stats Statistics, resources *ResourceSummary, environment map[string]string) (*Baseline, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if testSuite == "" {
		return nil, fmt.Errorf("test suite name is required")
	}
	baseline := newBaseline(testSuite, stats, resources, environment)

	data, err := json.MarshalIndent(baseline, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal baseline: %w", err)
	}

	l := s.lockFor(testSuite)
	l.Lock()
	defer l.Unlock()

	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}
	tmp, err := os.CreateTemp(s.dir, ".baseline-*.tmp")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return nil, fmt.Errorf("failed to write baseline: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return nil, fmt.Errorf("failed to write baseline: %w", err)
	}
	if err := os.Rename(tmpName, s.path(testSuite)); err != nil {
		_ = os.Remove(tmpName)
		return nil, fmt.Errorf("failed to replace baseline: %w", err)
	}
	return baseline, nil
}

// MemoryBaselineStore is an in-process BaselineStore.
type MemoryBaselineStore struct {
	mu        sync.RWMutex
	baselines map[string]*Baseline
}

// NewMemoryBaselineStore creates an empty in-memory store.
func NewMemoryBaselineStore() *MemoryBaselineStore {
	return &MemoryBaselineStore{baselines: make(map[string]*Baseline)}
}

func (s *MemoryBaselineStore) Load(ctx context.Context, testSuite string) (*Baseline, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.baselines[testSuite]
	if !ok {
		return nil, nil
	}
	cp := *b
	return &cp, nil
}

func (s *MemoryBaselineStore) Save(ctx context.Context, testSuite string, stats Statistics, resources *ResourceSummary, environment map[string]string) (*Baseline, error) {
	baseline := newBaseline(testSuite, stats, resources, environment)
	s.mu.Lock()
	s.baselines[testSuite] = baseline
	s.mu.Unlock()
	cp := *baseline
	return &cp, nil
}

// CaptureEnvironment describes where a run executed.
func CaptureEnvironment(targetURL string) map[string]string {
	env := map[string]string{
		"go_version": runtime.Version(),
		"os":         runtime.GOOS,
		"arch":       runtime.GOARCH,
		"num_cpu":    fmt.Sprintf("%d", runtime.NumCPU()),
	}
	if host, err := os.Hostname(); err == nil {
		env["hostname"] = host
	}
	if targetURL != "" {
		env["target"] = targetURL
	}
	return env
}
