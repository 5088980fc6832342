package prompts

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"path"
	"regexp"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"cais-backend/internal/shared/storage/object"
	"cais-backend/internal/shared/telemetry"
	"cais-backend/internal/shared/util"
)

var labelPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]*$`)

// Registry holds the append-only prompt version lineages and the active
// pointer for each task. The active pointer is read lock-free on the
// classification hot path; version bookkeeping goes through the mutex.
type Registry struct {
	store object.ObjectStore

	mu       sync.RWMutex
	versions map[Task]map[string]Version

	active map[Task]*atomic.Pointer[Version]
}

// NewRegistry creates an empty registry. The store may be nil for
// memory-only operation.
func NewRegistry(store object.ObjectStore) *Registry {
	r := &Registry{
		store:    store,
		versions: make(map[Task]map[string]Version),
		active:   make(map[Task]*atomic.Pointer[Version]),
	}
	for _, task := range Tasks() {
		r.versions[task] = make(map[string]Version)
		r.active[task] = &atomic.Pointer[Version]{}
	}
	return r
}

// Load restores versions and active pointers from the object store, then
// seeds any task whose lineage is still empty with the built-in base prompt.
func (r *Registry) Load(ctx context.Context) error {
	if r.store != nil {
		for _, task := range Tasks() {
			if err := r.loadTask(ctx, task); err != nil {
				return fmt.Errorf("load prompts task=%s: %w", task, err)
			}
		}
	}

	for _, task := range Tasks() {
		r.mu.RLock()
		empty := len(r.versions[task]) == 0
		r.mu.RUnlock()
		if !empty {
			continue
		}
		seed := seedVersion(task)
		if err := r.Create(ctx, seed); err != nil {
			return fmt.Errorf("seed prompts task=%s: %w", task, err)
		}
		if err := r.Activate(ctx, task, seed.Label); err != nil {
			return fmt.Errorf("activate seed task=%s: %w", task, err)
		}
		telemetry.Info("prompt lineage seeded", map[string]any{"task": string(task), "label": seed.Label})
	}
	return nil
}

func (r *Registry) loadTask(ctx context.Context, task Task) error {
	prefix := path.Join("prompts", string(task)) + "/"
	keys, err := r.store.List(ctx, prefix)
	if err != nil {
		return err
	}

	activeLabel := ""
	for _, key := range keys {
		name := strings.TrimPrefix(key, prefix)
		if name == "active" {
			label, err := r.readAll(ctx, key)
			if err != nil {
				return err
			}
			activeLabel = strings.TrimSpace(string(label))
			continue
		}
		if !strings.HasSuffix(name, ".json") {
			continue
		}
		raw, err := r.readAll(ctx, key)
		if err != nil {
			return err
		}
		var v Version
		if err := json.Unmarshal(raw, &v); err != nil {
			return fmt.Errorf("decode %s: %w", key, err)
		}
		if v.Task != task || v.Label == "" {
			return fmt.Errorf("inconsistent version record at %s", key)
		}
		r.mu.Lock()
		r.versions[task][v.Label] = v
		r.mu.Unlock()
	}

	if activeLabel != "" {
		r.mu.RLock()
		v, ok := r.versions[task][activeLabel]
		r.mu.RUnlock()
		if !ok {
			return fmt.Errorf("%w: active label %q", ErrUnknownVersion, activeLabel)
		}
		r.active[task].Store(&v)
	}
	return nil
}

func (r *Registry) readAll(ctx context.Context, key string) ([]byte, error) {
	rc, err := r.store.Open(ctx, key)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}

// Create registers a new version. Lineages are append-only, existing labels
// are never overwritten.
func (r *Registry) Create(ctx context.Context, v Version) error {
	if _, err := ParseTask(string(v.Task)); err != nil {
		return err
	}
	if !labelPattern.MatchString(v.Label) {
		return fmt.Errorf("invalid version label %q", v.Label)
	}
	if strings.TrimSpace(v.Template) == "" {
		return fmt.Errorf("version template is empty")
	}

	r.mu.RLock()
	_, exists := r.versions[v.Task][v.Label]
	r.mu.RUnlock()
	if exists {
		return fmt.Errorf("%w: %s/%s", ErrVersionExists, v.Task, v.Label)
	}

	// Persist before inserting, so a failed store write never leaves a label
	// taken in memory that would be lost on restart.
	if r.store != nil {
		raw, err := json.Marshal(v)
		if err != nil {
			return err
		}
		key := path.Join("prompts", string(v.Task), v.Label+".json")
		if _, err := r.store.SaveWithKey(ctx, key, "application/json", strings.NewReader(string(raw))); err != nil {
			return fmt.Errorf("persist version %s: %w", key, err)
		}
	}

	r.mu.Lock()
	if _, exists := r.versions[v.Task][v.Label]; exists {
		r.mu.Unlock()
		return fmt.Errorf("%w: %s/%s", ErrVersionExists, v.Task, v.Label)
	}
	r.versions[v.Task][v.Label] = v
	r.mu.Unlock()

	telemetry.Info("prompt version created", map[string]any{
		"task":        string(v.Task),
		"label":       v.Label,
		"template_fp": util.Fingerprint(v.Template),
	})
	return nil
}

// Activate atomically repoints the task's active version. In-flight
// classifications keep the version they resolved at start.
func (r *Registry) Activate(ctx context.Context, task Task, label string) error {
	r.mu.RLock()
	v, ok := r.versions[task][label]
	r.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %s/%s", ErrUnknownVersion, task, label)
	}

	if r.store != nil {
		key := path.Join("prompts", string(task), "active")
		if _, err := r.store.SaveWithKey(ctx, key, "text/plain", strings.NewReader(label)); err != nil {
			return fmt.Errorf("persist active pointer %s: %w", key, err)
		}
	}

	r.active[task].Store(&v)
	telemetry.Info("prompt activated", map[string]any{"task": string(task), "label": label})
	return nil
}

// Active returns the currently active version for a task.
func (r *Registry) Active(task Task) (Version, error) {
	ptr, ok := r.active[task]
	if !ok {
		return Version{}, fmt.Errorf("unknown task %q", task)
	}
	v := ptr.Load()
	if v == nil {
		return Version{}, fmt.Errorf("%w: no active version for task %s", ErrUnknownVersion, task)
	}
	return *v, nil
}

// Get returns a specific version by label.
func (r *Registry) Get(task Task, label string) (Version, error) {
	r.mu.RLock()
	v, ok := r.versions[task][label]
	r.mu.RUnlock()
	if !ok {
		return Version{}, fmt.Errorf("%w: %s/%s", ErrUnknownVersion, task, label)
	}
	return v, nil
}

// List returns all versions of a task ordered by creation time, then label.
func (r *Registry) List(task Task) []Version {
	r.mu.RLock()
	out := make([]Version, 0, len(r.versions[task]))
	for _, v := range r.versions[task] {
		out = append(out, v)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].Label < out[j].Label
	})
	return out
}

// SetAccuracy records a measured holdout accuracy on an existing version.
func (r *Registry) SetAccuracy(ctx context.Context, task Task, label string, accuracy float64) error {
	r.mu.Lock()
	v, ok := r.versions[task][label]
	if !ok {
		r.mu.Unlock()
		return fmt.Errorf("%w: %s/%s", ErrUnknownVersion, task, label)
	}
	v.Accuracy = &accuracy
	r.versions[task][label] = v
	r.mu.Unlock()

	if active := r.active[task].Load(); active != nil && active.Label == label {
		r.active[task].Store(&v)
	}

	if r.store == nil {
		return nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	key := path.Join("prompts", string(task), label+".json")
	if _, err := r.store.SaveWithKey(ctx, key, "application/json", strings.NewReader(string(raw))); err != nil {
		return fmt.Errorf("persist version %s: %w", key, err)
	}
	return nil
}
