package configrepo

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/vitaminmoo/ledctl/internal/events"
	"github.com/vitaminmoo/ledctl/internal/store"
)

//go:embed snapshot.schema.json
var schemaJSON []byte

const schemaURL = "snapshot.schema.json"

var (
	schemaOnce sync.Once
	schema     *jsonschema.Schema
	schemaErr  error
)

func compiledSchema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		c := jsonschema.NewCompiler()
		if err := c.AddResource(schemaURL, bytes.NewReader(schemaJSON)); err != nil {
			schemaErr = err
			return
		}
		schema, schemaErr = c.Compile(schemaURL)
	})
	return schema, schemaErr
}

// Repository owns the last committed snapshot for one device.
type Repository struct {
	mu      sync.Mutex
	current Snapshot
	dirty   bool

	cache   *store.ConfigCache
	log     zerolog.Logger
	updates events.Feed[Snapshot]
}

// New returns a repository holding Defaults. cache may be nil, in which case
// nothing is persisted.
func New(cache *store.ConfigCache, logger zerolog.Logger) *Repository {
	return &Repository{current: Defaults(), cache: cache, log: logger}
}

// Load replaces current with the cached snapshot, repairing it if needed.
// A missing cache entry keeps the defaults.
func (r *Repository) Load() (Snapshot, error) {
	if r.cache == nil {
		return r.Current(), nil
	}
	data, err := r.cache.Load()
	if err != nil {
		return r.Current(), fmt.Errorf("failed to load config cache: %w", err)
	}
	if data == nil {
		return r.Current(), nil
	}

	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		r.log.Warn().Err(err).Msg("config cache is not valid JSON, using defaults")
		raw = map[string]any{}
	}
	if sch, err := compiledSchema(); err != nil {
		r.log.Error().Err(err).Msg("config schema failed to compile")
	} else if err := sch.Validate(any(raw)); err != nil {
		r.log.Warn().Err(err).Msg("config cache failed schema check")
	}
	s, repairs := Repair(raw)
	for _, rep := range repairs {
		r.log.Debug().Str("repair", rep).Msg("repaired cached config")
	}

	r.mu.Lock()
	r.current = s
	r.dirty = false
	r.mu.Unlock()
	r.updates.Publish(s)
	return s, nil
}

// Current returns the last committed snapshot.
func (r *Repository) Current() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.current
}

// Dirty reports whether Update has changed current since the last commit.
func (r *Repository) Dirty() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.dirty
}

// Update merges p into current, marks the repository dirty and returns the
// merged snapshot.
func (r *Repository) Update(p Partial) Snapshot {
	r.mu.Lock()
	merged := p.Apply(r.current)
	r.dirty = r.dirty || merged != r.current
	r.current = merged
	r.mu.Unlock()
	r.updates.Publish(merged)
	return merged
}

// Commit makes s the current snapshot and persists it. The in-memory value
// is replaced even if persisting fails, since the peripheral already holds
// it; the persistence error is returned.
func (r *Repository) Commit(s Snapshot) error {
	s = s.Clamp()
	r.mu.Lock()
	r.current = s
	r.dirty = false
	r.mu.Unlock()
	r.updates.Publish(s)

	if r.cache == nil {
		return nil
	}
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := r.cache.Save(data); err != nil {
		return fmt.Errorf("failed to save config cache: %w", err)
	}
	return nil
}

// OnUpdate subscribes to every change of current.
func (r *Repository) OnUpdate(fn func(Snapshot)) *events.Subscription {
	return r.updates.Subscribe(fn)
}
