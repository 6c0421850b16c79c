package persona

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// Errors reported by the catalog.
var (
	// ErrNotFound means no card exists under the requested name.
	ErrNotFound = errors.New("persona not found")

	// ErrMalformed means the card exists but cannot be parsed into the
	// required shape.
	ErrMalformed = errors.New("persona card malformed")
)

// Catalog loads persona cards from a directory (one <name>.json per card)
// and caches them for the process lifetime. Concurrent first loads of the
// same name are collapsed into a single read; a failed load is not cached,
// so a later request retries.
type Catalog struct {
	dir    string
	logger *slog.Logger

	mu    sync.Mutex
	cache map[string]*loadResult
}

type loadResult struct {
	once    sync.Once
	persona *Persona
	err     error
}

// NewCatalog creates a catalog over the given directory.
func NewCatalog(dir string, logger *slog.Logger) (*Catalog, error) {
	if logger == nil {
		logger = slog.Default()
	}
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("persona directory %q: %w", dir, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("persona path %q is not a directory", dir)
	}
	return &Catalog{
		dir:    dir,
		logger: logger.With("component", "persona"),
		cache:  make(map[string]*loadResult),
	}, nil
}

// Load returns the persona stored under name, reading it from disk at most
// once per process run. Fails with ErrNotFound or ErrMalformed.
func (c *Catalog) Load(name string) (*Persona, error) {
	c.mu.Lock()
	res, ok := c.cache[name]
	if !ok {
		res = &loadResult{}
		c.cache[name] = res
	}
	c.mu.Unlock()

	res.once.Do(func() {
		res.persona, res.err = c.read(name)
		if res.err != nil {
			// Drop the failed entry so the next Load can retry.
			c.mu.Lock()
			delete(c.cache, name)
			c.mu.Unlock()
		} else {
			c.logger.Info("persona loaded", "persona", name)
		}
	})

	return res.persona, res.err
}

// Invalidate drops a cached persona so the next Load re-reads the card.
// Not called by the pipeline itself; management surface only.
func (c *Catalog) Invalidate(name string) {
	c.mu.Lock()
	delete(c.cache, name)
	c.mu.Unlock()
}

// List returns the names of all cards present in the directory, sorted by
// the filesystem's iteration order.
func (c *Catalog) List() ([]string, error) {
	entries, err := os.ReadDir(c.dir)
	if err != nil {
		return nil, fmt.Errorf("listing personas: %w", err)
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		names = append(names, strings.TrimSuffix(e.Name(), ".json"))
	}
	return names, nil
}

// read loads and validates one card from disk.
func (c *Catalog) read(name string) (*Persona, error) {
	path := filepath.Join(c.dir, name+".json")

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %q", ErrNotFound, name)
		}
		return nil, fmt.Errorf("reading persona card %q: %w", name, err)
	}

	var p Persona
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("%w: %q: %v", ErrMalformed, name, err)
	}
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %q: %v", ErrMalformed, name, err)
	}

	return &p, nil
}
