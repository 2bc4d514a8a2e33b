package config

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"

	"sift-agent/src/logger"
	"sift-agent/src/review"
)

// Resolver merges per-repository YAML overrides onto a base configuration.
// Results are cached and invalidated when files under the directory change.
type Resolver struct {
	dir    string
	base   review.Configuration
	logger logger.Logger

	mu    sync.RWMutex
	cache map[string]review.Configuration

	watcher *fsnotify.Watcher
	done    chan struct{}
}

// NewResolver creates a resolver over dir. An empty dir resolves every
// repository to base. Watching is best-effort; without it entries stay cached
// until Invalidate is called.
func NewResolver(dir string, base review.Configuration, log logger.Logger) (*Resolver, error) {
	r := &Resolver{
		dir:    dir,
		base:   base,
		logger: logger.OrSilent(log),
		cache:  make(map[string]review.Configuration),
		done:   make(chan struct{}),
	}
	if dir == "" {
		return r, nil
	}

	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to open repository config dir: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("repository config path %s is not a directory", dir)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		r.logger.Warn("[Config] File watching unavailable: %v", err)
		return r, nil
	}
	if err := r.watchTree(watcher); err != nil {
		watcher.Close()
		r.logger.Warn("[Config] File watching unavailable: %v", err)
		return r, nil
	}
	r.watcher = watcher
	go r.watch()
	return r, nil
}

// Resolve returns the configuration for owner/repo.
func (r *Resolver) Resolve(ctx context.Context, owner, repo string) (review.Configuration, error) {
	key := owner + "/" + repo

	r.mu.RLock()
	cfg, ok := r.cache[key]
	r.mu.RUnlock()
	if ok {
		return cfg, nil
	}

	cfg, err := r.load(owner, repo)
	if err != nil {
		return review.Configuration{}, err
	}

	r.mu.Lock()
	r.cache[key] = cfg
	r.mu.Unlock()
	return cfg, nil
}

// Invalidate drops the cached entry for owner/repo.
func (r *Resolver) Invalidate(owner, repo string) {
	r.mu.Lock()
	delete(r.cache, owner+"/"+repo)
	r.mu.Unlock()
}

// Close stops the file watcher.
func (r *Resolver) Close() error {
	if r.watcher == nil {
		return nil
	}
	select {
	case <-r.done:
		return nil
	default:
		close(r.done)
	}
	return r.watcher.Close()
}

func (r *Resolver) load(owner, repo string) (review.Configuration, error) {
	if r.dir == "" {
		return r.base, nil
	}
	if !validSegment(owner) || !validSegment(repo) {
		return review.Configuration{}, fmt.Errorf("invalid repository name %q/%q", owner, repo)
	}

	path := filepath.Join(r.dir, owner, repo+".yaml")
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return r.base, nil
	}
	if err != nil {
		return review.Configuration{}, fmt.Errorf("failed to read %s: %w", path, err)
	}

	var override review.Configuration
	if err := yaml.Unmarshal(data, &override); err != nil {
		return review.Configuration{}, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	if err := normalize(&override); err != nil {
		return review.Configuration{}, fmt.Errorf("invalid configuration in %s: %w", path, err)
	}
	return r.base.Merge(override), nil
}

// normalize resolves severity aliases in an override and checks ranges.
func normalize(c *review.Configuration) error {
	if v := c.ValidationSkipAbove; v != nil && (*v < 0 || *v > 1) {
		return fmt.Errorf("validation_skip_above must be within [0, 1], got %v", *v)
	}
	if c.SeverityThreshold != "" {
		sev, err := review.ParseSeverity(string(c.SeverityThreshold))
		if err != nil {
			return err
		}
		c.SeverityThreshold = sev
	}
	for i := range c.CustomRules {
		rule := &c.CustomRules[i]
		if rule.Name == "" || rule.Pattern == "" {
			return fmt.Errorf("custom rule %d needs a name and a pattern", i)
		}
		if rule.Severity == "" {
			rule.Severity = review.SeverityWarning
			continue
		}
		sev, err := review.ParseSeverity(string(rule.Severity))
		if err != nil {
			return fmt.Errorf("custom rule %s: %w", rule.Name, err)
		}
		rule.Severity = sev
	}
	return nil
}

func validSegment(s string) bool {
	return s != "" && s != "." && s != ".." && !strings.ContainsAny(s, `/\`)
}

// watchTree adds dir and its owner subdirectories; fsnotify is not recursive.
func (r *Resolver) watchTree(w *fsnotify.Watcher) error {
	if err := w.Add(r.dir); err != nil {
		return err
	}
	entries, err := os.ReadDir(r.dir)
	if err != nil {
		return err
	}
	for _, e := range entries {
		if e.IsDir() {
			if err := w.Add(filepath.Join(r.dir, e.Name())); err != nil {
				return err
			}
		}
	}
	return nil
}

func (r *Resolver) watch() {
	for {
		select {
		case <-r.done:
			return
		case ev, ok := <-r.watcher.Events:
			if !ok {
				return
			}
			r.handle(ev)
		case err, ok := <-r.watcher.Errors:
			if !ok {
				return
			}
			r.logger.Warn("[Config] Watch error: %v", err)
		}
	}
}

func (r *Resolver) handle(ev fsnotify.Event) {
	if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Remove) && !ev.Has(fsnotify.Rename) {
		return
	}
	rel, err := filepath.Rel(r.dir, ev.Name)
	if err != nil {
		return
	}
	parts := strings.Split(filepath.ToSlash(rel), "/")

	switch len(parts) {
	case 1:
		// An owner directory appeared or went away.
		owner := parts[0]
		if ev.Has(fsnotify.Create) {
			if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
				if err := r.watcher.Add(ev.Name); err != nil {
					r.logger.Warn("[Config] Failed to watch %s: %v", ev.Name, err)
				}
			}
		}
		r.invalidateOwner(owner)
	case 2:
		repo := strings.TrimSuffix(parts[1], ".yaml")
		if repo == parts[1] {
			return
		}
		r.Invalidate(parts[0], repo)
		r.logger.Debug("[Config] Reloading %s/%s after %s", parts[0], repo, ev.Op)
	}
}

func (r *Resolver) invalidateOwner(owner string) {
	prefix := owner + "/"
	r.mu.Lock()
	defer r.mu.Unlock()
	for key := range r.cache {
		if strings.HasPrefix(key, prefix) {
			delete(r.cache, key)
		}
	}
}
