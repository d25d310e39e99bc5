// Package workspaces implements persisted CRUD for named capability
// bundles (spec.md §3's Workspace type), stored as one YAML file per
// slug under <vault>/.parachute/workspaces/<slug>/config.yaml, with
// paths built by path/filepath under the given vault root. Grounded on
// the teacher's config-file-per-resource layout (its skills/agents
// directories).
package workspaces

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/haasonsaas/companion/pkg/models"
)

var ErrNotFound = errors.New("workspace not found")

var slugInvalid = regexp.MustCompile(`[^a-z0-9-]+`)

// Slugify lowercases, replaces runs of non-[a-z0-9-] with "-", and
// trims leading/trailing dashes.
func Slugify(name string) string {
	lower := strings.ToLower(strings.TrimSpace(name))
	slug := slugInvalid.ReplaceAllString(lower, "-")
	return strings.Trim(slug, "-")
}

// Store is the persisted C-adjacent workspace CRUD contract consumed
// by the HTTP surface and by orchestrator.WorkspaceResolver.
type Store struct {
	mu   sync.RWMutex
	root string // <vault>/.parachute/workspaces
	now  func() time.Time
}

// New constructs a Store rooted at <vaultRoot>/.parachute/workspaces.
func New(vaultRoot string) *Store {
	return &Store{root: filepath.Join(vaultRoot, ".parachute", "workspaces"), now: time.Now}
}

func (s *Store) configPath(slug string) string {
	return filepath.Join(s.root, slug, "config.yaml")
}

// Get implements orchestrator.WorkspaceResolver.
func (s *Store) Get(ctx context.Context, slug string) (*models.Workspace, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.load(slug)
}

func (s *Store) load(slug string) (*models.Workspace, error) {
	data, err := os.ReadFile(s.configPath(slug))
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var ws models.Workspace
	if err := yaml.Unmarshal(data, &ws); err != nil {
		return nil, fmt.Errorf("parse workspace %q config: %w", slug, err)
	}
	ws.Slug = slug
	return &ws, nil
}

// List returns every workspace, sorted by slug.
func (s *Store) List(ctx context.Context) ([]*models.Workspace, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries, err := os.ReadDir(s.root)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var out []*models.Workspace
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		ws, err := s.load(e.Name())
		if err != nil {
			continue
		}
		out = append(out, ws)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Slug < out[j].Slug })
	return out, nil
}

// Create writes a new workspace config, deriving its slug from Name.
// Fails if a workspace with the same slug already exists.
func (s *Store) Create(ctx context.Context, ws models.Workspace) (*models.Workspace, error) {
	slug := Slugify(ws.Name)
	if slug == "" {
		return nil, fmt.Errorf("workspace name %q yields an empty slug", ws.Name)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.load(slug); err == nil {
		return nil, fmt.Errorf("workspace %q already exists", slug)
	}

	now := s.now()
	ws.Slug = slug
	ws.CreatedAt = now
	ws.UpdatedAt = now
	if err := s.write(slug, ws); err != nil {
		return nil, err
	}
	return &ws, nil
}

// Update replaces an existing workspace's config, preserving CreatedAt.
func (s *Store) Update(ctx context.Context, slug string, ws models.Workspace) (*models.Workspace, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, err := s.load(slug)
	if err != nil {
		return nil, err
	}
	ws.Slug = slug
	ws.CreatedAt = existing.CreatedAt
	ws.UpdatedAt = s.now()
	if err := s.write(slug, ws); err != nil {
		return nil, err
	}
	return &ws, nil
}

// Delete removes a workspace's config directory entirely.
func (s *Store) Delete(ctx context.Context, slug string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.load(slug); err != nil {
		return err
	}
	return os.RemoveAll(filepath.Join(s.root, slug))
}

func (s *Store) write(slug string, ws models.Workspace) error {
	dir := filepath.Join(s.root, slug)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}
	data, err := yaml.Marshal(ws)
	if err != nil {
		return err
	}
	return os.WriteFile(s.configPath(slug), data, 0o600)
}
