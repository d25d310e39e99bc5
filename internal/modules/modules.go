// Package modules implements the module integrity check described in
// spec.md's supplemented features: every directory under
// <vault>/.modules/ is hashed and compared against a known-good record
// at <vault>/.parachute/module_hashes.json; a module whose code changed
// since it was last approved is reported as StatusModified until
// Approve records its new hash. Grounded on
// _examples/original_source/computer/parachute/core/module_loader.py's
// compute_module_hash/verify_module/approve_module flow; the dynamic
// Python-plugin-loading half of that file has no Go analogue here and
// is intentionally not ported (see DESIGN.md).
package modules

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"gopkg.in/yaml.v3"
)

// Status describes whether a discovered module's current hash matches
// its last-approved hash.
type Status string

const (
	StatusNew      Status = "new"
	StatusApproved Status = "approved"
	StatusModified Status = "modified"
)

// Info is one module's integrity report.
type Info struct {
	Name        string `json:"name"`
	Version     string `json:"version"`
	Status      Status `json:"status"`
	Description string `json:"description,omitempty"`
	Hash        string `json:"hash"`
}

type manifest struct {
	Name        string `yaml:"name"`
	Version     string `yaml:"version"`
	Description string `yaml:"description"`
}

// Loader scans and approves modules within one vault.
type Loader struct {
	modulesDir string
	hashFile   string
}

// New returns a Loader for <vaultRoot>/.modules, recording known-good
// hashes at <vaultRoot>/.parachute/module_hashes.json.
func New(vaultRoot string) *Loader {
	return &Loader{
		modulesDir: filepath.Join(vaultRoot, ".modules"),
		hashFile:   filepath.Join(vaultRoot, ".parachute", "module_hashes.json"),
	}
}

// ComputeHash hashes the contents of every regular file under moduleDir
// (manifest.yaml included), in sorted path order, so the result is
// independent of directory-iteration order.
func ComputeHash(moduleDir string) (string, error) {
	h := sha256.New()
	var paths []string
	err := filepath.WalkDir(moduleDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("walk module dir: %w", err)
	}
	sort.Strings(paths)
	for _, p := range paths {
		data, err := os.ReadFile(p)
		if err != nil {
			return "", fmt.Errorf("read %s: %w", p, err)
		}
		h.Write(data)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

func (l *Loader) loadKnownHashes() (map[string]string, error) {
	data, err := os.ReadFile(l.hashFile)
	if os.IsNotExist(err) {
		return map[string]string{}, nil
	}
	if err != nil {
		return nil, err
	}
	hashes := map[string]string{}
	if err := json.Unmarshal(data, &hashes); err != nil {
		return nil, fmt.Errorf("parse %s: %w", l.hashFile, err)
	}
	return hashes, nil
}

func (l *Loader) saveKnownHashes(hashes map[string]string) error {
	if err := os.MkdirAll(filepath.Dir(l.hashFile), 0o700); err != nil {
		return err
	}
	data, err := json.MarshalIndent(hashes, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(l.hashFile, data, 0o600)
}

// Scan reports the integrity status of every module directory,
// auto-approving (recording the hash of) any module seen for the first
// time — matching the original's "new module registered" behavior.
func (l *Loader) Scan() ([]Info, error) {
	entries, err := os.ReadDir(l.modulesDir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	known, err := l.loadKnownHashes()
	if err != nil {
		return nil, err
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	var dirty bool
	out := make([]Info, 0, len(names))
	for _, name := range names {
		dir := filepath.Join(l.modulesDir, name)
		manifestPath := filepath.Join(dir, "manifest.yaml")
		data, err := os.ReadFile(manifestPath)
		if os.IsNotExist(err) {
			continue
		}
		if err != nil {
			return nil, err
		}
		var m manifest
		if err := yaml.Unmarshal(data, &m); err != nil {
			return nil, fmt.Errorf("parse manifest for %s: %w", name, err)
		}
		moduleName := m.Name
		if moduleName == "" {
			moduleName = name
		}

		hash, err := ComputeHash(dir)
		if err != nil {
			return nil, err
		}

		status := StatusApproved
		knownHash, seen := known[moduleName]
		switch {
		case !seen:
			status = StatusNew
			known[moduleName] = hash
			dirty = true
		case knownHash != hash:
			status = StatusModified
		}

		out = append(out, Info{
			Name:        moduleName,
			Version:     m.Version,
			Status:      status,
			Description: m.Description,
			Hash:        hash[:12],
		})
	}

	if dirty {
		if err := l.saveKnownHashes(known); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// Approve records dir's current hash as known-good under name,
// un-blocking a module flagged StatusModified.
func (l *Loader) Approve(name, dir string) error {
	hash, err := ComputeHash(dir)
	if err != nil {
		return err
	}
	known, err := l.loadKnownHashes()
	if err != nil {
		return err
	}
	known[name] = hash
	return l.saveKnownHashes(known)
}
