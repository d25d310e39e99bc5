// Package contextfiles implements the context-folder service: resolving
// a turn's explicitly-selected context paths (individual markdown files
// or whole folders) into file content, token-budgeted and flagged when
// truncated. Grounded on
// _examples/original_source/parachute/core/orchestrator.py's
// ContextFolderService.build_chain usage (folder_paths vs. file_paths,
// a fixed per-chain token budget) and on
// _examples/original_source/computer/parachute/core/module_loader.py's
// sorted-directory-walk idiom for deterministic ordering.
package contextfiles

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// defaultChainBudget mirrors the original's ContextFolderService
// max_tokens=40000 default for a folder's resolved file chain.
const defaultChainBudget = 40000

const tokensPerChar = 4

// File is one resolved context file: its vault-relative path and
// content.
type File struct {
	Path    string
	Content string
}

// Chain is the outcome of resolving a turn's context selections.
type Chain struct {
	Files       []File
	TotalTokens int
	Truncated   bool
}

// Service resolves context selections against a vault root.
type Service struct {
	VaultRoot string
}

// New constructs a Service rooted at vaultRoot.
func New(vaultRoot string) *Service {
	return &Service{VaultRoot: vaultRoot}
}

// Resolve turns a list of user-selected paths into a Chain. A selection
// ending in ".md" is treated as an explicit single file; anything else
// is treated as a folder, walked for ".md" files in sorted order.
// Resolution stops accumulating once defaultChainBudget estimated
// tokens have been included, flagging Truncated rather than erroring.
func (s *Service) Resolve(selections []string) (Chain, error) {
	var chain Chain
	for _, sel := range selections {
		sel = strings.TrimSpace(sel)
		if sel == "" {
			continue
		}
		var paths []string
		var err error
		if strings.HasSuffix(sel, ".md") {
			paths = []string{sel}
		} else {
			paths, err = s.listMarkdownFiles(sel)
			if err != nil {
				return chain, fmt.Errorf("list context folder %q: %w", sel, err)
			}
		}

		for _, p := range paths {
			content, err := os.ReadFile(filepath.Join(s.VaultRoot, p))
			if err != nil {
				return chain, fmt.Errorf("read context file %q: %w", p, err)
			}
			tokens := (len(content) + tokensPerChar - 1) / tokensPerChar
			if chain.TotalTokens+tokens > defaultChainBudget {
				chain.Truncated = true
				continue
			}
			chain.Files = append(chain.Files, File{Path: p, Content: string(content)})
			chain.TotalTokens += tokens
		}
	}
	return chain, nil
}

// listMarkdownFiles walks folder (relative to the vault root) and
// returns every ".md" file beneath it, sorted for deterministic
// inclusion order.
func (s *Service) listMarkdownFiles(folder string) ([]string, error) {
	root := filepath.Join(s.VaultRoot, folder)
	var out []string
	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if d.IsDir() || !strings.HasSuffix(d.Name(), ".md") {
			return nil
		}
		rel, err := filepath.Rel(s.VaultRoot, path)
		if err != nil {
			return err
		}
		out = append(out, rel)
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(out)
	return out, nil
}
