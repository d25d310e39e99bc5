package sessions

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/haasonsaas/companion/pkg/models"
)

// TranscriptLocator finds and reads agent-runtime transcript files and
// appends synthetic entries for sandboxed turns. The orchestrator does
// not own the transcript schema (spec.md §3); this locator only needs
// to identify user/assistant/result events and compaction boundaries.
type TranscriptLocator interface {
	Locate(ctx context.Context, sessionID, workingDir string) (*TranscriptLocation, error)
	Messages(ctx context.Context, loc *TranscriptLocation) ([]models.Message, error)
	AppendSandbox(ctx context.Context, sessionID, userMsg, assistantText, workingDir string) error
}

// FileTranscriptLocator implements TranscriptLocator against the two
// canonical on-disk roots described in spec.md §6: primary
// "<home>/.claude/projects/<encoded_cwd>/<id>.jsonl" and legacy
// "<vault>/.claude/projects/…".
type FileTranscriptLocator struct {
	HomeDir   string
	VaultRoot string
}

// encodeCwd replaces "/" with "-", matching the agent runtime's own
// project-directory naming scheme.
func encodeCwd(cwd string) string {
	return strings.ReplaceAll(cwd, "/", "-")
}

func (f *FileTranscriptLocator) primaryRoot() string {
	return filepath.Join(f.HomeDir, ".claude", "projects")
}

func (f *FileTranscriptLocator) legacyRoot() string {
	return filepath.Join(f.VaultRoot, ".claude", "projects")
}

// Locate implements the transcript-location algorithm of spec.md §4.2:
// try the computed path first; if absent, scan every project
// subdirectory of the primary root; if still absent, scan the legacy
// root. The first match wins.
func (f *FileTranscriptLocator) Locate(ctx context.Context, sessionID, workingDir string) (*TranscriptLocation, error) {
	if sessionID == "" || sessionID == models.PendingSessionID {
		return nil, nil
	}

	computed := filepath.Join(f.primaryRoot(), encodeCwd(workingDir), sessionID+".jsonl")
	if fileExists(computed) {
		return &TranscriptLocation{Path: computed, Root: RootPrimary, Cwd: workingDir}, nil
	}

	if loc := f.scanRoot(f.primaryRoot(), sessionID, RootPrimary); loc != nil {
		return loc, nil
	}
	if loc := f.scanRoot(f.legacyRoot(), sessionID, RootLegacy); loc != nil {
		return loc, nil
	}
	return nil, nil
}

func (f *FileTranscriptLocator) scanRoot(root, sessionID string, which TranscriptRoot) *TranscriptLocation {
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil
	}
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		candidate := filepath.Join(root, entry.Name(), sessionID+".jsonl")
		if fileExists(candidate) {
			cwd := strings.ReplaceAll(entry.Name(), "-", "/")
			return &TranscriptLocation{Path: candidate, Root: which, Cwd: cwd}
		}
	}
	return nil
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

// rawEvent is the subset of the agent runtime's JSONL schema the core
// needs to reconstruct messages: a top-level "type" discriminator plus
// either a plain string or block-list "content"/"message" payload.
type rawEvent struct {
	Type    string          `json:"type"`
	Message json.RawMessage `json:"message"`
	Content json.RawMessage `json:"content"`
	Result  json.RawMessage `json:"result"`
}

type rawMessage struct {
	Role    string          `json:"role"`
	Content json.RawMessage `json:"content"`
}

type contentBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// Messages walks the transcript in order, emitting one message per
// top-level user/assistant event (plain string or concatenated text
// blocks) plus an additional assistant message for a terminal "result"
// event, per spec.md §4.2.
func (f *FileTranscriptLocator) Messages(ctx context.Context, loc *TranscriptLocation) ([]models.Message, error) {
	if loc == nil {
		return nil, nil
	}
	file, err := os.Open(loc.Path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	var out []models.Message
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var ev rawEvent
		if err := json.Unmarshal([]byte(line), &ev); err != nil {
			continue
		}
		switch ev.Type {
		case "user", "assistant":
			var msg rawMessage
			if len(ev.Message) > 0 {
				_ = json.Unmarshal(ev.Message, &msg)
			}
			role := models.RoleUser
			if ev.Type == "assistant" {
				role = models.RoleAssistant
			}
			if text, ok := extractText(msg.Content); ok {
				out = append(out, models.Message{Role: role, Content: text})
			}
		case "result":
			if text, ok := extractTextRaw(ev.Result); ok {
				out = append(out, models.Message{Role: models.RoleAssistant, Content: text})
			}
		}
	}
	return out, scanner.Err()
}

func extractText(raw json.RawMessage) (string, bool) {
	return extractTextRaw(raw)
}

func extractTextRaw(raw json.RawMessage) (string, bool) {
	if len(raw) == 0 {
		return "", false
	}
	var asString string
	if err := json.Unmarshal(raw, &asString); err == nil {
		return asString, asString != ""
	}
	var blocks []contentBlock
	if err := json.Unmarshal(raw, &blocks); err == nil {
		var b strings.Builder
		for _, block := range blocks {
			if block.Type == "text" || block.Type == "" {
				b.WriteString(block.Text)
			}
		}
		return b.String(), b.Len() > 0
	}
	return "", false
}

// syntheticEvent is the minimally-faithful append entry the sandbox
// controller writes when the runtime's own transcript lives inside a
// container that will exit (spec.md §3, §4.3).
type syntheticEvent struct {
	Type    string    `json:"type"`
	Message rawSynMsg `json:"message"`
	Time    time.Time `json:"ts"`
}

type rawSynMsg struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// AppendSandbox writes user message, assistant reply text, and a result
// marker as append-only JSONL entries, preserving append-only ordering
// (P9). Disk errors are returned to the caller; the sandbox controller
// treats a failed append as non-fatal.
func (f *FileTranscriptLocator) AppendSandbox(ctx context.Context, sessionID, userMsg, assistantText, workingDir string) error {
	dir := filepath.Join(f.primaryRoot(), encodeCwd(workingDir))
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("create transcript dir: %w", err)
	}
	path := filepath.Join(dir, sessionID+".jsonl")

	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("open transcript for append: %w", err)
	}
	defer file.Close()

	now := time.Now()
	entries := []syntheticEvent{
		{Type: "user", Message: rawSynMsg{Role: "user", Content: userMsg}, Time: now},
		{Type: "assistant", Message: rawSynMsg{Role: "assistant", Content: assistantText}, Time: now},
		{Type: "result", Message: rawSynMsg{Role: "assistant", Content: ""}, Time: now},
	}
	for _, entry := range entries {
		line, err := json.Marshal(entry)
		if err != nil {
			return err
		}
		if _, err := file.Write(append(line, '\n')); err != nil {
			return err
		}
	}
	return nil
}
