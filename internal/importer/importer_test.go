package importer

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDetectSource(t *testing.T) {
	if got := DetectSource([]byte(`{"chat_messages": []}`)); got != SourceClaudeWeb {
		t.Errorf("expected claude, got %q", got)
	}
	if got := DetectSource([]byte(`{"mapping": {}}`)); got != SourceChatGPT {
		t.Errorf("expected chatgpt, got %q", got)
	}
	if got := DetectSource([]byte(`[{"mapping": {}}]`)); got != SourceChatGPT {
		t.Errorf("expected chatgpt from array probe, got %q", got)
	}
}

const claudeExport = `{
  "uuid": "abc-123",
  "name": "Trip planning",
  "created_at": "2026-01-01T00:00:00Z",
  "chat_messages": [
    {"sender": "human", "text": "Where should I go in June?", "created_at": "2026-01-01T00:00:01Z"},
    {"sender": "assistant", "text": "Consider Portugal.", "created_at": "2026-01-01T00:00:02Z"},
    {"sender": "human", "text": ["ignored block list without text type"], "created_at": "2026-01-01T00:00:03Z"}
  ]
}`

func TestParseExport_Claude(t *testing.T) {
	convs, errs := ParseExport([]byte(claudeExport))
	if len(errs) != 0 {
		t.Fatalf("unexpected errors: %v", errs)
	}
	if len(convs) != 1 {
		t.Fatalf("expected one conversation, got %d", len(convs))
	}
	conv := convs[0]
	if conv.OriginalID != "abc-123" || conv.Title != "Trip planning" {
		t.Errorf("unexpected conversation header: %+v", conv)
	}
	if len(conv.Messages) != 2 {
		t.Fatalf("expected 2 well-formed messages, got %d: %+v", len(conv.Messages), conv.Messages)
	}
	if conv.Messages[0].Role != "user" || conv.Messages[1].Role != "assistant" {
		t.Errorf("unexpected roles: %+v", conv.Messages)
	}
}

const chatgptExport = `{
  "id": "conv-1",
  "title": "Debugging help",
  "create_time": 1750000000,
  "current_node": "n2",
  "mapping": {
    "n0": {"message": null, "parent": ""},
    "n1": {"message": {"author": {"role": "user"}, "content": {"parts": ["why is this nil"]}}, "parent": "n0"},
    "n2": {"message": {"author": {"role": "assistant"}, "content": {"parts": ["check your error handling"]}}, "parent": "n1"}
  }
}`

func TestParseExport_ChatGPT(t *testing.T) {
	convs, errs := ParseExport([]byte(chatgptExport))
	if len(errs) != 0 {
		t.Fatalf("unexpected errors: %v", errs)
	}
	if len(convs) != 1 {
		t.Fatalf("expected one conversation, got %d", len(convs))
	}
	conv := convs[0]
	if len(conv.Messages) != 2 {
		t.Fatalf("expected 2 messages walked from the tree, got %d", len(conv.Messages))
	}
	if conv.Messages[0].Content != "why is this nil" || conv.Messages[1].Content != "check your error handling" {
		t.Errorf("expected root-to-leaf order, got %+v", conv.Messages)
	}
}

func TestWriteMarkdownTranscript(t *testing.T) {
	vaultRoot := t.TempDir()
	convs, _ := ParseExport([]byte(claudeExport))
	path, err := WriteMarkdownTranscript(vaultRoot, convs[0])
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(path, filepath.Join(vaultRoot, "Chat", "sessions", "imported")) {
		t.Errorf("unexpected transcript path: %s", path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "Where should I go in June?") {
		t.Errorf("expected transcript to contain message content, got:\n%s", data)
	}
}

func TestImport_ReportsCountsAndErrors(t *testing.T) {
	vaultRoot := t.TempDir()
	result := Import(vaultRoot, []byte(claudeExport))
	if result.ImportedCount != 1 || result.SkippedCount != 0 {
		t.Errorf("unexpected result: %+v", result)
	}
	if len(result.WrittenPaths) != 1 {
		t.Errorf("expected one written path, got %+v", result.WrittenPaths)
	}
}

func TestImport_MalformedJSONReportsError(t *testing.T) {
	result := Import(t.TempDir(), []byte(`{not json`))
	if len(result.Errors) == 0 {
		t.Error("expected malformed input to report an error")
	}
}
