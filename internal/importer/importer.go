// Package importer converts Claude.ai / ChatGPT web-export JSON into
// the vault's markdown transcript layout
// (Chat/sessions/imported/{claude,chatgpt}-<id>.md), per spec.md §6's
// persisted-layout table and supplemented from
// _examples/original_source/computer/parachute/core/import_service.py,
// whose source-detection and tree-walk logic this package follows.
package importer

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/yuin/goldmark"

	"github.com/google/uuid"
)

// Source identifies which export format a conversation came from.
type Source string

const (
	SourceClaudeWeb Source = "claude"
	SourceChatGPT   Source = "chatgpt"
)

// Message is one turn of an imported conversation.
type Message struct {
	Role      string // "user" or "assistant"
	Content   string
	Timestamp time.Time
}

// Conversation is a fully parsed export entry, ready to render.
type Conversation struct {
	OriginalID string
	Title      string
	CreatedAt  time.Time
	UpdatedAt  time.Time
	Messages   []Message
	Source     Source
}

// Result summarizes one import run.
type Result struct {
	TotalConversations int
	ImportedCount      int
	SkippedCount       int
	Errors             []string
	WrittenPaths       []string
}

// DetectSource inspects the top-level shape of export JSON to tell
// Claude and ChatGPT exports apart: ChatGPT conversations carry a
// "mapping" tree, Claude conversations carry "chat_messages".
func DetectSource(raw json.RawMessage) Source {
	var probe struct {
		Mapping      json.RawMessage `json:"mapping"`
		ChatMessages json.RawMessage `json:"chat_messages"`
	}
	if err := json.Unmarshal(raw, &probe); err == nil {
		if probe.Mapping != nil {
			return SourceChatGPT
		}
		if probe.ChatMessages != nil {
			return SourceClaudeWeb
		}
	}

	var arr []json.RawMessage
	if err := json.Unmarshal(raw, &arr); err == nil && len(arr) > 0 {
		return DetectSource(arr[0])
	}
	return SourceClaudeWeb
}

// ParseExport parses a whole export file, which may be a single
// conversation object or an array of them, dispatching per-entry by
// DetectSource so a mixed-array export still parses correctly.
func ParseExport(data []byte) ([]Conversation, []string) {
	var arr []json.RawMessage
	if err := json.Unmarshal(data, &arr); err == nil {
		var out []Conversation
		var errs []string
		for _, item := range arr {
			conv, err := parseOne(item)
			if err != nil {
				errs = append(errs, err.Error())
				continue
			}
			if conv != nil {
				out = append(out, *conv)
			}
		}
		return out, errs
	}

	conv, err := parseOne(data)
	if err != nil {
		return nil, []string{err.Error()}
	}
	if conv == nil {
		return nil, nil
	}
	return []Conversation{*conv}, nil
}

func parseOne(raw json.RawMessage) (*Conversation, error) {
	switch DetectSource(raw) {
	case SourceChatGPT:
		return parseChatGPT(raw)
	default:
		return parseClaude(raw)
	}
}

type claudeContentBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type claudeMessage struct {
	Sender    string          `json:"sender"`
	Role      string          `json:"role"`
	CreatedAt string          `json:"created_at"`
	Text      json.RawMessage `json:"text"`
	Content   json.RawMessage `json:"content"`
}

type claudeConversation struct {
	UUID           string          `json:"uuid"`
	ID             string          `json:"id"`
	ConversationID string          `json:"conversation_id"`
	Name           string          `json:"name"`
	Title          string          `json:"title"`
	CreatedAt      string          `json:"created_at"`
	UpdatedAt      string          `json:"updated_at"`
	ChatMessages   []claudeMessage `json:"chat_messages"`
	Messages       []claudeMessage `json:"messages"`
}

func parseClaude(raw json.RawMessage) (*Conversation, error) {
	var conv claudeConversation
	if err := json.Unmarshal(raw, &conv); err != nil {
		return nil, fmt.Errorf("parse claude conversation: %w", err)
	}

	originalID := firstNonEmpty(conv.UUID, conv.ID, conv.ConversationID)
	if originalID == "" {
		return nil, fmt.Errorf("claude conversation missing id")
	}
	title := firstNonEmpty(conv.Name, conv.Title, "Untitled Conversation")

	rawMsgs := conv.ChatMessages
	if len(rawMsgs) == 0 {
		rawMsgs = conv.Messages
	}

	var messages []Message
	for _, m := range rawMsgs {
		role := ""
		switch firstNonEmpty(m.Sender, m.Role) {
		case "human", "user":
			role = "user"
		case "assistant":
			role = "assistant"
		default:
			continue
		}

		content := extractClaudeContent(m)
		content = strings.TrimSpace(content)
		if content == "" {
			continue
		}
		messages = append(messages, Message{
			Role:      role,
			Content:   content,
			Timestamp: parseTimestamp(m.CreatedAt),
		})
	}
	if len(messages) == 0 {
		return nil, nil
	}

	created := parseTimestamp(conv.CreatedAt)
	if created.IsZero() {
		created = time.Now().UTC()
	}

	return &Conversation{
		OriginalID: originalID,
		Title:      title,
		CreatedAt:  created,
		UpdatedAt:  parseTimestamp(conv.UpdatedAt),
		Messages:   messages,
		Source:     SourceClaudeWeb,
	}, nil
}

func extractClaudeContent(m claudeMessage) string {
	field := m.Text
	if len(field) == 0 {
		field = m.Content
	}
	var asString string
	if err := json.Unmarshal(field, &asString); err == nil {
		return asString
	}
	var blocks []claudeContentBlock
	if err := json.Unmarshal(field, &blocks); err == nil {
		var parts []string
		for _, b := range blocks {
			if b.Type == "text" && b.Text != "" {
				parts = append(parts, b.Text)
			}
		}
		return strings.Join(parts, "\n")
	}
	return ""
}

type chatgptAuthor struct {
	Role string `json:"role"`
}

type chatgptContent struct {
	Parts []string `json:"parts"`
}

type chatgptMessage struct {
	Author  chatgptAuthor  `json:"author"`
	Content chatgptContent `json:"content"`
}

type chatgptNode struct {
	Message *chatgptMessage `json:"message"`
	Parent  string          `json:"parent"`
}

type chatgptConversation struct {
	ID             string                 `json:"id"`
	ConversationID string                 `json:"conversation_id"`
	Title          string                 `json:"title"`
	CreateTime     float64                `json:"create_time"`
	UpdateTime     float64                `json:"update_time"`
	CurrentNode    string                 `json:"current_node"`
	Mapping        map[string]chatgptNode `json:"mapping"`
}

func parseChatGPT(raw json.RawMessage) (*Conversation, error) {
	var conv chatgptConversation
	if err := json.Unmarshal(raw, &conv); err != nil {
		return nil, fmt.Errorf("parse chatgpt conversation: %w", err)
	}

	originalID := firstNonEmpty(conv.ID, conv.ConversationID)
	if originalID == "" || conv.Mapping == nil {
		return nil, fmt.Errorf("chatgpt conversation missing id or mapping")
	}
	title := firstNonEmpty(conv.Title, "Untitled Conversation")

	order := walkChatGPTTree(conv.Mapping, conv.CurrentNode)

	var messages []Message
	for _, nodeID := range order {
		node := conv.Mapping[nodeID]
		if node.Message == nil {
			continue
		}
		role := node.Message.Author.Role
		if role != "user" && role != "assistant" {
			continue
		}
		content := strings.TrimSpace(strings.Join(node.Message.Content.Parts, "\n"))
		if content == "" {
			continue
		}
		messages = append(messages, Message{Role: role, Content: content})
	}
	if len(messages) == 0 {
		return nil, nil
	}

	created := unixToTime(conv.CreateTime)
	if created.IsZero() {
		created = time.Now().UTC()
	}

	return &Conversation{
		OriginalID: originalID,
		Title:      title,
		CreatedAt:  created,
		UpdatedAt:  unixToTime(conv.UpdateTime),
		Messages:   messages,
		Source:     SourceChatGPT,
	}, nil
}

// walkChatGPTTree traces the parent chain from current_node back to
// the root, then reverses it, matching the original's tree-walk. It
// falls back to all node ids in sorted order when current_node is
// absent.
func walkChatGPTTree(mapping map[string]chatgptNode, currentNode string) []string {
	if currentNode == "" {
		order := make([]string, 0, len(mapping))
		for id := range mapping {
			order = append(order, id)
		}
		sort.Strings(order) // deterministic fallback, unlike the original's map order
		return order
	}

	var reversed []string
	visited := make(map[string]bool)
	id := currentNode
	for id != "" && !visited[id] {
		visited[id] = true
		reversed = append(reversed, id)
		id = mapping[id].Parent
	}
	order := make([]string, len(reversed))
	for i, v := range reversed {
		order[len(reversed)-1-i] = v
	}
	return order
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

func parseTimestamp(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

func unixToTime(seconds float64) time.Time {
	if seconds == 0 {
		return time.Time{}
	}
	return time.Unix(int64(seconds), 0).UTC()
}

// WriteMarkdownTranscript renders a conversation as a markdown file
// with YAML frontmatter under
// <vaultRoot>/Chat/sessions/imported/<source>-<id>.md. The body is
// first rendered through goldmark and a render error aborts the write;
// goldmark accepts any markdown text, so raw HTML or an unclosed code
// fence is not rejected. The file holds the markdown source, not the
// rendered HTML.
func WriteMarkdownTranscript(vaultRoot string, conv Conversation) (string, error) {
	var body strings.Builder
	fmt.Fprintf(&body, "---\n")
	fmt.Fprintf(&body, "title: %q\n", conv.Title)
	fmt.Fprintf(&body, "source: %s\n", conv.Source)
	fmt.Fprintf(&body, "original_id: %s\n", conv.OriginalID)
	fmt.Fprintf(&body, "imported_at: %s\n", time.Now().UTC().Format(time.RFC3339))
	fmt.Fprintf(&body, "created_at: %s\n", conv.CreatedAt.Format(time.RFC3339))
	fmt.Fprintf(&body, "---\n\n")

	for _, m := range conv.Messages {
		fmt.Fprintf(&body, "## %s\n\n%s\n\n", capitalize(m.Role), m.Content)
	}

	var rendered bytes.Buffer
	if err := goldmark.Convert([]byte(body.String()), &rendered); err != nil {
		return "", fmt.Errorf("render imported transcript %s: %w", conv.OriginalID, err)
	}

	dir := filepath.Join(vaultRoot, "Chat", "sessions", "imported")
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", err
	}

	name := fmt.Sprintf("%s-%s.md", conv.Source, safeFileComponent(conv.OriginalID))
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(body.String()), 0o600); err != nil {
		return "", err
	}
	return path, nil
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

func safeFileComponent(id string) string {
	if id == "" {
		return uuid.NewString()
	}
	var b strings.Builder
	for _, r := range id {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	return b.String()
}

// Import parses a whole export file and writes every successfully
// parsed conversation to its markdown transcript.
func Import(vaultRoot string, data []byte) Result {
	conversations, parseErrs := ParseExport(data)
	result := Result{
		TotalConversations: len(conversations) + len(parseErrs),
		Errors:             parseErrs,
	}
	for _, conv := range conversations {
		path, err := WriteMarkdownTranscript(vaultRoot, conv)
		if err != nil {
			result.SkippedCount++
			result.Errors = append(result.Errors, err.Error())
			continue
		}
		result.ImportedCount++
		result.WrittenPaths = append(result.WrittenPaths, path)
	}
	return result
}
