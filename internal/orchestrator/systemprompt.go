package orchestrator

import (
	"fmt"
	"strings"
)

// defaultAgentPromptName is the agent type whose own prompt does NOT
// override the preset, per spec.md §4.5 Phase 3.
const defaultAgentPromptName = "vault-agent"

// EstimateTokens uses the 4-chars-per-token heuristic the agent
// runtime's own estimator uses, matching spec.md §4.5's token
// accounting.
func EstimateTokens(s string) int {
	if s == "" {
		return 0
	}
	return (len(s) + 3) / 4
}

// ContextFile is one selected context file contributing to the append
// fragment.
type ContextFile struct {
	Path    string
	Content string
}

// PromptBuildInput collects everything Phase 3 needs.
type PromptBuildInput struct {
	CustomPrompt        string // full override, if any
	AgentType           string
	AgentOwnPrompt      string // the agent's own prompt text, if it has one
	VaultClaudeMD       string
	WorkingDirDisplay   string
	ContextFiles        []ContextFile
	ContextTokenBudget  int
	PriorConversation   string
}

// PromptBuildResult is the composed prompt plus the metadata record
// surfaced in the prompt_metadata event.
type PromptBuildResult struct {
	Prompt            string
	SourceKind        string // "custom" | "agent" | "preset+append"
	SourcePath        string
	ContextFiles      []string
	ContextTokens     int
	BasePromptTokens  int
	TotalPromptTokens int
	ContextTruncated  bool
}

// BuildSystemPrompt implements Phase 3's precedence rule: a full custom
// prompt or a non-default agent prompt fully replaces the preset;
// otherwise an append fragment is composed in a fixed, deterministic
// order with context files token-budgeted.
func BuildSystemPrompt(preset string, in PromptBuildInput) PromptBuildResult {
	if strings.TrimSpace(in.CustomPrompt) != "" {
		tokens := EstimateTokens(in.CustomPrompt)
		return PromptBuildResult{
			Prompt:            in.CustomPrompt,
			SourceKind:        "custom",
			BasePromptTokens:  tokens,
			TotalPromptTokens: tokens,
		}
	}

	if in.AgentType != "" && in.AgentType != defaultAgentPromptName && strings.TrimSpace(in.AgentOwnPrompt) != "" {
		tokens := EstimateTokens(in.AgentOwnPrompt)
		return PromptBuildResult{
			Prompt:            in.AgentOwnPrompt,
			SourceKind:        "agent",
			SourcePath:        in.AgentType,
			BasePromptTokens:  tokens,
			TotalPromptTokens: tokens,
		}
	}

	var b strings.Builder
	b.WriteString(preset)
	baseTokens := EstimateTokens(preset)

	if strings.TrimSpace(in.VaultClaudeMD) != "" {
		b.WriteString("\n\n")
		b.WriteString(in.VaultClaudeMD)
	}
	if in.WorkingDirDisplay != "" {
		fmt.Fprintf(&b, "\n\nYou are working in %s.", in.WorkingDirDisplay)
	}

	var includedFiles []string
	contextTokens := 0
	truncated := false
	budget := in.ContextTokenBudget
	for _, cf := range in.ContextFiles {
		fileTokens := EstimateTokens(cf.Content)
		if budget > 0 && contextTokens+fileTokens > budget {
			truncated = true
			continue
		}
		b.WriteString("\n\n<context_file path=\"")
		b.WriteString(cf.Path)
		b.WriteString("\">\n")
		b.WriteString(cf.Content)
		b.WriteString("\n</context_file>")
		includedFiles = append(includedFiles, cf.Path)
		contextTokens += fileTokens
	}

	if strings.TrimSpace(in.PriorConversation) != "" {
		b.WriteString("\n\n<prior_conversation>\n")
		b.WriteString(in.PriorConversation)
		b.WriteString("\n</prior_conversation>")
	}

	prompt := b.String()
	return PromptBuildResult{
		Prompt:            prompt,
		SourceKind:        "preset+append",
		ContextFiles:      includedFiles,
		ContextTokens:     contextTokens,
		BasePromptTokens:  baseTokens,
		TotalPromptTokens: EstimateTokens(prompt),
		ContextTruncated:  truncated,
	}
}
