package orchestrator

import "testing"

func TestEstimateTokens_FourCharsPerToken(t *testing.T) {
	if got := EstimateTokens("twelve chars"); got != 3 {
		t.Errorf("expected 3 tokens for 12 chars, got %d", got)
	}
	if got := EstimateTokens(""); got != 0 {
		t.Errorf("expected 0 tokens for empty string, got %d", got)
	}
}

func TestBuildSystemPrompt_CustomPromptFullyReplaces(t *testing.T) {
	result := BuildSystemPrompt("preset text", PromptBuildInput{CustomPrompt: "my own prompt"})
	if result.Prompt != "my own prompt" {
		t.Errorf("expected custom prompt to fully replace preset, got %q", result.Prompt)
	}
	if result.SourceKind != "custom" {
		t.Errorf("expected source kind 'custom', got %q", result.SourceKind)
	}
}

func TestBuildSystemPrompt_DefaultAgentPromptDoesNotReplace(t *testing.T) {
	result := BuildSystemPrompt("preset text", PromptBuildInput{
		AgentType:      defaultAgentPromptName,
		AgentOwnPrompt: "should not be used",
	})
	if result.SourceKind != "preset+append" {
		t.Errorf("expected default agent prompt to fall through to preset+append, got %q", result.SourceKind)
	}
}

func TestBuildSystemPrompt_NonDefaultAgentPromptReplaces(t *testing.T) {
	result := BuildSystemPrompt("preset text", PromptBuildInput{
		AgentType:      "researcher",
		AgentOwnPrompt: "researcher-specific prompt",
	})
	if result.Prompt != "researcher-specific prompt" || result.SourceKind != "agent" {
		t.Errorf("expected agent's own prompt to replace preset, got %+v", result)
	}
}

func TestBuildSystemPrompt_AppendOrderAndTruncation(t *testing.T) {
	result := BuildSystemPrompt("PRESET", PromptBuildInput{
		VaultClaudeMD:      "CLAUDE RULES",
		WorkingDirDisplay:  "/vault/Projects/foo",
		ContextFiles:       []ContextFile{{Path: "a.md", Content: "aaaa"}, {Path: "b.md", Content: "bbbbbbbb"}},
		ContextTokenBudget: 2,
		PriorConversation:  "prior turns",
	})
	if result.SourceKind != "preset+append" {
		t.Fatalf("expected preset+append, got %q", result.SourceKind)
	}
	if len(result.ContextFiles) != 1 || result.ContextFiles[0] != "a.md" {
		t.Errorf("expected only the first context file to fit the budget, got %v", result.ContextFiles)
	}
	if !result.ContextTruncated {
		t.Error("expected truncation flag to be set")
	}
	idxClaude := indexOf(result.Prompt, "CLAUDE RULES")
	idxDir := indexOf(result.Prompt, "/vault/Projects/foo")
	idxCtx := indexOf(result.Prompt, "a.md")
	idxPrior := indexOf(result.Prompt, "prior turns")
	if !(idxClaude < idxDir && idxDir < idxCtx && idxCtx < idxPrior) {
		t.Errorf("expected deterministic append order CLAUDE.md < workdir < context files < prior conversation, got prompt: %s", result.Prompt)
	}
}

func indexOf(haystack, needle string) int {
	for i := 0; i+len(needle) <= len(haystack); i++ {
		if haystack[i:i+len(needle)] == needle {
			return i
		}
	}
	return -1
}
