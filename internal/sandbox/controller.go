package sandbox

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/haasonsaas/companion/internal/sessions"
	"github.com/haasonsaas/companion/pkg/models"
)

var (
	// ErrUnavailable is returned when the OCI backend does not respond
	// to an availability probe.
	ErrUnavailable = errors.New("sandbox backend unavailable")
	// ErrTimeout is returned when either the wall-clock or per-chunk
	// deadline is exceeded.
	ErrTimeout = errors.New("sandbox turn timed out")
	// ErrResumeFailed is returned when a persistent-container resume
	// attempt fails; the caller is expected to retry per the three-tier
	// fallback of spec.md §4.3/§4.5 Phase 8.
	ErrResumeFailed = errors.New("sandbox container resume failed")
)

// RunRequest describes one turn to execute in a container.
type RunRequest struct {
	SessionID        string // caller-visible id; empty/pending for a not-yet-finalized session
	WorkspaceSlug    string // empty for ephemeral turns
	AgentType        string
	Credential       string
	WorkingDir       string
	UserMessage      string // the turn's user message, for the synthetic transcript append on done
	AllowedVaultPaths []string
	Capabilities     models.Capabilities
	Trust            models.TrustLevel
	ResumeContainer  bool   // true: ask the container to resume its persistent session state directly
	InjectedHistory  string // tier-2 fallback: prior conversation as text context; ignored when ResumeContainer is true
}

// Controller manages the lifecycle of ephemeral and persistent sandbox
// containers and translates their event stream into the caller-visible
// event vocabulary.
type Controller struct {
	cfg    Config
	prober *Prober
	store  sessions.Store // optional; enables finalize-before-mask on the session event

	mu          sync.Mutex
	persistent  map[string]string // workspace slug -> container name, for reconciliation bookkeeping
}

// NewController constructs a sandbox controller bound to cfg.
func NewController(cfg Config) *Controller {
	return &Controller{
		cfg:        cfg,
		prober:     NewProber(cfg.ProbeTTL),
		persistent: make(map[string]string),
	}
}

// SetSessionStore wires C2 into the controller so a sandboxed turn's
// session event can finalize the store row under the container-minted
// id before that id is masked in the caller-facing event, per
// spec.md §4.3. A nil store (the default) leaves the prior
// caller-visible-id-only masking behavior in place.
func (c *Controller) SetSessionStore(store sessions.Store) {
	c.store = store
}

// Available reports the cached backend-availability probe.
func (c *Controller) Available(ctx context.Context) bool {
	return c.prober.Available(ctx)
}

// ReconcileOnStartup discovers already-running persistent containers
// by their parachute-env-<slug> label/name convention and registers
// them as live, so a restart of this process does not orphan running
// workspace containers.
func (c *Controller) ReconcileOnStartup(ctx context.Context) error {
	out, err := exec.CommandContext(ctx, "docker", "ps", "--format", "{{.Names}}", "--filter", "name=parachute-env-").Output()
	if err != nil {
		return fmt.Errorf("reconcile sandbox containers: %w", err)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, name := range splitLines(string(out)) {
		slug := trimPrefixName(name)
		if slug != "" {
			c.persistent[slug] = name
		}
	}
	return nil
}

func splitLines(s string) []string {
	var out []string
	start := 0
	for i := 0; i < len(s); i++ {
		if s[i] == '\n' {
			if line := s[start:i]; line != "" {
				out = append(out, line)
			}
			start = i + 1
		}
	}
	if start < len(s) && s[start:] != "" {
		out = append(out, s[start:])
	}
	return out
}

func trimPrefixName(name string) string {
	const prefix = "parachute-env-"
	if len(name) > len(prefix) && name[:len(prefix)] == prefix {
		return name[len(prefix):]
	}
	return ""
}

// StopWorkspace stops and removes a workspace's persistent container
// and releases its bookkeeping entry. Home-directory data removal is
// the caller's responsibility (it lives outside the container).
func (c *Controller) StopWorkspace(ctx context.Context, workspaceSlug string) error {
	c.mu.Lock()
	name, ok := c.persistent[workspaceSlug]
	delete(c.persistent, workspaceSlug)
	c.mu.Unlock()
	if !ok {
		name = PersistentName(workspaceSlug)
	}
	_ = exec.CommandContext(ctx, "docker", "rm", "-f", name).Run()
	return nil
}

// StopDefaultContainer force-recreates the workspace-less default
// container on next use by removing it now.
func (c *Controller) StopDefaultContainer(ctx context.Context) error {
	return exec.CommandContext(ctx, "docker", "rm", "-f", "parachute-env-default").Run()
}

// Build runs "docker build" for the configured sandbox image, emitting
// one text event per output line so a caller can stream progress the
// same way a turn's tool output streams, per spec.md §6's
// "POST /sandbox/build (SSE)" row.
func (c *Controller) Build(ctx context.Context, buildContextDir string, out chan<- models.Event) error {
	cmd := exec.CommandContext(ctx, "docker", "build", "-t", c.cfg.Image, buildContextDir)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("attach build stdout: %w", err)
	}
	cmd.Stderr = cmd.Stdout
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start docker build: %w", err)
	}

	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		select {
		case out <- models.Event{Type: models.EventText, Text: &models.TextPayload{Content: line, Delta: line}}:
		case <-ctx.Done():
			_ = cmd.Process.Kill()
			return ctx.Err()
		}
	}
	if err := cmd.Wait(); err != nil {
		return fmt.Errorf("docker build failed: %w", err)
	}
	c.prober.Invalidate()
	return nil
}

// buildRunSpec constructs the full docker-run argument set for one
// turn, per spec.md §4.3's run-argument table.
func (c *Controller) buildRunSpec(req RunRequest, envFile, capsFile string) RunSpec {
	var name string
	persistent := req.WorkspaceSlug != ""
	if persistent {
		name = PersistentName(req.WorkspaceSlug)
	} else {
		name = EphemeralName()
	}

	networkMode := "none"
	if req.Trust == models.TrustSandboxed {
		// the sandboxed agent still needs to reach the LLM API.
		networkMode = c.cfg.NetworkName
	}

	mounts := BuildVaultMounts(c.cfg.VaultRoot, req.AllowedVaultPaths)
	mounts = append(mounts, BuildSupportMounts(c.cfg.VaultRoot, "/config/mcp.json", "/skills", "/agents")...)
	if capsFile != "" {
		mounts = append(mounts, MountSpec{Source: capsFile, Target: "/config/capabilities.json", ReadOnly: true})
	}

	var pluginDirs []string
	for _, p := range req.Capabilities.Plugins {
		if p.Dir != "" {
			pluginDirs = append(pluginDirs, p.Dir)
		}
	}
	mounts = append(mounts, BuildPluginMounts(pluginDirs)...)

	if persistent {
		home := fmt.Sprintf(".parachute/sandbox/envs/%s/home", req.WorkspaceSlug)
		mounts = append(mounts, BuildPersistentMounts(home, c.cfg.ToolsVolume)...)
	}

	return RunSpec{
		Name:        name,
		Image:       c.cfg.Image,
		NetworkMode: networkMode,
		MemoryLimit: c.cfg.MemoryLimit,
		CPULimit:    c.cfg.CPULimit,
		Mounts:      mounts,
		EnvFilePath: envFile,
		Interactive: true,
	}
}

func dockerArgs(spec RunSpec) []string {
	args := []string{"run", "--rm", "-i", "--name", spec.Name}
	args = append(args, "--memory", spec.MemoryLimit, "--cpus", spec.CPULimit)
	args = append(args, "--network", spec.NetworkMode)
	args = append(args, "--env-file", spec.EnvFilePath)
	for _, m := range spec.Mounts {
		mode := "rw"
		if m.ReadOnly {
			mode = "ro"
		}
		args = append(args, "-v", fmt.Sprintf("%s:%s:%s", m.Source, m.Target, mode))
	}
	args = append(args, spec.Image)
	return args
}

// Run executes one turn in a container and streams translated events
// to out until the container's own stream terminates, the wall
// timeout elapses, or a single chunk read exceeds the chunk timeout. A
// pending session is finalized under its container-minted id before
// its first session event is forwarded (via SetSessionStore), and a
// done event appends a synthetic host-side transcript entry. Returns
// ErrResumeFailed when the container reports a failed resume attempt
// (a resume_failed event); the caller drives the three-tier
// resume fallback by retrying with InjectedHistory set, per
// spec.md §4.3/§4.5 Phase 8.
func (c *Controller) Run(ctx context.Context, req RunRequest, out chan<- models.Event) error {
	if !c.Available(ctx) {
		return ErrUnavailable
	}

	tmpDir, err := os.MkdirTemp("", "parachute-sandbox-")
	if err != nil {
		return fmt.Errorf("create sandbox temp dir: %w", err)
	}
	defer os.RemoveAll(tmpDir)

	var mcpNames []string
	for _, m := range req.Capabilities.MCPs {
		mcpNames = append(mcpNames, m.Name)
	}
	envFile, err := WriteEnvFile(tmpDir, TurnEnv{
		SessionID:       req.SessionID,
		AgentType:       req.AgentType,
		Credential:      req.Credential,
		WorkingDir:      req.WorkingDir,
		MCPNames:        mcpNames,
		ResumeContainer: req.ResumeContainer,
		InjectedHistory: req.InjectedHistory,
	})
	if err != nil {
		return err
	}
	capsFile, err := WriteCapabilitiesFile(tmpDir, req.Capabilities)
	if err != nil {
		return err
	}
	defer CleanupArtifacts(envFile, capsFile)

	spec := c.buildRunSpec(req, envFile, capsFile)

	wallCtx, cancel := context.WithTimeout(ctx, c.cfg.WallTimeout)
	defer cancel()

	cmd := exec.CommandContext(wallCtx, "docker", dockerArgs(spec)...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("attach sandbox stdout: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start sandbox container: %w", err)
	}

	streamErr := c.streamEvents(wallCtx, stdout, req, out)
	waitErr := cmd.Wait()

	if wallCtx.Err() == context.DeadlineExceeded {
		return ErrTimeout
	}
	if streamErr != nil {
		return streamErr
	}
	return waitErr
}

// streamEvents reads the container's JSON-lines stdout, enforcing the
// per-chunk read cap and translating each event per spec.md §4.3.
// visibleSessionID starts as req.SessionID but is updated in place once
// a session event finalizes a pending placeholder, so every later event
// in this stream (done, aborted) masks with the real, finalized id.
func (c *Controller) streamEvents(ctx context.Context, stdout io.Reader, req RunRequest, out chan<- models.Event) error {
	reader := bufio.NewReaderSize(stdout, 64*1024)
	lineCh := make(chan string)
	errCh := make(chan error, 1)
	visibleSessionID := req.SessionID

	go func() {
		for {
			line, err := reader.ReadString('\n')
			if len(line) > 0 {
				lineCh <- line
			}
			if err != nil {
				errCh <- err
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case line := <-lineCh:
			var raw map[string]json.RawMessage
			if err := json.Unmarshal([]byte(line), &raw); err != nil {
				continue
			}
			ev := c.translateEvent(ctx, raw, req, &visibleSessionID)
			if ev.Type == models.EventResumeFailed {
				// Consumed internally: the caller sees this as an error
				// return from Run, never as a forwarded event.
				return ErrResumeFailed
			}
			if ev.Type == models.EventDone && c.store != nil && ev.Done != nil {
				if err := c.store.WriteSandboxTranscriptAppend(ctx, visibleSessionID, req.UserMessage, ev.Done.Response, req.WorkingDir); err != nil {
					_ = err // best-effort: a failed host-side append does not fail the turn
				}
			}
			out <- ev
			if ev.Type == models.EventDone || ev.Type == models.EventAborted || ev.Type == models.EventError {
				return nil
			}
		case <-errCh:
			return nil // EOF: container finished its stream normally
		case <-time.After(c.cfg.ChunkTimeout):
			return ErrTimeout
		}
	}
}

// translateEvent applies the container-to-caller event rewrite rule:
// masks the container-internal session id behind the caller-visible
// one and annotates the trust level. For a brand new sandboxed turn
// (visibleSessionID still a pending placeholder), the session event
// additionally finalizes the store row under the container-minted id
// before masking, per spec.md §4.3 ("finalizes the store row on done…
// masking the container-internal id") applied to the earlier session
// event that first carries a real id.
func (c *Controller) translateEvent(ctx context.Context, raw map[string]json.RawMessage, req RunRequest, visibleSessionID *string) models.Event {
	var typ string
	if t, ok := raw["type"]; ok {
		_ = json.Unmarshal(t, &typ)
	}

	ev := models.Event{Type: models.EventType(typ), Time: time.Now()}

	switch ev.Type {
	case models.EventSession:
		var mintedID string
		if r, ok := raw["session"]; ok {
			var payload struct {
				SessionID string `json:"session_id"`
			}
			if err := json.Unmarshal(r, &payload); err == nil {
				mintedID = payload.SessionID
			}
		}
		if c.store != nil && mintedID != "" && models.IsPendingSessionID(*visibleSessionID) {
			if finalized, ferr := c.store.Finalize(ctx, *visibleSessionID, mintedID, "", "", req.AgentType, req.WorkspaceSlug); ferr == nil && finalized != nil {
				*visibleSessionID = finalized.ID
			}
		}
		ev.Session = &models.SessionEventPayload{
			SessionID:  *visibleSessionID,
			WorkingDir: req.WorkingDir,
			TrustLevel: req.Trust,
		}
	case models.EventDone:
		payload := &models.DonePayload{SessionID: *visibleSessionID}
		if r, ok := raw["done"]; ok {
			_ = json.Unmarshal(r, payload)
			payload.SessionID = *visibleSessionID
		}
		ev.Done = payload
	case models.EventText:
		payload := &models.TextPayload{}
		if r, ok := raw["text"]; ok {
			_ = json.Unmarshal(r, payload)
		}
		ev.Text = payload
	case models.EventToolUse:
		payload := &models.ToolUsePayload{}
		if r, ok := raw["tool_use"]; ok {
			_ = json.Unmarshal(r, payload)
		}
		ev.ToolUse = payload
	case models.EventToolResult:
		payload := &models.ToolResultPayload{}
		if r, ok := raw["tool_result"]; ok {
			_ = json.Unmarshal(r, payload)
		}
		ev.ToolResult = payload
	case models.EventAborted:
		payload := &models.AbortedPayload{SessionID: *visibleSessionID}
		if r, ok := raw["aborted"]; ok {
			_ = json.Unmarshal(r, payload)
			payload.SessionID = *visibleSessionID
		}
		ev.Aborted = payload
	case models.EventError:
		payload := &models.ErrorPayload{}
		if r, ok := raw["error"]; ok {
			_ = json.Unmarshal(r, payload)
		}
		ev.Error = payload
	}
	return ev
}
