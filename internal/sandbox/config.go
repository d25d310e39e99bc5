// Package sandbox implements C3: lifecycle of per-turn and
// per-workspace OCI containers running the sandboxed agent runtime.
// Grounded on _examples/haasonsaas-nexus/internal/tools/sandbox/
// {executor.go,pool.go,workspace.go} for the Go executor idiom and on
// _examples/original_source/parachute/core/sandbox.py's DockerSandbox
// for exact availability-probe caching, mount construction, and
// env-file delivery semantics (spec.md §4.3).
package sandbox

import "time"

// Backend selects the OCI executor. Docker is the only wired backend;
// Firecracker is listed for parity with the teacher's executor
// selection but its guest-agent integration is out of scope here (see
// DESIGN.md).
type Backend string

const (
	BackendDocker      Backend = "docker"
	BackendFirecracker Backend = "firecracker"
)

// Config is the static configuration of the sandbox controller.
type Config struct {
	Backend       Backend
	Image         string
	VaultRoot     string
	ToolsVolume   string // shared read-only tools volume name, persistent containers only
	NetworkName   string // bridge network used when the agent needs LLM API reach
	MemoryLimit   string // e.g. "2g"
	CPULimit      string // e.g. "2"
	WallTimeout   time.Duration
	ChunkTimeout  time.Duration
	ProbeTTL      time.Duration
}

// DefaultConfig mirrors the original's defaults: 5 minute wall clock, 3
// minute per-chunk read cap, 60 second availability-probe cache.
func DefaultConfig() Config {
	return Config{
		Backend:      BackendDocker,
		Image:        "parachute-sandbox:latest",
		NetworkName:  "parachute-sandbox-net",
		MemoryLimit:  "2g",
		CPULimit:     "2",
		WallTimeout:  5 * time.Minute,
		ChunkTimeout: 3 * time.Minute,
		ProbeTTL:     60 * time.Second,
	}
}

// MountSpec is one bind mount in a container invocation.
type MountSpec struct {
	Source   string
	Target   string
	ReadOnly bool
}

// RunSpec is the fully resolved set of arguments for one container
// invocation, independent of the backend that executes it.
type RunSpec struct {
	Name        string
	Image       string
	NetworkMode string // named network or "none"
	MemoryLimit string
	CPULimit    string
	Mounts      []MountSpec
	EnvFilePath string
	Interactive bool
}
