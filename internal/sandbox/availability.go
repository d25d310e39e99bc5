package sandbox

import (
	"context"
	"os/exec"
	"sync"
	"time"
)

// Prober checks whether the configured OCI backend is reachable and
// whether a given image exists locally. Availability is cached with a
// TTL; image existence is never cached (images can be rebuilt or
// pulled between checks), per spec.md §4.3.
type Prober struct {
	ttl time.Duration

	mu         sync.Mutex
	lastCheck  time.Time
	lastResult bool
	hasChecked bool
}

// NewProber constructs a Prober with the given availability cache TTL.
func NewProber(ttl time.Duration) *Prober {
	return &Prober{ttl: ttl}
}

// Available reports whether the OCI backend responds to a lightweight
// "docker info"-equivalent probe, using the cached result if still
// fresh.
func (p *Prober) Available(ctx context.Context) bool {
	p.mu.Lock()
	if p.hasChecked && time.Since(p.lastCheck) < p.ttl {
		result := p.lastResult
		p.mu.Unlock()
		return result
	}
	p.mu.Unlock()

	result := probeDockerInfo(ctx)

	p.mu.Lock()
	p.lastCheck = time.Now()
	p.lastResult = result
	p.hasChecked = true
	p.mu.Unlock()

	return result
}

// Invalidate forces the next Available call to re-probe.
func (p *Prober) Invalidate() {
	p.mu.Lock()
	p.hasChecked = false
	p.mu.Unlock()
}

func probeDockerInfo(ctx context.Context) bool {
	cmd := exec.CommandContext(ctx, "docker", "info")
	return cmd.Run() == nil
}

// ImageExists runs an uncached "docker image inspect" probe.
func ImageExists(ctx context.Context, image string) bool {
	cmd := exec.CommandContext(ctx, "docker", "image", "inspect", image)
	return cmd.Run() == nil
}
