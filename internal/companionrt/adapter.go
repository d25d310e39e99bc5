// Package companionrt bridges *orchestrator.Orchestrator to
// connectors.TurnRunner, so the connector gateway can run turns
// without depending on the orchestrator package directly. Grounded on
// _examples/haasonsaas-nexus/internal/channels's adapter-to-gateway
// wiring, where the same narrowing pattern is used to keep channel
// adapters decoupled from the full gateway surface.
package companionrt

import (
	"context"

	"github.com/haasonsaas/companion/internal/orchestrator"
	"github.com/haasonsaas/companion/pkg/models"
)

// OrchestratorRunner adapts *orchestrator.Orchestrator to
// connectors.TurnRunner.
type OrchestratorRunner struct {
	Orchestrator *orchestrator.Orchestrator
}

// RunTurn implements connectors.TurnRunner.
func (r *OrchestratorRunner) RunTurn(ctx context.Context, sessionID, module, trust, userMessage string) (<-chan models.Event, error) {
	return r.Orchestrator.RunTurn(ctx, orchestrator.TurnRequest{
		UserMessage:   userMessage,
		SessionID:     sessionID,
		Module:        module,
		TrustOverride: trust,
	})
}
