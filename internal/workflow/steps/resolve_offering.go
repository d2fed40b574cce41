package steps

import (
	"context"
	"fmt"
	"net/http"

	apperrors "dbaas.io/workflow/internal/pkg/errors"
	"dbaas.io/workflow/internal/provider"
	"dbaas.io/workflow/internal/workflow"
)

// State keys read and written by ResolveOffering.
const (
	StateCPUs       = "cpus"
	StateMemory     = "memory"
	StateOfferingID = "offering_id"
)

// ResolveOffering looks up the compute offering for the requested size and
// stores its ID in the pipeline state.
type ResolveOffering struct {
	client *provider.HostProviderClient
}

var _ workflow.Step = (*ResolveOffering)(nil)

// NewResolveOffering creates the step over client.
func NewResolveOffering(client *provider.HostProviderClient) *ResolveOffering {
	return &ResolveOffering{client: client}
}

func (s *ResolveOffering) String() string { return "Resolving compute offering" }

func (s *ResolveOffering) Do(ctx context.Context, state workflow.State) error {
	cpus, ok := state.Int(StateCPUs)
	if !ok {
		return fmt.Errorf("state key %q missing or not an integer", StateCPUs)
	}
	memory, ok := state.Int(StateMemory)
	if !ok {
		return fmt.Errorf("state key %q missing or not an integer", StateMemory)
	}

	id, found, err := s.client.GetOfferingID(ctx, cpus, memory)
	if err != nil {
		return fmt.Errorf("resolve offering %d/%d: %w", cpus, memory, err)
	}
	if !found {
		return apperrors.New(apperrors.CodeOfferingNotFound,
			fmt.Sprintf("no compute offering for %d cpus and %d memory", cpus, memory),
			http.StatusNotFound,
		).WithParams(map[string]interface{}{"cpus": cpus, "memory": memory})
	}
	state.Set(StateOfferingID, id)
	return nil
}

func (s *ResolveOffering) Undo(_ context.Context, state workflow.State) error {
	state.Delete(StateOfferingID)
	return nil
}
