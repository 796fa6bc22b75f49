// Package trigger maintains the in-memory index of active flow triggers and
// matches incoming events against it.
package trigger

import (
	"context"
	"log/slog"
	"sync"

	"github.com/reachcrm/flowd/pkg/models"
	"github.com/reachcrm/flowd/pkg/persistence"
)

// Registration is one active flow's trigger entry. Registrations are derived
// from the flow store and never persisted on their own.
type Registration struct {
	FlowID string
	TeamID string
	Type   models.TriggerType
	Config map[string]any
}

// Registry holds trigger registrations for every active flow. It is safe for
// concurrent use. The index is reconstructible from the flow store, so a
// process restart only needs Initialize to run before events are dispatched.
type Registry struct {
	mu          sync.RWMutex
	byType      map[models.TriggerType]map[string]Registration
	persistence persistence.Persistence
	logger      *slog.Logger
}

func NewRegistry(persistence persistence.Persistence, logger *slog.Logger) *Registry {
	return &Registry{
		byType:      make(map[models.TriggerType]map[string]Registration),
		persistence: persistence,
		logger:      logger.With("module", "trigger_registry"),
	}
}

// Register inserts or replaces the entry for flowID. Any prior entry for the
// same flow is removed first, even under a different trigger type, so calling
// it repeatedly on flow update is safe.
func (r *Registry) Register(flowID, teamID string, triggerType models.TriggerType, config map[string]any) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.removeLocked(flowID)

	entries, ok := r.byType[triggerType]
	if !ok {
		entries = make(map[string]Registration)
		r.byType[triggerType] = entries
	}

	entries[flowID] = Registration{
		FlowID: flowID,
		TeamID: teamID,
		Type:   triggerType,
		Config: config,
	}
}

// Unregister removes the entry for flowID under triggerType, if present.
func (r *Registry) Unregister(flowID string, triggerType models.TriggerType) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if entries, ok := r.byType[triggerType]; ok {
		delete(entries, flowID)
	}
}

// Initialize clears the index and repopulates it from every active flow in
// the store. It must run once at startup before any event is dispatched and
// is idempotent if re-run.
func (r *Registry) Initialize(ctx context.Context) error {
	flows, err := r.persistence.ActiveFlows(ctx)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.byType = make(map[models.TriggerType]map[string]Registration)

	for _, flow := range flows {
		entries, ok := r.byType[flow.TriggerType]
		if !ok {
			entries = make(map[string]Registration)
			r.byType[flow.TriggerType] = entries
		}

		entries[flow.ID] = Registration{
			FlowID: flow.ID,
			TeamID: flow.TeamID,
			Type:   flow.TriggerType,
			Config: flow.TriggerConfig,
		}
	}

	r.logger.Info("Trigger registry initialized", "flows", len(flows))

	return nil
}

// Registrations returns the entries for a trigger type.
func (r *Registry) Registrations(triggerType models.TriggerType) []Registration {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entries := r.byType[triggerType]
	result := make([]Registration, 0, len(entries))

	for _, reg := range entries {
		result = append(result, reg)
	}

	return result
}

// Size returns the number of registered flows across all trigger types.
func (r *Registry) Size() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	total := 0
	for _, entries := range r.byType {
		total += len(entries)
	}

	return total
}

func (r *Registry) removeLocked(flowID string) {
	for _, entries := range r.byType {
		delete(entries, flowID)
	}
}
