// Package schedule starts flows with a scheduled trigger on their cron
// expression.
package schedule

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/reachcrm/flowd/pkg/models"
	"github.com/reachcrm/flowd/pkg/trigger"
)

// Source owns one cron entry per active scheduled flow. Each firing starts a
// fresh execution of exactly that flow, with no contact bound; flows that
// need one resolve it from their own nodes.
type Source struct {
	starter trigger.Starter
	cron    *cron.Cron
	logger  *slog.Logger

	mu      sync.Mutex
	entries map[string]cron.EntryID
}

func NewSource(starter trigger.Starter, logger *slog.Logger) *Source {
	return &Source{
		starter: starter,
		cron:    cron.New(),
		logger:  logger.With("module", "schedule"),
		entries: make(map[string]cron.EntryID),
	}
}

// Sync reconciles cron entries with the given flows: active scheduled flows
// are added or rescheduled, everything else is removed. Call it at startup
// and whenever flows change.
func (s *Source) Sync(ctx context.Context, flows []*models.Flow) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	keep := make(map[string]bool)

	for _, flow := range flows {
		if flow.TriggerType != models.TriggerScheduled || !flow.Active {
			continue
		}

		keep[flow.ID] = true

		err := s.addLocked(ctx, flow)
		if err != nil {
			return err
		}
	}

	for flowID, entryID := range s.entries {
		if !keep[flowID] {
			s.cron.Remove(entryID)
			delete(s.entries, flowID)
		}
	}

	return nil
}

// Add registers or reschedules one flow's cron entry.
func (s *Source) Add(ctx context.Context, flow *models.Flow) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.addLocked(ctx, flow)
}

// Remove drops a flow's cron entry, if any.
func (s *Source) Remove(flowID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entryID, ok := s.entries[flowID]; ok {
		s.cron.Remove(entryID)
		delete(s.entries, flowID)
	}
}

func (s *Source) addLocked(ctx context.Context, flow *models.Flow) error {
	spec, _ := flow.TriggerConfig["cron"].(string)
	if spec == "" {
		return fmt.Errorf("flow %s has no cron expression", flow.ID)
	}

	if entryID, ok := s.entries[flow.ID]; ok {
		s.cron.Remove(entryID)
	}

	flowID := flow.ID
	teamID := flow.TeamID

	entryID, err := s.cron.AddFunc(spec, func() {
		s.fire(ctx, flowID, teamID)
	})
	if err != nil {
		return fmt.Errorf("invalid cron expression for flow %s: %w", flow.ID, err)
	}

	s.entries[flow.ID] = entryID

	return nil
}

func (s *Source) fire(ctx context.Context, flowID, teamID string) {
	payload := map[string]any{
		"type":    "scheduled",
		"flowId":  flowID,
		"teamId":  teamID,
		"firedAt": time.Now().UTC().Format(time.RFC3339),
	}

	_, err := s.starter.Start(ctx, flowID, "", payload, "")
	if err != nil {
		s.logger.ErrorContext(ctx, "Failed to start scheduled flow",
			"flow_id", flowID,
			"error", err)

		return
	}

	s.logger.InfoContext(ctx, "Scheduled flow started", "flow_id", flowID)
}

// Start runs the cron loop in its own goroutine.
func (s *Source) Start() {
	s.cron.Start()
}

// Stop halts the cron loop and waits for in-flight firings.
func (s *Source) Stop() {
	<-s.cron.Stop().Done()
}

// Size returns the number of scheduled flows currently registered.
func (s *Source) Size() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.entries)
}
