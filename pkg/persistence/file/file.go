// Package file provides file-based persistence for flows and executions,
// intended for development and tests.
package file

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/reachcrm/flowd/pkg/models"
	"github.com/reachcrm/flowd/pkg/persistence"
)

const (
	flowsDir      = "flows"
	executionsDir = "executions"
)

// Persistence implements persistence.Persistence on the file system. Each
// entity is one JSON document.
type Persistence struct {
	root string
}

// NewPersistence creates a file persistence rooted at the given directory.
func NewPersistence(root string) *Persistence {
	cleanRoot := strings.Replace(root, "file://", "", 1)

	return &Persistence{root: cleanRoot}
}

// validateID rejects identifiers that could escape the storage root.
func validateID(id string) error {
	if id == "" {
		return errors.New("id cannot be empty")
	}

	if strings.Contains(id, "..") || strings.Contains(id, "/") || strings.Contains(id, "\\") {
		return errors.New("id contains invalid characters")
	}

	return nil
}

func (p *Persistence) write(dir, id string, entity any) error {
	if err := validateID(id); err != nil {
		return err
	}

	targetDir := filepath.Join(p.root, dir)

	err := os.MkdirAll(targetDir, 0750)
	if err != nil {
		return fmt.Errorf("failed to create %s directory: %w", dir, err)
	}

	data, err := json.Marshal(entity)
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", id, err)
	}

	// Write to a temp file and rename so a crash mid-write never leaves a
	// truncated document behind.
	target := filepath.Join(targetDir, id+".json")

	tmp, err := os.CreateTemp(targetDir, id+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file for %s: %w", id, err)
	}

	if _, err = tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())

		return fmt.Errorf("failed to write %s: %w", id, err)
	}

	if err = tmp.Close(); err != nil {
		os.Remove(tmp.Name())

		return fmt.Errorf("failed to write %s: %w", id, err)
	}

	if err = os.Chmod(tmp.Name(), 0600); err != nil {
		os.Remove(tmp.Name())

		return fmt.Errorf("failed to write %s: %w", id, err)
	}

	if err = os.Rename(tmp.Name(), target); err != nil {
		os.Remove(tmp.Name())

		return fmt.Errorf("failed to write %s: %w", id, err)
	}

	return nil
}

func (p *Persistence) read(dir, id string, entity any, notFound error) error {
	if err := validateID(id); err != nil {
		return err
	}

	data, err := os.ReadFile(filepath.Join(p.root, dir, id+".json")) // #nosec G304 -- id is validated
	if err != nil {
		if os.IsNotExist(err) {
			return notFound
		}

		return fmt.Errorf("failed to read %s: %w", id, err)
	}

	err = json.Unmarshal(data, entity)
	if err != nil {
		return fmt.Errorf("failed to unmarshal %s: %w", id, err)
	}

	return nil
}

func (p *Persistence) FlowByID(ctx context.Context, id string) (*models.Flow, error) {
	var flow models.Flow

	err := p.read(flowsDir, id, &flow, persistence.ErrFlowNotFound)
	if err != nil {
		return nil, persistence.NewFlowError("FlowByID", id, err)
	}

	return &flow, nil
}

func (p *Persistence) Flows(ctx context.Context) ([]*models.Flow, error) {
	dir := filepath.Join(p.root, flowsDir)

	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return []*models.Flow{}, nil
		}

		return nil, fmt.Errorf("failed to read flows directory: %w", err)
	}

	flows := make([]*models.Flow, 0, len(entries))

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}

		id := strings.TrimSuffix(entry.Name(), ".json")

		flow, err := p.FlowByID(ctx, id)
		if err != nil {
			return nil, err
		}

		flows = append(flows, flow)
	}

	return flows, nil
}

func (p *Persistence) ActiveFlows(ctx context.Context) ([]*models.Flow, error) {
	flows, err := p.Flows(ctx)
	if err != nil {
		return nil, err
	}

	active := make([]*models.Flow, 0, len(flows))

	for _, flow := range flows {
		if flow.Active {
			active = append(active, flow)
		}
	}

	return active, nil
}

func (p *Persistence) SaveFlow(ctx context.Context, flow *models.Flow) error {
	if err := flow.Validate(); err != nil {
		return persistence.NewFlowError("SaveFlow", flow.ID,
			fmt.Errorf("%w: %w", persistence.ErrFlowInvalid, err))
	}

	err := p.write(flowsDir, flow.ID, flow)
	if err != nil {
		return persistence.NewFlowError("SaveFlow", flow.ID, err)
	}

	return nil
}

func (p *Persistence) DeleteFlow(ctx context.Context, id string) error {
	if err := validateID(id); err != nil {
		return persistence.NewFlowError("DeleteFlow", id, err)
	}

	err := os.Remove(filepath.Join(p.root, flowsDir, id+".json"))
	if err != nil {
		if os.IsNotExist(err) {
			return persistence.NewFlowError("DeleteFlow", id, persistence.ErrFlowNotFound)
		}

		return persistence.NewFlowError("DeleteFlow", id, err)
	}

	return nil
}

func (p *Persistence) ExecutionByID(ctx context.Context, id string) (*models.Execution, error) {
	var execution models.Execution

	err := p.read(executionsDir, id, &execution, persistence.ErrExecutionNotFound)
	if err != nil {
		return nil, persistence.NewExecutionError("ExecutionByID", id, err)
	}

	return &execution, nil
}

func (p *Persistence) SaveExecution(ctx context.Context, execution *models.Execution) error {
	err := p.write(executionsDir, execution.ID, execution)
	if err != nil {
		return persistence.NewExecutionError("SaveExecution", execution.ID, err)
	}

	return nil
}

func (p *Persistence) ExecutionsByFlow(ctx context.Context, flowID string) ([]*models.Execution, error) {
	dir := filepath.Join(p.root, executionsDir)

	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return []*models.Execution{}, nil
		}

		return nil, fmt.Errorf("failed to read executions directory: %w", err)
	}

	var executions []*models.Execution

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}

		id := strings.TrimSuffix(entry.Name(), ".json")

		execution, err := p.ExecutionByID(ctx, id)
		if err != nil {
			return nil, err
		}

		if execution.FlowID == flowID {
			executions = append(executions, execution)
		}
	}

	return executions, nil
}

// HealthCheck verifies the storage root exists.
func (p *Persistence) HealthCheck(_ context.Context) error {
	if _, err := os.Stat(p.root); os.IsNotExist(err) {
		return os.ErrNotExist
	}

	return nil
}

// Close performs any necessary cleanup. Nothing to clean up for files.
func (p *Persistence) Close(_ context.Context) error {
	return nil
}
