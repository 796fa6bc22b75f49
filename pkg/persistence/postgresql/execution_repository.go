package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/reachcrm/flowd/pkg/models"
	"github.com/reachcrm/flowd/pkg/persistence"
)

// ExecutionRepository handles execution rows. Executions are written on every
// step, so the whole mutable state round-trips through one upsert.
type ExecutionRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewExecutionRepository creates a new execution repository.
func NewExecutionRepository(db *sql.DB, logger *slog.Logger) *ExecutionRepository {
	return &ExecutionRepository{db: db, logger: logger}
}

const executionColumns = `id, flow_id, team_id, contact_id, conversation_id, status,
	current_node_id, step_seq, variables, step_results, test_mode,
	started_at, last_activity_at, completed_at, error`

func (r *ExecutionRepository) ByID(ctx context.Context, id string) (*models.Execution, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+executionColumns+` FROM executions WHERE id = $1`, id)

	execution, err := scanExecution(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewExecutionError("ExecutionByID", id, persistence.ErrExecutionNotFound)
		}

		return nil, persistence.NewExecutionError("ExecutionByID", id, err)
	}

	return execution, nil
}

func (r *ExecutionRepository) ByFlow(ctx context.Context, flowID string) ([]*models.Execution, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+executionColumns+` FROM executions WHERE flow_id = $1 ORDER BY started_at`, flowID)
	if err != nil {
		return nil, fmt.Errorf("failed to query executions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var executions []*models.Execution

	for rows.Next() {
		execution, err := scanExecution(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan execution row: %w", err)
		}

		executions = append(executions, execution)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate execution rows: %w", err)
	}

	return executions, nil
}

func (r *ExecutionRepository) Save(ctx context.Context, execution *models.Execution) error {
	variables, err := json.Marshal(orEmptyMap(execution.Variables))
	if err != nil {
		return persistence.NewExecutionError("SaveExecution", execution.ID, err)
	}

	stepResults := execution.StepResults
	if stepResults == nil {
		stepResults = map[string]models.StepResult{}
	}

	results, err := json.Marshal(stepResults)
	if err != nil {
		return persistence.NewExecutionError("SaveExecution", execution.ID, err)
	}

	var completedAt sql.NullTime
	if execution.CompletedAt != nil {
		completedAt = sql.NullTime{Time: *execution.CompletedAt, Valid: true}
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO executions (id, flow_id, team_id, contact_id, conversation_id,
			status, current_node_id, step_seq, variables, step_results, test_mode,
			started_at, last_activity_at, completed_at, error)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			current_node_id = EXCLUDED.current_node_id,
			step_seq = EXCLUDED.step_seq,
			variables = EXCLUDED.variables,
			step_results = EXCLUDED.step_results,
			last_activity_at = EXCLUDED.last_activity_at,
			completed_at = EXCLUDED.completed_at,
			error = EXCLUDED.error`,
		execution.ID, execution.FlowID, execution.TeamID, execution.ContactID,
		execution.ConversationID, string(execution.Status), execution.CurrentNodeID,
		execution.StepSeq, variables, results, execution.TestMode,
		execution.StartedAt, execution.LastActivityAt, completedAt, execution.Error)
	if err != nil {
		return persistence.NewExecutionError("SaveExecution", execution.ID, err)
	}

	return nil
}

func scanExecution(row rowScanner) (*models.Execution, error) {
	var (
		execution   models.Execution
		status      string
		variables   []byte
		stepResults []byte
		completedAt sql.NullTime
	)

	err := row.Scan(&execution.ID, &execution.FlowID, &execution.TeamID,
		&execution.ContactID, &execution.ConversationID, &status,
		&execution.CurrentNodeID, &execution.StepSeq, &variables, &stepResults,
		&execution.TestMode, &execution.StartedAt, &execution.LastActivityAt,
		&completedAt, &execution.Error)
	if err != nil {
		return nil, err
	}

	execution.Status = models.ExecutionStatus(status)

	if completedAt.Valid {
		execution.CompletedAt = &completedAt.Time
	}

	if err := json.Unmarshal(variables, &execution.Variables); err != nil {
		return nil, fmt.Errorf("failed to unmarshal variables: %w", err)
	}

	if err := json.Unmarshal(stepResults, &execution.StepResults); err != nil {
		return nil, fmt.Errorf("failed to unmarshal step results: %w", err)
	}

	return &execution, nil
}
