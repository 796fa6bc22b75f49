package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/reachcrm/flowd/pkg/models"
	"github.com/reachcrm/flowd/pkg/persistence"
)

// FlowRepository handles flow rows.
type FlowRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewFlowRepository creates a new flow repository.
func NewFlowRepository(db *sql.DB, logger *slog.Logger) *FlowRepository {
	return &FlowRepository{db: db, logger: logger}
}

const flowColumns = `id, team_id, name, trigger_type, trigger_config, nodes, edges,
	variables, active, version, created_at, updated_at`

func (r *FlowRepository) ByID(ctx context.Context, id string) (*models.Flow, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+flowColumns+` FROM flows WHERE id = $1`, id)

	flow, err := scanFlow(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewFlowError("FlowByID", id, persistence.ErrFlowNotFound)
		}

		return nil, persistence.NewFlowError("FlowByID", id, err)
	}

	return flow, nil
}

func (r *FlowRepository) All(ctx context.Context) ([]*models.Flow, error) {
	return r.list(ctx, `SELECT `+flowColumns+` FROM flows ORDER BY created_at`)
}

func (r *FlowRepository) Active(ctx context.Context) ([]*models.Flow, error) {
	return r.list(ctx, `SELECT `+flowColumns+` FROM flows WHERE active = TRUE ORDER BY created_at`)
}

func (r *FlowRepository) list(ctx context.Context, query string) ([]*models.Flow, error) {
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query flows: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var flows []*models.Flow

	for rows.Next() {
		flow, err := scanFlow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan flow row: %w", err)
		}

		flows = append(flows, flow)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate flow rows: %w", err)
	}

	return flows, nil
}

func (r *FlowRepository) Save(ctx context.Context, flow *models.Flow) error {
	if err := flow.Validate(); err != nil {
		return persistence.NewFlowError("SaveFlow", flow.ID,
			fmt.Errorf("%w: %w", persistence.ErrFlowInvalid, err))
	}

	triggerConfig, err := json.Marshal(orEmptyMap(flow.TriggerConfig))
	if err != nil {
		return persistence.NewFlowError("SaveFlow", flow.ID, err)
	}

	nodes, err := json.Marshal(flow.Nodes)
	if err != nil {
		return persistence.NewFlowError("SaveFlow", flow.ID, err)
	}

	edges, err := json.Marshal(flow.Edges)
	if err != nil {
		return persistence.NewFlowError("SaveFlow", flow.ID, err)
	}

	variables, err := json.Marshal(orEmptyMap(flow.Variables))
	if err != nil {
		return persistence.NewFlowError("SaveFlow", flow.ID, err)
	}

	now := time.Now().UTC()
	if flow.CreatedAt.IsZero() {
		flow.CreatedAt = now
	}

	flow.UpdatedAt = now

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO flows (id, team_id, name, trigger_type, trigger_config, nodes,
			edges, variables, active, version, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (id) DO UPDATE SET
			team_id = EXCLUDED.team_id,
			name = EXCLUDED.name,
			trigger_type = EXCLUDED.trigger_type,
			trigger_config = EXCLUDED.trigger_config,
			nodes = EXCLUDED.nodes,
			edges = EXCLUDED.edges,
			variables = EXCLUDED.variables,
			active = EXCLUDED.active,
			version = EXCLUDED.version,
			updated_at = EXCLUDED.updated_at`,
		flow.ID, flow.TeamID, flow.Name, string(flow.TriggerType), triggerConfig,
		nodes, edges, variables, flow.Active, flow.Version, flow.CreatedAt, flow.UpdatedAt)
	if err != nil {
		return persistence.NewFlowError("SaveFlow", flow.ID, err)
	}

	return nil
}

func (r *FlowRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM flows WHERE id = $1`, id)
	if err != nil {
		return persistence.NewFlowError("DeleteFlow", id, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return persistence.NewFlowError("DeleteFlow", id, err)
	}

	if affected == 0 {
		return persistence.NewFlowError("DeleteFlow", id, persistence.ErrFlowNotFound)
	}

	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanFlow(row rowScanner) (*models.Flow, error) {
	var (
		flow          models.Flow
		triggerType   string
		triggerConfig []byte
		nodes         []byte
		edges         []byte
		variables     []byte
	)

	err := row.Scan(&flow.ID, &flow.TeamID, &flow.Name, &triggerType, &triggerConfig,
		&nodes, &edges, &variables, &flow.Active, &flow.Version,
		&flow.CreatedAt, &flow.UpdatedAt)
	if err != nil {
		return nil, err
	}

	flow.TriggerType = models.TriggerType(triggerType)

	if err := json.Unmarshal(triggerConfig, &flow.TriggerConfig); err != nil {
		return nil, fmt.Errorf("failed to unmarshal trigger config: %w", err)
	}

	if err := json.Unmarshal(nodes, &flow.Nodes); err != nil {
		return nil, fmt.Errorf("failed to unmarshal nodes: %w", err)
	}

	if err := json.Unmarshal(edges, &flow.Edges); err != nil {
		return nil, fmt.Errorf("failed to unmarshal edges: %w", err)
	}

	if err := json.Unmarshal(variables, &flow.Variables); err != nil {
		return nil, fmt.Errorf("failed to unmarshal variables: %w", err)
	}

	return &flow, nil
}

func orEmptyMap(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}

	return m
}
