// Package persistence provides the data storage abstraction for flows and
// executions.
package persistence

import (
	"context"

	"github.com/reachcrm/flowd/pkg/models"
)

type Persistence interface {
	FlowByID(ctx context.Context, id string) (*models.Flow, error)
	ActiveFlows(ctx context.Context) ([]*models.Flow, error)
	Flows(ctx context.Context) ([]*models.Flow, error)
	SaveFlow(ctx context.Context, flow *models.Flow) error
	DeleteFlow(ctx context.Context, id string) error

	ExecutionByID(ctx context.Context, id string) (*models.Execution, error)
	SaveExecution(ctx context.Context, execution *models.Execution) error
	ExecutionsByFlow(ctx context.Context, flowID string) ([]*models.Execution, error)

	HealthCheck(ctx context.Context) error
	Close(ctx context.Context) error
}
