package server

import (
	"context"
	"time"

	"github.com/kubilitics/couchdb-mcp/internal/audit"
	"github.com/kubilitics/couchdb-mcp/internal/mcp/tools"
	"github.com/kubilitics/couchdb-mcp/internal/value"
)

type auditEventsArgs struct {
	Operation    string     `json:"operation"`
	Result       string     `json:"result" validate:"omitempty,oneof=success error"`
	ClusterID    string     `json:"clusterId"`
	DatabaseName string     `json:"databaseName"`
	UserID       string     `json:"userId"`
	Since        *time.Time `json:"since"`
	Until        *time.Time `json:"until"`
	Limit        int        `json:"limit" validate:"omitempty,gte=0"`
}

func (s *mcpServerImpl) handleGetAuditEvents(_ context.Context, args *value.Object) (interface{}, error) {
	var in auditEventsArgs
	if err := bindArgs(tools.GetAuditEvents, args, &in); err != nil {
		return nil, err
	}
	events, err := s.auditLog.Query(audit.Filter{
		Operation:    in.Operation,
		Result:       audit.Result(in.Result),
		ClusterID:    in.ClusterID,
		DatabaseName: in.DatabaseName,
		UserID:       in.UserID,
		Since:        in.Since,
		Until:        in.Until,
		Limit:        in.Limit,
	})
	if err != nil {
		return nil, err
	}
	if events == nil {
		events = []audit.Event{}
	}
	return events, nil
}

func (s *mcpServerImpl) handleGetAuditMetrics(_ context.Context, _ *value.Object) (interface{}, error) {
	return s.auditLog.Metrics(time.Time{}), nil
}

func (s *mcpServerImpl) handleGetOperationStats(_ context.Context, _ *value.Object) (interface{}, error) {
	return s.auditLog.OperationStats(), nil
}
