package server

import (
	"context"
	"fmt"

	"github.com/kubilitics/couchdb-mcp/internal/mcp/tools"
	"github.com/kubilitics/couchdb-mcp/internal/value"
)

type databaseArgs struct {
	DatabaseName string `json:"databaseName" validate:"required"`
}

func (s *mcpServerImpl) handleCreateDatabase(ctx context.Context, args *value.Object) (interface{}, error) {
	var in databaseArgs
	if err := bindArgs(tools.CreateDatabase, args, &in); err != nil {
		return nil, err
	}
	if err := s.db.CreateDatabase(ctx, in.DatabaseName); err != nil {
		return nil, err
	}
	return fmt.Sprintf("Database %s created successfully", in.DatabaseName), nil
}

func (s *mcpServerImpl) handleDeleteDatabase(ctx context.Context, args *value.Object) (interface{}, error) {
	var in databaseArgs
	if err := bindArgs(tools.DeleteDatabase, args, &in); err != nil {
		return nil, err
	}
	if err := s.db.DeleteDatabase(ctx, in.DatabaseName); err != nil {
		return nil, err
	}
	return fmt.Sprintf("Database %s deleted successfully", in.DatabaseName), nil
}

func (s *mcpServerImpl) handleGetDatabaseInfo(ctx context.Context, args *value.Object) (interface{}, error) {
	var in databaseArgs
	if err := bindArgs(tools.GetDatabaseInfo, args, &in); err != nil {
		return nil, err
	}
	return s.db.DatabaseInfo(ctx, in.DatabaseName)
}

func (s *mcpServerImpl) handleListDatabases(ctx context.Context, _ *value.Object) (interface{}, error) {
	return s.db.ListDatabases(ctx)
}
