package server

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/kubilitics/couchdb-mcp/internal/couchdb"
	"github.com/kubilitics/couchdb-mcp/internal/mcp/tools"
	"github.com/kubilitics/couchdb-mcp/internal/security"
	"github.com/kubilitics/couchdb-mcp/internal/value"
)

type createUserArgs struct {
	Username string   `json:"username" validate:"required"`
	Password string   `json:"password" validate:"required"`
	Roles    []string `json:"roles"`
}

type deleteUserArgs struct {
	Username string `json:"username" validate:"required"`
}

type setSecurityArgs struct {
	DatabaseName string                    `json:"databaseName" validate:"required"`
	Security     *couchdb.SecurityDocument `json:"security" validate:"required"`
}

type generateCredentialsArgs struct {
	Identifier   string `json:"identifier"`
	CreateUser   bool   `json:"createUser"`
	DatabaseName string `json:"databaseName"`
}

// GeneratedCredentials is the generate-credentials result.
type GeneratedCredentials struct {
	Username    string `json:"username"`
	Password    string `json:"password"`
	Role        string `json:"role"`
	UserCreated bool   `json:"userCreated"`
	Database    string `json:"database,omitempty"`
}

// GeneratedAPIKey is the generate-api-key result. Only the hash should be stored.
type GeneratedAPIKey struct {
	APIKey string `json:"apiKey"`
	Hash   string `json:"hash"`
}

func (s *mcpServerImpl) handleCreateUser(ctx context.Context, args *value.Object) (interface{}, error) {
	var in createUserArgs
	if err := bindArgs(tools.CreateUser, args, &in); err != nil {
		return nil, err
	}
	if err := s.db.CreateUser(ctx, in.Username, in.Password, in.Roles); err != nil {
		return nil, err
	}
	return fmt.Sprintf("User %s created successfully", in.Username), nil
}

func (s *mcpServerImpl) handleDeleteUser(ctx context.Context, args *value.Object) (interface{}, error) {
	var in deleteUserArgs
	if err := bindArgs(tools.DeleteUser, args, &in); err != nil {
		return nil, err
	}
	if err := s.db.DeleteUser(ctx, in.Username); err != nil {
		return nil, err
	}
	return fmt.Sprintf("User %s deleted successfully", in.Username), nil
}

func (s *mcpServerImpl) handleSetDatabaseSecurity(ctx context.Context, args *value.Object) (interface{}, error) {
	var in setSecurityArgs
	if err := bindArgs(tools.SetDatabaseSecurity, args, &in); err != nil {
		return nil, err
	}
	if err := s.db.SetSecurity(ctx, in.DatabaseName, *in.Security); err != nil {
		return nil, err
	}
	return fmt.Sprintf("Security settings updated for database %s", in.DatabaseName), nil
}

// handleGenerateCredentials generates a username, password and role. With
// createUser the user is stored with the role; with databaseName as well the
// role joins the database members. The security document is read before the
// user is created so a missing database leaves no orphan user behind.
func (s *mcpServerImpl) handleGenerateCredentials(ctx context.Context, args *value.Object) (interface{}, error) {
	var in generateCredentialsArgs
	if err := bindArgs(tools.GenerateCredentials, args, &in); err != nil {
		return nil, err
	}
	if in.DatabaseName != "" && !in.CreateUser {
		return nil, &ArgumentError{
			Tool:   tools.GenerateCredentials,
			Fields: map[string]string{"databaseName": "databaseName requires createUser"},
		}
	}

	creds, err := s.credentials.GenerateCredentials(in.Identifier)
	if err != nil {
		return nil, fmt.Errorf("generate credentials: %w", err)
	}
	role, err := s.credentials.GenerateRole(in.Identifier)
	if err != nil {
		return nil, fmt.Errorf("generate role: %w", err)
	}

	out := GeneratedCredentials{
		Username: creds.Username,
		Password: creds.Password,
		Role:     role,
	}
	if !in.CreateUser {
		return out, nil
	}

	var sec couchdb.SecurityDocument
	if in.DatabaseName != "" {
		if sec, err = s.db.GetSecurity(ctx, in.DatabaseName); err != nil {
			return nil, fmt.Errorf("read security for %s: %w", in.DatabaseName, err)
		}
	}

	if err := s.db.CreateUser(ctx, creds.Username, creds.Password, []string{role}); err != nil {
		return nil, fmt.Errorf("create user %s: %w", creds.Username, err)
	}
	out.UserCreated = true

	if in.DatabaseName != "" {
		if !containsString(sec.Members.Roles, role) {
			sec.Members.Roles = append(sec.Members.Roles, role)
		}
		if err := s.db.SetSecurity(ctx, in.DatabaseName, sec); err != nil {
			return nil, fmt.Errorf("grant %s on %s: %w", role, in.DatabaseName, err)
		}
		out.Database = in.DatabaseName
	}

	s.logger.Info("generated credentials",
		zap.String("username", out.Username),
		zap.String("role", out.Role),
		zap.String("database", out.Database))
	return out, nil
}

func (s *mcpServerImpl) handleGenerateAPIKey(_ context.Context, _ *value.Object) (interface{}, error) {
	key, err := s.credentials.GenerateAPIKey()
	if err != nil {
		return nil, fmt.Errorf("generate api key: %w", err)
	}
	hash, err := security.HashPassword(key)
	if err != nil {
		return nil, fmt.Errorf("hash api key: %w", err)
	}
	return GeneratedAPIKey{APIKey: key, Hash: hash}, nil
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
