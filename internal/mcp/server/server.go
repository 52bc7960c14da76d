package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/kubilitics/couchdb-mcp/internal/audit"
	"github.com/kubilitics/couchdb-mcp/internal/config"
	"github.com/kubilitics/couchdb-mcp/internal/couchdb"
	"github.com/kubilitics/couchdb-mcp/internal/mcp/tools"
	"github.com/kubilitics/couchdb-mcp/internal/metrics"
	"github.com/kubilitics/couchdb-mcp/internal/security"
	"github.com/kubilitics/couchdb-mcp/internal/value"
)

// Package server implements the Model Context Protocol (MCP) server.
//
// Every tool call passes through ExecuteTool, which:
//   - enforces the global call rate
//   - records an invocation event in the audit log before dispatch
//   - validates arguments and runs the handler
//   - records the outcome (success or error) with its duration
//
// Tool failures are reported to the caller as a result with isError set, not
// as a transport error. Only rate limiting fails the call itself.

var (
	// ErrToolNotFound is returned for calls to unregistered tools.
	ErrToolNotFound = errors.New("tool not found")

	// ErrRateLimited is returned when the call rate is exceeded.
	ErrRateLimited = errors.New("rate limit exceeded")
)

// MCPServer defines the interface for the Model Context Protocol server.
type MCPServer interface {
	// RegisterTool registers a new tool that the client can call.
	RegisterTool(def tools.ToolDefinition, handler ToolHandler) error

	// ListTools returns all registered tools sorted by name.
	ListTools(ctx context.Context) ([]Tool, error)

	// ExecuteTool executes a tool call. args is the raw JSON arguments object.
	ExecuteTool(ctx context.Context, toolName string, args json.RawMessage) (*ToolResult, error)

	// HandleMessage processes one JSON-RPC message. It returns nil for notifications.
	HandleMessage(ctx context.Context, data []byte) *Response

	// GetStats returns server statistics.
	GetStats() Stats
}

// CouchDB is the subset of the database client the tool handlers use.
type CouchDB interface {
	ListDatabases(ctx context.Context) ([]string, error)
	CreateDatabase(ctx context.Context, name string) error
	DeleteDatabase(ctx context.Context, name string) error
	DatabaseInfo(ctx context.Context, name string) (value.Value, error)
	CreateDocument(ctx context.Context, db string, doc value.Value, id string) (couchdb.DocumentResult, error)
	GetDocument(ctx context.Context, db, id string) (value.Value, error)
	UpdateDocument(ctx context.Context, db, id string, doc *value.Object) (couchdb.DocumentResult, error)
	DeleteDocument(ctx context.Context, db, id, rev string) (couchdb.DocumentResult, error)
	ListDocuments(ctx context.Context, db string, opts couchdb.ListOptions) (couchdb.DocumentList, error)
	CreateUser(ctx context.Context, username, password string, roles []string) error
	DeleteUser(ctx context.Context, username string) error
	GetSecurity(ctx context.Context, db string) (couchdb.SecurityDocument, error)
	SetSecurity(ctx context.Context, db string, sec couchdb.SecurityDocument) error
}

// AuditLog is the audit facade used for recording calls and serving the
// audit tools.
type AuditLog interface {
	RecordInvocation(operation string, params value.Value, opts ...audit.RecordOption)
	RecordSuccess(operation string, params value.Value, opts ...audit.RecordOption)
	RecordError(operation string, params value.Value, errMsg string, opts ...audit.RecordOption)
	RecordDatabaseOperation(operation, clusterID, databaseName string, params value.Value, result audit.Result, errMsg string, opts ...audit.RecordOption)
	RecordUserOperation(operation, clusterID, userID string, params value.Value, result audit.Result, errMsg string, opts ...audit.RecordOption)
	Query(filter audit.Filter) ([]audit.Event, error)
	Metrics(now time.Time) audit.Metrics
	OperationStats() map[string]audit.OperationStats
}

// Tool represents a single tool available to the client.
type Tool struct {
	Name        string      `json:"name"`
	Description string      `json:"description"`
	InputSchema interface{} `json:"inputSchema"`
	Category    string      `json:"category,omitempty"`
	Destructive bool        `json:"destructive"`
}

// ToolHandler is the function signature for tool execution handlers. args
// is never nil.
type ToolHandler func(ctx context.Context, args *value.Object) (interface{}, error)

// Content is one block of a tool result.
type Content struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// ToolResult is the MCP tools/call result.
type ToolResult struct {
	Content []Content `json:"content"`
	IsError bool      `json:"isError,omitempty"`
}

// Stats is a snapshot of call counters.
type Stats struct {
	RegisteredTools int              `json:"registeredTools"`
	TotalCalls      int64            `json:"totalCalls"`
	SuccessfulCalls int64            `json:"successfulCalls"`
	FailedCalls     int64            `json:"failedCalls"`
	RateLimited     int64            `json:"rateLimited"`
	AvgDuration     time.Duration    `json:"-"`
	AvgDurationMs   float64          `json:"avgDurationMs"`
	CallsByTool     map[string]int64 `json:"callsByTool"`
}

// mcpServerImpl is the concrete implementation of MCPServer.
type mcpServerImpl struct {
	clusterID   string
	db          CouchDB
	auditLog    AuditLog
	credentials *security.Generator
	logger      *zap.Logger

	// Tool registry
	mu    sync.RWMutex
	tools map[string]*toolRegistration

	// Statistics
	stats struct {
		sync.RWMutex
		TotalCalls      int64
		SuccessfulCalls int64
		FailedCalls     int64
		RateLimited     int64
		AvgDuration     time.Duration
		CallsByTool     map[string]int64
	}

	limiter *rate.Limiter
}

// toolRegistration holds the tool definition and handler.
type toolRegistration struct {
	Tool    *Tool
	Handler ToolHandler
}

// NewMCPServer creates a new MCP server with all tool registrations.
func NewMCPServer(cfg *config.Config, db CouchDB, auditLog AuditLog, credentials *security.Generator, logger *zap.Logger) (MCPServer, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if db == nil {
		return nil, fmt.Errorf("couchdb client is required")
	}
	if auditLog == nil {
		return nil, fmt.Errorf("audit logger is required")
	}
	if credentials == nil {
		return nil, fmt.Errorf("credential generator is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	limit := rate.Limit(cfg.Server.RateLimit)
	if cfg.Server.RateLimit <= 0 {
		limit = rate.Inf
	}
	burst := cfg.Server.RateBurst
	if burst < 1 {
		burst = 1
	}

	server := &mcpServerImpl{
		clusterID:   cfg.CouchDB.ClusterID,
		db:          db,
		auditLog:    auditLog,
		credentials: credentials,
		logger:      logger.Named("mcp"),
		tools:       make(map[string]*toolRegistration),
		limiter:     rate.NewLimiter(limit, burst),
	}
	server.stats.CallsByTool = make(map[string]int64)

	if err := server.registerAllTools(); err != nil {
		return nil, fmt.Errorf("failed to register tools: %w", err)
	}

	return server, nil
}

// RegisterTool registers a new tool with the MCP server.
func (s *mcpServerImpl) RegisterTool(def tools.ToolDefinition, handler ToolHandler) error {
	if def.Name == "" {
		return fmt.Errorf("tool name is required")
	}
	if handler == nil {
		return fmt.Errorf("tool handler is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.tools[def.Name]; exists {
		return fmt.Errorf("tool %s already registered", def.Name)
	}

	var schema interface{} = def.InputSchema
	if def.InputSchema == nil {
		schema = map[string]interface{}{"type": "object", "properties": map[string]interface{}{}}
	}

	s.tools[def.Name] = &toolRegistration{
		Tool: &Tool{
			Name:        def.Name,
			Description: def.Description,
			InputSchema: schema,
			Category:    string(def.Category),
			Destructive: def.Destructive,
		},
		Handler: handler,
	}
	return nil
}

// ListTools returns all registered tools.
func (s *mcpServerImpl) ListTools(ctx context.Context) ([]Tool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]Tool, 0, len(s.tools))
	for _, reg := range s.tools {
		result = append(result, *reg.Tool)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })

	return result, nil
}

// ExecuteTool executes a tool call.
func (s *mcpServerImpl) ExecuteTool(ctx context.Context, toolName string, rawArgs json.RawMessage) (*ToolResult, error) {
	if !s.limiter.Allow() {
		s.recordRateLimited(toolName)
		s.auditLog.RecordError(toolName, nil, ErrRateLimited.Error())
		s.logger.Warn("tool call rate limited", zap.String("tool", toolName))
		return nil, ErrRateLimited
	}

	startTime := time.Now()
	callID := uuid.NewString()
	opts := []audit.RecordOption{audit.WithMetadata(map[string]string{"callId": callID})}

	args, argErr := parseArguments(toolName, rawArgs)
	var params value.Value
	if args != nil {
		params = args
	}

	s.auditLog.RecordInvocation(toolName, params, opts...)

	result, err := s.dispatch(ctx, toolName, args, argErr)
	var text string
	if err == nil {
		text, err = formatResult(result)
	}
	duration := time.Since(startTime)
	opts = append(opts, audit.WithDuration(duration))

	if err != nil {
		s.recordFailure(toolName, duration)
		s.recordOutcome(toolName, args, params, audit.ResultError, err.Error(), opts)
		s.logger.Debug("tool call failed",
			zap.String("tool", toolName),
			zap.String("call_id", callID),
			zap.Duration("duration", duration),
			zap.Error(err))
		return &ToolResult{
			Content: []Content{{Type: "text", Text: fmt.Sprintf("Error executing %s: %s", toolName, err.Error())}},
			IsError: true,
		}, nil
	}

	s.recordSuccess(toolName, duration)
	s.recordOutcome(toolName, args, params, audit.ResultSuccess, "", opts)
	s.logger.Debug("tool call succeeded",
		zap.String("tool", toolName),
		zap.String("call_id", callID),
		zap.Duration("duration", duration))

	return &ToolResult{Content: []Content{{Type: "text", Text: text}}}, nil
}

func (s *mcpServerImpl) dispatch(ctx context.Context, toolName string, args *value.Object, argErr error) (interface{}, error) {
	s.mu.RLock()
	reg, exists := s.tools[toolName]
	s.mu.RUnlock()

	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrToolNotFound, toolName)
	}
	if argErr != nil {
		return nil, argErr
	}
	return reg.Handler(ctx, args)
}

// recordOutcome picks the audit variant from the call's arguments: calls
// naming a database are database operations, calls naming a user are user
// operations.
func (s *mcpServerImpl) recordOutcome(toolName string, args *value.Object, params value.Value, result audit.Result, errMsg string, opts []audit.RecordOption) {
	database, _ := args.GetString("databaseName")
	username, _ := args.GetString("username")
	if s.toolCategory(toolName) == tools.CategoryAudit {
		// audit filters name databases and users without operating on them
		database, username = "", ""
	}

	switch {
	case database != "":
		s.auditLog.RecordDatabaseOperation(toolName, s.clusterID, database, params, result, errMsg, opts...)
	case username != "":
		s.auditLog.RecordUserOperation(toolName, s.clusterID, username, params, result, errMsg, opts...)
	case result == audit.ResultError:
		s.auditLog.RecordError(toolName, params, errMsg, opts...)
	default:
		s.auditLog.RecordSuccess(toolName, params, opts...)
	}
}

// GetStats returns server statistics.
func (s *mcpServerImpl) GetStats() Stats {
	s.mu.RLock()
	toolCount := len(s.tools)
	s.mu.RUnlock()

	s.stats.RLock()
	defer s.stats.RUnlock()

	byTool := make(map[string]int64, len(s.stats.CallsByTool))
	for k, v := range s.stats.CallsByTool {
		byTool[k] = v
	}

	return Stats{
		RegisteredTools: toolCount,
		TotalCalls:      s.stats.TotalCalls,
		SuccessfulCalls: s.stats.SuccessfulCalls,
		FailedCalls:     s.stats.FailedCalls,
		RateLimited:     s.stats.RateLimited,
		AvgDuration:     s.stats.AvgDuration,
		AvgDurationMs:   float64(s.stats.AvgDuration) / float64(time.Millisecond),
		CallsByTool:     byTool,
	}
}

// recordSuccess records a successful tool call.
func (s *mcpServerImpl) recordSuccess(toolName string, duration time.Duration) {
	s.stats.Lock()
	s.stats.SuccessfulCalls++
	s.recordCallLocked(toolName, duration)
	s.stats.Unlock()

	metrics.MCPToolCalls.WithLabelValues(s.metricLabel(toolName), "success").Inc()
	metrics.MCPToolDuration.WithLabelValues(s.metricLabel(toolName)).Observe(duration.Seconds())
}

// recordFailure records a failed tool call.
func (s *mcpServerImpl) recordFailure(toolName string, duration time.Duration) {
	s.stats.Lock()
	s.stats.FailedCalls++
	s.recordCallLocked(toolName, duration)
	s.stats.Unlock()

	metrics.MCPToolCalls.WithLabelValues(s.metricLabel(toolName), "error").Inc()
	metrics.MCPToolDuration.WithLabelValues(s.metricLabel(toolName)).Observe(duration.Seconds())
}

func (s *mcpServerImpl) recordRateLimited(toolName string) {
	s.stats.Lock()
	s.stats.RateLimited++
	s.stats.Unlock()

	metrics.MCPToolCalls.WithLabelValues(s.metricLabel(toolName), "rate_limited").Inc()
}

func (s *mcpServerImpl) recordCallLocked(toolName string, duration time.Duration) {
	s.stats.TotalCalls++
	s.stats.CallsByTool[toolName]++

	// Update average duration
	if s.stats.TotalCalls == 1 {
		s.stats.AvgDuration = duration
	} else {
		s.stats.AvgDuration = time.Duration(
			(int64(s.stats.AvgDuration)*(s.stats.TotalCalls-1) + int64(duration)) / s.stats.TotalCalls,
		)
	}
}

func (s *mcpServerImpl) toolCategory(toolName string) tools.ToolCategory {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if reg, ok := s.tools[toolName]; ok {
		return tools.ToolCategory(reg.Tool.Category)
	}
	return ""
}

// metricLabel keeps label cardinality bounded to registered tools.
func (s *mcpServerImpl) metricLabel(toolName string) string {
	s.mu.RLock()
	_, ok := s.tools[toolName]
	s.mu.RUnlock()
	if !ok {
		return "unknown"
	}
	return toolName
}

// registerAllTools registers every tool in the taxonomy with its handler.
func (s *mcpServerImpl) registerAllTools() error {
	handlers := s.handlerMap()

	for _, def := range tools.ToolTaxonomy {
		handler, ok := handlers[def.Name]
		if !ok {
			return fmt.Errorf("no handler for tool %s", def.Name)
		}
		if err := s.RegisterTool(def, handler); err != nil {
			return fmt.Errorf("failed to register %s tool %s: %w", def.Category, def.Name, err)
		}
	}

	s.logger.Info("registered tools",
		zap.Int("count", len(tools.ToolTaxonomy)),
		zap.Int("categories", len(tools.Categories())))
	return nil
}

// handlerMap maps tool names to handlers.
func (s *mcpServerImpl) handlerMap() map[string]ToolHandler {
	return map[string]ToolHandler{
		tools.CreateDatabase:      s.handleCreateDatabase,
		tools.DeleteDatabase:      s.handleDeleteDatabase,
		tools.GetDatabaseInfo:     s.handleGetDatabaseInfo,
		tools.ListDatabases:       s.handleListDatabases,
		tools.CreateDocument:      s.handleCreateDocument,
		tools.GetDocument:         s.handleGetDocument,
		tools.UpdateDocument:      s.handleUpdateDocument,
		tools.DeleteDocument:      s.handleDeleteDocument,
		tools.ListDocuments:       s.handleListDocuments,
		tools.CreateUser:          s.handleCreateUser,
		tools.DeleteUser:          s.handleDeleteUser,
		tools.SetDatabaseSecurity: s.handleSetDatabaseSecurity,
		tools.GenerateCredentials: s.handleGenerateCredentials,
		tools.GenerateAPIKey:      s.handleGenerateAPIKey,
		tools.GetAuditEvents:      s.handleGetAuditEvents,
		tools.GetAuditMetrics:     s.handleGetAuditMetrics,
		tools.GetOperationStats:   s.handleGetOperationStats,
	}
}

// formatResult renders a handler result as tool text. Strings pass through;
// everything else is indented JSON.
func formatResult(result interface{}) (string, error) {
	if s, ok := result.(string); ok {
		return s, nil
	}
	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode result: %w", err)
	}
	return string(data), nil
}
