package tools

import "sort"

// ToolCategory represents the category of MCP tools
type ToolCategory string

const (
	// Database tools - create, inspect and remove databases
	CategoryDatabase ToolCategory = "database"

	// Document tools - CRUD on documents inside a database
	CategoryDocument ToolCategory = "document"

	// User tools - _users management
	CategoryUser ToolCategory = "user"

	// Security tools - database permissions and credential generation
	CategorySecurity ToolCategory = "security"

	// Audit tools - read-only access to the audit log
	CategoryAudit ToolCategory = "audit"
)

// ToolDefinition describes one MCP tool: name, schema, category and flags.
type ToolDefinition struct {
	Name        string                 `json:"name"`
	Category    ToolCategory           `json:"category"`
	Description string                 `json:"description"`
	InputSchema map[string]interface{} `json:"inputSchema"`
	Destructive bool                   `json:"destructive"`
}

// Tool names.
const (
	CreateDatabase      = "create-database"
	DeleteDatabase      = "delete-database"
	GetDatabaseInfo     = "get-database-info"
	ListDatabases       = "list-databases"
	CreateDocument      = "create-document"
	GetDocument         = "get-document"
	UpdateDocument      = "update-document"
	DeleteDocument      = "delete-document"
	ListDocuments       = "list-documents"
	CreateUser          = "create-user"
	DeleteUser          = "delete-user"
	SetDatabaseSecurity = "set-database-security"
	GenerateCredentials = "generate-credentials"
	GenerateAPIKey      = "generate-api-key"
	GetAuditEvents      = "get-audit-events"
	GetAuditMetrics     = "get-audit-metrics"
	GetOperationStats   = "get-operation-stats"
)

func schema(props map[string]interface{}, required ...string) map[string]interface{} {
	if props == nil {
		props = map[string]interface{}{}
	}
	s := map[string]interface{}{
		"type":       "object",
		"properties": props,
	}
	if len(required) > 0 {
		s["required"] = required
	}
	return s
}

func prop(typ, description string) map[string]interface{} {
	return map[string]interface{}{"type": typ, "description": description}
}

func stringList(description string) map[string]interface{} {
	return map[string]interface{}{
		"type":        "array",
		"items":       map[string]interface{}{"type": "string"},
		"description": description,
	}
}

func principals(description string) map[string]interface{} {
	return map[string]interface{}{
		"type":        "object",
		"description": description,
		"properties": map[string]interface{}{
			"names": stringList("User names"),
			"roles": stringList("Role names"),
		},
	}
}

// ToolTaxonomy lists every tool the server exposes.
var ToolTaxonomy = []ToolDefinition{
	// === DATABASE TOOLS ===
	{
		Name:        CreateDatabase,
		Category:    CategoryDatabase,
		Description: "Create a new database",
		InputSchema: schema(map[string]interface{}{
			"databaseName": prop("string", "Name of the database to create"),
		}, "databaseName"),
	},
	{
		Name:        DeleteDatabase,
		Category:    CategoryDatabase,
		Description: "Delete a database and all of its documents",
		InputSchema: schema(map[string]interface{}{
			"databaseName": prop("string", "Name of the database to delete"),
		}, "databaseName"),
		Destructive: true,
	},
	{
		Name:        GetDatabaseInfo,
		Category:    CategoryDatabase,
		Description: "Get information about a database",
		InputSchema: schema(map[string]interface{}{
			"databaseName": prop("string", "Name of the database"),
		}, "databaseName"),
	},
	{
		Name:        ListDatabases,
		Category:    CategoryDatabase,
		Description: "List all databases",
		InputSchema: schema(nil),
	},

	// === DOCUMENT TOOLS ===
	{
		Name:        CreateDocument,
		Category:    CategoryDocument,
		Description: "Create a document in a database",
		InputSchema: schema(map[string]interface{}{
			"databaseName": prop("string", "Database name"),
			"document":     prop("object", "Document to create"),
			"documentId":   prop("string", "Optional document ID"),
		}, "databaseName", "document"),
	},
	{
		Name:        GetDocument,
		Category:    CategoryDocument,
		Description: "Get a document from a database",
		InputSchema: schema(map[string]interface{}{
			"databaseName": prop("string", "Database name"),
			"documentId":   prop("string", "Document ID"),
		}, "databaseName", "documentId"),
	},
	{
		Name:        UpdateDocument,
		Category:    CategoryDocument,
		Description: "Update a document in a database. The current revision is fetched automatically.",
		InputSchema: schema(map[string]interface{}{
			"databaseName": prop("string", "Database name"),
			"documentId":   prop("string", "Document ID"),
			"document":     prop("object", "Updated document"),
		}, "databaseName", "documentId", "document"),
	},
	{
		Name:        DeleteDocument,
		Category:    CategoryDocument,
		Description: "Delete a document from a database",
		InputSchema: schema(map[string]interface{}{
			"databaseName": prop("string", "Database name"),
			"documentId":   prop("string", "Document ID"),
			"revision":     prop("string", "Document revision"),
		}, "databaseName", "documentId", "revision"),
		Destructive: true,
	},
	{
		Name:        ListDocuments,
		Category:    CategoryDocument,
		Description: "List all documents in a database. Design documents are omitted.",
		InputSchema: schema(map[string]interface{}{
			"databaseName": prop("string", "Database name"),
			"includeDocs":  prop("boolean", "Optional: include full document content (default: false)"),
			"limit":        prop("integer", "Optional: maximum number of documents to return"),
			"skip":         prop("integer", "Optional: number of documents to skip"),
		}, "databaseName"),
	},

	// === USER TOOLS ===
	{
		Name:        CreateUser,
		Category:    CategoryUser,
		Description: "Create a new user",
		InputSchema: schema(map[string]interface{}{
			"username": prop("string", "Username"),
			"password": prop("string", "Password"),
			"roles":    stringList("User roles"),
		}, "username", "password"),
	},
	{
		Name:        DeleteUser,
		Category:    CategoryUser,
		Description: "Delete a user",
		InputSchema: schema(map[string]interface{}{
			"username": prop("string", "Username to delete"),
		}, "username"),
		Destructive: true,
	},

	// === SECURITY TOOLS ===
	{
		Name:        SetDatabaseSecurity,
		Category:    CategorySecurity,
		Description: "Set security permissions for a database",
		InputSchema: schema(map[string]interface{}{
			"databaseName": prop("string", "Database name"),
			"security": map[string]interface{}{
				"type":        "object",
				"description": "Security document",
				"properties": map[string]interface{}{
					"admins":  principals("Database administrators"),
					"members": principals("Database members"),
				},
			},
		}, "databaseName", "security"),
	},
	{
		Name:        GenerateCredentials,
		Category:    CategorySecurity,
		Description: "Generate a username and random password. Optionally create the user with a role and grant that role membership of a database.",
		InputSchema: schema(map[string]interface{}{
			"identifier":   prop("string", "Optional: identifier embedded in the username and role"),
			"createUser":   prop("boolean", "Optional: create the user in _users (default: false)"),
			"databaseName": prop("string", "Optional: database whose members gain the generated role; requires createUser"),
		}),
	},
	{
		Name:        GenerateAPIKey,
		Category:    CategorySecurity,
		Description: "Generate an API key and its bcrypt hash for storage",
		InputSchema: schema(nil),
	},

	// === AUDIT TOOLS ===
	{
		Name:        GetAuditEvents,
		Category:    CategoryAudit,
		Description: "Query the audit log, newest first",
		InputSchema: schema(map[string]interface{}{
			"operation":    prop("string", "Optional: exact operation name"),
			"result":       map[string]interface{}{"type": "string", "enum": []string{"success", "error"}, "description": "Optional: outcome"},
			"clusterId":    prop("string", "Optional: cluster identifier"),
			"databaseName": prop("string", "Optional: database name"),
			"userId":       prop("string", "Optional: user identifier"),
			"since":        prop("string", "Optional: RFC 3339 lower bound, inclusive"),
			"until":        prop("string", "Optional: RFC 3339 upper bound, inclusive"),
			"limit":        prop("integer", "Optional: maximum number of events to return"),
		}),
	},
	{
		Name:        GetAuditMetrics,
		Category:    CategoryAudit,
		Description: "Get audit metrics: total events, error rate, operations in the last minute and recent errors",
		InputSchema: schema(nil),
	},
	{
		Name:        GetOperationStats,
		Category:    CategoryAudit,
		Description: "Get per-operation success and error counts",
		InputSchema: schema(nil),
	},
}

// GetToolsByCategory returns all tools in a specific category
func GetToolsByCategory(category ToolCategory) []ToolDefinition {
	var result []ToolDefinition
	for _, tool := range ToolTaxonomy {
		if tool.Category == category {
			result = append(result, tool)
		}
	}
	return result
}

// GetToolByName returns a tool definition by name
func GetToolByName(name string) *ToolDefinition {
	for i := range ToolTaxonomy {
		if ToolTaxonomy[i].Name == name {
			return &ToolTaxonomy[i]
		}
	}
	return nil
}

// GetNonDestructiveTools returns all read-only tools
func GetNonDestructiveTools() []ToolDefinition {
	var result []ToolDefinition
	for _, tool := range ToolTaxonomy {
		if !tool.Destructive {
			result = append(result, tool)
		}
	}
	return result
}

// Categories returns the categories in use, sorted.
func Categories() []ToolCategory {
	seen := make(map[ToolCategory]bool)
	var out []ToolCategory
	for _, tool := range ToolTaxonomy {
		if !seen[tool.Category] {
			seen[tool.Category] = true
			out = append(out, tool.Category)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
