package metrics

import (
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kubilitics/couchdb-mcp/internal/audit"
)

func TestAuditCollector(t *testing.T) {
	log, err := audit.NewLogger(&audit.Config{MaxEvents: 5, Verbosity: "info"}, nil)
	require.NoError(t, err)

	log.RecordSuccess("list-databases", nil)
	log.RecordError("get-document", nil, "not_found")
	log.RecordSuccess("list-databases", nil)
	log.RecordSuccess("list-databases", nil)

	reg := prometheus.NewRegistry()
	require.NoError(t, reg.Register(NewAuditCollector(log)))

	expected := `
# HELP couchdb_mcp_audit_capacity Maximum number of audit events retained
# TYPE couchdb_mcp_audit_capacity gauge
couchdb_mcp_audit_capacity 5
# HELP couchdb_mcp_audit_error_rate Fraction of retained audit events with an error result
# TYPE couchdb_mcp_audit_error_rate gauge
couchdb_mcp_audit_error_rate 0.25
# HELP couchdb_mcp_audit_events_stored Number of audit events currently retained
# TYPE couchdb_mcp_audit_events_stored gauge
couchdb_mcp_audit_events_stored 4
# HELP couchdb_mcp_audit_operations_per_minute Audit events recorded in the last minute
# TYPE couchdb_mcp_audit_operations_per_minute gauge
couchdb_mcp_audit_operations_per_minute 4
`
	assert.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected)))
}

func TestToolCounters(t *testing.T) {
	before := testutil.ToFloat64(MCPToolCalls.WithLabelValues("list-databases", "success"))
	MCPToolCalls.WithLabelValues("list-databases", "success").Inc()
	assert.Equal(t, before+1, testutil.ToFloat64(MCPToolCalls.WithLabelValues("list-databases", "success")))
}

func TestResultLabel(t *testing.T) {
	assert.Equal(t, "none", ResultLabel(""))
	assert.Equal(t, "error", ResultLabel("error"))
}
