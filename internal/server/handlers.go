package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/kubilitics/couchdb-mcp/internal/audit"
	"github.com/kubilitics/couchdb-mcp/internal/middleware"
)

// APIError is the error body of the audit API.
type APIError struct {
	Error   string            `json:"error"`
	Code    string            `json:"code,omitempty"`
	Details map[string]string `json:"details,omitempty"`
}

// Error codes
const (
	ErrCodeInvalidRequest = "INVALID_REQUEST"
	ErrCodeInternalError  = "INTERNAL_ERROR"
)

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string, details map[string]string) {
	writeJSON(w, status, APIError{Error: message, Code: code, Details: details})
}

// handleHealth handles health check requests
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":        "healthy",
		"service":       "couchdb-mcp",
		"timestamp":     time.Now().UTC().Format(time.RFC3339),
		"uptimeSeconds": int64(time.Since(s.startedAt).Seconds()),
		"auditEvents":   s.auditLog.Len(),
		"feedClients":   s.hub.GetClientCount(),
		"tools":         s.mcp.GetStats(),
	})
}

// handleMCP serves one JSON-RPC message per POST. Notifications get 202.
func (s *Server) handleMCP(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBody+1))
	if err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "failed to read request body", nil)
		return
	}
	if len(body) > maxRequestBody {
		writeError(w, http.StatusRequestEntityTooLarge, ErrCodeInvalidRequest, "request body too large", nil)
		return
	}

	resp := s.mcp.HandleMessage(r.Context(), body)
	if resp == nil {
		w.WriteHeader(http.StatusAccepted)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// filterFromQuery reads an audit filter from query parameters.
func filterFromQuery(q url.Values) (audit.Filter, error) {
	f := audit.Filter{
		Operation:    q.Get("operation"),
		Result:       audit.Result(q.Get("result")),
		ClusterID:    q.Get("clusterId"),
		DatabaseName: q.Get("databaseName"),
		UserID:       q.Get("userId"),
	}

	for _, bound := range []struct {
		name string
		dst  **time.Time
	}{{"since", &f.Since}, {"until", &f.Until}} {
		raw := q.Get(bound.name)
		if raw == "" {
			continue
		}
		t, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			return audit.Filter{}, &audit.FilterError{Field: bound.name, Message: "must be an RFC 3339 timestamp"}
		}
		*bound.dst = &t
	}

	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return audit.Filter{}, &audit.FilterError{Field: "limit", Message: "must be an integer"}
		}
		f.Limit = n
	}

	return f, f.Validate()
}

func (s *Server) writeFilterError(w http.ResponseWriter, err error) {
	var fe *audit.FilterError
	if errors.As(err, &fe) {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, fe.Error(), map[string]string{fe.Field: fe.Message})
		return
	}
	s.logger.Error("audit query failed", zap.Error(err))
	writeError(w, http.StatusInternalServerError, ErrCodeInternalError, err.Error(), nil)
}

func (s *Server) handleAuditEvents(w http.ResponseWriter, r *http.Request) {
	filter, err := filterFromQuery(r.URL.Query())
	if err != nil {
		s.writeFilterError(w, err)
		return
	}
	events, err := s.auditLog.Query(filter)
	if err != nil {
		s.writeFilterError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"events": nonNil(events),
		"count":  len(events),
	})
}

func (s *Server) handleAuditErrors(w http.ResponseWriter, _ *http.Request) {
	events := s.auditLog.ErrorEvents()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"events": nonNil(events),
		"count":  len(events),
	})
}

func (s *Server) handleAuditRecent(w http.ResponseWriter, r *http.Request) {
	count := audit.DefaultRecentCount
	if raw := r.URL.Query().Get("count"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "count must be a positive integer",
				map[string]string{"count": raw})
			return
		}
		count = n
	}
	events := s.auditLog.RecentEvents(count)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"events": nonNil(events),
		"count":  len(events),
	})
}

func (s *Server) handleAuditStats(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.auditLog.OperationStats())
}

func (s *Server) handleAuditMetrics(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.auditLog.Metrics(time.Time{}))
}

func (s *Server) handleAuditExport(w http.ResponseWriter, r *http.Request) {
	filter, err := filterFromQuery(r.URL.Query())
	if err != nil {
		s.writeFilterError(w, err)
		return
	}
	data, err := s.auditLog.Export(filter)
	if err != nil {
		s.writeFilterError(w, err)
		return
	}

	filename := fmt.Sprintf("audit-%s.json", time.Now().UTC().Format("20060102T150405Z"))
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func (s *Server) handleAuditClear(w http.ResponseWriter, r *http.Request) {
	cleared := s.auditLog.Len()
	s.auditLog.Clear()
	s.logger.Info("audit log cleared",
		zap.Int("events", cleared),
		zap.String("client_ip", middleware.ClientIP(r)))
	writeJSON(w, http.StatusOK, map[string]interface{}{"cleared": cleared})
}

func nonNil(events []audit.Event) []audit.Event {
	if events == nil {
		return []audit.Event{}
	}
	return events
}
