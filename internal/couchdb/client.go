package couchdb

// client.go: thin client for the CouchDB HTTP API.
//
// Every request goes through do(), which applies admin basic auth, encodes the
// body, and turns non-2xx responses into *Error. Documents travel as
// value.Value so key order is preserved end to end.

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/kubilitics/couchdb-mcp/internal/value"
)

const (
	defaultTimeout  = 30 * time.Second
	maxErrorBodyLen = 200
)

// Config holds connection settings.
type Config struct {
	URL      string
	Username string
	Password string
	Timeout  time.Duration
}

// Client talks to a single CouchDB server. It is safe for concurrent use.
type Client struct {
	baseURL    string
	username   string
	password   string
	httpClient *http.Client
}

// NewClient creates a client with a pooled transport.
func NewClient(cfg Config) (*Client, error) {
	u, err := url.Parse(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid couchdb url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("invalid couchdb url %q: scheme must be http or https", cfg.URL)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	return &Client{
		baseURL:  strings.TrimSuffix(cfg.URL, "/"),
		username: cfg.Username,
		password: cfg.Password,
		httpClient: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 20,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}, nil
}

// ─── Server ──────────────────────────────────────────────────────────────────

// ServerInfo returns the welcome document from GET /.
func (c *Client) ServerInfo(ctx context.Context) (value.Value, error) {
	return c.getValue(ctx, "/", nil)
}

// ─── Databases ───────────────────────────────────────────────────────────────

// ListDatabases returns every database name.
func (c *Client) ListDatabases(ctx context.Context) ([]string, error) {
	var names []string
	if err := c.do(ctx, http.MethodGet, "/_all_dbs", nil, nil, &names); err != nil {
		return nil, err
	}
	if names == nil {
		names = []string{}
	}
	return names, nil
}

// CreateDatabase creates a database.
func (c *Client) CreateDatabase(ctx context.Context, name string) error {
	return c.do(ctx, http.MethodPut, dbPath(name), nil, nil, nil)
}

// DeleteDatabase deletes a database and all of its documents.
func (c *Client) DeleteDatabase(ctx context.Context, name string) error {
	return c.do(ctx, http.MethodDelete, dbPath(name), nil, nil, nil)
}

// DatabaseInfo returns GET /{db}.
func (c *Client) DatabaseInfo(ctx context.Context, name string) (value.Value, error) {
	return c.getValue(ctx, dbPath(name), nil)
}

// ─── Documents ───────────────────────────────────────────────────────────────

// CreateDocument stores doc. With an empty id the server assigns one.
func (c *Client) CreateDocument(ctx context.Context, db string, doc value.Value, id string) (DocumentResult, error) {
	var res DocumentResult
	var err error
	if id != "" {
		err = c.do(ctx, http.MethodPut, docPath(db, id), nil, doc, &res)
	} else {
		err = c.do(ctx, http.MethodPost, dbPath(db), nil, doc, &res)
	}
	return res, err
}

// GetDocument returns the current revision of a document.
func (c *Client) GetDocument(ctx context.Context, db, id string) (value.Value, error) {
	return c.getValue(ctx, docPath(db, id), nil)
}

// UpdateDocument replaces a document with doc, using the current revision.
// doc is not modified.
func (c *Client) UpdateDocument(ctx context.Context, db, id string, doc *value.Object) (DocumentResult, error) {
	current, err := c.GetDocument(ctx, db, id)
	if err != nil {
		return DocumentResult{}, fmt.Errorf("fetch current revision: %w", err)
	}
	obj, ok := current.(*value.Object)
	if !ok {
		return DocumentResult{}, fmt.Errorf("document %s is not an object", id)
	}
	rev, ok := obj.GetString("_rev")
	if !ok {
		return DocumentResult{}, fmt.Errorf("document %s has no _rev", id)
	}

	next := doc.Clone()
	next.Set("_rev", value.String(rev))

	var res DocumentResult
	err = c.do(ctx, http.MethodPut, docPath(db, id), nil, next, &res)
	return res, err
}

// DeleteDocument deletes the given revision of a document.
func (c *Client) DeleteDocument(ctx context.Context, db, id, rev string) (DocumentResult, error) {
	var res DocumentResult
	err := c.do(ctx, http.MethodDelete, docPath(db, id), url.Values{"rev": {rev}}, nil, &res)
	return res, err
}

// ListDocuments reads _all_docs and drops design documents from the page.
// TotalRows counts the rows returned, not the whole database.
func (c *Client) ListDocuments(ctx context.Context, db string, opts ListOptions) (DocumentList, error) {
	query := url.Values{}
	if opts.IncludeDocs != nil {
		query.Set("include_docs", strconv.FormatBool(*opts.IncludeDocs))
	}
	if opts.Limit != nil {
		query.Set("limit", strconv.Itoa(*opts.Limit))
	}
	if opts.Skip != nil {
		query.Set("skip", strconv.Itoa(*opts.Skip))
	}

	var raw struct {
		Offset int               `json:"offset"`
		Rows   []json.RawMessage `json:"rows"`
	}
	if err := c.do(ctx, http.MethodGet, dbPath(db)+"/_all_docs", query, nil, &raw); err != nil {
		return DocumentList{}, err
	}

	rows := make([]value.Value, 0, len(raw.Rows))
	for _, r := range raw.Rows {
		var head struct {
			ID string `json:"id"`
		}
		if err := json.Unmarshal(r, &head); err != nil {
			return DocumentList{}, fmt.Errorf("decode row: %w", err)
		}
		if strings.HasPrefix(head.ID, designDocPrefix) {
			continue
		}
		row, err := value.Parse(r)
		if err != nil {
			return DocumentList{}, fmt.Errorf("decode row: %w", err)
		}
		rows = append(rows, row)
	}

	return DocumentList{TotalRows: len(rows), Offset: raw.Offset, Rows: rows}, nil
}

// ─── Users ───────────────────────────────────────────────────────────────────

// CreateUser adds a user to the _users database.
func (c *Client) CreateUser(ctx context.Context, username, password string, roles []string) error {
	if roles == nil {
		roles = []string{}
	}
	doc := userDocument{
		ID:       userIDPrefix + username,
		Name:     username,
		Type:     userDocumentType,
		Password: password,
		Roles:    roles,
	}
	return c.do(ctx, http.MethodPut, docPath(usersDB, doc.ID), nil, doc, nil)
}

// DeleteUser removes a user from the _users database.
func (c *Client) DeleteUser(ctx context.Context, username string) error {
	path := docPath(usersDB, userIDPrefix+username)

	var current userDocument
	if err := c.do(ctx, http.MethodGet, path, nil, nil, &current); err != nil {
		return err
	}
	return c.do(ctx, http.MethodDelete, path, url.Values{"rev": {current.Rev}}, nil, nil)
}

// ─── Security ────────────────────────────────────────────────────────────────

// GetSecurity returns a database's security document.
func (c *Client) GetSecurity(ctx context.Context, db string) (SecurityDocument, error) {
	var sec SecurityDocument
	if err := c.do(ctx, http.MethodGet, dbPath(db)+"/_security", nil, nil, &sec); err != nil {
		return SecurityDocument{}, err
	}
	return sec.normalize(), nil
}

// SetSecurity replaces a database's security document.
func (c *Client) SetSecurity(ctx context.Context, db string, sec SecurityDocument) error {
	return c.do(ctx, http.MethodPut, dbPath(db)+"/_security", nil, sec.normalize(), nil)
}

// ─── Transport ───────────────────────────────────────────────────────────────

func (c *Client) getValue(ctx context.Context, path string, query url.Values) (value.Value, error) {
	var raw json.RawMessage
	if err := c.do(ctx, http.MethodGet, path, query, nil, &raw); err != nil {
		return nil, err
	}
	v, err := value.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("GET %s: decode: %w", path, err)
	}
	return v, nil
}

// do sends one request. body, when non-nil, is JSON encoded; out, when
// non-nil, receives the decoded 2xx response.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out interface{}) error {
	target := c.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("%s %s: encode: %w", method, path, err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.username != "" {
		req.SetBasicAuth(c.username, c.password)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%s %s: read body: %w", method, path, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return newError(method, path, resp.StatusCode, data)
	}

	if out != nil {
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("%s %s: decode: %w", method, path, err)
		}
	}
	return nil
}

func newError(method, path string, status int, body []byte) *Error {
	e := &Error{Method: method, Path: path, StatusCode: status}
	var payload struct {
		Error  string `json:"error"`
		Reason string `json:"reason"`
	}
	if json.Unmarshal(body, &payload) == nil && payload.Error != "" {
		e.Code = payload.Error
		e.Reason = payload.Reason
		return e
	}
	e.Reason = truncate(strings.TrimSpace(string(body)), maxErrorBodyLen)
	return e
}

func dbPath(db string) string {
	return "/" + url.PathEscape(db)
}

func docPath(db, id string) string {
	return dbPath(db) + "/" + url.PathEscape(id)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "…"
}
