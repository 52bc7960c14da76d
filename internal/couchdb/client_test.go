package couchdb

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kubilitics/couchdb-mcp/internal/value"
)

type recordedRequest struct {
	Method string
	Path   string
	Query  string
	Body   string
	User   string
}

// fakeCouch routes "METHOD /escaped/path" to canned responses.
type fakeCouch struct {
	t        *testing.T
	routes   map[string]func(w http.ResponseWriter, r *http.Request)
	requests []recordedRequest
}

func newFakeCouch(t *testing.T) (*fakeCouch, *Client) {
	t.Helper()
	f := &fakeCouch{t: t, routes: make(map[string]func(http.ResponseWriter, *http.Request))}
	srv := httptest.NewServer(f)
	t.Cleanup(srv.Close)

	client, err := NewClient(Config{URL: srv.URL + "/", Username: "admin", Password: "secret"})
	require.NoError(t, err)
	return f, client
}

func (f *fakeCouch) handle(route string, status int, body string) {
	f.routes[route] = func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = io.WriteString(w, body)
	}
}

func (f *fakeCouch) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	user, _, _ := r.BasicAuth()
	f.requests = append(f.requests, recordedRequest{
		Method: r.Method,
		Path:   r.URL.EscapedPath(),
		Query:  r.URL.RawQuery,
		Body:   string(body),
		User:   user,
	})

	route := r.Method + " " + r.URL.EscapedPath()
	h, ok := f.routes[route]
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		_, _ = io.WriteString(w, `{"error":"not_found","reason":"missing"}`)
		return
	}
	h(w, r)
}

func (f *fakeCouch) last() recordedRequest {
	require.NotEmpty(f.t, f.requests)
	return f.requests[len(f.requests)-1]
}

func TestNewClientRejectsBadURL(t *testing.T) {
	_, err := NewClient(Config{URL: "ftp://couch"})
	assert.Error(t, err)

	_, err = NewClient(Config{URL: "://nope"})
	assert.Error(t, err)
}

func TestServerInfo(t *testing.T) {
	f, c := newFakeCouch(t)
	f.handle("GET /", http.StatusOK, `{"couchdb":"Welcome","version":"3.3.3"}`)

	info, err := c.ServerInfo(context.Background())
	require.NoError(t, err)

	data, err := json.Marshal(info)
	require.NoError(t, err)
	assert.JSONEq(t, `{"couchdb":"Welcome","version":"3.3.3"}`, string(data))
	assert.Equal(t, "admin", f.last().User)
}

func TestDatabaseLifecycle(t *testing.T) {
	f, c := newFakeCouch(t)
	ctx := context.Background()

	f.handle("PUT /orders", http.StatusCreated, `{"ok":true}`)
	f.handle("GET /_all_dbs", http.StatusOK, `["_users","orders"]`)
	f.handle("GET /orders", http.StatusOK, `{"db_name":"orders","doc_count":0}`)
	f.handle("DELETE /orders", http.StatusOK, `{"ok":true}`)

	require.NoError(t, c.CreateDatabase(ctx, "orders"))

	dbs, err := c.ListDatabases(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"_users", "orders"}, dbs)

	info, err := c.DatabaseInfo(ctx, "orders")
	require.NoError(t, err)
	name, _ := info.(*value.Object).GetString("db_name")
	assert.Equal(t, "orders", name)

	require.NoError(t, c.DeleteDatabase(ctx, "orders"))
	assert.Equal(t, "DELETE", f.last().Method)
}

func TestDatabaseNamesAreEscaped(t *testing.T) {
	f, c := newFakeCouch(t)
	f.handle("PUT /team%2Forders", http.StatusCreated, `{"ok":true}`)

	require.NoError(t, c.CreateDatabase(context.Background(), "team/orders"))
	assert.Equal(t, "/team%2Forders", f.last().Path)
}

func TestErrorsAreTyped(t *testing.T) {
	f, c := newFakeCouch(t)
	f.handle("PUT /orders", http.StatusPreconditionFailed, `{"error":"file_exists","reason":"The database could not be created, the file already exists."}`)
	f.handle("PUT /conflict/doc1", http.StatusConflict, `{"error":"conflict","reason":"Document update conflict."}`)
	f.handle("GET /_all_dbs", http.StatusUnauthorized, `{"error":"unauthorized","reason":"Name or password is incorrect."}`)
	f.handle("GET /broken", http.StatusBadGateway, strings.Repeat("x", 500))

	ctx := context.Background()

	err := c.CreateDatabase(ctx, "orders")
	require.Error(t, err)
	var cerr *Error
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, http.StatusPreconditionFailed, cerr.StatusCode)
	assert.Equal(t, "file_exists", cerr.Code)
	assert.Contains(t, err.Error(), "already exists")

	_, err = c.GetDocument(ctx, "orders", "missing")
	assert.True(t, IsNotFound(err))
	assert.False(t, IsConflict(err))

	_, err = c.CreateDocument(ctx, "conflict", value.NewObject(), "doc1")
	assert.True(t, IsConflict(err))

	_, err = c.ListDatabases(ctx)
	assert.True(t, IsUnauthorized(err))

	_, err = c.DatabaseInfo(ctx, "broken")
	require.ErrorAs(t, err, &cerr)
	assert.Empty(t, cerr.Code)
	assert.LessOrEqual(t, len(cerr.Reason), maxErrorBodyLen+len("…"))
}

func TestCreateDocument(t *testing.T) {
	f, c := newFakeCouch(t)
	ctx := context.Background()

	f.handle("POST /orders", http.StatusCreated, `{"ok":true,"id":"generated","rev":"1-a"}`)
	f.handle("PUT /orders/order-1", http.StatusCreated, `{"ok":true,"id":"order-1","rev":"1-b"}`)

	doc, err := value.Parse([]byte(`{"z":1,"a":2}`))
	require.NoError(t, err)

	res, err := c.CreateDocument(ctx, "orders", doc, "")
	require.NoError(t, err)
	assert.Equal(t, DocumentResult{OK: true, ID: "generated", Rev: "1-a"}, res)
	assert.Equal(t, `{"z":1,"a":2}`, f.last().Body, "key order is preserved on the wire")

	res, err = c.CreateDocument(ctx, "orders", doc, "order-1")
	require.NoError(t, err)
	assert.Equal(t, "order-1", res.ID)
	assert.Equal(t, "PUT", f.last().Method)
}

func TestUpdateDocumentUsesCurrentRevision(t *testing.T) {
	f, c := newFakeCouch(t)
	f.handle("GET /orders/order-1", http.StatusOK, `{"_id":"order-1","_rev":"3-c","status":"new"}`)
	f.handle("PUT /orders/order-1", http.StatusCreated, `{"ok":true,"id":"order-1","rev":"4-d"}`)

	doc := value.NewObject()
	doc.Set("status", value.String("shipped"))

	res, err := c.UpdateDocument(context.Background(), "orders", "order-1", doc)
	require.NoError(t, err)
	assert.Equal(t, "4-d", res.Rev)
	assert.Equal(t, `{"status":"shipped","_rev":"3-c"}`, f.last().Body)

	_, hasRev := doc.Get("_rev")
	assert.False(t, hasRev, "caller's document is not modified")
}

func TestUpdateMissingDocument(t *testing.T) {
	_, c := newFakeCouch(t)

	_, err := c.UpdateDocument(context.Background(), "orders", "ghost", value.NewObject())
	require.Error(t, err)
	assert.True(t, IsNotFound(err))
}

func TestDeleteDocument(t *testing.T) {
	f, c := newFakeCouch(t)
	f.handle("DELETE /orders/order-1", http.StatusOK, `{"ok":true,"id":"order-1","rev":"5-e"}`)

	res, err := c.DeleteDocument(context.Background(), "orders", "order-1", "4-d")
	require.NoError(t, err)
	assert.True(t, res.OK)
	assert.Equal(t, "rev=4-d", f.last().Query)
}

func TestListDocumentsDropsDesignDocuments(t *testing.T) {
	f, c := newFakeCouch(t)
	f.handle("GET /orders/_all_docs", http.StatusOK, `{
		"total_rows": 3, "offset": 1,
		"rows": [
			{"id":"_design/views","key":"_design/views","value":{"rev":"1-x"}},
			{"id":"a","key":"a","value":{"rev":"1-a"}},
			{"id":"b","key":"b","value":{"rev":"1-b"}}
		]}`)

	includeDocs, limit, skip := true, 10, 1
	list, err := c.ListDocuments(context.Background(), "orders", ListOptions{
		IncludeDocs: &includeDocs,
		Limit:       &limit,
		Skip:        &skip,
	})
	require.NoError(t, err)

	assert.Equal(t, 2, list.TotalRows)
	assert.Equal(t, 1, list.Offset)
	require.Len(t, list.Rows, 2)
	id, _ := list.Rows[0].(*value.Object).GetString("id")
	assert.Equal(t, "a", id)
	assert.Equal(t, "include_docs=true&limit=10&skip=1", f.last().Query)
}

func TestListDocumentsWithoutOptions(t *testing.T) {
	f, c := newFakeCouch(t)
	f.handle("GET /orders/_all_docs", http.StatusOK, `{"total_rows":0,"offset":0,"rows":[]}`)

	list, err := c.ListDocuments(context.Background(), "orders", ListOptions{})
	require.NoError(t, err)
	assert.Empty(t, list.Rows)
	assert.Empty(t, f.last().Query)

	data, err := json.Marshal(list)
	require.NoError(t, err)
	assert.JSONEq(t, `{"total_rows":0,"offset":0,"rows":[]}`, string(data))
}

func TestCreateAndDeleteUser(t *testing.T) {
	f, c := newFakeCouch(t)
	ctx := context.Background()

	f.handle("PUT /_users/org.couchdb.user:U-orders", http.StatusCreated, `{"ok":true}`)
	f.handle("GET /_users/org.couchdb.user:U-orders", http.StatusOK, `{"_id":"org.couchdb.user:U-orders","_rev":"2-f","name":"U-orders","type":"user","roles":[]}`)
	f.handle("DELETE /_users/org.couchdb.user:U-orders", http.StatusOK, `{"ok":true}`)

	require.NoError(t, c.CreateUser(ctx, "U-orders", "pw", nil))

	var sent map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(f.last().Body), &sent))
	assert.Equal(t, "org.couchdb.user:U-orders", sent["_id"])
	assert.Equal(t, "user", sent["type"])
	assert.Equal(t, "pw", sent["password"])
	assert.Equal(t, []interface{}{}, sent["roles"])

	require.NoError(t, c.DeleteUser(ctx, "U-orders"))
	assert.Equal(t, "rev=2-f", f.last().Query)

	err := c.DeleteUser(ctx, "U-ghost")
	assert.True(t, IsNotFound(err))
}

func TestSecurityDocument(t *testing.T) {
	f, c := newFakeCouch(t)
	ctx := context.Background()

	f.handle("GET /orders/_security", http.StatusOK, `{}`)
	f.handle("PUT /orders/_security", http.StatusOK, `{"ok":true}`)

	sec, err := c.GetSecurity(ctx, "orders")
	require.NoError(t, err)
	assert.Equal(t, []string{}, sec.Admins.Names)
	assert.Equal(t, []string{}, sec.Members.Roles)

	require.NoError(t, c.SetSecurity(ctx, "orders", SecurityDocument{
		Members: Principals{Roles: []string{"role-orders"}},
	}))
	assert.JSONEq(t,
		`{"admins":{"names":[],"roles":[]},"members":{"names":[],"roles":["role-orders"]}}`,
		f.last().Body)
}

func TestContextCancellation(t *testing.T) {
	_, c := newFakeCouch(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.ListDatabases(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}
