package couchdb

import "github.com/kubilitics/couchdb-mcp/internal/value"

// DocumentResult is the acknowledgement CouchDB returns for writes.
type DocumentResult struct {
	OK  bool   `json:"ok"`
	ID  string `json:"id"`
	Rev string `json:"rev"`
}

// ListOptions controls _all_docs. Nil fields are not sent.
type ListOptions struct {
	IncludeDocs *bool
	Limit       *int
	Skip        *int
}

// DocumentList is an _all_docs page with design documents removed.
type DocumentList struct {
	TotalRows int           `json:"total_rows"`
	Offset    int           `json:"offset"`
	Rows      []value.Value `json:"rows"`
}

// Principals is one half of a security document.
type Principals struct {
	Names []string `json:"names"`
	Roles []string `json:"roles"`
}

// SecurityDocument is a database's _security object.
type SecurityDocument struct {
	Admins  Principals `json:"admins"`
	Members Principals `json:"members"`
}

// normalize replaces nil slices so the document always serializes with arrays.
func (s SecurityDocument) normalize() SecurityDocument {
	for _, p := range []*Principals{&s.Admins, &s.Members} {
		if p.Names == nil {
			p.Names = []string{}
		}
		if p.Roles == nil {
			p.Roles = []string{}
		}
	}
	return s
}

type userDocument struct {
	ID       string   `json:"_id"`
	Rev      string   `json:"_rev,omitempty"`
	Name     string   `json:"name"`
	Type     string   `json:"type"`
	Password string   `json:"password,omitempty"`
	Roles    []string `json:"roles"`
}

const (
	usersDB          = "_users"
	userIDPrefix     = "org.couchdb.user:"
	designDocPrefix  = "_design/"
	userDocumentType = "user"
)
