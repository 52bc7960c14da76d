package server

import (
	"context"
	"fmt"

	"github.com/kubilitics/couchdb-mcp/internal/couchdb"
	"github.com/kubilitics/couchdb-mcp/internal/mcp/tools"
	"github.com/kubilitics/couchdb-mcp/internal/value"
)

type documentArgs struct {
	DatabaseName string `json:"databaseName" validate:"required"`
	DocumentID   string `json:"documentId" validate:"required"`
}

type createDocumentArgs struct {
	DatabaseName string `json:"databaseName" validate:"required"`
	DocumentID   string `json:"documentId"`
}

type deleteDocumentArgs struct {
	DatabaseName string `json:"databaseName" validate:"required"`
	DocumentID   string `json:"documentId" validate:"required"`
	Revision     string `json:"revision" validate:"required"`
}

type listDocumentsArgs struct {
	DatabaseName string `json:"databaseName" validate:"required"`
	IncludeDocs  *bool  `json:"includeDocs"`
	Limit        *int   `json:"limit" validate:"omitempty,gte=0"`
	Skip         *int   `json:"skip" validate:"omitempty,gte=0"`
}

func (s *mcpServerImpl) handleCreateDocument(ctx context.Context, args *value.Object) (interface{}, error) {
	var in createDocumentArgs
	if err := bindArgs(tools.CreateDocument, args, &in); err != nil {
		return nil, err
	}
	doc, err := objectArg(tools.CreateDocument, args, "document")
	if err != nil {
		return nil, err
	}
	return s.db.CreateDocument(ctx, in.DatabaseName, doc, in.DocumentID)
}

func (s *mcpServerImpl) handleGetDocument(ctx context.Context, args *value.Object) (interface{}, error) {
	var in documentArgs
	if err := bindArgs(tools.GetDocument, args, &in); err != nil {
		return nil, err
	}
	return s.db.GetDocument(ctx, in.DatabaseName, in.DocumentID)
}

func (s *mcpServerImpl) handleUpdateDocument(ctx context.Context, args *value.Object) (interface{}, error) {
	var in documentArgs
	if err := bindArgs(tools.UpdateDocument, args, &in); err != nil {
		return nil, err
	}
	doc, err := objectArg(tools.UpdateDocument, args, "document")
	if err != nil {
		return nil, err
	}
	return s.db.UpdateDocument(ctx, in.DatabaseName, in.DocumentID, doc)
}

func (s *mcpServerImpl) handleDeleteDocument(ctx context.Context, args *value.Object) (interface{}, error) {
	var in deleteDocumentArgs
	if err := bindArgs(tools.DeleteDocument, args, &in); err != nil {
		return nil, err
	}
	if _, err := s.db.DeleteDocument(ctx, in.DatabaseName, in.DocumentID, in.Revision); err != nil {
		return nil, err
	}
	return fmt.Sprintf("Document %s deleted successfully", in.DocumentID), nil
}

func (s *mcpServerImpl) handleListDocuments(ctx context.Context, args *value.Object) (interface{}, error) {
	var in listDocumentsArgs
	if err := bindArgs(tools.ListDocuments, args, &in); err != nil {
		return nil, err
	}
	return s.db.ListDocuments(ctx, in.DatabaseName, couchdb.ListOptions{
		IncludeDocs: in.IncludeDocs,
		Limit:       in.Limit,
		Skip:        in.Skip,
	})
}
