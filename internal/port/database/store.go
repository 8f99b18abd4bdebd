// Package database defines the database store port (interface).
package database

import (
	"context"

	"github.com/Strob0t/ReviewFlow/internal/domain/analysis"
	"github.com/Strob0t/ReviewFlow/internal/domain/document"
)

// Store is the port interface for document and analysis persistence.
// UpdateDocument is compare-and-swap: the write succeeds only if the stored
// version still equals expectedVersion, otherwise domain.ErrConflict.
type Store interface {
	// Documents
	CreateDocument(ctx context.Context, req document.CreateRequest) (*document.Document, error)
	GetDocument(ctx context.Context, id string) (*document.Document, error)
	ListDocumentsByOwner(ctx context.Context, ownerID string) ([]document.Document, error)
	UpdateDocument(ctx context.Context, doc *document.Document, expectedVersion int) error

	// Analysis results
	CreateAnalysis(ctx context.Context, result *analysis.Result) error
	GetAnalysis(ctx context.Context, id string) (*analysis.Result, error)
	FinishAnalysis(ctx context.Context, result *analysis.Result) error
	GetRunningAnalysis(ctx context.Context, documentID string) (*analysis.Result, error)
}
