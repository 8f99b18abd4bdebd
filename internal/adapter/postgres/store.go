package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Strob0t/ReviewFlow/internal/domain"
	"github.com/Strob0t/ReviewFlow/internal/domain/analysis"
	"github.com/Strob0t/ReviewFlow/internal/domain/document"
)

// Store implements database.Store using PostgreSQL.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore creates a new Store backed by the given connection pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// --- Documents ---

const documentColumns = `id, kind, owner_id, title, content, status, version,
       COALESCE(rejected_by, ''), COALESCE(rejection_reason, ''), COALESCE(analysis_id::text, ''),
       COALESCE(l1_reviewer_id, ''), COALESCE(l2_reviewer_id, ''),
       created_at, updated_at, submitted_at, stage_entered_at`

func (s *Store) CreateDocument(ctx context.Context, req document.CreateRequest) (*document.Document, error) {
	row := s.pool.QueryRow(ctx,
		`INSERT INTO documents (kind, owner_id, title, content)
		 VALUES ($1, $2, $3, $4)
		 RETURNING `+documentColumns,
		string(req.Kind), req.OwnerID, req.Title, req.Content)

	doc, err := scanDocument(row)
	if err != nil {
		return nil, fmt.Errorf("create document: %w", err)
	}
	return &doc, nil
}

func (s *Store) GetDocument(ctx context.Context, id string) (*document.Document, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+documentColumns+` FROM documents WHERE id = $1`, id)

	doc, err := scanDocument(row)
	if err != nil {
		return nil, notFoundWrap(err, "get document %s", id)
	}
	return &doc, nil
}

func (s *Store) ListDocumentsByOwner(ctx context.Context, ownerID string) ([]document.Document, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+documentColumns+` FROM documents WHERE owner_id = $1 ORDER BY created_at DESC`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	defer rows.Close()

	var docs []document.Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

// UpdateDocument is compare-and-swap on the stored version: the write succeeds
// only if the row still carries expectedVersion, otherwise domain.ErrConflict.
func (s *Store) UpdateDocument(ctx context.Context, doc *document.Document, expectedVersion int) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE documents SET
		   title = $2, content = $3, status = $4, version = $5,
		   rejected_by = NULLIF($6, ''), rejection_reason = NULLIF($7, ''),
		   analysis_id = NULLIF($8, '')::uuid,
		   l1_reviewer_id = NULLIF($9, ''), l2_reviewer_id = NULLIF($10, ''),
		   updated_at = $11, submitted_at = $12, stage_entered_at = $13
		 WHERE id = $1 AND version = $14`,
		doc.ID, doc.Title, doc.Content, string(doc.Status), doc.Version,
		string(doc.RejectedBy), doc.RejectionReason, doc.AnalysisID,
		doc.L1ReviewerID, doc.L2ReviewerID,
		doc.UpdatedAt, doc.SubmittedAt, doc.StageEnteredAt,
		expectedVersion)
	if err != nil {
		return fmt.Errorf("update document %s: %w", doc.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("update document %s: %w", doc.ID, domain.ErrConflict)
	}
	return nil
}

// --- Analysis results ---

const analysisColumns = `id, document_id, status, confidence, COALESCE(summary, ''), payload,
       duration_ms, COALESCE(error_message, ''), created_at, completed_at`

func (s *Store) CreateAnalysis(ctx context.Context, result *analysis.Result) error {
	var payloadJSON []byte
	if result.Payload != nil {
		var err error
		payloadJSON, err = json.Marshal(result.Payload)
		if err != nil {
			return fmt.Errorf("marshal payload: %w", err)
		}
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO analysis_results (id, document_id, status, confidence, summary, payload, duration_ms, error_message, created_at, completed_at)
		 VALUES ($1, $2, $3, $4, NULLIF($5, ''), $6, $7, NULLIF($8, ''), $9, $10)`,
		result.ID, result.DocumentID, string(result.Status), result.Confidence, result.Summary,
		payloadJSON, result.DurationMS, result.ErrorMessage, result.CreatedAt, result.CompletedAt)
	if err != nil {
		return fmt.Errorf("create analysis: %w", err)
	}
	return nil
}

func (s *Store) GetAnalysis(ctx context.Context, id string) (*analysis.Result, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+analysisColumns+` FROM analysis_results WHERE id = $1`, id)

	r, err := scanAnalysis(row)
	if err != nil {
		return nil, notFoundWrap(err, "get analysis %s", id)
	}
	return &r, nil
}

// FinishAnalysis records the terminal state of an evaluation. It upserts so
// the outcome survives even when the initial running row never made it in.
func (s *Store) FinishAnalysis(ctx context.Context, result *analysis.Result) error {
	var payloadJSON []byte
	if result.Payload != nil {
		var err error
		payloadJSON, err = json.Marshal(result.Payload)
		if err != nil {
			return fmt.Errorf("marshal payload: %w", err)
		}
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO analysis_results (id, document_id, status, confidence, summary, payload, duration_ms, error_message, created_at, completed_at)
		 VALUES ($1, $2, $3, $4, NULLIF($5, ''), $6, $7, NULLIF($8, ''), $9, $10)
		 ON CONFLICT (id) DO UPDATE SET
		   status = EXCLUDED.status,
		   confidence = EXCLUDED.confidence,
		   summary = EXCLUDED.summary,
		   payload = EXCLUDED.payload,
		   duration_ms = EXCLUDED.duration_ms,
		   error_message = EXCLUDED.error_message,
		   completed_at = EXCLUDED.completed_at`,
		result.ID, result.DocumentID, string(result.Status), result.Confidence, result.Summary,
		payloadJSON, result.DurationMS, result.ErrorMessage, result.CreatedAt, result.CompletedAt)
	if err != nil {
		return fmt.Errorf("finish analysis %s: %w", result.ID, err)
	}
	return nil
}

func (s *Store) GetRunningAnalysis(ctx context.Context, documentID string) (*analysis.Result, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+analysisColumns+` FROM analysis_results
		 WHERE document_id = $1 AND status IN ('pending', 'running')
		 ORDER BY created_at DESC LIMIT 1`, documentID)

	r, err := scanAnalysis(row)
	if err != nil {
		return nil, notFoundWrap(err, "running analysis for document %s", documentID)
	}
	return &r, nil
}

// --- Scanners ---

// scannable abstracts pgx.Row and pgx.Rows for shared scan helpers.
type scannable interface {
	Scan(dest ...any) error
}

func scanDocument(row scannable) (document.Document, error) {
	var d document.Document
	var kind, status, rejectedBy string
	err := row.Scan(&d.ID, &kind, &d.OwnerID, &d.Title, &d.Content, &status, &d.Version,
		&rejectedBy, &d.RejectionReason, &d.AnalysisID,
		&d.L1ReviewerID, &d.L2ReviewerID,
		&d.CreatedAt, &d.UpdatedAt, &d.SubmittedAt, &d.StageEnteredAt)
	if err != nil {
		return d, err
	}
	d.Kind = document.Kind(kind)
	d.Status = document.Status(status)
	d.RejectedBy = document.Stage(rejectedBy)
	return d, nil
}

func scanAnalysis(row scannable) (analysis.Result, error) {
	var r analysis.Result
	var status string
	var payloadJSON []byte
	err := row.Scan(&r.ID, &r.DocumentID, &status, &r.Confidence, &r.Summary, &payloadJSON,
		&r.DurationMS, &r.ErrorMessage, &r.CreatedAt, &r.CompletedAt)
	if err != nil {
		return r, err
	}
	r.Status = analysis.Status(status)
	if payloadJSON != nil {
		if err := json.Unmarshal(payloadJSON, &r.Payload); err != nil {
			return r, fmt.Errorf("unmarshal payload: %w", err)
		}
	}
	return r, nil
}

// notFoundWrap checks whether err is pgx.ErrNoRows and, if so, wraps
// domain.ErrNotFound with the given message. Otherwise it wraps the
// original error.
func notFoundWrap(err error, format string, args ...any) error {
	msg := fmt.Sprintf(format, args...)
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%s: %w", msg, domain.ErrNotFound)
	}
	return fmt.Errorf("%s: %w", msg, err)
}
