package postgres

import (
	"context"
	"fmt"

	"github.com/Strob0t/ReviewFlow/internal/port/directory"
)

// Owner resolves a document owner to an addressable recipient.
func (s *Store) Owner(ctx context.Context, ownerID string) (directory.Recipient, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, display_name, email FROM users WHERE id = $1`, ownerID)

	var r directory.Recipient
	if err := row.Scan(&r.ID, &r.DisplayName, &r.Address); err != nil {
		return r, notFoundWrap(err, "resolve owner %s", ownerID)
	}
	return r, nil
}

// ReviewersByRank returns all reviewers holding the given rank.
func (s *Store) ReviewersByRank(ctx context.Context, rank int) ([]directory.Recipient, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, display_name, email FROM users
		 WHERE reviewer_rank = $1 ORDER BY display_name ASC`, rank)
	if err != nil {
		return nil, fmt.Errorf("list reviewers rank %d: %w", rank, err)
	}
	defer rows.Close()

	return scanRecipients(rows)
}

// AllReviewers returns every reviewer regardless of rank.
func (s *Store) AllReviewers(ctx context.Context) ([]directory.Recipient, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, display_name, email FROM users
		 WHERE reviewer_rank IS NOT NULL ORDER BY display_name ASC`)
	if err != nil {
		return nil, fmt.Errorf("list reviewers: %w", err)
	}
	defer rows.Close()

	return scanRecipients(rows)
}

func scanRecipients(rows interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
}) ([]directory.Recipient, error) {
	var recipients []directory.Recipient
	for rows.Next() {
		var r directory.Recipient
		if err := rows.Scan(&r.ID, &r.DisplayName, &r.Address); err != nil {
			return nil, fmt.Errorf("scan recipient: %w", err)
		}
		recipients = append(recipients, r)
	}
	return recipients, rows.Err()
}
