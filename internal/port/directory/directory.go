// Package directory defines the recipient resolver port: mapping abstract
// recipient roles to concrete addressable identities.
package directory

import "context"

// Recipient is a concrete addressable identity resolved from a role.
type Recipient struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
	Address     string `json:"address"`
}

// Directory is the port interface for resolving recipients. An empty result
// is valid and simply yields no dispatch.
type Directory interface {
	// Owner resolves a document owner to a recipient.
	Owner(ctx context.Context, ownerID string) (Recipient, error)

	// ReviewersByRank returns all reviewers holding the given rank (1 or 2).
	ReviewersByRank(ctx context.Context, rank int) ([]Recipient, error)

	// AllReviewers returns every reviewer regardless of rank, deduplicated.
	AllReviewers(ctx context.Context) ([]Recipient, error)
}
