package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
)

var (
	ErrItemNotFound = errors.New("item not found")
)

// Repository provides the item table operations. Rows are written once
// at mint time; there is no update path.
type Repository struct {
	db *DB
}

// NewRepository creates a new Repository.
func NewRepository(db *DB) *Repository {
	return &Repository{db: db}
}

// Create inserts a new item record and returns the stored row,
// including the assigned id. A duplicate token_id violates the unique
// constraint and surfaces as a plain database error.
func (r *Repository) Create(ctx context.Context, item *Item) (*Item, error) {
	stored := &Item{}
	err := r.db.Pool.QueryRow(ctx, `
		INSERT INTO items (
			token_id, price, recipient, royalty_recipient,
			royalty, metadata_uri, timestamp
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, token_id, price, recipient, royalty_recipient,
		          royalty, metadata_uri, timestamp
	`,
		item.TokenID,
		item.Price,
		item.Recipient,
		item.RoyaltyRecipient,
		item.Royalty,
		item.MetadataURI,
		item.Timestamp,
	).Scan(
		&stored.ID,
		&stored.TokenID,
		&stored.Price,
		&stored.Recipient,
		&stored.RoyaltyRecipient,
		&stored.Royalty,
		&stored.MetadataURI,
		&stored.Timestamp,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create item: %w", err)
	}
	return stored, nil
}

// DeleteByTokenID removes at most one row and returns the deleted row
// for confirmation.
func (r *Repository) DeleteByTokenID(ctx context.Context, tokenID int64) (*Item, error) {
	item := &Item{}
	err := r.db.Pool.QueryRow(ctx, `
		DELETE FROM items WHERE token_id = $1
		RETURNING id, token_id, price, recipient, royalty_recipient,
		          royalty, metadata_uri, timestamp
	`, tokenID).Scan(
		&item.ID,
		&item.TokenID,
		&item.Price,
		&item.Recipient,
		&item.RoyaltyRecipient,
		&item.Royalty,
		&item.MetadataURI,
		&item.Timestamp,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrItemNotFound
		}
		return nil, fmt.Errorf("failed to delete item: %w", err)
	}
	return item, nil
}

// ListByRecipient returns all items whose recipient matches,
// case-insensitively. An empty result is not an error here; the
// service layer decides how to report it.
func (r *Repository) ListByRecipient(ctx context.Context, recipient string) ([]*Item, error) {
	rows, err := r.db.Pool.Query(ctx, `
		SELECT id, token_id, price, recipient, royalty_recipient,
		       royalty, metadata_uri, timestamp
		FROM items WHERE LOWER(recipient) = LOWER($1)
		ORDER BY id
	`, recipient)
	if err != nil {
		return nil, fmt.Errorf("failed to query items: %w", err)
	}
	defer rows.Close()

	var items []*Item
	for rows.Next() {
		item := &Item{}
		if err := rows.Scan(
			&item.ID,
			&item.TokenID,
			&item.Price,
			&item.Recipient,
			&item.RoyaltyRecipient,
			&item.Royalty,
			&item.MetadataURI,
			&item.Timestamp,
		); err != nil {
			return nil, fmt.Errorf("failed to scan item: %w", err)
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// GetCounts returns aggregate counts over the items table.
func (r *Repository) GetCounts(ctx context.Context) (*Counts, error) {
	counts := &Counts{}
	err := r.db.Pool.QueryRow(ctx, `
		SELECT COUNT(*), COUNT(DISTINCT LOWER(recipient)) FROM items
	`).Scan(&counts.TotalItems, &counts.UniqueRecipients)
	if err != nil {
		return nil, fmt.Errorf("failed to get counts: %w", err)
	}
	return counts, nil
}

// Prices returns every stored price string. Prices are kept as
// received from the client, so summing happens in the service layer
// where unparseable values can be skipped.
func (r *Repository) Prices(ctx context.Context) ([]string, error) {
	rows, err := r.db.Pool.Query(ctx, "SELECT price FROM items")
	if err != nil {
		return nil, fmt.Errorf("failed to query prices: %w", err)
	}
	defer rows.Close()

	var prices []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, fmt.Errorf("failed to scan price: %w", err)
		}
		prices = append(prices, p)
	}
	return prices, rows.Err()
}
