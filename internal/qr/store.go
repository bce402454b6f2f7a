package qr

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// ErrNotFound is returned when a token resolves to no stored link.
var ErrNotFound = errors.New("product link not found")

// DBTX is the database handle the store runs on. Satisfied by both
// *pgxpool.Pool and pgx.Tx.
type DBTX interface {
	Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error)
	Query(context.Context, string, ...interface{}) (pgx.Rows, error)
	QueryRow(context.Context, string, ...interface{}) pgx.Row
}

// Link is one issued product link. The cached fields snapshot the
// product at creation time; rows are create-once and never updated.
type Link struct {
	ID          uuid.UUID
	ProductID   int64
	Title       string
	ImageURL    string
	Price       string
	Currency    string
	Description string
	CreatedAt   time.Time
	CreatedBy   string
}

// Store persists product links.
type Store struct {
	db DBTX
}

// NewStore creates a store over the given database handle.
func NewStore(db DBTX) *Store {
	return &Store{db: db}
}

// Create inserts a new link row for the product snapshot and returns
// it with the generated token and timestamp.
func (s *Store) Create(ctx context.Context, info ProductInfo, createdBy string) (*Link, error) {
	link := &Link{
		ID:          uuid.New(),
		ProductID:   info.ID,
		Title:       info.Name,
		ImageURL:    info.Image,
		Price:       info.Price,
		Currency:    info.Currency,
		Description: info.Description,
		CreatedBy:   createdBy,
	}

	err := s.db.QueryRow(ctx, `
		INSERT INTO product_links (
			id, product_id, title_cached, img_url_cached,
			price_cached, currency_cached, description_cached, created_by
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at`,
		link.ID, link.ProductID, link.Title, link.ImageURL,
		link.Price, link.Currency, link.Description, link.CreatedBy,
	).Scan(&link.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("insert product link: %w", err)
	}
	return link, nil
}

// Get loads a link by token.
func (s *Store) Get(ctx context.Context, token uuid.UUID) (*Link, error) {
	var link Link
	err := s.db.QueryRow(ctx, `
		SELECT id, product_id, title_cached, img_url_cached,
		       price_cached, currency_cached, description_cached,
		       created_at, created_by
		FROM product_links
		WHERE id = $1`,
		token,
	).Scan(
		&link.ID, &link.ProductID, &link.Title, &link.ImageURL,
		&link.Price, &link.Currency, &link.Description,
		&link.CreatedAt, &link.CreatedBy,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load product link %s: %w", token, err)
	}
	return &link, nil
}

// Recent lists the latest issued links, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Link, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, product_id, title_cached, img_url_cached,
		       price_cached, currency_cached, description_cached,
		       created_at, created_by
		FROM product_links
		ORDER BY created_at DESC
		LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list product links: %w", err)
	}
	defer rows.Close()

	var links []Link
	for rows.Next() {
		var link Link
		if err := rows.Scan(
			&link.ID, &link.ProductID, &link.Title, &link.ImageURL,
			&link.Price, &link.Currency, &link.Description,
			&link.CreatedAt, &link.CreatedBy,
		); err != nil {
			return nil, fmt.Errorf("scan product link: %w", err)
		}
		links = append(links, link)
	}
	return links, rows.Err()
}
