package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"

	"folio/internal/server/config"
	"folio/internal/server/database"
	"folio/internal/server/storage"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

// Sentinel errors for the service layer.
var (
	ErrItemNotFound = errors.New("item not found")
	ErrNoItems      = errors.New("no items found for recipient")
)

// ValidationError reports a rejected request body or content key. The
// message is safe to return to the client.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string {
	return e.Msg
}

var validate = validator.New()

// CreateItemRequest is the decoded body of an item-create call. The
// backend logs whatever the client reports after its on-chain mint;
// RoyaltyValue stays raw until parsed so a literal 0 is distinguishable
// from an absent field, and MetadataURI is a pointer so an empty string
// is distinguishable from a missing one.
type CreateItemRequest struct {
	TokenID          int64           `json:"token_id" validate:"required"`
	Price            string          `json:"price" validate:"required"`
	Recipient        string          `json:"recipient" validate:"required"`
	RoyaltyRecipient string          `json:"royaltyRecipient" validate:"required"`
	RoyaltyValue     json.RawMessage `json:"royaltyValue"`
	MetadataURI      *string         `json:"metadataUri"`
	Timestamp        string          `json:"timestamp" validate:"required"`
}

// Stats holds aggregate marketplace statistics.
type Stats struct {
	TotalItems       int64  `json:"total_items"`
	UniqueRecipients int64  `json:"unique_recipients"`
	GrossVolumeWei   string `json:"gross_volume_wei"`
	StorageUsed      int64  `json:"storage_used_bytes"`
}

// ItemRepository is the subset of the database repository the service
// needs.
type ItemRepository interface {
	Create(ctx context.Context, item *database.Item) (*database.Item, error)
	DeleteByTokenID(ctx context.Context, tokenID int64) (*database.Item, error)
	ListByRecipient(ctx context.Context, recipient string) ([]*database.Item, error)
	GetCounts(ctx context.Context) (*database.Counts, error)
	Prices(ctx context.Context) ([]string, error)
}

// ItemService contains the business logic for item records and EPUB
// intake.
type ItemService struct {
	repo  ItemRepository
	store storage.Store
	cfg   *config.Config
}

// NewItemService creates a new item service.
func NewItemService(repo ItemRepository, store storage.Store, cfg *config.Config) *ItemService {
	return &ItemService{
		repo:  repo,
		store: store,
		cfg:   cfg,
	}
}

// MaxFileSize returns the configured upload size limit in bytes.
func (s *ItemService) MaxFileSize() int64 {
	return s.cfg.MaxFileSize
}

// CreateItem validates the request and inserts one row. The stored row
// is returned verbatim, including the assigned id. There is no
// transaction tying this insert to the client's on-chain mint; a mint
// that succeeds followed by an insert that fails stays inconsistent.
func (s *ItemService) CreateItem(ctx context.Context, req *CreateItemRequest) (*database.Item, error) {
	if err := validate.Struct(req); err != nil {
		return nil, &ValidationError{Msg: "invalid input data"}
	}
	if req.MetadataURI == nil {
		return nil, &ValidationError{Msg: "invalid input data"}
	}

	royalty, err := parseRoyalty(req.RoyaltyValue)
	if err != nil {
		return nil, &ValidationError{Msg: "royalty value must be a number"}
	}

	item := &database.Item{
		TokenID:          req.TokenID,
		Price:            req.Price,
		Recipient:        req.Recipient,
		RoyaltyRecipient: req.RoyaltyRecipient,
		Royalty:          royalty,
		MetadataURI:      *req.MetadataURI,
		Timestamp:        req.Timestamp,
	}

	stored, err := s.repo.Create(ctx, item)
	if err != nil {
		return nil, fmt.Errorf("failed to create item record: %w", err)
	}

	slog.Info("item recorded",
		"token_id", stored.TokenID,
		"recipient", stored.Recipient,
		"royalty", stored.Royalty,
	)
	return stored, nil
}

// DeleteItem removes at most one row and returns it for confirmation.
func (s *ItemService) DeleteItem(ctx context.Context, tokenID int64) (*database.Item, error) {
	item, err := s.repo.DeleteByTokenID(ctx, tokenID)
	if err != nil {
		if errors.Is(err, database.ErrItemNotFound) {
			return nil, ErrItemNotFound
		}
		return nil, err
	}

	slog.Info("item deleted", "token_id", item.TokenID)
	return item, nil
}

// ListItems returns all items owned by a recipient address,
// case-insensitively. Zero matches is reported as ErrNoItems, not an
// empty list.
func (s *ItemService) ListItems(ctx context.Context, recipient string) ([]*database.Item, error) {
	items, err := s.repo.ListByRecipient(ctx, recipient)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, ErrNoItems
	}
	return items, nil
}

// SaveEpub persists an uploaded EPUB under the content key derived
// from the path token id and the original filename's extension.
// Re-uploading the same key overwrites the previous file. The stored
// file is not tied to any item row; the two correlate only by id.
func (s *ItemService) SaveEpub(rawTokenID, originalName string, data io.Reader) (string, error) {
	key, err := storage.ParseContentKey(rawTokenID, originalName)
	if err != nil {
		return "", &ValidationError{Msg: err.Error()}
	}

	n, err := s.store.Save(key, data)
	if err != nil {
		return "", fmt.Errorf("failed to store epub: %w", err)
	}

	slog.Info("epub stored",
		"token_id", key.TokenID,
		"filename", key.Filename(),
		"bytes", n,
	)
	return "/epubs/" + key.Filename(), nil
}

// GetStats returns aggregate marketplace statistics: row counts,
// gross listed volume summed from the stored wei price strings, and
// bytes of EPUB storage in use.
func (s *ItemService) GetStats(ctx context.Context) (*Stats, error) {
	counts, err := s.repo.GetCounts(ctx)
	if err != nil {
		return nil, err
	}

	prices, err := s.repo.Prices(ctx)
	if err != nil {
		return nil, err
	}

	volume := decimal.Zero
	for _, p := range prices {
		d, err := decimal.NewFromString(strings.TrimSpace(p))
		if err != nil {
			// Prices are stored as received; skip anything unparseable.
			slog.Warn("skipping unparseable price", "price", p)
			continue
		}
		volume = volume.Add(d)
	}

	used, err := s.store.TotalSize()
	if err != nil {
		return nil, err
	}

	return &Stats{
		TotalItems:       counts.TotalItems,
		UniqueRecipients: counts.UniqueRecipients,
		GrossVolumeWei:   volume.String(),
		StorageUsed:      used,
	}, nil
}

// parseRoyalty converts the raw royaltyValue field to an integer. It
// accepts a JSON number or a numeric string, truncating any fractional
// part the way the original client's parseInt did. Zero is a valid
// royalty and must not be treated as missing.
func parseRoyalty(raw json.RawMessage) (int, error) {
	if len(raw) == 0 {
		return 0, errors.New("royalty value missing")
	}

	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return 0, fmt.Errorf("royalty value malformed: %w", err)
	}

	switch n := v.(type) {
	case float64:
		return int(n), nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return 0, fmt.Errorf("royalty value %q is not a number", n)
		}
		return int(f), nil
	default:
		return 0, fmt.Errorf("royalty value has unsupported type %T", v)
	}
}
