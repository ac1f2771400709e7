package service

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"testing"

	"folio/internal/server/config"
	"folio/internal/server/database"
	"folio/internal/server/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- Fakes ---

type fakeRepo struct {
	items     []*database.Item
	nextID    int64
	createErr error
	listErr   error
}

func (f *fakeRepo) Create(_ context.Context, item *database.Item) (*database.Item, error) {
	if f.createErr != nil {
		return nil, f.createErr
	}
	f.nextID++
	stored := *item
	stored.ID = f.nextID
	f.items = append(f.items, &stored)
	return &stored, nil
}

func (f *fakeRepo) DeleteByTokenID(_ context.Context, tokenID int64) (*database.Item, error) {
	for i, item := range f.items {
		if item.TokenID == tokenID {
			f.items = append(f.items[:i], f.items[i+1:]...)
			return item, nil
		}
	}
	return nil, database.ErrItemNotFound
}

func (f *fakeRepo) ListByRecipient(_ context.Context, recipient string) ([]*database.Item, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	var out []*database.Item
	for _, item := range f.items {
		if strings.EqualFold(item.Recipient, recipient) {
			out = append(out, item)
		}
	}
	return out, nil
}

func (f *fakeRepo) GetCounts(_ context.Context) (*database.Counts, error) {
	seen := make(map[string]bool)
	for _, item := range f.items {
		seen[strings.ToLower(item.Recipient)] = true
	}
	return &database.Counts{
		TotalItems:       int64(len(f.items)),
		UniqueRecipients: int64(len(seen)),
	}, nil
}

func (f *fakeRepo) Prices(_ context.Context) ([]string, error) {
	var prices []string
	for _, item := range f.items {
		prices = append(prices, item.Price)
	}
	return prices, nil
}

type fakeStore struct {
	saved map[string][]byte
}

func newFakeStore() *fakeStore {
	return &fakeStore{saved: make(map[string][]byte)}
}

func (f *fakeStore) Save(key storage.ContentKey, data io.Reader) (int64, error) {
	b, err := io.ReadAll(data)
	if err != nil {
		return 0, err
	}
	f.saved[key.Filename()] = b
	return int64(len(b)), nil
}

func (f *fakeStore) Delete(key storage.ContentKey) error {
	delete(f.saved, key.Filename())
	return nil
}

func (f *fakeStore) EnsureDir() error { return nil }

func (f *fakeStore) TotalSize() (int64, error) {
	var total int64
	for _, b := range f.saved {
		total += int64(len(b))
	}
	return total, nil
}

func newTestService(repo *fakeRepo, store *fakeStore) *ItemService {
	return NewItemService(repo, store, &config.Config{MaxFileSize: 1 << 20})
}

func validRequest() *CreateItemRequest {
	uri := "https://gateway.example/ipfs/Qm123"
	return &CreateItemRequest{
		TokenID:          1730000000000,
		Price:            "1000000000000000000",
		Recipient:        "0xAbC0000000000000000000000000000000000001",
		RoyaltyRecipient: "0xAbC0000000000000000000000000000000000002",
		RoyaltyValue:     json.RawMessage(`500`),
		MetadataURI:      &uri,
		Timestamp:        "2026-08-30T12:00:00Z",
	}
}

// --- CreateItem ---

func TestCreateItem(t *testing.T) {
	t.Run("stores and returns the row with assigned id", func(t *testing.T) {
		repo := &fakeRepo{}
		svc := newTestService(repo, newFakeStore())

		item, err := svc.CreateItem(context.Background(), validRequest())
		require.NoError(t, err)

		assert.Equal(t, int64(1), item.ID)
		assert.Equal(t, int64(1730000000000), item.TokenID)
		assert.Equal(t, 500, item.Royalty)
		assert.Equal(t, "2026-08-30T12:00:00Z", item.Timestamp)
		assert.Len(t, repo.items, 1)
	})

	t.Run("royalty zero is preserved, not treated as missing", func(t *testing.T) {
		repo := &fakeRepo{}
		svc := newTestService(repo, newFakeStore())

		req := validRequest()
		req.RoyaltyValue = json.RawMessage(`0`)

		item, err := svc.CreateItem(context.Background(), req)
		require.NoError(t, err)
		assert.Equal(t, 0, item.Royalty)
	})

	t.Run("royalty accepts numeric strings and truncates", func(t *testing.T) {
		tests := []struct {
			raw  string
			want int
		}{
			{`"250"`, 250},
			{`"0"`, 0},
			{`7.9`, 7},
			{`"7.5"`, 7},
		}
		for _, tt := range tests {
			repo := &fakeRepo{}
			svc := newTestService(repo, newFakeStore())

			req := validRequest()
			req.RoyaltyValue = json.RawMessage(tt.raw)

			item, err := svc.CreateItem(context.Background(), req)
			require.NoError(t, err, "raw %s", tt.raw)
			assert.Equal(t, tt.want, item.Royalty, "raw %s", tt.raw)
		}
	})

	t.Run("non-numeric royalty is rejected and nothing is inserted", func(t *testing.T) {
		for _, raw := range []string{`"abc"`, `true`, `null`, `""`, `{}`} {
			repo := &fakeRepo{}
			svc := newTestService(repo, newFakeStore())

			req := validRequest()
			req.RoyaltyValue = json.RawMessage(raw)

			_, err := svc.CreateItem(context.Background(), req)

			var vErr *ValidationError
			require.ErrorAs(t, err, &vErr, "raw %s", raw)
			assert.Equal(t, "royalty value must be a number", vErr.Msg)
			assert.Empty(t, repo.items, "raw %s", raw)
		}
	})

	t.Run("absent royalty is rejected", func(t *testing.T) {
		repo := &fakeRepo{}
		svc := newTestService(repo, newFakeStore())

		req := validRequest()
		req.RoyaltyValue = nil

		_, err := svc.CreateItem(context.Background(), req)
		var vErr *ValidationError
		require.ErrorAs(t, err, &vErr)
	})

	t.Run("empty metadata URI is accepted", func(t *testing.T) {
		repo := &fakeRepo{}
		svc := newTestService(repo, newFakeStore())

		req := validRequest()
		empty := ""
		req.MetadataURI = &empty

		item, err := svc.CreateItem(context.Background(), req)
		require.NoError(t, err)
		assert.Equal(t, "", item.MetadataURI)
	})

	t.Run("absent metadata URI is rejected", func(t *testing.T) {
		repo := &fakeRepo{}
		svc := newTestService(repo, newFakeStore())

		req := validRequest()
		req.MetadataURI = nil

		_, err := svc.CreateItem(context.Background(), req)
		var vErr *ValidationError
		require.ErrorAs(t, err, &vErr)
		assert.Equal(t, "invalid input data", vErr.Msg)
		assert.Empty(t, repo.items)
	})

	t.Run("falsy required fields are rejected", func(t *testing.T) {
		mutations := map[string]func(*CreateItemRequest){
			"zero token id":           func(r *CreateItemRequest) { r.TokenID = 0 },
			"empty price":             func(r *CreateItemRequest) { r.Price = "" },
			"empty recipient":         func(r *CreateItemRequest) { r.Recipient = "" },
			"empty royalty recipient": func(r *CreateItemRequest) { r.RoyaltyRecipient = "" },
			"empty timestamp":         func(r *CreateItemRequest) { r.Timestamp = "" },
		}
		for name, mutate := range mutations {
			t.Run(name, func(t *testing.T) {
				repo := &fakeRepo{}
				svc := newTestService(repo, newFakeStore())

				req := validRequest()
				mutate(req)

				_, err := svc.CreateItem(context.Background(), req)
				var vErr *ValidationError
				require.ErrorAs(t, err, &vErr)
				assert.Empty(t, repo.items)
			})
		}
	})

	t.Run("store errors pass through as non-validation errors", func(t *testing.T) {
		repo := &fakeRepo{createErr: errors.New("duplicate key value violates unique constraint")}
		svc := newTestService(repo, newFakeStore())

		_, err := svc.CreateItem(context.Background(), validRequest())
		require.Error(t, err)

		var vErr *ValidationError
		assert.False(t, errors.As(err, &vErr))
	})
}

// --- DeleteItem ---

func TestDeleteItem(t *testing.T) {
	t.Run("returns the deleted row", func(t *testing.T) {
		repo := &fakeRepo{}
		svc := newTestService(repo, newFakeStore())

		created, err := svc.CreateItem(context.Background(), validRequest())
		require.NoError(t, err)

		deleted, err := svc.DeleteItem(context.Background(), created.TokenID)
		require.NoError(t, err)
		assert.Equal(t, created.TokenID, deleted.TokenID)
		assert.Empty(t, repo.items)
	})

	t.Run("missing token id maps to ErrItemNotFound", func(t *testing.T) {
		svc := newTestService(&fakeRepo{}, newFakeStore())

		_, err := svc.DeleteItem(context.Background(), 404404)
		assert.ErrorIs(t, err, ErrItemNotFound)
	})
}

// --- ListItems ---

func TestListItems(t *testing.T) {
	t.Run("matches recipient case-insensitively", func(t *testing.T) {
		repo := &fakeRepo{}
		svc := newTestService(repo, newFakeStore())

		req := validRequest()
		req.Recipient = "0xABCdef0000000000000000000000000000000001"
		_, err := svc.CreateItem(context.Background(), req)
		require.NoError(t, err)

		items, err := svc.ListItems(context.Background(), "0xabcDEF0000000000000000000000000000000001")
		require.NoError(t, err)
		assert.Len(t, items, 1)
	})

	t.Run("zero matches is ErrNoItems, not an empty list", func(t *testing.T) {
		svc := newTestService(&fakeRepo{}, newFakeStore())

		items, err := svc.ListItems(context.Background(), "0xnobody")
		assert.ErrorIs(t, err, ErrNoItems)
		assert.Nil(t, items)
	})
}

// --- SaveEpub ---

func TestSaveEpub(t *testing.T) {
	t.Run("stores under token id and extension", func(t *testing.T) {
		store := newFakeStore()
		svc := newTestService(&fakeRepo{}, store)

		path, err := svc.SaveEpub("42", "book.epub", strings.NewReader("content"))
		require.NoError(t, err)

		assert.Equal(t, "/epubs/42.epub", path)
		assert.Equal(t, []byte("content"), store.saved["42.epub"])
	})

	t.Run("re-upload overwrites", func(t *testing.T) {
		store := newFakeStore()
		svc := newTestService(&fakeRepo{}, store)

		_, err := svc.SaveEpub("42", "book.epub", strings.NewReader("first"))
		require.NoError(t, err)
		_, err = svc.SaveEpub("42", "other.epub", strings.NewReader("second"))
		require.NoError(t, err)

		assert.Equal(t, []byte("second"), store.saved["42.epub"])
	})

	t.Run("invalid token id is a validation error", func(t *testing.T) {
		store := newFakeStore()
		svc := newTestService(&fakeRepo{}, store)

		_, err := svc.SaveEpub("not-a-number", "book.epub", strings.NewReader("x"))

		var vErr *ValidationError
		require.ErrorAs(t, err, &vErr)
		assert.Empty(t, store.saved)
	})
}

// --- GetStats ---

func TestGetStats(t *testing.T) {
	repo := &fakeRepo{}
	store := newFakeStore()
	svc := newTestService(repo, store)

	first := validRequest()
	first.Price = "1000000000000000000"
	_, err := svc.CreateItem(context.Background(), first)
	require.NoError(t, err)

	second := validRequest()
	second.TokenID = 2
	second.Price = "500000000000000000"
	second.Recipient = strings.ToLower(first.Recipient) // same owner, different case
	_, err = svc.CreateItem(context.Background(), second)
	require.NoError(t, err)

	// Unparseable price is skipped, not fatal.
	third := validRequest()
	third.TokenID = 3
	third.Price = "a lot"
	third.Recipient = "0xOther"
	_, err = svc.CreateItem(context.Background(), third)
	require.NoError(t, err)

	_, err = svc.SaveEpub("1730000000000", "book.epub", strings.NewReader("12345"))
	require.NoError(t, err)

	stats, err := svc.GetStats(context.Background())
	require.NoError(t, err)

	assert.Equal(t, int64(3), stats.TotalItems)
	assert.Equal(t, int64(2), stats.UniqueRecipients)
	assert.Equal(t, "1500000000000000000", stats.GrossVolumeWei)
	assert.Equal(t, int64(5), stats.StorageUsed)
}

// --- parseRoyalty ---

func TestParseRoyalty(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    int
		wantErr bool
	}{
		{"integer", `500`, 500, false},
		{"zero", `0`, 0, false},
		{"float truncates", `7.9`, 7, false},
		{"numeric string", `"250"`, 250, false},
		{"zero string", `"0"`, 0, false},
		{"padded string", `" 12 "`, 12, false},
		{"alphabetic string", `"abc"`, 0, true},
		{"empty string", `""`, 0, true},
		{"boolean", `true`, 0, true},
		{"null", `null`, 0, true},
		{"object", `{}`, 0, true},
		{"absent", ``, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var raw json.RawMessage
			if tt.raw != "" {
				raw = json.RawMessage(tt.raw)
			}

			got, err := parseRoyalty(raw)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
