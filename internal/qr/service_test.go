package qr

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeCatalog struct {
	products map[int64]*ProductInfo
	err      error
}

func (f *fakeCatalog) ProductByID(_ context.Context, id int64) (*ProductInfo, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.products[id], nil
}

func (f *fakeCatalog) Search(context.Context, string) ([]ProductInfo, error) {
	return nil, nil
}

type fakeStore struct {
	links   map[uuid.UUID]*Link
	created []*Link
}

func newFakeStore() *fakeStore {
	return &fakeStore{links: make(map[uuid.UUID]*Link)}
}

func (f *fakeStore) Create(_ context.Context, info ProductInfo, createdBy string) (*Link, error) {
	link := &Link{
		ID:          uuid.New(),
		ProductID:   info.ID,
		Title:       info.Name,
		ImageURL:    info.Image,
		Price:       info.Price,
		Currency:    info.Currency,
		Description: info.Description,
		CreatedAt:   time.Now(),
		CreatedBy:   createdBy,
	}
	f.links[link.ID] = link
	f.created = append(f.created, link)
	return link, nil
}

func (f *fakeStore) Get(_ context.Context, token uuid.UUID) (*Link, error) {
	link, ok := f.links[token]
	if !ok {
		return nil, ErrNotFound
	}
	return link, nil
}

func (f *fakeStore) Recent(context.Context, int) ([]Link, error) {
	return nil, nil
}

func TestIssue_Success(t *testing.T) {
	catalog := &fakeCatalog{products: map[int64]*ProductInfo{
		15: {ID: 15, Name: "Чайник", Price: "1290", Currency: "RUB", Image: "https://cdn/p.png"},
	}}
	store := newFakeStore()

	svc := NewService(catalog, store, "https://portal.example.com/")
	issued, err := svc.Issue(context.Background(), 15, "operator@example.com")
	require.NoError(t, err)

	require.Len(t, store.created, 1)
	assert.Equal(t, "Чайник", store.created[0].Title)
	assert.Equal(t, "operator@example.com", store.created[0].CreatedBy)

	assert.Equal(t, "https://portal.example.com/p/"+issued.Link.ID.String(), issued.PublicURL)
	assert.True(t, strings.HasPrefix(issued.QRDataURI, "data:image/png;base64,"))
}

func TestIssue_UnknownProduct(t *testing.T) {
	store := newFakeStore()
	svc := NewService(&fakeCatalog{products: map[int64]*ProductInfo{}}, store, "https://portal.example.com")

	_, err := svc.Issue(context.Background(), 404, "")
	assert.ErrorIs(t, err, ErrProductNotFound)
	assert.Empty(t, store.created, "nothing is stored for unknown products")
}

func TestResolve_UnknownToken(t *testing.T) {
	svc := NewService(&fakeCatalog{}, newFakeStore(), "https://portal.example.com")

	_, _, err := svc.Resolve(context.Background(), uuid.New())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestResolve_LiveFieldsWin(t *testing.T) {
	catalog := &fakeCatalog{products: map[int64]*ProductInfo{
		15: {ID: 15, Name: "Чайник v2", Price: "999", Currency: "RUB", Image: "", Description: ""},
	}}
	store := newFakeStore()
	link, err := store.Create(context.Background(), ProductInfo{
		ID: 15, Name: "Чайник", Price: "1290", Currency: "USD",
		Image: "https://cdn/cached.png", Description: "Со свистком",
	}, "")
	require.NoError(t, err)

	svc := NewService(catalog, store, "https://portal.example.com")
	_, view, err := svc.Resolve(context.Background(), link.ID)
	require.NoError(t, err)

	assert.Equal(t, "Чайник v2", view.Name)
	assert.Equal(t, "https://cdn/cached.png", view.Image, "empty live image falls back to cache")
	assert.Equal(t, "Со свистком", view.Description)
	assert.Equal(t, "999", view.Price, "price tracks the live product")
	assert.Equal(t, "RUB", view.Currency)
}

func TestResolve_FetchFailureServesSnapshot(t *testing.T) {
	catalog := &fakeCatalog{err: errors.New("portal down")}
	store := newFakeStore()
	link, err := store.Create(context.Background(), ProductInfo{
		ID: 15, Name: "Чайник", Price: "1290", Currency: "RUB",
	}, "")
	require.NoError(t, err)

	svc := NewService(catalog, store, "https://portal.example.com")
	_, view, err := svc.Resolve(context.Background(), link.ID)
	require.NoError(t, err)

	assert.Equal(t, "Чайник", view.Name)
	assert.Equal(t, "1290", view.Price)
	assert.Equal(t, "RUB", view.Currency)
}

func TestResolve_BlankCachedTitleGetsPlaceholder(t *testing.T) {
	catalog := &fakeCatalog{err: errors.New("portal down")}
	store := newFakeStore()
	link, err := store.Create(context.Background(), ProductInfo{ID: 15}, "")
	require.NoError(t, err)

	svc := NewService(catalog, store, "https://portal.example.com")
	_, view, err := svc.Resolve(context.Background(), link.ID)
	require.NoError(t, err)
	assert.Equal(t, "Товар 15", view.Name)
}
