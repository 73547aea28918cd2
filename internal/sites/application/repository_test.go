package application

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"

	"terralens/internal/docstore"
	"terralens/internal/docstore/memory"
	sites "terralens/internal/sites/domain"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// faultyStore wraps a real store and injects failures per operation.
type faultyStore struct {
	docstore.Store

	mu          sync.Mutex
	addErr      error
	updateErr   error
	deleteErr   error
	listErr     error
	watchErr    error
	updateCalls int
	feed        chan docstore.Change
}

func (f *faultyStore) Add(ctx context.Context, collection string, data json.RawMessage) (string, error) {
	if f.addErr != nil {
		return "", f.addErr
	}
	return f.Store.Add(ctx, collection, data)
}

func (f *faultyStore) Update(ctx context.Context, collection, id string, data json.RawMessage) error {
	f.mu.Lock()
	f.updateCalls++
	f.mu.Unlock()
	if f.updateErr != nil {
		return f.updateErr
	}
	return f.Store.Update(ctx, collection, id, data)
}

func (f *faultyStore) Delete(ctx context.Context, collection, id string) error {
	if f.deleteErr != nil {
		return f.deleteErr
	}
	return f.Store.Delete(ctx, collection, id)
}

func (f *faultyStore) List(ctx context.Context, collection, orderBy string) ([]docstore.Document, error) {
	f.mu.Lock()
	err := f.listErr
	f.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return f.Store.List(ctx, collection, orderBy)
}

func (f *faultyStore) Watch(ctx context.Context, collection string) (<-chan docstore.Change, error) {
	if f.watchErr != nil {
		return nil, f.watchErr
	}
	if f.feed != nil {
		return f.feed, nil
	}
	return f.Store.Watch(ctx, collection)
}

func (f *faultyStore) setListErr(err error) {
	f.mu.Lock()
	f.listErr = err
	f.mu.Unlock()
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []sites.SiteEvent
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, event sites.SiteEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return p.err
}

func newSite(name string) sites.MiningSite {
	return sites.MiningSite{
		Name:     name,
		Location: "Pilbara, Australia",
		Operator: "Red Earth Resources",
		Status:   sites.StatusActive,
		OperationalData: sites.OperationalData{
			ExtractionRate:    850,
			EnergyConsumption: 120.25,
			WaterUsage:        4300,
		},
	}
}

func newRepo(t *testing.T, store docstore.Store, opts ...Option) *Repository {
	t.Helper()
	repo, err := NewRepository(store, zap.NewNop(), opts...)
	require.NoError(t, err)
	return repo
}

func TestNewRepositoryRejectsNilStore(t *testing.T) {
	_, err := NewRepository(nil, zap.NewNop())
	require.Error(t, err)
}

func TestCreateThenGetReturnsInputWithID(t *testing.T) {
	repo := newRepo(t, memory.NewStore())
	ctx := context.Background()

	input := newSite("Copper Ridge")
	id, err := repo.Create(ctx, input)
	require.NoError(t, err)
	require.NotEmpty(t, id)

	got, err := repo.Get(ctx, id)
	require.NoError(t, err)

	want := input
	want.ID = id
	if diff := cmp.Diff(want, *got); diff != "" {
		t.Fatalf("read-back mismatch (-want +got):\n%s", diff)
	}
}

func TestCreateIgnoresCallerID(t *testing.T) {
	store := memory.NewStore(memory.WithIDGenerator(func() string { return "store-1" }))
	repo := newRepo(t, store)

	input := newSite("Iron Valley")
	input.ID = "caller-chosen"
	id, err := repo.Create(context.Background(), input)
	require.NoError(t, err)
	assert.Equal(t, "store-1", id)

	doc, err := store.Get(context.Background(), sites.Collection, id)
	require.NoError(t, err)
	var fields map[string]any
	require.NoError(t, json.Unmarshal(doc.Data, &fields))
	assert.NotContains(t, fields, "id")
}

func TestCreateWrapsStoreFailure(t *testing.T) {
	cause := errors.New("permission denied")
	repo := newRepo(t, &faultyStore{Store: memory.NewStore(), addErr: cause})

	_, err := repo.Create(context.Background(), newSite("Copper Ridge"))
	var werr *sites.StoreWriteError
	require.ErrorAs(t, err, &werr)
	assert.Equal(t, "create", werr.Op)
	assert.ErrorIs(t, err, cause)
}

func TestUpdateWithoutIDDoesNotTouchStore(t *testing.T) {
	store := &faultyStore{Store: memory.NewStore()}
	repo := newRepo(t, store)

	err := repo.Update(context.Background(), newSite("No Id"))
	require.ErrorIs(t, err, sites.ErrMissingIdentifier)
	assert.Zero(t, store.updateCalls)
}

func TestUpdatePreservesUnknownFields(t *testing.T) {
	store := memory.NewStore()
	repo := newRepo(t, store)
	ctx := context.Background()

	id, err := store.Add(ctx, sites.Collection, json.RawMessage(`{"name":"Old","legacyCode":"LX-9"}`))
	require.NoError(t, err)

	site := newSite("Renamed")
	site.ID = id
	site.Status = sites.StatusDecommissioned
	require.NoError(t, repo.Update(ctx, site))

	doc, err := store.Get(ctx, sites.Collection, id)
	require.NoError(t, err)
	var fields map[string]any
	require.NoError(t, json.Unmarshal(doc.Data, &fields))
	assert.Equal(t, "LX-9", fields["legacyCode"])
	assert.Equal(t, "Renamed", fields["name"])
	assert.Equal(t, "Decommissioned", fields["status"])
}

func TestUpdateMissingDocumentIsWriteError(t *testing.T) {
	repo := newRepo(t, memory.NewStore())

	site := newSite("Ghost")
	site.ID = "does-not-exist"
	err := repo.Update(context.Background(), site)

	var werr *sites.StoreWriteError
	require.ErrorAs(t, err, &werr)
	assert.Equal(t, "does-not-exist", werr.SiteID)
	assert.ErrorIs(t, err, sites.ErrNotFound)
}

func TestDeleteTwiceSucceeds(t *testing.T) {
	repo := newRepo(t, memory.NewStore())
	ctx := context.Background()

	id, err := repo.Create(ctx, newSite("Short Lived"))
	require.NoError(t, err)
	require.NoError(t, repo.Delete(ctx, id))
	require.NoError(t, repo.Delete(ctx, id))

	_, err = repo.Get(ctx, id)
	assert.ErrorIs(t, err, sites.ErrNotFound)
}

func TestDeleteRequiresID(t *testing.T) {
	repo := newRepo(t, memory.NewStore())
	assert.ErrorIs(t, repo.Delete(context.Background(), ""), sites.ErrMissingIdentifier)
}

func TestDeleteWrapsStoreFailure(t *testing.T) {
	cause := errors.New("unavailable")
	repo := newRepo(t, &faultyStore{Store: memory.NewStore(), deleteErr: cause})

	err := repo.Delete(context.Background(), "s1")
	var werr *sites.StoreWriteError
	require.ErrorAs(t, err, &werr)
	assert.Equal(t, "delete", werr.Op)
}

func TestListSkipsUndecodableDocuments(t *testing.T) {
	store := memory.NewStore()
	repo := newRepo(t, store)
	ctx := context.Background()

	_, err := repo.Create(ctx, newSite("Good"))
	require.NoError(t, err)
	_, err = store.Add(ctx, sites.Collection, json.RawMessage(`{"name":"Bad","operationalData":"broken"}`))
	require.NoError(t, err)

	list, err := repo.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "Good", list[0].Name)
}

func TestListWrapsReadFailure(t *testing.T) {
	repo := newRepo(t, &faultyStore{Store: memory.NewStore(), listErr: errors.New("offline")})
	_, err := repo.List(context.Background())
	var rerr *sites.StoreReadError
	require.ErrorAs(t, err, &rerr)
	assert.Equal(t, "list", rerr.Op)
}

func TestPublisherReceivesEventsAndFailuresAreIgnored(t *testing.T) {
	pub := &recordingPublisher{err: errors.New("broker down")}
	fixed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	repo := newRepo(t, memory.NewStore(), WithPublisher(pub), WithClock(func() time.Time { return fixed }))
	ctx := context.Background()

	id, err := repo.Create(ctx, newSite("Evented"))
	require.NoError(t, err)
	site := newSite("Evented II")
	site.ID = id
	require.NoError(t, repo.Update(ctx, site))
	require.NoError(t, repo.Delete(ctx, id))

	pub.mu.Lock()
	defer pub.mu.Unlock()
	require.Len(t, pub.events, 3)
	assert.Equal(t, sites.EventCreated, pub.events[0].Type)
	assert.Equal(t, id, pub.events[0].Site.ID)
	assert.Equal(t, sites.EventUpdated, pub.events[1].Type)
	assert.Equal(t, sites.EventDeleted, pub.events[2].Type)
	assert.Nil(t, pub.events[2].Site)
	assert.Equal(t, fixed, pub.events[2].OccurredAt)
}
