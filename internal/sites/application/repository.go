package application

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"terralens/internal/docstore"
	"terralens/internal/observability/metrics"
	sites "terralens/internal/sites/domain"
)

// ChangePublisher receives site events after successful writes.
type ChangePublisher interface {
	Publish(ctx context.Context, event sites.SiteEvent) error
}

// Repository mediates between site consumers and the document store.
type Repository struct {
	store     docstore.Store
	logger    *zap.Logger
	publisher ChangePublisher
	now       func() time.Time
}

// Option customizes the repository.
type Option func(*Repository)

// WithPublisher assigns a change publisher.
func WithPublisher(publisher ChangePublisher) Option {
	return func(r *Repository) {
		r.publisher = publisher
	}
}

// WithClock overrides the event timestamp source.
func WithClock(now func() time.Time) Option {
	return func(r *Repository) {
		if now != nil {
			r.now = now
		}
	}
}

// NewRepository constructs a site repository.
func NewRepository(store docstore.Store, logger *zap.Logger, opts ...Option) (*Repository, error) {
	if store == nil {
		return nil, errors.New("sites: nil store")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Repository{
		store:  store,
		logger: logger.Named("sites"),
		now:    func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Create persists a new site and returns the store-assigned id. Any id on the
// input is ignored.
func (r *Repository) Create(ctx context.Context, site sites.MiningSite) (string, error) {
	data, err := encodeSite(site)
	if err != nil {
		return "", r.writeFailed("create", "", err)
	}
	id, err := r.store.Add(ctx, sites.Collection, data)
	if err != nil {
		return "", r.writeFailed("create", "", err)
	}
	metrics.ObserveSiteWrite("create", metrics.ResultSuccess)
	site.ID = id
	r.publish(ctx, sites.EventCreated, id, &site)
	return id, nil
}

// Update merges every modelled field of site into the stored document. Fields
// the stored document carries beyond the model are preserved.
func (r *Repository) Update(ctx context.Context, site sites.MiningSite) error {
	if site.ID == "" {
		return sites.ErrMissingIdentifier
	}
	data, err := encodeSite(site)
	if err != nil {
		return r.writeFailed("update", site.ID, err)
	}
	if err := r.store.Update(ctx, sites.Collection, site.ID, data); err != nil {
		if errors.Is(err, docstore.ErrNotFound) {
			err = fmt.Errorf("%w: %w", sites.ErrNotFound, err)
		}
		return r.writeFailed("update", site.ID, err)
	}
	metrics.ObserveSiteWrite("update", metrics.ResultSuccess)
	r.publish(ctx, sites.EventUpdated, site.ID, &site)
	return nil
}

// Delete removes a site. Deleting an id that does not exist succeeds.
func (r *Repository) Delete(ctx context.Context, id string) error {
	if id == "" {
		return sites.ErrMissingIdentifier
	}
	if err := r.store.Delete(ctx, sites.Collection, id); err != nil {
		return r.writeFailed("delete", id, err)
	}
	metrics.ObserveSiteWrite("delete", metrics.ResultSuccess)
	r.publish(ctx, sites.EventDeleted, id, nil)
	return nil
}

// Get reads one site back by id.
func (r *Repository) Get(ctx context.Context, id string) (*sites.MiningSite, error) {
	if id == "" {
		return nil, sites.ErrMissingIdentifier
	}
	doc, err := r.store.Get(ctx, sites.Collection, id)
	if err != nil {
		if errors.Is(err, docstore.ErrNotFound) {
			return nil, sites.ErrNotFound
		}
		return nil, r.readFailed("get", err)
	}
	site, err := decodeSite(*doc)
	if err != nil {
		return nil, r.readFailed("get", err)
	}
	return &site, nil
}

// List returns a one-shot snapshot ordered by name.
func (r *Repository) List(ctx context.Context) ([]sites.MiningSite, error) {
	docs, err := r.store.List(ctx, sites.Collection, sites.OrderField)
	if err != nil {
		return nil, r.readFailed("list", err)
	}
	return r.decodeAll(docs), nil
}

func (r *Repository) decodeAll(docs []docstore.Document) []sites.MiningSite {
	out := make([]sites.MiningSite, 0, len(docs))
	for _, doc := range docs {
		site, err := decodeSite(doc)
		if err != nil {
			r.logger.Warn("skip undecodable site document", zap.String("site_id", doc.ID), zap.Error(err))
			continue
		}
		out = append(out, site)
	}
	return out
}

func (r *Repository) writeFailed(op, id string, err error) error {
	metrics.ObserveSiteWrite(op, metrics.ResultError)
	r.logger.Error("site store write failed", zap.String("op", op), zap.String("site_id", id), zap.Error(err))
	return &sites.StoreWriteError{Op: op, SiteID: id, Err: err}
}

func (r *Repository) readFailed(op string, err error) error {
	r.logger.Error("site store read failed", zap.String("op", op), zap.Error(err))
	return &sites.StoreReadError{Op: op, Err: err}
}

func (r *Repository) publish(ctx context.Context, eventType, id string, site *sites.MiningSite) {
	if r.publisher == nil {
		return
	}
	event := sites.SiteEvent{Type: eventType, SiteID: id, Site: site, OccurredAt: r.now()}
	if err := r.publisher.Publish(ctx, event); err != nil {
		r.logger.Warn("site event publish failed", zap.String("type", eventType), zap.String("site_id", id), zap.Error(err))
	}
}

func encodeSite(site sites.MiningSite) (json.RawMessage, error) {
	site.ID = ""
	return json.Marshal(site)
}

func decodeSite(doc docstore.Document) (sites.MiningSite, error) {
	var site sites.MiningSite
	if err := json.Unmarshal(doc.Data, &site); err != nil {
		return sites.MiningSite{}, err
	}
	site.ID = doc.ID
	return site, nil
}
