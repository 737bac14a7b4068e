package client

import (
	"context"
	"net/http"
	"net/url"
	"strconv"

	"expohub/internal/listing"
	"expohub/internal/models"
	"expohub/internal/reaction"
)

// Listings is the remote counterpart of listing.Gateway for one category.
type Listings struct {
	c        *Client
	category models.Category
}

func (c *Client) Listings(cat models.Category) *Listings {
	return &Listings{c: c, category: cat}
}

func (l *Listings) Category() models.Category { return l.category }

func (l *Listings) path(parts ...string) string {
	p := "/api/" + l.category.Path()
	for _, s := range parts {
		p += "/" + s
	}
	return p
}

func (l *Listings) list(ctx context.Context, path string, q url.Values) ([]models.Listing, error) {
	var out []models.Listing
	if err := l.c.do(ctx, http.MethodGet, path, q, nil, &out); err != nil {
		return nil, err
	}
	if out == nil {
		out = []models.Listing{}
	}
	return out, nil
}

// GetAll returns listings newest first. Zero limit and offset are not sent.
func (l *Listings) GetAll(ctx context.Context, p listing.Page) ([]models.Listing, error) {
	q := url.Values{}
	if p.Limit > 0 {
		q.Set("limit", strconv.Itoa(p.Limit))
	}
	if p.Offset > 0 {
		q.Set("offset", strconv.Itoa(p.Offset))
	}
	return l.list(ctx, l.path(), q)
}

func (l *Listings) GetByID(ctx context.Context, id string) (models.Listing, error) {
	var out models.Listing
	err := l.c.do(ctx, http.MethodGet, l.path(id), nil, nil, &out)
	return out, err
}

func (l *Listings) GetByUserID(ctx context.Context, userID string) ([]models.Listing, error) {
	return l.list(ctx, "/api/users/"+userID+"/"+l.category.Path(), nil)
}

func (l *Listings) Search(ctx context.Context, text string) ([]models.Listing, error) {
	return l.list(ctx, l.path("search"), url.Values{"q": {text}})
}

func (l *Listings) Create(ctx context.Context, dto models.CreateListing) (models.Listing, error) {
	var out models.Listing
	err := l.c.do(ctx, http.MethodPost, l.path(), nil, dto, &out)
	return out, err
}

func (l *Listings) Update(ctx context.Context, id string, patch models.UpdateListing) (models.Listing, error) {
	var out models.Listing
	err := l.c.do(ctx, http.MethodPatch, l.path(id), nil, patch, &out)
	return out, err
}

func (l *Listings) Delete(ctx context.Context, id string) error {
	return l.c.do(ctx, http.MethodDelete, l.path(id), nil, nil, nil)
}

func (l *Listings) AddComment(ctx context.Context, id, text string) (models.Listing, error) {
	var out models.Listing
	err := l.c.do(ctx, http.MethodPost, l.path(id, "comments"), nil, map[string]string{"comment": text}, &out)
	return out, err
}

// ----------------------------
// Reactions: one request per press, the server applies it atomically
// ----------------------------

func (l *Listings) ToggleLike(ctx context.Context, id string) (reaction.Outcome, error) {
	return l.toggle(ctx, id, models.Like)
}

func (l *Listings) ToggleDislike(ctx context.Context, id string) (reaction.Outcome, error) {
	return l.toggle(ctx, id, models.Dislike)
}

func (l *Listings) toggle(ctx context.Context, id string, kind models.Kind) (reaction.Outcome, error) {
	var out reaction.Outcome
	err := l.c.do(ctx, http.MethodPost, l.path(id, "toggle"), url.Values{"kind": {string(kind)}}, nil, &out)
	return out, err
}

func (l *Listings) SetReaction(ctx context.Context, id string, kind models.Kind) (reaction.Outcome, error) {
	var out reaction.Outcome
	err := l.c.do(ctx, http.MethodPut, l.path(id, "reaction"), nil, map[string]models.Kind{"kind": kind}, &out)
	return out, err
}

func (l *Listings) Reaction(ctx context.Context, id string) (reaction.Outcome, error) {
	var out reaction.Outcome
	err := l.c.do(ctx, http.MethodGet, l.path(id, "reaction"), nil, nil, &out)
	return out, err
}
