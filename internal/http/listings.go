package httpx

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"expohub/internal/auth"
	"expohub/internal/events"
	"expohub/internal/listing"
	"expohub/internal/models"
	"expohub/internal/reaction"
	"expohub/internal/storage"
	"expohub/internal/util"
)

const maxUpload = 10 << 20

func (s *Server) store(r *http.Request) Listings {
	return s.listings[categoryFrom(r.Context())]
}

// ------------------------------------------------------------------------------
// ------------Reads-------------------------------------------------------------

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var p listing.Page
	for name, dst := range map[string]*int{"limit": &p.Limit, "offset": &p.Offset} {
		raw := q.Get(name)
		if raw == "" {
			continue
		}
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			util.Error(w, http.StatusBadRequest, name+" must be a non-negative integer")
			return
		}
		*dst = n
	}

	items, err := s.store(r).GetAll(r.Context(), p)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if raw := q.Get("sort"); raw != "" {
		by, ok := listing.ParseSortBy(raw)
		if !ok {
			util.Error(w, http.StatusBadRequest, "unknown sort "+strconv.Quote(raw))
			return
		}
		items = listing.Sort(items, by)
	}
	util.Render(w, http.StatusOK, items)
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	text := strings.TrimSpace(r.URL.Query().Get("q"))
	if text == "" {
		util.Render(w, http.StatusOK, []models.Listing{})
		return
	}
	items, err := s.store(r).Search(r.Context(), text)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	util.Render(w, http.StatusOK, items)
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	l, err := s.store(r).GetByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	util.Render(w, http.StatusOK, l)
}

func (s *Server) handleUserListings(w http.ResponseWriter, r *http.Request) {
	items, err := s.store(r).GetByUserID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	util.Render(w, http.StatusOK, items)
}

// ------------------------------------------------------------------------------
// ------------Writes (owner only for update/delete)-----------------------------

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	u, _ := auth.UserFrom(r.Context())
	c := categoryFrom(r.Context())

	var dto models.CreateListing
	if err := util.Decode(r, &dto); err != nil {
		util.Error(w, http.StatusBadRequest, err.Error())
		return
	}
	dto.Title = strings.TrimSpace(dto.Title)
	if err := listing.ValidateCreate(c, dto); err != nil {
		s.fail(w, r, err)
		return
	}

	l, err := s.store(r).Create(r.Context(), dto, u.ID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.metrics.ListingWrites.WithLabelValues(string(c), "create").Inc()
	s.publish(r.Context(), events.SubjectListingCreated, events.ListingChanged{ID: l.ID, Category: string(c), UserID: u.ID})
	util.Render(w, http.StatusCreated, l)
}

// owned loads the listing named by the URL and checks that the caller created it.
func (s *Server) owned(r *http.Request) (models.Listing, error) {
	u, _ := auth.UserFrom(r.Context())
	l, err := s.store(r).GetByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		return models.Listing{}, err
	}
	if l.CreatedBy != u.ID {
		return models.Listing{}, errForbidden
	}
	return l, nil
}

func (s *Server) handleUpdate(w http.ResponseWriter, r *http.Request) {
	c := categoryFrom(r.Context())

	var patch models.UpdateListing
	if err := util.Decode(r, &patch); err != nil {
		util.Error(w, http.StatusBadRequest, err.Error())
		return
	}
	if patch.Title != nil {
		t := strings.TrimSpace(*patch.Title)
		patch.Title = &t
	}
	if err := listing.ValidateUpdate(c, patch); err != nil {
		s.fail(w, r, err)
		return
	}
	old, err := s.owned(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	l, err := s.store(r).Update(r.Context(), old.ID, patch)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if patch.Images != nil {
		s.removeImages(r.Context(), dropped(old.Images, l.Images))
	}
	s.metrics.ListingWrites.WithLabelValues(string(c), "update").Inc()
	s.publish(r.Context(), events.SubjectListingUpdated, events.ListingChanged{ID: l.ID, Category: string(c), UserID: l.CreatedBy})
	util.Render(w, http.StatusOK, l)
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	c := categoryFrom(r.Context())
	l, err := s.owned(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if err := s.store(r).Delete(r.Context(), l.ID); err != nil {
		s.fail(w, r, err)
		return
	}
	s.removeImages(r.Context(), l.Images)
	s.metrics.ListingWrites.WithLabelValues(string(c), "delete").Inc()
	s.publish(r.Context(), events.SubjectListingDeleted, events.ListingChanged{ID: l.ID, Category: string(c), UserID: l.CreatedBy})
	util.Render(w, http.StatusNoContent, nil)
}

type commentRequest struct {
	Comment string `json:"comment"`
}

func (s *Server) handleComment(w http.ResponseWriter, r *http.Request) {
	u, _ := auth.UserFrom(r.Context())
	var req commentRequest
	if err := util.Decode(r, &req); err != nil {
		util.Error(w, http.StatusBadRequest, err.Error())
		return
	}
	text := strings.TrimSpace(req.Comment)
	if text == "" {
		util.Error(w, http.StatusBadRequest, "Comment cannot be empty")
		return
	}
	l, err := s.store(r).AddComment(r.Context(), chi.URLParam(r, "id"), u, text)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	util.Render(w, http.StatusCreated, l)
}

// ------------------------------------------------------------------------------
// ------------Reactions---------------------------------------------------------

func (s *Server) handleToggle(w http.ResponseWriter, r *http.Request) {
	u, _ := auth.UserFrom(r.Context())
	c := categoryFrom(r.Context())
	kind := models.Kind(r.URL.Query().Get("kind"))

	o, err := s.reactions.Toggle(r.Context(), c, chi.URLParam(r, "id"), u.ID, kind)
	result := "ok"
	if err != nil {
		result = "error"
	}
	if kind == models.Like || kind == models.Dislike {
		s.metrics.ReactionToggles.WithLabelValues(string(kind), result).Inc()
	}
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.reacted(r, c, u.ID, o)
	util.Render(w, http.StatusOK, o)
}

type reactionRequest struct {
	Kind models.Kind `json:"kind"`
}

func (s *Server) handleSetReaction(w http.ResponseWriter, r *http.Request) {
	u, _ := auth.UserFrom(r.Context())
	c := categoryFrom(r.Context())
	var req reactionRequest
	if err := util.Decode(r, &req); err != nil {
		util.Error(w, http.StatusBadRequest, err.Error())
		return
	}
	o, err := s.reactions.Set(r.Context(), c, chi.URLParam(r, "id"), u.ID, req.Kind)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.reacted(r, c, u.ID, o)
	util.Render(w, http.StatusOK, o)
}

func (s *Server) handleReactionState(w http.ResponseWriter, r *http.Request) {
	u, _ := auth.UserFrom(r.Context())
	o, err := s.reactions.State(r.Context(), categoryFrom(r.Context()), chi.URLParam(r, "id"), u.ID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	util.Render(w, http.StatusOK, o)
}

func (s *Server) reacted(r *http.Request, c models.Category, userID string, o reaction.Outcome) {
	kind := models.None
	switch {
	case o.UserLiked:
		kind = models.Like
	case o.UserDisliked:
		kind = models.Dislike
	}
	s.publish(r.Context(), events.SubjectReaction, events.ReactionChanged{
		ListingID: chi.URLParam(r, "id"),
		Category:  string(c),
		UserID:    userID,
		Kind:      string(kind),
		Likes:     o.Likes,
		Dislikes:  o.Dislikes,
	})
}

// ------------------------------------------------------------------------------
// ------------Uploads-----------------------------------------------------------

type uploadResponse struct {
	Key string `json:"key"`
	URL string `json:"url"`
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	if s.blobs == nil {
		s.fail(w, r, errNoStorage)
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxUpload)
	file, hdr, err := r.FormFile("file")
	if err != nil {
		util.Error(w, http.StatusBadRequest, "multipart field \"file\" is required")
		return
	}
	defer file.Close()

	ct := hdr.Header.Get("Content-Type")
	if !strings.HasPrefix(ct, "image/") {
		util.Error(w, http.StatusBadRequest, "only image uploads are accepted")
		return
	}
	name := hdr.Filename
	if filepath.Ext(name) == "" {
		if exts, _ := mime.ExtensionsByType(ct); len(exts) > 0 {
			name += exts[0]
		}
	}

	key, err := s.blobs.Upload(r.Context(), name, ct, file, hdr.Size)
	if err != nil {
		s.fail(w, r, fmt.Errorf("upload %s: %w", name, err))
		return
	}
	util.Render(w, http.StatusCreated, uploadResponse{Key: key, URL: s.blobs.PublicURL(key)})
}

func (s *Server) handleDeleteUpload(w http.ResponseWriter, r *http.Request) {
	if s.blobs == nil {
		s.fail(w, r, errNoStorage)
		return
	}
	key := chi.URLParam(r, "*")
	if !storage.ValidKey(key) {
		s.fail(w, r, storage.ErrInvalidKey)
		return
	}
	if err := s.blobs.Delete(r.Context(), key); err != nil {
		s.fail(w, r, err)
		return
	}
	util.Render(w, http.StatusNoContent, nil)
}

// removeImages deletes stored objects behind urls. Foreign URLs are skipped and
// failures are only logged: the listing change has already committed.
func (s *Server) removeImages(ctx context.Context, urls []string) {
	if s.blobs == nil {
		return
	}
	base := s.blobs.PublicURL("")
	var keys []string
	for _, u := range urls {
		if key, ok := strings.CutPrefix(u, base); ok && storage.ValidKey(key) {
			keys = append(keys, key)
		}
	}
	if len(keys) == 0 {
		return
	}
	if err := s.blobs.Delete(ctx, keys...); err != nil && !errors.Is(err, context.Canceled) {
		s.log.Warn("remove images", zap.Strings("keys", keys), zap.Error(err))
	}
}

func dropped(before, after []string) []string {
	keep := make(map[string]bool, len(after))
	for _, u := range after {
		keep[u] = true
	}
	var out []string
	for _, u := range before {
		if !keep[u] {
			out = append(out, u)
		}
	}
	return out
}
