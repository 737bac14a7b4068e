package httpx

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"expohub/internal/app"
	"expohub/internal/auth"
	"expohub/internal/listing"
	"expohub/internal/metrics"
	"expohub/internal/models"
	"expohub/internal/reaction"
)

// ----------------------------
// Fakes
// ----------------------------

type mockAuth struct{ mock.Mock }

func (m *mockAuth) Register(ctx context.Context, email, username, password string) (models.User, error) {
	args := m.Called(ctx, email, username, password)
	return args.Get(0).(models.User), args.Error(1)
}

func (m *mockAuth) Login(ctx context.Context, email, password string) (string, models.User, error) {
	args := m.Called(ctx, email, password)
	return args.String(0), args.Get(1).(models.User), args.Error(2)
}

func (m *mockAuth) Logout(ctx context.Context, token string) error {
	return m.Called(ctx, token).Error(0)
}

func (m *mockAuth) UserFromToken(ctx context.Context, token string) (models.User, error) {
	args := m.Called(ctx, token)
	return args.Get(0).(models.User), args.Error(1)
}

type mockReactions struct{ mock.Mock }

func (m *mockReactions) Toggle(ctx context.Context, c models.Category, listingID, userID string, pressed models.Kind) (reaction.Outcome, error) {
	args := m.Called(ctx, c, listingID, userID, pressed)
	return args.Get(0).(reaction.Outcome), args.Error(1)
}

func (m *mockReactions) Set(ctx context.Context, c models.Category, listingID, userID string, desired models.Kind) (reaction.Outcome, error) {
	args := m.Called(ctx, c, listingID, userID, desired)
	return args.Get(0).(reaction.Outcome), args.Error(1)
}

func (m *mockReactions) State(ctx context.Context, c models.Category, listingID, userID string) (reaction.Outcome, error) {
	args := m.Called(ctx, c, listingID, userID)
	return args.Get(0).(reaction.Outcome), args.Error(1)
}

// memStore keeps listings in insertion order; newest is last.
type memStore struct {
	category models.Category
	items    []models.Listing
	lastPage listing.Page
}

func (m *memStore) Category() models.Category { return m.category }

func (m *memStore) newestFirst() []models.Listing {
	out := make([]models.Listing, 0, len(m.items))
	for i := len(m.items) - 1; i >= 0; i-- {
		out = append(out, m.items[i])
	}
	return out
}

func (m *memStore) GetAll(_ context.Context, p listing.Page) ([]models.Listing, error) {
	m.lastPage = p
	all := m.newestFirst()
	from, to, ok := p.Range()
	if !ok {
		return all, nil
	}
	if from >= len(all) {
		return []models.Listing{}, nil
	}
	return all[from:min(to+1, len(all))], nil
}

func (m *memStore) find(id string) (int, error) {
	for i, l := range m.items {
		if l.ID == id {
			return i, nil
		}
	}
	return -1, listing.ErrNotFound
}

func (m *memStore) GetByID(_ context.Context, id string) (models.Listing, error) {
	i, err := m.find(id)
	if err != nil {
		return models.Listing{}, err
	}
	return m.items[i], nil
}

func (m *memStore) GetByUserID(_ context.Context, userID string) ([]models.Listing, error) {
	out := []models.Listing{}
	for _, l := range m.newestFirst() {
		if l.CreatedBy == userID {
			out = append(out, l)
		}
	}
	return out, nil
}

func (m *memStore) Create(_ context.Context, dto models.CreateListing, userID string) (models.Listing, error) {
	l := models.Listing{
		ID:          uuid.NewString(),
		Category:    m.category,
		Title:       dto.Title,
		Description: dto.Description,
		Images:      dto.Images,
		CreatedBy:   userID,
		CreatedAt:   time.Now(),
		Price:       dto.Price,
	}
	m.items = append(m.items, l)
	return l, nil
}

func (m *memStore) Update(_ context.Context, id string, patch models.UpdateListing) (models.Listing, error) {
	i, err := m.find(id)
	if err != nil {
		return models.Listing{}, err
	}
	if patch.Title != nil {
		m.items[i].Title = *patch.Title
	}
	if patch.Description != nil {
		m.items[i].Description = *patch.Description
	}
	if patch.Images != nil {
		m.items[i].Images = *patch.Images
	}
	return m.items[i], nil
}

func (m *memStore) Delete(_ context.Context, id string) error {
	i, err := m.find(id)
	if err != nil {
		return err
	}
	m.items = append(m.items[:i], m.items[i+1:]...)
	return nil
}

func (m *memStore) Search(_ context.Context, text string) ([]models.Listing, error) {
	out := []models.Listing{}
	for _, l := range m.newestFirst() {
		if strings.Contains(strings.ToLower(l.Title+" "+l.Description), strings.ToLower(text)) {
			out = append(out, l)
		}
	}
	return out, nil
}

func (m *memStore) AddComment(_ context.Context, id string, author models.User, text string) (models.Listing, error) {
	i, err := m.find(id)
	if err != nil {
		return models.Listing{}, err
	}
	m.items[i].Comments = append(m.items[i].Comments, models.Comment{ID: uuid.NewString(), UserID: author.ID, Username: author.Username, Comment: text})
	return m.items[i], nil
}

type memBlobs struct {
	objects map[string][]byte
	deleted []string
}

func (b *memBlobs) Upload(_ context.Context, filename, _ string, r io.Reader, _ int64) (string, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	key := "images/" + uuid.NewString() + strings.ToLower(filename[strings.LastIndexByte(filename, '.'):])
	b.objects[key] = data
	return key, nil
}

func (b *memBlobs) PublicURL(key string) string { return "http://blobs.test/bucket/" + key }

func (b *memBlobs) Delete(_ context.Context, keys ...string) error {
	b.deleted = append(b.deleted, keys...)
	return nil
}

// ----------------------------
// Harness
// ----------------------------

var (
	alice = models.User{ID: "11111111-1111-1111-1111-111111111111", Email: "alice@test.dev", Username: "alice"}
	bob   = models.User{ID: "22222222-2222-2222-2222-222222222222", Email: "bob@test.dev", Username: "bob"}
)

type harness struct {
	srv       *Server
	auth      *mockAuth
	reactions *mockReactions
	expos     *memStore
	ads       *memStore
	blobs     *memBlobs
}

func newHarness(t *testing.T, cfg app.Config) *harness {
	t.Helper()
	h := &harness{
		auth:      &mockAuth{},
		reactions: &mockReactions{},
		expos:     &memStore{category: models.Expositions},
		ads:       &memStore{category: models.SaleAds},
		blobs:     &memBlobs{objects: map[string][]byte{}},
	}
	h.auth.On("UserFromToken", mock.Anything, "tok-alice").Return(alice, nil).Maybe()
	h.auth.On("UserFromToken", mock.Anything, "tok-bob").Return(bob, nil).Maybe()
	h.auth.On("UserFromToken", mock.Anything, mock.Anything).Return(models.User{}, auth.ErrNoSession).Maybe()

	h.srv = NewServer(cfg, Deps{
		Auth:      h.auth,
		Listings:  []Listings{h.expos, h.ads},
		Reactions: h.reactions,
		Blobs:     h.blobs,
		Metrics:   metrics.New("test"),
	})
	return h
}

func (h *harness) do(method, target, token string, body any) *httptest.ResponseRecorder {
	var r io.Reader
	if body != nil {
		b, _ := json.Marshal(body)
		r = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, target, r)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.srv.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func errorOf(t *testing.T, rec *httptest.ResponseRecorder) string {
	return decode[map[string]string](t, rec)["error"]
}

// ----------------------------
// Auth
// ----------------------------

func TestRegisterPasswordMismatchSkipsService(t *testing.T) {
	h := newHarness(t, app.Config{})

	rec := h.do(http.MethodPost, "/api/auth/register", "", map[string]string{
		"email": "new@test.dev", "password": "secret1", "confirm_password": "secret2",
	})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Passwords do not match", errorOf(t, rec))
	h.auth.AssertNotCalled(t, "Register", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestRegisterConflict(t *testing.T) {
	h := newHarness(t, app.Config{})
	h.auth.On("Register", mock.Anything, "alice@test.dev", "", "secret1").Return(models.User{}, auth.ErrEmailTaken).Once()

	rec := h.do(http.MethodPost, "/api/auth/register", "", map[string]string{
		"email": "alice@test.dev", "password": "secret1", "confirm_password": "secret1",
	})

	assert.Equal(t, http.StatusConflict, rec.Code)
	h.auth.AssertExpectations(t)
}

func TestLoginSetsCookie(t *testing.T) {
	h := newHarness(t, app.Config{})
	h.auth.On("Login", mock.Anything, "alice@test.dev", "secret1").Return("tok-alice", alice, nil).Once()

	rec := h.do(http.MethodPost, "/api/auth/login", "", map[string]string{"email": "alice@test.dev", "password": "secret1"})

	require.Equal(t, http.StatusOK, rec.Code)
	resp := decode[loginResponse](t, rec)
	assert.Equal(t, "tok-alice", resp.Token)
	assert.Equal(t, alice.ID, resp.User.ID)

	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, CookieName, cookies[0].Name)
	assert.True(t, cookies[0].HttpOnly)
}

func TestLoginInvalid(t *testing.T) {
	h := newHarness(t, app.Config{})
	h.auth.On("Login", mock.Anything, "alice@test.dev", "nope").Return("", models.User{}, auth.ErrInvalidLogin).Once()

	rec := h.do(http.MethodPost, "/api/auth/login", "", map[string]string{"email": "alice@test.dev", "password": "nope"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, auth.ErrInvalidLogin.Error(), errorOf(t, rec))
}

func TestMeRequiresSession(t *testing.T) {
	h := newHarness(t, app.Config{})

	assert.Equal(t, http.StatusUnauthorized, h.do(http.MethodGet, "/api/auth/me", "", nil).Code)
	assert.Equal(t, http.StatusUnauthorized, h.do(http.MethodGet, "/api/auth/me", "garbage", nil).Code)

	rec := h.do(http.MethodGet, "/api/auth/me", "tok-alice", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "alice", decode[models.User](t, rec).Username)
}

func TestLogout(t *testing.T) {
	h := newHarness(t, app.Config{})
	h.auth.On("Logout", mock.Anything, "tok-alice").Return(nil).Once()

	rec := h.do(http.MethodPost, "/api/auth/logout", "tok-alice", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	h.auth.AssertExpectations(t)
}

func TestAPIKey(t *testing.T) {
	h := newHarness(t, app.Config{APIKey: "k3y"})

	rec := h.do(http.MethodGet, "/api/expositions", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/api/expositions", nil)
	req.Header.Set(APIKeyHeader, "k3y")
	ok := httptest.NewRecorder()
	h.srv.ServeHTTP(ok, req)
	assert.Equal(t, http.StatusOK, ok.Code)
}

// ----------------------------
// Listings
// ----------------------------

func TestCreateRequiresAuth(t *testing.T) {
	h := newHarness(t, app.Config{})
	rec := h.do(http.MethodPost, "/api/expositions", "", map[string]any{"title": "Dunes"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Empty(t, h.expos.items)
}

func TestCreateValidatesBeforeStoring(t *testing.T) {
	h := newHarness(t, app.Config{})
	rec := h.do(http.MethodPost, "/api/expositions", "tok-alice", map[string]any{"title": "ab", "images": []string{"ftp:nothing"}})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, errorOf(t, rec), "Title must be at least 3 characters")
	assert.Empty(t, h.expos.items)
}

func TestCreateStampsOwner(t *testing.T) {
	h := newHarness(t, app.Config{})
	rec := h.do(http.MethodPost, "/api/sale-ads", "tok-alice", map[string]any{"title": "Road bike", "price": 120.5})

	require.Equal(t, http.StatusCreated, rec.Code)
	l := decode[models.Listing](t, rec)
	assert.Equal(t, alice.ID, l.CreatedBy)
	assert.Equal(t, models.SaleAds, l.Category)
	require.NotNil(t, l.Price)
	assert.InDelta(t, 120.5, *l.Price, 0.001)
	assert.Equal(t, 1.0, testutil.ToFloat64(h.srv.metrics.ListingWrites.WithLabelValues("sale_ads", "create")))
}

func TestListPassesPageAndSorts(t *testing.T) {
	h := newHarness(t, app.Config{})
	ctx := context.Background()
	for i := range 20 {
		_, _ = h.expos.Create(ctx, models.CreateListing{Title: string(rune('A' + i))}, alice.ID)
	}

	rec := h.do(http.MethodGet, "/api/expositions?limit=5&offset=10", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, listing.Page{Limit: 5, Offset: 10}, h.expos.lastPage)
	items := decode[[]models.Listing](t, rec)
	require.Len(t, items, 5)
	assert.Equal(t, "J", items[0].Title)

	rec = h.do(http.MethodGet, "/api/expositions?limit=3&sort=alphabetical", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	items = decode[[]models.Listing](t, rec)
	assert.Equal(t, []string{"R", "S", "T"}, []string{items[0].Title, items[1].Title, items[2].Title})

	assert.Equal(t, http.StatusBadRequest, h.do(http.MethodGet, "/api/expositions?sort=random", "", nil).Code)
	assert.Equal(t, http.StatusBadRequest, h.do(http.MethodGet, "/api/expositions?limit=-1", "", nil).Code)
}

func TestUnknownCategory(t *testing.T) {
	h := newHarness(t, app.Config{})
	rec := h.do(http.MethodGet, "/api/paintings", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetMissing(t *testing.T) {
	h := newHarness(t, app.Config{})
	rec := h.do(http.MethodGet, "/api/expositions/"+uuid.NewString(), "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, listing.ErrNotFound.Error(), errorOf(t, rec))
}

func TestOwnerOnlyWrites(t *testing.T) {
	h := newHarness(t, app.Config{})
	l, _ := h.expos.Create(context.Background(), models.CreateListing{Title: "Harbour"}, alice.ID)

	rec := h.do(http.MethodPatch, "/api/expositions/"+l.ID, "tok-bob", map[string]any{"title": "Mine now"})
	assert.Equal(t, http.StatusForbidden, rec.Code)
	rec = h.do(http.MethodDelete, "/api/expositions/"+l.ID, "tok-bob", nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = h.do(http.MethodPatch, "/api/expositions/"+l.ID, "tok-alice", map[string]any{"title": "Harbour at dusk"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Harbour at dusk", decode[models.Listing](t, rec).Title)
}

func TestDeleteRemovesStoredImages(t *testing.T) {
	h := newHarness(t, app.Config{})
	key := "images/" + uuid.NewString() + ".png"
	l, _ := h.expos.Create(context.Background(), models.CreateListing{
		Title:  "Harbour",
		Images: []string{h.blobs.PublicURL(key), "https://images.unsplash.com/photo-1"},
	}, alice.ID)

	rec := h.do(http.MethodDelete, "/api/expositions/"+l.ID, "tok-alice", nil)
	require.Equal(t, http.StatusNoContent, rec.Code)
	assert.Empty(t, h.expos.items)
	assert.Equal(t, []string{key}, h.blobs.deleted)
}

func TestSearchAndComment(t *testing.T) {
	h := newHarness(t, app.Config{})
	ctx := context.Background()
	l, _ := h.expos.Create(ctx, models.CreateListing{Title: "Night market", Description: "Lanterns"}, alice.ID)
	_, _ = h.expos.Create(ctx, models.CreateListing{Title: "Dunes"}, alice.ID)

	rec := h.do(http.MethodGet, "/api/expositions/search?q=lantern", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	found := decode[[]models.Listing](t, rec)
	require.Len(t, found, 1)
	assert.Equal(t, l.ID, found[0].ID)

	rec = h.do(http.MethodPost, "/api/expositions/"+l.ID+"/comments", "tok-bob", map[string]string{"comment": "  lovely  "})
	require.Equal(t, http.StatusCreated, rec.Code)
	got := decode[models.Listing](t, rec)
	require.Len(t, got.Comments, 1)
	assert.Equal(t, "lovely", got.Comments[0].Comment)
	assert.Equal(t, "bob", got.Comments[0].Username)

	rec = h.do(http.MethodPost, "/api/expositions/"+l.ID+"/comments", "tok-bob", map[string]string{"comment": " "})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUserListings(t *testing.T) {
	h := newHarness(t, app.Config{})
	ctx := context.Background()
	_, _ = h.ads.Create(ctx, models.CreateListing{Title: "Lamp"}, alice.ID)
	_, _ = h.ads.Create(ctx, models.CreateListing{Title: "Desk"}, bob.ID)

	rec := h.do(http.MethodGet, "/api/users/"+bob.ID+"/sale-ads", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	items := decode[[]models.Listing](t, rec)
	require.Len(t, items, 1)
	assert.Equal(t, "Desk", items[0].Title)
}

// ----------------------------
// Reactions
// ----------------------------

func TestToggle(t *testing.T) {
	h := newHarness(t, app.Config{})
	id := uuid.NewString()
	want := reaction.Outcome{Likes: 3, Dislikes: 1, UserLiked: true}
	h.reactions.On("Toggle", mock.Anything, models.Expositions, id, alice.ID, models.Like).Return(want, nil).Once()

	rec := h.do(http.MethodPost, "/api/expositions/"+id+"/toggle?kind=like", "tok-alice", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, want, decode[reaction.Outcome](t, rec))
	assert.Equal(t, 1.0, testutil.ToFloat64(h.srv.metrics.ReactionToggles.WithLabelValues("like", "ok")))
	h.reactions.AssertExpectations(t)
}

func TestToggleErrors(t *testing.T) {
	h := newHarness(t, app.Config{})
	id := uuid.NewString()
	h.reactions.On("Toggle", mock.Anything, models.SaleAds, id, alice.ID, models.Dislike).Return(reaction.Outcome{}, reaction.ErrListingNotFound).Once()
	h.reactions.On("Toggle", mock.Anything, models.SaleAds, id, alice.ID, models.Kind("love")).Return(reaction.Outcome{}, reaction.ErrInvalidKind).Once()

	assert.Equal(t, http.StatusNotFound, h.do(http.MethodPost, "/api/sale-ads/"+id+"/toggle?kind=dislike", "tok-alice", nil).Code)
	assert.Equal(t, http.StatusBadRequest, h.do(http.MethodPost, "/api/sale-ads/"+id+"/toggle?kind=love", "tok-alice", nil).Code)
	assert.Equal(t, http.StatusUnauthorized, h.do(http.MethodPost, "/api/sale-ads/"+id+"/toggle?kind=like", "", nil).Code)
	assert.Equal(t, 1.0, testutil.ToFloat64(h.srv.metrics.ReactionToggles.WithLabelValues("dislike", "error")))
}

func TestSetAndReadReaction(t *testing.T) {
	h := newHarness(t, app.Config{})
	id := uuid.NewString()
	liked := reaction.Outcome{Likes: 1, UserLiked: true}
	h.reactions.On("Set", mock.Anything, models.Expositions, id, alice.ID, models.Like).Return(liked, nil).Twice()
	h.reactions.On("State", mock.Anything, models.Expositions, id, alice.ID).Return(liked, nil).Once()

	for range 2 {
		rec := h.do(http.MethodPut, "/api/expositions/"+id+"/reaction", "tok-alice", map[string]string{"kind": "like"})
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, liked, decode[reaction.Outcome](t, rec))
	}
	rec := h.do(http.MethodGet, "/api/expositions/"+id+"/reaction", "tok-alice", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, liked, decode[reaction.Outcome](t, rec))
	h.reactions.AssertExpectations(t)
}

// ----------------------------
// Uploads
// ----------------------------

func multipartBody(t *testing.T, filename, contentType string, data []byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	hdr := make(textproto.MIMEHeader)
	hdr.Set("Content-Disposition", `form-data; name="file"; filename="`+filename+`"`)
	hdr.Set("Content-Type", contentType)
	part, err := mw.CreatePart(hdr)
	require.NoError(t, err)
	_, err = part.Write(data)
	require.NoError(t, err)
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func TestUpload(t *testing.T) {
	h := newHarness(t, app.Config{})

	body, ct := multipartBody(t, "Sunset.PNG", "image/png", []byte("\x89PNG"))
	req := httptest.NewRequest(http.MethodPost, "/api/uploads", body)
	req.Header.Set("Content-Type", ct)
	req.Header.Set("Authorization", "Bearer tok-alice")
	rec := httptest.NewRecorder()
	h.srv.ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	resp := decode[uploadResponse](t, rec)
	assert.True(t, strings.HasSuffix(resp.Key, ".png"))
	assert.Equal(t, h.blobs.PublicURL(resp.Key), resp.URL)
	assert.Contains(t, h.blobs.objects, resp.Key)

	body, ct = multipartBody(t, "notes.txt", "text/plain", []byte("hi"))
	req = httptest.NewRequest(http.MethodPost, "/api/uploads", body)
	req.Header.Set("Content-Type", ct)
	req.Header.Set("Authorization", "Bearer tok-alice")
	rec = httptest.NewRecorder()
	h.srv.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDeleteUploadRejectsForeignKeys(t *testing.T) {
	h := newHarness(t, app.Config{})
	assert.Equal(t, http.StatusBadRequest, h.do(http.MethodDelete, "/api/uploads/etc/passwd", "tok-alice", nil).Code)

	key := "images/" + uuid.NewString() + ".jpg"
	assert.Equal(t, http.StatusNoContent, h.do(http.MethodDelete, "/api/uploads/"+key, "tok-alice", nil).Code)
	assert.Equal(t, []string{key}, h.blobs.deleted)
}

// ----------------------------
// Pages
// ----------------------------

func TestPageRedirects(t *testing.T) {
	h := newHarness(t, app.Config{})

	rec := h.do(http.MethodGet, "/login", "", nil)
	assert.Equal(t, http.StatusMovedPermanently, rec.Code)
	assert.Equal(t, "/auth/login", rec.Header().Get("Location"))

	for _, path := range []string{"/dashboard", "/expositions/create", "/auth/profile"} {
		rec = h.do(http.MethodGet, path, "", nil)
		assert.Equal(t, http.StatusSeeOther, rec.Code, path)
		assert.Equal(t, "/auth/login", rec.Header().Get("Location"), path)
	}
}

func TestNotFoundPage(t *testing.T) {
	h := newHarness(t, app.Config{})
	rec := h.do(http.MethodGet, "/nowhere", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "Page not found", decode[map[string]any](t, rec)["title"])
}

func TestDashboard(t *testing.T) {
	h := newHarness(t, app.Config{})
	ctx := context.Background()
	_, _ = h.expos.Create(ctx, models.CreateListing{Title: "One", Images: []string{"a", "b"}}, alice.ID)
	_, _ = h.ads.Create(ctx, models.CreateListing{Title: "Two"}, alice.ID)
	_, _ = h.ads.Create(ctx, models.CreateListing{Title: "Not mine"}, bob.ID)

	rec := h.do(http.MethodGet, "/dashboard", "tok-alice", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var v struct {
		Title string                     `json:"title"`
		Data  map[string]listing.Summary `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v))
	assert.Equal(t, "Dashboard", v.Title)
	assert.Equal(t, 2, v.Data["expositions"].TotalImages)
	assert.Equal(t, 1, v.Data["sale_ads"].Total)
}

func TestEditPageOwnerOnly(t *testing.T) {
	h := newHarness(t, app.Config{})
	l, _ := h.expos.Create(context.Background(), models.CreateListing{Title: "Harbour"}, alice.ID)

	assert.Equal(t, http.StatusForbidden, h.do(http.MethodGet, "/expositions/"+l.ID+"/edit", "tok-bob", nil).Code)
	assert.Equal(t, http.StatusOK, h.do(http.MethodGet, "/expositions/"+l.ID+"/edit", "tok-alice", nil).Code)
}
