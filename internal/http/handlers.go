package httpx

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"expohub/internal/app"
	"expohub/internal/auth"
	"expohub/internal/events"
	"expohub/internal/listing"
	"expohub/internal/metrics"
	"expohub/internal/models"
	"expohub/internal/reaction"
	"expohub/internal/storage"
	"expohub/internal/util"
)

// Authenticator is the server-side auth service.
type Authenticator interface {
	Register(ctx context.Context, email, username, password string) (models.User, error)
	Login(ctx context.Context, email, password string) (string, models.User, error)
	Logout(ctx context.Context, token string) error
	UserFromToken(ctx context.Context, token string) (models.User, error)
}

// Listings is one category's store.
type Listings interface {
	Category() models.Category
	GetAll(ctx context.Context, p listing.Page) ([]models.Listing, error)
	GetByID(ctx context.Context, id string) (models.Listing, error)
	GetByUserID(ctx context.Context, userID string) ([]models.Listing, error)
	Create(ctx context.Context, dto models.CreateListing, userID string) (models.Listing, error)
	Update(ctx context.Context, id string, patch models.UpdateListing) (models.Listing, error)
	Delete(ctx context.Context, id string) error
	Search(ctx context.Context, text string) ([]models.Listing, error)
	AddComment(ctx context.Context, id string, author models.User, text string) (models.Listing, error)
}

type Reactions interface {
	Toggle(ctx context.Context, c models.Category, listingID, userID string, pressed models.Kind) (reaction.Outcome, error)
	Set(ctx context.Context, c models.Category, listingID, userID string, desired models.Kind) (reaction.Outcome, error)
	State(ctx context.Context, c models.Category, listingID, userID string) (reaction.Outcome, error)
}

// Deps are the collaborators a Server needs. Blobs, Events, Metrics and Log may be nil.
type Deps struct {
	Auth      Authenticator
	Listings  []Listings
	Reactions Reactions
	Blobs     storage.Blobs
	Events    events.Publisher
	Metrics   *metrics.Metrics
	Log       *zap.Logger
}

type Server struct {
	cfg       app.Config
	auth      Authenticator
	listings  map[models.Category]Listings
	reactions Reactions
	blobs     storage.Blobs
	events    events.Publisher
	metrics   *metrics.Metrics
	log       *zap.Logger
	Router    chi.Router
}

var (
	errForbidden = errors.New("only the owner can change this listing")
	errNoStorage = errors.New("uploads are not configured")
)

func NewServer(cfg app.Config, d Deps) *Server {
	s := &Server{
		cfg:       cfg,
		auth:      d.Auth,
		listings:  make(map[models.Category]Listings, len(d.Listings)),
		reactions: d.Reactions,
		blobs:     d.Blobs,
		events:    d.Events,
		metrics:   d.Metrics,
		log:       d.Log,
	}
	for _, l := range d.Listings {
		s.listings[l.Category()] = l
	}
	if s.events == nil {
		s.events = events.Nop{}
	}
	if s.metrics == nil {
		s.metrics = metrics.New("expohub")
	}
	if s.log == nil {
		s.log = zap.NewNop()
	}
	s.log = s.log.Named("http")
	s.Router = s.routes()
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { s.Router.ServeHTTP(w, r) }

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, s.accessLog, middleware.Recoverer, s.withSession)

	r.Handle("/metrics", s.metrics.Handler())
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		util.Render(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	// pages
	r.Get("/", s.handleHome)
	r.Get("/login", redirect("/auth/login"))
	r.Get("/register", redirect("/auth/register"))
	r.Route("/auth", func(r chi.Router) {
		r.Get("/login", s.handleLoginPage)
		r.Get("/register", s.handleRegisterPage)
		r.With(s.requirePage).Get("/profile", s.handleProfilePage)
	})
	for _, c := range []models.Category{models.Expositions, models.SaleAds} {
		r.Route("/"+c.Path(), func(r chi.Router) {
			r.Get("/", s.handleListPage(c))
			r.With(s.requirePage).Get("/create", s.handleCreatePage(c))
			r.Get("/{id}", s.handleDetailPage(c))
			r.With(s.requirePage).Get("/{id}/edit", s.handleEditPage(c))
		})
	}
	r.With(s.requirePage).Get("/dashboard", s.handleDashboard)
	r.NotFound(s.handleNotFound)

	r.Route("/api", func(r chi.Router) {
		r.Use(s.requireAPIKey)
		r.NotFound(s.handleNotFound)

		r.Post("/auth/register", s.handleRegister)
		r.Post("/auth/login", s.handleLogin)
		r.Post("/auth/logout", s.handleLogout)
		r.With(s.requireAuth).Get("/auth/me", s.handleMe)

		r.With(s.withCategory).Get("/users/{id}/{category}", s.handleUserListings)

		r.Group(func(r chi.Router) {
			r.Use(s.requireAuth)
			r.Post("/uploads", s.handleUpload)
			r.Delete("/uploads/*", s.handleDeleteUpload)
		})

		r.Route("/{category}", func(r chi.Router) {
			r.Use(s.withCategory)
			r.Get("/", s.handleList)
			r.Get("/search", s.handleSearch)
			r.Get("/{id}", s.handleGet)

			r.Group(func(r chi.Router) {
				r.Use(s.requireAuth)
				r.Post("/", s.handleCreate)
				r.Patch("/{id}", s.handleUpdate)
				r.Delete("/{id}", s.handleDelete)
				r.Post("/{id}/comments", s.handleComment)
				r.Post("/{id}/toggle", s.handleToggle)
				r.Put("/{id}/reaction", s.handleSetReaction)
				r.Get("/{id}/reaction", s.handleReactionState)
			})
		})
	})
	return r
}

func redirect(to string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, to, http.StatusMovedPermanently)
	}
}

// ------------------------------------------------------------------------------
// ------------Error mapping-----------------------------------------------------

// fail maps domain errors to a status and writes {"error": msg}.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	var (
		authErr    *auth.ValidationError
		listingErr *listing.ValidationError
	)
	status := http.StatusInternalServerError
	msg := "internal error"
	switch {
	case errors.As(err, &authErr), errors.As(err, &listingErr),
		errors.Is(err, auth.ErrPasswordMismatch), errors.Is(err, reaction.ErrInvalidKind),
		errors.Is(err, storage.ErrInvalidKey):
		status, msg = http.StatusBadRequest, err.Error()
	case errors.Is(err, auth.ErrInvalidLogin), errors.Is(err, auth.ErrNoSession):
		status, msg = http.StatusUnauthorized, err.Error()
	case errors.Is(err, errForbidden):
		status, msg = http.StatusForbidden, err.Error()
	case errors.Is(err, listing.ErrNotFound), errors.Is(err, reaction.ErrListingNotFound):
		status, msg = http.StatusNotFound, err.Error()
	case errors.Is(err, auth.ErrEmailTaken), errors.Is(err, auth.ErrUsernameTaken):
		status, msg = http.StatusConflict, err.Error()
	case errors.Is(err, errNoStorage):
		status, msg = http.StatusServiceUnavailable, err.Error()
	case errors.Is(err, context.DeadlineExceeded):
		status, msg = http.StatusGatewayTimeout, "request timeout"
	}
	if status == http.StatusInternalServerError {
		s.log.Error("request failed", zap.String("path", r.URL.Path), zap.Error(err))
	}
	util.Error(w, status, msg)
}

func (s *Server) publish(ctx context.Context, subject string, data any) {
	if err := s.events.Publish(ctx, subject, data); err != nil {
		s.log.Warn("publish event", zap.String("subject", subject), zap.Error(err))
	}
}

// ------------------------------------------------------------------------------
// ------------Auth API----------------------------------------------------------

type registerRequest struct {
	Email           string `json:"email"`
	Username        string `json:"username"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirm_password"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token string      `json:"token"`
	User  models.User `json:"user"`
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := util.Decode(r, &req); err != nil {
		util.Error(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.ConfirmPassword != "" && req.ConfirmPassword != req.Password {
		s.fail(w, r, auth.ErrPasswordMismatch)
		return
	}
	u, err := s.auth.Register(r.Context(), req.Email, req.Username, req.Password)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	util.Render(w, http.StatusCreated, u)
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := util.Decode(r, &req); err != nil {
		util.Error(w, http.StatusBadRequest, err.Error())
		return
	}
	token, u, err := s.auth.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Expires:  time.Now().Add(s.cfg.SessionLifetime()),
	})
	util.Render(w, http.StatusOK, loginResponse{Token: token, User: u})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	tok := tokenFrom(r)
	if tok == "" {
		s.fail(w, r, auth.ErrNoSession)
		return
	}
	if err := s.auth.Logout(r.Context(), tok); err != nil && !errors.Is(err, auth.ErrNoSession) {
		s.fail(w, r, err)
		return
	}
	http.SetCookie(w, &http.Cookie{Name: CookieName, Value: "", Path: "/", MaxAge: -1})
	util.Render(w, http.StatusNoContent, nil)
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	u, _ := auth.UserFrom(r.Context())
	util.Render(w, http.StatusOK, u)
}

// ------------------------------------------------------------------------------
// ------------Pages-------------------------------------------------------------

// card is a listing as list pages show it.
type card struct {
	models.Listing
	Preview    string `json:"preview"`
	ImageCount int    `json:"image_count"`
}

func cards(items []models.Listing) []card {
	out := make([]card, 0, len(items))
	for _, l := range items {
		out = append(out, card{Listing: l, Preview: listing.PreviewImage(l), ImageCount: listing.ImageCount(l)})
	}
	return out
}

func title(c models.Category) string {
	if c == models.SaleAds {
		return "Sale ads"
	}
	return "Expositions"
}

func (s *Server) page(w http.ResponseWriter, r *http.Request, status int, v util.View) {
	if u, ok := auth.UserFrom(r.Context()); ok {
		v.User = u
	}
	util.Render(w, status, v)
}

func (s *Server) handleHome(w http.ResponseWriter, r *http.Request) {
	data := map[string][]card{}
	for c, l := range s.listings {
		items, err := l.GetAll(r.Context(), listing.Page{Limit: 6})
		if err != nil {
			s.fail(w, r, err)
			return
		}
		data[string(c)] = cards(items)
	}
	s.page(w, r, http.StatusOK, util.View{Title: "ExpoHub", Data: data})
}

func (s *Server) handleLoginPage(w http.ResponseWriter, r *http.Request) {
	if _, ok := auth.UserFrom(r.Context()); ok {
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}
	v := util.View{Title: "Sign in"}
	if r.URL.Query().Get("ok") == "1" {
		v.Flash = "Account created, please sign in"
	}
	s.page(w, r, http.StatusOK, v)
}

func (s *Server) handleRegisterPage(w http.ResponseWriter, r *http.Request) {
	if _, ok := auth.UserFrom(r.Context()); ok {
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}
	s.page(w, r, http.StatusOK, util.View{Title: "Create account"})
}

func (s *Server) handleProfilePage(w http.ResponseWriter, r *http.Request) {
	s.page(w, r, http.StatusOK, util.View{Title: "Profile"})
}

func (s *Server) handleListPage(c models.Category) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		items, err := s.listings[c].GetAll(r.Context(), listing.Page{})
		if err != nil {
			s.fail(w, r, err)
			return
		}
		by, ok := listing.ParseSortBy(r.URL.Query().Get("sort"))
		if !ok {
			by = listing.Newest
		}
		s.page(w, r, http.StatusOK, util.View{Title: title(c), Data: map[string]any{
			"sort":  by,
			"items": cards(listing.Sort(items, by)),
		}})
	}
}

func (s *Server) handleCreatePage(c models.Category) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.page(w, r, http.StatusOK, util.View{Title: "New " + strings.ToLower(title(c)), Data: map[string]any{
			"category": c,
		}})
	}
}

func (s *Server) handleDetailPage(c models.Category) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		l, err := s.listings[c].GetByID(r.Context(), chi.URLParam(r, "id"))
		if errors.Is(err, listing.ErrNotFound) {
			s.handleNotFound(w, r)
			return
		}
		if err != nil {
			s.fail(w, r, err)
			return
		}
		data := map[string]any{"listing": l}
		if u, ok := auth.UserFrom(r.Context()); ok {
			if o, err := s.reactions.State(r.Context(), c, l.ID, u.ID); err == nil {
				data["reaction"] = o
			}
			data["owner"] = l.CreatedBy == u.ID
		}
		s.page(w, r, http.StatusOK, util.View{Title: l.Title, Data: data})
	}
}

func (s *Server) handleEditPage(c models.Category) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		u, _ := auth.UserFrom(r.Context())
		l, err := s.listings[c].GetByID(r.Context(), chi.URLParam(r, "id"))
		if errors.Is(err, listing.ErrNotFound) {
			s.handleNotFound(w, r)
			return
		}
		if err != nil {
			s.fail(w, r, err)
			return
		}
		if l.CreatedBy != u.ID {
			s.page(w, r, http.StatusForbidden, util.View{Title: "Forbidden", Flash: errForbidden.Error()})
			return
		}
		s.page(w, r, http.StatusOK, util.View{Title: "Edit " + l.Title, Data: map[string]any{"listing": l}})
	}
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	u, _ := auth.UserFrom(r.Context())
	data := map[string]listing.Summary{}
	for c, l := range s.listings {
		items, err := l.GetByUserID(r.Context(), u.ID)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		data[string(c)] = listing.Summarize(items)
	}
	s.page(w, r, http.StatusOK, util.View{Title: "Dashboard", Data: data})
}

func (s *Server) handleNotFound(w http.ResponseWriter, r *http.Request) {
	if strings.HasPrefix(r.URL.Path, "/api/") {
		util.Error(w, http.StatusNotFound, "not found")
		return
	}
	s.page(w, r, http.StatusNotFound, util.View{Title: "Page not found"})
}
