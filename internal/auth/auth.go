// internal/auth/auth.go
package auth

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"expohub/internal/db"
	"expohub/internal/events"
	"expohub/internal/models"
)

var (
	ErrEmailTaken       = errors.New("email already taken")
	ErrUsernameTaken    = errors.New("username already taken")
	ErrInvalidLogin     = errors.New("invalid email or password")
	ErrNoSession        = errors.New("session not found")
	ErrPasswordMismatch = errors.New("Passwords do not match")
)

// ValidationError is returned before any query runs.
type ValidationError struct{ Msg string }

func (e *ValidationError) Error() string { return e.Msg }

const minPasswordLen = 6

// ----------------------------
// Context helpers (middleware and handlers)
// ----------------------------

type ctxKeyUser struct{}

func WithUser(ctx context.Context, u models.User) context.Context {
	return context.WithValue(ctx, ctxKeyUser{}, u)
}

func UserFrom(ctx context.Context) (models.User, bool) {
	u, ok := ctx.Value(ctxKeyUser{}).(models.User)
	return u, ok && u.ID != ""
}

// Welcomer sends the post-registration message.
type Welcomer interface {
	SendWelcome(ctx context.Context, to, username string) error
}

const (
	welcomeBacklog = 256
	welcomeTimeout = 30 * time.Second
)

type Service struct {
	db       db.DB
	tokens   *Tokens
	lifetime time.Duration
	pub      events.Publisher
	broker   *Broker
	mail     Welcomer
	welcomes <-chan Notice
	log      *zap.Logger
}

func NewService(d db.DB, tokens *Tokens, lifetime time.Duration, pub events.Publisher, mail Welcomer, log *zap.Logger) *Service {
	if pub == nil {
		pub = events.Nop{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	s := &Service{db: d, tokens: tokens, lifetime: lifetime, pub: pub, broker: NewBroker(), mail: mail, log: log.Named("auth")}
	if mail != nil {
		s.welcomes, _ = s.broker.Subscribe(welcomeBacklog)
	}
	return s
}

// Subscribe returns the in-process stream of registrations, sign-ins and sign-outs.
func (s *Service) Subscribe(buf int) (<-chan Notice, func()) {
	return s.broker.Subscribe(buf)
}

// Run sends welcome mail for new registrations until ctx is done. Register only
// queues the notice.
func (s *Service) Run(ctx context.Context) {
	if s.welcomes == nil {
		return
	}
	for {
		select {
		case <-ctx.Done():
			return
		case n, ok := <-s.welcomes:
			if !ok {
				return
			}
			if n.Subject == events.SubjectRegistered {
				s.welcome(ctx, n)
			}
		}
	}
}

func (s *Service) welcome(ctx context.Context, n Notice) {
	ctx, cancel := context.WithTimeout(ctx, welcomeTimeout)
	defer cancel()
	if err := s.mail.SendWelcome(ctx, n.Email, n.Username); err != nil {
		s.log.Warn("welcome mail failed", zap.String("email", n.Email), zap.Error(err))
	}
}

// ValidateCredentials checks the fields a registration form requires.
func ValidateCredentials(email, password string) error {
	if email == "" || password == "" {
		return &ValidationError{Msg: "email and password are required"}
	}
	if a, err := mail.ParseAddress(email); err != nil || a.Address != email {
		return &ValidationError{Msg: "Please enter a valid email"}
	}
	if len(password) < minPasswordLen {
		return &ValidationError{Msg: fmt.Sprintf("Password must be at least %d characters", minPasswordLen)}
	}
	return nil
}

// ----------------------------
// Register
// ----------------------------

// Register creates a user. An empty username defaults to the e-mail local part.
func (s *Service) Register(ctx context.Context, email, username, password string) (models.User, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	username = strings.TrimSpace(username)

	if err := ValidateCredentials(email, password); err != nil {
		return models.User{}, err
	}
	explicitName := username != ""
	if !explicitName {
		username = email[:strings.IndexByte(email, '@')]
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return models.User{}, err
	}

	u, err := s.insertUser(ctx, email, username, string(hash))
	if errors.Is(err, ErrUsernameTaken) && !explicitName {
		u, err = s.insertUser(ctx, email, username+"-"+uuid.NewString()[:6], string(hash))
	}
	if err != nil {
		return models.User{}, err
	}

	s.log.Info("user registered", zap.String("user_id", u.ID), zap.String("email", u.Email))
	s.publish(ctx, events.SubjectRegistered, u)
	return u, nil
}

func (s *Service) insertUser(ctx context.Context, email, username, hash string) (models.User, error) {
	u := models.User{Email: email, Username: username}
	err := s.db.QueryRow(ctx, `
		INSERT INTO users (email, username, password_hash)
		VALUES ($1, $2, $3)
		RETURNING id::text, created_at`,
		email, username, hash,
	).Scan(&u.ID, &u.CreatedAt)
	switch {
	case isUniqueErr(err, "users_email_key"):
		return models.User{}, ErrEmailTaken
	case isUniqueErr(err, "users_username_key"):
		return models.User{}, ErrUsernameTaken
	case err != nil:
		return models.User{}, fmt.Errorf("insert user: %w", err)
	}
	return u, nil
}

// ----------------------------
// Login (session row + signed token)
// ----------------------------

// Login checks the password, replaces the user's sessions with a new one and returns
// an access token bound to it.
func (s *Service) Login(ctx context.Context, email, password string) (string, models.User, error) {
	email = strings.TrimSpace(strings.ToLower(email))

	var u models.User
	err := s.db.QueryRow(ctx,
		`SELECT id::text, email, username, password_hash, created_at FROM users WHERE email = $1`,
		email,
	).Scan(&u.ID, &u.Email, &u.Username, &u.PasswordHash, &u.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		s.log.Debug("login: unknown email", zap.String("email", email))
		return "", models.User{}, ErrInvalidLogin
	}
	if err != nil {
		return "", models.User{}, fmt.Errorf("query user: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		s.log.Debug("login: bad password", zap.String("email", email))
		return "", models.User{}, ErrInvalidLogin
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return "", models.User{}, err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM sessions WHERE user_id = $1`, u.ID); err != nil {
		return "", models.User{}, fmt.Errorf("delete old sessions: %w", err)
	}

	sess := models.Session{ID: uuid.NewString(), UserID: u.ID, ExpiresAt: time.Now().Add(s.lifetime)}
	if err := tx.QueryRow(ctx,
		`INSERT INTO sessions (id, user_id, expires_at) VALUES ($1, $2, $3) RETURNING created_at`,
		sess.ID, sess.UserID, sess.ExpiresAt,
	).Scan(&sess.CreatedAt); err != nil {
		return "", models.User{}, fmt.Errorf("insert session: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return "", models.User{}, err
	}

	token, err := s.tokens.Issue(sess.ID, sess.UserID, sess.ExpiresAt)
	if err != nil {
		return "", models.User{}, err
	}

	s.log.Info("login ok", zap.String("user_id", u.ID), zap.Time("session_created", sess.CreatedAt))
	s.publish(ctx, events.SubjectSignedIn, u)
	u.PasswordHash = ""
	return token, u, nil
}

// ----------------------------
// Logout
// ----------------------------

func (s *Service) Logout(ctx context.Context, token string) error {
	claims, err := s.tokens.Parse(token)
	if err != nil {
		return ErrNoSession
	}
	tag, err := s.db.Exec(ctx, `DELETE FROM sessions WHERE id = $1`, claims.ID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNoSession
	}
	s.publish(ctx, events.SubjectSignedOut, models.User{ID: claims.Subject})
	return nil
}

// ----------------------------
// UserFromToken: validates the token and its session row
// ----------------------------

func (s *Service) UserFromToken(ctx context.Context, token string) (models.User, error) {
	claims, err := s.tokens.Parse(token)
	if err != nil {
		return models.User{}, ErrNoSession
	}

	var u models.User
	err = s.db.QueryRow(ctx, `
		SELECT u.id::text, u.email, u.username, u.created_at
		  FROM sessions s
		  JOIN users u ON u.id = s.user_id
		 WHERE s.id = $1 AND s.expires_at > now()`,
		claims.ID,
	).Scan(&u.ID, &u.Email, &u.Username, &u.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.User{}, ErrNoSession
	}
	if err != nil {
		return models.User{}, err
	}
	return u, nil
}

// publish reports an auth change in process and on the event bus.
func (s *Service) publish(ctx context.Context, subject string, u models.User) {
	now := time.Now()
	n := Notice{Subject: subject, UserID: u.ID, Email: u.Email, Username: u.Username, At: now}
	if missed := s.broker.Publish(n); missed > 0 {
		s.log.Warn("auth notice dropped", zap.String("subject", subject), zap.Int("subscribers", missed))
	}
	if err := s.pub.Publish(ctx, subject, events.AuthChanged{UserID: u.ID, At: now}); err != nil {
		s.log.Warn("publish auth event", zap.String("subject", subject), zap.Error(err))
	}
}

// ----------------------------
// Helpers
// ----------------------------

func isUniqueErr(err error, constraint string) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Code == "23505" && pgErr.ConstraintName == constraint
}
