// Package reaction keeps a user's like/dislike on a listing and the listing's
// aggregate counters in lockstep. Every change runs in one database transaction.
package reaction

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"expohub/internal/db"
	"expohub/internal/models"
)

var (
	ErrListingNotFound = errors.New("listing not found")
	ErrInvalidKind     = errors.New("kind must be like or dislike")
)

// Outcome carries the counters as the procedures left them.
type Outcome struct {
	Likes        int  `json:"likes"`
	Dislikes     int  `json:"dislikes"`
	UserLiked    bool `json:"user_liked"`
	UserDisliked bool `json:"user_disliked"`
}

type Step int

const (
	DeleteLike Step = iota
	DecrementLikes
	DeleteDislike
	DecrementDislikes
	InsertLike
	IncrementLikes
	InsertDislike
	IncrementDislikes
)

func (s Step) String() string {
	return [...]string{
		"delete-like", "unlike", "delete-dislike", "undislike",
		"insert-like", "like", "insert-dislike", "dislike",
	}[s]
}

// Toggled is the state reached by pressing kind while in current.
func Toggled(current, pressed models.Kind) models.Kind {
	if current == pressed {
		return models.None
	}
	return pressed
}

// Transition is one button press: the next state and the steps that reach it.
func Transition(current, pressed models.Kind) (models.Kind, []Step) {
	next := Toggled(current, pressed)
	return next, Plan(current, next)
}

// Plan lists the ordered steps that move a user's reaction from current to desired.
func Plan(current, desired models.Kind) []Step {
	if current == desired {
		return nil
	}
	var steps []Step
	switch current {
	case models.Like:
		steps = append(steps, DeleteLike, DecrementLikes)
	case models.Dislike:
		steps = append(steps, DeleteDislike, DecrementDislikes)
	}
	switch desired {
	case models.Like:
		steps = append(steps, InsertLike, IncrementLikes)
	case models.Dislike:
		steps = append(steps, InsertDislike, IncrementDislikes)
	}
	return steps
}

type Service struct {
	db     db.DB
	tracer trace.Tracer
}

func NewService(d db.DB) *Service {
	return &Service{db: d, tracer: otel.Tracer("expohub/reaction")}
}

func (s *Service) ToggleLike(ctx context.Context, c models.Category, listingID, userID string) (Outcome, error) {
	return s.Toggle(ctx, c, listingID, userID, models.Like)
}

func (s *Service) ToggleDislike(ctx context.Context, c models.Category, listingID, userID string) (Outcome, error) {
	return s.Toggle(ctx, c, listingID, userID, models.Dislike)
}

// Toggle presses like or dislike: pressing the active kind clears it, pressing the
// other kind switches to it.
func (s *Service) Toggle(ctx context.Context, c models.Category, listingID, userID string, pressed models.Kind) (Outcome, error) {
	if pressed != models.Like && pressed != models.Dislike {
		return Outcome{}, ErrInvalidKind
	}
	return s.run(ctx, "Toggle", c, listingID, userID, func(cur models.Kind) (models.Kind, []Step) {
		return Transition(cur, pressed)
	})
}

// Set moves the user's reaction to desired. Repeating the same call is a no-op.
func (s *Service) Set(ctx context.Context, c models.Category, listingID, userID string, desired models.Kind) (Outcome, error) {
	if desired != models.None && desired != models.Like && desired != models.Dislike {
		return Outcome{}, ErrInvalidKind
	}
	return s.run(ctx, "Set", c, listingID, userID, func(cur models.Kind) (models.Kind, []Step) {
		return desired, Plan(cur, desired)
	})
}

// State reads the user's current reaction and the listing counters.
func (s *Service) State(ctx context.Context, c models.Category, listingID, userID string) (Outcome, error) {
	if !c.Valid() || uuid.Validate(listingID) != nil {
		return Outcome{}, ErrListingNotFound
	}
	var o Outcome
	var kind *string
	err := s.db.QueryRow(ctx, fmt.Sprintf(`
		SELECT l.likes, l.dislikes, i.kind
		  FROM %s l
		  LEFT JOIN interactions i ON i.listing_id = l.id AND i.user_id = $2
		 WHERE l.id = $1`, c),
		listingID, userID,
	).Scan(&o.Likes, &o.Dislikes, &kind)
	if errors.Is(err, pgx.ErrNoRows) {
		return Outcome{}, ErrListingNotFound
	}
	if err != nil {
		return Outcome{}, err
	}
	if kind != nil {
		o.UserLiked = *kind == string(models.Like)
		o.UserDisliked = *kind == string(models.Dislike)
	}
	return o, nil
}

func (s *Service) run(ctx context.Context, op string, c models.Category, listingID, userID string, decide func(models.Kind) (models.Kind, []Step)) (o Outcome, err error) {
	ctx, span := s.tracer.Start(ctx, "reaction."+op, trace.WithAttributes(
		attribute.String("listing.category", string(c)),
		attribute.String("listing.id", listingID),
	))
	defer func() {
		if err != nil && !errors.Is(err, ErrListingNotFound) {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	if !c.Valid() || uuid.Validate(listingID) != nil {
		return Outcome{}, ErrListingNotFound
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return Outcome{}, err
	}
	defer tx.Rollback(ctx)

	// The row lock serializes concurrent reactions on the same listing.
	err = tx.QueryRow(ctx, fmt.Sprintf(`SELECT likes, dislikes FROM %s WHERE id = $1 FOR UPDATE`, c), listingID).
		Scan(&o.Likes, &o.Dislikes)
	if errors.Is(err, pgx.ErrNoRows) {
		return Outcome{}, ErrListingNotFound
	}
	if err != nil {
		return Outcome{}, fmt.Errorf("lock listing: %w", err)
	}

	in, err := interaction(ctx, tx, userID, listingID)
	if err != nil {
		return Outcome{}, fmt.Errorf("read interaction: %w", err)
	}
	current := in.Kind

	desired, steps := decide(current)
	span.SetAttributes(attribute.String("reaction.from", string(current)), attribute.String("reaction.to", string(desired)))

	for _, step := range steps {
		if err := s.exec(ctx, tx, step, c, listingID, userID, &o); err != nil {
			return Outcome{}, fmt.Errorf("%s: %w", step, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return Outcome{}, err
	}
	o.UserLiked = desired == models.Like
	o.UserDisliked = desired == models.Dislike
	return o, nil
}

// interaction reads the user's row for a listing. A missing row is a zero
// Interaction with Kind None.
func interaction(ctx context.Context, tx pgx.Tx, userID, listingID string) (models.Interaction, error) {
	in := models.Interaction{UserID: userID, ListingID: listingID}
	var category, kind string
	err := tx.QueryRow(ctx,
		`SELECT category, kind, created_at FROM interactions WHERE user_id = $1 AND listing_id = $2`,
		userID, listingID,
	).Scan(&category, &kind, &in.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return in, nil
	}
	if err != nil {
		return models.Interaction{}, err
	}
	in.Category = models.Category(category)
	in.Kind = models.Kind(kind)
	return in, nil
}

func (s *Service) exec(ctx context.Context, tx pgx.Tx, step Step, c models.Category, listingID, userID string, o *Outcome) error {
	switch step {
	case DeleteLike, DeleteDislike:
		kind := models.Like
		if step == DeleteDislike {
			kind = models.Dislike
		}
		_, err := tx.Exec(ctx,
			`DELETE FROM interactions WHERE user_id = $1 AND listing_id = $2 AND kind = $3`,
			userID, listingID, string(kind))
		return err
	case InsertLike, InsertDislike:
		kind := models.Like
		if step == InsertDislike {
			kind = models.Dislike
		}
		_, err := tx.Exec(ctx,
			`INSERT INTO interactions (user_id, listing_id, category, kind) VALUES ($1, $2, $3, $4)`,
			userID, listingID, string(c), string(kind))
		return err
	case IncrementLikes:
		return adjust(ctx, tx, "increment_likes", c, listingID, 1, o)
	case DecrementLikes:
		return adjust(ctx, tx, "increment_likes", c, listingID, -1, o)
	case IncrementDislikes:
		return adjust(ctx, tx, "increment_dislikes", c, listingID, 1, o)
	case DecrementDislikes:
		return adjust(ctx, tx, "increment_dislikes", c, listingID, -1, o)
	}
	return fmt.Errorf("unknown step %d", step)
}

// adjust calls a counter procedure. A procedure that returns no row means the listing
// is gone; that is an error, never a silent {0, 0}.
func adjust(ctx context.Context, tx pgx.Tx, proc string, c models.Category, listingID string, delta int, o *Outcome) error {
	err := tx.QueryRow(ctx,
		fmt.Sprintf(`SELECT likes, dislikes FROM %s($1, $2, $3)`, proc),
		string(c), listingID, delta,
	).Scan(&o.Likes, &o.Dislikes)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrListingNotFound
	}
	return err
}
