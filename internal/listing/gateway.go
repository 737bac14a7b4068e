package listing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"expohub/internal/db"
	"expohub/internal/models"
)

var ErrNotFound = errors.New("listing not found")

// DefaultPageSize is the window used when an offset is given without a limit.
const DefaultPageSize = 10

// Page selects a window of the newest-first ordering. Zero values mean "unset".
type Page struct {
	Limit  int
	Offset int
}

// Range returns the inclusive, zero-based row window. ok is false when the page does
// not bound the result.
func (p Page) Range() (from, to int, ok bool) {
	switch {
	case p.Offset > 0:
		size := p.Limit
		if size <= 0 {
			size = DefaultPageSize
		}
		return p.Offset, p.Offset + size - 1, true
	case p.Limit > 0:
		return 0, p.Limit - 1, true
	}
	return 0, 0, false
}

// Gateway reads and writes one listing table.
type Gateway struct {
	db       db.DB
	category models.Category
	cols     string
	tracer   trace.Tracer
}

func NewGateway(d db.DB, c models.Category) *Gateway {
	price := "NULL::float8"
	if c == models.SaleAds {
		price = "price::float8"
	}
	return &Gateway{
		db:       d,
		category: c,
		cols:     "id::text, title, description, images, created_by::text, created_at, likes, dislikes, comments, " + price,
		tracer:   otel.Tracer("expohub/listing"),
	}
}

func (g *Gateway) Category() models.Category { return g.category }

func (g *Gateway) start(ctx context.Context, op string) (context.Context, trace.Span) {
	return g.tracer.Start(ctx, "listing."+op, trace.WithAttributes(attribute.String("listing.category", string(g.category))))
}

func end(span trace.Span, err error) {
	if err != nil && !errors.Is(err, ErrNotFound) {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// GetAll returns listings newest first, windowed by p.
func (g *Gateway) GetAll(ctx context.Context, p Page) (out []models.Listing, err error) {
	ctx, span := g.start(ctx, "GetAll")
	defer func() { end(span, err) }()

	q := fmt.Sprintf(`SELECT %s FROM %s ORDER BY created_at DESC`, g.cols, g.category)
	var args []any
	if from, to, ok := p.Range(); ok {
		q += ` LIMIT $1 OFFSET $2`
		args = append(args, to-from+1, from)
	}
	return g.query(ctx, q, args...)
}

func (g *Gateway) GetByID(ctx context.Context, id string) (l models.Listing, err error) {
	ctx, span := g.start(ctx, "GetByID")
	defer func() { end(span, err) }()

	if _, perr := uuid.Parse(id); perr != nil {
		return models.Listing{}, ErrNotFound
	}
	q := fmt.Sprintf(`SELECT %s FROM %s WHERE id = $1`, g.cols, g.category)
	return g.one(ctx, q, id)
}

func (g *Gateway) GetByUserID(ctx context.Context, userID string) (out []models.Listing, err error) {
	ctx, span := g.start(ctx, "GetByUserID")
	defer func() { end(span, err) }()

	if _, perr := uuid.Parse(userID); perr != nil {
		return []models.Listing{}, nil
	}
	q := fmt.Sprintf(`SELECT %s FROM %s WHERE created_by = $1 ORDER BY created_at DESC`, g.cols, g.category)
	return g.query(ctx, q, userID)
}

// Create inserts dto stamped with created_by = userID and returns the stored row.
func (g *Gateway) Create(ctx context.Context, dto models.CreateListing, userID string) (l models.Listing, err error) {
	ctx, span := g.start(ctx, "Create")
	defer func() { end(span, err) }()

	images := dto.Images
	if images == nil {
		images = []string{}
	}
	if g.category == models.SaleAds {
		price := 0.0
		if dto.Price != nil {
			price = *dto.Price
		}
		q := fmt.Sprintf(`INSERT INTO %s (title, description, images, created_by, price)
			VALUES ($1, $2, $3, $4, $5) RETURNING %s`, g.category, g.cols)
		return g.one(ctx, q, dto.Title, dto.Description, images, userID, price)
	}
	q := fmt.Sprintf(`INSERT INTO %s (title, description, images, created_by)
		VALUES ($1, $2, $3, $4) RETURNING %s`, g.category, g.cols)
	return g.one(ctx, q, dto.Title, dto.Description, images, userID)
}

// Update applies the non-nil fields of patch.
func (g *Gateway) Update(ctx context.Context, id string, patch models.UpdateListing) (l models.Listing, err error) {
	ctx, span := g.start(ctx, "Update")
	defer func() { end(span, err) }()

	if _, perr := uuid.Parse(id); perr != nil {
		return models.Listing{}, ErrNotFound
	}

	var (
		sets []string
		args []any
	)
	set := func(col string, v any) {
		args = append(args, v)
		sets = append(sets, fmt.Sprintf("%s = $%d", col, len(args)))
	}
	if patch.Title != nil {
		set("title", *patch.Title)
	}
	if patch.Description != nil {
		set("description", *patch.Description)
	}
	if patch.Images != nil {
		images := *patch.Images
		if images == nil {
			images = []string{}
		}
		set("images", images)
	}
	if patch.Price != nil && g.category == models.SaleAds {
		set("price", *patch.Price)
	}
	if len(sets) == 0 {
		q := fmt.Sprintf(`SELECT %s FROM %s WHERE id = $1`, g.cols, g.category)
		return g.one(ctx, q, id)
	}

	args = append(args, id)
	q := fmt.Sprintf(`UPDATE %s SET %s WHERE id = $%d RETURNING %s`,
		g.category, strings.Join(sets, ", "), len(args), g.cols)
	return g.one(ctx, q, args...)
}

// Delete removes the listing and its interaction rows.
func (g *Gateway) Delete(ctx context.Context, id string) (err error) {
	ctx, span := g.start(ctx, "Delete")
	defer func() { end(span, err) }()

	if _, perr := uuid.Parse(id); perr != nil {
		return ErrNotFound
	}

	tx, err := g.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, fmt.Sprintf(`DELETE FROM %s WHERE id = $1`, g.category), id)
	if err != nil {
		return fmt.Errorf("delete listing: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	if _, err := tx.Exec(ctx, `DELETE FROM interactions WHERE listing_id = $1`, id); err != nil {
		return fmt.Errorf("delete interactions: %w", err)
	}
	return tx.Commit(ctx)
}

// Search matches text against title or description, case-insensitively.
func (g *Gateway) Search(ctx context.Context, text string) (out []models.Listing, err error) {
	ctx, span := g.start(ctx, "Search")
	defer func() { end(span, err) }()

	q := fmt.Sprintf(`SELECT %s FROM %s
		WHERE title ILIKE $1 OR description ILIKE $1
		ORDER BY created_at DESC`, g.cols, g.category)
	return g.query(ctx, q, "%"+escapeLike(text)+"%")
}

// AddComment appends to the embedded comment list and returns the updated listing.
func (g *Gateway) AddComment(ctx context.Context, id string, author models.User, text string) (l models.Listing, err error) {
	ctx, span := g.start(ctx, "AddComment")
	defer func() { end(span, err) }()

	if _, perr := uuid.Parse(id); perr != nil {
		return models.Listing{}, ErrNotFound
	}
	c := []models.Comment{{
		ID:        uuid.NewString(),
		UserID:    author.ID,
		Username:  author.Username,
		Comment:   text,
		CreatedAt: time.Now().UTC(),
	}}
	b, err := json.Marshal(c)
	if err != nil {
		return models.Listing{}, err
	}
	q := fmt.Sprintf(`UPDATE %s SET comments = comments || $1::jsonb WHERE id = $2 RETURNING %s`, g.category, g.cols)
	return g.one(ctx, q, b, id)
}

func (g *Gateway) one(ctx context.Context, q string, args ...any) (models.Listing, error) {
	rows, err := g.db.Query(ctx, q, args...)
	if err != nil {
		return models.Listing{}, err
	}
	l, err := pgx.CollectExactlyOneRow(rows, g.scan)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Listing{}, ErrNotFound
	}
	return l, err
}

func (g *Gateway) query(ctx context.Context, q string, args ...any) ([]models.Listing, error) {
	rows, err := g.db.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	out, err := pgx.CollectRows(rows, g.scan)
	if err != nil {
		return nil, err
	}
	if out == nil {
		out = []models.Listing{}
	}
	return out, nil
}

func (g *Gateway) scan(row pgx.CollectableRow) (models.Listing, error) {
	l := models.Listing{Category: g.category}
	err := row.Scan(&l.ID, &l.Title, &l.Description, &l.Images, &l.CreatedBy, &l.CreatedAt,
		&l.Likes, &l.Dislikes, &l.Comments, &l.Price)
	if l.Images == nil {
		l.Images = []string{}
	}
	if l.Comments == nil {
		l.Comments = []models.Comment{}
	}
	return l, err
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}
