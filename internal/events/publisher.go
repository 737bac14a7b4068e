package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
)

const (
	SubjectListingCreated = "listing.created"
	SubjectListingUpdated = "listing.updated"
	SubjectListingDeleted = "listing.deleted"
	SubjectReaction       = "reaction.changed"
	SubjectRegistered     = "auth.registered"
	SubjectSignedIn       = "auth.signed_in"
	SubjectSignedOut      = "auth.signed_out"
)

type Publisher interface {
	Publish(ctx context.Context, subject string, data any) error
}

type AuthChanged struct {
	UserID string    `json:"user_id"`
	At     time.Time `json:"at"`
}

type ListingChanged struct {
	ID       string `json:"id"`
	Category string `json:"category"`
	UserID   string `json:"user_id"`
}

type ReactionChanged struct {
	ListingID string `json:"listing_id"`
	Category  string `json:"category"`
	UserID    string `json:"user_id"`
	Kind      string `json:"kind"`
	Likes     int    `json:"likes"`
	Dislikes  int    `json:"dislikes"`
}

// NATS publishes JSON-encoded events.
type NATS struct {
	conn *nats.Conn
}

func NewNATS(url string) (*NATS, error) {
	conn, err := nats.Connect(url, nats.Name("expohub"), nats.MaxReconnects(-1))
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	return &NATS{conn: conn}, nil
}

func (p *NATS) Publish(_ context.Context, subject string, data any) error {
	b, err := json.Marshal(data)
	if err != nil {
		return err
	}
	return p.conn.Publish(subject, b)
}

func (p *NATS) Close() {
	p.conn.Drain()
}

// Nop drops every event. Used when NATS_URL is empty.
type Nop struct{}

func (Nop) Publish(context.Context, string, any) error { return nil }
