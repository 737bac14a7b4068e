package models

import "time"

type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	Username     string    `json:"username"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}

type Session struct {
	ID        string
	UserID    string
	ExpiresAt time.Time
	CreatedAt time.Time
}

// Category names the table a listing lives in.
type Category string

const (
	Expositions Category = "expositions"
	SaleAds     Category = "sale_ads"
)

func (c Category) Valid() bool {
	return c == Expositions || c == SaleAds
}

// Path is the URL segment used for the category ("expositions", "sale-ads").
func (c Category) Path() string {
	if c == SaleAds {
		return "sale-ads"
	}
	return string(c)
}

func CategoryFromPath(seg string) (Category, bool) {
	switch seg {
	case "expositions":
		return Expositions, true
	case "sale-ads":
		return SaleAds, true
	}
	return "", false
}

// Listing is an exposition or a sale ad. Price is only meaningful for sale ads.
type Listing struct {
	ID          string    `json:"id"`
	Category    Category  `json:"category"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Images      []string  `json:"images"`
	CreatedBy   string    `json:"created_by"`
	CreatedAt   time.Time `json:"created_at"`
	Likes       int       `json:"likes"`
	Dislikes    int       `json:"dislikes"`
	Comments    []Comment `json:"comments"`
	Price       *float64  `json:"price,omitempty"`
}

type Comment struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Username  string    `json:"username"`
	Comment   string    `json:"comment"`
	CreatedAt time.Time `json:"created_at"`
}

// Kind is a user's reaction to a listing. The zero value means no reaction.
type Kind string

const (
	None    Kind = ""
	Like    Kind = "like"
	Dislike Kind = "dislike"
)

type Interaction struct {
	UserID    string
	ListingID string
	Category  Category
	Kind      Kind
	CreatedAt time.Time
}

// CreateListing is the payload for a new listing.
type CreateListing struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Images      []string `json:"images"`
	Price       *float64 `json:"price,omitempty"`
}

// UpdateListing is a partial update; nil fields are left untouched.
type UpdateListing struct {
	Title       *string   `json:"title,omitempty"`
	Description *string   `json:"description,omitempty"`
	Images      *[]string `json:"images,omitempty"`
	Price       *float64  `json:"price,omitempty"`
}
