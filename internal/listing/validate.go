package listing

import (
	"net/url"
	"regexp"
	"strings"
	"unicode/utf8"

	"expohub/internal/models"
)

const (
	minTitleLen       = 3
	maxDescriptionLen = 1000
)

// ValidationError lists every failed field; it is returned before any query runs.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	var parts []string
	for _, f := range []string{"title", "description", "images", "price"} {
		if msg, ok := e.Fields[f]; ok {
			parts = append(parts, msg)
		}
	}
	return strings.Join(parts, "; ")
}

var imageExt = regexp.MustCompile(`(?i)\.(jpg|jpeg|png|gif|webp)$`)

// ValidImageURL accepts absolute URLs ending in a known image extension, or any
// unsplash.com URL.
func ValidImageURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return false
	}
	return imageExt.MatchString(raw) || strings.Contains(raw, "unsplash.com")
}

func ValidateCreate(c models.Category, dto models.CreateListing) error {
	title, desc := dto.Title, dto.Description
	return validate(c, &title, &desc, &dto.Images, dto.Price)
}

func ValidateUpdate(c models.Category, patch models.UpdateListing) error {
	return validate(c, patch.Title, patch.Description, patch.Images, patch.Price)
}

func validate(c models.Category, title, desc *string, images *[]string, price *float64) error {
	fields := map[string]string{}
	if title != nil {
		t := strings.TrimSpace(*title)
		switch {
		case t == "":
			fields["title"] = "Title is required"
		case utf8.RuneCountInString(t) < minTitleLen:
			fields["title"] = "Title must be at least 3 characters"
		}
	}
	if desc != nil && utf8.RuneCountInString(*desc) > maxDescriptionLen {
		fields["description"] = "Description cannot exceed 1000 characters"
	}
	if images != nil {
		for _, img := range *images {
			if !ValidImageURL(img) {
				fields["images"] = "Please enter a valid image URL"
				break
			}
		}
	}
	if price != nil && c == models.SaleAds && *price < 0 {
		fields["price"] = "Price cannot be negative"
	}
	if len(fields) > 0 {
		return &ValidationError{Fields: fields}
	}
	return nil
}
