package listing

import (
	"time"

	"expohub/internal/models"
)

const PlaceholderImage = "/assets/images/placeholder-exposition.jpg"

// PreviewImage is the first image, or the placeholder when there is none.
func PreviewImage(l models.Listing) string {
	if len(l.Images) > 0 {
		return l.Images[0]
	}
	return PlaceholderImage
}

func ImageCount(l models.Listing) int { return len(l.Images) }

// Summary is what the dashboard shows for a user's own listings.
type Summary struct {
	Total        int              `json:"total"`
	TotalImages  int              `json:"total_images"`
	TotalLikes   int              `json:"total_likes"`
	LastActivity *time.Time       `json:"last_activity,omitempty"`
	Recent       []models.Listing `json:"recent"`
}

// Summarize expects items newest first, as the gateway returns them.
func Summarize(items []models.Listing) Summary {
	s := Summary{Total: len(items), Recent: items[:min(3, len(items))]}
	for _, l := range items {
		s.TotalImages += len(l.Images)
		s.TotalLikes += l.Likes
		if s.LastActivity == nil || l.CreatedAt.After(*s.LastActivity) {
			t := l.CreatedAt
			s.LastActivity = &t
		}
	}
	return s
}
