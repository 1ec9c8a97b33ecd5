package gate

import (
	"errors"
	"fmt"

	"github.com/reputul/reputul-backend/internal/models"
)

// Decider errors
var (
	ErrInvalidRating = errors.New("rating must be between 1 and 5")
	ErrAlreadyUsed   = errors.New("rating gate already used for this review request")
)

// Route indicates where a gate submission is directed
type Route string

const (
	RoutePublic  Route = "public"
	RoutePrivate Route = "private"
)

// Decision is the outcome of a rating gate evaluation. TargetURL is
// only set for public routes.
type Decision struct {
	Route     Route               `json:"route"`
	Rating    int                 `json:"rating"`
	Platform  models.PlatformType `json:"platform,omitempty"`
	TargetURL string              `json:"target_url,omitempty"`
}

// Decide evaluates the rating gate for a submitted star rating against
// a business's configuration. Pure and deterministic: ratings at or
// above the threshold route to the highest-priority configured public
// platform; everything else, including ratings with no configured
// platform, routes to the private feedback form.
func Decide(rating int, cfg models.GateConfig) (Decision, error) {
	if rating < 1 || rating > 5 {
		return Decision{}, ErrInvalidRating
	}

	threshold := cfg.PublicRatingThreshold
	if threshold < 1 || threshold > 5 {
		threshold = models.DefaultPublicRatingThreshold
	}

	if rating < threshold {
		return Decision{Route: RoutePrivate, Rating: rating}, nil
	}

	platform, url, ok := selectPlatform(cfg.Platforms)
	if !ok {
		return Decision{Route: RoutePrivate, Rating: rating}, nil
	}

	return Decision{
		Route:     RoutePublic,
		Rating:    rating,
		Platform:  platform,
		TargetURL: url,
	}, nil
}

// selectPlatform picks the highest-priority configured review
// destination. Preference order: Google short URL, Google Place
// ID-derived URL, Facebook, Yelp.
func selectPlatform(platforms []models.PlatformConfig) (models.PlatformType, string, bool) {
	var googlePlaceID, facebookURL, yelpURL string

	for _, p := range platforms {
		switch p.Type {
		case models.PlatformGoogle:
			if p.URL != nil && *p.URL != "" {
				return models.PlatformGoogle, *p.URL, true
			}
			if p.PlaceID != nil && *p.PlaceID != "" && googlePlaceID == "" {
				googlePlaceID = *p.PlaceID
			}
		case models.PlatformFacebook:
			if p.URL != nil && *p.URL != "" && facebookURL == "" {
				facebookURL = *p.URL
			}
		case models.PlatformYelp:
			if p.URL != nil && *p.URL != "" && yelpURL == "" {
				yelpURL = *p.URL
			}
		}
	}

	if googlePlaceID != "" {
		return models.PlatformGoogle, placeIDReviewURL(googlePlaceID), true
	}
	if facebookURL != "" {
		return models.PlatformFacebook, facebookURL, true
	}
	if yelpURL != "" {
		return models.PlatformYelp, yelpURL, true
	}
	return "", "", false
}

// placeIDReviewURL derives the Google write-review URL from a Place ID
func placeIDReviewURL(placeID string) string {
	return fmt.Sprintf("https://search.google.com/local/writereview?placeid=%s", placeID)
}
