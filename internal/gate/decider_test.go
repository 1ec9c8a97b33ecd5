package gate

import (
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/reputul/reputul-backend/internal/models"
	"pgregory.net/rapid"
)

func strPtr(s string) *string {
	return &s
}

func platform(t models.PlatformType, url, placeID string) models.PlatformConfig {
	p := models.PlatformConfig{BusinessID: uuid.New(), Type: t}
	if url != "" {
		p.URL = strPtr(url)
	}
	if placeID != "" {
		p.PlaceID = strPtr(placeID)
	}
	return p
}

func TestDecide_RejectsOutOfRangeRatings(t *testing.T) {
	cfg := models.GateConfig{PublicRatingThreshold: 4}
	for _, rating := range []int{-1, 0, 6, 100} {
		if _, err := Decide(rating, cfg); err != ErrInvalidRating {
			t.Errorf("rating %d: expected ErrInvalidRating, got %v", rating, err)
		}
	}
}

func TestDecide_BelowThresholdRoutesPrivate(t *testing.T) {
	cfg := models.GateConfig{
		PublicRatingThreshold: 4,
		Platforms:             []models.PlatformConfig{platform(models.PlatformGoogle, "https://g.page/r/abc", "")},
	}

	d, err := Decide(3, cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d.Route != RoutePrivate {
		t.Errorf("expected private route, got %s", d.Route)
	}
	if d.TargetURL != "" || d.Platform != "" {
		t.Errorf("private decision must not carry a platform target, got %+v", d)
	}
}

func TestDecide_NoPlatformsRoutesPrivate(t *testing.T) {
	cfg := models.GateConfig{PublicRatingThreshold: 4}

	d, err := Decide(5, cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d.Route != RoutePrivate {
		t.Errorf("5-star rating with no platforms must route private, got %s", d.Route)
	}
}

func TestDecide_PlatformPriority(t *testing.T) {
	google := platform(models.PlatformGoogle, "https://g.page/r/abc", "")
	googlePlace := platform(models.PlatformGoogle, "", "ChIJtest123")
	facebook := platform(models.PlatformFacebook, "https://facebook.com/biz/reviews", "")
	yelp := platform(models.PlatformYelp, "https://yelp.com/biz/test", "")

	tests := []struct {
		name      string
		platforms []models.PlatformConfig
		wantType  models.PlatformType
		wantURL   string
	}{
		{
			name:      "google short url beats everything",
			platforms: []models.PlatformConfig{yelp, facebook, googlePlace, google},
			wantType:  models.PlatformGoogle,
			wantURL:   "https://g.page/r/abc",
		},
		{
			name:      "place id url when no short url",
			platforms: []models.PlatformConfig{yelp, facebook, googlePlace},
			wantType:  models.PlatformGoogle,
			wantURL:   "https://search.google.com/local/writereview?placeid=ChIJtest123",
		},
		{
			name:      "facebook beats yelp",
			platforms: []models.PlatformConfig{yelp, facebook},
			wantType:  models.PlatformFacebook,
			wantURL:   "https://facebook.com/biz/reviews",
		},
		{
			name:      "yelp as last resort",
			platforms: []models.PlatformConfig{yelp},
			wantType:  models.PlatformYelp,
			wantURL:   "https://yelp.com/biz/test",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := models.GateConfig{PublicRatingThreshold: 4, Platforms: tt.platforms}
			d, err := Decide(5, cfg)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if d.Route != RoutePublic {
				t.Fatalf("expected public route, got %s", d.Route)
			}
			if d.Platform != tt.wantType {
				t.Errorf("expected platform %s, got %s", tt.wantType, d.Platform)
			}
			if d.TargetURL != tt.wantURL {
				t.Errorf("expected url %s, got %s", tt.wantURL, d.TargetURL)
			}
		})
	}
}

func TestDecide_DefaultsInvalidThreshold(t *testing.T) {
	cfg := models.GateConfig{
		PublicRatingThreshold: 0,
		Platforms:             []models.PlatformConfig{platform(models.PlatformYelp, "https://yelp.com/biz/test", "")},
	}

	// Threshold falls back to 4: a 3 stays private, a 4 goes public
	d, err := Decide(3, cfg)
	if err != nil || d.Route != RoutePrivate {
		t.Errorf("expected private for rating 3 with default threshold, got %+v err=%v", d, err)
	}
	d, err = Decide(4, cfg)
	if err != nil || d.Route != RoutePublic {
		t.Errorf("expected public for rating 4 with default threshold, got %+v err=%v", d, err)
	}
}

// TestProperty_Decide_Deterministic tests that the gate is a pure function
// *For any* rating and configuration, repeated evaluation SHALL yield the
// same decision.
func TestProperty_Decide_Deterministic(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		rating := rapid.IntRange(1, 5).Draw(rt, "rating")
		cfg := genGateConfig(rt)

		first, err1 := Decide(rating, cfg)
		second, err2 := Decide(rating, cfg)
		if err1 != err2 {
			t.Fatalf("PROPERTY VIOLATION: errors differ across evaluations: %v vs %v", err1, err2)
		}
		if first != second {
			t.Fatalf("PROPERTY VIOLATION: decisions differ across evaluations: %+v vs %+v", first, second)
		}
	})
}

// TestProperty_Decide_ThresholdPartition tests the routing partition
// *For any* valid rating, ratings below the threshold SHALL route private
// and ratings at or above it SHALL route public exactly when a platform
// is configured.
func TestProperty_Decide_ThresholdPartition(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		rating := rapid.IntRange(1, 5).Draw(rt, "rating")
		cfg := genGateConfig(rt)

		d, err := Decide(rating, cfg)
		if err != nil {
			t.Fatalf("PROPERTY VIOLATION: valid rating rejected: %v", err)
		}

		threshold := cfg.PublicRatingThreshold
		if threshold < 1 || threshold > 5 {
			threshold = models.DefaultPublicRatingThreshold
		}

		hasPlatform := false
		for _, p := range cfg.Platforms {
			if (p.URL != nil && *p.URL != "") || (p.Type == models.PlatformGoogle && p.PlaceID != nil && *p.PlaceID != "") {
				hasPlatform = true
			}
		}

		wantPublic := rating >= threshold && hasPlatform
		if wantPublic && d.Route != RoutePublic {
			t.Fatalf("PROPERTY VIOLATION: rating %d >= threshold %d with platforms must be public, got %s",
				rating, threshold, d.Route)
		}
		if !wantPublic && d.Route != RoutePrivate {
			t.Fatalf("PROPERTY VIOLATION: expected private, got %s (rating=%d threshold=%d hasPlatform=%v)",
				d.Route, rating, threshold, hasPlatform)
		}

		// Public decisions always carry a usable target
		if d.Route == RoutePublic && !strings.HasPrefix(d.TargetURL, "https://") {
			t.Fatalf("PROPERTY VIOLATION: public decision carries no target URL: %+v", d)
		}
	})
}

func genGateConfig(rt *rapid.T) models.GateConfig {
	cfg := models.GateConfig{
		PublicRatingThreshold: rapid.IntRange(-1, 7).Draw(rt, "threshold"),
	}

	if rapid.Bool().Draw(rt, "hasGoogleURL") {
		cfg.Platforms = append(cfg.Platforms, platform(models.PlatformGoogle, "https://g.page/r/abc", ""))
	}
	if rapid.Bool().Draw(rt, "hasGooglePlace") {
		cfg.Platforms = append(cfg.Platforms, platform(models.PlatformGoogle, "", "ChIJtest123"))
	}
	if rapid.Bool().Draw(rt, "hasFacebook") {
		cfg.Platforms = append(cfg.Platforms, platform(models.PlatformFacebook, "https://facebook.com/biz", ""))
	}
	if rapid.Bool().Draw(rt, "hasYelp") {
		cfg.Platforms = append(cfg.Platforms, platform(models.PlatformYelp, "https://yelp.com/biz", ""))
	}
	return cfg
}
