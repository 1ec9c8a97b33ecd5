package dispatch

import (
	"strings"
	"testing"

	"pgregory.net/rapid"
)

func TestValidPhone(t *testing.T) {
	valid := []string{"+15551234567", "+442071838750", "+8613912345678", "+1234567"}
	for _, p := range valid {
		if !ValidPhone(p) {
			t.Errorf("ValidPhone(%q) = false, want true", p)
		}
	}

	invalid := []string{
		"",
		"15551234567",      // missing plus
		"+05551234567",     // leading zero
		"+1 555 123 4567",  // spaces
		"+1-555-123-4567",  // dashes
		"+123456",          // too short
		"+1234567890123456", // too long
		"+1555123456a",
	}
	for _, p := range invalid {
		if ValidPhone(p) {
			t.Errorf("ValidPhone(%q) = true, want false", p)
		}
	}
}

func TestValidEmail(t *testing.T) {
	valid := []string{"jane@example.com", "j.doe+tag@sub.example.co.uk"}
	for _, e := range valid {
		if !ValidEmail(e) {
			t.Errorf("ValidEmail(%q) = false, want true", e)
		}
	}

	invalid := []string{"", "not-an-email", "@example.com", "jane@", "Jane Doe <jane@example.com>"}
	for _, e := range invalid {
		if ValidEmail(e) {
			t.Errorf("ValidEmail(%q) = true, want false", e)
		}
	}
}

func TestRender(t *testing.T) {
	data := TemplateData{
		CustomerName: "Jane",
		BusinessName: "Acme Plumbing",
		ReviewLink:   "https://app.example.com/r/tok123",
		ServiceType:  "drain cleaning",
	}

	got := Render("Hi {{customer_name}}, how was your {{service_type}} from {{business_name}}? {{review_link}}", data)
	want := "Hi Jane, how was your drain cleaning from Acme Plumbing? https://app.example.com/r/tok123"
	if got != want {
		t.Errorf("Render = %q, want %q", got, want)
	}
}

func TestRender_LeavesUnknownPlaceholders(t *testing.T) {
	got := Render("Hello {{unknown_tag}}", TemplateData{CustomerName: "Jane"})
	if got != "Hello {{unknown_tag}}" {
		t.Errorf("Render = %q, unknown placeholders must pass through", got)
	}
}

// TestProperty_Render_NoPlaceholderLeaks tests template substitution
// *For any* template made of known placeholders and plain text, the
// rendered output SHALL contain no known placeholder.
func TestProperty_Render_NoPlaceholderLeaks(t *testing.T) {
	placeholders := []string{"{{customer_name}}", "{{business_name}}", "{{review_link}}", "{{service_type}}"}

	rapid.Check(t, func(rt *rapid.T) {
		n := rapid.IntRange(0, 10).Draw(rt, "n")
		tmpl := ""
		for i := 0; i < n; i++ {
			if rapid.Bool().Draw(rt, "isPlaceholder") {
				tmpl += rapid.SampledFrom(placeholders).Draw(rt, "placeholder")
			} else {
				tmpl += rapid.StringMatching(`[a-zA-Z0-9 .,!]{0,20}`).Draw(rt, "text")
			}
		}

		data := TemplateData{
			CustomerName: rapid.StringMatching(`[a-zA-Z ]{1,20}`).Draw(rt, "customer"),
			BusinessName: rapid.StringMatching(`[a-zA-Z ]{1,20}`).Draw(rt, "business"),
			ReviewLink:   "https://app.example.com/r/tok",
			ServiceType:  rapid.StringMatching(`[a-z ]{1,20}`).Draw(rt, "service"),
		}

		got := Render(tmpl, data)
		for _, p := range placeholders {
			if strings.Contains(got, p) {
				t.Fatalf("PROPERTY VIOLATION: placeholder %s leaked into output %q", p, got)
			}
		}
	})
}
