package http

import "strings"

// Input validation constants
const (
	MaxTitleLength       = 80
	MaxMessageLength     = 4000
	MaxRequirementLength = 40000
	MaxPlanLength        = 60000
)

// NormalizeTitle trims and collapses inner whitespace runs to single spaces.
// Running it twice yields the same result.
func NormalizeTitle(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// ValidateTitle normalizes and checks a project title. The returned string is
// the canonical value to store.
func ValidateTitle(s string) (string, string) {
	title := NormalizeTitle(s)
	if title == "" {
		return "", "Project title is required."
	}
	if len(title) > MaxTitleLength {
		return "", "Project title must be 80 characters or less."
	}
	return title, ""
}

// ValidateMessage checks one chat message body.
func ValidateMessage(s string) (string, string) {
	content := strings.TrimSpace(s)
	if content == "" {
		return "", "Message content is required."
	}
	if len(content) > MaxMessageLength {
		return "", "Message must be 4000 characters or less."
	}
	return content, ""
}

// ValidateRequirementDoc checks a requirements document body.
func ValidateRequirementDoc(s string) (string, string) {
	content := strings.TrimSpace(s)
	if content == "" {
		return "", "Requirements content is required."
	}
	if len(content) > MaxRequirementLength {
		return "", "Requirements must be 40000 characters or less."
	}
	return content, ""
}

// ValidatePlanDoc checks an implementation plan body.
func ValidatePlanDoc(s string) (string, string) {
	content := strings.TrimSpace(s)
	if content == "" {
		return "", "Plan content is required."
	}
	if len(content) > MaxPlanLength {
		return "", "Plan must be 60000 characters or less."
	}
	return content, ""
}
