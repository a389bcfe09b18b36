package http

import (
	"strings"
	"testing"
)

func TestValidateTitleNormalizes(t *testing.T) {
	title, problem := ValidateTitle("  My   Project\tName ")
	if problem != "" {
		t.Fatalf("unexpected problem: %s", problem)
	}
	if title != "My Project Name" {
		t.Errorf("expected collapsed whitespace, got %q", title)
	}
}

func TestValidateTitleIdempotent(t *testing.T) {
	first, _ := ValidateTitle("  a   b  ")
	second, problem := ValidateTitle(first)
	if problem != "" || second != first {
		t.Errorf("re-validating a valid title must not change it: %q -> %q", first, second)
	}
}

func TestValidateTitleRequired(t *testing.T) {
	for _, input := range []string{"", "   ", "\t\n"} {
		if _, problem := ValidateTitle(input); problem != "Project title is required." {
			t.Errorf("input %q: expected required error, got %q", input, problem)
		}
	}
}

func TestValidateTitleOverLength(t *testing.T) {
	_, problem := ValidateTitle(strings.Repeat("x", MaxTitleLength+1))
	if problem != "Project title must be 80 characters or less." {
		t.Errorf("expected length error, got %q", problem)
	}
	if _, problem := ValidateTitle(strings.Repeat("x", MaxTitleLength)); problem != "" {
		t.Errorf("title at the limit should pass, got %q", problem)
	}
}

func TestValidateMessage(t *testing.T) {
	content, problem := ValidateMessage("  hello  ")
	if problem != "" || content != "hello" {
		t.Errorf("expected trimmed content, got %q / %q", content, problem)
	}
	if _, problem := ValidateMessage(" "); problem == "" {
		t.Error("blank message should be rejected")
	}
	if _, problem := ValidateMessage(strings.Repeat("x", MaxMessageLength+1)); problem == "" {
		t.Error("oversized message should be rejected")
	}
}

func TestValidateDocuments(t *testing.T) {
	if _, problem := ValidateRequirementDoc(strings.Repeat("x", MaxRequirementLength)); problem != "" {
		t.Errorf("requirement at the limit should pass, got %q", problem)
	}
	if _, problem := ValidateRequirementDoc(strings.Repeat("x", MaxRequirementLength+1)); problem == "" {
		t.Error("oversized requirement should be rejected")
	}
	if _, problem := ValidatePlanDoc(""); problem != "Plan content is required." {
		t.Errorf("expected required error, got %q", problem)
	}
	if _, problem := ValidatePlanDoc(strings.Repeat("x", MaxPlanLength+1)); problem != "Plan must be 60000 characters or less." {
		t.Errorf("expected length error, got %q", problem)
	}
}
