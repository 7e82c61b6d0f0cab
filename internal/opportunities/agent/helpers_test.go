package agent

import (
	"strings"
	"testing"
)

func TestCleanStringListDropsEmptyAndTrims(t *testing.T) {
	got := cleanStringList([]string{"  budget approved  ", "", "   ", "needs legal review"})
	want := []string{"budget approved", "needs legal review"}

	if len(got) != len(want) {
		t.Fatalf("expected %d items, got %d: %v", len(want), len(got), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("item %d: expected %q, got %q", i, want[i], got[i])
		}
	}
}

func TestCleanStringListCapsItemCount(t *testing.T) {
	items := make([]string, maxListItems+10)
	for i := range items {
		items[i] = "item"
	}

	got := cleanStringList(items)
	if len(got) != maxListItems {
		t.Errorf("expected list capped at %d, got %d", maxListItems, len(got))
	}
}

func TestCleanPeopleDropsNamelessAndNormalizesPhone(t *testing.T) {
	people := cleanPeople([]PersonInput{
		{Name: "  Dana Voss  ", Role: "VP Operations", Phone: "(212) 555-0184"},
		{Name: "", Role: "ghost"},
		{Name: "Eli Marsh", Email: "  "},
	})

	if len(people) != 2 {
		t.Fatalf("expected 2 people, got %d", len(people))
	}

	first := people[0]
	if first.Name != "Dana Voss" {
		t.Errorf("expected trimmed name, got %q", first.Name)
	}
	if first.Role == nil || *first.Role != "VP Operations" {
		t.Errorf("expected role kept, got %v", first.Role)
	}
	if first.Phone == nil || *first.Phone != "+12125550184" {
		t.Errorf("expected E.164 phone, got %v", first.Phone)
	}

	second := people[1]
	if second.Email != nil {
		t.Errorf("expected blank email dropped, got %v", second.Email)
	}
	if second.Phone != nil {
		t.Errorf("expected no phone, got %v", second.Phone)
	}
}

func TestSanitizeUserInputStripsControlCharsAndTruncates(t *testing.T) {
	input := "line one\x00\x08\nline two\ttabbed"
	got := sanitizeUserInput(input, 1000)
	if strings.ContainsAny(got, "\x00\x08") {
		t.Errorf("control characters not stripped: %q", got)
	}
	if !strings.Contains(got, "\n") || !strings.Contains(got, "\t") {
		t.Errorf("newline or tab should survive: %q", got)
	}

	long := strings.Repeat("a", 50)
	truncated := sanitizeUserInput(long, 10)
	if !strings.HasSuffix(truncated, "... [truncated]") {
		t.Errorf("expected truncation marker, got %q", truncated)
	}
	if !strings.HasPrefix(truncated, strings.Repeat("a", 10)) {
		t.Errorf("expected first 10 chars kept, got %q", truncated)
	}
}
