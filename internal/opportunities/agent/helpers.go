package agent

import (
	"fmt"
	"strings"
	"unicode"

	"dealdesk_backend/internal/opportunities/domain"
	"dealdesk_backend/platform/phone"
)

const (
	maxTranscriptLength = 30000
	maxSummaryLength    = 2000
	maxListItems        = 25
	maxItemLength       = 500
	maxPeopleEntries    = 20
	userDataBegin       = "<<<BEGIN_USER_DATA>>>"
	userDataEnd         = "<<<END_USER_DATA>>>"
)

// sanitizeUserInput removes control characters and truncates to max length
func sanitizeUserInput(s string, maxLen int) string {
	var sb strings.Builder
	for _, r := range s {
		if unicode.IsControl(r) && r != '\n' && r != '\t' {
			continue
		}
		sb.WriteRune(r)
	}
	result := sb.String()
	if len(result) > maxLen {
		result = result[:maxLen] + "... [truncated]"
	}
	return result
}

// wrapUserData wraps user-provided content with markers to isolate it from instructions
func wrapUserData(content string) string {
	return fmt.Sprintf("%s\n%s\n%s", userDataBegin, content, userDataEnd)
}

// cleanStringList trims entries, drops empties, and caps list and item sizes.
func cleanStringList(items []string) []string {
	cleaned := make([]string, 0, len(items))
	for _, item := range items {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		if len(item) > maxItemLength {
			item = item[:maxItemLength]
		}
		cleaned = append(cleaned, item)
		if len(cleaned) == maxListItems {
			break
		}
	}
	return cleaned
}

// PersonInput is a participant as submitted by the model. Empty strings mean
// the transcript did not mention that detail.
type PersonInput struct {
	Name    string `json:"name"`
	Role    string `json:"role,omitempty"`
	Company string `json:"company,omitempty"`
	Phone   string `json:"phone,omitempty"`
	Email   string `json:"email,omitempty"`
}

// cleanPeople converts submitted participants into domain people. Entries
// without a name are dropped, phones go through E.164 normalization.
func cleanPeople(inputs []PersonInput) []domain.Person {
	people := make([]domain.Person, 0, len(inputs))
	for _, in := range inputs {
		name := strings.TrimSpace(in.Name)
		if name == "" {
			continue
		}
		p := domain.Person{
			Name:    name,
			Role:    optionalString(in.Role),
			Company: optionalString(in.Company),
			Email:   optionalString(in.Email),
		}
		if raw := strings.TrimSpace(in.Phone); raw != "" {
			normalized := phone.NormalizeE164(raw)
			p.Phone = &normalized
		}
		people = append(people, p)
		if len(people) == maxPeopleEntries {
			break
		}
	}
	return people
}

func optionalString(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}

func getValue(s *string) string {
	if s == nil {
		return "Not provided"
	}
	return *s
}

// formatInsightList renders a list for inclusion in a prompt, one bullet per
// item, with a placeholder when empty.
func formatInsightList(items []string) string {
	if len(items) == 0 {
		return "- None recorded\n"
	}
	var sb strings.Builder
	for _, item := range items {
		sb.WriteString("- " + sanitizeUserInput(item, maxItemLength) + "\n")
	}
	return sb.String()
}
