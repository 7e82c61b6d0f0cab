// Package mailin turns emailed notes into note meetings. A background poller
// reads a dropbox mailbox over IMAP; messages plus-addressed with an
// opportunity id (notes+<id>@...) or carrying an [opp:<id>] subject tag are
// ingested as note meetings on that opportunity.
package mailin

import (
	"regexp"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/net/html"
)

var subjectTagPattern = regexp.MustCompile(`(?i)\[opp:([0-9a-f-]{36})\]`)

// ResolveOpportunityID extracts the target opportunity from the recipient
// plus tags or the subject tag. Recipients win over the subject when both
// carry an id.
func ResolveOpportunityID(recipients []string, subject string) (uuid.UUID, bool) {
	for _, addr := range recipients {
		local, _, found := strings.Cut(addr, "@")
		if !found {
			continue
		}
		_, tag, found := strings.Cut(local, "+")
		if !found {
			continue
		}
		if id, err := uuid.Parse(tag); err == nil {
			return id, true
		}
	}

	if m := subjectTagPattern.FindStringSubmatch(subject); m != nil {
		if id, err := uuid.Parse(m[1]); err == nil {
			return id, true
		}
	}
	return uuid.Nil, false
}

// StripSubjectTag removes the [opp:<id>] marker so it does not end up in the
// meeting title.
func StripSubjectTag(subject string) string {
	return strings.TrimSpace(subjectTagPattern.ReplaceAllString(subject, ""))
}

// ExtractNoteText returns the message body as plain text, preferring the text
// part and falling back to stripped HTML.
func ExtractNoteText(textBody, htmlBody string) string {
	if text := strings.TrimSpace(textBody); text != "" {
		return text
	}
	return StripHTML(htmlBody)
}

var blockTags = map[string]bool{
	"p": true, "div": true, "br": true, "li": true, "tr": true,
	"h1": true, "h2": true, "h3": true, "h4": true, "blockquote": true,
}

// StripHTML flattens an HTML body to plain text. Block elements become line
// breaks; script and style content is dropped.
func StripHTML(src string) string {
	tz := html.NewTokenizer(strings.NewReader(src))
	var sb strings.Builder
	skipDepth := 0

	for {
		switch tz.Next() {
		case html.ErrorToken:
			return collapseBlankLines(sb.String())
		case html.StartTagToken, html.SelfClosingTagToken:
			name, _ := tz.TagName()
			tag := string(name)
			if tag == "script" || tag == "style" {
				skipDepth++
				continue
			}
			if blockTags[tag] {
				sb.WriteByte('\n')
			}
		case html.EndTagToken:
			name, _ := tz.TagName()
			tag := string(name)
			if tag == "script" || tag == "style" {
				if skipDepth > 0 {
					skipDepth--
				}
				continue
			}
			if blockTags[tag] {
				sb.WriteByte('\n')
			}
		case html.TextToken:
			if skipDepth == 0 {
				sb.Write(tz.Text())
			}
		}
	}
}

func collapseBlankLines(text string) string {
	lines := strings.Split(text, "\n")
	var out []string
	blank := true
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" {
			if !blank {
				out = append(out, "")
			}
			blank = true
			continue
		}
		out = append(out, line)
		blank = false
	}
	return strings.TrimSpace(strings.Join(out, "\n"))
}
