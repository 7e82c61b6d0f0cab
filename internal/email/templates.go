package email

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
)

//go:embed templates/*.html
var templateFS embed.FS

type baseEmailData struct {
	Title    string
	Heading  string
	CTALabel string
	CTAURL   string
}

type notificationEmailData struct {
	baseEmailData
	BodyLines []string
}

// BuildConsolidationReadyEmail renders the mail sent when cross-meeting
// insights have been consolidated onto an opportunity.
func BuildConsolidationReadyEmail(accountName, opportunityURL string, meetingsUsed int) (string, string, error) {
	subject := subjectConsolidationReady
	if accountName != "" {
		subject = fmt.Sprintf(subjectConsolidationReadyFmt, accountName)
	}

	lines := []string{
		fmt.Sprintf("Insights from %d parsed meetings were merged into the opportunity profile.", meetingsUsed),
		"Pain points, goals, next steps and metrics are now up to date.",
	}

	body, err := renderEmailTemplate("notification.html", notificationEmailData{
		baseEmailData: baseEmailData{
			Title:    subject,
			Heading:  subject,
			CTALabel: "Open opportunity",
			CTAURL:   opportunityURL,
		},
		BodyLines: lines,
	})
	if err != nil {
		return "", "", err
	}
	return subject, body, nil
}

// BuildResearchReadyEmail renders the mail sent when an account research
// brief has been generated.
func BuildResearchReadyEmail(accountName, opportunityURL string) (string, string, error) {
	subject := subjectResearchReady
	if accountName != "" {
		subject = fmt.Sprintf(subjectResearchReadyFmt, accountName)
	}

	body, err := renderEmailTemplate("notification.html", notificationEmailData{
		baseEmailData: baseEmailData{
			Title:    subject,
			Heading:  subject,
			CTALabel: "Read the research brief",
			CTAURL:   opportunityURL,
		},
		BodyLines: []string{"The research brief is ready to review on the opportunity page."},
	})
	if err != nil {
		return "", "", err
	}
	return subject, body, nil
}

// BuildImportReadyEmail renders the mail sent when a CSV import job finishes.
func BuildImportReadyEmail(opportunitiesCreated, meetingsCreated, rowsSkipped int, importURL string) (string, string, error) {
	lines := []string{
		fmt.Sprintf("%d opportunities and %d meetings were created.", opportunitiesCreated, meetingsCreated),
	}
	if rowsSkipped > 0 {
		lines = append(lines, fmt.Sprintf("%d rows were skipped; the import report lists the reason per row.", rowsSkipped))
	}

	body, err := renderEmailTemplate("notification.html", notificationEmailData{
		baseEmailData: baseEmailData{
			Title:    subjectImportReady,
			Heading:  subjectImportReady,
			CTALabel: "View import report",
			CTAURL:   importURL,
		},
		BodyLines: lines,
	})
	if err != nil {
		return "", "", err
	}
	return subjectImportReady, body, nil
}

func renderEmailTemplate(name string, data any) (string, error) {
	templates := []string{"templates/base.html", "templates/" + name}
	tmpl, err := template.New("base.html").ParseFS(templateFS, templates...)
	if err != nil {
		return "", fmt.Errorf("parse email template %s: %w", name, err)
	}

	var buf bytes.Buffer
	if err := tmpl.ExecuteTemplate(&buf, "email", data); err != nil {
		return "", fmt.Errorf("execute email template %s: %w", name, err)
	}
	return buf.String(), nil
}
