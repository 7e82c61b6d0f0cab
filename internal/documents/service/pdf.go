package service

import (
	"bytes"
	"context"
	"embed"
	"fmt"
	"html/template"
	"regexp"
	"strings"

	"github.com/google/uuid"

	"dealdesk_backend/internal/documents/repository"
	"dealdesk_backend/internal/pdf"
	"dealdesk_backend/platform/apperr"
)

// PDFRenderer converts document HTML into PDF bytes. Implemented by the
// Gotenberg client; nil when no converter is configured.
type PDFRenderer interface {
	ConvertHTML(ctx context.Context, indexHTML []byte, opts pdf.ConvertOpts) ([]byte, error)
}

// PDFExport is a rendered PDF and the filename to serve it under.
type PDFExport struct {
	Filename string
	Content  []byte
}

//go:embed templates/document_pdf.gohtml
var documentPDFFS embed.FS

var documentPDFTemplate = template.Must(template.ParseFS(documentPDFFS, "templates/document_pdf.gohtml"))

// The footer is repeated on every page; Gotenberg fills the pageNumber and
// totalPages spans.
const documentFooterHTML = `<!doctype html>
<html>
<head>
<style>
  body { font-family: Helvetica, Arial, sans-serif; font-size: 8pt; color: #616e7c; margin: 0 24px; }
  .row { display: flex; justify-content: space-between; width: 100%%; }
</style>
</head>
<body>
<div class="row"><span>%s</span><span><span class="pageNumber"></span> / <span class="totalPages"></span></span></div>
</body>
</html>`

// ExportPDF renders a completed document as a PDF download.
func (s *Service) ExportPDF(ctx context.Context, documentID, organizationID uuid.UUID) (*PDFExport, error) {
	doc, err := s.Get(ctx, documentID, organizationID)
	if err != nil {
		return nil, err
	}
	return s.exportPDF(ctx, doc)
}

// ExportSharedPDF renders the document behind a public share token as a PDF
// download.
func (s *Service) ExportSharedPDF(ctx context.Context, token string) (*PDFExport, error) {
	doc, err := s.ResolveShareToken(ctx, token)
	if err != nil {
		return nil, err
	}
	return s.exportPDF(ctx, doc)
}

func (s *Service) exportPDF(ctx context.Context, doc repository.Document) (*PDFExport, error) {
	if s.pdf == nil {
		return nil, apperr.Unavailable("pdf export is not configured")
	}
	if doc.GenerationStatus != repository.StatusCompleted || doc.Title == nil || doc.ContentMarkdown == nil {
		return nil, apperr.Conflict("only completed documents can be exported")
	}

	page, err := renderDocumentHTML(doc)
	if err != nil {
		return nil, fmt.Errorf("render document html: %w", err)
	}

	opts := pdf.DocumentPageOpts()
	opts.FooterHTML = []byte(fmt.Sprintf(documentFooterHTML, template.HTMLEscapeString(*doc.Title)))

	content, err := s.pdf.ConvertHTML(ctx, page, opts)
	if err != nil {
		return nil, fmt.Errorf("convert document to pdf: %w", err)
	}

	return &PDFExport{
		Filename: documentFilename(doc),
		Content:  content,
	}, nil
}

func renderDocumentHTML(doc repository.Document) ([]byte, error) {
	generatedAt := ""
	if doc.GeneratedAt != nil {
		generatedAt = doc.GeneratedAt.Format("January 2, 2006")
	}

	data := struct {
		Title       string
		Version     int
		GeneratedAt string
		Body        template.HTML
	}{
		Title:       *doc.Title,
		Version:     doc.Version,
		GeneratedAt: generatedAt,
		Body:        markdownBody(*doc.ContentMarkdown),
	}

	var buf bytes.Buffer
	if err := documentPDFTemplate.ExecuteTemplate(&buf, "document_pdf.gohtml", data); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

var boldPattern = regexp.MustCompile(`\*\*([^*]+)\*\*`)

// inlineHTML escapes one line of text and renders the bold markers, the only
// inline markup the writer produces.
func inlineHTML(text string) string {
	escaped := template.HTMLEscapeString(text)
	return boldPattern.ReplaceAllString(escaped, "<strong>$1</strong>")
}

// markdownBody converts the writer's constrained Markdown (headings, dash
// bullets, paragraphs) into HTML for the PDF shell. The writer never emits
// nested structures, so a line level pass is enough.
func markdownBody(markdown string) template.HTML {
	var sb strings.Builder

	inList := false
	closeList := func() {
		if inList {
			sb.WriteString("</ul>\n")
			inList = false
		}
	}

	var para []string
	flushPara := func() {
		if len(para) == 0 {
			return
		}
		sb.WriteString("<p>" + inlineHTML(strings.Join(para, " ")) + "</p>\n")
		para = nil
	}

	for _, line := range strings.Split(markdown, "\n") {
		trimmed := strings.TrimSpace(line)
		switch {
		case trimmed == "":
			flushPara()
			closeList()
		case strings.HasPrefix(trimmed, "### "):
			flushPara()
			closeList()
			sb.WriteString("<h3>" + template.HTMLEscapeString(strings.TrimPrefix(trimmed, "### ")) + "</h3>\n")
		case strings.HasPrefix(trimmed, "## "):
			flushPara()
			closeList()
			sb.WriteString("<h2>" + template.HTMLEscapeString(strings.TrimPrefix(trimmed, "## ")) + "</h2>\n")
		case strings.HasPrefix(trimmed, "# "):
			// The shell already shows the title as the page heading, so a
			// stray top level heading renders as a section.
			flushPara()
			closeList()
			sb.WriteString("<h2>" + template.HTMLEscapeString(strings.TrimPrefix(trimmed, "# ")) + "</h2>\n")
		case strings.HasPrefix(trimmed, "- ") || strings.HasPrefix(trimmed, "* "):
			flushPara()
			if !inList {
				sb.WriteString("<ul>\n")
				inList = true
			}
			sb.WriteString("<li>" + inlineHTML(strings.TrimSpace(trimmed[2:])) + "</li>\n")
		default:
			closeList()
			para = append(para, trimmed)
		}
	}
	flushPara()
	closeList()

	return template.HTML(sb.String())
}

var filenameSanitizer = regexp.MustCompile(`[^a-z0-9]+`)

// documentFilename builds a download name like "pre-call-brief-acme-v2.pdf".
func documentFilename(doc repository.Document) string {
	slug := ""
	if doc.Title != nil {
		slug = strings.Trim(filenameSanitizer.ReplaceAllString(strings.ToLower(*doc.Title), "-"), "-")
	}
	if slug == "" {
		slug = "document"
	}
	return fmt.Sprintf("%s-v%d.pdf", slug, doc.Version)
}
