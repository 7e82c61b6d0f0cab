package imports

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"time"

	"dealdesk_backend/internal/opportunities/domain"
)

// Row is one accepted CSV line mapped to import fields. Line is the 1-based
// position in the file, used for operator-facing warnings.
type Row struct {
	Line         int
	AccountName  string
	ContactName  *string
	ContactEmail *string
	ContactPhone *string
	Stage        string
	AmountCents  *int64
	Note         *string
	NoteDate     *time.Time
}

// RowError describes one rejected CSV line.
type RowError struct {
	Line    int
	Message string
}

// headerAliases maps normalized header cells to canonical column names.
// Unknown columns are ignored so exports from other tools import cleanly.
var headerAliases = map[string]string{
	"account_name":  "account_name",
	"account":       "account_name",
	"company":       "account_name",
	"contact_name":  "contact_name",
	"contact":       "contact_name",
	"contact_email": "contact_email",
	"email":         "contact_email",
	"contact_phone": "contact_phone",
	"phone":         "contact_phone",
	"stage":         "stage",
	"amount":        "amount",
	"note":          "note",
	"notes":         "note",
	"note_date":     "note_date",
}

var stageByAlias = map[string]string{
	"prospecting": domain.StageProspecting,
	"discovery":   domain.StageDiscovery,
	"proposal":    domain.StageProposal,
	"negotiation": domain.StageNegotiation,
	"closed_won":  domain.StageClosedWon,
	"closed_lost": domain.StageClosedLost,
}

// ParseCSV reads an opportunity CSV. Structural problems (no header, no
// account name column, broken quoting) fail the whole file; everything
// row-level comes back as RowErrors alongside the accepted rows.
func ParseCSV(r io.Reader) ([]Row, []RowError, error) {
	rdr := csv.NewReader(r)
	rdr.TrimLeadingSpace = true

	header, err := rdr.Read()
	if err == io.EOF {
		return nil, nil, fmt.Errorf("csv file is empty")
	}
	if err != nil {
		return nil, nil, fmt.Errorf("read csv header: %w", err)
	}

	cols := make(map[string]int)
	for i, cell := range header {
		if canonical, ok := headerAliases[normalizeKey(cell)]; ok {
			if _, dup := cols[canonical]; !dup {
				cols[canonical] = i
			}
		}
	}
	if _, ok := cols["account_name"]; !ok {
		return nil, nil, fmt.Errorf("csv has no account name column (accepted headers: account_name, account, company)")
	}

	var rows []Row
	var rowErrs []RowError
	for {
		record, err := rdr.Read()
		if err == io.EOF {
			break
		}
		var parseErr *csv.ParseError
		if errors.As(err, &parseErr) && errors.Is(parseErr.Err, csv.ErrFieldCount) {
			rowErrs = append(rowErrs, RowError{Line: parseErr.Line, Message: "wrong number of fields"})
			continue
		}
		if err != nil {
			return nil, nil, fmt.Errorf("read csv: %w", err)
		}

		if isBlankRecord(record) {
			continue
		}

		line, _ := rdr.FieldPos(0)
		row, rowErr := buildRow(line, record, cols)
		if rowErr != nil {
			rowErrs = append(rowErrs, *rowErr)
			continue
		}
		rows = append(rows, row)
	}

	return rows, rowErrs, nil
}

func buildRow(line int, record []string, cols map[string]int) (Row, *RowError) {
	get := func(name string) string {
		i, ok := cols[name]
		if !ok || i >= len(record) {
			return ""
		}
		return strings.TrimSpace(record[i])
	}

	row := Row{Line: line}

	row.AccountName = get("account_name")
	if row.AccountName == "" {
		return Row{}, &RowError{Line: line, Message: "account name is required"}
	}

	row.ContactName = optional(get("contact_name"))
	row.ContactEmail = optional(get("contact_email"))
	row.ContactPhone = optional(get("contact_phone"))

	if stage := get("stage"); stage != "" {
		canonical, ok := stageByAlias[normalizeKey(stage)]
		if !ok {
			return Row{}, &RowError{Line: line, Message: fmt.Sprintf("unknown stage %q", stage)}
		}
		row.Stage = canonical
	}

	if amount := get("amount"); amount != "" {
		cents, err := parseAmountCents(amount)
		if err != nil {
			return Row{}, &RowError{Line: line, Message: fmt.Sprintf("invalid amount %q", amount)}
		}
		row.AmountCents = &cents
	}

	row.Note = optional(get("note"))

	if value := get("note_date"); value != "" {
		when, err := parseDate(value)
		if err != nil {
			return Row{}, &RowError{Line: line, Message: fmt.Sprintf("invalid note date %q (use YYYY-MM-DD)", value)}
		}
		row.NoteDate = &when
	}

	return row, nil
}

// normalizeKey lowercases a header or stage cell and folds separators, so
// "Account Name", "account-name" and an Excel BOM-prefixed first column all
// resolve.
func normalizeKey(s string) string {
	s = strings.TrimPrefix(s, "\uFEFF")
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.ReplaceAll(s, " ", "_")
	s = strings.ReplaceAll(s, "-", "_")
	return s
}

// parseAmountCents reads a major-unit amount ("12500" or "12,500.50") into
// cents.
func parseAmountCents(s string) (int64, error) {
	cleaned := strings.ReplaceAll(s, ",", "")
	f, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return 0, err
	}
	if f < 0 {
		return 0, fmt.Errorf("amount must not be negative")
	}
	return int64(math.Round(f * 100)), nil
}

func parseDate(s string) (time.Time, error) {
	if t, err := time.Parse("2006-01-02", s); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}

func isBlankRecord(record []string) bool {
	for _, cell := range record {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
