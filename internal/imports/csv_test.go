package imports

import (
	"strings"
	"testing"
	"time"

	"dealdesk_backend/internal/opportunities/domain"
)

func TestParseCSVMapsAliasedColumns(t *testing.T) {
	csv := "Company,Contact,Email,Phone,Stage,Amount,Notes,Note Date\n" +
		"Acme Corp,Dana Voss,dana@acme.example,+31612345678,discovery,\"12,500.50\",Kickoff call went well and budget was confirmed for Q3.,2026-03-14\n"

	rows, rowErrs, err := ParseCSV(strings.NewReader(csv))
	if err != nil {
		t.Fatalf("ParseCSV failed: %v", err)
	}
	if len(rowErrs) != 0 {
		t.Fatalf("expected no row errors, got %+v", rowErrs)
	}
	if len(rows) != 1 {
		t.Fatalf("expected 1 row, got %d", len(rows))
	}

	row := rows[0]
	if row.Line != 2 {
		t.Errorf("expected line 2, got %d", row.Line)
	}
	if row.AccountName != "Acme Corp" {
		t.Errorf("unexpected account name %q", row.AccountName)
	}
	if row.ContactName == nil || *row.ContactName != "Dana Voss" {
		t.Errorf("unexpected contact name %v", row.ContactName)
	}
	if row.ContactEmail == nil || *row.ContactEmail != "dana@acme.example" {
		t.Errorf("unexpected contact email %v", row.ContactEmail)
	}
	if row.Stage != domain.StageDiscovery {
		t.Errorf("expected stage %q, got %q", domain.StageDiscovery, row.Stage)
	}
	if row.AmountCents == nil || *row.AmountCents != 1250050 {
		t.Errorf("unexpected amount %v", row.AmountCents)
	}
	if row.Note == nil || !strings.Contains(*row.Note, "budget was confirmed") {
		t.Errorf("unexpected note %v", row.Note)
	}
	want := time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC)
	if row.NoteDate == nil || !row.NoteDate.Equal(want) {
		t.Errorf("unexpected note date %v", row.NoteDate)
	}
}

func TestParseCSVCollectsRowErrors(t *testing.T) {
	csv := "account_name,stage\n" +
		",Discovery\n" +
		"Beta BV,launch_phase\n" +
		"Gamma GmbH,closed won\n"

	rows, rowErrs, err := ParseCSV(strings.NewReader(csv))
	if err != nil {
		t.Fatalf("ParseCSV failed: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("expected 1 accepted row, got %d", len(rows))
	}
	if rows[0].AccountName != "Gamma GmbH" || rows[0].Stage != domain.StageClosedWon {
		t.Errorf("unexpected accepted row %+v", rows[0])
	}
	if len(rowErrs) != 2 {
		t.Fatalf("expected 2 row errors, got %+v", rowErrs)
	}
	if rowErrs[0].Line != 2 || !strings.Contains(rowErrs[0].Message, "account name") {
		t.Errorf("unexpected first row error %+v", rowErrs[0])
	}
	if rowErrs[1].Line != 3 || !strings.Contains(rowErrs[1].Message, "unknown stage") {
		t.Errorf("unexpected second row error %+v", rowErrs[1])
	}
}

func TestParseCSVWrongFieldCountRejectsRowOnly(t *testing.T) {
	csv := "account_name,stage\n" +
		"Acme Corp,Discovery,extra\n" +
		"Beta BV,Proposal\n"

	rows, rowErrs, err := ParseCSV(strings.NewReader(csv))
	if err != nil {
		t.Fatalf("ParseCSV failed: %v", err)
	}
	if len(rows) != 1 || rows[0].AccountName != "Beta BV" {
		t.Fatalf("expected the well-formed row to survive, got %+v", rows)
	}
	if len(rowErrs) != 1 || rowErrs[0].Line != 2 {
		t.Fatalf("expected a line 2 field count error, got %+v", rowErrs)
	}
}

func TestParseCSVRequiresAccountColumn(t *testing.T) {
	csv := "name,email\nAcme Corp,dana@acme.example\n"

	if _, _, err := ParseCSV(strings.NewReader(csv)); err == nil {
		t.Fatal("expected error for missing account column")
	}
}

func TestParseCSVEmptyFile(t *testing.T) {
	if _, _, err := ParseCSV(strings.NewReader("")); err == nil {
		t.Fatal("expected error for empty file")
	}
}

func TestParseCSVSkipsBlankRecordsAndBOM(t *testing.T) {
	csv := "﻿account_name\n" +
		"Acme Corp\n" +
		"\n" +
		"  \n" +
		"Beta BV\n"

	rows, rowErrs, err := ParseCSV(strings.NewReader(csv))
	if err != nil {
		t.Fatalf("ParseCSV failed: %v", err)
	}
	if len(rowErrs) != 0 {
		t.Fatalf("expected no row errors, got %+v", rowErrs)
	}
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(rows))
	}
}

func TestParseAmountCents(t *testing.T) {
	cases := []struct {
		in      string
		want    int64
		wantErr bool
	}{
		{in: "12500", want: 1250000},
		{in: "12,500.50", want: 1250050},
		{in: "0", want: 0},
		{in: "99.999", want: 10000},
		{in: "-5", wantErr: true},
		{in: "twelve", wantErr: true},
	}

	for _, tc := range cases {
		got, err := parseAmountCents(tc.in)
		if tc.wantErr {
			if err == nil {
				t.Errorf("parseAmountCents(%q): expected error", tc.in)
			}
			continue
		}
		if err != nil {
			t.Errorf("parseAmountCents(%q) failed: %v", tc.in, err)
			continue
		}
		if got != tc.want {
			t.Errorf("parseAmountCents(%q) = %d, want %d", tc.in, got, tc.want)
		}
	}
}
