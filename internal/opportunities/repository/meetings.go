package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"dealdesk_backend/internal/opportunities/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

type MeetingRecord struct {
	ID             uuid.UUID
	OpportunityID  uuid.UUID
	OrganizationID uuid.UUID
	Kind           string
	Source         string
	Title          *string
	OccurredAt     time.Time
	TranscriptText string

	ParseStatus string
	ParseError  *string

	Summary    *string
	PainPoints []string
	Goals      []string
	NextSteps  []string
	Metrics    []string
	People     []domain.Person
	Risk       *domain.RiskAssessment
	ParsedAt   *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

const meetingColumns = `
	id, opportunity_id, organization_id, kind, source, title, occurred_at, transcript_text,
	parse_status, parse_error,
	summary, pain_points, goals, next_steps, metrics, people, risk, parsed_at,
	created_at, updated_at`

type meetingRowScanner interface {
	Scan(dest ...any) error
}

func scanMeeting(s meetingRowScanner) (MeetingRecord, error) {
	var m MeetingRecord
	var painJSON, goalsJSON, stepsJSON, metricsJSON, peopleJSON, riskJSON []byte

	err := s.Scan(
		&m.ID, &m.OpportunityID, &m.OrganizationID, &m.Kind, &m.Source, &m.Title, &m.OccurredAt, &m.TranscriptText,
		&m.ParseStatus, &m.ParseError,
		&m.Summary, &painJSON, &goalsJSON, &stepsJSON, &metricsJSON, &peopleJSON, &riskJSON, &m.ParsedAt,
		&m.CreatedAt, &m.UpdatedAt,
	)
	if err != nil {
		return MeetingRecord{}, err
	}

	_ = json.Unmarshal(painJSON, &m.PainPoints)
	_ = json.Unmarshal(goalsJSON, &m.Goals)
	_ = json.Unmarshal(stepsJSON, &m.NextSteps)
	_ = json.Unmarshal(metricsJSON, &m.Metrics)
	_ = json.Unmarshal(peopleJSON, &m.People)
	if len(riskJSON) > 0 {
		var risk domain.RiskAssessment
		if err := json.Unmarshal(riskJSON, &risk); err == nil {
			m.Risk = &risk
		}
	}

	return m, nil
}

type CreateMeetingParams struct {
	OpportunityID  uuid.UUID
	OrganizationID uuid.UUID
	Kind           string
	Source         string
	Title          *string
	OccurredAt     time.Time
	TranscriptText string
}

// CreateMeeting inserts a meeting record in pending parse state. Parsed
// fields start out null and stay null until a parse completes in full.
func (r *Repository) CreateMeeting(ctx context.Context, params CreateMeetingParams) (MeetingRecord, error) {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO meeting_records (opportunity_id, organization_id, kind, source, title, occurred_at, transcript_text, parse_status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING`+meetingColumns,
		params.OpportunityID, params.OrganizationID, params.Kind, params.Source, params.Title, params.OccurredAt, params.TranscriptText, string(domain.ParseStatusPending),
	)
	return scanMeeting(row)
}

func (r *Repository) GetMeeting(ctx context.Context, id uuid.UUID, organizationID uuid.UUID) (MeetingRecord, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT`+meetingColumns+`
		FROM meeting_records
		WHERE id = $1 AND organization_id = $2
	`, id, organizationID)

	m, err := scanMeeting(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return MeetingRecord{}, ErrMeetingNotFound
	}
	return m, err
}

// GetMeetingByID loads a meeting without organization scoping, for pipeline
// processors acting on task payload ids.
func (r *Repository) GetMeetingByID(ctx context.Context, id uuid.UUID) (MeetingRecord, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT`+meetingColumns+`
		FROM meeting_records
		WHERE id = $1
	`, id)

	m, err := scanMeeting(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return MeetingRecord{}, ErrMeetingNotFound
	}
	return m, err
}

func (r *Repository) ListMeetingsByOpportunity(ctx context.Context, opportunityID uuid.UUID, organizationID uuid.UUID) ([]MeetingRecord, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT`+meetingColumns+`
		FROM meeting_records
		WHERE opportunity_id = $1 AND organization_id = $2
		ORDER BY occurred_at DESC
	`, opportunityID, organizationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]MeetingRecord, 0)
	for rows.Next() {
		m, err := scanMeeting(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, m)
	}
	return items, rows.Err()
}

// ListCompletedMeetings returns completed meetings in consolidation gather
// order: call transcripts before notes, each oldest first.
func (r *Repository) ListCompletedMeetings(ctx context.Context, opportunityID uuid.UUID) ([]MeetingRecord, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT`+meetingColumns+`
		FROM meeting_records
		WHERE opportunity_id = $1 AND parse_status = $2
		ORDER BY CASE kind WHEN $3 THEN 0 ELSE 1 END, occurred_at ASC
	`, opportunityID, string(domain.ParseStatusCompleted), string(domain.MeetingKindCallTranscript))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]MeetingRecord, 0)
	for rows.Next() {
		m, err := scanMeeting(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, m)
	}
	return items, rows.Err()
}

// ClaimMeetingForParsing transitions pending → parsing. Returns nil without
// error when the record is not claimable, which makes redelivered parse
// tasks no-ops.
func (r *Repository) ClaimMeetingForParsing(ctx context.Context, id uuid.UUID) (*MeetingRecord, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE meeting_records
		SET parse_status = $2, updated_at = NOW()
		WHERE id = $1 AND parse_status = $3
		RETURNING`+meetingColumns,
		id, string(domain.ParseStatusParsing), string(domain.ParseStatusPending),
	)

	m, err := scanMeeting(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

type CompleteParseParams struct {
	Summary    string
	PainPoints []string
	Goals      []string
	NextSteps  []string
	Metrics    []string
	People     []domain.Person
	ParsedAt   time.Time
}

// CompleteMeetingParse persists the whole parse result and moves the record
// to completed in a single statement, so a completed record can never carry
// partial fields.
func (r *Repository) CompleteMeetingParse(ctx context.Context, id uuid.UUID, params CompleteParseParams) error {
	painJSON, _ := json.Marshal(emptyIfNil(params.PainPoints))
	goalsJSON, _ := json.Marshal(emptyIfNil(params.Goals))
	stepsJSON, _ := json.Marshal(emptyIfNil(params.NextSteps))
	metricsJSON, _ := json.Marshal(emptyIfNil(params.Metrics))
	peopleJSON, _ := json.Marshal(emptyPeopleIfNil(params.People))

	tag, err := r.pool.Exec(ctx, `
		UPDATE meeting_records
		SET parse_status = $2, parse_error = NULL,
			summary = $3, pain_points = $4, goals = $5, next_steps = $6, metrics = $7, people = $8,
			parsed_at = $9, updated_at = NOW()
		WHERE id = $1 AND parse_status = $10
	`, id, string(domain.ParseStatusCompleted),
		params.Summary, painJSON, goalsJSON, stepsJSON, metricsJSON, peopleJSON,
		params.ParsedAt, string(domain.ParseStatusParsing))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("meeting %s is not in parsing state", id)
	}
	return nil
}

// FailMeetingParse marks the record failed with the retained error message
// and clears every parsed field.
func (r *Repository) FailMeetingParse(ctx context.Context, id uuid.UUID, message string) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE meeting_records
		SET parse_status = $2, parse_error = $3,
			summary = NULL, pain_points = NULL, goals = NULL, next_steps = NULL, metrics = NULL, people = NULL, risk = NULL,
			parsed_at = NULL, updated_at = NOW()
		WHERE id = $1 AND parse_status = $4
	`, id, string(domain.ParseStatusFailed), message, string(domain.ParseStatusParsing))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("meeting %s is not in parsing state", id)
	}
	return nil
}

// ReleaseMeetingClaim puts a parsing record back to pending so the next
// delivery attempt can claim it again.
func (r *Repository) ReleaseMeetingClaim(ctx context.Context, id uuid.UUID) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE meeting_records
		SET parse_status = $2, updated_at = NOW()
		WHERE id = $1 AND parse_status = $3
	`, id, string(domain.ParseStatusPending), string(domain.ParseStatusParsing))
	return err
}

// RetryMeetingParse resets a failed record to pending for the manual retry
// operation. Returns nil when the record is not in failed state.
func (r *Repository) RetryMeetingParse(ctx context.Context, id uuid.UUID, organizationID uuid.UUID) (*MeetingRecord, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE meeting_records
		SET parse_status = $3, parse_error = NULL, updated_at = NOW()
		WHERE id = $1 AND organization_id = $2 AND parse_status = $4
		RETURNING`+meetingColumns,
		id, organizationID, string(domain.ParseStatusPending), string(domain.ParseStatusFailed),
	)

	m, err := scanMeeting(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// UpdateMeetingRisk attaches a risk assessment to a completed meeting.
func (r *Repository) UpdateMeetingRisk(ctx context.Context, id uuid.UUID, risk *domain.RiskAssessment) error {
	riskJSON, err := json.Marshal(risk)
	if err != nil {
		return err
	}

	tag, err := r.pool.Exec(ctx, `
		UPDATE meeting_records
		SET risk = $2, updated_at = NOW()
		WHERE id = $1 AND parse_status = $3
	`, id, riskJSON, string(domain.ParseStatusCompleted))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("meeting %s is not completed", id)
	}
	return nil
}

func (r *Repository) DeleteMeeting(ctx context.Context, id uuid.UUID, organizationID uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `
		DELETE FROM meeting_records WHERE id = $1 AND organization_id = $2
	`, id, organizationID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrMeetingNotFound
	}
	return nil
}

func emptyIfNil(items []string) []string {
	if items == nil {
		return []string{}
	}
	return items
}

func emptyPeopleIfNil(people []domain.Person) []domain.Person {
	if people == nil {
		return []domain.Person{}
	}
	return people
}
