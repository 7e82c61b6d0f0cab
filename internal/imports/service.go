// Package imports runs CSV opportunity imports. An uploaded file becomes a
// durable job row, a queue task replays it into opportunities and note
// meetings, and the requester is notified with the row accounting once the
// job lands.
package imports

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/google/uuid"

	"dealdesk_backend/internal/events"
	"dealdesk_backend/internal/opportunities/domain"
	"dealdesk_backend/internal/opportunities/management"
	"dealdesk_backend/internal/opportunities/meetings"
	opprepo "dealdesk_backend/internal/opportunities/repository"
	"dealdesk_backend/internal/scheduler"
	"dealdesk_backend/platform/apperr"
	"dealdesk_backend/platform/logger"
)

// JobStore is the import job persistence this service uses.
type JobStore interface {
	Insert(ctx context.Context, params InsertJobParams) (ImportJob, error)
	GetByID(ctx context.Context, id uuid.UUID) (ImportJob, error)
	Claim(ctx context.Context, id uuid.UUID) (*ClaimedJob, error)
	Complete(ctx context.Context, id uuid.UUID, counts Counts) error
	Fail(ctx context.Context, id uuid.UUID, message string) error
	Release(ctx context.Context, id uuid.UUID) error
	ListByOrganization(ctx context.Context, organizationID uuid.UUID, limit int) ([]ImportJob, error)
}

var _ JobStore = (*Repository)(nil)

// OpportunityCreator is the slice of the management service imports use.
type OpportunityCreator interface {
	Create(ctx context.Context, params management.CreateParams) (management.View, error)
}

// NoteIngestor turns the note column of an imported row into a note meeting.
// Satisfied by the meetings service.
type NoteIngestor interface {
	IngestTranscript(ctx context.Context, params meetings.IngestParams) (opprepo.MeetingRecord, error)
}

// Service owns the import job lifecycle: synchronous CSV validation at
// submit, asynchronous row replay in the worker.
type Service struct {
	repo          JobStore
	opportunities OpportunityCreator
	notes         NoteIngestor
	queue         scheduler.ImportEnqueuer
	bus           events.Bus
	log           *logger.Logger
}

func NewService(repo JobStore, opportunities OpportunityCreator, notes NoteIngestor, queue scheduler.ImportEnqueuer, bus events.Bus, log *logger.Logger) *Service {
	return &Service{
		repo:          repo,
		opportunities: opportunities,
		notes:         notes,
		queue:         queue,
		bus:           bus,
		log:           log,
	}
}

// SubmitParams carries one uploaded CSV into the job queue.
type SubmitParams struct {
	OrganizationID uuid.UUID
	RequestedBy    uuid.UUID
	FileName       string
	CSV            io.Reader
}

// Submit validates the CSV structure, stores the job and enqueues processing.
// The file is parsed once here so a structurally broken upload is rejected
// synchronously; the worker parses again and is the only place rows take
// effect.
func (s *Service) Submit(ctx context.Context, params SubmitParams) (ImportJob, error) {
	if params.OrganizationID == uuid.Nil {
		return ImportJob{}, apperr.Validation("organization id is required")
	}
	if params.RequestedBy == uuid.Nil {
		return ImportJob{}, apperr.Validation("requesting user id is required")
	}

	data, err := io.ReadAll(params.CSV)
	if err != nil {
		return ImportJob{}, fmt.Errorf("read csv upload: %w", err)
	}

	rows, rowErrs, err := ParseCSV(bytes.NewReader(data))
	if err != nil {
		return ImportJob{}, apperr.Validation(err.Error())
	}
	if len(rows) == 0 && len(rowErrs) == 0 {
		return ImportJob{}, apperr.Validation("csv contains no data rows")
	}

	fileName := strings.TrimSpace(params.FileName)
	if fileName == "" {
		fileName = "import.csv"
	}

	job, err := s.repo.Insert(ctx, InsertJobParams{
		OrganizationID: params.OrganizationID,
		RequestedBy:    params.RequestedBy,
		FileName:       fileName,
		CSVData:        string(data),
	})
	if err != nil {
		return ImportJob{}, fmt.Errorf("create import job: %w", err)
	}

	if err := s.queue.EnqueueOpportunityImport(ctx, scheduler.OpportunityImportPayload{
		ImportJobID:    job.ID.String(),
		OrganizationID: job.OrganizationID.String(),
	}); err != nil {
		// The caller sees this error directly, no failure event needed.
		s.fail(ctx, job.ID, "failed to queue import task")
		return ImportJob{}, fmt.Errorf("enqueue import task: %w", err)
	}

	s.log.Info("import job submitted",
		"importJobId", job.ID,
		"organizationId", job.OrganizationID,
		"fileName", job.FileName,
		"rows", len(rows),
		"rejectedRows", len(rowErrs))
	return job, nil
}

// GetJob returns one import job scoped to the requesting organization.
func (s *Service) GetJob(ctx context.Context, id, organizationID uuid.UUID) (ImportJob, error) {
	job, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return ImportJob{}, err
	}
	if job.OrganizationID != organizationID {
		return ImportJob{}, ErrImportJobNotFound
	}
	return job, nil
}

// ListJobs returns an organization's import jobs, newest first.
func (s *Service) ListJobs(ctx context.Context, organizationID uuid.UUID, limit int) ([]ImportJob, error) {
	if limit < 1 || limit > 100 {
		limit = 25
	}
	return s.repo.ListByOrganization(ctx, organizationID, limit)
}

// ProcessImportJob replays a claimed CSV into opportunities and note
// meetings. Row-level problems are counted as skips and never abort the job.
// An infrastructure failure before any row has landed releases the claim for
// the next delivery; once rows have landed the job is marked failed instead,
// because a retry would import the same rows again.
func (s *Service) ProcessImportJob(ctx context.Context, importJobID uuid.UUID, finalAttempt bool) error {
	claimed, err := s.repo.Claim(ctx, importJobID)
	if err != nil {
		return fmt.Errorf("claim import job %s: %w", importJobID, err)
	}
	if claimed == nil {
		job, err := s.repo.GetByID(ctx, importJobID)
		if err == ErrImportJobNotFound {
			s.log.Warn("import task for unknown job", "importJobId", importJobID)
			return nil
		}
		if err != nil {
			return err
		}
		switch job.Status {
		case StatusRunning, StatusCompleted, StatusFailed:
			s.log.Info("skipping redelivered import task", "importJobId", importJobID, "status", job.Status)
			return nil
		default:
			return fmt.Errorf("import job %s cannot be claimed from status %s", importJobID, job.Status)
		}
	}

	rows, rowErrs, err := ParseCSV(strings.NewReader(claimed.CSVData))
	if err != nil {
		message := "csv parse failed: " + err.Error()
		s.fail(ctx, claimed.ID, message)
		s.publishFailed(ctx, claimed.ImportJob, message)
		return nil
	}

	skipped := len(rowErrs)
	for _, rowErr := range rowErrs {
		s.log.Warn("import row rejected", "importJobId", claimed.ID, "line", rowErr.Line, "reason", rowErr.Message)
	}

	var opportunitiesCreated, meetingsCreated int
	for _, row := range rows {
		if err := ctx.Err(); err != nil {
			return s.abort(ctx, claimed.ImportJob, opportunitiesCreated, err, finalAttempt)
		}

		view, err := s.opportunities.Create(ctx, management.CreateParams{
			OrganizationID: claimed.OrganizationID,
			AccountName:    row.AccountName,
			ContactName:    row.ContactName,
			ContactEmail:   row.ContactEmail,
			ContactPhone:   row.ContactPhone,
			Stage:          row.Stage,
			AmountCents:    row.AmountCents,
			CreatedBy:      &claimed.RequestedBy,
		})
		if err != nil {
			if apperr.Is(err, apperr.KindValidation) {
				skipped++
				s.log.Warn("import row rejected", "importJobId", claimed.ID, "line", row.Line, "error", err)
				continue
			}
			return s.abort(ctx, claimed.ImportJob, opportunitiesCreated, err, finalAttempt)
		}
		opportunitiesCreated++

		if row.Note == nil {
			continue
		}
		if _, err := s.notes.IngestTranscript(ctx, meetings.IngestParams{
			OpportunityID:  view.ID,
			OrganizationID: claimed.OrganizationID,
			Kind:           string(domain.MeetingKindNote),
			Source:         domain.MeetingSourceImport,
			OccurredAt:     row.NoteDate,
			TranscriptText: *row.Note,
		}); err != nil {
			// The opportunity stays; a rejected note is logged, not fatal.
			s.log.Warn("import note rejected", "importJobId", claimed.ID, "line", row.Line, "error", err)
			continue
		}
		meetingsCreated++
	}

	counts := Counts{
		OpportunitiesCreated: opportunitiesCreated,
		MeetingsCreated:      meetingsCreated,
		RowsSkipped:          skipped,
	}
	if err := s.repo.Complete(ctx, claimed.ID, counts); err != nil {
		// The rows are in. Surfacing the error leaves the job visibly stuck in
		// running rather than re-importing every row on a retry.
		return fmt.Errorf("complete import job %s: %w", claimed.ID, err)
	}

	if s.bus != nil {
		s.bus.Publish(ctx, events.OpportunityImportCompleted{
			BaseEvent:            events.NewBaseEvent(),
			ImportJobID:          claimed.ID,
			OrganizationID:       claimed.OrganizationID,
			RequestedBy:          claimed.RequestedBy,
			OpportunitiesCreated: opportunitiesCreated,
			MeetingsCreated:      meetingsCreated,
			RowsSkipped:          skipped,
		})
	}

	s.log.Info("import job completed",
		"importJobId", claimed.ID,
		"opportunitiesCreated", opportunitiesCreated,
		"meetingsCreated", meetingsCreated,
		"rowsSkipped", skipped)
	return nil
}

func (s *Service) abort(ctx context.Context, job ImportJob, created int, cause error, finalAttempt bool) error {
	if created == 0 && !finalAttempt {
		if relErr := s.repo.Release(ctx, job.ID); relErr != nil {
			return fmt.Errorf("release import job %s after %v: %w", job.ID, cause, relErr)
		}
		return cause
	}

	message := fmt.Sprintf("import aborted after %d rows: %v", created, cause)
	s.fail(ctx, job.ID, message)
	s.publishFailed(ctx, job, message)
	return cause
}

func (s *Service) fail(ctx context.Context, jobID uuid.UUID, message string) {
	if err := s.repo.Fail(ctx, jobID, message); err != nil {
		s.log.Error("failed to mark import job failed", "importJobId", jobID, "error", err)
		return
	}
	s.log.Warn("import job failed", "importJobId", jobID, "reason", message)
}

func (s *Service) publishFailed(ctx context.Context, job ImportJob, message string) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(ctx, events.OpportunityImportFailed{
		BaseEvent:      events.NewBaseEvent(),
		ImportJobID:    job.ID,
		OrganizationID: job.OrganizationID,
		RequestedBy:    job.RequestedBy,
		ErrorMessage:   message,
	})
}
