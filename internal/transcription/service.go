package transcription

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"

	"dealdesk_backend/internal/opportunities/domain"
	"dealdesk_backend/internal/opportunities/meetings"
	"dealdesk_backend/internal/opportunities/repository"
	"dealdesk_backend/internal/scheduler"
	"dealdesk_backend/platform/apperr"
	"dealdesk_backend/platform/logger"
)

// RecordingStore is the repository slice this service uses.
type RecordingStore interface {
	Insert(ctx context.Context, params InsertRecordingParams) (Recording, error)
	GetByID(ctx context.Context, id uuid.UUID) (Recording, error)
	Claim(ctx context.Context, id uuid.UUID) (*Recording, error)
	Complete(ctx context.Context, id uuid.UUID, meetingID uuid.UUID) error
	Fail(ctx context.Context, id uuid.UUID, message string) error
	Release(ctx context.Context, id uuid.UUID) error
	ListByOpportunity(ctx context.Context, opportunityID uuid.UUID, organizationID uuid.UUID) ([]Recording, error)
}

var _ RecordingStore = (*Repository)(nil)

// ObjectStore is the slice of the storage service this package uses.
type ObjectStore interface {
	UploadFile(ctx context.Context, bucket, folder, fileName, contentType string, reader io.Reader, size int64) (string, error)
	DownloadFile(ctx context.Context, bucket, fileKey string) (io.ReadCloser, error)
}

// TranscriptIngestor creates a meeting record from transcript text.
// Implemented by the meetings service.
type TranscriptIngestor interface {
	IngestTranscript(ctx context.Context, params meetings.IngestParams) (repository.MeetingRecord, error)
}

// TranscribeEnqueuer is the scheduler slice this service uses.
type TranscribeEnqueuer interface {
	EnqueueRecordingTranscribe(ctx context.Context, payload scheduler.RecordingTranscribePayload) error
}

// Service accepts recording uploads and runs them through the transcription
// worker. The engine is only present in the worker process; the API process
// constructs the service without one and never calls ProcessRecording.
type Service struct {
	repo     RecordingStore
	store    ObjectStore
	bucket   string
	queue    TranscribeEnqueuer
	engine   Engine
	ingestor TranscriptIngestor
	log      *logger.Logger
}

func NewService(repo RecordingStore, store ObjectStore, bucket string, queue TranscribeEnqueuer, log *logger.Logger) *Service {
	return &Service{
		repo:   repo,
		store:  store,
		bucket: bucket,
		queue:  queue,
		log:    log,
	}
}

func (s *Service) SetEngine(e Engine) { s.engine = e }

func (s *Service) SetTranscriptIngestor(i TranscriptIngestor) { s.ingestor = i }

type SubmitParams struct {
	OrganizationID uuid.UUID
	OpportunityID  uuid.UUID
	FileName       string
	ContentType    string
	SizeBytes      int64
	Audio          io.Reader
	Title          *string
	OccurredAt     *time.Time
}

// Submit stores the audio file and enqueues the transcription task. The
// recording is returned in pending state; transcription happens on the
// worker.
func (s *Service) Submit(ctx context.Context, params SubmitParams) (Recording, error) {
	if params.OrganizationID == uuid.Nil || params.OpportunityID == uuid.Nil {
		return Recording{}, apperr.Validation("opportunityId and organizationId are required")
	}
	if params.Audio == nil || params.SizeBytes <= 0 {
		return Recording{}, apperr.Validation("audio file is required")
	}
	fileName := strings.TrimSpace(params.FileName)
	if fileName == "" {
		return Recording{}, apperr.Validation("file name is required")
	}

	folder := params.OrganizationID.String() + "/" + params.OpportunityID.String()
	fileKey, err := s.store.UploadFile(ctx, s.bucket, folder, fileName, params.ContentType, params.Audio, params.SizeBytes)
	if err != nil {
		return Recording{}, fmt.Errorf("store recording: %w", err)
	}

	rec, err := s.repo.Insert(ctx, InsertRecordingParams{
		OrganizationID: params.OrganizationID,
		OpportunityID:  params.OpportunityID,
		FileKey:        fileKey,
		ContentType:    params.ContentType,
		SizeBytes:      params.SizeBytes,
		Title:          params.Title,
		OccurredAt:     params.OccurredAt,
	})
	if err != nil {
		return Recording{}, err
	}

	err = s.queue.EnqueueRecordingTranscribe(ctx, scheduler.RecordingTranscribePayload{
		RecordingID:    rec.ID.String(),
		OpportunityID:  rec.OpportunityID.String(),
		OrganizationID: rec.OrganizationID.String(),
	})
	if err != nil {
		s.fail(ctx, &rec, "failed to enqueue transcription task")
		return Recording{}, fmt.Errorf("enqueue transcription: %w", err)
	}

	s.log.Info("recording submitted",
		"recordingId", rec.ID,
		"opportunityId", rec.OpportunityID,
		"sizeBytes", rec.SizeBytes,
	)
	return rec, nil
}

func (s *Service) GetRecording(ctx context.Context, id uuid.UUID, organizationID uuid.UUID) (Recording, error) {
	rec, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return Recording{}, err
	}
	if rec.OrganizationID != organizationID {
		return Recording{}, ErrRecordingNotFound
	}
	return rec, nil
}

func (s *Service) ListRecordings(ctx context.Context, opportunityID uuid.UUID, organizationID uuid.UUID) ([]Recording, error) {
	return s.repo.ListByOpportunity(ctx, opportunityID, organizationID)
}

// ProcessRecording downloads the audio, transcribes it, and ingests the
// transcript as a call meeting. Runs on the worker via the task queue.
func (s *Service) ProcessRecording(ctx context.Context, recordingID uuid.UUID, finalAttempt bool) error {
	claimed, err := s.repo.Claim(ctx, recordingID)
	if err != nil {
		return err
	}

	if claimed == nil {
		current, currentErr := s.repo.GetByID(ctx, recordingID)
		if currentErr != nil {
			if currentErr == ErrRecordingNotFound {
				// Deleted while the task sat in the queue.
				return nil
			}
			return currentErr
		}
		switch current.Status {
		case StatusTranscribing, StatusCompleted, StatusFailed:
			s.log.Info("skipping redelivered transcription task", "recordingId", recordingID, "status", current.Status)
			return nil
		default:
			return fmt.Errorf("recording %s cannot be claimed from status %s", recordingID, current.Status)
		}
	}

	if s.engine == nil {
		// No retry can fix a missing engine, fail the record immediately.
		s.fail(ctx, claimed, "transcription engine is not configured")
		return nil
	}
	if s.ingestor == nil {
		s.fail(ctx, claimed, "transcript ingestor is not configured")
		return nil
	}

	text, err := s.transcribe(ctx, claimed)
	if err == nil {
		if strings.TrimSpace(text) == "" {
			s.fail(ctx, claimed, "transcription produced no speech")
			return nil
		}

		var meeting repository.MeetingRecord
		meeting, err = s.ingestor.IngestTranscript(ctx, meetings.IngestParams{
			OpportunityID:  claimed.OpportunityID,
			OrganizationID: claimed.OrganizationID,
			Kind:           string(domain.MeetingKindCallTranscript),
			Source:         domain.MeetingSourceRecording,
			Title:          claimed.Title,
			OccurredAt:     claimed.OccurredAt,
			TranscriptText: text,
		})
		if err == nil {
			err = s.repo.Complete(ctx, claimed.ID, meeting.ID)
		}
		if err == nil {
			s.log.Info("recording transcribed",
				"recordingId", claimed.ID,
				"meetingId", meeting.ID,
				"transcriptChars", len(text),
			)
			return nil
		}
	}

	if !finalAttempt {
		if releaseErr := s.repo.Release(ctx, claimed.ID); releaseErr != nil {
			return fmt.Errorf("transcribe recording: %w (release claim failed: %v)", err, releaseErr)
		}
		return err
	}
	s.fail(ctx, claimed, err.Error())
	return err
}

func (s *Service) transcribe(ctx context.Context, rec *Recording) (string, error) {
	body, err := s.store.DownloadFile(ctx, s.bucket, rec.FileKey)
	if err != nil {
		return "", fmt.Errorf("download recording: %w", err)
	}
	defer body.Close()

	return s.engine.Transcribe(ctx, body)
}

func (s *Service) fail(ctx context.Context, rec *Recording, message string) {
	if err := s.repo.Fail(ctx, rec.ID, message); err != nil {
		s.log.Error("failed to mark recording as failed", "recordingId", rec.ID, "error", err)
		return
	}
	s.log.Warn("recording transcription failed", "recordingId", rec.ID, "reason", message)
}
