package transcription

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"dealdesk_backend/internal/opportunities/meetings"
	"dealdesk_backend/internal/opportunities/repository"
	"dealdesk_backend/internal/scheduler"
	"dealdesk_backend/platform/logger"
)

type fakeRecordingStore struct {
	recordings map[uuid.UUID]Recording
	released   []uuid.UUID
	insertErr  error
}

func newFakeRecordingStore() *fakeRecordingStore {
	return &fakeRecordingStore{recordings: make(map[uuid.UUID]Recording)}
}

func (f *fakeRecordingStore) addRecording(status string) Recording {
	rec := Recording{
		ID:             uuid.New(),
		OrganizationID: uuid.New(),
		OpportunityID:  uuid.New(),
		FileKey:        "org/opp/call.wav",
		ContentType:    "audio/wav",
		SizeBytes:      2048,
		Status:         status,
		CreatedAt:      time.Now(),
		UpdatedAt:      time.Now(),
	}
	f.recordings[rec.ID] = rec
	return rec
}

func (f *fakeRecordingStore) recording(t *testing.T, id uuid.UUID) Recording {
	t.Helper()
	rec, ok := f.recordings[id]
	if !ok {
		t.Fatalf("recording %s not found in fake store", id)
	}
	return rec
}

func (f *fakeRecordingStore) Insert(_ context.Context, params InsertRecordingParams) (Recording, error) {
	if f.insertErr != nil {
		return Recording{}, f.insertErr
	}
	rec := Recording{
		ID:             uuid.New(),
		OrganizationID: params.OrganizationID,
		OpportunityID:  params.OpportunityID,
		FileKey:        params.FileKey,
		ContentType:    params.ContentType,
		SizeBytes:      params.SizeBytes,
		Title:          params.Title,
		OccurredAt:     params.OccurredAt,
		Status:         StatusPending,
		CreatedAt:      time.Now(),
		UpdatedAt:      time.Now(),
	}
	f.recordings[rec.ID] = rec
	return rec, nil
}

func (f *fakeRecordingStore) GetByID(_ context.Context, id uuid.UUID) (Recording, error) {
	rec, ok := f.recordings[id]
	if !ok {
		return Recording{}, ErrRecordingNotFound
	}
	return rec, nil
}

func (f *fakeRecordingStore) Claim(_ context.Context, id uuid.UUID) (*Recording, error) {
	rec, ok := f.recordings[id]
	if !ok || rec.Status != StatusPending {
		return nil, nil
	}
	rec.Status = StatusTranscribing
	f.recordings[id] = rec
	return &rec, nil
}

func (f *fakeRecordingStore) Complete(_ context.Context, id uuid.UUID, meetingID uuid.UUID) error {
	rec, ok := f.recordings[id]
	if !ok || rec.Status != StatusTranscribing {
		return fmt.Errorf("recording %s is not in transcribing state", id)
	}
	rec.Status = StatusCompleted
	rec.MeetingID = &meetingID
	rec.Error = nil
	f.recordings[id] = rec
	return nil
}

func (f *fakeRecordingStore) Fail(_ context.Context, id uuid.UUID, message string) error {
	rec, ok := f.recordings[id]
	if !ok {
		return nil
	}
	rec.Status = StatusFailed
	rec.Error = &message
	f.recordings[id] = rec
	return nil
}

func (f *fakeRecordingStore) Release(_ context.Context, id uuid.UUID) error {
	rec, ok := f.recordings[id]
	if ok && rec.Status == StatusTranscribing {
		rec.Status = StatusPending
		f.recordings[id] = rec
	}
	f.released = append(f.released, id)
	return nil
}

func (f *fakeRecordingStore) ListByOpportunity(_ context.Context, opportunityID uuid.UUID, organizationID uuid.UUID) ([]Recording, error) {
	var out []Recording
	for _, rec := range f.recordings {
		if rec.OpportunityID == opportunityID && rec.OrganizationID == organizationID {
			out = append(out, rec)
		}
	}
	return out, nil
}

type storedUpload struct {
	bucket      string
	folder      string
	fileName    string
	contentType string
	size        int64
}

type fakeObjectStore struct {
	uploads     []storedUpload
	uploadErr   error
	downloadErr error
	audio       []byte
}

func (f *fakeObjectStore) UploadFile(_ context.Context, bucket, folder, fileName, contentType string, _ io.Reader, size int64) (string, error) {
	if f.uploadErr != nil {
		return "", f.uploadErr
	}
	f.uploads = append(f.uploads, storedUpload{bucket: bucket, folder: folder, fileName: fileName, contentType: contentType, size: size})
	return folder + "/" + fileName, nil
}

func (f *fakeObjectStore) DownloadFile(_ context.Context, _, _ string) (io.ReadCloser, error) {
	if f.downloadErr != nil {
		return nil, f.downloadErr
	}
	return io.NopCloser(bytes.NewReader(f.audio)), nil
}

type fakeEngine struct {
	text  string
	err   error
	calls int
}

func (f *fakeEngine) Transcribe(_ context.Context, audio io.Reader) (string, error) {
	f.calls++
	_, _ = io.Copy(io.Discard, audio)
	if f.err != nil {
		return "", f.err
	}
	return f.text, nil
}

type fakeIngestor struct {
	params []meetings.IngestParams
	err    error
}

func (f *fakeIngestor) IngestTranscript(_ context.Context, params meetings.IngestParams) (repository.MeetingRecord, error) {
	if f.err != nil {
		return repository.MeetingRecord{}, f.err
	}
	f.params = append(f.params, params)
	return repository.MeetingRecord{ID: uuid.New(), OpportunityID: params.OpportunityID, OrganizationID: params.OrganizationID}, nil
}

type fakeTranscribeQueue struct {
	payloads []scheduler.RecordingTranscribePayload
	err      error
}

func (f *fakeTranscribeQueue) EnqueueRecordingTranscribe(_ context.Context, payload scheduler.RecordingTranscribePayload) error {
	if f.err != nil {
		return f.err
	}
	f.payloads = append(f.payloads, payload)
	return nil
}

func newTestService() (*Service, *fakeRecordingStore, *fakeObjectStore, *fakeEngine, *fakeIngestor, *fakeTranscribeQueue) {
	store := newFakeRecordingStore()
	objects := &fakeObjectStore{audio: []byte("riff")}
	engine := &fakeEngine{text: "We agreed to start the pilot in March.\nBudget holds at ninety thousand."}
	ingestor := &fakeIngestor{}
	queue := &fakeTranscribeQueue{}

	svc := NewService(store, objects, "meeting-recordings", queue, logger.New("development"))
	svc.SetEngine(engine)
	svc.SetTranscriptIngestor(ingestor)
	return svc, store, objects, engine, ingestor, queue
}

func TestSubmitStoresAndEnqueues(t *testing.T) {
	svc, store, objects, _, _, queue := newTestService()
	orgID := uuid.New()
	oppID := uuid.New()

	rec, err := svc.Submit(context.Background(), SubmitParams{
		OrganizationID: orgID,
		OpportunityID:  oppID,
		FileName:       "discovery-call.wav",
		ContentType:    "audio/wav",
		SizeBytes:      4096,
		Audio:          bytes.NewReader([]byte("riff")),
	})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	if rec.Status != StatusPending {
		t.Errorf("expected pending recording, got %s", rec.Status)
	}
	if len(objects.uploads) != 1 {
		t.Fatalf("expected one upload, got %d", len(objects.uploads))
	}
	up := objects.uploads[0]
	if up.bucket != "meeting-recordings" {
		t.Errorf("expected recordings bucket, got %s", up.bucket)
	}
	if up.folder != orgID.String()+"/"+oppID.String() {
		t.Errorf("unexpected upload folder %s", up.folder)
	}
	if len(queue.payloads) != 1 {
		t.Fatalf("expected one enqueued task, got %d", len(queue.payloads))
	}
	if queue.payloads[0].RecordingID != rec.ID.String() {
		t.Errorf("payload recording id mismatch: %s vs %s", queue.payloads[0].RecordingID, rec.ID)
	}
	if _, ok := store.recordings[rec.ID]; !ok {
		t.Errorf("recording row was not inserted")
	}
}

func TestSubmitRequiresAudio(t *testing.T) {
	svc, _, objects, _, _, _ := newTestService()

	_, err := svc.Submit(context.Background(), SubmitParams{
		OrganizationID: uuid.New(),
		OpportunityID:  uuid.New(),
		FileName:       "call.wav",
		ContentType:    "audio/wav",
	})
	if err == nil {
		t.Fatalf("expected validation error for missing audio")
	}
	if len(objects.uploads) != 0 {
		t.Errorf("nothing should be uploaded on validation failure")
	}
}

func TestSubmitEnqueueFailureFailsRecording(t *testing.T) {
	svc, store, _, _, _, queue := newTestService()
	queue.err = errors.New("redis down")

	_, err := svc.Submit(context.Background(), SubmitParams{
		OrganizationID: uuid.New(),
		OpportunityID:  uuid.New(),
		FileName:       "call.wav",
		ContentType:    "audio/wav",
		SizeBytes:      1024,
		Audio:          bytes.NewReader([]byte("riff")),
	})
	if err == nil {
		t.Fatalf("expected enqueue error to propagate")
	}

	if len(store.recordings) != 1 {
		t.Fatalf("expected the inserted row to remain, got %d", len(store.recordings))
	}
	for _, rec := range store.recordings {
		if rec.Status != StatusFailed {
			t.Errorf("expected failed recording after enqueue error, got %s", rec.Status)
		}
	}
}

func TestProcessRecordingCompletes(t *testing.T) {
	svc, store, _, engine, ingestor, _ := newTestService()
	rec := store.addRecording(StatusPending)

	if err := svc.ProcessRecording(context.Background(), rec.ID, false); err != nil {
		t.Fatalf("ProcessRecording: %v", err)
	}

	stored := store.recording(t, rec.ID)
	if stored.Status != StatusCompleted {
		t.Fatalf("expected completed, got %s", stored.Status)
	}
	if stored.MeetingID == nil {
		t.Fatalf("expected a linked meeting id")
	}
	if engine.calls != 1 {
		t.Errorf("expected one transcription run, got %d", engine.calls)
	}
	if len(ingestor.params) != 1 {
		t.Fatalf("expected one ingested transcript, got %d", len(ingestor.params))
	}
	got := ingestor.params[0]
	if got.Kind != "call_transcript" || got.Source != "recording" {
		t.Errorf("unexpected kind/source %s/%s", got.Kind, got.Source)
	}
	if !strings.Contains(got.TranscriptText, "pilot in March") {
		t.Errorf("transcript text not passed through: %q", got.TranscriptText)
	}
}

func TestProcessRecordingRedeliveryIsNoop(t *testing.T) {
	svc, store, _, engine, _, _ := newTestService()
	rec := store.addRecording(StatusCompleted)

	if err := svc.ProcessRecording(context.Background(), rec.ID, false); err != nil {
		t.Fatalf("redelivery should be a no-op, got %v", err)
	}
	if engine.calls != 0 {
		t.Errorf("engine must not run on a completed recording, ran %d times", engine.calls)
	}
}

func TestProcessRecordingMissingRecordIsNoop(t *testing.T) {
	svc, _, _, _, _, _ := newTestService()

	if err := svc.ProcessRecording(context.Background(), uuid.New(), false); err != nil {
		t.Fatalf("missing recording should be a no-op, got %v", err)
	}
}

func TestProcessRecordingTransientErrorReleasesClaim(t *testing.T) {
	svc, store, _, engine, _, _ := newTestService()
	rec := store.addRecording(StatusPending)
	engine.err = errors.New("model busy")

	err := svc.ProcessRecording(context.Background(), rec.ID, false)
	if err == nil {
		t.Fatalf("expected the transient error to propagate for redelivery")
	}

	stored := store.recording(t, rec.ID)
	if stored.Status != StatusPending {
		t.Errorf("expected claim released back to pending, got %s", stored.Status)
	}
	if len(store.released) != 1 {
		t.Errorf("expected exactly one claim release, got %d", len(store.released))
	}
}

func TestProcessRecordingFinalAttemptFailsRecord(t *testing.T) {
	svc, store, _, engine, _, _ := newTestService()
	rec := store.addRecording(StatusPending)
	engine.err = errors.New("model busy")

	err := svc.ProcessRecording(context.Background(), rec.ID, true)
	if err == nil {
		t.Fatalf("expected the final error to propagate")
	}

	stored := store.recording(t, rec.ID)
	if stored.Status != StatusFailed {
		t.Fatalf("expected failed, got %s", stored.Status)
	}
	if stored.Error == nil || !strings.Contains(*stored.Error, "model busy") {
		t.Errorf("expected retained error message, got %v", stored.Error)
	}
}

func TestProcessRecordingEmptyTranscriptFailsPermanently(t *testing.T) {
	svc, store, _, engine, ingestor, _ := newTestService()
	rec := store.addRecording(StatusPending)
	engine.text = "   \n  "

	if err := svc.ProcessRecording(context.Background(), rec.ID, false); err != nil {
		t.Fatalf("empty transcript is permanent, expected nil error, got %v", err)
	}

	stored := store.recording(t, rec.ID)
	if stored.Status != StatusFailed {
		t.Fatalf("expected failed, got %s", stored.Status)
	}
	if stored.Error == nil || !strings.Contains(*stored.Error, "no speech") {
		t.Errorf("unexpected failure message: %v", stored.Error)
	}
	if len(ingestor.params) != 0 {
		t.Errorf("nothing should be ingested for an empty transcript")
	}
}

func TestProcessRecordingWithoutEngineFails(t *testing.T) {
	svc, store, _, _, _, _ := newTestService()
	svc.engine = nil
	rec := store.addRecording(StatusPending)

	if err := svc.ProcessRecording(context.Background(), rec.ID, false); err != nil {
		t.Fatalf("missing engine is permanent, expected nil error, got %v", err)
	}

	stored := store.recording(t, rec.ID)
	if stored.Status != StatusFailed {
		t.Fatalf("expected failed, got %s", stored.Status)
	}
	if stored.Error == nil || !strings.Contains(*stored.Error, "engine is not configured") {
		t.Errorf("unexpected failure message: %v", stored.Error)
	}
}

func TestProcessRecordingIngestErrorReleasesClaim(t *testing.T) {
	svc, store, _, _, ingestor, _ := newTestService()
	rec := store.addRecording(StatusPending)
	ingestor.err = errors.New("db unavailable")

	err := svc.ProcessRecording(context.Background(), rec.ID, false)
	if err == nil {
		t.Fatalf("expected the ingest error to propagate for redelivery")
	}

	stored := store.recording(t, rec.ID)
	if stored.Status != StatusPending {
		t.Errorf("expected claim released back to pending, got %s", stored.Status)
	}
}
