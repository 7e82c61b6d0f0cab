package scheduler

import (
	"context"
	"fmt"

	"dealdesk_backend/internal/events"
	"dealdesk_backend/platform/config"
	"dealdesk_backend/platform/logger"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
)

// Processor interfaces are implemented by the domain modules and injected
// after construction, keeping the worker free of module imports.

type TranscriptParseProcessor interface {
	ProcessTranscriptParse(ctx context.Context, meetingID uuid.UUID, transcriptText string, organizationName *string, finalAttempt bool) error
}

type RiskAnalysisProcessor interface {
	ProcessRiskAnalysis(ctx context.Context, meetingID uuid.UUID, finalAttempt bool) error
}

type ConsolidationProcessor interface {
	ProcessConsolidation(ctx context.Context, opportunityID uuid.UUID) error
}

type ScheduleRecalcProcessor interface {
	ProcessScheduleRecalculation(ctx context.Context, opportunityID uuid.UUID) error
}

type DocumentJobProcessor interface {
	ProcessDocumentGeneration(ctx context.Context, documentID uuid.UUID, finalAttempt bool) error
}

type ResearchProcessor interface {
	ProcessAccountResearch(ctx context.Context, opportunityID, requestedBy uuid.UUID, finalAttempt bool) error
}

type ImportJobProcessor interface {
	ProcessImportJob(ctx context.Context, importJobID uuid.UUID, finalAttempt bool) error
}

type RecordingProcessor interface {
	ProcessRecording(ctx context.Context, recordingID uuid.UUID, finalAttempt bool) error
}

type Worker struct {
	server *asynq.Server
	mux    *asynq.ServeMux
	bus    events.Bus
	log    *logger.Logger

	parseProcessor     TranscriptParseProcessor
	riskProcessor      RiskAnalysisProcessor
	consolidation      ConsolidationProcessor
	scheduleProcessor  ScheduleRecalcProcessor
	documentProcessor  DocumentJobProcessor
	researchProcessor  ResearchProcessor
	importProcessor    ImportJobProcessor
	recordingProcessor RecordingProcessor
}

func NewWorker(cfg config.SchedulerConfig, bus events.Bus, log *logger.Logger) (*Worker, error) {
	redisURL := cfg.GetRedisURL()
	if redisURL == "" {
		return nil, fmt.Errorf("redis url not configured")
	}

	opt, err := redisClientOpt(redisURL, cfg.GetRedisTLSInsecure())
	if err != nil {
		return nil, err
	}

	queue := cfg.GetAsynqQueueName()
	if queue == "" {
		queue = "default"
	}

	concurrency := cfg.GetAsynqConcurrency()
	if concurrency < 1 {
		concurrency = 10
	}

	server := asynq.NewServer(opt, asynq.Config{
		Concurrency: concurrency,
		Queues: map[string]int{
			queue: 1,
		},
	})

	mux := asynq.NewServeMux()
	w := &Worker{
		server: server,
		mux:    mux,
		bus:    bus,
		log:    log,
	}

	mux.HandleFunc(TaskTranscriptParse, w.handleTranscriptParse)
	mux.HandleFunc(TaskRiskAnalyze, w.handleRiskAnalyze)
	mux.HandleFunc(TaskInsightsConsolidate, w.handleInsightsConsolidate)
	mux.HandleFunc(TaskScheduleRecalculate, w.handleScheduleRecalculate)
	mux.HandleFunc(TaskDocumentGenerate, w.handleDocumentGenerate)
	mux.HandleFunc(TaskAccountResearch, w.handleAccountResearch)
	mux.HandleFunc(TaskOpportunityImport, w.handleOpportunityImport)
	mux.HandleFunc(TaskRecordingTranscribe, w.handleRecordingTranscribe)
	mux.HandleFunc(TaskNotificationOutboxDue, w.handleNotificationOutboxDue)

	return w, nil
}

func (w *Worker) SetTranscriptParseProcessor(p TranscriptParseProcessor) { w.parseProcessor = p }
func (w *Worker) SetRiskAnalysisProcessor(p RiskAnalysisProcessor)       { w.riskProcessor = p }
func (w *Worker) SetConsolidationProcessor(p ConsolidationProcessor)     { w.consolidation = p }
func (w *Worker) SetScheduleRecalcProcessor(p ScheduleRecalcProcessor)   { w.scheduleProcessor = p }
func (w *Worker) SetDocumentJobProcessor(p DocumentJobProcessor)         { w.documentProcessor = p }
func (w *Worker) SetResearchProcessor(p ResearchProcessor)               { w.researchProcessor = p }
func (w *Worker) SetImportJobProcessor(p ImportJobProcessor)             { w.importProcessor = p }
func (w *Worker) SetRecordingProcessor(p RecordingProcessor)             { w.recordingProcessor = p }

func (w *Worker) Run(ctx context.Context) {
	if w == nil || w.server == nil {
		return
	}

	go func() {
		<-ctx.Done()
		w.server.Shutdown()
	}()

	if err := w.server.Run(w.mux); err != nil {
		w.log.Error("scheduler worker stopped", "error", err)
	}
}

func (w *Worker) handleTranscriptParse(ctx context.Context, task *asynq.Task) error {
	if w.parseProcessor == nil {
		return nil
	}

	payload, err := ParseTranscriptParsePayload(task)
	if err != nil {
		return err
	}

	meetingID, err := uuid.Parse(payload.MeetingID)
	if err != nil {
		return err
	}

	if err := w.parseProcessor.ProcessTranscriptParse(ctx, meetingID, payload.TranscriptText, payload.OrganizationName, lastAttempt(ctx)); err != nil {
		w.log.TaskError(TaskTranscriptParse, payload.MeetingID, err)
		return err
	}
	return nil
}

func (w *Worker) handleRiskAnalyze(ctx context.Context, task *asynq.Task) error {
	if w.riskProcessor == nil {
		return nil
	}

	payload, err := ParseRiskAnalyzePayload(task)
	if err != nil {
		return err
	}

	meetingID, err := uuid.Parse(payload.MeetingID)
	if err != nil {
		return err
	}

	if err := w.riskProcessor.ProcessRiskAnalysis(ctx, meetingID, lastAttempt(ctx)); err != nil {
		w.log.TaskError(TaskRiskAnalyze, payload.MeetingID, err)
		return err
	}
	return nil
}

func (w *Worker) handleInsightsConsolidate(ctx context.Context, task *asynq.Task) error {
	if w.consolidation == nil {
		return nil
	}

	payload, err := ParseInsightsConsolidatePayload(task)
	if err != nil {
		return err
	}

	opportunityID, err := uuid.Parse(payload.OpportunityID)
	if err != nil {
		return err
	}

	if err := w.consolidation.ProcessConsolidation(ctx, opportunityID); err != nil {
		w.log.TaskError(TaskInsightsConsolidate, payload.OpportunityID, err)
		return err
	}
	return nil
}

func (w *Worker) handleScheduleRecalculate(ctx context.Context, task *asynq.Task) error {
	if w.scheduleProcessor == nil {
		return nil
	}

	payload, err := ParseScheduleRecalculatePayload(task)
	if err != nil {
		return err
	}

	opportunityID, err := uuid.Parse(payload.OpportunityID)
	if err != nil {
		return err
	}

	if err := w.scheduleProcessor.ProcessScheduleRecalculation(ctx, opportunityID); err != nil {
		w.log.TaskError(TaskScheduleRecalculate, payload.OpportunityID, err)
		return err
	}
	return nil
}

func (w *Worker) handleDocumentGenerate(ctx context.Context, task *asynq.Task) error {
	if w.documentProcessor == nil {
		return nil
	}

	payload, err := ParseDocumentGeneratePayload(task)
	if err != nil {
		return err
	}

	documentID, err := uuid.Parse(payload.DocumentID)
	if err != nil {
		return err
	}

	if err := w.documentProcessor.ProcessDocumentGeneration(ctx, documentID, lastAttempt(ctx)); err != nil {
		w.log.TaskError(TaskDocumentGenerate, payload.DocumentID, err)
		return err
	}
	return nil
}

func (w *Worker) handleAccountResearch(ctx context.Context, task *asynq.Task) error {
	if w.researchProcessor == nil {
		return nil
	}

	payload, err := ParseAccountResearchPayload(task)
	if err != nil {
		return err
	}

	opportunityID, err := uuid.Parse(payload.OpportunityID)
	if err != nil {
		return err
	}

	requestedBy, err := uuid.Parse(payload.RequestedBy)
	if err != nil {
		return err
	}

	if err := w.researchProcessor.ProcessAccountResearch(ctx, opportunityID, requestedBy, lastAttempt(ctx)); err != nil {
		w.log.TaskError(TaskAccountResearch, payload.OpportunityID, err)
		return err
	}
	return nil
}

func (w *Worker) handleOpportunityImport(ctx context.Context, task *asynq.Task) error {
	if w.importProcessor == nil {
		return nil
	}

	payload, err := ParseOpportunityImportPayload(task)
	if err != nil {
		return err
	}

	importJobID, err := uuid.Parse(payload.ImportJobID)
	if err != nil {
		return err
	}

	if err := w.importProcessor.ProcessImportJob(ctx, importJobID, lastAttempt(ctx)); err != nil {
		w.log.TaskError(TaskOpportunityImport, payload.ImportJobID, err)
		return err
	}
	return nil
}

func (w *Worker) handleRecordingTranscribe(ctx context.Context, task *asynq.Task) error {
	if w.recordingProcessor == nil {
		return nil
	}

	payload, err := ParseRecordingTranscribePayload(task)
	if err != nil {
		return err
	}

	recordingID, err := uuid.Parse(payload.RecordingID)
	if err != nil {
		return err
	}

	if err := w.recordingProcessor.ProcessRecording(ctx, recordingID, lastAttempt(ctx)); err != nil {
		w.log.TaskError(TaskRecordingTranscribe, payload.RecordingID, err)
		return err
	}
	return nil
}

func (w *Worker) handleNotificationOutboxDue(ctx context.Context, task *asynq.Task) error {
	if w.bus == nil {
		return nil
	}

	payload, err := ParseNotificationOutboxDuePayload(task)
	if err != nil {
		return err
	}

	outboxID, err := uuid.Parse(payload.OutboxID)
	if err != nil {
		return err
	}

	organizationID, err := uuid.Parse(payload.OrganizationID)
	if err != nil {
		return err
	}

	return w.bus.PublishSync(ctx, events.NotificationOutboxDue{
		BaseEvent:      events.NewBaseEvent(),
		OutboxID:       outboxID,
		OrganizationID: organizationID,
	})
}

// lastAttempt reports whether the current delivery is the final one in the
// task's retry budget. Outside an asynq handler context it reports true so
// callers fail closed.
func lastAttempt(ctx context.Context) bool {
	retried, ok := asynq.GetRetryCount(ctx)
	if !ok {
		return true
	}
	maxRetry, ok := asynq.GetMaxRetry(ctx)
	if !ok {
		return true
	}
	return retried >= maxRetry
}
