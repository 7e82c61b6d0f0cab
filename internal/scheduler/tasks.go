package scheduler

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

// Task type names double as the durable event names of the pipeline.
const (
	TaskTranscriptParse       = "meeting/transcript.parse"
	TaskRiskAnalyze           = "meeting/risk.analyze"
	TaskInsightsConsolidate   = "opportunity/insights.consolidate"
	TaskScheduleRecalculate   = "opportunity/schedule.recalculate"
	TaskDocumentGenerate      = "document/generate"
	TaskAccountResearch       = "opportunity/research.run"
	TaskOpportunityImport     = "opportunity/import.run"
	TaskRecordingTranscribe   = "meeting/recording.transcribe"
	TaskNotificationOutboxDue = "notification/outbox.due"
)

// maxDeliveryAttempts is the at-least-once delivery budget per task.
// asynq counts retries after the first delivery, hence MaxRetry(n-1).
const maxDeliveryAttempts = 3

type TranscriptParsePayload struct {
	MeetingID        string  `json:"meetingId"`
	OpportunityID    string  `json:"opportunityId"`
	OrganizationID   string  `json:"organizationId"`
	TranscriptText   string  `json:"transcriptText"`
	OrganizationName *string `json:"organizationName,omitempty"`
}

type RiskAnalyzePayload struct {
	MeetingID      string `json:"meetingId"`
	OpportunityID  string `json:"opportunityId"`
	OrganizationID string `json:"organizationId"`
}

type InsightsConsolidatePayload struct {
	OpportunityID  string `json:"opportunityId"`
	OrganizationID string `json:"organizationId"`
}

type ScheduleRecalculatePayload struct {
	OpportunityID  string `json:"opportunityId"`
	OrganizationID string `json:"organizationId"`
}

type DocumentGeneratePayload struct {
	DocumentID       string          `json:"documentId"`
	OpportunityID    string          `json:"opportunityId"`
	OrganizationID   string          `json:"organizationId"`
	TemplateID       *string         `json:"templateId,omitempty"`
	ContextSelection json.RawMessage `json:"contextSelection,omitempty"`
}

type AccountResearchPayload struct {
	OpportunityID  string `json:"opportunityId"`
	OrganizationID string `json:"organizationId"`
	RequestedBy    string `json:"requestedBy"`
}

type OpportunityImportPayload struct {
	ImportJobID    string `json:"importJobId"`
	OrganizationID string `json:"organizationId"`
}

type RecordingTranscribePayload struct {
	RecordingID    string `json:"recordingId"`
	OpportunityID  string `json:"opportunityId"`
	OrganizationID string `json:"organizationId"`
}

type NotificationOutboxDuePayload struct {
	OutboxID       string `json:"outboxId"`
	OrganizationID string `json:"organizationId"`
}

func NewTranscriptParseTask(payload TranscriptParsePayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTranscriptParse, data), nil
}

func ParseTranscriptParsePayload(task *asynq.Task) (TranscriptParsePayload, error) {
	var payload TranscriptParsePayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return TranscriptParsePayload{}, err
	}
	return payload, nil
}

func NewRiskAnalyzeTask(payload RiskAnalyzePayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskRiskAnalyze, data), nil
}

func ParseRiskAnalyzePayload(task *asynq.Task) (RiskAnalyzePayload, error) {
	var payload RiskAnalyzePayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return RiskAnalyzePayload{}, err
	}
	return payload, nil
}

func NewInsightsConsolidateTask(payload InsightsConsolidatePayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskInsightsConsolidate, data), nil
}

func ParseInsightsConsolidatePayload(task *asynq.Task) (InsightsConsolidatePayload, error) {
	var payload InsightsConsolidatePayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return InsightsConsolidatePayload{}, err
	}
	return payload, nil
}

func NewScheduleRecalculateTask(payload ScheduleRecalculatePayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskScheduleRecalculate, data), nil
}

func ParseScheduleRecalculatePayload(task *asynq.Task) (ScheduleRecalculatePayload, error) {
	var payload ScheduleRecalculatePayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return ScheduleRecalculatePayload{}, err
	}
	return payload, nil
}

func NewDocumentGenerateTask(payload DocumentGeneratePayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskDocumentGenerate, data), nil
}

func ParseDocumentGeneratePayload(task *asynq.Task) (DocumentGeneratePayload, error) {
	var payload DocumentGeneratePayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return DocumentGeneratePayload{}, err
	}
	return payload, nil
}

func NewAccountResearchTask(payload AccountResearchPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskAccountResearch, data), nil
}

func ParseAccountResearchPayload(task *asynq.Task) (AccountResearchPayload, error) {
	var payload AccountResearchPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return AccountResearchPayload{}, err
	}
	return payload, nil
}

func NewOpportunityImportTask(payload OpportunityImportPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskOpportunityImport, data), nil
}

func ParseOpportunityImportPayload(task *asynq.Task) (OpportunityImportPayload, error) {
	var payload OpportunityImportPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return OpportunityImportPayload{}, err
	}
	return payload, nil
}

func NewRecordingTranscribeTask(payload RecordingTranscribePayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskRecordingTranscribe, data), nil
}

func ParseRecordingTranscribePayload(task *asynq.Task) (RecordingTranscribePayload, error) {
	var payload RecordingTranscribePayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return RecordingTranscribePayload{}, err
	}
	return payload, nil
}

func NewNotificationOutboxDueTask(payload NotificationOutboxDuePayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskNotificationOutboxDue, data), nil
}

func ParseNotificationOutboxDuePayload(task *asynq.Task) (NotificationOutboxDuePayload, error) {
	var payload NotificationOutboxDuePayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return NotificationOutboxDuePayload{}, err
	}
	return payload, nil
}
