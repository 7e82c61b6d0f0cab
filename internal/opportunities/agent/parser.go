// Package agent hosts the AI agents of the meeting intelligence pipeline:
// the transcript parser, the risk analyzer, and the account researcher.
// All of them run on the Kimi model through the ADK runner and hand their
// structured output back through function tools.
package agent

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"google.golang.org/adk/agent"
	"google.golang.org/adk/agent/llmagent"
	"google.golang.org/adk/runner"
	"google.golang.org/adk/session"
	"google.golang.org/adk/tool"
	"google.golang.org/adk/tool/functiontool"
	"google.golang.org/genai"

	"dealdesk_backend/internal/opportunities/domain"
	"dealdesk_backend/platform/ai/moonshot"
)

// TranscriptParser turns one raw meeting transcript into structured insights.
// The result is captured through the SubmitInsights tool, never parsed out of
// free text.
type TranscriptParser struct {
	agent          agent.Agent
	runner         *runner.Runner
	sessionService session.Service
	appName        string
	toolDeps       *parserToolDeps
	runMu          sync.Mutex
}

type parserToolDeps struct {
	mu        sync.RWMutex
	meetingID *uuid.UUID
	result    *domain.ParsedInsights
}

func (d *parserToolDeps) reset(meetingID uuid.UUID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.meetingID = &meetingID
	d.result = nil
}

func (d *parserToolDeps) capture(insights domain.ParsedInsights) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.result = &insights
}

func (d *parserToolDeps) captured() (*domain.ParsedInsights, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.result == nil {
		return nil, false
	}
	return d.result, true
}

type SubmitInsightsInput struct {
	Summary    string        `json:"summary"`
	PainPoints []string      `json:"painPoints"`
	Goals      []string      `json:"goals"`
	NextSteps  []string      `json:"nextSteps"`
	Metrics    []string      `json:"metrics"`
	People     []PersonInput `json:"people"`
}

type SubmitInsightsOutput struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

func (d *parserToolDeps) handleSubmitInsights(ctx tool.Context, input SubmitInsightsInput) (SubmitInsightsOutput, error) {
	summary := strings.TrimSpace(input.Summary)
	if summary == "" {
		return SubmitInsightsOutput{Status: "error", Message: "summary is required"}, fmt.Errorf("summary is required")
	}
	if len(summary) > maxSummaryLength {
		summary = summary[:maxSummaryLength]
	}

	d.capture(domain.ParsedInsights{
		Summary:    summary,
		PainPoints: cleanStringList(input.PainPoints),
		Goals:      cleanStringList(input.Goals),
		NextSteps:  cleanStringList(input.NextSteps),
		Metrics:    cleanStringList(input.Metrics),
		People:     cleanPeople(input.People),
		ParsedAt:   time.Now().UTC(),
	})
	return SubmitInsightsOutput{Status: "ok", Message: "insights stored"}, nil
}

// NewTranscriptParser creates the transcript parsing agent.
func NewTranscriptParser(apiKey string) (*TranscriptParser, error) {
	// Use kimi-k2.5 with thinking disabled for reliable tool calling
	kimi := moonshot.NewModel(moonshot.Config{
		APIKey:          apiKey,
		Model:           "kimi-k2.5",
		DisableThinking: true,
	})

	deps := &parserToolDeps{}

	submitTool, err := functiontool.New(functiontool.Config{
		Name:        "SubmitInsights",
		Description: "Stores the structured extraction of the meeting record. Call exactly once with the complete result.",
	}, deps.handleSubmitInsights)
	if err != nil {
		return nil, fmt.Errorf("failed to create SubmitInsights tool: %w", err)
	}

	adkAgent, err := llmagent.New(llmagent.Config{
		Name:        "TranscriptParser",
		Model:       kimi,
		Description: "Meeting intelligence extractor that converts raw sales call transcripts and notes into structured insights (pain points, goals, next steps, metrics, participants).",
		Instruction: getTranscriptParserSystemPrompt(),
		Tools:       []tool.Tool{submitTool},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create transcript parser agent: %w", err)
	}

	sessionService := session.InMemoryService()
	r, err := runner.New(runner.Config{
		AppName:        "transcript_parser",
		Agent:          adkAgent,
		SessionService: sessionService,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create transcript parser runner: %w", err)
	}

	return &TranscriptParser{
		agent:          adkAgent,
		runner:         r,
		sessionService: sessionService,
		appName:        "transcript_parser",
		toolDeps:       deps,
	}, nil
}

// ParseTranscript runs the extraction for one meeting record. It returns an
// error when the model never calls SubmitInsights, so the caller can treat
// the run as a failed parse attempt.
func (p *TranscriptParser) ParseTranscript(ctx context.Context, meetingID uuid.UUID, organizationName *string, kind string, occurredAt time.Time, transcript string) (*domain.ParsedInsights, error) {
	p.runMu.Lock()
	defer p.runMu.Unlock()

	p.toolDeps.reset(meetingID)

	prompt := buildTranscriptParsePrompt(organizationName, kind, occurredAt, transcript)
	output, err := runAgentPrompt(ctx, p.runner, p.sessionService, p.appName, "parser-"+meetingID.String(), prompt)
	if err != nil {
		return nil, err
	}

	result, ok := p.toolDeps.captured()
	if !ok {
		log.Printf("TranscriptParser finished without tool call for meeting %s. Output: %s", meetingID, sanitizeUserInput(output, 300))
		return nil, fmt.Errorf("transcript parser did not submit a result")
	}
	return result, nil
}

// runAgentPrompt creates an ephemeral session, runs the agent once, and
// returns the concatenated text output.
func runAgentPrompt(ctx context.Context, r *runner.Runner, sessions session.Service, appName, userID, promptText string) (string, error) {
	sessionID := uuid.New().String()

	_, err := sessions.Create(ctx, &session.CreateRequest{
		AppName:   appName,
		UserID:    userID,
		SessionID: sessionID,
	})
	if err != nil {
		return "", fmt.Errorf("failed to create %s session: %w", appName, err)
	}
	defer func() {
		if deleteErr := sessions.Delete(ctx, &session.DeleteRequest{
			AppName:   appName,
			UserID:    userID,
			SessionID: sessionID,
		}); deleteErr != nil {
			log.Printf("warning: failed to delete %s session: %v", appName, deleteErr)
		}
	}()

	userMessage := &genai.Content{
		Role: "user",
		Parts: []*genai.Part{
			{Text: promptText},
		},
	}

	runConfig := agent.RunConfig{
		StreamingMode: agent.StreamingModeNone,
	}

	var outputText string
	for event, err := range r.Run(ctx, userID, sessionID, userMessage, runConfig) {
		if err != nil {
			return "", fmt.Errorf("%s run failed: %w", appName, err)
		}
		if event.Content != nil {
			for _, part := range event.Content.Parts {
				outputText += part.Text
			}
		}
	}

	return outputText, nil
}
