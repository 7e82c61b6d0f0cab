package agent

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"

	"github.com/google/uuid"
	"google.golang.org/adk/agent/llmagent"
	"google.golang.org/adk/runner"
	"google.golang.org/adk/session"
	"google.golang.org/adk/tool"
	"google.golang.org/adk/tool/functiontool"

	"dealdesk_backend/internal/opportunities/domain"
	"dealdesk_backend/platform/ai/moonshot"
)

// RiskAnalyzer judges the deal risk signaled by one parsed meeting.
type RiskAnalyzer struct {
	runner         *runner.Runner
	sessionService session.Service
	appName        string
	toolDeps       *riskToolDeps
	runMu          sync.Mutex
}

type riskToolDeps struct {
	mu     sync.RWMutex
	result *domain.RiskAssessment
}

func (d *riskToolDeps) reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.result = nil
}

func (d *riskToolDeps) capture(assessment domain.RiskAssessment) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.result = &assessment
}

func (d *riskToolDeps) captured() (*domain.RiskAssessment, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.result == nil {
		return nil, false
	}
	return d.result, true
}

type SubmitRiskAssessmentInput struct {
	Level   string   `json:"level"` // low, medium, high, critical
	Factors []string `json:"factors"`
	Summary string   `json:"summary"`
}

type SubmitRiskAssessmentOutput struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

func (d *riskToolDeps) handleSubmitRiskAssessment(ctx tool.Context, input SubmitRiskAssessmentInput) (SubmitRiskAssessmentOutput, error) {
	level, ok := domain.ParseRiskLevel(input.Level)
	if !ok {
		return SubmitRiskAssessmentOutput{Status: "error", Message: "level must be one of low, medium, high, critical"},
			fmt.Errorf("invalid risk level: %s", input.Level)
	}

	summary := strings.TrimSpace(input.Summary)
	if summary == "" {
		return SubmitRiskAssessmentOutput{Status: "error", Message: "summary is required"}, fmt.Errorf("summary is required")
	}
	if len(summary) > maxSummaryLength {
		summary = summary[:maxSummaryLength]
	}

	d.capture(domain.RiskAssessment{
		Level:   level,
		Factors: cleanStringList(input.Factors),
		Summary: summary,
	})
	return SubmitRiskAssessmentOutput{Status: "ok", Message: "assessment stored"}, nil
}

// NewRiskAnalyzer creates the risk analysis agent.
func NewRiskAnalyzer(apiKey string) (*RiskAnalyzer, error) {
	kimi := moonshot.NewModel(moonshot.Config{
		APIKey:          apiKey,
		Model:           "kimi-k2.5",
		DisableThinking: true,
	})

	deps := &riskToolDeps{}

	submitTool, err := functiontool.New(functiontool.Config{
		Name:        "SubmitRiskAssessment",
		Description: "Stores the deal risk assessment for the meeting. Call exactly once with level, factors, and summary.",
	}, deps.handleSubmitRiskAssessment)
	if err != nil {
		return nil, fmt.Errorf("failed to create SubmitRiskAssessment tool: %w", err)
	}

	adkAgent, err := llmagent.New(llmagent.Config{
		Name:        "RiskAnalyzer",
		Model:       kimi,
		Description: "Deal risk analyst that scores a single sales meeting on a low/medium/high/critical scale with concrete risk factors.",
		Instruction: getRiskAnalyzerSystemPrompt(),
		Tools:       []tool.Tool{submitTool},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create risk analyzer agent: %w", err)
	}

	sessionService := session.InMemoryService()
	r, err := runner.New(runner.Config{
		AppName:        "risk_analyzer",
		Agent:          adkAgent,
		SessionService: sessionService,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create risk analyzer runner: %w", err)
	}

	return &RiskAnalyzer{
		runner:         r,
		sessionService: sessionService,
		appName:        "risk_analyzer",
		toolDeps:       deps,
	}, nil
}

// AnalyzeRisk scores one parsed meeting. It returns an error when the model
// never calls SubmitRiskAssessment.
func (a *RiskAnalyzer) AnalyzeRisk(ctx context.Context, meetingID uuid.UUID, input RiskAnalysisInput) (*domain.RiskAssessment, error) {
	a.runMu.Lock()
	defer a.runMu.Unlock()

	a.toolDeps.reset()

	prompt := buildRiskAnalysisPrompt(input)
	output, err := runAgentPrompt(ctx, a.runner, a.sessionService, a.appName, "risk-"+meetingID.String(), prompt)
	if err != nil {
		return nil, err
	}

	result, ok := a.toolDeps.captured()
	if !ok {
		log.Printf("RiskAnalyzer finished without tool call for meeting %s. Output: %s", meetingID, sanitizeUserInput(output, 300))
		return nil, fmt.Errorf("risk analyzer did not submit an assessment")
	}
	return result, nil
}
