package agent

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"google.golang.org/adk/agent/llmagent"
	"google.golang.org/adk/runner"
	"google.golang.org/adk/session"
	"google.golang.org/adk/tool"
	"google.golang.org/adk/tool/functiontool"

	"dealdesk_backend/internal/opportunities/ports"
	"dealdesk_backend/platform/ai/moonshot"
)

// AccountResearcher writes a Markdown research brief for a prospect account.
// Firmographic data comes in through the LookupCompany tool, the brief itself
// is the agent's text output.
type AccountResearcher struct {
	runner         *runner.Runner
	sessionService session.Service
	appName        string
	lookup         ports.CompanyLookup
	runMu          sync.Mutex
}

type LookupCompanyInput struct {
	Name string `json:"name"` // Company name to look up
}

type LookupCompanyOutput struct {
	Found       bool   `json:"found"`
	Name        string `json:"name,omitempty"`
	Domain      string `json:"domain,omitempty"`
	Industry    string `json:"industry,omitempty"`
	Size        string `json:"size,omitempty"`
	Description string `json:"description,omitempty"`
	Location    string `json:"location,omitempty"`
}

// NewAccountResearcher creates the research agent. lookup may be nil, the
// LookupCompany tool then reports no match and the agent works from meeting
// data alone.
func NewAccountResearcher(apiKey string, lookup ports.CompanyLookup) (*AccountResearcher, error) {
	kimi := moonshot.NewModel(moonshot.Config{
		APIKey:          apiKey,
		Model:           "kimi-k2.5",
		DisableThinking: true,
	})

	researcher := &AccountResearcher{
		appName: "account_researcher",
		lookup:  lookup,
	}

	lookupTool, err := functiontool.New(functiontool.Config{
		Name:        "LookupCompany",
		Description: "Fetches firmographic data (domain, industry, size, location) for a company name. Returns found=false when no match exists.",
	}, researcher.handleLookupCompany)
	if err != nil {
		return nil, fmt.Errorf("failed to create LookupCompany tool: %w", err)
	}

	adkAgent, err := llmagent.New(llmagent.Config{
		Name:        "AccountResearcher",
		Model:       kimi,
		Description: "Account research assistant that combines firmographic lookups with consolidated meeting intelligence into a short Markdown brief.",
		Instruction: getAccountResearcherSystemPrompt(),
		Tools:       []tool.Tool{lookupTool},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create account researcher agent: %w", err)
	}

	sessionService := session.InMemoryService()
	r, err := runner.New(runner.Config{
		AppName:        researcher.appName,
		Agent:          adkAgent,
		SessionService: sessionService,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create account researcher runner: %w", err)
	}

	researcher.runner = r
	researcher.sessionService = sessionService
	return researcher, nil
}

func (a *AccountResearcher) handleLookupCompany(ctx tool.Context, input LookupCompanyInput) (LookupCompanyOutput, error) {
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return LookupCompanyOutput{Found: false}, nil
	}
	if a.lookup == nil {
		return LookupCompanyOutput{Found: false}, nil
	}

	profile, err := a.lookup.LookupCompany(context.Background(), name)
	if err != nil {
		// Lookup failures degrade to an unenriched brief instead of killing the run.
		return LookupCompanyOutput{Found: false}, nil
	}
	if profile == nil {
		return LookupCompanyOutput{Found: false}, nil
	}

	return LookupCompanyOutput{
		Found:       true,
		Name:        profile.Name,
		Domain:      profile.Domain,
		Industry:    profile.Industry,
		Size:        profile.Size,
		Description: profile.Description,
		Location:    profile.Location,
	}, nil
}

// ResearchAccount produces the Markdown brief for one opportunity. It returns
// an error when the agent produces no usable text.
func (a *AccountResearcher) ResearchAccount(ctx context.Context, opportunityID uuid.UUID, input ResearchInput) (string, error) {
	a.runMu.Lock()
	defer a.runMu.Unlock()

	prompt := buildResearchPrompt(input)
	output, err := runAgentPrompt(ctx, a.runner, a.sessionService, a.appName, "research-"+opportunityID.String(), prompt)
	if err != nil {
		return "", err
	}

	brief := strings.TrimSpace(output)
	if brief == "" {
		return "", fmt.Errorf("account researcher produced no output")
	}
	return brief, nil
}
