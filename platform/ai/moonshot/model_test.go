package moonshot

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"google.golang.org/adk/model"
	"google.golang.org/genai"
)

type capturedPayload struct {
	Model       string            `json:"model"`
	Messages    []chatMessage     `json:"messages"`
	Tools       []chatToolDef     `json:"tools"`
	Temperature *float64          `json:"temperature"`
	Thinking    map[string]string `json:"thinking"`
	ToolChoice  string            `json:"tool_choice"`
}

func textContent(role, text string) *genai.Content {
	return &genai.Content{Role: role, Parts: []*genai.Part{{Text: text}}}
}

func runGenerate(t *testing.T, m *KimiModel, req *model.LLMRequest) (*model.LLMResponse, error) {
	t.Helper()
	var resp *model.LLMResponse
	var err error
	for r, e := range m.GenerateContent(context.Background(), req, false) {
		resp, err = r, e
	}
	return resp, err
}

func TestGenerateContentForwardsSystemInstruction(t *testing.T) {
	var captured capturedPayload
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("expected bearer auth, got %q", got)
		}
		if err := json.NewDecoder(r.Body).Decode(&captured); err != nil {
			t.Errorf("decode payload: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"Noted three pain points."}}]}`))
	}))
	defer ts.Close()

	m := NewModel(Config{APIKey: "test-key", BaseURL: ts.URL, Model: "kimi-k2.5"})
	temp := float32(0.3)
	req := &model.LLMRequest{
		Contents: []*genai.Content{textContent("user", "Customer flagged churn risk during the renewal call.")},
		Config: &genai.GenerateContentConfig{
			SystemInstruction: textContent("", "Extract insights from sales meeting transcripts."),
			Temperature:       &temp,
		},
	}

	resp, err := runGenerate(t, m, req)
	if err != nil {
		t.Fatalf("GenerateContent failed: %v", err)
	}
	if len(resp.Content.Parts) != 1 || resp.Content.Parts[0].Text != "Noted three pain points." {
		t.Fatalf("unexpected response parts: %+v", resp.Content.Parts)
	}

	if len(captured.Messages) != 2 {
		t.Fatalf("expected system + user messages, got %d", len(captured.Messages))
	}
	if captured.Messages[0].Role != "system" || captured.Messages[0].Content != "Extract insights from sales meeting transcripts." {
		t.Errorf("expected leading system message, got %+v", captured.Messages[0])
	}
	if captured.Messages[1].Role != "user" {
		t.Errorf("expected user message second, got %+v", captured.Messages[1])
	}
	if captured.Temperature == nil || *captured.Temperature != 0.3 {
		t.Errorf("expected temperature 0.3 forwarded, got %v", captured.Temperature)
	}
}

func TestGenerateContentToolConversation(t *testing.T) {
	var captured capturedPayload
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&captured); err != nil {
			t.Errorf("decode payload: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"","tool_calls":[{"id":"call_9","type":"function","function":{"name":"SubmitInsights","arguments":"{\"sentiment\":\"positive\"}"}}]}}]}`))
	}))
	defer ts.Close()

	m := NewModel(Config{APIKey: "test-key", BaseURL: ts.URL})
	req := &model.LLMRequest{
		Contents: []*genai.Content{
			textContent("user", "Parse the attached meeting record."),
			{Role: "model", Parts: []*genai.Part{{FunctionCall: &genai.FunctionCall{
				ID:   "call_1",
				Name: "SubmitInsights",
				Args: map[string]any{"sentiment": "positive"},
			}}}},
			{Role: "user", Parts: []*genai.Part{{FunctionResponse: &genai.FunctionResponse{
				ID:       "call_1",
				Name:     "SubmitInsights",
				Response: map[string]any{"status": "ok"},
			}}}},
		},
	}

	resp, err := runGenerate(t, m, req)
	if err != nil {
		t.Fatalf("GenerateContent failed: %v", err)
	}

	if len(captured.Messages) != 3 {
		t.Fatalf("expected user, assistant and tool messages, got %d", len(captured.Messages))
	}
	assistant := captured.Messages[1]
	if assistant.Role != "assistant" || len(assistant.ToolCalls) != 1 {
		t.Fatalf("expected assistant tool call message, got %+v", assistant)
	}
	if assistant.ToolCalls[0].ID != "call_1" || assistant.ToolCalls[0].Function.Name != "SubmitInsights" {
		t.Errorf("unexpected tool call %+v", assistant.ToolCalls[0])
	}
	if !strings.Contains(assistant.ToolCalls[0].Function.Arguments, "positive") {
		t.Errorf("expected marshaled args, got %q", assistant.ToolCalls[0].Function.Arguments)
	}
	toolMsg := captured.Messages[2]
	if toolMsg.Role != "tool" || toolMsg.ToolCallID != "call_1" {
		t.Errorf("expected tool result message, got %+v", toolMsg)
	}
	if toolMsg.Content != `{"status":"ok"}` {
		t.Errorf("unexpected tool result payload %q", toolMsg.Content)
	}

	if len(resp.Content.Parts) != 1 || resp.Content.Parts[0].FunctionCall == nil {
		t.Fatalf("expected a function call part, got %+v", resp.Content.Parts)
	}
	call := resp.Content.Parts[0].FunctionCall
	if call.Name != "SubmitInsights" || call.ID != "call_9" {
		t.Errorf("unexpected call %+v", call)
	}
	if call.Args["sentiment"] != "positive" {
		t.Errorf("expected parsed arguments, got %+v", call.Args)
	}
}

func TestGenerateContentThinkingDisabledPinsTemperature(t *testing.T) {
	var captured capturedPayload
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&captured); err != nil {
			t.Errorf("decode payload: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"ok"}}]}`))
	}))
	defer ts.Close()

	m := NewModel(Config{APIKey: "test-key", BaseURL: ts.URL, Model: "kimi-k2.5", DisableThinking: true})
	temp := float32(0.9)
	req := &model.LLMRequest{
		Contents: []*genai.Content{textContent("user", "Summarize the call.")},
		Config:   &genai.GenerateContentConfig{Temperature: &temp},
	}

	if _, err := runGenerate(t, m, req); err != nil {
		t.Fatalf("GenerateContent failed: %v", err)
	}
	if captured.Thinking["type"] != "disabled" {
		t.Errorf("expected thinking disabled, got %v", captured.Thinking)
	}
	if captured.Temperature != nil {
		t.Errorf("expected no temperature in non-thinking mode, got %v", *captured.Temperature)
	}
}

func TestGenerateContentUpstreamError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		w.Write([]byte("bad gateway"))
	}))
	defer ts.Close()

	m := NewModel(Config{APIKey: "test-key", BaseURL: ts.URL})
	req := &model.LLMRequest{Contents: []*genai.Content{textContent("user", "hello")}}

	_, err := runGenerate(t, m, req)
	if err == nil {
		t.Fatal("expected error for upstream 502")
	}
	if !strings.Contains(err.Error(), "status 502") {
		t.Errorf("expected status in error, got %v", err)
	}
}

func TestGenerateContentAPIErrorEnvelope(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"error":{"message":"quota exhausted","type":"rate_limit_reached"}}`))
	}))
	defer ts.Close()

	m := NewModel(Config{APIKey: "test-key", BaseURL: ts.URL})
	req := &model.LLMRequest{Contents: []*genai.Content{textContent("user", "hello")}}

	_, err := runGenerate(t, m, req)
	if err == nil {
		t.Fatal("expected error from error envelope")
	}
	if !strings.Contains(err.Error(), "quota exhausted") {
		t.Errorf("expected envelope message in error, got %v", err)
	}
}

func TestConvertToolsPrefersJSONSchema(t *testing.T) {
	schema := map[string]any{"type": "object", "properties": map[string]any{"accountName": map[string]any{"type": "string"}}}
	req := &model.LLMRequest{
		Config: &genai.GenerateContentConfig{
			Tools: []*genai.Tool{{
				FunctionDeclarations: []*genai.FunctionDeclaration{
					{Name: "LookupAccount", Description: "Finds an account by name.", ParametersJsonSchema: schema},
					{Name: ""},
				},
			}},
		},
	}

	tools := convertTools(req)
	if len(tools) != 1 {
		t.Fatalf("expected nameless declaration skipped, got %d tools", len(tools))
	}
	if tools[0].Function.Name != "LookupAccount" {
		t.Errorf("unexpected tool %+v", tools[0].Function)
	}
	params, ok := tools[0].Function.Parameters.(map[string]any)
	if !ok {
		t.Fatalf("expected schema map, got %T", tools[0].Function.Parameters)
	}
	if params["type"] != "object" {
		t.Errorf("unexpected schema %+v", params)
	}

	if got := convertTools(&model.LLMRequest{}); got != nil {
		t.Errorf("expected nil tools without config, got %+v", got)
	}
}
