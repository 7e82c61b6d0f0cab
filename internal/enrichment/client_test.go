package enrichment

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"dealdesk_backend/platform/logger"
)

type testEnrichmentConfig struct {
	url string
	key string
}

func (c testEnrichmentConfig) GetCompanyAPIURL() string  { return c.url }
func (c testEnrichmentConfig) GetCompanyAPIKey() string  { return c.key }
func (c testEnrichmentConfig) IsEnrichmentEnabled() bool { return c.url != "" }

func newTestClient(serverURL string) *Client {
	return New(testEnrichmentConfig{url: serverURL, key: "test-key"}, logger.New("development"))
}

func TestLookupCompanyReturnsFirstMatch(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/companies/search" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.URL.Query().Get("name"); got != "Acme Corp" {
			t.Errorf("expected name query 'Acme Corp', got %q", got)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("expected bearer auth, got %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"results":[{"name":"Acme Corp","domain":"acme.com","industry":"Manufacturing","size":"201-500","description":"Industrial supplies.","city":"Rotterdam","country":"Netherlands"},{"name":"Acme Ltd"}]}`))
	}))
	defer ts.Close()

	profile, err := newTestClient(ts.URL).LookupCompany(context.Background(), "Acme Corp")
	if err != nil {
		t.Fatalf("LookupCompany failed: %v", err)
	}
	if profile == nil {
		t.Fatal("expected a profile, got nil")
	}
	if profile.Name != "Acme Corp" {
		t.Errorf("expected first match, got %q", profile.Name)
	}
	if profile.Domain != "acme.com" {
		t.Errorf("unexpected domain %q", profile.Domain)
	}
	if profile.Size != "201-500" {
		t.Errorf("unexpected size %q", profile.Size)
	}
	if profile.Location != "Rotterdam, Netherlands" {
		t.Errorf("unexpected location %q", profile.Location)
	}
}

func TestLookupCompanyNoMatch(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"results":[]}`))
	}))
	defer ts.Close()

	profile, err := newTestClient(ts.URL).LookupCompany(context.Background(), "Nobody BV")
	if err != nil {
		t.Fatalf("LookupCompany failed: %v", err)
	}
	if profile != nil {
		t.Fatalf("expected nil profile for empty results, got %+v", profile)
	}
}

func TestLookupCompanyNotFoundStatus(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer ts.Close()

	profile, err := newTestClient(ts.URL).LookupCompany(context.Background(), "Nobody BV")
	if err != nil {
		t.Fatalf("expected 404 to be a miss, got error: %v", err)
	}
	if profile != nil {
		t.Fatalf("expected nil profile on 404, got %+v", profile)
	}
}

func TestLookupCompanyUpstreamError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer ts.Close()

	if _, err := newTestClient(ts.URL).LookupCompany(context.Background(), "Acme Corp"); err == nil {
		t.Fatal("expected error for upstream 502")
	}
}

func TestLookupCompanyPartialPayload(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"results":[{"name":"Acme Corp","country":"Netherlands"}]}`))
	}))
	defer ts.Close()

	profile, err := newTestClient(ts.URL).LookupCompany(context.Background(), "Acme Corp")
	if err != nil {
		t.Fatalf("LookupCompany failed: %v", err)
	}
	if profile.Location != "Netherlands" {
		t.Errorf("expected country-only location, got %q", profile.Location)
	}
	if profile.Domain != "" || profile.Industry != "" {
		t.Errorf("expected empty fields for missing keys, got %+v", profile)
	}
}
