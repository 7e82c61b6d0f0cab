// Package enrichment provides the HTTP client for the external company
// profile API. The research agent uses it to pull firmographic data for the
// account it is writing a brief about.
package enrichment

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"dealdesk_backend/internal/opportunities/ports"
	"dealdesk_backend/platform/config"
	"dealdesk_backend/platform/logger"
)

const defaultHTTPTimeout = 10 * time.Second

// Client is the HTTP client for the company profile API.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	log        *logger.Logger
}

var _ ports.CompanyLookup = (*Client)(nil)

// New creates a company lookup client from the enrichment settings.
func New(cfg config.EnrichmentConfig, log *logger.Logger) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: defaultHTTPTimeout},
		baseURL:    strings.TrimRight(cfg.GetCompanyAPIURL(), "/"),
		apiKey:     cfg.GetCompanyAPIKey(),
		log:        log,
	}
}

// LookupCompany fetches the profile for a company name. The first match wins;
// a provider miss is (nil, nil) so the caller can tell "no such company" from
// a failed request.
func (c *Client) LookupCompany(ctx context.Context, name string) (*ports.CompanyProfile, error) {
	params := url.Values{}
	params.Set("name", name)
	params.Set("limit", "1")

	reqURL := fmt.Sprintf("%s/v1/companies/search?%s", c.baseURL, params.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.log.Error("company lookup request failed", "error", err, "name", name)
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		// Success - continue to decode
	case http.StatusNotFound:
		// Provider has no profile for this name - not an error
		c.log.Debug("company lookup no match", "name", name)
		return nil, nil
	case http.StatusUnauthorized:
		c.log.Error("company lookup unauthorized", "status", resp.StatusCode)
		return nil, fmt.Errorf("unauthorized: invalid API key")
	case http.StatusTooManyRequests:
		c.log.Warn("company lookup rate limited", "name", name)
		return nil, fmt.Errorf("rate limited: status %d", resp.StatusCode)
	default:
		c.log.Error("company lookup upstream error", "status", resp.StatusCode)
		return nil, fmt.Errorf("upstream error: status %d", resp.StatusCode)
	}

	var payload searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		c.log.Error("company lookup decode failed", "error", err)
		return nil, fmt.Errorf("decode response: %w", err)
	}

	if len(payload.Results) == 0 {
		return nil, nil
	}

	return payload.Results[0].toProfile(), nil
}

type searchResponse struct {
	Results []apiCompany `json:"results"`
}

// apiCompany is the raw match from the company profile API.
type apiCompany struct {
	Name        *string `json:"name"`
	Domain      *string `json:"domain"`
	Industry    *string `json:"industry"`
	Size        *string `json:"size"` // employee range, e.g. "51-200"
	Description *string `json:"description"`
	City        *string `json:"city"`
	Country     *string `json:"country"`
}

func (a *apiCompany) toProfile() *ports.CompanyProfile {
	profile := &ports.CompanyProfile{}

	if a.Name != nil {
		profile.Name = *a.Name
	}
	if a.Domain != nil {
		profile.Domain = *a.Domain
	}
	if a.Industry != nil {
		profile.Industry = *a.Industry
	}
	if a.Size != nil {
		profile.Size = *a.Size
	}
	if a.Description != nil {
		profile.Description = *a.Description
	}

	var parts []string
	if a.City != nil && *a.City != "" {
		parts = append(parts, *a.City)
	}
	if a.Country != nil && *a.Country != "" {
		parts = append(parts, *a.Country)
	}
	profile.Location = strings.Join(parts, ", ")

	return profile
}
