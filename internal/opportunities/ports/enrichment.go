package ports

import "context"

// CompanyProfile is the external company data the research agent can pull in.
type CompanyProfile struct {
	Name        string
	Domain      string
	Industry    string
	Size        string
	Description string
	Location    string
}

// CompanyLookup queries an external enrichment provider by company name.
// Implementations return (nil, nil) when the provider has no match.
type CompanyLookup interface {
	LookupCompany(ctx context.Context, name string) (*CompanyProfile, error)
}
