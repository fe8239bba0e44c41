// Package applicant talks to the external professional registry that is the
// source of truth for applicant identity data. The issuance core never
// caches or retries registry lookups itself.
package applicant

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"

	dErrors "kta/pkg/domain-errors"
)

// Applicant is the registry's view of one professional.
type Applicant struct {
	NationalID        string `json:"national_id"`
	Name              string `json:"name"`
	JobTitle          string `json:"job_title"`
	SubClassification string `json:"sub_classification"`
	Tier              int    `json:"tier"`
}

// Client fetches applicant data from the registry.
type Client interface {
	FetchApplicant(ctx context.Context, nationalID string) (*Applicant, error)
}

// RegistryClient is the HTTP implementation of Client.
type RegistryClient struct {
	http *resty.Client
}

// NewRegistryClient builds a client for the registry at baseURL.
func NewRegistryClient(baseURL string, timeout time.Duration) *RegistryClient {
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	return &RegistryClient{
		http: resty.New().
			SetBaseURL(baseURL).
			SetTimeout(timeout),
	}
}

// FetchApplicant looks up one professional by national id. Unknown ids map to
// CodeNotFound; transport failures and unexpected statuses map to
// CodeUpstreamUnavailable.
func (c *RegistryClient) FetchApplicant(ctx context.Context, nationalID string) (*Applicant, error) {
	var applicant Applicant
	resp, err := c.http.R().
		SetContext(ctx).
		SetResult(&applicant).
		SetPathParam("nationalID", nationalID).
		Get("/api/v1/professionals/{nationalID}")
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeUpstreamUnavailable, "registry unreachable")
	}

	switch resp.StatusCode() {
	case http.StatusOK:
		return &applicant, nil
	case http.StatusNotFound:
		return nil, dErrors.New(dErrors.CodeNotFound, fmt.Sprintf("applicant %s not in registry", nationalID))
	default:
		return nil, dErrors.New(dErrors.CodeUpstreamUnavailable,
			fmt.Sprintf("registry returned status %d", resp.StatusCode()))
	}
}
