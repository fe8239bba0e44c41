// Package artifact talks to the external document-rendering service that
// lays out card and invoice PDFs. Rendering is deterministic for identical
// inputs, which is what makes regeneration safe to retry.
package artifact

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"

	dErrors "kta/pkg/domain-errors"
)

// CardSnapshot is everything the renderer needs to lay out one card.
type CardSnapshot struct {
	Serial            string `json:"serial"`
	NationalID        string `json:"national_id"`
	Name              string `json:"name"`
	JobTitle          string `json:"job_title"`
	SubClassification string `json:"sub_classification"`
	Tier              int    `json:"tier"`
	RegionCode        string `json:"region_code"`
}

// InvoiceLine is one request's entry on a batch invoice.
type InvoiceLine struct {
	RequestID  string `json:"request_id"`
	Name       string `json:"name"`
	FinalPrice int64  `json:"final_price"`
}

// InvoiceSnapshot is everything the renderer needs to lay out one invoice.
type InvoiceSnapshot struct {
	InvoiceNumber string        `json:"invoice_number"`
	RegionCode    string        `json:"region_code"`
	TotalCount    int           `json:"total_count"`
	TotalAmount   int64         `json:"total_amount"`
	Lines         []InvoiceLine `json:"lines"`
}

// Renderer produces printable artifacts and returns opaque references to
// them.
type Renderer interface {
	RenderCard(ctx context.Context, snapshot CardSnapshot) (string, error)
	RenderInvoice(ctx context.Context, snapshot InvoiceSnapshot) (string, error)
}

type renderResponse struct {
	ArtifactRef string `json:"artifact_ref"`
}

// RendererClient is the HTTP implementation of Renderer.
type RendererClient struct {
	http *resty.Client
}

// NewRendererClient builds a client for the renderer at baseURL.
func NewRendererClient(baseURL string, timeout time.Duration) *RendererClient {
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	return &RendererClient{
		http: resty.New().
			SetBaseURL(baseURL).
			SetTimeout(timeout),
	}
}

func (c *RendererClient) RenderCard(ctx context.Context, snapshot CardSnapshot) (string, error) {
	return c.render(ctx, "/api/v1/render/card", snapshot)
}

func (c *RendererClient) RenderInvoice(ctx context.Context, snapshot InvoiceSnapshot) (string, error) {
	return c.render(ctx, "/api/v1/render/invoice", snapshot)
}

func (c *RendererClient) render(ctx context.Context, path string, body any) (string, error) {
	var result renderResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(body).
		SetResult(&result).
		Post(path)
	if err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeUpstreamUnavailable, "renderer unreachable")
	}
	if resp.StatusCode() != http.StatusOK {
		return "", dErrors.New(dErrors.CodeUpstreamUnavailable,
			fmt.Sprintf("renderer returned status %d", resp.StatusCode()))
	}
	if result.ArtifactRef == "" {
		return "", dErrors.New(dErrors.CodeUpstreamUnavailable, "renderer returned empty artifact reference")
	}
	return result.ArtifactRef, nil
}
