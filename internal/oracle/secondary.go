package oracle

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// SecondaryClient is the REST client for the fallback market-data provider.
// Its market document is a flat status/result pair, for example
// {"status":"closed","result":"NO"}.
type SecondaryClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewSecondaryClient creates a client for the secondary provider.
func NewSecondaryClient(baseURL string) *SecondaryClient {
	return &SecondaryClient{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// Name identifies the provider in logs and resolution records.
func (c *SecondaryClient) Name() string { return "secondary" }

// secondaryMarket is the provider's market document.
type secondaryMarket struct {
	ID     string `json:"id"`
	Status string `json:"status"` // "open", "closed", "settled"
	Result string `json:"result"` // outcome label, set once closed
}

// MarketReport fetches and normalizes the market document for marketID.
func (c *SecondaryClient) MarketReport(ctx context.Context, marketID string) (Report, error) {
	path := fmt.Sprintf("/markets/%s", url.PathEscape(marketID))

	body, err := c.doGet(ctx, path)
	if err != nil {
		return Report{}, fmt.Errorf("oracle/secondary: get market %s: %w", marketID, err)
	}

	var m secondaryMarket
	if err := json.Unmarshal(body, &m); err != nil {
		return Report{}, fmt.Errorf("oracle/secondary: decode market %s: %w", marketID, err)
	}

	report := Report{MarketID: marketID, Source: c.Name()}
	switch strings.ToLower(m.Status) {
	case "closed", "settled", "resolved":
		report.Closed = true
	default:
		return report, nil
	}

	outcome, err := NormalizeOutcome(m.Result)
	if err != nil {
		return Report{}, fmt.Errorf("oracle/secondary: market %s: %w", marketID, err)
	}
	report.Outcome = outcome
	return report, nil
}

func (c *SecondaryClient) doGet(ctx context.Context, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if err := checkHTTPStatus(resp.StatusCode, body); err != nil {
		return nil, err
	}
	return body, nil
}

// Compile-time interface check.
var _ Source = (*SecondaryClient)(nil)
