package oracle

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/polycross/relaybot/internal/domain"
)

// PrimaryClient is the REST client for the primary market-data provider.
// Its market document carries a closed flag and a token list with a winner
// marker, gamma-style.
type PrimaryClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewPrimaryClient creates a client for the primary provider.
func NewPrimaryClient(baseURL string) *PrimaryClient {
	return &PrimaryClient{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// Name identifies the provider in logs and resolution records.
func (c *PrimaryClient) Name() string { return "primary" }

// primaryMarket is the provider's market document.
type primaryMarket struct {
	ID     string `json:"id"`
	Closed bool   `json:"closed"`
	Tokens []struct {
		Outcome string `json:"outcome"`
		Winner  bool   `json:"winner"`
	} `json:"tokens"`
}

// MarketReport fetches and normalizes the market document for marketID.
func (c *PrimaryClient) MarketReport(ctx context.Context, marketID string) (Report, error) {
	path := fmt.Sprintf("/markets/%s", url.PathEscape(marketID))

	body, err := c.doGet(ctx, path)
	if err != nil {
		return Report{}, fmt.Errorf("oracle/primary: get market %s: %w", marketID, err)
	}

	var m primaryMarket
	if err := json.Unmarshal(body, &m); err != nil {
		return Report{}, fmt.Errorf("oracle/primary: decode market %s: %w", marketID, err)
	}

	report := Report{MarketID: marketID, Closed: m.Closed, Source: c.Name()}
	if !m.Closed {
		return report, nil
	}

	winner := ""
	for _, t := range m.Tokens {
		if t.Winner {
			if winner != "" {
				return Report{}, fmt.Errorf("%w: market %s reports multiple winners",
					domain.ErrAmbiguousOutcome, marketID)
			}
			winner = t.Outcome
		}
	}
	if winner == "" {
		return Report{}, fmt.Errorf("%w: market %s closed with no winner token",
			domain.ErrAmbiguousOutcome, marketID)
	}

	outcome, err := NormalizeOutcome(winner)
	if err != nil {
		return Report{}, fmt.Errorf("oracle/primary: market %s: %w", marketID, err)
	}
	report.Outcome = outcome
	return report, nil
}

func (c *PrimaryClient) doGet(ctx context.Context, path string) ([]byte, error) {
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
var _ Source = (*PrimaryClient)(nil)
