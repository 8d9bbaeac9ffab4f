// Package oracle provides clients for the external market-data providers
// the resolution bot polls for outcome determinations, and the fallback
// chain that tries the secondary provider when the primary fails.
package oracle

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/polycross/relaybot/internal/domain"
)

// Report is the normalized view of one market's status from a provider.
// Outcome is meaningful only when Closed is true.
type Report struct {
	MarketID string
	Closed   bool
	Outcome  int64
	Source   string
}

// Source is one provider of market outcome data.
type Source interface {
	Name() string
	MarketReport(ctx context.Context, marketID string) (Report, error)
}

// NormalizeOutcome maps a provider outcome label to the numeric settlement
// value. Unrecognized labels return domain.ErrAmbiguousOutcome; an outcome
// is never guessed.
func NormalizeOutcome(label string) (int64, error) {
	switch strings.ToLower(strings.TrimSpace(label)) {
	case "yes", "y", "true", "1":
		return domain.OutcomeYes, nil
	case "no", "n", "false", "0":
		return domain.OutcomeNo, nil
	default:
		return 0, fmt.Errorf("%w: outcome label %q", domain.ErrAmbiguousOutcome, label)
	}
}

// checkHTTPStatus maps an HTTP response code to a domain error.
func checkHTTPStatus(statusCode int, body []byte) error {
	if statusCode >= 200 && statusCode < 300 {
		return nil
	}

	bodyStr := string(body)
	switch statusCode {
	case http.StatusNotFound:
		return fmt.Errorf("%w: %s", domain.ErrNotFound, bodyStr)
	case http.StatusTooManyRequests:
		return fmt.Errorf("%w: %s", domain.ErrRateLimited, bodyStr)
	default:
		return fmt.Errorf("HTTP %d: %s", statusCode, bodyStr)
	}
}
