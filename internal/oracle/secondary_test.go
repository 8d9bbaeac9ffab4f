package oracle

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/polycross/relaybot/internal/domain"
)

func secondaryServer(t *testing.T, body string) *SecondaryClient {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return NewSecondaryClient(srv.URL)
}

func TestSecondarySettledMarket(t *testing.T) {
	for _, status := range []string{"closed", "settled", "resolved", "SETTLED"} {
		c := secondaryServer(t, `{"id": "m2", "status": "`+status+`", "result": "NO"}`)

		report, err := c.MarketReport(context.Background(), "m2")
		if err != nil {
			t.Fatalf("status %q: %v", status, err)
		}
		if !report.Closed {
			t.Errorf("status %q not treated as closed", status)
		}
		if report.Outcome != domain.OutcomeNo {
			t.Errorf("outcome = %d, want %d", report.Outcome, domain.OutcomeNo)
		}
		if report.Source != "secondary" {
			t.Errorf("source = %q", report.Source)
		}
	}
}

func TestSecondaryOpenMarket(t *testing.T) {
	c := secondaryServer(t, `{"id": "m2", "status": "open", "result": ""}`)

	report, err := c.MarketReport(context.Background(), "m2")
	if err != nil {
		t.Fatalf("report: %v", err)
	}
	if report.Closed {
		t.Error("open market reported closed")
	}
}

func TestSecondaryAmbiguousResult(t *testing.T) {
	c := secondaryServer(t, `{"id": "m2", "status": "closed", "result": "void"}`)

	_, err := c.MarketReport(context.Background(), "m2")
	if !errors.Is(err, domain.ErrAmbiguousOutcome) {
		t.Errorf("err = %v, want ErrAmbiguousOutcome", err)
	}
}
