package collector

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/tailorcast/monitoring-agents-it/agent/internal/config"
	"github.com/tailorcast/monitoring-agents-it/agent/internal/threshold"
	"github.com/tailorcast/monitoring-agents-it/pkg/types"
)

func TestTLS_DaysLeft(t *testing.T) {
	srv := httptest.NewTLSServer(http.NotFoundHandler())
	defer srv.Close()
	notAfter := srv.Certificate().NotAfter

	tests := []struct {
		name string
		left time.Duration
		want types.Severity
	}{
		{"healthy", 90 * 24 * time.Hour, types.SeverityGreen},
		{"expiring", 20*24*time.Hour + time.Hour, types.SeverityYellow},
		{"urgent", 5*24*time.Hour + time.Hour, types.SeverityRed},
		{"expired", -24 * time.Hour, types.SeverityRed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewTLS([]config.TLSEndpoint{{
				Name:               "site",
				Address:            srv.Listener.Addr().String(),
				InsecureSkipVerify: true,
			}}, threshold.Default(), testLogger())
			c.now = func() time.Time { return notAfter.Add(-tt.left) }

			obs, _ := c.Collect(context.Background())
			if obs[0].HasError() {
				t.Fatalf("unexpected error: %s", obs[0].Error)
			}
			if obs[0].Severity != tt.want {
				t.Errorf("severity = %v, want %v (%s)", obs[0].Severity, tt.want, obs[0].Message)
			}
		})
	}
}

func TestTLS_HandshakeFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	c := NewTLS([]config.TLSEndpoint{{Name: "plain", Address: srv.Listener.Addr().String()}},
		threshold.Default(), testLogger())
	obs, _ := c.Collect(context.Background())
	if obs[0].Severity != types.SeverityRed || !obs[0].HasError() {
		t.Errorf("obs = %+v", obs[0])
	}
}
