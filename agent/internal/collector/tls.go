package collector

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"math"
	"net"
	"time"

	"github.com/tailorcast/monitoring-agents-it/agent/internal/config"
	"github.com/tailorcast/monitoring-agents-it/agent/internal/threshold"
	"github.com/tailorcast/monitoring-agents-it/pkg/types"
)

const tlsDialTimeout = 10 * time.Second

// TLS tracks certificate expiry of TLS endpoints.
type TLS struct {
	endpoints []config.TLSEndpoint
	set       threshold.Set
	now       func() time.Time
	logger    *slog.Logger
}

// NewTLS returns the tls collector.
func NewTLS(endpoints []config.TLSEndpoint, set threshold.Set, logger *slog.Logger) *TLS {
	return &TLS{endpoints: endpoints, set: set, now: time.Now, logger: logger}
}

// Name implements Collector.
func (c *TLS) Name() string { return NameTLS }

// Collect implements Collector.
func (c *TLS) Collect(ctx context.Context) ([]types.Observation, error) {
	c.logger.Info("collector: checking tls endpoints", "count", len(c.endpoints))
	return fanOut(ctx, c.endpoints, c.check), nil
}

// check dials the endpoint and inspects the leaf certificate.
func (c *TLS) check(ctx context.Context, ep config.TLSEndpoint) types.Observation {
	addr := ep.Address
	if _, _, err := net.SplitHostPort(addr); err != nil {
		// No explicit port: append the HTTPS default.
		addr = net.JoinHostPort(addr, "443")
	}
	host, _, _ := net.SplitHostPort(addr)
	serverName := ep.ServerName
	if serverName == "" {
		serverName = host
	}
	base := types.Metrics{{Key: "address", Value: addr}}

	dialCtx, cancel := context.WithTimeout(ctx, tlsDialTimeout)
	defer cancel()
	dialer := &tls.Dialer{
		NetDialer: &net.Dialer{},
		Config: &tls.Config{
			ServerName:         serverName,
			InsecureSkipVerify: ep.InsecureSkipVerify, //nolint:gosec // user-configured
		},
	}
	netConn, err := dialer.DialContext(dialCtx, "tcp", addr)
	if err != nil {
		return types.Failed(NameTLS, ep.Name, types.SeverityRed, base, "Handshake failed: "+err.Error(), err)
	}
	conn := netConn.(*tls.Conn)
	defer conn.Close()

	certs := conn.ConnectionState().PeerCertificates
	if len(certs) == 0 {
		return types.Failed(NameTLS, ep.Name, types.SeverityRed, base, "No peer certificate",
			fmt.Errorf("%s presented no certificate", addr))
	}
	leaf := certs[0]
	daysLeft := int(math.Floor(leaf.NotAfter.Sub(c.now()).Hours() / 24))

	sev := threshold.Evaluate(c.set, threshold.FamilyCertDays, float64(daysLeft), threshold.LowerIsWorse)
	msg := fmt.Sprintf("Certificate expires in %d days", daysLeft)
	if daysLeft <= 0 {
		msg = "Certificate expired"
	}
	return types.NewObservation(NameTLS, ep.Name, sev, types.Metrics{
		{Key: "days_left", Value: daysLeft},
		{Key: "not_after", Value: leaf.NotAfter.UTC().Format(time.RFC3339)},
		{Key: "issuer", Value: leaf.Issuer.CommonName},
		{Key: "address", Value: addr},
	}, msg)
}
