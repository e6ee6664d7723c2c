package collector

import (
	"context"
	"fmt"
	"net"
	"os"
	"time"

	"golang.org/x/crypto/ssh"

	"github.com/tailorcast/monitoring-agents-it/agent/internal/config"
)

const sshTimeout = 10 * time.Second

// Runner executes shell commands on a remote server and returns their
// standard output, one entry per command.
type Runner interface {
	Run(ctx context.Context, srv config.VPSServer, cmds ...string) ([]string, error)
}

// SSHRunner opens one SSH connection per Run and authenticates with the
// server's private key.
type SSHRunner struct {
	Timeout time.Duration
}

// Run implements Runner.
func (r SSHRunner) Run(ctx context.Context, srv config.VPSServer, cmds ...string) ([]string, error) {
	timeout := r.Timeout
	if timeout <= 0 {
		timeout = sshTimeout
	}

	key, err := os.ReadFile(srv.SSHKeyPath)
	if err != nil {
		return nil, fmt.Errorf("read ssh key: %w", err)
	}
	signer, err := ssh.ParsePrivateKey(key)
	if err != nil {
		return nil, fmt.Errorf("parse ssh key: %w", err)
	}
	cfg := &ssh.ClientConfig{
		User:            srv.Username,
		Auth:            []ssh.AuthMethod{ssh.PublicKeys(signer)},
		HostKeyCallback: ssh.InsecureIgnoreHostKey(), //nolint:gosec // hosts are operator-listed
		Timeout:         timeout,
	}

	dialCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	var d net.Dialer
	conn, err := d.DialContext(dialCtx, "tcp", srv.Addr())
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", srv.Addr(), err)
	}
	c, chans, reqs, err := ssh.NewClientConn(conn, srv.Addr(), cfg)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("ssh handshake %s: %w", srv.Addr(), err)
	}
	client := ssh.NewClient(c, chans, reqs)
	defer client.Close()

	// Closing the client unblocks any session still waiting on output.
	stop := context.AfterFunc(ctx, func() { client.Close() })
	defer stop()

	out := make([]string, 0, len(cmds))
	for _, cmd := range cmds {
		sess, err := client.NewSession()
		if err != nil {
			return nil, fmt.Errorf("ssh session: %w", err)
		}
		b, err := sess.Output(cmd)
		sess.Close()
		if err != nil {
			if ctx.Err() != nil {
				return nil, fmt.Errorf("%s: %w", cmd, ctx.Err())
			}
			return nil, fmt.Errorf("%s: %w", cmd, err)
		}
		out = append(out, string(b))
	}
	return out, nil
}
