// Package smtp submits rendered messages to the provider's submission
// endpoint. Per-recipient failures surface as DeliveryError and never
// abort a batch; authentication and connection failures surface as
// AuthError and end the run.
package smtp

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"time"

	gosmtp "github.com/emersion/go-smtp"

	"github.com/foxzi/mailmerge/internal/auth"
)

// Config contains submission endpoint settings.
type Config struct {
	Host    string
	SSLPort int
	TLSPort int
	Timeout time.Duration
}

// Client maintains one authenticated submission connection for the
// duration of a batch run.
type Client struct {
	cfg    Config
	logger *slog.Logger
	conn   *gosmtp.Client
}

// NewClient creates a submission client. Zero config fields get the
// usual submission defaults.
func NewClient(cfg Config, logger *slog.Logger) *Client {
	if cfg.SSLPort == 0 {
		cfg.SSLPort = 465
	}
	if cfg.TLSPort == 0 {
		cfg.TLSPort = 587
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 15 * time.Second
	}
	return &Client{cfg: cfg, logger: logger}
}

// Connect dials the provider and authenticates. Implicit TLS on the SSL
// port is tried first; any non-auth failure falls back to STARTTLS on
// the submission port. Authentication errors never fall back: the
// credentials are wrong on every port.
func (c *Client) Connect(ctx context.Context, creds *auth.Credentials) error {
	saslClient, err := creds.SASLClient(ctx)
	if err != nil {
		return &AuthError{Message: err.Error()}
	}

	conn, err := c.dialTLS(ctx)
	if err == nil {
		if authErr := conn.Auth(saslClient); authErr != nil {
			conn.Close()
			return &AuthError{Message: fmt.Sprintf("authentication failed: %v", authErr)}
		}
		c.conn = conn
		return nil
	}
	c.logger.Debug("implicit TLS connection failed, falling back to STARTTLS",
		"port", c.cfg.SSLPort,
		"error", err,
	)

	conn, err = c.dialStartTLS(ctx)
	if err != nil {
		return &AuthError{Message: fmt.Sprintf("connection failed: %v", err)}
	}
	if authErr := conn.Auth(saslClient); authErr != nil {
		conn.Close()
		return &AuthError{Message: fmt.Sprintf("authentication failed: %v", authErr)}
	}
	c.conn = conn
	return nil
}

// Send submits one message on the live connection.
func (c *Client) Send(ctx context.Context, msg *Message) error {
	if c.conn == nil {
		return &AuthError{Message: "not connected"}
	}

	data, err := msg.BuildMIME()
	if err != nil {
		return &DeliveryError{Message: fmt.Sprintf("failed to build message: %v", err)}
	}

	if err := c.conn.Mail(msg.From, nil); err != nil {
		// Leave the session clean for the next candidate.
		c.conn.Reset()
		return categorizeError(err, "MAIL FROM")
	}
	if err := c.conn.Rcpt(msg.To, nil); err != nil {
		c.conn.Reset()
		return categorizeError(err, fmt.Sprintf("RCPT TO %s", msg.To))
	}

	w, err := c.conn.Data()
	if err != nil {
		return categorizeError(err, "DATA")
	}
	if _, err := w.Write(data); err != nil {
		w.Close()
		return categorizeError(err, "DATA write")
	}
	if err := w.Close(); err != nil {
		return categorizeError(err, "DATA close")
	}

	return nil
}

// Close quits the session.
func (c *Client) Close() error {
	if c.conn == nil {
		return nil
	}
	err := c.conn.Quit()
	c.conn = nil
	return err
}

// TestConnection verifies that the provider accepts the credentials,
// then disconnects. Used before a run and by the CLI.
func (c *Client) TestConnection(ctx context.Context, creds *auth.Credentials) (bool, string) {
	if err := c.Connect(ctx, creds); err != nil {
		return false, err.Error()
	}
	c.Close()
	return true, "connection successful"
}

func (c *Client) dialTLS(ctx context.Context) (*gosmtp.Client, error) {
	addr := net.JoinHostPort(c.cfg.Host, strconv.Itoa(c.cfg.SSLPort))
	dialer := &tls.Dialer{
		NetDialer: &net.Dialer{Timeout: c.cfg.Timeout},
		Config:    &tls.Config{ServerName: c.cfg.Host, MinVersion: tls.VersionTLS12},
	}

	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("connection failed to %s: %w", addr, err)
	}

	client := gosmtp.NewClient(conn)
	client.CommandTimeout = c.cfg.Timeout
	if err := client.Hello("localhost"); err != nil {
		client.Close()
		return nil, fmt.Errorf("EHLO failed: %w", err)
	}
	return client, nil
}

func (c *Client) dialStartTLS(ctx context.Context) (*gosmtp.Client, error) {
	addr := net.JoinHostPort(c.cfg.Host, strconv.Itoa(c.cfg.TLSPort))
	dialer := &net.Dialer{Timeout: c.cfg.Timeout}

	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("connection failed to %s: %w", addr, err)
	}

	client, err := gosmtp.NewClientStartTLS(conn, &tls.Config{ServerName: c.cfg.Host, MinVersion: tls.VersionTLS12})
	if err != nil {
		return nil, fmt.Errorf("STARTTLS failed: %w", err)
	}
	client.CommandTimeout = c.cfg.Timeout
	return client, nil
}
