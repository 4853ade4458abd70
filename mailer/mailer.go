package mailer

import (
	"context"
	"crypto/tls"
	"fmt"
	"mime"
	"net"
	"net/smtp"
	"strings"
	"time"

	"github.com/mlindgren/outreach/bulk"
	"github.com/mlindgren/outreach/resilience"
)

// OpName keys the send operation in fallback registries and stats.
const OpName = "send_email"

// Message is one outgoing email.
type Message struct {
	To      string
	Subject string
	Body    string
}

// Delivery is the per-recipient outcome of a send.
type Delivery struct {
	To      string
	Subject string
	SentAt  time.Time
	// Error is empty when the message was accepted by the server.
	Error string
}

// Config configures the SMTP transport.
type Config struct {
	Host     string
	Port     int // Default: 587
	Username string
	Password string
	From     string
	FromName string
	// Timeout bounds the connection attempt.
	// Default: 30s
	Timeout time.Duration
}

// Transport submits one composed message. Implementations classify
// failures with resilience error kinds at this boundary.
type Transport func(ctx context.Context, from, to string, raw []byte) error

// Mailer composes and sends email.
type Mailer struct {
	config    Config
	transport Transport
	resOpts   []resilience.ResilientOption
}

// Option configures a Mailer.
type Option func(*Mailer)

// WithTransport replaces the SMTP transport, for tests or relays.
func WithTransport(t Transport) Option {
	return func(m *Mailer) {
		m.transport = t
	}
}

// WithResilience sets the resilience wrappers applied around each send
// during a bulk run.
func WithResilience(opts ...resilience.ResilientOption) Option {
	return func(m *Mailer) {
		m.resOpts = opts
	}
}

// New creates a Mailer. Host and From are required.
func New(config Config, opts ...Option) (*Mailer, error) {
	if config.Host == "" {
		return nil, resilience.NewError(resilience.KindValidation, OpName, "SMTP host is required")
	}
	if config.From == "" {
		return nil, resilience.NewError(resilience.KindValidation, OpName, "sender address is required")
	}
	if config.Port <= 0 {
		config.Port = 587
	}
	if config.Timeout <= 0 {
		config.Timeout = 30 * time.Second
	}

	m := &Mailer{config: config}
	for _, opt := range opts {
		opt(m)
	}
	if m.transport == nil {
		m.transport = smtpTransport(m.config)
	}
	return m, nil
}

// Send composes and transmits one message.
func (m *Mailer) Send(ctx context.Context, msg Message) (Delivery, error) {
	if !strings.Contains(msg.To, "@") {
		return Delivery{}, resilience.NewError(resilience.KindValidation, OpName,
			"invalid recipient address %q", msg.To)
	}

	raw := compose(m.config, msg)
	if err := m.transport(ctx, m.config.From, msg.To, raw); err != nil {
		return Delivery{}, err
	}

	return Delivery{
		To:      msg.To,
		Subject: msg.Subject,
		SentAt:  time.Now().UTC(),
	}, nil
}

// SendAll sends every message under the given bulk configuration. It
// returns a delivery status per recipient (failures included), the
// accounting summary, and a run-level error only when the run was
// cancelled. All retry and backoff behavior lives in the resilience
// wrappers; none is duplicated here.
func (m *Mailer) SendAll(ctx context.Context, msgs []Message, bulkConfig bulk.Config) ([]Delivery, bulk.Result, error) {
	op := resilience.NewResilient(OpName, m.Send, m.resOpts...)
	runner := bulk.NewRunner(bulkConfig, op,
		bulk.WithLabel[Message](func(msg Message) string { return msg.To }),
	)

	deliveries, result, err := runner.Run(ctx, msgs)
	for _, item := range result.FailedItems {
		deliveries = append(deliveries, Delivery{To: item.Item, Error: item.Reason})
	}
	return deliveries, result, err
}

// compose renders the message with headers, CRLF line endings and a
// MIME-encoded subject.
func compose(config Config, msg Message) []byte {
	from := config.From
	if config.FromName != "" {
		from = fmt.Sprintf("%s <%s>", config.FromName, config.From)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", from)
	fmt.Fprintf(&b, "To: %s\r\n", msg.To)
	fmt.Fprintf(&b, "Subject: %s\r\n", mime.QEncoding.Encode("utf-8", msg.Subject))
	fmt.Fprintf(&b, "Date: %s\r\n", time.Now().UTC().Format(time.RFC1123Z))
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=\"utf-8\"\r\n")
	b.WriteString("\r\n")
	b.WriteString(msg.Body)
	b.WriteString("\r\n")
	return []byte(b.String())
}

// smtpTransport connects, upgrades to TLS when offered, authenticates
// and submits the message. Errors are classified at this boundary so the
// resilience layer never has to sniff SMTP error text.
func smtpTransport(config Config) Transport {
	addr := fmt.Sprintf("%s:%d", config.Host, config.Port)

	return func(ctx context.Context, from, to string, raw []byte) error {
		dialer := net.Dialer{Timeout: config.Timeout}
		conn, err := dialer.DialContext(ctx, "tcp", addr)
		if err != nil {
			return resilience.WrapError(resilience.KindNetwork, OpName, err)
		}

		client, err := smtp.NewClient(conn, config.Host)
		if err != nil {
			conn.Close()
			return resilience.WrapError(resilience.KindNetwork, OpName, err)
		}
		defer client.Quit()

		if ok, _ := client.Extension("STARTTLS"); ok {
			if err := client.StartTLS(&tls.Config{ServerName: config.Host}); err != nil {
				return resilience.WrapError(resilience.KindNetwork, OpName, err)
			}
		}

		if config.Username != "" {
			auth := smtp.PlainAuth("", config.Username, config.Password, config.Host)
			if err := client.Auth(auth); err != nil {
				return resilience.WrapError(resilience.KindAuth, OpName, err)
			}
		}

		if err := client.Mail(from); err != nil {
			return resilience.WrapError(resilience.KindUnavailable, OpName, err)
		}
		if err := client.Rcpt(to); err != nil {
			return resilience.WrapError(resilience.KindUnavailable, OpName, err)
		}

		w, err := client.Data()
		if err != nil {
			return resilience.WrapError(resilience.KindUnavailable, OpName, err)
		}
		if _, err := w.Write(raw); err != nil {
			w.Close()
			return resilience.WrapError(resilience.KindNetwork, OpName, err)
		}
		if err := w.Close(); err != nil {
			return resilience.WrapError(resilience.KindUnavailable, OpName, err)
		}

		return nil
	}
}
