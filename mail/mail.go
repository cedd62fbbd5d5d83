// Package mail sends outbound email through an SMTP relay.
// It wraps github.com/wneessen/go-mail; every Send opens its own connection.
package mail

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	gomail "github.com/wneessen/go-mail"
)

// TLS policies accepted by Config.TLSPolicy.
const (
	TLSMandatory     = "mandatory"
	TLSOpportunistic = "opportunistic"
	TLSNone          = "none"
)

// ErrNoRecipients is returned when a message has no To address.
var ErrNoRecipients = errors.New("mail: no recipients specified")

// Config holds SMTP relay settings.
type Config struct {
	// Host is the relay hostname (e.g. "smtp.gmail.com").
	Host string

	// Port is the relay port, 587 for STARTTLS.
	Port int

	// Username and Password authenticate with SMTP PLAIN. Username is also
	// the From address.
	Username string
	Password string

	// FromName is the display name wrapped around Username.
	FromName string

	// TLSPolicy is one of TLSMandatory, TLSOpportunistic or TLSNone.
	TLSPolicy string

	// Timeout bounds a whole Send or Ping, from dial to QUIT (default 30s).
	Timeout time.Duration
}

// Message is one outbound email.
type Message struct {
	To       []string
	Subject  string
	TextBody string
	HTMLBody string
	ReplyTo  string
}

// Sender sends messages using the configured relay.
type Sender struct {
	cfg    Config
	policy gomail.TLSPolicy
}

// NewSender validates cfg and returns a Sender.
func NewSender(cfg Config) (*Sender, error) {
	if strings.TrimSpace(cfg.Host) == "" {
		return nil, errors.New("mail: host is required")
	}
	if cfg.Port == 0 {
		cfg.Port = 587
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	policy, err := ParseTLSPolicy(cfg.TLSPolicy)
	if err != nil {
		return nil, err
	}
	return &Sender{cfg: cfg, policy: policy}, nil
}

// ParseTLSPolicy maps a config string to a go-mail TLS policy. Empty means
// mandatory.
func ParseTLSPolicy(s string) (gomail.TLSPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", TLSMandatory:
		return gomail.TLSMandatory, nil
	case TLSOpportunistic:
		return gomail.TLSOpportunistic, nil
	case TLSNone:
		return gomail.NoTLS, nil
	default:
		return gomail.NoTLS, fmt.Errorf("mail: unknown tls policy %q (want %s, %s or %s)",
			s, TLSMandatory, TLSOpportunistic, TLSNone)
	}
}

// BuildMsg converts msg into a go-mail message with the configured sender.
// When both bodies are set the HTML part is added as an alternative.
func (s *Sender) BuildMsg(msg Message) (*gomail.Msg, error) {
	if len(msg.To) == 0 {
		return nil, ErrNoRecipients
	}
	if msg.TextBody == "" && msg.HTMLBody == "" {
		return nil, errors.New("mail: message body is empty")
	}

	m := gomail.NewMsg()
	if s.cfg.FromName != "" {
		if err := m.FromFormat(s.cfg.FromName, s.cfg.Username); err != nil {
			return nil, fmt.Errorf("mail: invalid from address: %w", err)
		}
	} else if err := m.From(s.cfg.Username); err != nil {
		return nil, fmt.Errorf("mail: invalid from address: %w", err)
	}
	if err := m.To(msg.To...); err != nil {
		return nil, fmt.Errorf("mail: invalid to address: %w", err)
	}
	if msg.ReplyTo != "" {
		// Reply-To is copied from visitor input and may not parse as an
		// address; keep it verbatim unless it could inject headers.
		if strings.ContainsAny(msg.ReplyTo, "\r\n") {
			return nil, errors.New("mail: reply-to contains a line break")
		}
		if err := m.ReplyTo(msg.ReplyTo); err != nil {
			m.SetGenHeader(gomail.Header(gomail.HeaderReplyTo), msg.ReplyTo)
		}
	}
	m.Subject(msg.Subject)

	switch {
	case msg.TextBody != "" && msg.HTMLBody != "":
		m.SetBodyString(gomail.TypeTextPlain, msg.TextBody)
		m.AddAlternativeString(gomail.TypeTextHTML, msg.HTMLBody)
	case msg.HTMLBody != "":
		m.SetBodyString(gomail.TypeTextHTML, msg.HTMLBody)
	default:
		m.SetBodyString(gomail.TypeTextPlain, msg.TextBody)
	}
	return m, nil
}

// Send dials the relay, authenticates, hands over msg and disconnects.
func (s *Sender) Send(ctx context.Context, msg Message) error {
	m, err := s.BuildMsg(msg)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()
	c, err := s.client(ctx)
	if err != nil {
		return err
	}
	if err := c.DialAndSendWithContext(ctx, m); err != nil {
		return fmt.Errorf("mail: failed to send: %w", err)
	}
	return nil
}

// Ping dials and authenticates against the relay without sending anything.
func (s *Sender) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()
	c, err := s.client(ctx)
	if err != nil {
		return err
	}
	if err := c.DialWithContext(ctx); err != nil {
		return fmt.Errorf("mail: relay unreachable: %w", err)
	}
	return c.Close()
}

// client builds a go-mail client whose connection never outlives ctx's
// deadline. go-mail only applies its timeout per command, and not at all
// to the greeting, so the conn itself clamps every deadline it is given.
func (s *Sender) client(ctx context.Context) (*gomail.Client, error) {
	deadline, _ := ctx.Deadline()
	dial := func(ctx context.Context, network, address string) (net.Conn, error) {
		var d net.Dialer
		conn, err := d.DialContext(ctx, network, address)
		if err != nil {
			return nil, err
		}
		return newDeadlineConn(conn, deadline), nil
	}
	opts := []gomail.Option{
		gomail.WithPort(s.cfg.Port),
		gomail.WithTimeout(s.cfg.Timeout),
		gomail.WithTLSPolicy(s.policy),
		gomail.WithDialContextFunc(dial),
	}
	if s.cfg.Username != "" {
		opts = append(opts,
			gomail.WithSMTPAuth(gomail.SMTPAuthPlain),
			gomail.WithUsername(s.cfg.Username),
			gomail.WithPassword(s.cfg.Password),
		)
	}
	c, err := gomail.NewClient(s.cfg.Host, opts...)
	if err != nil {
		return nil, fmt.Errorf("mail: failed to create client: %w", err)
	}
	return c, nil
}

// deadlineConn caps every read and write deadline at limit.
type deadlineConn struct {
	net.Conn
	limit time.Time
}

func newDeadlineConn(conn net.Conn, limit time.Time) net.Conn {
	if limit.IsZero() {
		return conn
	}
	dc := &deadlineConn{Conn: conn, limit: limit}
	_ = conn.SetDeadline(limit)
	return dc
}

func (c *deadlineConn) clamp(t time.Time) time.Time {
	if t.IsZero() || t.After(c.limit) {
		return c.limit
	}
	return t
}

func (c *deadlineConn) SetDeadline(t time.Time) error {
	return c.Conn.SetDeadline(c.clamp(t))
}

func (c *deadlineConn) SetReadDeadline(t time.Time) error {
	return c.Conn.SetReadDeadline(c.clamp(t))
}

func (c *deadlineConn) SetWriteDeadline(t time.Time) error {
	return c.Conn.SetWriteDeadline(c.clamp(t))
}
