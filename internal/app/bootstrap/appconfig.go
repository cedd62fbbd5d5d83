package bootstrap

import (
	"errors"
	"fmt"
	netmail "net/mail"
	"strings"
	"time"

	"github.com/dalemusser/portfolio/config"
	"github.com/dalemusser/portfolio/mail"
)

// EnvPrefix maps app keys to environment variables, e.g. CONTACT_MAIL_USER.
const EnvPrefix = "CONTACT"

// AppKeys are the contact service settings, read with the same precedence
// as the core config.
var AppKeys = []config.AppKey{
	{Name: "mail_host", Default: "smtp.gmail.com", Desc: "SMTP relay host"},
	{Name: "mail_port", Default: 587, Desc: "SMTP relay port (STARTTLS)"},
	{Name: "mail_user", Default: "", Desc: "relay account; also the From address"},
	{Name: "mail_password", Default: "", Desc: "relay account secret", Secret: true},
	{Name: "mail_to", Default: "", Desc: "address that receives contact messages"},
	{Name: "mail_from_name", Default: "Portfolio Contact", Desc: "From display name"},
	{Name: "mail_tls_policy", Default: mail.TLSMandatory, Desc: "mandatory, opportunistic or none"},
	{Name: "mail_timeout", Default: "30s", Desc: "bound on one whole relay session, dial to QUIT"},
	{Name: "mail_ready_interval", Default: "60s", Desc: "how long /ready reuses its last relay check"},
	{Name: "mail_verify_on_start", Default: false, Desc: "dial and authenticate with the relay at startup"},
}

// AppConfig is loaded once at startup and never mutated.
type AppConfig struct {
	MailHost      string
	MailPort      int
	MailUser      string
	MailPassword  string
	MailTo        string
	MailFromName  string
	MailTLSPolicy string
	MailTimeout   time.Duration
	ReadyInterval time.Duration
	VerifyOnStart bool
}

// NewAppConfig builds and validates an AppConfig from loaded values.
func NewAppConfig(vals config.AppConfigValues) (AppConfig, error) {
	cfg := AppConfig{
		MailHost:      strings.TrimSpace(vals.String("mail_host")),
		MailPort:      vals.Int("mail_port"),
		MailUser:      strings.TrimSpace(vals.String("mail_user")),
		MailPassword:  vals.String("mail_password"),
		MailTo:        strings.TrimSpace(vals.String("mail_to")),
		MailFromName:  vals.String("mail_from_name"),
		MailTLSPolicy: vals.String("mail_tls_policy"),
		MailTimeout:   vals.Duration("mail_timeout", 30*time.Second),
		ReadyInterval: vals.Duration("mail_ready_interval", 60*time.Second),
		VerifyOnStart: vals.Bool("mail_verify_on_start"),
	}
	return cfg, cfg.validate()
}

func (c AppConfig) validate() error {
	var errs []error
	if c.MailHost == "" {
		errs = append(errs, errors.New("mail_host is required"))
	}
	if c.MailPort < 1 || c.MailPort > 65535 {
		errs = append(errs, fmt.Errorf("mail_port must be in 1..65535 (got %d)", c.MailPort))
	}
	if c.MailUser == "" {
		errs = append(errs, fmt.Errorf("mail_user is required (set %s_MAIL_USER)", EnvPrefix))
	} else if _, err := netmail.ParseAddress(c.MailUser); err != nil {
		errs = append(errs, fmt.Errorf("mail_user %q is not an email address", c.MailUser))
	}
	if c.MailPassword == "" {
		errs = append(errs, fmt.Errorf("mail_password is required (set %s_MAIL_PASSWORD)", EnvPrefix))
	}
	if c.MailTo == "" {
		errs = append(errs, fmt.Errorf("mail_to is required (set %s_MAIL_TO)", EnvPrefix))
	} else if _, err := netmail.ParseAddress(c.MailTo); err != nil {
		errs = append(errs, fmt.Errorf("mail_to %q is not an email address", c.MailTo))
	}
	if _, err := mail.ParseTLSPolicy(c.MailTLSPolicy); err != nil {
		errs = append(errs, err)
	}
	if c.MailTimeout <= 0 {
		errs = append(errs, fmt.Errorf("mail_timeout must be positive (got %s)", c.MailTimeout))
	}
	return errors.Join(errs...)
}

// checkTimeouts makes sure a relay send can finish before the server gives
// up on the response or on shutdown.
func (c AppConfig) checkTimeouts(hc config.HTTPConfig) error {
	var errs []error
	if hc.WriteTimeout > 0 && c.MailTimeout >= hc.WriteTimeout {
		errs = append(errs, fmt.Errorf("mail_timeout (%s) must be less than write_timeout (%s)", c.MailTimeout, hc.WriteTimeout))
	}
	if c.MailTimeout > hc.ShutdownTimeout {
		errs = append(errs, fmt.Errorf("mail_timeout (%s) must not exceed shutdown_timeout (%s)", c.MailTimeout, hc.ShutdownTimeout))
	}
	return errors.Join(errs...)
}

// MailConfig returns the relay settings for mail.NewSender.
func (c AppConfig) MailConfig() mail.Config {
	return mail.Config{
		Host:      c.MailHost,
		Port:      c.MailPort,
		Username:  c.MailUser,
		Password:  c.MailPassword,
		FromName:  c.MailFromName,
		TLSPolicy: c.MailTLSPolicy,
		Timeout:   c.MailTimeout,
	}
}
