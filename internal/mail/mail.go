package mail

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	gomail "github.com/wneessen/go-mail"

	"github.com/teemow/sbginvoice/internal/logging"
)

const (
	contentTypePDF = gomail.ContentType("application/pdf")
	defaultTimeout = 30 * time.Second
)

// Message is one outgoing invoice email.
type Message struct {
	From           string
	To             string
	Subject        string
	Body           string
	AttachmentPath string
}

// Mailer delivers a message.
type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

// DeliveryError reports a failed delivery. Op is the step that failed:
// "compose", "connect" or "send".
type DeliveryError struct {
	Op  string
	Err error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("mail delivery failed (%s): %v", e.Op, e.Err)
}

func (e *DeliveryError) Unwrap() error {
	return e.Err
}

// SMTPMailer sends through an authenticated STARTTLS relay.
type SMTPMailer struct {
	Host     string
	Port     int
	Username string
	Password string
	Timeout  time.Duration
	// TLSConfig replaces the STARTTLS client config. When nil the relay
	// certificate is verified against Host with the system roots.
	TLSConfig *tls.Config
	Logger    *slog.Logger
}

// Compose builds the MIME message, reading the attachment from disk.
func Compose(msg Message) (*gomail.Msg, error) {
	m := gomail.NewMsg()
	if err := m.From(msg.From); err != nil {
		return nil, fmt.Errorf("invalid sender address: %w", err)
	}
	if err := m.To(msg.To); err != nil {
		return nil, fmt.Errorf("invalid recipient address: %w", err)
	}
	m.Subject(msg.Subject)
	m.SetDate()
	m.SetBodyString(gomail.TypeTextPlain, msg.Body)

	if msg.AttachmentPath != "" {
		data, err := os.ReadFile(msg.AttachmentPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read attachment: %w", err)
		}
		name := filepath.Base(msg.AttachmentPath)
		if err := m.AttachReader(name, bytes.NewReader(data), gomail.WithFileContentType(contentTypePDF)); err != nil {
			return nil, fmt.Errorf("failed to attach %s: %w", name, err)
		}
	}
	return m, nil
}

// Send implements Mailer.
func (s *SMTPMailer) Send(ctx context.Context, msg Message) error {
	logger := s.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	logger = logging.WithOperation(logger, "mail.send")

	m, err := Compose(msg)
	if err != nil {
		return &DeliveryError{Op: "compose", Err: err}
	}

	timeout := s.Timeout
	if timeout == 0 {
		timeout = defaultTimeout
	}

	opts := []gomail.Option{
		gomail.WithPort(s.Port),
		gomail.WithTLSPolicy(gomail.TLSMandatory),
		gomail.WithSMTPAuth(gomail.SMTPAuthPlain),
		gomail.WithUsername(s.Username),
		gomail.WithPassword(s.Password),
		gomail.WithTimeout(timeout),
	}
	if s.TLSConfig != nil {
		opts = append(opts, gomail.WithTLSConfig(s.TLSConfig))
	}

	client, err := gomail.NewClient(s.Host, opts...)
	if err != nil {
		return &DeliveryError{Op: "connect", Err: err}
	}

	logger.Debug("Sending invoice email",
		"host", s.Host,
		"port", s.Port,
		logging.Domain(msg.To),
		logging.Path(msg.AttachmentPath),
	)

	if err := client.DialAndSendWithContext(ctx, m); err != nil {
		logger.Error("Failed to send invoice email", logging.Domain(msg.To), logging.Err(err))
		return &DeliveryError{Op: "send", Err: err}
	}

	logger.Info("Sent invoice email", logging.Domain(msg.To), logging.UserHash(msg.To))
	return nil
}
