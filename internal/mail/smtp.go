package mail

import (
	"context"
	"errors"
	"fmt"
	"strings"

	gomail "github.com/wneessen/go-mail"
)

var (
	// ErrMissingRecipient is returned when no recipient or subject is given.
	ErrMissingRecipient = errors.New("recipient and subject are required")
	// ErrEmptyBody is returned when neither text nor html is given.
	ErrEmptyBody = errors.New("text or html body is required")
)

// Outgoing is one message to send.
type Outgoing struct {
	To      []string `json:"to"`
	Subject string   `json:"subject"`
	Text    string   `json:"text,omitempty"`
	HTML    string   `json:"html,omitempty"`
	ReplyTo string   `json:"replyTo,omitempty"`
}

// Validate checks the required fields.
func (o Outgoing) Validate() error {
	if len(o.To) == 0 || strings.TrimSpace(o.Subject) == "" {
		return ErrMissingRecipient
	}
	if o.Text == "" && o.HTML == "" {
		return ErrEmptyBody
	}
	return nil
}

// ReplySubject prefixes "Re: " unless the subject already starts with "Re:".
func ReplySubject(subject string) string {
	if strings.HasPrefix(subject, "Re:") {
		return subject
	}
	return "Re: " + subject
}

// Sender delivers mail through the configured SMTP server.
type Sender struct {
	cfg Config
}

// NewSender returns a Sender.
func NewSender(cfg Config) *Sender {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	return &Sender{cfg: cfg}
}

func (s *Sender) buildMessage(o Outgoing) (*gomail.Msg, error) {
	if err := o.Validate(); err != nil {
		return nil, err
	}
	m := gomail.NewMsg()
	if err := m.FromFormat(s.cfg.FromName, s.cfg.User); err != nil {
		return nil, fmt.Errorf("from: %w", err)
	}
	if err := m.To(o.To...); err != nil {
		return nil, fmt.Errorf("to: %w", err)
	}
	if o.ReplyTo != "" {
		if err := m.ReplyTo(o.ReplyTo); err != nil {
			return nil, fmt.Errorf("reply-to: %w", err)
		}
	}
	m.Subject(o.Subject)
	m.SetMessageID()
	m.SetDate()

	switch {
	case o.Text != "" && o.HTML != "":
		m.SetBodyString(gomail.TypeTextPlain, o.Text)
		m.AddAlternativeString(gomail.TypeTextHTML, o.HTML)
	case o.HTML != "":
		m.SetBodyString(gomail.TypeTextHTML, o.HTML)
	default:
		m.SetBodyString(gomail.TypeTextPlain, o.Text)
	}
	return m, nil
}

func (s *Sender) client() (*gomail.Client, error) {
	opts := []gomail.Option{
		gomail.WithPort(s.cfg.SMTPPort),
		gomail.WithSMTPAuth(gomail.SMTPAuthPlain),
		gomail.WithUsername(s.cfg.User),
		gomail.WithPassword(s.cfg.Password),
		gomail.WithTimeout(s.cfg.Timeout),
	}
	if s.cfg.SMTPPort == 465 {
		opts = append(opts, gomail.WithSSL())
	} else {
		opts = append(opts, gomail.WithTLSPolicy(gomail.TLSMandatory))
	}
	return gomail.NewClient(s.cfg.SMTPHost, opts...)
}

// Send delivers o and returns its Message-ID.
func (s *Sender) Send(ctx context.Context, o Outgoing) (string, error) {
	m, err := s.buildMessage(o)
	if err != nil {
		return "", err
	}
	c, err := s.client()
	if err != nil {
		return "", fmt.Errorf("smtp client: %w", err)
	}
	if err := c.DialAndSendWithContext(ctx, m); err != nil {
		return "", fmt.Errorf("send mail: %w", err)
	}
	return m.GetMessageID(), nil
}

// Reply sends a reply to originalFrom with a "Re: " subject.
func (s *Sender) Reply(ctx context.Context, originalFrom, originalSubject string, o Outgoing) (string, error) {
	o.To = []string{originalFrom}
	o.Subject = ReplySubject(originalSubject)
	return s.Send(ctx, o)
}
