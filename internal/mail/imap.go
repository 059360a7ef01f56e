// Package mail reads the newsroom tip inbox over IMAP and sends replies over
// SMTP.
package mail

import (
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"time"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"
	_ "github.com/emersion/go-message/charset"
	gomail "github.com/emersion/go-message/mail"
)

// ErrMessageNotFound is returned when a UID is not in the inbox.
var ErrMessageNotFound = errors.New("message not found")

const (
	inboxName      = "INBOX"
	noSubject      = "(제목 없음)"
	previewLength  = 200
	defaultTimeout = 30 * time.Second
	// DefaultLimit is the inbox page size.
	DefaultLimit = 50
)

// Config holds mailbox credentials and server endpoints.
type Config struct {
	IMAPHost string
	IMAPPort int
	SMTPHost string
	SMTPPort int
	User     string
	Password string
	// FromName is the display name on outgoing mail.
	FromName string
	Timeout  time.Duration
}

// Address is a display name and mailbox.
type Address struct {
	Name    string `json:"name,omitempty"`
	Address string `json:"address,omitempty"`
}

// Message is an inbox list row.
type Message struct {
	ID             string    `json:"id"`
	UID            uint32    `json:"uid"`
	Subject        string    `json:"subject"`
	From           Address   `json:"from"`
	To             []Address `json:"to"`
	Date           time.Time `json:"date"`
	Preview        string    `json:"preview"`
	Seen           bool      `json:"seen"`
	HasAttachments bool      `json:"hasAttachments"`
}

// Attachment describes one attached part.
type Attachment struct {
	Filename    string `json:"filename"`
	ContentType string `json:"contentType"`
	Size        uint32 `json:"size"`
}

// Detail is a full message.
type Detail struct {
	Message
	HTML        string       `json:"html,omitempty"`
	Text        string       `json:"text,omitempty"`
	Attachments []Attachment `json:"attachments"`
}

// Inbox is one page of the inbox.
type Inbox struct {
	Messages []Message `json:"messages"`
	Total    uint32    `json:"total"`
}

// session is the subset of *client.Client used here.
type session interface {
	Select(name string, readOnly bool) (*imap.MailboxStatus, error)
	Fetch(seqset *imap.SeqSet, items []imap.FetchItem, ch chan *imap.Message) error
	UidFetch(seqset *imap.SeqSet, items []imap.FetchItem, ch chan *imap.Message) error
	UidStore(seqset *imap.SeqSet, item imap.StoreItem, value interface{}, ch chan *imap.Message) error
	Logout() error
}

// Reader opens a short IMAP session per call.
type Reader struct {
	cfg  Config
	dial func() (session, error)
}

// NewReader returns a Reader that dials the configured server over TLS.
func NewReader(cfg Config) *Reader {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	r := &Reader{cfg: cfg}
	r.dial = r.dialTLS
	return r
}

func (r *Reader) dialTLS() (session, error) {
	addr := net.JoinHostPort(r.cfg.IMAPHost, fmt.Sprint(r.cfg.IMAPPort))
	dialer := &net.Dialer{Timeout: r.cfg.Timeout}
	c, err := client.DialWithDialerTLS(dialer, addr, &tls.Config{ServerName: r.cfg.IMAPHost})
	if err != nil {
		return nil, fmt.Errorf("dial imap %s: %w", addr, err)
	}
	c.Timeout = r.cfg.Timeout
	if err := c.Login(r.cfg.User, r.cfg.Password); err != nil {
		_ = c.Logout()
		return nil, fmt.Errorf("imap login: %w", err)
	}
	return c, nil
}

// SequenceWindow maps limit/offset (newest first) onto a 1-based sequence
// range.
func SequenceWindow(total, limit, offset uint32) (start, end uint32) {
	start = 1
	if total > offset+limit {
		start = total - offset - limit + 1
	}
	end = 1
	if total > offset {
		end = total - offset
	}
	return start, end
}

// Inbox lists messages newest first.
func (r *Reader) Inbox(limit, offset int) (Inbox, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}
	if offset < 0 {
		offset = 0
	}

	c, err := r.dial()
	if err != nil {
		return Inbox{}, err
	}
	defer c.Logout()

	mbox, err := c.Select(inboxName, true)
	if err != nil {
		return Inbox{}, fmt.Errorf("select inbox: %w", err)
	}
	total := mbox.Messages
	if total == 0 {
		return Inbox{Messages: []Message{}, Total: 0}, nil
	}

	start, end := SequenceWindow(total, uint32(limit), uint32(offset))
	seqset := new(imap.SeqSet)
	seqset.AddRange(start, end)

	items := []imap.FetchItem{imap.FetchUid, imap.FetchEnvelope, imap.FetchFlags, imap.FetchBodyStructure}
	ch := make(chan *imap.Message, 10)
	done := make(chan error, 1)
	go func() {
		done <- c.Fetch(seqset, items, ch)
	}()

	var msgs []Message
	for m := range ch {
		msgs = append(msgs, toMessage(m))
	}
	if err := <-done; err != nil {
		return Inbox{}, fmt.Errorf("fetch inbox: %w", err)
	}

	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	if msgs == nil {
		msgs = []Message{}
	}
	return Inbox{Messages: msgs, Total: total}, nil
}

// Message loads one message by UID and marks it seen.
func (r *Reader) Message(uid uint32) (Detail, error) {
	c, err := r.dial()
	if err != nil {
		return Detail{}, err
	}
	defer c.Logout()

	if _, err := c.Select(inboxName, false); err != nil {
		return Detail{}, fmt.Errorf("select inbox: %w", err)
	}

	seqset := new(imap.SeqSet)
	seqset.AddNum(uid)
	section := &imap.BodySectionName{Peek: true}
	items := []imap.FetchItem{imap.FetchUid, imap.FetchEnvelope, imap.FetchFlags, imap.FetchBodyStructure, section.FetchItem()}

	ch := make(chan *imap.Message, 1)
	done := make(chan error, 1)
	go func() {
		done <- c.UidFetch(seqset, items, ch)
	}()

	var found *imap.Message
	for m := range ch {
		if found == nil {
			found = m
		}
	}
	if err := <-done; err != nil {
		return Detail{}, fmt.Errorf("fetch message %d: %w", uid, err)
	}
	if found == nil {
		return Detail{}, ErrMessageNotFound
	}

	d := Detail{Message: toMessage(found)}
	if body := found.GetBody(section); body != nil {
		d.HTML, d.Text = parseBody(body)
	}
	d.Preview = truncateRunes(d.Text, previewLength)
	d.Attachments = extractAttachments(found.BodyStructure)

	flags := []interface{}{imap.SeenFlag}
	if err := c.UidStore(seqset, imap.FormatFlagsOp(imap.AddFlags, true), flags, nil); err != nil {
		return Detail{}, fmt.Errorf("mark seen: %w", err)
	}
	d.Seen = true
	return d, nil
}

func toMessage(m *imap.Message) Message {
	msg := Message{
		ID:             fmt.Sprint(m.Uid),
		UID:            m.Uid,
		Subject:        noSubject,
		To:             []Address{},
		Date:           time.Now(),
		HasAttachments: hasAttachments(m.BodyStructure),
	}
	for _, f := range m.Flags {
		if f == imap.SeenFlag {
			msg.Seen = true
		}
	}
	env := m.Envelope
	if env == nil {
		return msg
	}
	if env.Subject != "" {
		msg.Subject = env.Subject
	}
	if !env.Date.IsZero() {
		msg.Date = env.Date
	}
	if len(env.From) > 0 {
		msg.From = toAddress(env.From[0])
	}
	for _, a := range env.To {
		msg.To = append(msg.To, toAddress(a))
	}
	return msg
}

func toAddress(a *imap.Address) Address {
	if a == nil {
		return Address{}
	}
	return Address{Name: a.PersonalName, Address: a.Address()}
}

func hasAttachments(bs *imap.BodyStructure) bool {
	if bs == nil {
		return false
	}
	found := false
	bs.Walk(func(_ []int, part *imap.BodyStructure) bool {
		if strings.EqualFold(part.Disposition, "attachment") {
			found = true
		}
		return !found
	})
	return found
}

func extractAttachments(bs *imap.BodyStructure) []Attachment {
	attachments := []Attachment{}
	if bs == nil {
		return attachments
	}
	bs.Walk(func(_ []int, part *imap.BodyStructure) bool {
		if strings.EqualFold(part.Disposition, "attachment") {
			name, _ := part.Filename()
			if name == "" {
				name = "unknown"
			}
			attachments = append(attachments, Attachment{
				Filename:    name,
				ContentType: strings.ToLower(part.MIMEType + "/" + part.MIMESubType),
				Size:        part.Size,
			})
		}
		return true
	})
	return attachments
}

// parseBody returns the first text/html and text/plain inline parts. Messages
// that go-message cannot parse fall back to the raw text after the header.
func parseBody(r io.Reader) (html, text string) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return "", ""
	}
	mr, err := gomail.CreateReader(strings.NewReader(string(raw)))
	if err != nil {
		return "", rawBody(string(raw))
	}
	defer mr.Close()

	for {
		p, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			break
		}
		h, ok := p.Header.(*gomail.InlineHeader)
		if !ok {
			continue
		}
		ct, _, _ := h.ContentType()
		b, err := io.ReadAll(p.Body)
		if err != nil {
			continue
		}
		switch ct {
		case "text/html":
			if html == "" {
				html = string(b)
			}
		case "text/plain", "":
			if text == "" {
				text = string(b)
			}
		}
	}
	if html == "" && text == "" {
		text = rawBody(string(raw))
	}
	return html, text
}

func rawBody(raw string) string {
	if i := strings.Index(raw, "\r\n\r\n"); i >= 0 {
		return raw[i+4:]
	}
	if i := strings.Index(raw, "\n\n"); i >= 0 {
		return raw[i+2:]
	}
	return ""
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
