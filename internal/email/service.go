// Package email sends account emails: Resend in production, an in-memory
// capture (optionally mirrored to an outbox directory) with --no-email.
package email

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sync"

	"github.com/kuitang/notesmith/internal/obs"
)

// EmailService sends one templated email.
type EmailService interface {
	Send(to, templateName string, data any) error
}

// SentEmail is one email captured by MockEmailService.
type SentEmail struct {
	To       string
	Template string
	Subject  string
	Data     any
}

// MockEmailService captures emails instead of sending them.
type MockEmailService struct {
	mu     sync.Mutex
	Emails []SentEmail
	outbox string
}

// NewMockEmailService returns a capture-only mock.
func NewMockEmailService() *MockEmailService {
	return &MockEmailService{Emails: make([]SentEmail, 0)}
}

// NewMockEmailOutbox returns a mock that also writes each email, rendered,
// as a JSON file in dir so verification links can be followed by hand.
func NewMockEmailOutbox(dir string) (*MockEmailService, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("email: create outbox %s: %w", dir, err)
	}
	m := NewMockEmailService()
	m.outbox = dir
	return m, nil
}

func (m *MockEmailService) Send(to, templateName string, data any) error {
	subject, body := Render(templateName, data)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.Emails = append(m.Emails, SentEmail{To: to, Template: templateName, Subject: subject, Data: data})

	var link string
	if d, ok := data.(VerifyEmailData); ok {
		link = d.Link
	}
	obs.Pkg("email").Info("mock_email_sent", "to", to, "template", templateName, "link", link)

	if m.outbox == "" {
		return nil
	}
	return m.writeOutbox(len(m.Emails), outboxEntry{
		To:       to,
		Template: templateName,
		Subject:  subject,
		Link:     link,
		HTML:     body,
	})
}

// LastEmail returns the most recent email, or the zero value.
func (m *MockEmailService) LastEmail() SentEmail {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.Emails) == 0 {
		return SentEmail{}
	}
	return m.Emails[len(m.Emails)-1]
}

// Count returns the number of captured emails.
func (m *MockEmailService) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Emails)
}

type outboxEntry struct {
	To       string `json:"to"`
	Template string `json:"template"`
	Subject  string `json:"subject"`
	Link     string `json:"link,omitempty"`
	HTML     string `json:"html"`
}

var unsafeFileChars = regexp.MustCompile(`[^a-zA-Z0-9._@-]+`)

// writeOutbox writes via a temp file and rename so readers never see a
// partial file.
func (m *MockEmailService) writeOutbox(seq int, e outboxEntry) error {
	payload, err := json.MarshalIndent(e, "", "  ")
	if err != nil {
		return fmt.Errorf("email: encode outbox entry: %w", err)
	}
	name := fmt.Sprintf("%06d-%s-%s.json", seq,
		unsafeFileChars.ReplaceAllString(e.Template, "_"), unsafeFileChars.ReplaceAllString(e.To, "_"))
	final := filepath.Join(m.outbox, name)
	if err := os.WriteFile(final+".tmp", payload, 0o644); err != nil {
		return fmt.Errorf("email: write outbox entry: %w", err)
	}
	if err := os.Rename(final+".tmp", final); err != nil {
		_ = os.Remove(final + ".tmp")
		return fmt.Errorf("email: write outbox entry: %w", err)
	}
	return nil
}
