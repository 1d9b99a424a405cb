package common

import "sync"

// EmailSender delivers transactional email for order and payment events.
type EmailSender interface {
	Send(to, subject, html string) error
}

// Email is a single message captured by InMemoryEmail.
type Email struct {
	To      string
	Subject string
	HTML    string
}

// InMemoryEmail records sent messages instead of delivering them. Safe for
// concurrent use so worker tests can run handlers in parallel.
type InMemoryEmail struct {
	mu     sync.Mutex
	Outbox []Email
}

// Send appends the message to the outbox.
func (m *InMemoryEmail) Send(to, subject, html string) error {
	if m == nil {
		return nil
	}
	m.mu.Lock()
	m.Outbox = append(m.Outbox, Email{To: to, Subject: subject, HTML: html})
	m.mu.Unlock()
	return nil
}

// NopEmailSender discards every message.
type NopEmailSender struct{}

// Send implements EmailSender.
func (NopEmailSender) Send(string, string, string) error { return nil }
