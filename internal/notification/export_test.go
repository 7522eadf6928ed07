package notification

import (
	"net/smtp"
	"time"
)

// SetSendFunc replaces the SMTP transport in tests.
func (m *SMTPMailer) SetSendFunc(fn func(addr string, a smtp.Auth, from string, to []string, msg []byte) error) {
	m.send = fn
}

// SetNow replaces the clock in tests.
func (m *SMTPMailer) SetNow(fn func() time.Time) {
	m.now = fn
}
