package notification_test

import (
	"context"
	"errors"
	"html/template"
	"net/smtp"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/livebetter/livebetter/internal/notification"
)

func TestSMTPMailer_Send(t *testing.T) {
	mailer := notification.NewSMTPMailer(notification.SMTPConfig{
		Host:     "smtp.example.com",
		Port:     587,
		Username: "user",
		Password: "secret",
		From:     "alerts@example.com",
	}, zerolog.Nop())
	mailer.SetNow(func() time.Time { return time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC) })

	var (
		gotAddr string
		gotTo   []string
		gotMsg  string
	)
	mailer.SetSendFunc(func(addr string, a smtp.Auth, from string, to []string, msg []byte) error {
		gotAddr, gotTo, gotMsg = addr, to, string(msg)
		assert.NotNil(t, a)
		assert.Equal(t, "alerts@example.com", from)
		return nil
	})

	err := mailer.Send(context.Background(), notification.Message{
		To:      "user@example.com",
		Subject: "AQI Alert: London",
		HTML:    "<p>hello</p>",
	})
	require.NoError(t, err)

	assert.Equal(t, "smtp.example.com:587", gotAddr)
	assert.Equal(t, []string{"user@example.com"}, gotTo)
	assert.Contains(t, gotMsg, "Subject: AQI Alert: London\r\n")
	assert.Contains(t, gotMsg, "Content-Type: text/html")
	assert.Contains(t, gotMsg, "Date: Wed, 01 May 2024 08:00:00 +0000")
	assert.Contains(t, gotMsg, "\r\n\r\n<p>hello</p>")
}

func TestSMTPMailer_NotConfiguredIsDryRun(t *testing.T) {
	mailer := notification.NewSMTPMailer(notification.SMTPConfig{}, zerolog.Nop())
	mailer.SetSendFunc(func(string, smtp.Auth, string, []string, []byte) error {
		t.Fatal("send must not be called")
		return nil
	})

	assert.NoError(t, mailer.Send(context.Background(), notification.Message{To: "a@b.c", Subject: "s"}))
}

func TestSMTPMailer_Errors(t *testing.T) {
	mailer := notification.NewSMTPMailer(notification.SMTPConfig{Host: "h", Port: 25}, zerolog.Nop())
	mailer.SetSendFunc(func(string, smtp.Auth, string, []string, []byte) error {
		return errors.New("connection refused")
	})

	err := mailer.Send(context.Background(), notification.Message{To: ""})
	assert.ErrorIs(t, err, notification.ErrNoRecipient)

	err = mailer.Send(context.Background(), notification.Message{To: "a@b.c"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection refused")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, mailer.Send(ctx, notification.Message{To: "a@b.c"}), context.Canceled)
}

func TestRender(t *testing.T) {
	tmpl := template.Must(template.New("t").Parse(`<p>{{.}}</p>`))

	out, err := notification.Render(tmpl, "<script>")
	require.NoError(t, err)
	assert.Equal(t, "<p>&lt;script&gt;</p>", out)
}
