package alert

import (
	"context"
	"fmt"
	"html/template"

	"github.com/livebetter/livebetter/internal/notification"
)

var emailTemplate = template.Must(template.New("aqi_alert").Parse(`<strong>Air Quality Alert</strong>
<p>Location: {{.LocationName}}{{if .Country}}, {{.Country}}{{end}}</p>
<p>AQI Level: {{.Level}} ({{.Description}})</p>
<p>Your alert threshold is {{.Threshold}}. Consider limiting time outdoors.</p>
<p style="color:#888">Sent {{.Time}}</p>
`))

// EmailDispatcher sends alerts as HTML email.
type EmailDispatcher struct {
	mailer notification.Mailer
}

// NewEmailDispatcher creates an email dispatcher.
func NewEmailDispatcher(mailer notification.Mailer) *EmailDispatcher {
	return &EmailDispatcher{mailer: mailer}
}

// Dispatch implements Dispatcher.
func (d *EmailDispatcher) Dispatch(ctx context.Context, a Alert) error {
	body, err := notification.Render(emailTemplate, struct {
		LocationName string
		Country      string
		Level        int
		Description  string
		Threshold    int
		Time         string
	}{
		LocationName: a.LocationName,
		Country:      a.Country,
		Level:        int(a.Index),
		Description:  a.Index.Description(),
		Threshold:    a.Threshold,
		Time:         a.Timestamp.UTC().Format("2006-01-02 15:04 MST"),
	})
	if err != nil {
		return err
	}

	return d.mailer.Send(ctx, notification.Message{
		To:      a.Recipient,
		Subject: Subject(a),
		HTML:    body,
	})
}

// Subject returns the email subject line for an alert.
func Subject(a Alert) string {
	return fmt.Sprintf("AQI Alert: %s", a.LocationName)
}

var _ Dispatcher = (*EmailDispatcher)(nil)
