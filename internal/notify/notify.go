// Package notify emails analysis results to the meeting host.
package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	sestypes "github.com/aws/aws-sdk-go-v2/service/sesv2/types"
	"github.com/sirupsen/logrus"
)

// ErrNoSender is returned when FROM_EMAIL is not configured.
var ErrNoSender = errors.New("FROM_EMAIL not configured")

const subject = "Meeting Analysis Report"

// EmailSender is the part of *sesv2.Client used here.
type EmailSender interface {
	SendEmail(ctx context.Context, in *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error)
}

type Mailer struct {
	client EmailSender
	from   string
	log    *logrus.Entry
}

func NewMailer(client EmailSender, from string, log *logrus.Entry) *Mailer {
	return &Mailer{client: client, from: from, log: log.WithField("component", "notify")}
}

// Body renders the plain-text report.
func Body(summary, note, recommendations string) string {
	var b strings.Builder
	b.WriteString("Hello,\n\nHere is the analysis of your recent meeting:\n\n")
	section(&b, "Summary", summary)
	section(&b, "SOAP Notes", note)
	section(&b, "Therapy Recommendations", recommendations)
	b.WriteString("Thanks,\nYour Meeting Assistant\n")
	return b.String()
}

func section(b *strings.Builder, title, text string) {
	if strings.TrimSpace(text) == "" {
		text = "(not available)"
	}
	fmt.Fprintf(b, "%s:\n%s\n\n", title, strings.TrimSpace(text))
}

// Notify sends one email. It is called once, never retried.
func (m *Mailer) Notify(ctx context.Context, to, summary, note, recommendations string) error {
	if m.from == "" {
		return ErrNoSender
	}
	_, err := m.client.SendEmail(ctx, &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(m.from),
		Destination:      &sestypes.Destination{ToAddresses: []string{to}},
		Content: &sestypes.EmailContent{
			Simple: &sestypes.Message{
				Subject: &sestypes.Content{Data: aws.String(subject)},
				Body: &sestypes.Body{
					Text: &sestypes.Content{Data: aws.String(Body(summary, note, recommendations))},
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("send email: %w", err)
	}
	m.log.WithField("to", to).Info("analysis email sent")
	return nil
}
