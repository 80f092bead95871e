package notify

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"

	"meeting-insights-go/internal/logger"
)

type fakeSES struct {
	sent []*sesv2.SendEmailInput
	err  error
}

func (f *fakeSES) SendEmail(_ context.Context, in *sesv2.SendEmailInput, _ ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error) {
	f.sent = append(f.sent, in)
	if f.err != nil {
		return nil, f.err
	}
	return &sesv2.SendEmailOutput{MessageId: aws.String("m-1")}, nil
}

func TestNotifySendsReport(t *testing.T) {
	ses := &fakeSES{}
	m := NewMailer(ses, "assistant@example.com", logger.Discard().Entry)
	if err := m.Notify(context.Background(), "host@example.com", "short summary", "S: ...", ""); err != nil {
		t.Fatalf("notify: %v", err)
	}
	if len(ses.sent) != 1 {
		t.Fatalf("expected one email, got %d", len(ses.sent))
	}
	in := ses.sent[0]
	if in.Destination.ToAddresses[0] != "host@example.com" || aws.ToString(in.FromEmailAddress) != "assistant@example.com" {
		t.Fatalf("unexpected addressing %+v", in.Destination)
	}
	body := aws.ToString(in.Content.Simple.Body.Text.Data)
	for _, want := range []string{"short summary", "S: ...", "Therapy Recommendations:\n(not available)"} {
		if !strings.Contains(body, want) {
			t.Fatalf("body missing %q:\n%s", want, body)
		}
	}
}

func TestNotifyErrors(t *testing.T) {
	ses := &fakeSES{}
	if err := NewMailer(ses, "", logger.Discard().Entry).Notify(context.Background(), "h@x", "", "", ""); !errors.Is(err, ErrNoSender) {
		t.Fatalf("expected ErrNoSender, got %v", err)
	}
	if len(ses.sent) != 0 {
		t.Fatalf("nothing should be sent without a sender")
	}

	boom := errors.New("throttled")
	ses = &fakeSES{err: boom}
	if err := NewMailer(ses, "a@x", logger.Discard().Entry).Notify(context.Background(), "h@x", "", "", ""); !errors.Is(err, boom) {
		t.Fatalf("expected wrapped SES error, got %v", err)
	}
	if len(ses.sent) != 1 {
		t.Fatalf("must not retry, got %d sends", len(ses.sent))
	}
}
