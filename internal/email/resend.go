package email

import (
	"fmt"

	"github.com/resend/resend-go/v3"
)

// ResendEmailService sends through the Resend API.
type ResendEmailService struct {
	client      *resend.Client
	fromAddress string
}

// NewResendEmailService creates a Resend sender. fromAddress must be a
// sender verified in Resend.
func NewResendEmailService(apiKey, fromAddress string) *ResendEmailService {
	return &ResendEmailService{
		client:      resend.NewClient(apiKey),
		fromAddress: fromAddress,
	}
}

func (r *ResendEmailService) Send(to, templateName string, data any) error {
	subject, body := Render(templateName, data)
	_, err := r.client.Emails.Send(&resend.SendEmailRequest{
		From:    r.fromAddress,
		To:      []string{to},
		Subject: subject,
		Html:    body,
		Tags:    []resend.Tag{{Name: "template", Value: templateName}},
	})
	if err != nil {
		return fmt.Errorf("resend: send %s to %s: %w", templateName, to, err)
	}
	return nil
}
