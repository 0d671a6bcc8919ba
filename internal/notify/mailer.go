package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/sirupsen/logrus"
)

const resendBaseURL = "https://api.resend.com"

// Email is a rendered message ready to send.
type Email struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	HTML    string `json:"html"`
}

// Mailer delivers emails.
type Mailer interface {
	Send(ctx context.Context, email Email) error
}

// ResendMailer sends through the Resend REST API.
type ResendMailer struct {
	client *resty.Client
	from   string
}

func NewResendMailer(apiKey, from string) (*ResendMailer, error) {
	return newResendMailer(resendBaseURL, apiKey, from)
}

func newResendMailer(baseURL, apiKey, from string) (*ResendMailer, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, errors.New("resend api key is not configured")
	}
	if strings.TrimSpace(from) == "" {
		return nil, errors.New("email sender is not configured")
	}
	client := resty.New().
		SetBaseURL(baseURL).
		SetAuthToken(apiKey).
		SetHeader("Content-Type", "application/json").
		SetTimeout(15 * time.Second)
	return &ResendMailer{client: client, from: from}, nil
}

type resendRequest struct {
	From    string   `json:"from"`
	To      []string `json:"to"`
	Subject string   `json:"subject"`
	HTML    string   `json:"html"`
}

type resendResponse struct {
	ID string `json:"id"`
}

func (m *ResendMailer) Send(ctx context.Context, email Email) error {
	if strings.TrimSpace(email.To) == "" {
		return errors.New("resend: recipient is required")
	}
	var out resendResponse
	res, err := m.client.R().
		SetContext(ctx).
		SetBody(resendRequest{
			From:    m.from,
			To:      []string{email.To},
			Subject: email.Subject,
			HTML:    email.HTML,
		}).
		SetResult(&out).
		Post("/emails")
	if err != nil {
		return fmt.Errorf("resend: send: %w", err)
	}
	if res.IsError() {
		return fmt.Errorf("resend: send: http %d: %s", res.StatusCode(), strings.TrimSpace(res.String()))
	}
	logrus.WithFields(logrus.Fields{
		"email_id": out.ID,
		"subject":  email.Subject,
	}).Info("email_sent")
	return nil
}

// LogMailer only logs emails. Used when no Resend key is configured.
type LogMailer struct{}

func (LogMailer) Send(_ context.Context, email Email) error {
	logrus.WithFields(logrus.Fields{
		"to":      email.To,
		"subject": email.Subject,
	}).Info("email_skipped_no_mailer")
	return nil
}
