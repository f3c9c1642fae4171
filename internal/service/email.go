package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/resend/resend-go/v2"
)

type EmailService struct {
	client    *resend.Client
	fromEmail string
	isDev     bool
	appURL    string
	appName   string
}

func NewEmailService(apiKey, fromEmail, appURL, appName string, isDev bool) *EmailService {
	var client *resend.Client
	if apiKey != "" && !isDev {
		client = resend.NewClient(apiKey)
	}

	return &EmailService{
		client:    client,
		fromEmail: fromEmail,
		isDev:     isDev,
		appURL:    appURL,
		appName:   appName,
	}
}

// PurchaseReceipt is what a buyer is told after a listing order settles.
type PurchaseReceipt struct {
	OrderID   string
	PhotoID   string
	Title     string
	Amount    string // formatted
	PaymentID string
}

// PlanReceipt is what a seller is told after a pack order settles.
type PlanReceipt struct {
	OrderID     string
	PackName    string
	Amount      string
	UploadLimit int
	ExpiresAt   string
}

func (s *EmailService) SendPurchaseReceipt(ctx context.Context, email string, r PurchaseReceipt) error {
	downloadURL := fmt.Sprintf("%s/photos/%s", s.appURL, r.PhotoID)
	subject, body := purchaseReceiptTemplate(r, downloadURL, s.appName)
	return s.send(ctx, "purchase_receipt", email, subject, body)
}

func (s *EmailService) SendPlanReceipt(ctx context.Context, email string, r PlanReceipt) error {
	dashboardURL := fmt.Sprintf("%s/seller", s.appURL)
	subject, body := planReceiptTemplate(r, dashboardURL, s.appName)
	return s.send(ctx, "plan_receipt", email, subject, body)
}

func (s *EmailService) send(ctx context.Context, kind, email, subject, body string) error {
	if email == "" {
		slog.Warn("email skipped, no recipient", "type", kind)
		return nil
	}

	if s.isDev {
		slog.Info("email sent (dev mode)", "type", kind, "to", email, "subject", subject)
		return nil
	}

	if s.client == nil {
		return fmt.Errorf("email service not configured (missing RESEND_API_KEY)")
	}

	params := &resend.SendEmailRequest{
		From:    s.fromEmail,
		To:      []string{email},
		Subject: subject,
		Text:    body,
	}

	_, err := s.client.Emails.SendWithContext(ctx, params)
	if err == nil {
		slog.Info("email sent", "type", kind, "to", email)
	}
	return err
}
