// internal/pkg/email/service.go
package email

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/your-org/examprep-backend/internal/config"
)

// Service sends transactional email over SMTP. When email is disabled in
// configuration every send becomes a logged no-op, which keeps development
// environments quiet without conditional wiring at call sites.
type Service struct {
	config *config.Config
	log    *logrus.Logger
}

// NewService creates a new email service
func NewService(cfg *config.Config, log *logrus.Logger) *Service {
	return &Service{
		config: cfg,
		log:    log,
	}
}

// SendPurchaseConfirmation emails the buyer after a reconciled purchase
func (s *Service) SendPurchaseConfirmation(ctx context.Context, toEmail, sessionID string, examTitles []string, totalCents int64, currency string) error {
	subject := fmt.Sprintf("Your %s purchase is confirmed", s.config.App.Name)

	var body strings.Builder
	body.WriteString("Thank you for your purchase!\r\n\r\n")
	body.WriteString("You now have access to:\r\n")
	for _, title := range examTitles {
		body.WriteString(fmt.Sprintf("  - %s\r\n", title))
	}
	body.WriteString(fmt.Sprintf("\r\nTotal charged: %.2f %s\r\n", float64(totalCents)/100, strings.ToUpper(currency)))
	body.WriteString(fmt.Sprintf("Order reference: %s\r\n\r\n", sessionID))
	body.WriteString(fmt.Sprintf("Start practicing at %s\r\n", s.config.App.BaseURL))

	return s.send(ctx, toEmail, subject, body.String())
}

func (s *Service) send(ctx context.Context, to, subject, body string) error {
	if !s.config.Email.Enabled {
		s.log.WithFields(logrus.Fields{
			"to":      to,
			"subject": subject,
		}).Debug("Email disabled, skipping send")
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	from := s.config.Email.FromEmail
	msg := strings.Join([]string{
		fmt.Sprintf("From: %s <%s>", s.config.Email.FromName, from),
		fmt.Sprintf("To: %s", to),
		fmt.Sprintf("Subject: %s", subject),
		"MIME-Version: 1.0",
		"Content-Type: text/plain; charset=\"UTF-8\"",
		"",
		body,
	}, "\r\n")

	addr := fmt.Sprintf("%s:%d", s.config.Email.SMTPHost, s.config.Email.SMTPPort)
	var auth smtp.Auth
	if s.config.Email.SMTPUser != "" {
		auth = smtp.PlainAuth("", s.config.Email.SMTPUser, s.config.Email.SMTPPass, s.config.Email.SMTPHost)
	}

	if err := smtp.SendMail(addr, auth, from, []string{to}, []byte(msg)); err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}

	s.log.WithFields(logrus.Fields{
		"to":      to,
		"subject": subject,
	}).Info("Email sent")
	return nil
}
