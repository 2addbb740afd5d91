// Package notify delivers user-facing notifications over email.
// Delivery is best-effort: callers enqueue sends on the background
// queue and a failed send never fails the operation that triggered it.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"net/smtp"
	"strings"
)

// Notifier sends one notification. Implemented by Mailer; tests
// substitute a recorder.
type Notifier interface {
	Send(ctx context.Context, to, subject, body string) error
}

// Config holds SMTP and base URL settings.
type Config struct {
	SMTPHost string
	SMTPPort int
	SMTPUser string
	SMTPPass string
	SMTPFrom string
	BaseURL  string
}

// Mailer sends plain-text email over SMTP. Without a configured host
// it logs the message instead of sending, which is the local
// development mode.
type Mailer struct {
	cfg    Config
	logger *slog.Logger
}

// NewMailer creates a Mailer.
func NewMailer(cfg Config, logger *slog.Logger) *Mailer {
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &Mailer{cfg: cfg, logger: logger}
}

// BaseURL returns the public base URL used in message links.
func (m *Mailer) BaseURL() string { return m.cfg.BaseURL }

// Send delivers one plain-text message.
func (m *Mailer) Send(ctx context.Context, to, subject, body string) error {
	if m.cfg.SMTPHost == "" {
		m.logger.Info("notify: email (dev mode — SMTP not configured)",
			"to", to,
			"subject", subject,
			"body", body,
		)
		return nil
	}

	msg := fmt.Sprintf(
		"From: %s\r\nTo: %s\r\nSubject: %s\r\nMIME-Version: 1.0\r\nContent-Type: text/plain; charset=UTF-8\r\n\r\n%s",
		m.cfg.SMTPFrom, to, subject, body,
	)

	addr := fmt.Sprintf("%s:%d", m.cfg.SMTPHost, m.cfg.SMTPPort)
	var smtpAuth smtp.Auth
	if m.cfg.SMTPUser != "" {
		smtpAuth = smtp.PlainAuth("", m.cfg.SMTPUser, m.cfg.SMTPPass, m.cfg.SMTPHost)
	}
	return smtp.SendMail(addr, smtpAuth, m.cfg.SMTPFrom, []string{to}, []byte(msg))
}

// Message builders. Bodies stay free of secret material except where
// the message IS the secret (reset tokens, verification codes), which
// go only to the account's own address.

// VerificationCode builds the email/phone verification message.
func VerificationCode(code string) (subject, body string) {
	return "Your Byaboneka verification code",
		fmt.Sprintf("Your verification code is: %s\r\n\r\nThis code expires in 24 hours.", code)
}

// PasswordReset builds the password reset message.
func PasswordReset(baseURL, token string) (subject, body string) {
	return "Reset your Byaboneka password",
		fmt.Sprintf("Click the link below to reset your password:\r\n\r\n%s/reset-password?token=%s\r\n\r\nThis link expires in 1 hour. If you did not request a reset, ignore this message.",
			baseURL, token)
}

// MatchFound tells a lost item owner that a promising counterpart was
// reported.
func MatchFound(itemTitle string, score int) (subject, body string) {
	return "Possible match for your lost item",
		fmt.Sprintf("A found item matching %q was reported (match score %d).\r\n\r\nSign in to review the match and open a claim.", itemTitle, score)
}

// ClaimOpened tells a finder that someone claimed their found item.
func ClaimOpened(itemTitle string) (subject, body string) {
	return "New claim on your found item",
		fmt.Sprintf("Someone opened a claim on the item you reported found: %q.\r\n\r\nYou will be notified when the claimant passes verification.", itemTitle)
}

// ClaimVerified tells a finder that the claimant passed verification.
func ClaimVerified(itemTitle string) (subject, body string) {
	return "Claim verified — arrange the handover",
		fmt.Sprintf("The claim on %q passed ownership verification.\r\n\r\nArrange a safe, public handover. The owner will show you a 6-digit code; enter it to confirm the return.", itemTitle)
}

// DisputeOpened tells the other participant a dispute was raised.
func DisputeOpened(itemTitle string) (subject, body string) {
	return "Dispute opened on your claim",
		fmt.Sprintf("A dispute was opened on the claim for %q. The claim is frozen until a moderator resolves it.\r\n\r\nYou can keep messaging the other party through the claim thread.", itemTitle)
}

// DisputeResolved tells a participant how the dispute ended.
func DisputeResolved(itemTitle, resolution string) (subject, body string) {
	return "Dispute resolved",
		fmt.Sprintf("The dispute on the claim for %q was resolved: %s.\r\n\r\nSign in to see the claim's current status.", itemTitle, resolution)
}

// HandoverConfirmed tells the owner the return was confirmed.
func HandoverConfirmed(itemTitle string) (subject, body string) {
	return "Item returned",
		fmt.Sprintf("The handover of %q was confirmed. Thank you for using Byaboneka.", itemTitle)
}
