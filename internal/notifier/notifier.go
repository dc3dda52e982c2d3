package notifier

import (
	"context"
	"fmt"
	"net/smtp"

	"go.uber.org/zap"
)

// Notifier delivers a one-time code to a destination out-of-band. The
// pipeline treats delivery as fire-and-forget: a failed send never rolls
// back the stored code, the user simply requests a resend.
type Notifier interface {
	SendCode(ctx context.Context, email, code string) error
}

// SMTPNotifier sends the code over plain SMTP with AUTH.
type SMTPNotifier struct {
	host     string
	port     int
	username string
	password string
	from     string
}

func NewSMTPNotifier(host string, port int, username, password, from string) *SMTPNotifier {
	if from == "" {
		from = "noreply@scholara.com"
	}
	return &SMTPNotifier{
		host:     host,
		port:     port,
		username: username,
		password: password,
		from:     from,
	}
}

func (n *SMTPNotifier) SendCode(ctx context.Context, email, code string) error {
	msg := fmt.Sprintf(
		"From: %s\r\nTo: %s\r\nSubject: Your verification code\r\n\r\n"+
			"Your verification code is %s. It expires in 10 minutes.\r\n",
		n.from, email, code,
	)
	addr := fmt.Sprintf("%s:%d", n.host, n.port)
	auth := smtp.PlainAuth("", n.username, n.password, n.host)
	if err := smtp.SendMail(addr, auth, n.from, []string{email}, []byte(msg)); err != nil {
		return fmt.Errorf("sending verification email to %s: %w", email, err)
	}
	return nil
}

// LogNotifier writes the code to the log instead of sending it. Used in
// development when no SMTP host is configured.
type LogNotifier struct {
	logger *zap.SugaredLogger
}

func NewLogNotifier(logger *zap.SugaredLogger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) SendCode(ctx context.Context, email, code string) error {
	n.logger.Infow("verification code issued", "email", email, "code", code)
	return nil
}
