package refresh

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"
	"time"

	"github.com/jordan-wright/email"

	"finboard/internal/storage"
)

// SMTPConfig holds the mail relay and the alert addresses.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	To       []string
}

// EmailNotifier mails an alert for every failed run.
type EmailNotifier struct {
	cfg  SMTPConfig
	send func(e *email.Email, addr string, auth smtp.Auth) error
}

func NewEmailNotifier(cfg SMTPConfig) *EmailNotifier {
	return &EmailNotifier{
		cfg: cfg,
		send: func(e *email.Email, addr string, auth smtp.Auth) error {
			return e.Send(addr, auth)
		},
	}
}

// ParseRecipients splits a comma separated address list.
func ParseRecipients(s string) []string {
	var out []string
	for _, a := range strings.Split(s, ",") {
		if a = strings.TrimSpace(a); a != "" {
			out = append(out, a)
		}
	}
	return out
}

func (n *EmailNotifier) NotifyFailure(_ context.Context, run storage.RefreshRun) error {
	e := email.NewEmail()
	e.From = n.cfg.From
	e.To = n.cfg.To
	e.Subject = fmt.Sprintf("finboard: transaction refresh failed (%s)", run.ErrorKind)
	e.Text = []byte(fmt.Sprintf(
		"The %s transaction refresh started at %s failed after %s.\n\n"+
			"Run: %s\nError kind: %s\nError: %s\n\n"+
			"The next scheduled run will try again.\n",
		run.Trigger,
		run.StartedAt.Format("2006-01-02 15:04:05 MST"),
		run.Duration().Round(time.Millisecond),
		run.ID, run.ErrorKind, run.ErrorMessage,
	))

	var auth smtp.Auth
	if n.cfg.Username != "" {
		auth = smtp.PlainAuth("", n.cfg.Username, n.cfg.Password, n.cfg.Host)
	}
	addr := fmt.Sprintf("%s:%d", n.cfg.Host, n.cfg.Port)
	if err := n.send(e, addr, auth); err != nil {
		return fmt.Errorf("send alert email: %w", err)
	}
	return nil
}
