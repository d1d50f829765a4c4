package notifications

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// LogMailer writes the email to the log instead of sending it. It is the
// default transport for dev and test; a real SMTP or provider-backed mailer
// slots in behind the same interface.
type LogMailer struct {
	log     *slog.Logger
	baseURL string
}

func NewLogMailer(log *slog.Logger, baseURL string) *LogMailer {
	if log == nil {
		log = slog.Default()
	}

	return &LogMailer{log: log, baseURL: strings.TrimRight(baseURL, "/")}
}

func (m *LogMailer) SendVerificationEmail(ctx context.Context, in VerificationEmailInput) error {
	if err := m.simulate(ctx); err != nil {
		return err
	}

	m.log.Info("mail.verification",
		"email", in.Email,
		"name", in.FirstName,
		"link", m.baseURL+"/verify-email?token="+in.Token,
	)

	return nil
}

func (m *LogMailer) SendPasswordResetEmail(ctx context.Context, in PasswordResetEmailInput) error {
	if err := m.simulate(ctx); err != nil {
		return err
	}

	m.log.Info("mail.password_reset",
		"email", in.Email,
		"name", in.FirstName,
		"link", m.baseURL+"/reset-password?token="+in.Token,
	)

	return nil
}

// simulate honors MAILER_SLEEP_MS and MAILER_FAIL so slow or broken
// providers can be exercised without a real one.
func (m *LogMailer) simulate(ctx context.Context) error {
	if msStr := os.Getenv("MAILER_SLEEP_MS"); msStr != "" {
		ms, _ := strconv.Atoi(msStr)

		if ms > 0 {
			select {
			case <-time.After(time.Duration(ms) * time.Millisecond):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}

	if os.Getenv("MAILER_FAIL") == "1" {
		return fmt.Errorf("provider down (simulated)")
	}

	return nil
}
