package notifications

import "context"

type VerificationEmailInput struct {
	Email     string
	FirstName string
	Token     string
}

type PasswordResetEmailInput struct {
	Email     string
	FirstName string
	Token     string
}

// Mailer delivers account emails. Delivery is best-effort from the API's
// point of view: auth flows respond the same whether or not the email went
// out, so callers log failures instead of propagating them.
type Mailer interface {
	SendVerificationEmail(ctx context.Context, in VerificationEmailInput) error
	SendPasswordResetEmail(ctx context.Context, in PasswordResetEmailInput) error
}
