package port

import "context"

// EmailCodeMessage is the payload handed to background delivery.
type EmailCodeMessage struct {
	To       string
	Username string
	Code     string
}

// MailQueue schedules email delivery outside the request path.
type MailQueue interface {
	EnqueueEmailCode(ctx context.Context, msg EmailCodeMessage) error
}

// Mailer sends a rendered message synchronously.
type Mailer interface {
	Send(ctx context.Context, to, subject, htmlBody string) error
}
