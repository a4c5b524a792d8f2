package jobs

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"html/template"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"github.com/arklim/rbac-auth-service/internal/core/port"
	"github.com/arklim/rbac-auth-service/internal/infra/logger"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskTypeSendEmailCode delivers a login or password-change code.
	TaskTypeSendEmailCode = "mail:send_code"
)

// SendEmailCodePayload is the serialised form of port.EmailCodeMessage.
type SendEmailCodePayload struct {
	To       string `json:"to"`
	Username string `json:"username"`
	Code     string `json:"code"`
}

// NewSendEmailCodeTask constructs an Asynq task for msg.
func NewSendEmailCodeTask(msg port.EmailCodeMessage) (*asynq.Task, error) {
	data, err := json.Marshal(SendEmailCodePayload{To: msg.To, Username: msg.Username, Code: msg.Code})
	if err != nil {
		return nil, fmt.Errorf("marshal email code payload: %w", err)
	}
	return asynq.NewTask(TaskTypeSendEmailCode, data), nil
}

var codeTemplate = template.Must(template.New("email_code").Parse(
	`<p>Hello {{.Username}},</p>` +
		`<p>Your verification code is <strong>{{.Code}}</strong>.</p>` +
		`<p>It expires in {{.Minutes}} minutes. If you did not request it, ignore this message.</p>`,
))

// RenderEmailCode produces the HTML body of a code email.
func RenderEmailCode(payload SendEmailCodePayload, validMinutes int) (string, error) {
	var buf bytes.Buffer
	err := codeTemplate.Execute(&buf, struct {
		Username string
		Code     string
		Minutes  int
	}{payload.Username, payload.Code, validMinutes})
	if err != nil {
		return "", fmt.Errorf("render email code: %w", err)
	}
	return buf.String(), nil
}

// EmailCodeHandler sends queued code emails through a Mailer.
type EmailCodeHandler struct {
	mailer       port.Mailer
	subject      string
	validMinutes int
	logger       *zap.Logger
}

// NewEmailCodeHandler constructs the handler for TaskTypeSendEmailCode.
func NewEmailCodeHandler(mailer port.Mailer, subject string, validMinutes int, log *zap.Logger) *EmailCodeHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &EmailCodeHandler{mailer: mailer, subject: subject, validMinutes: validMinutes, logger: log}
}

// ProcessTask implements asynq.Handler. Malformed payloads are not retried.
func (h *EmailCodeHandler) ProcessTask(ctx context.Context, task *asynq.Task) error {
	var payload SendEmailCodePayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return fmt.Errorf("decode email code payload: %v: %w", err, asynq.SkipRetry)
	}
	if payload.To == "" || payload.Code == "" {
		return fmt.Errorf("email code payload missing recipient or code: %w", asynq.SkipRetry)
	}
	return h.deliver(ctx, payload)
}

func (h *EmailCodeHandler) deliver(ctx context.Context, payload SendEmailCodePayload) error {
	body, err := RenderEmailCode(payload, h.validMinutes)
	if err != nil {
		return err
	}
	if err := h.mailer.Send(ctx, payload.To, h.subject, body); err != nil {
		h.logger.Warn("email code delivery failed", zap.String("to", logger.MaskEmail(payload.To)), zap.Error(err))
		return fmt.Errorf("send email code: %w", err)
	}
	h.logger.Info("email code delivered", zap.String("to", logger.MaskEmail(payload.To)))
	return nil
}
