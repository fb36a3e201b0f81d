package delivery

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/wneessen/go-mail"
	"go.uber.org/zap"

	"github.com/clearledger/compliance-backend/internal/domain/errors"
	"github.com/clearledger/compliance-backend/internal/domain/report"
	"github.com/clearledger/compliance-backend/internal/infrastructure/config"
)

// EmailChannel delivers report artifacts as SMTP attachments.
type EmailChannel struct {
	cfg    config.SMTPConfig
	logger *zap.Logger
}

// NewEmailChannel creates an SMTP delivery channel
func NewEmailChannel(cfg config.SMTPConfig, logger *zap.Logger) *EmailChannel {
	return &EmailChannel{cfg: cfg, logger: logger}
}

func (c *EmailChannel) Method() report.DeliveryMethod {
	return report.DeliveryEmail
}

func (c *EmailChannel) Deliver(ctx context.Context, cfg report.DeliveryConfig, req *Request) (*Receipt, error) {
	ec := cfg.Email

	msg := mail.NewMsg()
	if err := msg.From(c.cfg.From); err != nil {
		return nil, errors.NewDeliveryError("INVALID_SENDER",
			"invalid sender address "+c.cfg.From, false).WithCause(err)
	}
	if err := msg.To(ec.Recipients...); err != nil {
		return nil, errors.NewDeliveryError("INVALID_RECIPIENTS",
			"invalid recipient address", false).WithCause(err)
	}

	subject := ec.Subject
	if subject == "" {
		subject = fmt.Sprintf("Compliance report: %s", req.ReportName)
	}
	msg.Subject(subject)
	msg.SetBodyString(mail.TypeTextPlain, fmt.Sprintf(
		"The scheduled compliance report %q (%s) has completed.\n\n"+
			"The report is attached as %s.\n",
		req.ReportName, req.ReportType, req.Artifact.Filename))

	if err := msg.AttachReader(req.Artifact.Filename, bytes.NewReader(req.Artifact.Data)); err != nil {
		return nil, errors.NewDeliveryError("ATTACHMENT_FAILED",
			"failed to attach report artifact", false).WithCause(err)
	}

	client, err := mail.NewClient(c.cfg.Host,
		mail.WithPort(c.cfg.Port),
		mail.WithSMTPAuth(mail.SMTPAuthPlain),
		mail.WithUsername(c.cfg.Username),
		mail.WithPassword(c.cfg.Password),
	)
	if err != nil {
		return nil, errors.NewDeliveryError("SMTP_CLIENT_FAILED",
			"failed to create SMTP client", false).WithCause(err)
	}

	// Connection and protocol failures are transient; the server may
	// simply be unavailable right now.
	if err := client.DialAndSendWithContext(ctx, msg); err != nil {
		return nil, errors.NewDeliveryError("SMTP_SEND_FAILED",
			"failed to send report email", true).WithCause(err)
	}

	c.logger.Debug("report emailed",
		zap.Strings("recipients", ec.Recipients),
		zap.String("filename", req.Artifact.Filename))

	return &Receipt{DeliveredAt: time.Now().UTC()}, nil
}
