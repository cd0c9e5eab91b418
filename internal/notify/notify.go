// Package notify отправляет жертвователям уведомления по электронной почте и SMS.
package notify

import (
	"bytes"
	"context"
	"embed"
	"errors"
	"fmt"
	"html/template"
	"path"
	"time"
	"unicode/utf8"

	"github.com/cenkalti/backoff/v5"
	"go.uber.org/zap"

	"github.com/mmeshcher/campaignfund/internal/gateway"
)

// Каналы доставки.
const (
	ChannelEmail = "email"
	ChannelSMS   = "sms"
)

// MaxSMSLength задаёт максимальную длину SMS в символах.
const MaxSMSLength = 160

var (
	// ErrChannelUnavailable возвращается, если канал доставки не настроен.
	ErrChannelUnavailable = errors.New("notify: channel unavailable")
	// ErrNoRecipient возвращается, если не указан получатель.
	ErrNoRecipient = errors.New("notify: no recipient")
)

// DeliveryError описывает окончательную неудачу доставки после всех попыток.
type DeliveryError struct {
	Channel string
	Err     error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("notify: %s delivery failed: %v", e.Channel, e.Err)
}

func (e *DeliveryError) Unwrap() error {
	return e.Err
}

//go:embed templates/*.html
var templatesFS embed.FS

var receiptEmail = template.Must(template.ParseFS(templatesFS, "templates/donation_receipt.html"))

// Attachment описывает вложение письма.
type Attachment struct {
	Name string
	Data []byte
}

// Message описывает готовое к отправке письмо.
type Message struct {
	To          string
	Subject     string
	HTML        string
	Attachments []Attachment
}

// Mailer отправляет письма.
type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

// Texter отправляет SMS.
type Texter interface {
	Send(ctx context.Context, to, body string) error
}

// ArtifactReader читает сохранённые артефакты (квитанции).
type ArtifactReader interface {
	Read(ctx context.Context, key string) ([]byte, error)
}

// EmailData содержит данные для шаблона письма.
type EmailData struct {
	DonorName     string
	Amount        string
	CampaignTitle string
	PaymentRef    string
	Date          string
}

// EmailRequest описывает запрос на отправку письма с благодарностью.
type EmailRequest struct {
	To            string
	Data          EmailData
	AttachmentRef string
}

// SMSRequest описывает запрос на отправку SMS.
type SMSRequest struct {
	To         string
	Message    string
	PaymentRef string
}

// Dispatcher отправляет уведомления с ограничением времени и одной повторной попыткой.
type Dispatcher struct {
	mailer     Mailer
	texter     Texter
	artifacts  ArtifactReader
	logger     *zap.Logger
	timeout    time.Duration
	maxRetries uint
	retryDelay time.Duration
}

// NewDispatcher создаёт диспетчер уведомлений. Nil mailer или texter отключает соответствующий канал.
func NewDispatcher(mailer Mailer, texter Texter, artifacts ArtifactReader, logger *zap.Logger, timeout time.Duration) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Dispatcher{
		mailer:     mailer,
		texter:     texter,
		artifacts:  artifacts,
		logger:     logger,
		timeout:    timeout,
		maxRetries: 1,
		retryDelay: time.Second,
	}
}

// EmailEnabled сообщает, настроен ли почтовый канал.
func (d *Dispatcher) EmailEnabled() bool {
	return d.mailer != nil
}

// SMSEnabled сообщает, настроен ли SMS-канал.
func (d *Dispatcher) SMSEnabled() bool {
	return d.texter != nil
}

// SendEmail отправляет письмо с благодарностью и, если возможно, квитанцией во вложении.
func (d *Dispatcher) SendEmail(ctx context.Context, req EmailRequest) error {
	if d.mailer == nil {
		return ErrChannelUnavailable
	}
	if req.To == "" {
		return ErrNoRecipient
	}

	var body bytes.Buffer
	if err := receiptEmail.Execute(&body, req.Data); err != nil {
		return fmt.Errorf("render email: %w", err)
	}

	msg := Message{
		To:      req.To,
		Subject: emailSubject(req.Data.CampaignTitle),
		HTML:    body.String(),
	}

	if req.AttachmentRef != "" && d.artifacts != nil {
		data, err := d.artifacts.Read(ctx, req.AttachmentRef)
		if err != nil {
			d.logger.Warn("receipt attachment unavailable, sending without it",
				zap.String("ref", req.AttachmentRef),
				zap.Error(err),
			)
		} else {
			msg.Attachments = append(msg.Attachments, Attachment{
				Name: path.Base(req.AttachmentRef),
				Data: data,
			})
		}
	}

	return d.deliver(ctx, ChannelEmail, true, func(ctx context.Context) error {
		return d.mailer.Send(ctx, msg)
	})
}

// SendSMS отправляет SMS, дополняя текст ссылкой на платёж.
func (d *Dispatcher) SendSMS(ctx context.Context, req SMSRequest) error {
	if d.texter == nil {
		return ErrChannelUnavailable
	}
	if req.To == "" {
		return ErrNoRecipient
	}

	body := SMSBody(req.Message, req.PaymentRef)

	// Запрос к Twilio не отменяется по таймауту, поэтому повтор после таймаута мог бы
	// отправить второе сообщение.
	return d.deliver(ctx, ChannelSMS, false, func(ctx context.Context) error {
		return d.texter.Send(ctx, req.To, body)
	})
}

// SMSBody дополняет текст нормализованной ссылкой на платёж и обрезает его до MaxSMSLength символов.
func SMSBody(message, paymentRef string) string {
	body := message
	if paymentRef != "" {
		body += " | Ref: " + gateway.DisplayReference(paymentRef)
	}
	if utf8.RuneCountInString(body) > MaxSMSLength {
		body = string([]rune(body)[:MaxSMSLength])
	}
	return body
}

// deliver выполняет send с таймаутом на попытку и не более чем maxRetries повторами.
// Если retryTimeouts выключен, истёкший таймаут попытки завершает доставку без повтора.
func (d *Dispatcher) deliver(ctx context.Context, channel string, retryTimeouts bool, send func(context.Context) error) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = d.retryDelay

	attempt := 0
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		attempt++
		attemptCtx, cancel := context.WithTimeout(ctx, d.timeout)
		defer cancel()

		err := send(attemptCtx)
		if err != nil {
			d.logger.Debug("notification attempt failed",
				zap.String("channel", channel),
				zap.Int("attempt", attempt),
				zap.Error(err),
			)
			if !retryTimeouts && errors.Is(err, context.DeadlineExceeded) {
				return struct{}{}, backoff.Permanent(err)
			}
		}
		return struct{}{}, err
	}, backoff.WithBackOff(b), backoff.WithMaxTries(d.maxRetries+1))
	if err != nil {
		return &DeliveryError{Channel: channel, Err: err}
	}
	return nil
}

func emailSubject(campaignTitle string) string {
	if campaignTitle == "" {
		return "Thank you for your donation"
	}
	return "Thank you for supporting " + campaignTitle
}
