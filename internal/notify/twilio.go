package notify

import (
	"context"
	"fmt"

	"github.com/twilio/twilio-go"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"
)

// TwilioTexter отправляет SMS через Twilio.
type TwilioTexter struct {
	client *twilio.RestClient
	from   string
}

// NewTwilioTexter создаёт SMS-транспорт с учётными данными аккаунта Twilio.
func NewTwilioTexter(accountSID, authToken, from string) *TwilioTexter {
	client := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: accountSID,
		Password: authToken,
	})
	return &TwilioTexter{client: client, from: from}
}

// Send отправляет SMS. Клиент Twilio не принимает контекст, поэтому отмена лишь прекращает ожидание ответа.
func (t *TwilioTexter) Send(ctx context.Context, to, body string) error {
	params := &twilioApi.CreateMessageParams{}
	params.SetTo(to)
	params.SetFrom(t.from)
	params.SetBody(body)

	errCh := make(chan error, 1)
	go func() {
		_, err := t.client.Api.CreateMessage(params)
		errCh <- err
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("create message: %w", err)
		}
		return nil
	}
}
