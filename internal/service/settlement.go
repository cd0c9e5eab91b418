package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/mmeshcher/campaignfund/internal/events"
	"github.com/mmeshcher/campaignfund/internal/gateway"
	"github.com/mmeshcher/campaignfund/internal/model"
	"github.com/mmeshcher/campaignfund/internal/notify"
	"github.com/mmeshcher/campaignfund/internal/repository"
	"github.com/mmeshcher/campaignfund/internal/validation"
)

// SettlementRequest содержит данные платежа, пришедшие от клиента после оплаты.
type SettlementRequest struct {
	OrderID    string
	CampaignID string
	Amount     decimal.Decimal
	PaymentID  string
	Signature  string
}

// SettlementResult описывает записанное пожертвование.
type SettlementResult struct {
	DonationID string
	Payment    gateway.Payment
	ReceiptRef string
	// Replayed означает, что пожертвование по заказу было записано ранее.
	Replayed bool
}

// CreateOrder создаёт заказ в шлюзе для пожертвования в активную кампанию.
func (s *Service) CreateOrder(ctx context.Context, _ model.Principal, amount decimal.Decimal, campaignID string) (gateway.Order, error) {
	if campaignID == "" {
		return gateway.Order{}, fmt.Errorf("%w: campaign id is required", ErrValidation)
	}
	if !validation.IsValidAmount(amount) {
		return gateway.Order{}, fmt.Errorf("%w: amount must be positive with at most %d decimals", ErrValidation, validation.MaxAmountScale)
	}

	if _, err := s.activeCampaign(ctx, campaignID); err != nil {
		return gateway.Order{}, err
	}

	order, err := s.gateway.CreateOrder(ctx, amount, campaignID)
	if err != nil {
		return gateway.Order{}, fmt.Errorf("create gateway order: %w", err)
	}
	return order, nil
}

// Settle проверяет платёж и записывает пожертвование. После записи пожертвования
// учёт в кампании, квитанция и уведомления выполняются без отката: их ошибки
// только логируются. Повторный запрос по уже записанному заказу возвращает
// существующее пожертвование.
func (s *Service) Settle(ctx context.Context, p model.Principal, req SettlementRequest) (*SettlementResult, error) {
	req.OrderID = strings.TrimSpace(req.OrderID)
	req.CampaignID = strings.TrimSpace(req.CampaignID)
	if req.OrderID == "" || req.CampaignID == "" {
		return nil, fmt.Errorf("%w: order id and campaign id are required", ErrValidation)
	}
	if !validation.IsValidAmount(req.Amount) {
		return nil, fmt.Errorf("%w: amount must be positive with at most %d decimals", ErrValidation, validation.MaxAmountScale)
	}

	if res, err := s.replay(ctx, p, req.OrderID); res != nil || err != nil {
		return res, err
	}

	campaign, err := s.activeCampaign(ctx, req.CampaignID)
	if err != nil {
		return nil, err
	}

	v, err := s.gateway.VerifyPayment(ctx, req.OrderID)
	if err != nil {
		s.logger.Warn("payment verification failed", zap.String("orderID", req.OrderID), zap.Error(err))
		return nil, fmt.Errorf("%w: verification unavailable", ErrPaymentRejected)
	}
	switch {
	case !v.Success:
		return nil, fmt.Errorf("%w: %s", ErrPaymentRejected, v.Reason)
	case !v.Amount.Equal(req.Amount):
		return nil, fmt.Errorf("%w: amount does not match order", ErrPaymentRejected)
	case v.CampaignID != req.CampaignID:
		return nil, fmt.Errorf("%w: campaign does not match order", ErrPaymentRejected)
	}

	payment := s.resolvePayment(ctx, req, v)

	donation := model.Donation{
		ID:         uuid.NewString(),
		DonorID:    p.ID,
		CampaignID: req.CampaignID,
		Amount:     req.Amount,
		PaymentID:  payment.ID,
		OrderID:    req.OrderID,
		Signature:  payment.Signature,
		CreatedAt:  s.now().UTC(),
	}

	if err := s.repo.CreateDonation(ctx, donation); err != nil {
		if errors.Is(err, repository.ErrDuplicateOrder) {
			if res, rerr := s.replay(ctx, p, req.OrderID); res != nil || rerr != nil {
				return res, rerr
			}
		}
		if errors.Is(err, repository.ErrCampaignNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("persist donation: %w", err)
	}

	log := s.logger.With(
		zap.String("donationID", donation.ID),
		zap.String("campaignID", donation.CampaignID),
	)
	log.Info("donation recorded", zap.String("amount", donation.Amount.StringFixed(2)))

	// Дальнейшие шаги не должны прерываться отменой запроса.
	postCtx := context.WithoutCancel(ctx)

	s.applyLedger(postCtx, donation.ID, log)

	receiptRef := s.generateReceipt(postCtx, donation.ID, log)

	s.dispatch(postCtx, p, donation, campaign.Title, receiptRef)

	return &SettlementResult{
		DonationID: donation.ID,
		Payment:    payment,
		ReceiptRef: receiptRef,
	}, nil
}

// replay возвращает ранее записанное пожертвование по заказу или nil, если его нет.
func (s *Service) replay(ctx context.Context, p model.Principal, orderID string) (*SettlementResult, error) {
	existing, err := s.repo.GetDonationByOrder(ctx, orderID)
	if err != nil {
		if errors.Is(err, repository.ErrDonationNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("lookup donation by order: %w", err)
	}
	if existing.DonorID != p.ID {
		return nil, fmt.Errorf("%w: order already settled", ErrPaymentRejected)
	}

	res := &SettlementResult{
		DonationID: existing.ID,
		Payment: gateway.Payment{
			ID:        existing.PaymentID,
			OrderID:   existing.OrderID,
			Signature: existing.Signature,
			Status:    gateway.PaymentStatusSuccess,
		},
		Replayed: true,
	}
	if existing.ReceiptRef != nil {
		res.ReceiptRef = *existing.ReceiptRef
	}
	return res, nil
}

func (s *Service) activeCampaign(ctx context.Context, id string) (*model.Campaign, error) {
	c, err := s.repo.GetCampaign(ctx, id)
	if err != nil {
		return nil, err
	}
	if c.Status != model.CampaignStatusActive {
		return nil, repository.ErrCampaignClosed
	}
	return c, nil
}

func (s *Service) resolvePayment(ctx context.Context, req SettlementRequest, v gateway.Verification) gateway.Payment {
	if req.PaymentID != "" && req.Signature != "" {
		return gateway.Payment{
			ID:        req.PaymentID,
			OrderID:   req.OrderID,
			Signature: req.Signature,
			Status:    gateway.PaymentStatusSuccess,
		}
	}

	payment, err := s.gateway.CreatePayment(ctx, req.OrderID)
	if err != nil {
		s.logger.Warn("mock payment creation failed, using verification payment id",
			zap.String("orderID", req.OrderID),
			zap.Error(err),
		)
		return gateway.Payment{
			ID:      v.PaymentID,
			OrderID: req.OrderID,
			Status:  gateway.PaymentStatusSuccess,
		}
	}
	return payment
}

func (s *Service) generateReceipt(ctx context.Context, donationID string, log *zap.Logger) string {
	if s.receipts == nil {
		return ""
	}

	ref, err := s.receipts.Generate(ctx, donationID)
	if err != nil {
		log.Warn("receipt generation failed", zap.Error(err))
		return ""
	}

	if err := s.repo.AttachReceipt(ctx, donationID, ref); err != nil {
		log.Warn("failed to attach receipt", zap.String("ref", ref), zap.Error(err))
		return ""
	}
	return ref
}

// dispatch отправляет уведомления и событие в фоне. Каждый канал обрабатывается независимо.
func (s *Service) dispatch(ctx context.Context, p model.Principal, d model.Donation, campaignTitle, receiptRef string) {
	s.inflight.Add(1)
	go func() {
		defer s.inflight.Done()

		log := s.logger.With(zap.String("donationID", d.ID))
		amount := d.Amount.StringFixed(2) + " " + gateway.Currency

		if s.notifier != nil {
			err := s.notifier.SendEmail(ctx, notify.EmailRequest{
				To: p.Email,
				Data: notify.EmailData{
					DonorName:     p.DisplayName(),
					Amount:        amount,
					CampaignTitle: campaignTitle,
					PaymentRef:    gateway.DisplayReference(d.PaymentID),
					Date:          d.CreatedAt.Format("02 Jan 2006"),
				},
				AttachmentRef: receiptRef,
			})
			logNotifyResult(log, notify.ChannelEmail, err)

			if p.Phone != "" {
				err = s.notifier.SendSMS(ctx, notify.SMSRequest{
					To:         p.Phone,
					Message:    fmt.Sprintf("Thank you for donating %s to %s.", amount, campaignTitle),
					PaymentRef: d.PaymentID,
				})
				logNotifyResult(log, notify.ChannelSMS, err)
			}
		}

		pubCtx, cancel := context.WithTimeout(ctx, s.publishTimeout)
		defer cancel()
		err := s.events.PublishSettlement(pubCtx, events.Settlement{
			DonationID: d.ID,
			CampaignID: d.CampaignID,
			DonorID:    d.DonorID,
			Amount:     d.Amount.StringFixed(2),
			Currency:   gateway.Currency,
			PaymentID:  d.PaymentID,
			OrderID:    d.OrderID,
			SettledAt:  d.CreatedAt,
		})
		if err != nil {
			log.Warn("settlement event not published", zap.Error(err))
		}
	}()
}

func logNotifyResult(log *zap.Logger, channel string, err error) {
	switch {
	case err == nil:
		log.Info("notification sent", zap.String("channel", channel))
	case errors.Is(err, notify.ErrChannelUnavailable), errors.Is(err, notify.ErrNoRecipient):
		log.Debug("notification skipped", zap.String("channel", channel), zap.Error(err))
	default:
		log.Warn("notification failed", zap.String("channel", channel), zap.Error(err))
	}
}
