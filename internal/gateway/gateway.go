// Package gateway содержит имитацию внешнего платёжного шлюза.
package gateway

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/mmeshcher/campaignfund/internal/validation"
)

// Currency задаёт единственную поддерживаемую валюту.
const Currency = "INR"

const (
	OrderStatusCreated   = "CREATED"
	PaymentStatusSuccess = "SUCCESS"
)

var (
	// ErrInvalidAmount возвращается при попытке создать заказ с недопустимой суммой.
	ErrInvalidAmount = errors.New("gateway: invalid amount")
	// ErrOrderNotFound возвращается хранилищем, если заказ не найден или истёк.
	ErrOrderNotFound = errors.New("gateway: order not found")
)

// Order описывает заказ, созданный в шлюзе.
type Order struct {
	ID         string          `json:"id"`
	Amount     decimal.Decimal `json:"amount"`
	Currency   string          `json:"currency"`
	Status     string          `json:"status"`
	CampaignID string          `json:"campaignId"`
	CreatedAt  time.Time       `json:"createdAt"`
}

// Payment описывает проведённый платёж.
type Payment struct {
	ID        string
	OrderID   string
	Signature string
	Status    string
}

// Verification содержит результат проверки платежа.
type Verification struct {
	Success    bool
	OrderID    string
	PaymentID  string
	Amount     decimal.Decimal
	CampaignID string
	Reason     string
}

// IDGenerator выдаёт идентификаторы заказов и платежей и подписывает платежи.
type IDGenerator interface {
	NewOrderID() string
	NewPaymentID() string
	Sign(orderID, paymentID string) string
}

// OrderStore хранит созданные заказы до их проверки.
type OrderStore interface {
	Save(ctx context.Context, order Order) error
	Get(ctx context.Context, orderID string) (Order, error)
}

// Mock имитирует шлюз: заказы сохраняются, проверка успешна для любого известного заказа.
type Mock struct {
	orders OrderStore
	ids    IDGenerator
	now    func() time.Time
}

// NewMock создаёт имитацию шлюза с указанным хранилищем заказов и генератором идентификаторов.
func NewMock(orders OrderStore, ids IDGenerator) *Mock {
	return &Mock{
		orders: orders,
		ids:    ids,
		now:    time.Now,
	}
}

// CreateOrder создаёт заказ на указанную сумму в пользу кампании.
func (m *Mock) CreateOrder(ctx context.Context, amount decimal.Decimal, campaignID string) (Order, error) {
	if !validation.IsValidAmount(amount) {
		return Order{}, ErrInvalidAmount
	}

	order := Order{
		ID:         m.ids.NewOrderID(),
		Amount:     amount,
		Currency:   Currency,
		Status:     OrderStatusCreated,
		CampaignID: campaignID,
		CreatedAt:  m.now().UTC(),
	}

	if err := m.orders.Save(ctx, order); err != nil {
		return Order{}, fmt.Errorf("save order: %w", err)
	}

	return order, nil
}

// CreatePayment выдаёт данные успешного платежа по заказу.
func (m *Mock) CreatePayment(_ context.Context, orderID string) (Payment, error) {
	paymentID := m.ids.NewPaymentID()
	return Payment{
		ID:        paymentID,
		OrderID:   orderID,
		Signature: m.ids.Sign(orderID, paymentID),
		Status:    PaymentStatusSuccess,
	}, nil
}

// VerifyPayment проверяет платёж по заказу. Проверка успешна для любого ранее созданного
// и не истёкшего заказа; подпись не проверяется.
func (m *Mock) VerifyPayment(ctx context.Context, orderID string) (Verification, error) {
	order, err := m.orders.Get(ctx, orderID)
	if err != nil {
		if errors.Is(err, ErrOrderNotFound) {
			return Verification{OrderID: orderID, Reason: "unknown or expired order"}, nil
		}
		return Verification{}, fmt.Errorf("load order: %w", err)
	}

	return Verification{
		Success:    true,
		OrderID:    order.ID,
		PaymentID:  m.ids.NewPaymentID(),
		Amount:     order.Amount,
		CampaignID: order.CampaignID,
	}, nil
}

// RandomIDs генерирует идентификаторы в формате шлюза и подписывает их HMAC-SHA256.
type RandomIDs struct {
	secret []byte
}

// NewRandomIDs создаёт генератор с секретом для подписей.
func NewRandomIDs(secret string) *RandomIDs {
	return &RandomIDs{secret: []byte(secret)}
}

// NewOrderID возвращает новый идентификатор заказа.
func (g *RandomIDs) NewOrderID() string {
	return "MOCK_ORDER_" + compactUUID()
}

// NewPaymentID возвращает новый идентификатор платежа.
func (g *RandomIDs) NewPaymentID() string {
	return "MOCK_PAY_" + compactUUID()
}

// Sign подписывает пару заказ/платёж.
func (g *RandomIDs) Sign(orderID, paymentID string) string {
	mac := hmac.New(sha256.New, g.secret)
	mac.Write([]byte(orderID + "|" + paymentID))
	return "MOCK_SIGNATURE_" + hex.EncodeToString(mac.Sum(nil))
}

func compactUUID() string {
	return strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", ""))
}

var mockPrefix = regexp.MustCompile(`(?i)^MOCK_(PAYMENT|PAY|ORDER)_?`)

// DisplayReference убирает служебный префикс шлюза из идентификатора для показа пользователю.
func DisplayReference(ref string) string {
	return mockPrefix.ReplaceAllString(ref, "")
}
