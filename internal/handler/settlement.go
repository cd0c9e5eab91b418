package handler

import (
	"encoding/json"
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/mmeshcher/campaignfund/internal/service"
)

type createOrderRequest struct {
	Amount     decimal.Decimal `json:"amount"`
	CampaignID string          `json:"campaignId"`
}

type orderResponse struct {
	OrderID    string          `json:"orderId"`
	Amount     decimal.Decimal `json:"amount"`
	Currency   string          `json:"currency"`
	CampaignID string          `json:"campaignId"`
}

// CreateOrder создаёт заказ в платёжном шлюзе.
func (h *Handler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	var req createOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.fail(w, http.StatusBadRequest, "malformed request body")
		return
	}

	order, err := h.service.CreateOrder(r.Context(), principal(r), req.Amount, req.CampaignID)
	if err != nil {
		h.writeError(w, r, "create order error", err)
		return
	}

	writeJSON(w, http.StatusOK, orderResponse{
		OrderID:    order.ID,
		Amount:     order.Amount,
		Currency:   order.Currency,
		CampaignID: order.CampaignID,
	})
}

type verifyRequest struct {
	OrderID    string          `json:"orderId"`
	CampaignID string          `json:"campaignId"`
	Amount     decimal.Decimal `json:"amount"`
	PaymentID  string          `json:"paymentId"`
	Signature  string          `json:"signature"`
}

type paymentResponse struct {
	ID        string `json:"id"`
	OrderID   string `json:"orderId"`
	Signature string `json:"signature"`
	Status    string `json:"status"`
}

type verifyResponse struct {
	Success          bool            `json:"success"`
	DonationID       string          `json:"donationId"`
	ReceiptAvailable bool            `json:"receiptAvailable"`
	Payment          paymentResponse `json:"payment"`
}

// VerifyPayment проверяет платёж и записывает пожертвование.
func (h *Handler) VerifyPayment(w http.ResponseWriter, r *http.Request) {
	var req verifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.fail(w, http.StatusBadRequest, "malformed request body")
		return
	}

	res, err := h.service.Settle(r.Context(), principal(r), service.SettlementRequest{
		OrderID:    req.OrderID,
		CampaignID: req.CampaignID,
		Amount:     req.Amount,
		PaymentID:  req.PaymentID,
		Signature:  req.Signature,
	})
	if err != nil {
		h.writeError(w, r, "settle payment error", err)
		return
	}

	writeJSON(w, http.StatusOK, verifyResponse{
		Success:          true,
		DonationID:       res.DonationID,
		ReceiptAvailable: res.ReceiptRef != "",
		Payment: paymentResponse{
			ID:        res.Payment.ID,
			OrderID:   res.Payment.OrderID,
			Signature: res.Payment.Signature,
			Status:    res.Payment.Status,
		},
	})
}
