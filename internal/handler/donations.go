package handler

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/mmeshcher/campaignfund/internal/model"
	"github.com/mmeshcher/campaignfund/internal/service"
)

type donationResponse struct {
	ID               string          `json:"id"`
	CampaignID       string          `json:"campaignId"`
	CampaignTitle    string          `json:"campaignTitle,omitempty"`
	DonorID          string          `json:"donorId"`
	DonorName        string          `json:"donorName,omitempty"`
	Amount           decimal.Decimal `json:"amount"`
	PaymentID        string          `json:"paymentId"`
	OrderID          string          `json:"orderId"`
	ReceiptAvailable bool            `json:"receiptAvailable"`
	CreatedAt        string          `json:"createdAt"`
}

type campaignDonationsResponse struct {
	Donations   []donationResponse `json:"donations"`
	Total       int                `json:"total"`
	TotalAmount decimal.Decimal    `json:"totalAmount"`
}

func toDonationResponses(views []model.DonationView, withDonor bool) []donationResponse {
	resp := make([]donationResponse, 0, len(views))
	for _, v := range views {
		d := donationResponse{
			ID:               v.ID,
			CampaignID:       v.CampaignID,
			CampaignTitle:    v.CampaignTitle,
			DonorID:          v.DonorID,
			Amount:           v.Amount,
			PaymentID:        v.PaymentID,
			OrderID:          v.OrderID,
			ReceiptAvailable: v.ReceiptRef != nil,
			CreatedAt:        v.CreatedAt.Format(time.RFC3339),
		}
		if withDonor {
			d.DonorName = v.DonorName
		}
		resp = append(resp, d)
	}
	return resp
}

// MyDonations возвращает пожертвования текущего пользователя.
func (h *Handler) MyDonations(w http.ResponseWriter, r *http.Request) {
	donations, err := h.service.MyDonations(r.Context(), principal(r))
	if err != nil {
		h.writeError(w, r, "get donations error", err)
		return
	}

	writeJSON(w, http.StatusOK, toDonationResponses(donations, false))
}

// CampaignDonations возвращает пожертвования кампании с итогами.
func (h *Handler) CampaignDonations(w http.ResponseWriter, r *http.Request) {
	res, err := h.service.CampaignDonations(r.Context(), principal(r), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, "get campaign donations error", err)
		return
	}

	writeJSON(w, http.StatusOK, campaignDonationsResponse{
		Donations:   toDonationResponses(res.Donations, true),
		Total:       res.Total,
		TotalAmount: res.TotalAmount,
	})
}

// DownloadReceipt отдаёт PDF-квитанцию. Если квитанция ещё не сформирована, возвращается
// ответ 200 с success=false.
func (h *Handler) DownloadReceipt(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	data, err := h.service.FetchReceipt(r.Context(), principal(r), id)
	if err != nil {
		if errors.Is(err, service.ErrReceiptNotReady) {
			h.fail(w, http.StatusOK, err.Error())
			return
		}
		h.writeError(w, r, "fetch receipt error", err)
		return
	}

	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", `attachment; filename="receipt_`+id+`.pdf"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}
