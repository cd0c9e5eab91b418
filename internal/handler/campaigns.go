package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/mmeshcher/campaignfund/internal/model"
	"github.com/mmeshcher/campaignfund/internal/service"
)

const (
	maxMultipartMemory = 10 << 20
	maxImageSize       = 5 << 20
)

type campaignRequest struct {
	Title        string          `json:"title"`
	Description  string          `json:"description"`
	TargetAmount decimal.Decimal `json:"targetAmount"`
	Deadline     string          `json:"deadline"`
}

type campaignResponse struct {
	ID              string          `json:"id"`
	Title           string          `json:"title"`
	Description     string          `json:"description"`
	TargetAmount    decimal.Decimal `json:"targetAmount"`
	CollectedAmount decimal.Decimal `json:"collectedAmount"`
	Deadline        *string         `json:"deadline,omitempty"`
	Status          string          `json:"status"`
	CreatedBy       string          `json:"createdBy"`
	Images          []string        `json:"images"`
	CreatedAt       string          `json:"createdAt"`
}

func toCampaignResponse(c model.Campaign) campaignResponse {
	resp := campaignResponse{
		ID:              c.ID,
		Title:           c.Title,
		Description:     c.Description,
		TargetAmount:    c.TargetAmount,
		CollectedAmount: c.CollectedAmount,
		Status:          string(c.Status),
		CreatedBy:       c.CreatedBy,
		Images:          c.Images,
		CreatedAt:       c.CreatedAt.Format(time.RFC3339),
	}
	if resp.Images == nil {
		resp.Images = []string{}
	}
	if c.Deadline != nil {
		d := c.Deadline.Format(time.RFC3339)
		resp.Deadline = &d
	}
	return resp
}

// CreateCampaign создаёт кампанию. Принимает multipart/form-data с файлами в поле images или JSON.
func (h *Handler) CreateCampaign(w http.ResponseWriter, r *http.Request) {
	in, err := parseCampaignInput(r)
	if err != nil {
		h.fail(w, http.StatusBadRequest, err.Error())
		return
	}

	c, err := h.service.CreateCampaign(r.Context(), principal(r), in)
	if err != nil {
		h.writeError(w, r, "create campaign error", err)
		return
	}

	writeJSON(w, http.StatusCreated, toCampaignResponse(*c))
}

func parseCampaignInput(r *http.Request) (service.CampaignInput, error) {
	var req campaignRequest
	var images []service.Upload

	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		if err := r.ParseMultipartForm(maxMultipartMemory); err != nil {
			return service.CampaignInput{}, errors.New("malformed multipart form")
		}
		req.Title = r.FormValue("title")
		req.Description = r.FormValue("description")
		req.Deadline = r.FormValue("deadline")

		target, err := decimal.NewFromString(strings.TrimSpace(r.FormValue("targetAmount")))
		if err != nil {
			return service.CampaignInput{}, errors.New("invalid target amount")
		}
		req.TargetAmount = target

		for _, fh := range r.MultipartForm.File["images"] {
			if fh.Size > maxImageSize {
				return service.CampaignInput{}, fmt.Errorf("image %s is too large", fh.Filename)
			}
			f, err := fh.Open()
			if err != nil {
				return service.CampaignInput{}, fmt.Errorf("read image %s", fh.Filename)
			}
			data, err := io.ReadAll(f)
			f.Close()
			if err != nil {
				return service.CampaignInput{}, fmt.Errorf("read image %s", fh.Filename)
			}
			images = append(images, service.Upload{Name: fh.Filename, Data: data})
		}
	} else if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return service.CampaignInput{}, errors.New("malformed request body")
	}

	deadline, err := parseDeadline(req.Deadline)
	if err != nil {
		return service.CampaignInput{}, err
	}

	return service.CampaignInput{
		Title:        req.Title,
		Description:  req.Description,
		TargetAmount: req.TargetAmount,
		Deadline:     deadline,
		Images:       images,
	}, nil
}

func parseDeadline(s string) (*time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	for _, layout := range []string{time.RFC3339, time.DateOnly} {
		if t, err := time.Parse(layout, s); err == nil {
			return &t, nil
		}
	}
	return nil, errors.New("invalid deadline")
}

// ListCampaigns возвращает кампании: администраторам все, остальным только активные.
func (h *Handler) ListCampaigns(w http.ResponseWriter, r *http.Request) {
	p := principal(r)

	campaigns, err := h.service.ListCampaigns(r.Context(), p, p.IsAdmin())
	if err != nil {
		h.writeError(w, r, "list campaigns error", err)
		return
	}

	resp := make([]campaignResponse, 0, len(campaigns))
	for _, c := range campaigns {
		resp = append(resp, toCampaignResponse(c))
	}
	writeJSON(w, http.StatusOK, resp)
}

// GetCampaign возвращает кампанию по идентификатору.
func (h *Handler) GetCampaign(w http.ResponseWriter, r *http.Request) {
	c, err := h.service.GetCampaign(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, "get campaign error", err)
		return
	}
	writeJSON(w, http.StatusOK, toCampaignResponse(*c))
}

// CloseCampaign закрывает кампанию.
func (h *Handler) CloseCampaign(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.service.CloseCampaign(r.Context(), principal(r), id); err != nil {
		h.writeError(w, r, "close campaign error", err)
		return
	}

	c, err := h.service.GetCampaign(r.Context(), id)
	if err != nil {
		h.writeError(w, r, "get campaign error", err)
		return
	}
	writeJSON(w, http.StatusOK, toCampaignResponse(*c))
}

// DeleteCampaign удаляет кампанию.
func (h *Handler) DeleteCampaign(w http.ResponseWriter, r *http.Request) {
	if err := h.service.DeleteCampaign(r.Context(), principal(r), chi.URLParam(r, "id")); err != nil {
		h.writeError(w, r, "delete campaign error", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
