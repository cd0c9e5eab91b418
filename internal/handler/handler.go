// Package handler содержит HTTP-обработчики API сервиса сбора пожертвований.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/mmeshcher/campaignfund/internal/gateway"
	"github.com/mmeshcher/campaignfund/internal/middleware"
	"github.com/mmeshcher/campaignfund/internal/model"
	"github.com/mmeshcher/campaignfund/internal/repository"
	"github.com/mmeshcher/campaignfund/internal/service"
)

// Service определяет контракт бизнес-логики, используемой HTTP-обработчиками.
type Service interface {
	RegisterUser(ctx context.Context, req service.RegisterRequest) (*model.Principal, error)
	AuthenticateUser(ctx context.Context, login, password string) (*model.Principal, error)

	CreateOrder(ctx context.Context, p model.Principal, amount decimal.Decimal, campaignID string) (gateway.Order, error)
	Settle(ctx context.Context, p model.Principal, req service.SettlementRequest) (*service.SettlementResult, error)

	MyDonations(ctx context.Context, p model.Principal) ([]model.DonationView, error)
	CampaignDonations(ctx context.Context, p model.Principal, campaignID string) (*model.CampaignDonations, error)
	FetchReceipt(ctx context.Context, p model.Principal, donationID string) ([]byte, error)

	CreateCampaign(ctx context.Context, p model.Principal, in service.CampaignInput) (*model.Campaign, error)
	ListCampaigns(ctx context.Context, p model.Principal, all bool) ([]model.Campaign, error)
	GetCampaign(ctx context.Context, id string) (*model.Campaign, error)
	CloseCampaign(ctx context.Context, p model.Principal, id string) error
	DeleteCampaign(ctx context.Context, p model.Principal, id string) error
}

// Handler реализует HTTP-обработчики API сервиса сбора пожертвований.
type Handler struct {
	service        Service
	logger         *zap.Logger
	authMiddleware *middleware.AuthMiddleware
}

// NewHandler создаёт новый экземпляр обработчика HTTP-запросов.
func NewHandler(s Service, logger *zap.Logger, auth *middleware.AuthMiddleware) *Handler {
	return &Handler{
		service:        s,
		logger:         logger,
		authMiddleware: auth,
	}
}

type registerRequest struct {
	Login     string `json:"login"`
	Password  string `json:"password"`
	Email     string `json:"email"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Phone     string `json:"phone"`
}

type credentialsRequest struct {
	Login    string `json:"login"`
	Password string `json:"password"`
}

type userResponse struct {
	ID        string `json:"id"`
	Role      string `json:"role"`
	Email     string `json:"email,omitempty"`
	FirstName string `json:"firstName,omitempty"`
	LastName  string `json:"lastName,omitempty"`
	Username  string `json:"username"`
}

type errorResponse struct {
	Success bool   `json:"success"`
	Reason  string `json:"reason"`
}

// Register обрабатывает регистрацию нового пользователя.
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.fail(w, http.StatusBadRequest, "malformed request body")
		return
	}

	if req.Login == "" || req.Password == "" {
		h.fail(w, http.StatusBadRequest, "login and password are required")
		return
	}

	p, err := h.service.RegisterUser(r.Context(), service.RegisterRequest{
		Login:     req.Login,
		Password:  req.Password,
		Email:     req.Email,
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Phone:     req.Phone,
	})
	if err != nil {
		h.writeError(w, r, "register user error", err)
		return
	}

	h.signIn(w, r, *p)
}

// Login выполняет аутентификацию пользователя и устанавливает cookie.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.fail(w, http.StatusBadRequest, "malformed request body")
		return
	}

	if req.Login == "" || req.Password == "" {
		h.fail(w, http.StatusBadRequest, "login and password are required")
		return
	}

	p, err := h.service.AuthenticateUser(r.Context(), req.Login, req.Password)
	if err != nil {
		h.writeError(w, r, "login user error", err)
		return
	}

	h.signIn(w, r, *p)
}

func (h *Handler) signIn(w http.ResponseWriter, r *http.Request, p model.Principal) {
	if err := h.authMiddleware.SetAuthCookie(w, p); err != nil {
		h.writeError(w, r, "issue token error", err)
		return
	}

	writeJSON(w, http.StatusOK, userResponse{
		ID:        p.ID,
		Role:      string(p.Role),
		Email:     p.Email,
		FirstName: p.FirstName,
		LastName:  p.LastName,
		Username:  p.Username,
	})
}

func principal(r *http.Request) model.Principal {
	p, _ := middleware.PrincipalFromContext(r.Context())
	return p
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (h *Handler) fail(w http.ResponseWriter, status int, reason string) {
	writeJSON(w, status, errorResponse{Success: false, Reason: reason})
}

// writeError переводит ошибку бизнес-логики в HTTP-ответ. Внутренние ошибки логируются,
// а клиенту возвращается только общий текст.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, msg string, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		h.logger.Error(msg,
			zap.Error(err),
			zap.String("requestID", middleware.RequestIDFromContext(r.Context())),
		)
		h.fail(w, status, http.StatusText(status))
		return
	}
	h.fail(w, status, err.Error())
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, service.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, service.ErrInvalidCredentials):
		return http.StatusUnauthorized
	case errors.Is(err, service.ErrPaymentRejected):
		return http.StatusPaymentRequired
	case errors.Is(err, service.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, repository.ErrCampaignNotFound),
		errors.Is(err, repository.ErrDonationNotFound),
		errors.Is(err, service.ErrReceiptMissing):
		return http.StatusNotFound
	case errors.Is(err, repository.ErrCampaignClosed),
		errors.Is(err, repository.ErrUserExists):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
