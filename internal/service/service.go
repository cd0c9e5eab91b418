// Package service реализует бизнес-логику сервиса сбора пожертвований.
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/mmeshcher/campaignfund/internal/events"
	"github.com/mmeshcher/campaignfund/internal/gateway"
	"github.com/mmeshcher/campaignfund/internal/model"
	"github.com/mmeshcher/campaignfund/internal/notify"
	"github.com/mmeshcher/campaignfund/internal/repository"
	"github.com/mmeshcher/campaignfund/internal/validation"
)

var (
	// ErrValidation возвращается при некорректных входных данных.
	ErrValidation = errors.New("validation failed")
	// ErrPaymentRejected возвращается, если шлюз не подтвердил платёж.
	ErrPaymentRejected = errors.New("payment rejected")
	// ErrForbidden возвращается, если у пользователя нет прав на операцию.
	ErrForbidden = errors.New("forbidden")
	// ErrInvalidCredentials возвращается при неверной паре логин/пароль.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrReceiptNotReady возвращается, если квитанция для пожертвования ещё не сформирована.
	ErrReceiptNotReady = errors.New("receipt not available yet")
	// ErrReceiptMissing возвращается, если ссылка на квитанцию есть, а файла нет.
	ErrReceiptMissing = errors.New("receipt file missing")
)

// Repository описывает контракт доступа к данным, используемый сервисом.
type Repository interface {
	Close() error
	CreateUser(ctx context.Context, u model.User) error
	GetUserByLogin(ctx context.Context, login string) (*model.User, error)
	CreateCampaign(ctx context.Context, c model.Campaign) error
	GetCampaign(ctx context.Context, id string) (*model.Campaign, error)
	ListCampaigns(ctx context.Context, activeOnly bool) ([]model.Campaign, error)
	CloseCampaign(ctx context.Context, id string) error
	DeleteCampaign(ctx context.Context, id string) ([]string, error)
	CreateDonation(ctx context.Context, d model.Donation) error
	GetDonation(ctx context.Context, id string) (*model.Donation, error)
	GetDonationByOrder(ctx context.Context, orderID string) (*model.Donation, error)
	AttachReceipt(ctx context.Context, donationID, ref string) error
	ApplyDonationToLedger(ctx context.Context, donationID string) (bool, error)
	GetDonationsByDonor(ctx context.Context, donorID string) ([]model.DonationView, error)
	GetDonationsByCampaign(ctx context.Context, campaignID string) ([]model.DonationView, error)
	GetUnappliedDonations(ctx context.Context, limit int) ([]string, error)
}

// Gateway описывает платёжный шлюз.
type Gateway interface {
	CreateOrder(ctx context.Context, amount decimal.Decimal, campaignID string) (gateway.Order, error)
	CreatePayment(ctx context.Context, orderID string) (gateway.Payment, error)
	VerifyPayment(ctx context.Context, orderID string) (gateway.Verification, error)
}

// ReceiptGenerator формирует квитанции.
type ReceiptGenerator interface {
	Generate(ctx context.Context, donationID string) (string, error)
}

// Notifier отправляет уведомления жертвователям.
type Notifier interface {
	SendEmail(ctx context.Context, req notify.EmailRequest) error
	SendSMS(ctx context.Context, req notify.SMSRequest) error
}

// EventPublisher публикует события о пожертвованиях.
type EventPublisher interface {
	PublishSettlement(ctx context.Context, e events.Settlement) error
}

// ArtifactStore хранит квитанции и изображения кампаний.
type ArtifactStore interface {
	Write(ctx context.Context, key string, data []byte) (string, error)
	Read(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error
}

// Deps содержит внешние компоненты сервиса. Receipts, Notifier и Events необязательны.
type Deps struct {
	Gateway     Gateway
	Receipts    ReceiptGenerator
	Notifier    Notifier
	Events      EventPublisher
	Artifacts   ArtifactStore
	AdminLogins []string
}

// Service содержит бизнес-логику сервиса сбора пожертвований.
type Service struct {
	repo      Repository
	gateway   Gateway
	receipts  ReceiptGenerator
	notifier  Notifier
	events    EventPublisher
	artifacts ArtifactStore
	admins    map[string]struct{}
	logger    *zap.Logger

	inflight sync.WaitGroup

	passwordCost     int
	ledgerTries      uint
	ledgerRetryDelay time.Duration
	publishTimeout   time.Duration
	now              func() time.Time
}

// NewService создаёт новый сервис с указанным репозиторием и внешними компонентами.
func NewService(repo Repository, deps Deps, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}

	admins := make(map[string]struct{}, len(deps.AdminLogins))
	for _, login := range deps.AdminLogins {
		if login = strings.TrimSpace(login); login != "" {
			admins[login] = struct{}{}
		}
	}

	var publisher EventPublisher = events.NopPublisher{}
	if deps.Events != nil {
		publisher = deps.Events
	}

	return &Service{
		repo:             repo,
		gateway:          deps.Gateway,
		receipts:         deps.Receipts,
		notifier:         deps.Notifier,
		events:           publisher,
		artifacts:        deps.Artifacts,
		admins:           admins,
		logger:           logger,
		passwordCost:     bcrypt.DefaultCost,
		ledgerTries:      3,
		ledgerRetryDelay: 100 * time.Millisecond,
		publishTimeout:   10 * time.Second,
		now:              time.Now,
	}
}

// Wait блокируется до завершения всех фоновых отправок уведомлений.
func (s *Service) Wait() {
	s.inflight.Wait()
}

// Close дожидается фоновых отправок и закрывает ресурсы сервиса.
func (s *Service) Close() error {
	s.Wait()
	if s.repo != nil {
		return s.repo.Close()
	}
	return nil
}

// RegisterRequest содержит данные для регистрации пользователя.
type RegisterRequest struct {
	Login     string
	Password  string
	Email     string
	FirstName string
	LastName  string
	Phone     string
}

// RegisterUser регистрирует нового пользователя. Логины из списка администраторов получают роль администратора.
func (s *Service) RegisterUser(ctx context.Context, req RegisterRequest) (*model.Principal, error) {
	req.Login = strings.TrimSpace(req.Login)
	if req.Login == "" || req.Password == "" {
		return nil, fmt.Errorf("%w: login and password are required", ErrValidation)
	}
	if req.Phone != "" && !validation.IsValidPhone(req.Phone) {
		return nil, fmt.Errorf("%w: invalid phone number", ErrValidation)
	}
	if req.Email == "" && strings.Contains(req.Login, "@") {
		req.Email = req.Login
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(req.Password), s.passwordCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	role := model.RoleDonor
	if _, ok := s.admins[req.Login]; ok {
		role = model.RoleAdmin
	}

	u := model.User{
		ID:           uuid.NewString(),
		Login:        req.Login,
		PasswordHash: hashed,
		Role:         role,
		Email:        req.Email,
		FirstName:    strings.TrimSpace(req.FirstName),
		LastName:     strings.TrimSpace(req.LastName),
		Phone:        req.Phone,
	}

	if err := s.repo.CreateUser(ctx, u); err != nil {
		if errors.Is(err, repository.ErrUserExists) {
			return nil, repository.ErrUserExists
		}
		return nil, err
	}

	p := u.Principal()
	return &p, nil
}

// AuthenticateUser проверяет логин и пароль пользователя и возвращает его описание.
func (s *Service) AuthenticateUser(ctx context.Context, login, password string) (*model.Principal, error) {
	u, err := s.repo.GetUserByLogin(ctx, strings.TrimSpace(login))
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	if err := bcrypt.CompareHashAndPassword(u.PasswordHash, []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}

	p := u.Principal()
	return &p, nil
}
