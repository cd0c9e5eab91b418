// Package model содержит доменные сущности сервиса сбора пожертвований.
package model

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Role описывает роль пользователя.
type Role string

const (
	RoleDonor Role = "donor"
	RoleAdmin Role = "admin"
)

// User представляет зарегистрированного пользователя.
type User struct {
	ID           string
	Login        string
	PasswordHash []byte
	Role         Role
	Email        string
	FirstName    string
	LastName     string
	Phone        string
	CreatedAt    time.Time
}

// Principal описывает аутентифицированного пользователя, от имени которого выполняется запрос.
type Principal struct {
	ID        string
	Role      Role
	Email     string
	FirstName string
	LastName  string
	Username  string
	Phone     string
}

// IsAdmin сообщает, обладает ли пользователь правами администратора.
func (p Principal) IsAdmin() bool {
	return p.Role == RoleAdmin
}

// DisplayName возвращает имя для отображения: имя и фамилию, иначе email, логин или "Anonymous".
func (p Principal) DisplayName() string {
	name := strings.TrimSpace(strings.TrimSpace(p.FirstName) + " " + strings.TrimSpace(p.LastName))
	switch {
	case name != "":
		return name
	case p.Email != "":
		return p.Email
	case p.Username != "":
		return p.Username
	default:
		return "Anonymous"
	}
}

// Principal строит описание пользователя для токена авторизации.
func (u User) Principal() Principal {
	return Principal{
		ID:        u.ID,
		Role:      u.Role,
		Email:     u.Email,
		FirstName: u.FirstName,
		LastName:  u.LastName,
		Username:  u.Login,
		Phone:     u.Phone,
	}
}

// CampaignStatus описывает состояние кампании.
type CampaignStatus string

const (
	CampaignStatusActive CampaignStatus = "active"
	CampaignStatusClosed CampaignStatus = "closed"
)

// Campaign описывает кампанию по сбору средств.
type Campaign struct {
	ID              string
	Title           string
	Description     string
	TargetAmount    decimal.Decimal
	CollectedAmount decimal.Decimal
	Deadline        *time.Time
	Status          CampaignStatus
	CreatedBy       string
	Images          []string
	CreatedAt       time.Time
}

// Donation описывает запись реестра пожертвований.
type Donation struct {
	ID            string
	DonorID       string
	CampaignID    string
	Amount        decimal.Decimal
	PaymentID     string
	OrderID       string
	Signature     string
	ReceiptRef    *string
	LedgerApplied bool
	CreatedAt     time.Time
}

// DonationView дополняет пожертвование названием кампании и именем жертвователя.
type DonationView struct {
	Donation
	CampaignTitle string
	DonorName     string
}

// DonationDetails содержит всё необходимое для формирования квитанции.
type DonationDetails struct {
	Donation
	Donor         Principal
	CampaignTitle string
}

// CampaignDonations содержит пожертвования кампании и их агрегаты.
type CampaignDonations struct {
	Donations   []DonationView
	Total       int
	TotalAmount decimal.Decimal
}

// LedgerDrift показывает расхождение собранной суммы кампании с суммой её пожертвований.
type LedgerDrift struct {
	CampaignID      string
	Title           string
	CollectedAmount decimal.Decimal
	DonatedAmount   decimal.Decimal
	PendingCount    int
}

// Drift возвращает разницу между суммой пожертвований и учтённой суммой.
func (d LedgerDrift) Drift() decimal.Decimal {
	return d.DonatedAmount.Sub(d.CollectedAmount)
}
