package service

import (
	"context"
	"errors"
	"net/url"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/ethereum/go-ethereum/common"

	apperrors "github.com/wallet-watch/internal/errors"
	"github.com/wallet-watch/internal/logging"
	"github.com/wallet-watch/internal/models"
	"github.com/wallet-watch/internal/plan"
	"github.com/wallet-watch/internal/types"
)

const (
	maxWalletNameLength = 32
	// names travel in inline button callback data, which Telegram caps at 64 bytes
	maxWalletNameBytes = 48
)

// WalletStore is the registry part of the store
type WalletStore interface {
	AddWallet(ctx context.Context, ownerID int64, name, address string, limit int) (*models.Wallet, error)
	RemoveWallet(ctx context.Context, ownerID int64, name string) error
	RenameWallet(ctx context.Context, ownerID int64, oldName, newName string) error
	ListWallets(ctx context.Context, ownerID int64) ([]*models.Wallet, error)
	UpsertUser(ctx context.Context, id int64, displayName string) (*models.User, error)
	GetUser(ctx context.Context, id int64) (*models.User, error)
	SetPlan(ctx context.Context, id int64, plan types.PlanTier, sub models.Subscription) error
}

// WalletService handles user registration, the wallet registry and plan
// changes. It is shared by the chat front end and the payment webhook.
type WalletService struct {
	store   WalletStore
	catalog *plan.Catalog
	logger  *logging.Logger
}

// NewWalletService creates a new wallet service
func NewWalletService(store WalletStore, catalog *plan.Catalog) *WalletService {
	return &WalletService{
		store:   store,
		catalog: catalog,
		logger:  logging.GetGlobalLogger().WithComponent("wallet-service"),
	}
}

// AccountOverview is a user's plan usage and wallets
type AccountOverview struct {
	User    *models.User
	Plan    plan.Plan
	Wallets []*models.Wallet
}

// Remaining returns how many more wallets the plan allows
func (o *AccountOverview) Remaining() int {
	if r := o.Plan.WalletLimit - len(o.Wallets); r > 0 {
		return r
	}
	return 0
}

// Register creates the user on first contact; repeated calls are harmless
func (s *WalletService) Register(ctx context.Context, chatID int64, displayName string) (*models.User, error) {
	return s.store.UpsertUser(ctx, chatID, displayName)
}

// AddWallet validates input and registers address for chatID under the
// quota of the user's current plan. Unknown users are registered first.
func (s *WalletService) AddWallet(ctx context.Context, chatID int64, name, address string) (*models.Wallet, error) {
	name = strings.TrimSpace(name)
	address = strings.TrimSpace(address)

	if err := ValidateWalletName(name); err != nil {
		return nil, err
	}
	if err := ValidateAddress(address); err != nil {
		return nil, err
	}

	user, err := s.userOrRegister(ctx, chatID)
	if err != nil {
		return nil, err
	}

	limit := s.catalog.Limit(user.Plan)
	wallet, err := s.store.AddWallet(ctx, chatID, name, address, limit)
	if err != nil {
		return nil, err
	}

	s.logger.WithFields(map[string]interface{}{
		"chatId":  chatID,
		"wallet":  wallet.Name,
		"address": wallet.Address,
		"plan":    user.Plan,
	}).Info("Wallet added")
	return wallet, nil
}

// RemoveWallet stops monitoring the named wallet
func (s *WalletService) RemoveWallet(ctx context.Context, chatID int64, name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return apperrors.NewInvalidParameterError("name", "is required")
	}
	if err := s.store.RemoveWallet(ctx, chatID, name); err != nil {
		return err
	}
	s.logger.WithFields(map[string]interface{}{"chatId": chatID, "wallet": name}).Info("Wallet removed")
	return nil
}

// RenameWallet changes a wallet's label
func (s *WalletService) RenameWallet(ctx context.Context, chatID int64, oldName, newName string) error {
	oldName = strings.TrimSpace(oldName)
	newName = strings.TrimSpace(newName)
	if err := ValidateWalletName(newName); err != nil {
		return err
	}
	return s.store.RenameWallet(ctx, chatID, oldName, newName)
}

// ListWallets returns the user's wallets
func (s *WalletService) ListWallets(ctx context.Context, chatID int64) ([]*models.Wallet, error) {
	return s.store.ListWallets(ctx, chatID)
}

// Overview returns the user's plan with current usage
func (s *WalletService) Overview(ctx context.Context, chatID int64) (*AccountOverview, error) {
	user, err := s.userOrRegister(ctx, chatID)
	if err != nil {
		return nil, err
	}
	wallets, err := s.store.ListWallets(ctx, chatID)
	if err != nil {
		return nil, err
	}

	p, ok := s.catalog.Get(user.Plan)
	if !ok {
		p, _ = s.catalog.Get(types.PlanFree)
	}
	return &AccountOverview{User: user, Plan: p, Wallets: wallets}, nil
}

// Plans lists every plan, cheapest first
func (s *WalletService) Plans() []plan.Plan {
	return s.catalog.All()
}

// UpgradeLink returns the checkout URL for tag, tagged with the chat id so
// the payment webhook can attribute the purchase.
func (s *WalletService) UpgradeLink(chatID int64, tag string) (plan.Plan, string, error) {
	tier, err := s.catalog.Parse(tag)
	if err != nil {
		return plan.Plan{}, "", err
	}
	p, _ := s.catalog.Get(tier)
	if !p.Paid() {
		return p, "", apperrors.NewInvalidParameterError("plan", "the free plan needs no upgrade")
	}
	if p.PaymentLink == "" {
		return p, "", apperrors.NewInvalidParameterError("plan", "no checkout is configured for "+p.DisplayName)
	}

	u, err := url.Parse(p.PaymentLink)
	if err != nil {
		return p, "", apperrors.NewInternalError("invalid payment link", err)
	}
	q := u.Query()
	q.Set("client_reference_id", strconv.FormatInt(chatID, 10))
	u.RawQuery = q.Encode()
	return p, u.String(), nil
}

// CheckoutCompleted is a confirmed payment from the provider
type CheckoutCompleted struct {
	UserID     int64
	Plan       string
	Provider   string
	CustomerID string
}

// ApplyCheckout moves the user to the purchased plan. Existing wallets are
// kept even when the new quota is lower.
func (s *WalletService) ApplyCheckout(ctx context.Context, c CheckoutCompleted) error {
	if c.UserID == 0 {
		return apperrors.NewInvalidParameterError("user_id", "is required")
	}
	tier, err := s.catalog.Parse(c.Plan)
	if err != nil {
		return err
	}

	sub := models.Subscription{
		Provider:   c.Provider,
		CustomerID: c.CustomerID,
		Status:     types.SubscriptionActive,
	}
	if err := s.store.SetPlan(ctx, c.UserID, tier, sub); err != nil {
		return err
	}

	s.logger.WithFields(map[string]interface{}{
		"chatId":   c.UserID,
		"plan":     tier,
		"provider": c.Provider,
	}).Info("Plan updated from checkout")
	return nil
}

func (s *WalletService) userOrRegister(ctx context.Context, chatID int64) (*models.User, error) {
	user, err := s.store.GetUser(ctx, chatID)
	if errors.Is(err, apperrors.ErrNotFound) {
		return s.store.UpsertUser(ctx, chatID, "")
	}
	return user, err
}

// ValidateAddress checks that address is a 20-byte hex address with 0x prefix
func ValidateAddress(address string) error {
	if !strings.HasPrefix(address, "0x") && !strings.HasPrefix(address, "0X") {
		return apperrors.NewInvalidParameterError("address", "must start with 0x")
	}
	if !common.IsHexAddress(address) {
		return apperrors.NewInvalidParameterError("address", "is not a valid EVM address")
	}
	return nil
}

// ValidateWalletName allows short single-word labels
func ValidateWalletName(name string) error {
	if name == "" {
		return apperrors.NewInvalidParameterError("name", "is required")
	}
	if utf8.RuneCountInString(name) > maxWalletNameLength {
		return apperrors.NewInvalidParameterError("name", "must be at most 32 characters")
	}
	if len(name) > maxWalletNameBytes {
		return apperrors.NewInvalidParameterError("name", "is too long")
	}
	for _, r := range name {
		if unicode.IsSpace(r) || unicode.IsControl(r) {
			return apperrors.NewInvalidParameterError("name", "must not contain spaces")
		}
	}
	if strings.ContainsRune(name, ':') {
		return apperrors.NewInvalidParameterError("name", "must not contain ':'")
	}
	return nil
}
