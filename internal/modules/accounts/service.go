package accounts

import (
	"fmt"
	"strings"

	"github.com/jakub-mrow/AMS-backend/internal/domain"
	"github.com/jakub-mrow/AMS-backend/internal/events"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// Purger removes all data a module holds for an account. Each module with
// per-account state registers one so account deletion cleans up everywhere.
type Purger interface {
	PurgeAccount(accountID int64) error
}

// Service implements account management business logic
type Service struct {
	repo            *Repository
	bus             *events.Bus
	defaultCurrency string
	purgers         []Purger
	log             zerolog.Logger
}

// NewService creates a new account service
func NewService(repo *Repository, bus *events.Bus, defaultCurrency string, log zerolog.Logger) *Service {
	return &Service{
		repo:            repo,
		bus:             bus,
		defaultCurrency: strings.ToUpper(defaultCurrency),
		log:             log.With().Str("service", "accounts").Logger(),
	}
}

// RegisterPurger adds a module cleanup hook for account deletion.
func (s *Service) RegisterPurger(p Purger) {
	s.purgers = append(s.purgers, p)
}

// Create makes a new account with default preferences.
func (s *Service) Create(userID int64, name string) (*domain.Account, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("account name must not be empty")
	}

	account, err := s.repo.Create(userID, name)
	if err != nil {
		return nil, err
	}

	prefs := &domain.AccountPreferences{
		AccountID:    account.ID,
		BaseCurrency: s.defaultCurrency,
		TaxCurrency:  s.defaultCurrency,
	}
	if err := s.repo.UpsertPreferences(prefs); err != nil {
		return nil, err
	}

	s.log.Info().Int64("account_id", account.ID).Str("name", name).Msg("Account created")
	return account, nil
}

// Get returns one account.
func (s *Service) Get(id int64) (*domain.Account, error) {
	return s.repo.GetByID(id)
}

// List returns all accounts of a user.
func (s *Service) List(userID int64) ([]domain.Account, error) {
	return s.repo.GetAllByUser(userID)
}

// All returns every account regardless of owner.
func (s *Service) All() ([]domain.Account, error) {
	return s.repo.GetAll()
}

// Rename changes an account's display name.
func (s *Service) Rename(id int64, name string) (*domain.Account, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("account name must not be empty")
	}
	if err := s.repo.UpdateName(id, name); err != nil {
		return nil, err
	}
	return s.repo.GetByID(id)
}

// Delete removes an account together with its transactions, balances and
// history across all modules.
func (s *Service) Delete(id int64) error {
	if _, err := s.repo.GetByID(id); err != nil {
		return err
	}
	for _, purger := range s.purgers {
		if err := purger.PurgeAccount(id); err != nil {
			return fmt.Errorf("failed to purge account data: %w", err)
		}
	}
	if err := s.repo.Delete(id); err != nil {
		return err
	}
	s.log.Info().Int64("account_id", id).Msg("Account deleted")
	return nil
}

// Preferences returns the account's currency preferences, falling back to
// defaults for accounts that never stored any.
func (s *Service) Preferences(accountID int64) (*domain.AccountPreferences, error) {
	if _, err := s.repo.GetByID(accountID); err != nil {
		return nil, err
	}
	prefs, err := s.repo.GetPreferences(accountID)
	if err != nil {
		return nil, err
	}
	if prefs == nil {
		prefs = &domain.AccountPreferences{
			AccountID:    accountID,
			BaseCurrency: s.defaultCurrency,
			TaxCurrency:  s.defaultCurrency,
		}
	}
	return prefs, nil
}

// UpdatePreferences stores new preferences. Changing the base currency
// invalidates the cached XIRR, so the account is marked dirty.
func (s *Service) UpdatePreferences(accountID int64, baseCurrency, taxCurrency string) (*domain.AccountPreferences, error) {
	baseCurrency = strings.ToUpper(strings.TrimSpace(baseCurrency))
	taxCurrency = strings.ToUpper(strings.TrimSpace(taxCurrency))
	if len(baseCurrency) != 3 {
		return nil, fmt.Errorf("invalid base currency %q", baseCurrency)
	}
	if taxCurrency == "" {
		taxCurrency = baseCurrency
	}
	if len(taxCurrency) != 3 {
		return nil, fmt.Errorf("invalid tax currency %q", taxCurrency)
	}

	current, err := s.Preferences(accountID)
	if err != nil {
		return nil, err
	}

	prefs := &domain.AccountPreferences{
		AccountID:    accountID,
		BaseCurrency: baseCurrency,
		TaxCurrency:  taxCurrency,
	}
	if err := s.repo.UpsertPreferences(prefs); err != nil {
		return nil, err
	}

	if current.BaseCurrency != baseCurrency {
		s.bus.Publish(&events.AccountDirtyData{AccountID: accountID, Reason: "base_currency_changed"})
	}
	return prefs, nil
}

// SetXIRR stores the recomputed annualized return for an account.
func (s *Service) SetXIRR(accountID int64, xirr *decimal.Decimal) error {
	return s.repo.SetXIRR(accountID, xirr)
}
