package assets

import (
	"fmt"
	"strings"

	"github.com/jakub-mrow/AMS-backend/internal/clients/eodhd"
	"github.com/jakub-mrow/AMS-backend/internal/domain"
	"github.com/rs/zerolog"
)

// SearchGateway resolves tickers against the market data provider.
type SearchGateway interface {
	SearchAsset(query string) ([]eodhd.SearchResult, error)
}

// Service implements asset registry logic, including lazy creation of
// assets from gateway search results on first use.
type Service struct {
	assetRepo    *AssetRepository
	exchangeRepo *ExchangeRepository
	gateway      SearchGateway
	log          zerolog.Logger
}

// NewService creates a new asset service
func NewService(assetRepo *AssetRepository, exchangeRepo *ExchangeRepository, gateway SearchGateway, log zerolog.Logger) *Service {
	return &Service{
		assetRepo:    assetRepo,
		exchangeRepo: exchangeRepo,
		gateway:      gateway,
		log:          log.With().Str("service", "assets").Logger(),
	}
}

// Resolve returns the asset listed as ticker on an exchange, creating it
// from a gateway search result when it is not known locally. Returns
// domain.ErrUnknownAsset when neither the registry nor the gateway can
// identify the instrument.
func (s *Service) Resolve(ticker, exchangeCode string) (*domain.Asset, error) {
	ticker = strings.ToUpper(strings.TrimSpace(ticker))
	exchangeCode = strings.ToUpper(strings.TrimSpace(exchangeCode))

	exchange, err := s.exchangeRepo.GetByCode(exchangeCode)
	if err == domain.ErrExchangeNotFound {
		return nil, domain.ErrUnknownAsset
	}
	if err != nil {
		return nil, err
	}

	asset, err := s.assetRepo.GetByTickerAndExchange(ticker, exchange.ID)
	if err == nil {
		return asset, nil
	}
	if err != domain.ErrAssetNotFound {
		return nil, err
	}

	result, err := s.searchGateway(ticker, exchangeCode)
	if err != nil {
		return nil, err
	}
	if result == nil {
		return nil, domain.ErrUnknownAsset
	}

	assetType := domain.AssetStock
	if exchangeCode == CryptoExchangeCode {
		assetType = domain.AssetCrypto
	}
	created := &domain.Asset{
		ISIN:       result.ISIN,
		Ticker:     ticker,
		Name:       result.Name,
		Currency:   strings.ToUpper(result.Currency),
		Type:       assetType,
		ExchangeID: exchange.ID,
	}
	if created.ISIN == "" {
		// Crypto and some OTC listings have no ISIN; synthesize a stable key.
		created.ISIN = exchangeCode + ":" + ticker
	}
	if err := s.assetRepo.Create(created); err != nil {
		return nil, err
	}
	s.log.Info().
		Str("ticker", ticker).
		Str("exchange", exchangeCode).
		Str("isin", created.ISIN).
		Msg("Asset created from gateway search")
	return created, nil
}

func (s *Service) searchGateway(ticker, exchangeCode string) (*eodhd.SearchResult, error) {
	results, err := s.gateway.SearchAsset(ticker)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrExternalDataUnavailable, err)
	}
	for i := range results {
		if strings.EqualFold(results[i].Code, ticker) && strings.EqualFold(results[i].Exchange, exchangeCode) {
			return &results[i], nil
		}
	}
	return nil, nil
}

// Search passes a free-text query through to the gateway. A gateway outage
// surfaces as domain.ErrExternalDataUnavailable.
func (s *Service) Search(query string) ([]eodhd.SearchResult, error) {
	results, err := s.gateway.SearchAsset(query)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrExternalDataUnavailable, err)
	}
	return results, nil
}

// Get returns one asset.
func (s *Service) Get(id int64) (*domain.Asset, error) {
	return s.assetRepo.GetByID(id)
}

// ByISIN returns the registered asset with the given ISIN, or
// domain.ErrAssetNotFound.
func (s *Service) ByISIN(isin string) (*domain.Asset, error) {
	return s.assetRepo.GetByISIN(strings.ToUpper(strings.TrimSpace(isin)))
}

// List returns all registered assets.
func (s *Service) List() ([]domain.Asset, error) {
	return s.assetRepo.GetAll()
}

// Exchanges returns all registered exchanges.
func (s *Service) Exchanges() ([]domain.Exchange, error) {
	return s.exchangeRepo.GetAll()
}

// CreateExchange registers a trading venue.
func (s *Service) CreateExchange(exchange *domain.Exchange) error {
	exchange.Code = strings.ToUpper(strings.TrimSpace(exchange.Code))
	return s.exchangeRepo.Create(exchange)
}
