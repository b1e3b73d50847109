package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

// RateConverter prices GTON in fiat. The payout service depends on this
// interface so tests can pin the rate.
type RateConverter interface {
	ConvertFromGTON(amount decimal.Decimal, currency string) (decimal.Decimal, error)
}

// RateService fetches GTON/fiat rates from the external rates API and
// caches them in Redis. A failed lookup surfaces ErrRateUnavailable so
// the caller can retry; nothing is ever priced on a stale guess beyond
// the cache TTL.
type RateService struct {
	redis      *redis.Client
	httpClient *http.Client
	baseURL    string
	cacheTTL   time.Duration
}

func NewRateService(redisClient *redis.Client) *RateService {
	viper.SetDefault("rates.url", "http://localhost:8090/api/rates")
	viper.SetDefault("rates.cache_ttl", 5*time.Minute)
	viper.SetDefault("rates.timeout", 10*time.Second)

	return &RateService{
		redis:      redisClient,
		httpClient: &http.Client{Timeout: viper.GetDuration("rates.timeout")},
		baseURL:    viper.GetString("rates.url"),
		cacheTTL:   viper.GetDuration("rates.cache_ttl"),
	}
}

func (s *RateService) ConvertFromGTON(amount decimal.Decimal, currency string) (decimal.Decimal, error) {
	rate, err := s.getRate(currency)
	if err != nil {
		return decimal.Zero, err
	}
	return amount.Mul(rate).Round(4), nil
}

func (s *RateService) getRate(currency string) (decimal.Decimal, error) {
	ctx := context.Background()
	key := "rates:gton:" + currency

	if s.redis != nil {
		if cached, err := s.redis.Get(ctx, key).Result(); err == nil {
			rate, err := decimal.NewFromString(cached)
			if err == nil {
				return rate, nil
			}
		}
	}

	rate, err := s.fetchRate(currency)
	if err != nil {
		log.Printf("[RATES] Rate lookup failed for %s: %v", currency, err)
		return decimal.Zero, fmt.Errorf("%w: %v", ErrRateUnavailable, err)
	}

	if s.redis != nil {
		s.redis.Set(ctx, key, rate.String(), s.cacheTTL)
	}
	return rate, nil
}

func (s *RateService) fetchRate(currency string) (decimal.Decimal, error) {
	url := fmt.Sprintf("%s?base=GTON&quote=%s", s.baseURL, currency)
	resp, err := s.httpClient.Get(url)
	if err != nil {
		return decimal.Zero, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return decimal.Zero, fmt.Errorf("rates API returned status %d", resp.StatusCode)
	}

	var result struct {
		Rate decimal.Decimal `json:"rate"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return decimal.Zero, err
	}

	if result.Rate.Sign() <= 0 {
		return decimal.Zero, fmt.Errorf("rates API returned non-positive rate %s", result.Rate)
	}
	return result.Rate, nil
}
