package services

import (
	"context"
	"database/sql"
	"log"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

// SettingsProvider supplies typed, cached configuration values to the
// ledger services. Lookups never fail: a missing or unparsable value
// yields the caller's default.
type SettingsProvider interface {
	GetDecimal(key string, defaultValue decimal.Decimal) decimal.Decimal
	GetBool(key string, defaultValue bool) bool
	GetInt(key string, defaultValue int) int
}

// SettingsService reads settings from the settings table and caches them
// in Redis with a short TTL, so admin edits propagate within a bounded
// staleness window. Without Redis it degrades to direct DB reads.
type SettingsService struct {
	db       *sql.DB
	redis    *redis.Client
	cacheTTL time.Duration
}

func NewSettingsService(db *sql.DB, redisClient *redis.Client) *SettingsService {
	viper.SetDefault("settings.cache_ttl", 60*time.Second)
	return &SettingsService{
		db:       db,
		redis:    redisClient,
		cacheTTL: viper.GetDuration("settings.cache_ttl"),
	}
}

func (s *SettingsService) GetDecimal(key string, defaultValue decimal.Decimal) decimal.Decimal {
	raw, ok := s.get(key)
	if !ok {
		return defaultValue
	}
	value, err := decimal.NewFromString(raw)
	if err != nil {
		log.Printf("[SETTINGS] Invalid decimal for %s: %q", key, raw)
		return defaultValue
	}
	return value
}

func (s *SettingsService) GetBool(key string, defaultValue bool) bool {
	raw, ok := s.get(key)
	if !ok {
		return defaultValue
	}
	value, err := strconv.ParseBool(raw)
	if err != nil {
		log.Printf("[SETTINGS] Invalid bool for %s: %q", key, raw)
		return defaultValue
	}
	return value
}

func (s *SettingsService) GetInt(key string, defaultValue int) int {
	raw, ok := s.get(key)
	if !ok {
		return defaultValue
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		log.Printf("[SETTINGS] Invalid int for %s: %q", key, raw)
		return defaultValue
	}
	return value
}

// Set writes a setting through to the database and refreshes the cache.
func (s *SettingsService) Set(key, value string) error {
	_, err := s.db.Exec(`
		INSERT INTO settings (key, value, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (key) DO UPDATE SET value = $2, updated_at = NOW()`,
		key, value)
	if err != nil {
		return err
	}

	if s.redis != nil {
		s.redis.Set(context.Background(), cacheKey(key), value, s.cacheTTL)
	}
	return nil
}

func (s *SettingsService) get(key string) (string, bool) {
	ctx := context.Background()

	if s.redis != nil {
		if cached, err := s.redis.Get(ctx, cacheKey(key)).Result(); err == nil {
			return cached, true
		}
	}

	var value string
	err := s.db.QueryRow(`SELECT value FROM settings WHERE key = $1`, key).Scan(&value)
	if err != nil {
		if err != sql.ErrNoRows {
			log.Printf("[SETTINGS] Failed to read %s: %v", key, err)
		}
		return "", false
	}

	if s.redis != nil {
		s.redis.Set(ctx, cacheKey(key), value, s.cacheTTL)
	}
	return value, true
}

func cacheKey(key string) string {
	return "settings:" + key
}
