package main

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/gtonpay/backend/docs"
	"github.com/gtonpay/backend/internal/database"
	"github.com/gtonpay/backend/internal/handlers"
	mW "github.com/gtonpay/backend/internal/middleware"
	"github.com/gtonpay/backend/internal/services"
	"github.com/spf13/viper"
	httpSwagger "github.com/swaggo/http-swagger"
)

// @title GTON Ledger API
// @version 1.0
// @description Wallet ledger, referral commissions and partner payouts
// @host localhost:8080
// @BasePath /api/v1
// @schemes http https

func main() {
	// Initialize config
	viper.SetConfigFile(".env") // explicitly point to .env file
	viper.AutomaticEnv()        // allow environment variables to override .env
	viper.ReadInConfig()        // read .env file

	// Set environment variable prefix
	viper.SetEnvPrefix("")

	viper.BindEnv("database.host", "DATABASE_HOST")
	viper.BindEnv("database.port", "DATABASE_PORT")
	viper.BindEnv("database.user", "DATABASE_USER")
	viper.BindEnv("database.password", "DATABASE_PASSWORD")
	viper.BindEnv("database.name", "DATABASE_NAME")
	viper.BindEnv("database.ssl_mode", "DATABASE_SSL_MODE")

	viper.BindEnv("redis.host", "REDIS_HOST")
	viper.BindEnv("redis.port", "REDIS_PORT")
	viper.BindEnv("redis.password", "REDIS_PASSWORD")
	viper.BindEnv("redis.db", "REDIS_DB")
	viper.BindEnv("redis.pool_size", "REDIS_POOL_SIZE")

	viper.BindEnv("jwt.secret_key", "JWT_SECRET_KEY")
	viper.BindEnv("jwt.expiry_hours", "JWT_EXPIRY_HOURS")

	viper.BindEnv("rates.url", "RATES_URL")
	viper.BindEnv("rates.cache_ttl", "RATES_CACHE_TTL")
	viper.BindEnv("settings.cache_ttl", "SETTINGS_CACHE_TTL")

	if err := viper.ReadInConfig(); err != nil {
		log.Printf("Config file not found, using defaults: %v", err)
	}

	// Initialize Swagger docs
	docs.SwaggerInfo.Title = "GTON Ledger API"
	docs.SwaggerInfo.Description = "Wallet ledger, referral commissions and partner payouts"
	docs.SwaggerInfo.Version = "1.0"
	docs.SwaggerInfo.Host = "localhost:8080"
	docs.SwaggerInfo.BasePath = "/api/v1"
	docs.SwaggerInfo.Schemes = []string{"http", "https"}

	// Initialize services
	db := database.InitDatabase()
	defer db.Close()

	redisClient := database.InitRedis()
	if redisClient != nil {
		defer redisClient.Close()
	}

	settingsService := services.NewSettingsService(db, redisClient)
	rateService := services.NewRateService(redisClient)
	commissionService := services.NewCommissionService(db, settingsService)
	ledgerService := services.NewLedgerService(db, commissionService)
	payoutService := services.NewPayoutService(db, settingsService, rateService, redisClient)

	walletHandler := handlers.NewWalletHandler(ledgerService)
	payoutHandler := handlers.NewPayoutHandler(payoutService)

	// Setup router
	r := chi.NewRouter()

	// Middleware
	r.Use(mW.SecurityHeaders)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(middleware.Timeout(60 * time.Second))

	// CORS
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://*", "http://*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "Access-Control-Allow-Origin"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           86400,
	}))

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"status": "healthy"})
	})

	// Swagger documentation
	r.Get("/swagger/*", httpSwagger.Handler(
		httpSwagger.URL("http://localhost:8080/swagger/doc.json"),
	))

	// Static file server for payout method icons
	r.Handle("/static/payout-methods/*", http.StripPrefix("/static/payout-methods/",
		mW.StaticFileServer("./static/payout-methods")))

	// API routes
	r.Route("/api/v1", func(r chi.Router) {
		// Protected endpoints (auth required)
		r.Group(func(r chi.Router) {
			r.Use(mW.AuthMiddleware)

			// Wallet endpoints
			r.Get("/wallet/balance", walletHandler.GetBalance)
			r.Get("/wallet/balances", walletHandler.GetBalances)
			r.Get("/wallet/transactions", walletHandler.GetTransactions)

			// Partner payout endpoints
			r.Post("/payouts", payoutHandler.RequestPayout)
			r.Get("/payouts", payoutHandler.ListPayouts)
			r.Get("/payouts/available", payoutHandler.AvailableBalance)
			r.Post("/payouts/{id}/cancel", payoutHandler.CancelPayout)

			// Admin endpoints
			r.Group(func(r chi.Router) {
				r.Use(mW.AdminOnly)

				r.Post("/admin/wallet/credit", walletHandler.Credit)
				r.Post("/admin/wallet/debit", walletHandler.Debit)
				r.Get("/admin/payouts/pending", payoutHandler.PendingPayouts)
				r.Post("/admin/payouts/{id}/approve", payoutHandler.ApprovePayout)
				r.Post("/admin/payouts/{id}/reject", payoutHandler.RejectPayout)
			})
		})
	})

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	// Start server
	server := &http.Server{
		Addr:         ":" + port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown
	go func() {
		log.Printf("Server starting on :%s", port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Server shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Fatal("Server forced to shutdown:", err)
	}

	log.Println("Server stopped")
}
