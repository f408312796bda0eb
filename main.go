package main

import (
	"encoding/json"
	stdlog "log"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/username/collectr/backend/src/config"
	"github.com/username/collectr/backend/src/database"
	"github.com/username/collectr/backend/src/handlers"
	"github.com/username/collectr/backend/src/logger"
	"github.com/username/collectr/backend/src/security"
	"github.com/username/collectr/backend/src/services"
	"golang.org/x/time/rate"
)

var limiter = rate.NewLimiter(rate.Every(100*time.Millisecond), 30)

func rateLimitMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !limiter.Allow() {
			http.Error(w, http.StatusText(http.StatusTooManyRequests), http.StatusTooManyRequests)
			logger.L.Warn("Rate limit exceeded", "path", r.URL.Path)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// refreshLimiter gates the batch price refresh route separately: each call
// fans out into many provider requests.
var refreshLimiter = rate.NewLimiter(rate.Every(1*time.Minute), 2)

func refreshRateLimitMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !refreshLimiter.Allow() {
			http.Error(w, http.StatusText(http.StatusTooManyRequests), http.StatusTooManyRequests)
			logger.L.Warn("Refresh rate limit exceeded", "path", r.URL.Path)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func enableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		allowedOrigins := map[string]bool{
			"http://localhost:3000":    true,
			config.Cfg.FrontendBaseURL: true,
		}

		if allowedOrigins[origin] {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Credentials", "true")
			w.Header().Set("Access-Control-Allow-Methods", "POST, GET, OPTIONS, PUT, DELETE, PATCH")
			w.Header().Set("Access-Control-Allow-Headers", "Accept, Content-Type, Content-Length, Accept-Encoding, Authorization, X-Requested-With")
		} else if origin == "" {
			w.Header().Set("Access-Control-Allow-Origin", "*")
		}

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func main() {
	config.LoadConfig()
	logger.InitLogger(config.Cfg.LogLevel)

	logger.L.Info("Collectr backend server starting...")

	if len(config.Cfg.JWTSecret) < 32 {
		logger.L.Error("JWT_SECRET configuration invalid.")
		os.Exit(1)
	}

	logger.L.Info("Initializing database...", "path", config.Cfg.DatabasePath)
	database.InitDB(config.Cfg.DatabasePath)
	database.RunMigrations(config.Cfg.DatabasePath)

	authService := security.NewAuthService(config.Cfg.JWTSecret, config.Cfg.AccessTokenExpiry)
	marketService := services.NewMarketService()
	marketLimiter := rate.NewLimiter(rate.Every(config.Cfg.MarketRateInterval), config.Cfg.MarketRateBurst)
	quoteService := services.NewQuoteService(database.DB, marketService, config.Cfg.QuoteFreshnessWindow, marketLimiter)
	statsService := services.NewStatsService(database.DB)
	settlementService := services.NewSettlementService(database.DB, statsService)

	userHandler := handlers.NewUserHandler(authService)
	collectionHandler := handlers.NewCollectionHandler(statsService)
	tradeHandler := handlers.NewTradeHandler(settlementService)
	priceHandler := handlers.NewPriceHandler(quoteService)

	r := chi.NewRouter()

	r.Use(middleware.Recoverer)
	r.Use(handlers.ContextualLoggerMiddleware)
	r.Use(enableCORS)
	r.Use(rateLimitMiddleware)

	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"message": "Collectr Backend is running"})
	})

	r.Route("/api", func(r chi.Router) {
		// Public routes
		r.Group(func(r chi.Router) {
			r.Post("/auth/register", userHandler.RegisterUserHandler)
			r.Post("/auth/login", userHandler.LoginUserHandler)
		})

		// Protected routes
		r.Group(func(r chi.Router) {
			r.Use(userHandler.AuthMiddleware)

			r.Get("/auth/me", userHandler.GetCurrentUserHandler)

			r.Get("/collection", collectionHandler.HandleGetCollection)
			r.Post("/collection", collectionHandler.HandleAddToCollection)
			r.Get("/collection/valuation", collectionHandler.HandleGetCollectionValuation)
			r.Put("/collection/{lotID}", collectionHandler.HandleUpdateCollectionItem)
			r.Delete("/collection/{lotID}", collectionHandler.HandleRemoveFromCollection)
			r.Get("/collection/stats", collectionHandler.HandleGetCollectionStats)
			r.Get("/collection/stats/history", collectionHandler.HandleGetStatHistory)
			r.Get("/collection/sets", collectionHandler.HandleGetCollectionSets)

			r.Post("/trades", tradeHandler.HandleSettleTrade)
			r.Get("/trades", tradeHandler.HandleGetTrades)

			r.Get("/products/search", priceHandler.HandleSearchProducts)
			r.Get("/prices/product/{productID}", priceHandler.HandleGetProductPrice)
			r.Get("/prices/product/{productID}/history", priceHandler.HandleGetPriceHistory)
			r.Post("/prices", priceHandler.HandleSavePrice)
			r.Get("/prices/recent", priceHandler.HandleGetRecentPrices)
			r.With(refreshRateLimitMiddleware).Post("/prices/refresh-collection", priceHandler.HandleRefreshCollectionPrices)
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasPrefix(r.URL.Path, "/api/") {
			http.NotFound(w, r)
		}
	})

	serverAddr := ":" + config.Cfg.Port
	server := &http.Server{
		Addr:         serverAddr,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	logger.L.Info("Server starting", "address", serverAddr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		stdlog.Fatalf("Failed to start server: %v", err)
	}
}
