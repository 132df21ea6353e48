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
	"github.com/spf13/viper"
	httpSwagger "github.com/swaggo/http-swagger"

	"github.com/cbcbank/ledger/docs"
	"github.com/cbcbank/ledger/internal/audit"
	"github.com/cbcbank/ledger/internal/config"
	"github.com/cbcbank/ledger/internal/database"
	"github.com/cbcbank/ledger/internal/handlers"
	mW "github.com/cbcbank/ledger/internal/middleware"
	"github.com/cbcbank/ledger/internal/repository"
	"github.com/cbcbank/ledger/internal/services"
)

// @title Ledger API
// @version 1.0
// @description Transaction ledger and balance mutation engine
// @host localhost:8080
// @BasePath /api/v1
// @schemes http https
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

func main() {
	// Initialize config
	viper.SetConfigFile(".env") // explicitly point to .env file
	viper.AutomaticEnv()        // allow environment variables to override .env

	viper.BindEnv("database.host", "DATABASE_HOST")
	viper.BindEnv("database.port", "DATABASE_PORT")
	viper.BindEnv("database.user", "DATABASE_USER")
	viper.BindEnv("database.password", "DATABASE_PASSWORD")
	viper.BindEnv("database.name", "DATABASE_NAME")
	viper.BindEnv("database.ssl_mode", "DATABASE_SSL_MODE")
	viper.BindEnv("database.migrate", "DATABASE_MIGRATE")

	viper.BindEnv("redis.host", "REDIS_HOST")
	viper.BindEnv("redis.port", "REDIS_PORT")
	viper.BindEnv("redis.password", "REDIS_PASSWORD")
	viper.BindEnv("redis.db", "REDIS_DB")

	viper.BindEnv("jwt.secret_key", "JWT_SECRET_KEY")
	config.BindLedgerEnv()

	if err := viper.ReadInConfig(); err != nil {
		log.Printf("Config file not found, using defaults: %v", err)
	}

	// Initialize Swagger docs
	docs.SwaggerInfo.Title = "Ledger API"
	docs.SwaggerInfo.Description = "Transaction ledger and balance mutation engine"
	docs.SwaggerInfo.Version = "1.0"
	docs.SwaggerInfo.Host = "localhost:8080"
	docs.SwaggerInfo.BasePath = "/api/v1"
	docs.SwaggerInfo.Schemes = []string{"http", "https"}

	ledgerConfig := config.LoadLedgerConfig()
	log.Printf("Ledger config: fee rate %s, reversal window %s, limit window %s, currency %s",
		ledgerConfig.FeeRate, ledgerConfig.ReversalWindow, ledgerConfig.RateLimitWindow, ledgerConfig.Currency)

	// Initialize services
	db := database.InitDatabase()
	defer db.Close()

	redisClient := database.InitRedis()
	if redisClient != nil {
		defer redisClient.Close()
	}

	store := repository.NewPostgresStore(db)
	auditLogger := audit.NewLogger()
	events := services.NewRedisPublisher(redisClient, ledgerConfig.EventQueue)

	ledgerService := services.NewLedgerService(store, ledgerConfig, events, auditLogger)
	loanService := services.NewLoanService(store, ledgerConfig, events, auditLogger)
	statementService := services.NewStatementService(store, ledgerConfig)
	iso20022Service := services.NewISO20022Service(ledgerConfig.Currency)
	qrService := services.NewQRService(redisClient, ledgerConfig.QRCodeTimeout)

	ledgerHandler := handlers.NewLedgerHandler(ledgerService, iso20022Service)
	loanHandler := handlers.NewLoanHandler(loanService)
	statementHandler := handlers.NewStatementHandler(statementService)
	qrHandler := handlers.NewQRHandler(qrService, ledgerService)

	// Initialize auth middleware with Redis
	mW.InitAuthMiddleware(redisClient)

	// Setup router
	r := chi.NewRouter()

	// Middleware
	r.Use(mW.SecurityHeaders)
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(middleware.Timeout(60 * time.Second))

	// CORS
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://*", "http://*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           86400,
	}))

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		status := "healthy"
		code := http.StatusOK
		if err := db.PingContext(r.Context()); err != nil {
			status = "degraded"
			code = http.StatusServiceUnavailable
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		json.NewEncoder(w).Encode(map[string]string{"status": status})
	})

	// Swagger documentation
	r.Get("/swagger/*", httpSwagger.Handler(
		httpSwagger.URL("http://localhost:8080/swagger/doc.json"),
	))

	// API routes
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(mW.AuthMiddleware)

		r.Post("/transactions/deposit", ledgerHandler.Deposit)
		r.Post("/transactions/withdraw", ledgerHandler.Withdraw)
		r.Post("/transactions/transfer", ledgerHandler.Transfer)
		r.Get("/transactions/{txId}", ledgerHandler.GetTransaction)
		r.Post("/transactions/{txId}/reverse", ledgerHandler.Reverse)
		r.Get("/transactions/{txId}/iso20022", ledgerHandler.ExportISO20022)

		r.Post("/loans", loanHandler.Apply)
		r.Post("/loans/repay", loanHandler.Repay)
		r.Post("/loans/monthly-payment", loanHandler.MonthlyPayment)
		r.Get("/loans/{loanId}", loanHandler.Get)
		r.Get("/loans/{loanId}/balance", loanHandler.Balance)
		r.Put("/loans/{loanId}/approve", loanHandler.Approve)
		r.Put("/loans/{loanId}/reject", loanHandler.Reject)

		r.Post("/statements", statementHandler.Create)
		r.Get("/statements/{statementId}", statementHandler.Get)
		r.Get("/accounts/{accountNumber}/statements", statementHandler.List)
		r.Post("/reports/audit", statementHandler.AuditReport)
		r.Put("/reports/{reportId}/review", statementHandler.ReviewAuditReport)

		r.Post("/qr/generate", qrHandler.GenerateQR)
		r.Post("/qr/process", qrHandler.ProcessQR)
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
