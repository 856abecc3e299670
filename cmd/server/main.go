package main

import (
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"graho-live/internal/auth"
	"graho-live/internal/config"
	"graho-live/internal/database"
	"graho-live/internal/handlers"
	"graho-live/internal/livehub"
	"graho-live/pkg/logger"
)

func main() {
	// Load configuration
	cfg := config.Load()

	// Initialize database
	db, err := database.NewPostgresDB(cfg.Database.URL)
	if err != nil {
		logger.Fatal("Failed to connect to database: %v", err)
	}
	defer db.Close()

	// Initialize services
	authService := auth.NewService(db, cfg)

	// Initialize live hub manager
	hubManager := livehub.NewManager(db, cfg.Live.HubCleanupInterval)

	// Initialize handlers
	authHandlers := handlers.NewAuthHandlers(authService)
	walletHandlers := handlers.NewWalletHandlers(authService, db)
	liveHandlers := handlers.NewLiveHandlers(authService, hubManager, db)

	// Setup routes
	mux := http.NewServeMux()
	setupRoutes(mux, authHandlers, walletHandlers, liveHandlers)

	// Create server
	server := &http.Server{
		Addr:         cfg.Server.Port,
		Handler:      corsMiddleware(mux),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// Start server
	logger.Info("Graho live server started on http://localhost%s", cfg.Server.Port)
	logger.Info("Live websocket endpoint: ws://localhost%s/live", cfg.Server.Port)
	printAPIEndpoints()

	// Graceful shutdown
	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Server error: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Server shutting down...")
}

func setupRoutes(mux *http.ServeMux, authHandlers *handlers.AuthHandlers, walletHandlers *handlers.WalletHandlers, liveHandlers *handlers.LiveHandlers) {
	// Auth routes
	mux.HandleFunc("POST /login", authHandlers.Login)
	mux.HandleFunc("POST /register", authHandlers.Register)

	// Wallet routes
	mux.HandleFunc("GET /wallet/balance", walletHandlers.GetBalance)
	mux.HandleFunc("POST /wallet/deduct", walletHandlers.Deduct)
	mux.HandleFunc("POST /wallet/recharge", walletHandlers.Recharge)

	// Live session routes
	mux.HandleFunc("POST /live/sessions", liveHandlers.CreateLiveSession)
	mux.HandleFunc("GET /live/sessions", liveHandlers.ListLiveSessions)

	// Live websocket endpoint
	mux.HandleFunc("/live", liveHandlers.HandleLive)
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func printAPIEndpoints() {
	logger.Info("API endpoints:")
	logger.Info("   POST /login")
	logger.Info("   POST /register")
	logger.Info("   GET  /wallet/balance")
	logger.Info("   POST /wallet/deduct")
	logger.Info("   POST /wallet/recharge")
	logger.Info("   GET  /live/sessions")
	logger.Info("   POST /live/sessions")
	logger.Info("   GET  /live (websocket)")
}
