package main

import (
	"context"
	"net/http"
	"time"

	"vestra-be/internal/config"
	"vestra-be/internal/db"
	"vestra-be/internal/logger"
	"vestra-be/internal/middleware"
	"vestra-be/internal/order"
	"vestra-be/internal/payment"
	"vestra-be/internal/payment/webhook"
	"vestra-be/internal/user"

	"go.uber.org/zap"
)

// swappable for tests
var startServerFunc = http.ListenAndServe

const (
	sweepInterval = 5 * time.Minute
	sweepMinAge   = 15 * time.Minute
)

func main() {
	if err := run(); err != nil {
		logger.L().Fatal("server exited", zap.Error(err))
	}
}

func run() error {
	cfg := config.LoadConfig()
	logger.Init(cfg.AppEnv)
	defer logger.Sync()

	database, err := db.Open(cfg)
	if err != nil {
		return err
	}
	defer database.Close()

	userRepo := user.NewRepository(database)
	userSvc := user.NewService(userRepo)
	userHandler := user.NewHandler(userSvc)

	signer := payment.NewSigner(cfg.PayrexxAPISecret)
	gateways := map[order.PaymentMethod]payment.Gateway{
		order.MethodStripe:  payment.NewStripeCheckout(cfg.StripeSecretKey),
		order.MethodPayrexx: payment.NewPayrexxGateway(cfg.PayrexxInstance, signer),
	}

	orderRepo := order.NewRepository(database)
	orderSvc := order.NewService(orderRepo, userRepo, gateways, cfg.FrontendURL)
	orderHandler := order.NewHandler(orderSvc)

	webhookRepo := payment.NewRepository(database)
	webhookHandler := webhook.NewPayrexxHandler(signer, webhookRepo, orderSvc)

	dispatcher := order.NewDispatcher(orderSvc, sweepInterval, sweepMinAge)
	dispatcher.Start(context.Background())
	defer dispatcher.Stop()

	router := setupRouter(userHandler, orderHandler, webhookHandler.Handle)

	logger.L().Info("server listening", zap.String("port", cfg.AppPort))
	return startServerFunc(":"+cfg.AppPort, router)
}

func setupRouter(userHandler *user.Handler, orderHandler *order.Handler, webhookHandler http.HandlerFunc) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	mux.HandleFunc("/api/user/register", userHandler.Register)
	mux.HandleFunc("/api/user/login", userHandler.Login)

	mux.HandleFunc("/api/order/place", middleware.RequireAuth(orderHandler.PlaceOrder))
	mux.HandleFunc("/api/order/stripe", middleware.RequireAuth(orderHandler.PlaceOrderStripe))
	mux.HandleFunc("/api/order/payrexx", middleware.RequireAuth(orderHandler.PlaceOrderPayrexx))
	mux.HandleFunc("/api/order/verify-stripe", middleware.RequireAuth(orderHandler.VerifyStripe))
	mux.HandleFunc("/api/order/verify-payrexx", middleware.RequireAuth(orderHandler.VerifyPayrexx))
	mux.HandleFunc("/api/order/userorders", middleware.RequireAuth(orderHandler.UserOrders))

	mux.HandleFunc("/api/order/list", middleware.RequireAdmin(orderHandler.AllOrders))
	mux.HandleFunc("/api/order/status", middleware.RequireAdmin(orderHandler.UpdateStatus))

	// Signature-gated inside the handler; no session auth.
	mux.HandleFunc("/webhook/payrexx", webhookHandler)

	// Auth runs before the limiter so authenticated callers are limited
	// per user rather than per IP.
	var h http.Handler = mux
	h = middleware.RateLimitMiddleware(h)
	h = middleware.AuthMiddleware(h)
	h = logger.LoggingMiddleware(h)
	h = logger.RequestIDMiddleware(h)
	return h
}
