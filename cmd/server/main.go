package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/linemk/telegram-shop/internal/app"
	"github.com/linemk/telegram-shop/internal/app/handlers"
	"github.com/linemk/telegram-shop/internal/config"
	"github.com/linemk/telegram-shop/internal/estimator"
	"github.com/linemk/telegram-shop/internal/jwt-new/jwtmiddleware"
	"github.com/linemk/telegram-shop/internal/lib/initdata"
	"github.com/linemk/telegram-shop/internal/lib/logger"
	"github.com/linemk/telegram-shop/internal/lib/logger/handlers/urllog"
	"github.com/linemk/telegram-shop/internal/lib/metrics"
	"github.com/linemk/telegram-shop/internal/notify"
	"github.com/linemk/telegram-shop/internal/order"
	"github.com/linemk/telegram-shop/internal/orderid"
	"github.com/linemk/telegram-shop/internal/service"
	"github.com/linemk/telegram-shop/internal/session"
	"github.com/linemk/telegram-shop/internal/storage"
	"github.com/linemk/telegram-shop/internal/telegram"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

func main() {
	// загрузка конфигурации
	cfg := config.MustLoad()

	// инициализация логгера, зависит от настройки окружения
	log := logger.SetupLogger(cfg.Env)
	log.Info("starting app", slog.String("env", cfg.Env))

	// загружаем объект приложения, конфигом и подключениями к БД и Redis
	application, err := app.NewApp(log, cfg)
	if err != nil {
		log.Error("failed to initialize app", slog.Any("error", err))
		panic(errors.Wrap(err, "failed to initialize app"))
	}
	defer application.Close()

	// метрики в собственном реестре, плюс стандартные метрики процесса
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(registry)

	// отправка уведомлений в Telegram
	tgClient, err := telegram.NewClient(log, telegram.Config{
		APIURL:        cfg.Telegram.APIURL,
		Token:         cfg.Telegram.BotToken,
		Timeout:       cfg.Telegram.SendTimeout,
		RatePerSecond: cfg.Telegram.RatePerSecond,
	})
	if err != nil {
		panic(errors.Wrap(err, "failed to create telegram client"))
	}

	loc := cfg.Checkout.Location()
	est := estimator.New(estimator.WithLocation(loc))
	builder := order.NewBuilder(orderid.New(), est, time.Now)
	dispatcher := notify.NewDispatcher(log, tgClient, notify.NewFormatter(est, loc), m, notify.Config{
		SendTimeout:   cfg.Telegram.SendTimeout,
		CustomerGrace: cfg.Checkout.CustomerGrace,
	})

	// корзины переживают рестарт, только если настроен Redis
	var cartStore session.CartStore = session.NewMemoryCartStore()
	if application.Redis != nil {
		cartStore = session.NewRedisCartStore(application.Redis, cfg.Redis.CartTTL)
	}
	sessions := session.NewManager(log, session.Config{
		Store:          cartStore,
		Builder:        builder,
		Notifier:       dispatcher,
		MerchantChatID: cfg.Telegram.MerchantChatID,
		Metrics:        m,
		IdleTTL:        cfg.Checkout.SessionIdleTTL,
	})
	sweepCtx, stopSweep := context.WithCancel(context.Background())
	defer stopSweep()
	go sessions.Run(sweepCtx, cfg.Checkout.SweepInterval)

	// слой каталога
	productRepo := storage.NewProductRepository(application.DB)

	authService := service.NewAuthService(log, initdata.NewValidator(cfg.Telegram.BotToken, cfg.Telegram.InitDataMaxAge), sessions, service.AuthConfig{
		Secret:   cfg.JWT.Secret,
		TokenTTL: time.Duration(cfg.JWT.TokenTTL) * time.Minute,
		// без Telegram можно войти только при локальной разработке
		AllowAnonymous: cfg.Env == logger.EnvLocal,
	})
	cartService := service.NewCartService(log, productRepo, sessions)
	checkoutService := service.NewCheckoutService(log, sessions)

	router := chi.NewRouter()
	// настройка middleware
	router.Use(middleware.RequestID)
	router.Use(urllog.CustomLoggerMiddleware(log, m))
	router.Use(middleware.Recoverer)
	router.Use(middleware.URLFormat)

	router.Handle("/metrics", metrics.Handler(registry))

	// эндпоинт для входа из мини-приложения
	router.Post("/api/auth", handlers.AuthHandler(log, authService))
	// меню доступно без авторизации
	router.Get("/api/products", handlers.ProductsHandler(log, cartService))

	router.Group(func(r chi.Router) {
		r.Use(jwtmiddleware.NewJWTMiddleware(cfg.JWT.Secret))

		r.Get("/api/cart", handlers.GetCartHandler(log, cartService))
		r.Post("/api/cart/items", handlers.AddItemHandler(log, cartService))
		r.Put("/api/cart/items/{id}", handlers.SetQuantityHandler(log, cartService))
		r.Delete("/api/cart/items/{id}", handlers.RemoveItemHandler(log, cartService))

		r.Get("/api/checkout", handlers.CheckoutStateHandler(log, checkoutService))
		r.Post("/api/checkout", handlers.EnterCheckoutHandler(log, checkoutService))
		r.Put("/api/checkout/form", handlers.UpdateCheckoutFormHandler(log, checkoutService))
		r.Post("/api/checkout/submit", handlers.SubmitCheckoutHandler(log, checkoutService))
		r.Post("/api/checkout/cancel", handlers.CancelCheckoutHandler(log, checkoutService))
	})

	srv := &http.Server{
		Addr:         cfg.HTTPServer.Address,
		Handler:      router,
		ReadTimeout:  cfg.HTTPServer.Timeout,
		WriteTimeout: cfg.HTTPServer.Timeout,
		IdleTimeout:  cfg.HTTPServer.IdleTimeout,
	}

	go func() {
		log.Info("starting server", slog.String("address", cfg.HTTPServer.Address))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server error", slog.Any("error", err))
		}
	}()

	// graceful shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	stopSign := <-stop
	log.Info("received shutdown signal", slog.String("signal", stopSign.String()))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error("server shutdown failed", slog.Any("error", err))
	}
	stopSweep()
	// подтверждения покупателям, ушедшие в фон, досылаются до выхода
	dispatcher.Wait()
	log.Info("server gracefully stopped")
}
