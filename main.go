package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"greendrake/haggle/internal/api"
	"greendrake/haggle/internal/cache"
	"greendrake/haggle/internal/config"
	"greendrake/haggle/internal/db"
	"greendrake/haggle/internal/notify"
	"greendrake/haggle/internal/payment"
	"greendrake/haggle/internal/repository/mongodb"
	"greendrake/haggle/internal/services"
	"greendrake/haggle/internal/tasks"
)

var runMode = flag.String("m", "all", "Run mode: 'api', 'bg' (background tasks), 'all' (default)")

func main() {
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*runMode)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize Database
	mongoClient, mongoDb, err := db.ConnectDB(cfg.MongoURI, cfg.MongoDbName)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer func() {
		if err := db.DisconnectDB(mongoClient); err != nil {
			log.Printf("Error disconnecting from MongoDB: %v", err)
		}
	}()

	ctxIndexes, cancelIndexes := context.WithTimeout(context.Background(), 30*time.Second)
	if err := db.EnsureIndexes(ctxIndexes, mongoDb); err != nil {
		cancelIndexes()
		log.Fatalf("Failed to ensure MongoDB indexes: %v", err)
	}
	cancelIndexes()

	// Initialize Cache (Redis)
	redisClient, err := cache.ConnectRedis(context.Background(), cfg)
	if err != nil {
		log.Fatalf("Failed to connect to Redis: %v", err)
	}
	defer func() {
		if err := cache.DisconnectRedis(redisClient); err != nil {
			log.Printf("Error disconnecting from Redis: %v", err)
		}
	}()

	// Initialize Payment Provider
	var provider payment.Provider
	var mockProvider *payment.MockProvider
	if cfg.MockServices {
		log.Println("MOCK_SERVICES enabled: Using Redis-backed mock payment provider.")
		mockProvider = payment.NewMockProvider(redisClient, cfg)
		provider = mockProvider
	} else {
		log.Println("MOCK_SERVICES disabled or not set: Using Stripe payment provider.")
		provider = payment.NewStripeProvider(cfg)
	}

	// Setup Composite Realtime Publisher
	publisher := notify.NewCompositePublisher(notify.NewRedisPublisher(redisClient))
	if cfg.MockServices {
		publisher.AddPublisher(notify.NewLoggingPublisher())
	}
	if cfg.LogNotificationsPath != "" {
		log.Printf("LOG_NOTIFICATIONS set to '%s', enabling file notification logger.", cfg.LogNotificationsPath)
		filePublisher, err := notify.NewFilePublisher(cfg.LogNotificationsPath)
		if err != nil {
			log.Printf("WARNING: Failed to initialize file notification logger (LOG_NOTIFICATIONS='%s'): %v. Proceeding without file logging.", cfg.LogNotificationsPath, err)
		} else {
			publisher.AddPublisher(filePublisher)
		}
	}

	// Repositories
	listingRepo := mongodb.NewListingRepository(mongoDb)
	offerRepo := mongodb.NewOfferRepository(mongoDb)
	messageRepo := mongodb.NewMessageRepository(mongoDb)
	notificationRepo := mongodb.NewNotificationRepository(mongoDb)
	wishlistRepo := mongodb.NewWishlistRepository(mongoDb)

	// Initialize Task Client
	taskClient := tasks.NewClient(redisClient)
	defer func() {
		if err := taskClient.Close(); err != nil {
			log.Printf("Error closing task client: %v", err)
		}
	}()
	enqueuer := tasks.NewEnqueuer(taskClient)

	// Initialize Services needed by handlers and/or task processor
	listingService := services.NewListingService(listingRepo, offerRepo, wishlistRepo)
	dispatcher := services.NewNotificationDispatcher(messageRepo, notificationRepo, publisher)
	offerService := services.NewOfferService(offerRepo, listingRepo, dispatcher, enqueuer)
	wishlistService := services.NewWishlistService(wishlistRepo, listingRepo, notificationRepo, publisher)
	paymentService := services.NewPaymentReconciler(offerRepo, listingRepo, provider, enqueuer, cfg)
	notificationService := services.NewNotificationService(notificationRepo, cfg)
	messageService := services.NewMessageService(messageRepo, listingRepo, notificationRepo, publisher)

	// Initialize Task Processor
	taskProcessor := tasks.NewTaskProcessor(offerService, paymentService, wishlistService)

	// WaitGroup for managing goroutines
	var wg sync.WaitGroup

	// Channel to signal shutdown from Service API
	shutdownChan := make(chan struct{}, 1)

	// Start Service API (always runs)
	var checkouts api.TestCheckoutStore
	if mockProvider != nil {
		checkouts = mockProvider
	}
	serviceSrv := &http.Server{
		Addr:    ":" + cfg.ServiceApiPort,
		Handler: api.SetupServiceRouter(cfg, checkouts, shutdownChan),
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		fmt.Printf("Service API listening on :%s\n", cfg.ServiceApiPort)
		if err := serviceSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Service API ListenAndServe error: %v", err)
		}
		fmt.Println("Service API server stopped.")
	}()

	// --- Mode-specific servers ---
	var mainApiSrv *http.Server
	var backgroundTaskSrv *asynq.Server
	var scheduler *asynq.Scheduler

	fmt.Printf("Starting application in '%s' mode...\n", cfg.RunMode)

	apiMode := func() {
		fmt.Println("Starting main API server...")
		mainApiSrv = &http.Server{
			Addr: ":" + cfg.ApiPort,
			Handler: api.SetupRouter(cfg, &api.Services{
				Listings:      listingService,
				Offers:        offerService,
				Payments:      paymentService,
				Wishlists:     wishlistService,
				Notifications: notificationService,
				Messages:      messageService,
			}),
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			fmt.Printf("Main API listening on :%s\n", cfg.ApiPort)
			if err := mainApiSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Fatalf("Main API ListenAndServe error: %v", err)
			}
			fmt.Println("Main API server stopped.")
		}()
	}

	bgMode := func() {
		fmt.Println("Starting background worker...")
		srv, mux := tasks.SetupServer(redisClient, taskProcessor)
		if err := srv.Start(mux); err != nil {
			log.Fatalf("Background task server error: %v", err)
		}
		backgroundTaskSrv = srv

		scheduler, err = tasks.NewScheduler(redisClient, cfg)
		if err != nil {
			log.Fatalf("Failed to set up task scheduler: %v", err)
		}
		if err := scheduler.Start(); err != nil {
			log.Fatalf("Task scheduler error: %v", err)
		}
	}

	switch cfg.RunMode {
	case "api":
		apiMode()
	case "bg":
		bgMode()
	case "all":
		apiMode()
		bgMode()
	default:
		log.Fatalf("Invalid run mode specified in config: %s.", cfg.RunMode)
	}

	// --- Graceful Shutdown ---
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		fmt.Printf("\nReceived signal: %s. Shutting down gracefully...\n", sig)
	case <-shutdownChan:
		fmt.Println("\nShutdown requested via Service API. Shutting down gracefully...")
	}

	ctxShutdown, cancelShutdown := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancelShutdown()

	fmt.Println("Shutting down Service API server...")
	if err := serviceSrv.Shutdown(ctxShutdown); err != nil {
		log.Printf("Service API server shutdown error: %v", err)
	}

	if mainApiSrv != nil {
		fmt.Println("Shutting down Main API server...")
		if err := mainApiSrv.Shutdown(ctxShutdown); err != nil {
			log.Printf("Main API server shutdown error: %v", err)
		}
	}

	if scheduler != nil {
		fmt.Println("Shutting down task scheduler...")
		scheduler.Shutdown()
	}
	if backgroundTaskSrv != nil {
		fmt.Println("Shutting down Background Task server...")
		backgroundTaskSrv.Shutdown()
	}

	fmt.Println("Waiting for servers to stop...")
	wg.Wait()

	fmt.Println("Server gracefully stopped")
}
