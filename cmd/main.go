package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	echoMiddleware "github.com/labstack/echo/v4/middleware"

	"buildledger/internal/analytics"
	"buildledger/internal/caching"
	"buildledger/internal/config"
	"buildledger/internal/handlers"
	"buildledger/internal/jobs/background"
	"buildledger/internal/middleware"
	"buildledger/internal/models"
	"buildledger/internal/repositories"
	"buildledger/internal/services"
	"buildledger/pkg/database"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}

	pool, err := database.NewPool(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer pool.Close()

	jwtSecret := cfg.JWTSecret
	if jwtSecret == "" {
		jwtSecret = uuid.NewString()
		log.Printf("WARNING: JWT_SECRET not set, using a generated secret; tokens will not survive restarts")
	}

	cacheSvc := caching.NewRedisCacheService(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)

	storageSvc, err := services.NewStorageService(cfg.MinioEndpoint, cfg.MinioAccessKey, cfg.MinioSecretKey, cfg.MinioUseSSL)
	if err != nil {
		log.Fatalf("Failed to initialize object storage: %v", err)
	}
	if err := storageSvc.EnsureBucketExists(context.Background()); err != nil {
		log.Printf("WARN: failed to ensure attachments bucket: %v", err)
	}

	// Repositories
	userRepo := repositories.NewUserRepo(pool)
	companyRepo := repositories.NewCompanyRepo(pool)
	clientRepo := repositories.NewClientRepo(pool)
	invoiceRepo := repositories.NewInvoiceRepo(pool)
	quoteRepo := repositories.NewQuoteRepo(pool)
	libraryRepo := repositories.NewLibraryItemRepo(pool)
	subscriptionRepo := repositories.NewSubscriptionRepo(pool)
	planRepo := repositories.NewPlanRepo(pool)
	usageRepo := repositories.NewUsageRepo(pool)

	// Services
	billing := services.NewStripeService(cfg.StripeSecretKey, cfg.StripeWebhookSecret)
	subscriptionSvc := services.NewSubscriptionService(subscriptionRepo, planRepo, usageRepo, userRepo, billing, cacheSvc, cfg.AppURL)
	authSvc := services.NewAuthService(userRepo, cacheSvc, jwtSecret, 3600, 30*24*3600)
	invoiceSvc := services.NewInvoiceService(invoiceRepo, clientRepo, subscriptionSvc, cacheSvc)
	quoteSvc := services.NewQuoteService(quoteRepo, clientRepo, invoiceSvc, cacheSvc)
	clientSvc := services.NewClientService(clientRepo)
	librarySvc := services.NewLibraryService(libraryRepo)
	companySvc := services.NewCompanyService(companyRepo, userRepo)
	analyticsSvc := analytics.NewService(invoiceRepo, quoteRepo, subscriptionSvc, cacheSvc)

	seedPlans(subscriptionSvc, cfg.PlansFile)

	// Handlers
	authHandlers := handlers.NewAuthHandlers(authSvc, userRepo)
	invoiceHandlers := handlers.NewInvoiceHandlers(invoiceSvc, storageSvc)
	quoteHandlers := handlers.NewQuoteHandlers(quoteSvc)
	clientHandlers := handlers.NewClientHandlers(clientSvc)
	libraryHandlers := handlers.NewLibraryHandlers(librarySvc)
	companyHandlers := handlers.NewCompanyHandlers(companySvc)
	subscriptionHandlers := handlers.NewSubscriptionHandlers(subscriptionSvc)
	webhookHandlers := handlers.NewWebhookHandlers(billing, subscriptionSvc)
	dashboardHandlers := handlers.NewDashboardHandlers(analyticsSvc)
	healthHandlers := handlers.NewHealthHandlers(pool)

	e := echo.New()
	e.HideBanner = true
	e.Use(echoMiddleware.Logger())
	e.Use(echoMiddleware.Recover())
	e.Use(echoMiddleware.CORS())

	registerRoutes(e, cacheSvc, jwtSecret, authHandlers, invoiceHandlers, quoteHandlers,
		clientHandlers, libraryHandlers, companyHandlers, subscriptionHandlers,
		webhookHandlers, dashboardHandlers, healthHandlers)

	// Background jobs
	scheduler := background.NewJobScheduler(subscriptionSvc, invoiceSvc)
	if err := scheduler.Start(); err != nil {
		log.Fatalf("Failed to start job scheduler: %v", err)
	}

	go func() {
		addr := fmt.Sprintf(":%d", cfg.Port)
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := scheduler.Stop(); err != nil {
		log.Printf("Failed to stop scheduler: %v", err)
	}
	if err := e.Shutdown(ctx); err != nil {
		log.Printf("Failed to shut down server: %v", err)
	}
}

func registerRoutes(
	e *echo.Echo,
	cacheSvc caching.CacheService,
	jwtSecret string,
	authHandlers *handlers.AuthHandlers,
	invoiceHandlers *handlers.InvoiceHandlers,
	quoteHandlers *handlers.QuoteHandlers,
	clientHandlers *handlers.ClientHandlers,
	libraryHandlers *handlers.LibraryHandlers,
	companyHandlers *handlers.CompanyHandlers,
	subscriptionHandlers *handlers.SubscriptionHandlers,
	webhookHandlers *handlers.WebhookHandlers,
	dashboardHandlers *handlers.DashboardHandlers,
	healthHandlers *handlers.HealthHandlers,
) {
	e.GET("/health", healthHandlers.HealthCheck)
	e.GET("/health/ready", healthHandlers.ReadinessCheck)

	// Auth endpoints, rate limited per IP.
	auth := e.Group("/auth", middleware.RateLimitMiddleware(cacheSvc, 20, time.Minute))
	auth.POST("/signup", authHandlers.Signup)
	auth.POST("/login", authHandlers.Login)
	auth.POST("/refresh", authHandlers.Refresh)
	auth.POST("/logout", authHandlers.Logout)

	// Webhook deliveries are authenticated by signature, not JWT.
	e.POST("/api/webhooks/stripe", webhookHandlers.HandleStripeWebhook)
	e.POST("/api/stripe/webhook", webhookHandlers.HandleStripeWebhook) // legacy path

	// Public invoice share links.
	e.GET("/public/invoices/:token", invoiceHandlers.GetPublicInvoice)

	api := e.Group("/api", middleware.JWTMiddleware(jwtSecret))
	api.GET("/me", authHandlers.Me)

	api.GET("/invoices", invoiceHandlers.ListInvoices)
	api.POST("/invoices", invoiceHandlers.CreateInvoice)
	api.GET("/invoices/:id", invoiceHandlers.GetInvoice)
	api.PUT("/invoices/:id", invoiceHandlers.UpdateInvoice)
	api.DELETE("/invoices/:id", invoiceHandlers.DeleteInvoice)
	api.PUT("/invoices/:id/status", invoiceHandlers.UpdateInvoiceStatus)
	api.POST("/invoices/:id/attachment", invoiceHandlers.UploadAttachment)
	api.GET("/invoices/:id/attachment", invoiceHandlers.GetAttachmentURL)

	api.GET("/quotes", quoteHandlers.ListQuotes)
	api.POST("/quotes", quoteHandlers.CreateQuote)
	api.GET("/quotes/:id", quoteHandlers.GetQuote)
	api.PUT("/quotes/:id", quoteHandlers.UpdateQuote)
	api.DELETE("/quotes/:id", quoteHandlers.DeleteQuote)
	api.PUT("/quotes/:id/status", quoteHandlers.UpdateQuoteStatus)
	api.POST("/quotes/:id/convert", quoteHandlers.ConvertQuote)

	api.GET("/clients", clientHandlers.ListClients)
	api.POST("/clients", clientHandlers.CreateClient)
	api.GET("/clients/:id", clientHandlers.GetClient)
	api.PUT("/clients/:id", clientHandlers.UpdateClient)
	api.DELETE("/clients/:id", clientHandlers.DeleteClient)

	api.GET("/library-items", libraryHandlers.ListItems)
	api.POST("/library-items", libraryHandlers.CreateItem)
	api.GET("/library-items/:id", libraryHandlers.GetItem)
	api.PUT("/library-items/:id", libraryHandlers.UpdateItem)
	api.DELETE("/library-items/:id", libraryHandlers.DeleteItem)

	api.GET("/company", companyHandlers.GetCompany)
	api.PUT("/company", companyHandlers.UpsertCompany)

	api.GET("/subscriptions", subscriptionHandlers.GetSubscription)
	api.POST("/subscriptions", subscriptionHandlers.CreateSubscription)
	api.DELETE("/subscriptions", subscriptionHandlers.CancelSubscription)
	api.GET("/subscriptions/status", subscriptionHandlers.GetSubscriptionStatus)
	api.GET("/subscriptions/plans", subscriptionHandlers.ListPlans)
	api.GET("/subscriptions/:id/usage", subscriptionHandlers.GetUsage)
	api.POST("/subscriptions/:id/usage", subscriptionHandlers.RecordUsage)

	api.POST("/stripe/checkout", subscriptionHandlers.CreateCheckoutSession)
	api.POST("/stripe/create-portal-session", subscriptionHandlers.CreatePortalSession)

	api.GET("/dashboard", dashboardHandlers.GetDashboard)
}

// seedPlans upserts plan reference data from the TOML seed file.
func seedPlans(subscriptionSvc services.SubscriptionService, plansFile string) {
	plansCfg, err := config.LoadPlans(plansFile)
	if err != nil {
		log.Printf("WARN: plan seeding skipped: %v", err)
		return
	}

	plans := make([]*models.SubscriptionPlan, 0, len(plansCfg.Plans))
	for _, seed := range plansCfg.Plans {
		plans = append(plans, &models.SubscriptionPlan{
			Name:             seed.Name,
			DisplayName:      seed.DisplayName,
			Price:            seed.Price,
			BillingCycle:     seed.BillingCycle,
			StripePriceID:    seed.StripePriceID,
			Features:         seed.Features,
			InvoicesLimit:    seed.InvoicesLimit,
			StorageLimitMB:   seed.StorageLimitMB,
			TeamMembersLimit: seed.TeamMembersLimit,
			APICallsPerMonth: seed.APICallsPerMonth,
		})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := subscriptionSvc.SeedPlans(ctx, plans); err != nil {
		log.Printf("WARN: plan seeding failed: %v", err)
		return
	}
	log.Printf("Seeded %d subscription plans", len(plans))
}
