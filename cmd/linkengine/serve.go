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

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/mediavault/link-engine/internal/blobstore"
	"github.com/mediavault/link-engine/internal/config"
	"github.com/mediavault/link-engine/internal/entitlement"
	"github.com/mediavault/link-engine/internal/handlers"
	"github.com/mediavault/link-engine/internal/middleware"
	"github.com/mediavault/link-engine/internal/services"
	"github.com/mediavault/link-engine/internal/storage"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the link engine HTTP server",
		RunE:  runServe,
	}
}

// alwaysEntitled stands in for the entitlement service when the check
// is disabled; premium files then behave like free ones.
type alwaysEntitled struct{}

func (alwaysEntitled) IsEntitled(ctx context.Context, deviceID string) (bool, error) {
	return true, nil
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := loadConfig()

	db, err := storage.New(cfg.Database.DatabaseURL())
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer db.Close()

	migrationsPath := os.Getenv("MIGRATIONS_PATH")
	if migrationsPath == "" {
		migrationsPath = "./migrations"
	}
	if err := db.Migrate(migrationsPath); err != nil {
		log.Printf("Warning: migrations failed: %v", err)
	}

	var counter services.WindowCounter
	rdb, err := storage.NewRedis(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		log.Printf("Warning: redis unavailable, rate limits fall back to in-memory windows: %v", err)
	} else {
		defer rdb.Close()
		counter = rdb
	}

	// Stores
	fileStore := storage.NewFileStore(db)
	linkStore := storage.NewLinkStore(db)
	fingerprintStore := storage.NewFingerprintStore(db)
	impressionStore := storage.NewImpressionStore(db)
	keyStore := storage.NewEndpointKeyStore(db)
	accessLogStore := storage.NewAccessLogStore(db)

	// Services
	fileService, err := services.NewFileService(fileStore, cfg.Links.FileCacheSize)
	if err != nil {
		return err
	}
	linkService := services.NewLinkService(linkStore, fileService, cfg.Links.LinkExpiry())
	fingerprintService := services.NewFingerprintService(fingerprintStore)
	governor := services.NewGovernor(counter, impressionStore)
	keyService := services.NewKeyService(keyStore)

	var entitlements services.EntitlementChecker = alwaysEntitled{}
	if cfg.Entitlement.Enabled {
		entitlements = entitlement.New(cfg.Entitlement.BaseURL, os.Getenv("ENTITLEMENT_API_KEY"),
			time.Duration(cfg.Entitlement.TimeoutSec)*time.Second)
	}

	blobs := blobstore.New(cfg.BlobStore.BaseURL, os.Getenv("BLOB_STORE_API_KEY"),
		time.Duration(cfg.BlobStore.TimeoutSec)*time.Second)

	playLimit := services.Limit{Max: cfg.Limits.PlayRateLimit, Window: cfg.Limits.PlayWindow()}
	apiLimit := services.Limit{Max: cfg.Limits.APIRateLimit, Window: cfg.Limits.APIWindow()}

	accessService := services.NewAccessService(linkService, fileService, governor, blobs,
		entitlements, accessLogStore, playLimit)

	// Impression retention cleanup
	cleanupCtx, cancelCleanup := context.WithCancel(context.Background())
	defer cancelCleanup()
	go runImpressionCleanup(cleanupCtx, governor, cfg)

	router := setupRouter(cfg, governor, apiLimit, keyService,
		handlers.NewLinkHandler(linkService, fingerprintService, cfg.Server.BaseURL),
		handlers.NewStreamHandler(accessService),
		handlers.NewTrackingHandler(governor),
		handlers.NewFileHandler(fileService),
		handlers.NewAdminHandler(linkService, fingerprintService, keyService),
	)

	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		log.Println("Shutting down server...")
		cancelCleanup()

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			log.Printf("Server forced to shutdown: %v", err)
		}
	}()

	log.Printf("Link engine HTTP server starting on %s:%d", cfg.Server.Host, cfg.Server.Port)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("failed to start server: %w", err)
	}

	log.Println("Server exited")
	return nil
}

func setupRouter(cfg *config.Config, governor *services.Governor, apiLimit services.Limit,
	keyService *services.KeyService, linkHandler *handlers.LinkHandler,
	streamHandler *handlers.StreamHandler, trackingHandler *handlers.TrackingHandler,
	fileHandler *handlers.FileHandler, adminHandler *handlers.AdminHandler) *gin.Engine {

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(gin.Logger())
	router.Use(middleware.MetricsMiddleware())

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "healthy"})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	resolver := middleware.NewAPIKeyResolver(map[string]string{
		"links":    cfg.Auth.LinksAPIToken,
		"tracking": cfg.Auth.TrackingAPIToken,
		"ingest":   cfg.Auth.IngestAPIToken,
	}, cfg.Auth.GlobalAPIToken, keyService.Verify)

	// Public playback routes; rate limiting happens inside the
	// authorization sequence, keyed by the link's device
	router.GET("/play/:hash_id", streamHandler.Play)
	router.GET("/download/:hash_id", streamHandler.Download)

	api := router.Group("/api/v1")
	{
		links := api.Group("/links")
		links.Use(middleware.APIKeyMiddleware(resolver, "links"))
		links.Use(middleware.RateLimitMiddleware(governor, "api", apiLimit, middleware.IdentityByDevice))
		{
			links.POST("", linkHandler.IssueLink)
			links.GET("/file/:file_id", linkHandler.ListLinks)
		}

		tracking := api.Group("/tracking")
		tracking.Use(middleware.APIKeyMiddleware(resolver, "tracking"))
		{
			tracking.POST("/postback", trackingHandler.Postback)
		}

		files := api.Group("/files")
		files.Use(middleware.APIKeyMiddleware(resolver, "ingest"))
		{
			files.POST("", fileHandler.RegisterFile)
			files.GET("/:id", fileHandler.GetFile)
		}

		admin := api.Group("/admin")
		admin.Use(middleware.JWTMiddleware(cfg.Auth.AdminJWTSecret))
		{
			admin.GET("/files/:file_id/links", linkHandler.ListLinks)
			admin.POST("/links/:hash_id/revoke", adminHandler.RevokeLink)
			admin.GET("/clusters", adminHandler.Clusters)
			admin.POST("/keys", adminHandler.CreateKey)
			admin.GET("/keys", adminHandler.ListKeys)
		}
	}

	return router
}

// runImpressionCleanup purges impression rows past retention on a fixed
// interval until ctx is cancelled
func runImpressionCleanup(ctx context.Context, governor *services.Governor, cfg *config.Config) {
	interval := time.Duration(cfg.Impressions.CleanupInterval) * time.Hour
	retention := time.Duration(cfg.Impressions.RetentionDays) * 24 * time.Hour

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			purged, err := governor.PurgeImpressions(ctx, retention)
			if err != nil {
				log.Printf("impression cleanup failed: %v", err)
				continue
			}
			if purged > 0 {
				log.Printf("purged %d impression records past retention", purged)
			}
		}
	}
}
