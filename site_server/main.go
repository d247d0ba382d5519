package main

import (
	"context"
	"embed"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"schoolsite/db"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
)

//go:embed site-migrations/*.sql
var migrationFiles embed.FS

const maxJSONBodyBytes = 100 * 1024

func limitRequestBody(limit int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, limit)
		c.Next()
	}
}

func corsConfig() cors.Config {
	cfg := cors.DefaultConfig()
	cfg.AllowOrigins = parseAllowedOriginsFromEnv(os.Getenv("ALLOWED_ORIGINS"))
	cfg.AllowMethods = []string{"GET", "POST", "OPTIONS"}
	cfg.AllowHeaders = []string{"Content-Type", "Authorization"}
	cfg.AllowCredentials = true
	return cfg
}

func HandleHealth(c *gin.Context) {
	c.JSON(200, gin.H{"status": "ok", "timestamp": time.Now().UTC().Format(time.RFC3339)})
}

func newRouter() *gin.Engine {
	r := gin.Default()
	r.Use(limitRequestBody(maxJSONBodyBytes))
	r.Use(cors.New(corsConfig()))

	r.GET("/api/health", HandleHealth)

	r.POST("/api/contact", contactFormLimiter(), HandleContactSubmit)

	// One chat policy shared by every chat route.
	chatRateLimiter := chatLimiter()
	r.POST("/api/chat", chatRateLimiter, HandleChat)
	r.POST("/api/chat/stream", chatRateLimiter, HandleChatStream)
	r.GET("/api/chat/models", chatRateLimiter, HandleChatModels)

	admin := r.Group("/api/admin")
	admin.POST("/login", adminLoginLimiter(), HandleAdminLogin)
	protected := admin.Group("", AdminJwtMiddleware())
	protected.GET("/messages", HandleListMessages)
	protected.POST("/messages/:id/status", HandleUpdateMessageStatus)

	if isProduction() {
		staticDir := envOrDefault("STATIC_DIR", "./build")
		r.Static("/static", filepath.Join(staticDir, "static"))
		r.StaticFile("/favicon.ico", filepath.Join(staticDir, "favicon.ico"))
		r.NoRoute(func(c *gin.Context) {
			if c.Request.Method != http.MethodGet {
				c.JSON(404, gin.H{"success": false, "message": "Not found"})
				return
			}
			c.File(filepath.Join(staticDir, "index.html"))
		})
	}

	return r
}

func main() {
	_ = godotenv.Load()

	port := envOrDefault("PORT", "5000")
	dbFile := envOrDefault("SITE_DB_FILE", "./schoolsite.db")

	var err error
	db.SiteDB, err = db.InitSQLite(dbFile)
	if err != nil {
		log.Fatal("Error opening database:", err)
	}
	defer db.CloseDB(db.SiteDB)
	if err := db.RunMigrations(db.SiteDB, migrationFiles, "site-migrations"); err != nil {
		log.Fatal("Error running migrations:", err)
	}

	spamFilter = NewSpamFilterFromEnv()

	if isProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	r := newRouter()

	server := &http.Server{
		Addr:    ":" + port,
		Handler: r,
	}

	go func() {
		log.Printf("Starting server on port %s...", port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("ListenAndServe error: %v", err)
		}
	}()
	go checkChatUpstream()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	log.Println("Server exited cleanly.")
}
