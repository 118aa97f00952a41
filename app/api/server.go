package api

import (
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

// NewServer creates a new HTTP server with all routes configured
func NewServer(handler *Handler, apiAccessKey string) *gin.Engine {
	// Set Gin mode (can be controlled via GIN_MODE environment variable)
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()

	// Middleware
	r.Use(gin.LoggerWithConfig(gin.LoggerConfig{
		Formatter: func(param gin.LogFormatterParams) string {
			return fmt.Sprintf("%s - [%s] \"%s %s %s %d %s \"%s\" %s\"\n",
				param.ClientIP,
				param.TimeStamp.Format(time.RFC3339),
				param.Method,
				param.Path,
				param.Request.Proto,
				param.StatusCode,
				param.Latency,
				param.Request.UserAgent(),
				param.ErrorMessage,
			)
		},
	}))

	r.Use(gin.Recovery())

	// CORS middleware for API endpoints
	r.Use(func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, X-API-Key, Authorization")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	})

	// Routes
	setupRoutes(r, handler, apiAccessKey)

	return r
}

// setupRoutes configures all the application routes
func setupRoutes(r *gin.Engine, handler *Handler, apiAccessKey string) {
	// Health endpoint
	r.GET("/health", handler.GetHealth)

	// API endpoints (conditionally enabled with authentication)
	if apiAccessKey != "" {
		api := r.Group("/api")
		api.Use(authMiddleware(apiAccessKey))
		{
			api.GET("/accounts", handler.APIListAccounts)
			api.GET("/accounts/:id", handler.APIGetAccount)
			api.GET("/accounts/:id/articles", handler.APIListArticles)
			api.GET("/accounts/:id/extract", handler.APIExtractContent)
			api.POST("/accounts/:id/refresh", handler.APIRefreshAccount)
			api.POST("/accounts/:id/validate", handler.APIValidateCredentials)
			api.POST("/accounts/:id/feeds", handler.APIAddFeed)
			api.POST("/accounts/:id/feeds/delete", handler.APIDeleteFeed)
			api.POST("/accounts/:id/feeds/rename", handler.APIRenameFeed)
			api.POST("/accounts/:id/feeds/move", handler.APIMoveFeed)
			api.POST("/accounts/:id/statuses", handler.APISetStatuses)
			api.GET("/progress", handler.APIGetProgress)
			api.GET("/progress/ws", handler.hub.ServeWS)
		}
		log.Printf("API endpoints enabled with authentication")
	} else {
		log.Printf("API endpoints disabled (API_ACCESS_KEY not set)")
	}

	// Root endpoint with basic information
	r.GET("/", func(c *gin.Context) {
		endpoints := map[string]string{
			"health": "/health",
		}

		// Add API endpoints if authentication is enabled
		if apiAccessKey != "" {
			endpoints["accounts"] = "/api/accounts (requires X-API-Key header)"
			endpoints["account"] = "/api/accounts/<id> (requires X-API-Key header)"
			endpoints["articles"] = "/api/accounts/<id>/articles (requires X-API-Key header)"
			endpoints["refresh"] = "/api/accounts/<id>/refresh (POST, requires X-API-Key header)"
			endpoints["statuses"] = "/api/accounts/<id>/statuses (POST, requires X-API-Key header)"
			endpoints["progress"] = "/api/progress (requires X-API-Key header)"
		}

		c.JSON(200, gin.H{
			"service":     "FeedSync",
			"description": "Multi-provider feed-reading account synchronization service",
			"endpoints":   endpoints,
			"api_status": map[string]interface{}{
				"enabled":       apiAccessKey != "",
				"auth_required": apiAccessKey != "",
				"header":        "X-API-Key",
			},
		})
	})

	// Favicon handler (return 204 to avoid 404s)
	r.GET("/favicon.ico", func(c *gin.Context) {
		c.Status(204)
	})
}

// authMiddleware creates authentication middleware for API endpoints
func authMiddleware(apiAccessKey string) gin.HandlerFunc {
	return func(c *gin.Context) {
		// Get API key from X-API-Key header
		providedKey := c.GetHeader("X-API-Key")

		// Also check Authorization header with Bearer prefix
		if providedKey == "" {
			authHeader := c.GetHeader("Authorization")
			if strings.HasPrefix(authHeader, "Bearer ") {
				providedKey = strings.TrimPrefix(authHeader, "Bearer ")
			}
		}

		// Websocket clients can't always set headers; allow the key as a
		// query parameter for the progress stream.
		if providedKey == "" {
			providedKey = c.Query("api_key")
		}

		// Check if API key is provided and matches
		if providedKey == "" {
			c.JSON(http.StatusUnauthorized, gin.H{
				"error":   "API key required",
				"message": "Provide API key in X-API-Key header or Authorization: Bearer <key>",
			})
			c.Abort()
			return
		}

		if providedKey != apiAccessKey {
			c.JSON(http.StatusUnauthorized, gin.H{
				"error":   "Invalid API key",
				"message": "The provided API key is not valid",
			})
			c.Abort()
			return
		}

		// Continue to next middleware/handler
		c.Next()
	}
}
