package server

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"ramblin/backend/internal/config"
)

type App struct {
	cfg      config.Config
	ai       modelCaller
	resolver *redirectResolver
}

func New(cfg config.Config) *App {
	return &App{
		cfg:      cfg,
		ai:       newOpenAIChatClient(cfg),
		resolver: newRedirectResolver(cfg),
	}
}

func (a *App) Router() *gin.Engine {
	router := gin.New()
	router.Use(gin.Logger(), gin.Recovery())
	router.Use(requestIDMiddleware())
	router.Use(cors.New(cors.Config{
		AllowOrigins:     a.cfg.CORSAllowOrigins,
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Authorization", "Content-Type"},
		ExposeHeaders:    []string{"Content-Length", "X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	router.GET("/health", a.health)

	api := router.Group(a.cfg.APIPrefix)
	if a.cfg.AuthEnabled() {
		api.Use(a.authMiddleware())
	}

	api.POST("/statements/analyze", a.analyzeStatement)
	api.POST("/chat", a.chatTurnHandler)
	api.POST("/urls/check", a.checkURL)
	api.POST("/urls/resolve", a.resolveURL)
	api.POST("/investments/recommendations", a.investmentRecommendations)
	api.POST("/pdf/extract", a.extractPDF)

	return router
}

func (a *App) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"service": "ramblin-api",
	})
}

func requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := strings.TrimSpace(c.GetHeader("X-Request-ID"))
		if id == "" {
			id = uuid.NewString()
		}
		c.Set("requestID", id)
		c.Writer.Header().Set("X-Request-ID", id)
		c.Next()
	}
}

func requestIDFromContext(c *gin.Context) string {
	raw, ok := c.Get("requestID")
	if !ok {
		return ""
	}
	id, _ := raw.(string)
	return id
}

func (a *App) authMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if !strings.HasPrefix(strings.ToLower(authHeader), "bearer ") {
			writeError(c, http.StatusUnauthorized, "Bearer token required")
			return
		}
		tokenString := strings.TrimSpace(authHeader[len("Bearer "):])
		if tokenString == "" {
			writeError(c, http.StatusUnauthorized, "Bearer token required")
			return
		}

		token, err := jwt.Parse(tokenString, func(token *jwt.Token) (any, error) {
			if token.Method == nil || token.Method.Alg() != a.cfg.JWTAlgorithm {
				return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
			}
			return []byte(a.cfg.JWTSecret), nil
		})
		if err != nil || !token.Valid {
			writeError(c, http.StatusUnauthorized, "Invalid bearer token")
			return
		}
		c.Next()
	}
}

func writeError(c *gin.Context, status int, detail string) {
	c.AbortWithStatusJSON(status, gin.H{"detail": detail})
}

// writeModelError maps a pipeline failure onto the one user-safe message
// for its kind. Upstream error text never passes through, with one
// exception: the model's own rejection reason for invalid input, which is
// surfaced verbatim.
func writeModelError(c *gin.Context, err error) {
	kind, ok := errorKind(err)
	if !ok {
		writeError(c, http.StatusInternalServerError, "Something went wrong. Please try again.")
		return
	}

	switch kind {
	case KindInvalidUserInput:
		writeError(c, http.StatusBadRequest, userMessageFor(err))
	case KindSchemaMismatch:
		if reason := rejectionReason(err); reason != "" {
			writeError(c, http.StatusBadRequest, "Invalid bank statement: "+reason)
			return
		}
		writeError(c, http.StatusInternalServerError, userMessageFor(err))
	default:
		writeError(c, http.StatusInternalServerError, userMessageFor(err))
	}
}

func userMessageFor(err error) string {
	kind, _ := errorKind(err)
	switch kind {
	case KindUpstreamUnavailable, KindEmptyResponse:
		return "The analysis service is unavailable right now. Please try again later."
	case KindUnparsableContent:
		return "Could not understand the analysis results. Please try again."
	case KindSchemaMismatch:
		return "The analysis results were incomplete. Please try again."
	case KindInvalidUserInput:
		var me *modelError
		if errors.As(err, &me) && me.Detail != "" {
			return me.Detail
		}
		return "Invalid request."
	}
	return "Something went wrong. Please try again."
}

func mustJSON(c *gin.Context, payload any) bool {
	if err := c.ShouldBindJSON(payload); err != nil {
		writeError(c, http.StatusBadRequest, "Invalid request payload")
		return false
	}
	return true
}
