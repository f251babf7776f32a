package server

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v4"

	"github.com/azaliaz/library/library-service/internal/config"
	"github.com/azaliaz/library/library-service/internal/domain/models"
	"github.com/azaliaz/library/library-service/internal/logger"
)

const shutdownTimeout = 10 * time.Second

var ErrInvalidToken = errors.New("invalid token")

type Claims struct {
	jwt.RegisteredClaims
	UserID string
	Role   string
}

//go:generate mockgen -source=server.go -destination=./mocks/service_mock.go -package=mocks
type Library interface {
	CreateBook(ctx context.Context, in models.BookPatch) (models.Book, error)
	ListBooks(ctx context.Context, q models.BookQuery) ([]models.Book, error)
	GetBook(ctx context.Context, bid string) (models.Book, error)
	UpdateBook(ctx context.Context, bid string, patch models.BookPatch) (models.Book, error)
	DeleteBook(ctx context.Context, bid string) error
	Borrow(ctx context.Context, bookID string, quantity int, dueDate time.Time) (models.Borrow, error)
	Summary(ctx context.Context) ([]models.BorrowSummary, error)
	Ping(ctx context.Context) error
}

type Server struct {
	serv    *http.Server
	cfg     config.Config
	limiter *ipLimiter
	Library Library
}

func New(cfg config.Config, lib Library) *Server {
	server := http.Server{
		Addr:              cfg.Addr,
		ReadHeaderTimeout: 5 * time.Second,
	}
	s := &Server{
		serv:    &server,
		cfg:     cfg,
		Library: lib,
	}
	if cfg.RateLimit > 0 {
		s.limiter = newIPLimiter(cfg.RateLimit, cfg.RateBurst)
	}
	s.serv.Handler = s.Router()
	return s
}

func (s *Server) Router() *gin.Engine {
	router := gin.New()
	router.Use(requestID(), requestLogger(), gin.CustomRecovery(recoverPanic))
	router.Use(cors.New(cors.Config{
		AllowOrigins:  []string{"*"},
		AllowMethods:  []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Authorization", headerRequestID},
		ExposeHeaders: []string{"Content-Length", headerRequestID},
		MaxAge:        12 * time.Hour,
	}))
	if s.limiter != nil {
		router.Use(s.limiter.middleware())
	}

	router.GET("/", func(ctx *gin.Context) { ctx.String(http.StatusOK, "Hello from library service") })
	router.GET("/health", s.Health)

	guard := s.writeGuard()
	books := router.Group("/api/books")
	{
		books.POST("", guard, s.CreateBook)
		books.GET("", s.ListBooks)
		books.GET("/:bookId", s.GetBook)
		books.PUT("/:bookId", guard, s.UpdateBook)
		books.DELETE("/:bookId", guard, s.DeleteBook)
	}
	borrow := router.Group("/api/borrow")
	{
		borrow.POST("", s.BorrowBook)
		borrow.GET("", s.BorrowSummary)
	}
	router.NoRoute(s.NotFound)
	return router
}

func (s *Server) Run(ctx context.Context) error {
	log := logger.Get()
	if s.limiter != nil {
		go s.limiter.sweep(ctx)
	}
	log.Info().Str("host", s.serv.Addr).Msg("server started")
	if err := s.serv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) ShutdownServer() error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return s.serv.Shutdown(ctx)
}

// writeGuard protects book writes with an admin token once a secret is configured.
func (s *Server) writeGuard() gin.HandlerFunc {
	if s.cfg.JWTSecret == "" {
		return func(ctx *gin.Context) { ctx.Next() }
	}
	return s.JWTAuthRoleMiddleware("admin")
}

func (s *Server) JWTAuthRoleMiddleware(roles ...string) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		log := logger.Get()
		tokenHeader := ctx.GetHeader("Authorization")
		if tokenHeader == "" {
			abortWithError(ctx, http.StatusUnauthorized, "Unauthorized", "Authorization header is required")
			return
		}

		tokenParts := strings.Split(tokenHeader, " ")
		if len(tokenParts) != 2 || tokenParts[0] != "Bearer" {
			abortWithError(ctx, http.StatusUnauthorized, "Unauthorized", "Invalid token format")
			return
		}

		uid, role, err := s.validToken(tokenParts[1])
		if err != nil {
			abortWithError(ctx, http.StatusUnauthorized, "Unauthorized", "Invalid token")
			return
		}

		if len(roles) > 0 {
			isAllowed := false
			for _, allowedRole := range roles {
				if role == allowedRole {
					isAllowed = true
					break
				}
			}
			if !isAllowed {
				log.Warn().Str("uid", uid).Str("role", role).Msg("access denied")
				abortWithError(ctx, http.StatusForbidden, "Forbidden", "Access denied")
				return
			}
		}
		ctx.Set("uid", uid)
		ctx.Set("role", role)
		ctx.Next()
	}
}

func (s *Server) validToken(tokenStr string) (string, string, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return []byte(s.cfg.JWTSecret), nil
	})
	if err != nil || !token.Valid {
		return "", "", ErrInvalidToken
	}
	return claims.UserID, claims.Role, nil
}
