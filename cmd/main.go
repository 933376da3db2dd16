package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"consultorio/api/handler"
	apiMiddleware "consultorio/api/middleware"
	"consultorio/api/routes"
	"consultorio/config"
	"consultorio/internal/repository"
	"consultorio/internal/service"
	"consultorio/internal/utils"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	echoMiddleware "github.com/labstack/echo/v4/middleware"
	"github.com/sirupsen/logrus"
)

func main() {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	logger.SetOutput(os.Stdout)

	cfg, err := config.Load()
	if err != nil {
		logger.WithError(err).Fatal("load config")
	}
	logger.SetLevel(cfg.LogLevel)

	db, err := config.ConnectionDb(cfg.DatabaseURL, logger)
	if err != nil {
		logger.WithError(err).Fatal("database")
	}
	if cfg.DBAutoMigrate {
		if err := config.Migrate(db); err != nil {
			logger.WithError(err).Fatal("migrate database")
		}
	}

	accessManager := utils.JWTManager{
		Secret:         cfg.JWTSecret,
		Issuer:         cfg.JWTIssuer,
		AccessTokenTTL: cfg.AccessTokenTTL,
	}
	accessIssuer := service.JWTAccessIssuer{Manager: &accessManager}
	mfaIssuer := service.MFATokenIssuerJWT{
		Secret: cfg.MFASecret,
		Issuer: cfg.JWTIssuer,
		TTL:    cfg.MFATokenTTL,
	}

	userRepo := repository.NewUserRepository(db)
	sessionRepo := repository.NewSessionRepository(db)
	resetRepo := repository.NewResetTokenRepository(db)
	mfaRepo := repository.NewMFASecretRepository(db)
	securityRepo := repository.NewSecurityLogRepository(db)

	var resetSender service.PasswordResetSender
	if cfg.ResendAPIKey != "" {
		resetSender = service.NewResendEmailSender(cfg.ResendAPIKey, cfg.EmailFrom, cfg.AppBaseURL)
	} else {
		logger.Warn("RESEND_API_KEY not set, password reset emails are disabled")
	}

	authService := service.NewAuthService(
		userRepo,
		sessionRepo,
		resetRepo,
		mfaRepo,
		securityRepo,
		resetSender,
		service.BcryptPasswordHasher{},
		accessIssuer,
		mfaIssuer,
		service.NewTOTPProvider(cfg.JWTIssuer),
		service.RealClock{},
		logger.WithField("component", "auth"),
		service.AuthConfig{
			RefreshTokenTTL:    cfg.RefreshTokenTTL,
			InactivityTTL:      cfg.InactivityTTL,
			MinRefreshInterval: cfg.MinRefreshInterval,
			ResetTokenTTL:      cfg.ResetTokenTTL,
		},
	)

	authHandler := handler.NewAuthHandler(authService, validator.New(), logger)
	authHandler.CookieDomain = cfg.CookieDomain
	authHandler.SecureCookies = cfg.SecureCookies

	app := echo.New()
	app.HideBanner = true
	app.HidePort = true
	// Bound session IPs and rate-limit keys come from the socket peer, never
	// from client headers.
	app.IPExtractor = echo.ExtractIPDirect()
	app.Use(echoMiddleware.Recover())
	app.Use(echoMiddleware.RequestLoggerWithConfig(echoMiddleware.RequestLoggerConfig{
		LogStatus:   true,
		LogMethod:   true,
		LogURI:      true,
		LogRemoteIP: true,
		LogLatency:  true,
		LogError:    true,
		HandleError: true,
		LogValuesFunc: func(c echo.Context, v echoMiddleware.RequestLoggerValues) error {
			entry := logger.WithFields(logrus.Fields{
				"status":  v.Status,
				"method":  v.Method,
				"uri":     v.URI,
				"ip":      v.RemoteIP,
				"latency": v.Latency.String(),
			})
			if v.Error != nil {
				entry.WithError(v.Error).Error("request")
				return nil
			}
			entry.Info("request")
			return nil
		},
	}))

	authMiddleware := apiMiddleware.AuthMiddleware{JWT: &accessManager, Sessions: sessionRepo}
	router := routes.NewRouter(app, authHandler, authMiddleware)
	router.RegisterRoutes()

	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.WithField("addr", cfg.HTTPAddr).Info("server started")
		if err := app.StartServer(server); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Fatal("server stopped")
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := app.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("shutdown")
	}
	logger.Info("server stopped")
}
