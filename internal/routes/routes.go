package routes

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/lumenbank/onboarding/internal/auth"
	"github.com/lumenbank/onboarding/internal/config"
	"github.com/lumenbank/onboarding/internal/customer"
	"github.com/lumenbank/onboarding/internal/documents"
	"github.com/lumenbank/onboarding/internal/housekeeping"
	"github.com/lumenbank/onboarding/internal/identity"
	"github.com/lumenbank/onboarding/internal/ledger"
	"github.com/lumenbank/onboarding/internal/logging"
	"github.com/lumenbank/onboarding/internal/metrics"
	"github.com/lumenbank/onboarding/internal/middleware"
	"github.com/lumenbank/onboarding/internal/notification"
	"github.com/lumenbank/onboarding/internal/provisioning"
	"github.com/lumenbank/onboarding/internal/signup"
	"github.com/lumenbank/onboarding/internal/staging"
)

// Deps aggregates shared dependencies required to wire routes. DB and Cache may
// be nil in development, in which case in-memory stores are used.
type Deps struct {
	Cfg      config.Config
	DB       *pgxpool.Pool
	Cache    *redis.Client
	AMQP     notification.Channel
	S3       documents.ObjectPutter
	Registry *prometheus.Registry
	Logger   *slog.Logger
}

// Services exposes the long-lived components the process manages besides HTTP.
type Services struct {
	Signup *signup.Service
	// Pending is the durable staging tier the reaper purges.
	Pending housekeeping.Purger
	Metrics *metrics.Signup
}

// purgeableStore is a staging store the reaper can clean.
type purgeableStore interface {
	staging.Store
	housekeeping.Purger
}

// Setup configures middlewares and all application routes.
func Setup(app *fiber.App, d Deps) (*Services, error) {
	// Enforce DB/Redis presence outside of dev, even though config also checks.
	if !config.IsDev(d.Cfg.AppEnv) {
		if d.DB == nil {
			return nil, fmt.Errorf("database is required when APP_ENV=%s", d.Cfg.AppEnv)
		}
		if d.Cache == nil {
			return nil, fmt.Errorf("redis is required when APP_ENV=%s", d.Cfg.AppEnv)
		}
	}
	logger := logging.OrDiscard(d.Logger)
	if d.Registry == nil {
		d.Registry = prometheus.NewRegistry()
	}

	app.Use(recover.New())
	app.Use(middleware.RequestID())
	app.Use(middleware.Audit(logger))

	RegisterHealthRoutes(app, d)
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(d.Registry, promhttp.HandlerOpts{})))

	mailer, err := newMailer(d, logger)
	if err != nil {
		return nil, err
	}

	var (
		ledgerBackend ledger.Ledger
		identityRepo  identity.Repository
		profileRepo   provisioning.Repository
		pending       purgeableStore
		cached        staging.Store
		docs          documents.Store
	)
	if d.DB != nil {
		ledgerBackend = ledger.NewPostgresLedger(d.DB)
		identityRepo = identity.NewPostgresRepository(d.DB)
		profileRepo = provisioning.NewPostgresRepository(d.DB)
		pending = staging.NewPostgresStore(d.DB)
	} else {
		ledgerBackend = ledger.NewInMemory()
		identityRepo = identity.NewMemoryRepository()
		profileRepo = provisioning.NewMemoryRepository()
		pending = staging.NewMemoryStore()
	}
	if d.Cache != nil {
		cached = staging.NewRedisStore(d.Cache, d.Cfg.Signup.StagingCacheTTL)
	} else {
		cached = staging.NewMemoryStore()
	}
	if d.S3 != nil && d.Cfg.S3.Enabled() {
		docs = documents.NewS3Store(d.S3, d.Cfg.S3.Bucket)
	} else {
		docs = documents.NewMemoryStore()
	}

	signupMetrics := metrics.NewSignup(d.Registry, d.Cfg.AppEnv)

	identitySvc := identity.NewService(identityRepo, mailer, identity.Options{
		CodeTTL:        d.Cfg.Signup.CodeTTL,
		ResendCooldown: d.Cfg.Signup.CodeResendCooldown,
		MaxAttempts:    d.Cfg.Signup.CodeMaxAttempts,
	}, logger)
	provisioner := provisioning.NewService(profileRepo, ledgerBackend, docs, provisioning.Options{
		DefaultRole:        d.Cfg.Signup.DefaultRole,
		DefaultAccountType: d.Cfg.Signup.DefaultAccountType,
	}, logger)
	signupSvc := signup.NewService(
		identitySvc,
		pending,
		cached,
		provisioner,
		notification.NewDispatcher(identitySvc, mailer),
		signupMetrics,
		signup.Options{PasswordPolicy: customer.PasswordPolicy{MinLength: d.Cfg.Signup.MinPasswordLength}},
		logger,
	)
	authSvc := auth.NewService(auth.Config{
		AccessSecret:  d.Cfg.JWTSecret,
		RefreshSecret: d.Cfg.RefreshSecret,
		AccessTTL:     d.Cfg.AccessTokenTTL,
		RefreshTTL:    d.Cfg.RefreshTokenTTL,
	}, identitySvc, provisioner)

	api := app.Group("/api/v1")
	api.Get("/ping", func(c *fiber.Ctx) error {
		reqID := middleware.RequestIDFrom(c)
		return c.Status(http.StatusOK).JSON(fiber.Map{
			"status":     "ok",
			"request_id": reqID,
			"timestamp":  time.Now().UTC().Format(time.RFC3339Nano),
		})
	})

	jwtmw := middleware.JWTAuth(authSvc)
	var idempotency fiber.Handler
	if d.Cache != nil {
		idempotency = middleware.Idempotency(d.Cache, d.Cfg.IdempotencyTTL, logger)
	}

	RegisterSignupRoutes(api, signup.NewHandler(signupSvc), SignupGuards{
		Begin:       middleware.RateLimit(d.Cache, "signup", d.Cfg.SignupPerMinute, time.Minute, middleware.ByIP),
		Resend:      middleware.RateLimit(d.Cache, "resend", d.Cfg.ResendPerMinute, time.Minute, middleware.ByJSONField("identity_id")),
		Auth:        jwtmw,
		Idempotency: idempotency,
	})
	RegisterAuthRoutes(api, auth.NewHandler(identitySvc, authSvc),
		middleware.RateLimit(d.Cache, "login", d.Cfg.LoginPerMinute, time.Minute, middleware.ByJSONField("email")),
		jwtmw)

	protected := api.Group("", jwtmw)
	RegisterProfileRoutes(protected, provisioner, ledgerBackend)

	return &Services{Signup: signupSvc, Pending: pending, Metrics: signupMetrics}, nil
}

// newMailer picks the notification transport named by MAIL_DRIVER.
func newMailer(d Deps, logger *slog.Logger) (notification.Notifier, error) {
	switch d.Cfg.Mail.Driver {
	case config.MailDriverSMTP:
		return notification.NewSMTPNotifier(notification.SMTPConfig{
			Host:     d.Cfg.Mail.SMTPHost,
			Port:     d.Cfg.Mail.SMTPPort,
			Username: d.Cfg.Mail.SMTPUsername,
			Password: d.Cfg.Mail.SMTPPassword,
			From:     d.Cfg.Mail.From,
		})
	case config.MailDriverAMQP:
		if d.AMQP == nil {
			return nil, fmt.Errorf("mail driver amqp needs a broker channel")
		}
		return notification.NewAMQPNotifier(d.AMQP, d.Cfg.Mail.Exchange, d.Cfg.Mail.RoutingKey)
	default:
		return notification.NewLoggerNotifier(logger), nil
	}
}
