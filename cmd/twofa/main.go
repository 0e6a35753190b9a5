package main

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/ilyakaznacheev/cleanenv"
	"github.com/jinzhu/copier"
	"github.com/tendant/chi-demo/app"
	dbutils "github.com/tendant/db-utils/db"
	"github.com/tendant/simple-2fa/pkg/clock"
	"github.com/tendant/simple-2fa/pkg/ratelimit"
	"github.com/tendant/simple-2fa/pkg/risk"
	"github.com/tendant/simple-2fa/pkg/twofa"
)

type TwofaDbConfig struct {
	Host     string `env:"TWOFA_PG_HOST" env-default:"localhost"`
	Port     uint16 `env:"TWOFA_PG_PORT" env-default:"5432"`
	Database string `env:"TWOFA_PG_DATABASE" env-default:"twofa_db"`
	User     string `env:"TWOFA_PG_USER" env-default:"twofa"`
	Password string `env:"TWOFA_PG_PASSWORD" env-default:"pwd"`
}

type TwofaConfig struct {
	Enabled         bool   `env:"TWOFA_ENABLED" env-default:"true"`
	Issuer          string `env:"TWOFA_ISSUER" env-default:"simple-2fa"`
	PersistenceType string `env:"TWOFA_PERSISTENCE_TYPE" env-default:"postgres"`
	DataDir         string `env:"TWOFA_DATA_DIR" env-default:"./data/twofa"`
	RecoverySecret  string `env:"TWOFA_RECOVERY_SECRET" env-default:"very-secure-recovery-secret"`
}

type RateLimitConfig struct {
	Threshold     int           `env:"RATE_LIMIT_THRESHOLD" env-default:"5"`
	Window        time.Duration `env:"RATE_LIMIT_WINDOW" env-default:"15m"`
	IdleTTL       time.Duration `env:"RATE_LIMIT_IDLE_TTL" env-default:"1h"`
	HTTPThreshold int           `env:"RATE_LIMIT_HTTP_THRESHOLD" env-default:"30"`
}

type Config struct {
	TwofaDbConfig   TwofaDbConfig
	TwofaConfig     TwofaConfig
	RateLimitConfig RateLimitConfig
	AppConfig       app.AppConfig
}

func main() {

	config := Config{}
	cleanenv.ReadEnv(&config)

	server := app.DefaultApp()

	app.RoutesHealthz(server.R)
	app.RoutesHealthzReady(server.R)

	service := buildService(config)

	limiter := ratelimit.NewSlidingWindowLimiter(
		config.RateLimitConfig.HTTPThreshold,
		config.RateLimitConfig.Window,
		ratelimit.WithIdleTTL(config.RateLimitConfig.IdleTTL),
	)
	handle := twofa.NewHandler(service)

	server.R.Group(func(r chi.Router) {
		r.Use(ratelimit.NewMiddleware(limiter, "http").Handler)
		handle.RegisterRoutes(r)
	})

	server.Run()
}

func buildService(config Config) twofa.TwoFactorService {
	if !config.TwofaConfig.Enabled {
		slog.Info("Two-factor authentication disabled, using no-op service")
		return twofa.NewNoOpTwoFactorService()
	}

	repoConfig := twofa.RepositoryConfig{
		DataDir: config.TwofaConfig.DataDir,
	}

	if config.TwofaConfig.PersistenceType == "postgres" {
		dbConfig := dbutils.DbConfig{}
		copier.Copy(&dbConfig, &config.TwofaDbConfig)
		pool, err := dbutils.NewDbPool(context.Background(), dbConfig)
		if err != nil {
			slog.Error("Failed creating dbpool", "db", dbConfig.Database, "host", dbConfig.Host, "port", dbConfig.Port, "user", dbConfig.User)
			os.Exit(-1)
		}
		repoConfig.DB = pool
	}

	repository, err := twofa.NewTwoFARepository(config.TwofaConfig.PersistenceType, repoConfig)
	if err != nil {
		slog.Error("Failed creating 2FA repository", "persistenceType", config.TwofaConfig.PersistenceType, "err", err)
		os.Exit(-1)
	}

	limiter := ratelimit.NewSlidingWindowLimiter(
		config.RateLimitConfig.Threshold,
		config.RateLimitConfig.Window,
		ratelimit.WithIdleTTL(config.RateLimitConfig.IdleTTL),
	)

	attributeSource := risk.NewInMemAttributeSource()
	recovery := twofa.NewRecoveryTokenVerifier(
		[]byte(config.TwofaConfig.RecoverySecret),
		clock.NewSystemClock(),
	)

	return twofa.NewTwoFaService(
		repository,
		twofa.WithIssuer(config.TwofaConfig.Issuer),
		twofa.WithRateLimiter(limiter),
		twofa.WithRiskEngine(risk.NewEngine(attributeSource)),
		twofa.WithRecoveryTokenVerifier(recovery),
	)
}
