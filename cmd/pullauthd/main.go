// Command pullauthd serves the pull-payment authorization core over
// HTTP. Storage backends, the proof verifier, and the caller gate are
// all chosen from configuration; see pkg/config.
package main

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"golang.org/x/time/rate"

	"github.com/veilcash/pullauth/pkg/api"
	"github.com/veilcash/pullauth/pkg/audit"
	"github.com/veilcash/pullauth/pkg/auth"
	"github.com/veilcash/pullauth/pkg/authorizer"
	"github.com/veilcash/pullauth/pkg/config"
	"github.com/veilcash/pullauth/pkg/contracts"
	"github.com/veilcash/pullauth/pkg/nonce"
	"github.com/veilcash/pullauth/pkg/observability"
	"github.com/veilcash/pullauth/pkg/permit"
	"github.com/veilcash/pullauth/pkg/policy"
	"github.com/veilcash/pullauth/pkg/proofgate"
	"github.com/veilcash/pullauth/pkg/proofgate/groth16"

	_ "github.com/lib/pq"
)

func main() {
	cfg := config.Load()
	logger := newLogger(cfg.LogLevel)
	slog.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		logger.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	obs, err := observability.New(ctx, &observability.Config{
		ServiceName:  "pullauthd",
		OTLPEndpoint: os.Getenv("OTLP_ENDPOINT"),
		Enabled:      os.Getenv("OTLP_ENDPOINT") != "",
		Insecure:     os.Getenv("OTLP_INSECURE") == "true",
		BatchTimeout: 5 * time.Second,
	})
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = obs.Shutdown(shutdownCtx)
	}()

	domain, err := config.LoadDomainProfile(cfg.DomainFile)
	if err != nil {
		return err
	}
	logger.Info("signing domain loaded", "name", domain.Name, "version", domain.Version, "chain_id", domain.ChainID)

	verifier, err := groth16.NewVerifierFromFile(cfg.VerifyingKey)
	if err != nil {
		return err
	}

	ledger, closeLedger, err := buildNonceLedger(cfg, logger)
	if err != nil {
		return err
	}
	defer closeLedger()

	storage, closeStorage, err := buildPolicyStorage(cfg, logger)
	if err != nil {
		return err
	}
	defer closeStorage()
	keeper := policy.NewKeeper(storage)

	chain := audit.NewChain()
	emitter := audit.MultiEmitter{audit.NewWriterEmitter(), chain}

	core := authorizer.New(
		permit.NewVerifier(domain),
		ledger,
		keeper,
		proofgate.NewGate(verifier).WithTimeout(cfg.ProofTimeout),
		emitter,
	).WithLogger(logger)

	if cfg.RelayerAddr != "" {
		relayer, err := contracts.ParseAddress(cfg.RelayerAddr)
		if err != nil {
			return err
		}
		core.WithRelayer(relayer)
		logger.Info("relayer allow-list active", "relayer", relayer.Hex())
	}

	var validator *auth.Validator
	if cfg.JWTSecret != "" {
		validator = auth.NewValidator([]byte(cfg.JWTSecret))
	}

	server := api.NewServer(core, keeper, logger).
		WithDecisionRecorder(obs.RecordDecision).
		WithAuditChain(chain)
	handler := auth.RequestID(
		auth.Middleware(validator, api.WriteUnauthorized)(
			api.RateLimitMiddleware(api.RateLimitPolicy{
				RPS:   rate.Limit(cfg.RateRPS),
				Burst: cfg.RateBurst,
			})(server.Routes())))

	httpServer := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", httpServer.Addr)
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	case <-ctx.Done():
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return err
		}
	}
	return nil
}

func buildNonceLedger(cfg *config.Config, logger *slog.Logger) (nonce.Ledger, func(), error) {
	switch {
	case cfg.RedisAddr != "":
		l := nonce.NewRedisLedger(cfg.RedisAddr, os.Getenv("REDIS_PASSWORD"), 0)
		logger.Info("nonce ledger: redis", "addr", cfg.RedisAddr)
		return l, func() { _ = l.Close() }, nil
	case cfg.SQLitePath != "":
		l, err := nonce.OpenSQLiteLedger(cfg.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		logger.Info("nonce ledger: sqlite", "path", cfg.SQLitePath)
		return l, func() { _ = l.Close() }, nil
	default:
		logger.Warn("nonce ledger: in-memory; burned nonces do not survive restarts")
		return nonce.NewMemoryLedger(), func() {}, nil
	}
}

func buildPolicyStorage(cfg *config.Config, logger *slog.Logger) (policy.Storage, func(), error) {
	if cfg.DatabaseURL == "" {
		logger.Warn("policy storage: in-memory; policies do not survive restarts")
		return policy.NewMemoryStorage(), func() {}, nil
	}
	db, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		return nil, nil, err
	}
	logger.Info("policy storage: postgres")
	return policy.NewPostgresStorage(db), func() { _ = db.Close() }, nil
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToUpper(level) {
	case "DEBUG":
		lvl = slog.LevelDebug
	case "WARN":
		lvl = slog.LevelWarn
	case "ERROR":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
}
