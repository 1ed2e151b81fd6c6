// Package app arma el servicio completo a partir de la configuración:
// vault, cache, challenge store, managers de factor, resolver y handler HTTP.
package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	rdb "github.com/redis/go-redis/v9"

	"github.com/dropDatabas3/secondjohn/internal/cache"
	"github.com/dropDatabas3/secondjohn/internal/challenge"
	"github.com/dropDatabas3/secondjohn/internal/config"
	"github.com/dropDatabas3/secondjohn/internal/dispatch"
	"github.com/dropDatabas3/secondjohn/internal/factor/credential"
	"github.com/dropDatabas3/secondjohn/internal/factor/sidechannel"
	"github.com/dropDatabas3/secondjohn/internal/factor/timecode"
	authctrl "github.com/dropDatabas3/secondjohn/internal/http/controllers/auth"
	healthctrl "github.com/dropDatabas3/secondjohn/internal/http/controllers/health"
	"github.com/dropDatabas3/secondjohn/internal/http/router"
	"github.com/dropDatabas3/secondjohn/internal/lookup"
	"github.com/dropDatabas3/secondjohn/internal/metrics"
	"github.com/dropDatabas3/secondjohn/internal/observability/logger"
	"github.com/dropDatabas3/secondjohn/internal/rate"
	"github.com/dropDatabas3/secondjohn/internal/resolver"
	"github.com/dropDatabas3/secondjohn/internal/security/secretbox"
	"github.com/dropDatabas3/secondjohn/internal/session"
	"github.com/dropDatabas3/secondjohn/internal/store"
	"github.com/dropDatabas3/secondjohn/internal/trust"
)

// Version se fija en build time via -ldflags.
var Version = "dev"

// App es el servicio armado.
type App struct {
	Handler    http.Handler
	Store      store.Store
	Cache      cache.Client
	Challenges challenge.Store
	Resolver   *resolver.Resolver

	sweepInterval time.Duration
	redis         *rdb.Client
}

// Build construye y cablea todo el servicio.
func Build(ctx context.Context, cfg *config.Config) (*App, error) {
	// vault
	st, err := store.New(ctx, store.Config{
		Driver:  cfg.Storage.Driver,
		DSN:     cfg.Storage.DSN,
		Migrate: cfg.Storage.Migrate,
	})
	if err != nil {
		return nil, err
	}

	// redis compartido entre cache, challenges y rate (si aplica)
	var redisClient *rdb.Client
	if cfg.Cache.Kind == "redis" || cfg.Challenge.Backend == "redis" {
		redisClient = rdb.NewClient(&rdb.Options{
			Addr: cfg.Cache.Redis.Addr,
			DB:   cfg.Cache.Redis.DB,
		})
	}

	var cacheClient cache.Client
	if cfg.Cache.Kind == "redis" {
		cacheClient = cache.NewRedisFromClient(redisClient, cfg.Cache.Redis.Prefix)
	} else {
		cacheClient = cache.NewMemory(cfg.Cache.Redis.Prefix)
	}

	var challenges challenge.Store
	if cfg.Challenge.Backend == "redis" {
		challenges = challenge.NewRedis(redisClient, cfg.Cache.Redis.Prefix+"challenge:")
	} else {
		challenges = challenge.NewMemory()
	}

	// sesión: claves Ed25519 persistidas en disco
	keys, err := session.LoadKeypair(cfg.Session.KeyPath)
	if err != nil {
		return nil, fmt.Errorf("app: session keys: %w (genere con `secondjohn keygen`)", err)
	}
	issuer := session.NewIssuer(cfg.Session.Issuer, cfg.Session.Audience, keys, cfg.Session.TTL)

	// secretos TOTP cifrados at-rest
	box, err := secretbox.FromEnv("timecode-secret")
	if err != nil {
		return nil, err
	}

	// lookup contra el IdP externo
	var idp resolver.Lookup
	if cfg.Lookup.BaseURL != "" {
		idp = lookup.NewHTTPClient(lookup.Config{
			BaseURL: cfg.Lookup.BaseURL,
			APIKey:  cfg.Lookup.APIKey,
			Timeout: cfg.Lookup.Timeout,
		})
	} else {
		logger.L().Warn("lookup.base_url vacío: usando directorio estático (solo dev)")
		idp = lookup.NewStatic(cfg.Lookup.Static)
	}

	// despacho de códigos OTP
	registry := dispatch.NewRegistry()
	if cfg.SMTP.Host != "" {
		smtp := dispatch.NewSMTPSender(dispatch.SMTPConfig{
			Host:               cfg.SMTP.Host,
			Port:               cfg.SMTP.Port,
			From:               cfg.SMTP.From,
			Username:           cfg.SMTP.Username,
			Password:           cfg.SMTP.Password,
			TLSMode:            cfg.SMTP.TLS,
			InsecureSkipVerify: cfg.SMTP.InsecureSkipVerify,
		})
		registry.Register(dispatch.ChannelMail, dispatch.WithRetry(smtp, 0))
	} else {
		logger.L().Warn("smtp.host vacío: códigos por mail van al log (solo dev)")
		registry.Register(dispatch.ChannelMail, dispatch.NewLogSender())
	}
	registry.Register(dispatch.ChannelMessage, dispatch.NewLogSender())

	// managers de factor
	creds, err := credential.New(credential.Config{
		RPDisplayName: cfg.WebAuthn.RPDisplayName,
		RPID:          cfg.WebAuthn.RPID,
		RPOrigins:     cfg.WebAuthn.RPOrigins,
		CeremonyTTL:   cfg.WebAuthn.CeremonyTTL,
	}, challenges, st.Identities(), st.Secrets())
	if err != nil {
		return nil, fmt.Errorf("app: webauthn: %w", err)
	}

	timecodes := timecode.New(timecode.Config{
		Issuer:      cfg.Timecode.Issuer,
		EnrollTTL:   cfg.Timecode.EnrollTTL,
		WindowSteps: cfg.Timecode.WindowSteps,
	}, challenges, st.Identities(), st.Secrets(), box)

	sidechannels := sidechannel.New(sidechannel.Config{
		CodeTTL:        cfg.Sidechannel.CodeTTL,
		Cooldown:       cfg.Sidechannel.Cooldown,
		DebugEchoCodes: cfg.Sidechannel.DebugEchoCodes,
	}, challenges, cacheClient, resolver.NewDirectory(idp), registry)

	trustReg := trust.NewRegistry(st.Trust(), cfg.Trust.TTL)

	res := resolver.New(resolver.Config{
		OnLookupFailure: cfg.Resolver.OnLookupFailure,
		LookupCacheTTL:  cfg.Resolver.LookupCacheTTL,
	}, idp, st.Identities(), trustReg, challenges, creds, timecodes, sidechannels, issuer, cacheClient)

	// rate limiters
	var globalLim, verifyLim rate.Limiter
	if cfg.Rate.Enabled {
		if redisClient != nil {
			globalLim = rate.NewRedisLimiter(redisClient, "rate:global", cfg.Rate.Global.Limit, cfg.Rate.Global.Window)
			verifyLim = rate.NewRedisLimiter(redisClient, "rate:verify", cfg.Rate.Verify.Limit, cfg.Rate.Verify.Window)
		} else {
			globalLim = rate.NewMemoryLimiter(cfg.Rate.Global.Limit, cfg.Rate.Global.Window)
			verifyLim = rate.NewMemoryLimiter(cfg.Rate.Verify.Limit, cfg.Rate.Verify.Window)
		}
	}

	if err := metrics.Register(nil); err != nil {
		return nil, fmt.Errorf("app: metrics: %w", err)
	}

	health := healthctrl.NewHealthController(map[string]healthctrl.Pinger{
		"vault": st,
		"cache": cacheClient,
	}, keys.KID, Version)

	handler := router.New(router.Deps{
		Auth:              authctrl.NewControllers(res),
		Health:            health,
		GlobalLimiter:     globalLim,
		VerifyLimiter:     verifyLim,
		TrustProxyHeaders: cfg.Server.TrustProxyHeaders,
	})

	return &App{
		Handler:       handler,
		Store:         st,
		Cache:         cacheClient,
		Challenges:    challenges,
		Resolver:      res,
		sweepInterval: cfg.Challenge.SweepInterval,
		redis:         redisClient,
	}, nil
}

// RunSweeper barre challenges vencidos hasta que el contexto muera.
// No-op si el backend expira solo (Redis).
func (a *App) RunSweeper(ctx context.Context) {
	sw, ok := a.Challenges.(challenge.Sweeper)
	if !ok {
		<-ctx.Done()
		return
	}

	log := logger.L().With(logger.Component("sweeper"))
	t := time.NewTicker(a.sweepInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			removed, err := sw.Sweep(ctx)
			if err != nil {
				log.Warn("barrido falló", logger.Err(err))
				continue
			}
			if removed > 0 {
				metrics.ChallengesSwept.Add(float64(removed))
				log.Debug("challenges vencidos removidos", logger.Count(removed))
			}
		}
	}
}

// Close libera conexiones en orden inverso al armado.
func (a *App) Close() {
	_ = a.Cache.Close()
	if a.redis != nil {
		_ = a.redis.Close()
	}
	a.Store.Close()
}
