package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/jrsteele09/go-resource-auth/auth/attempts"
	"github.com/jrsteele09/go-resource-auth/identity"
	"github.com/jrsteele09/go-resource-auth/internal/config"
	"github.com/jrsteele09/go-resource-auth/resource"
	"github.com/jrsteele09/go-resource-auth/server"
	"github.com/jrsteele09/go-resource-auth/token"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const attemptCleanupInterval = time.Minute

// buildHandler assembles the server from configuration. cleanup releases the
// attempt store and stops background work.
func buildHandler(ctx context.Context, c config.Config) (http.Handler, func(), error) {
	signer, err := token.NewSigner(token.SignerSettings{
		Algorithm:      c.GetSigningAlgorithm(),
		Secret:         c.GetSigningSecret(),
		PrivateKeyFile: c.GetPrivateKeyFile(),
		KeyID:          c.GetKeyID(),
		Issuer:         c.GetIssuer(),
	})
	if err != nil {
		return nil, nil, err
	}

	verifier, err := identity.NewOIDCVerifier(c.GetIdentityIssuer(), c.GetIdentityClientID(),
		identity.WithNamespace(c.GetIdentityNamespace()))
	if err != nil {
		return nil, nil, err
	}

	ctx, cancel := context.WithCancel(ctx)
	repo, closeRepo, err := newAttemptRepo(ctx, c)
	if err != nil {
		cancel()
		return nil, nil, err
	}
	cleanup := func() {
		cancel()
		closeRepo()
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	deps := server.Dependencies{
		Verifier: verifier,
		Signer:   signer,
		Attempts: repo,
		Registry: registry,
	}
	if upstream := c.GetProtectedAPIURL(); upstream != "" {
		client := &http.Client{
			Timeout:   30 * time.Second,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		}
		caller, err := resource.NewUpstreamCaller(upstream, client)
		if err != nil {
			cleanup()
			return nil, nil, err
		}
		deps.ResourceCaller = caller
		log.Info().Str("upstream", upstream).Msg("Proxying protected routes")
	}

	srv, err := server.New(c, deps)
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	return srv, cleanup, nil
}

func newAttemptRepo(ctx context.Context, c config.Config) (attempts.Repo, func(), error) {
	if addr := c.GetRedisAddr(); addr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: c.GetRedisPassword(),
			DB:       c.GetRedisDB(),
		})
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := client.Ping(pingCtx).Err(); err != nil {
			_ = client.Close()
			return nil, nil, fmt.Errorf("connect to redis at %s: %w", addr, err)
		}
		log.Info().Str("addr", addr).Msg("Using redis attempt store")
		return attempts.NewRedisRepo(client, c.GetAttemptTTL()), func() { _ = client.Close() }, nil
	}

	repo := attempts.NewInMemoryRepo(c.GetAttemptTTL())
	go repo.RunCleanup(ctx, attemptCleanupInterval)
	log.Warn().Msg("Using in-memory attempt store; latches are not shared between replicas")
	return repo, func() {}, nil
}
