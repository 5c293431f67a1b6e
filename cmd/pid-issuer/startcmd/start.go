/*
Copyright Bundesdruckerei GmbH. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package startcmd

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/alexliesenfeld/health"
	"github.com/cenkalti/backoff/v4"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"github.com/trustbloc/logutil-go/pkg/log"

	"github.com/Bundesdruckerei-GmbH/pid-issuer-sub002/internal/logfields"
	"github.com/Bundesdruckerei-GmbH/pid-issuer-sub002/pkg/observability/health/healthutil"
	"github.com/Bundesdruckerei-GmbH/pid-issuer-sub002/pkg/observability/metrics/prometheus"
	"github.com/Bundesdruckerei-GmbH/pid-issuer-sub002/pkg/observability/tracing"
	"github.com/Bundesdruckerei-GmbH/pid-issuer-sub002/pkg/restapi/v1/issuance"
	"github.com/Bundesdruckerei-GmbH/pid-issuer-sub002/pkg/service/authorization"
	"github.com/Bundesdruckerei-GmbH/pid-issuer-sub002/pkg/service/clientconfiguration"
	"github.com/Bundesdruckerei-GmbH/pid-issuer-sub002/pkg/service/credential"
	"github.com/Bundesdruckerei-GmbH/pid-issuer-sub002/pkg/service/dpop"
	"github.com/Bundesdruckerei-GmbH/pid-issuer-sub002/pkg/service/identification"
	"github.com/Bundesdruckerei-GmbH/pid-issuer-sub002/pkg/service/keyproof"
	"github.com/Bundesdruckerei-GmbH/pid-issuer-sub002/pkg/service/pinretry"
	"github.com/Bundesdruckerei-GmbH/pid-issuer-sub002/pkg/service/seedcredential"
)

var logger = log.New("pid-issuer-start")

const (
	defaultRequestURILifetime  = 5 * time.Minute
	defaultAuthCodeLifetime    = time.Minute
	defaultAccessTokenLifetime = 10 * time.Minute
	defaultCNonceLifetime      = 5 * time.Minute
	defaultDPoPNonceLifetime   = 5 * time.Minute
	defaultProofValidity       = 5 * time.Minute
	defaultProofTimeTolerance  = 30 * time.Second
	defaultMaxBatchSize        = 10
	defaultPinCounterValidity  = 90 * 24 * time.Hour

	housekeepingInterval = time.Minute

	serverReadHeaderTimeout = 5 * time.Second
)

// GetStartCmd returns the start command.
func GetStartCmd() *cobra.Command {
	startCmd := &cobra.Command{
		Use:   "start",
		Short: "Starts the pid-issuer server",
		Long:  "Starts the PID issuer authorization and issuance server",
		RunE: func(cmd *cobra.Command, args []string) error {
			params, err := getStartupParameters(cmd)
			if err != nil {
				return fmt.Errorf("get startup parameters: %w", err)
			}

			return startServer(cmd.Context(), params)
		},
	}

	createFlags(startCmd)

	return startCmd
}

func startServer(ctx context.Context, params *startupParameters) error {
	if params.logLevel != "" {
		setLogLevel(params.logLevel)
	}

	traceProvider, shutdownTracing, err := tracing.Initialize(params.tracingExporter, "pid-issuer")
	if err != nil {
		return fmt.Errorf("initialize tracing: %w", err)
	}

	defer shutdownTracing()

	stores, err := createStores(ctx, params, traceProvider)
	if err != nil {
		return fmt.Errorf("create stores: %w", err)
	}

	defer func() {
		if closeErr := stores.close(); closeErr != nil {
			logger.Warn("Failed to close stores", log.WithError(closeErr))
		}
	}()

	trustManager, err := createTrustManager(params)
	if err != nil {
		return fmt.Errorf("create trust manager: %w", err)
	}

	clients, err := clientconfiguration.New(params.clientIDs)
	if err != nil {
		return err
	}

	config := &authorization.Config{
		BaseURL:                   params.hostURLExternal,
		RequestURILifetime:        defaultRequestURILifetime,
		AuthorizationCodeLifetime: defaultAuthCodeLifetime,
		AccessTokenLifetime:       defaultAccessTokenLifetime,
		CNonceLifetime:            defaultCNonceLifetime,
		DPoPNonceLifetime:         defaultDPoPNonceLifetime,
		SessionLifetime:           params.sessionLifetime,
		ProofValidity:             defaultProofValidity,
		ProofTimeTolerance:        defaultProofTimeTolerance,
		MaxBatchSize:              defaultMaxBatchSize,
	}

	sessionManager := authorization.NewSessionManager(&authorization.SessionManagerConfig{
		SessionStore:      stores.sessions,
		SessionIDNonces:   stores.nonces,
		SessionLifetime:   params.sessionLifetime,
		SessionIDLifetime: defaultCNonceLifetime,
		Scheme:            authorization.SchemeDPoP,
	})

	signer, err := trustManager.Signer()
	if err != nil {
		return err
	}

	credentialBuilder, err := credential.NewBuilder(credential.BuilderConfig{
		Issuer:     params.hostURLExternal.String(),
		KeyID:      signer.KeyID,
		SigningKey: signer.Key,
		Validity:   params.seedValidity,
	})
	if err != nil {
		return err
	}

	deps := &authorization.FlowDeps{
		Config:         config,
		SessionManager: sessionManager,
		NonceService:   authorization.NewNonceService(defaultDPoPNonceLifetime),
		Clients:        clients,
		Identification: identification.NewProvider(&identification.ProviderConfig{
			IdentityProviderURL: params.identityProviderURL,
			CallbackURL:         params.hostURLExternal.JoinPath("identification-result").String(),
		}),
		DPoP: dpop.NewValidator(&dpop.Config{
			ProofValidity: defaultProofValidity,
			TimeTolerance: defaultProofTimeTolerance,
		}),
		Proofs: keyproof.NewService(&keyproof.Config{
			ProofValidity: defaultProofValidity,
			TimeTolerance: defaultProofTimeTolerance,
		}),
		SeedCodec: seedcredential.NewBuilder(&seedcredential.Config{
			TrustManager: trustManager,
			Validity:     params.seedValidity,
		}),
		RetryCounter: pinretry.NewService(&pinretry.Config{
			Store:       stores.counters,
			MaxAttempts: params.pinMaxAttempts,
			Validity:    defaultPinCounterValidity,
		}),
		Credentials: credentialBuilder,
		Metrics:     prometheus.GetMetrics(),
		Formats:     credentialBuilder.Formats(),
	}

	flows := map[authorization.FlowVariant]*authorization.Flow{
		authorization.FlowC:  authorization.NewCFlow(deps),
		authorization.FlowC1: authorization.NewC1Flow(deps),
		authorization.FlowB1: authorization.NewB1Flow(deps),
	}

	e := buildEchoHandler(params, stores, flows, sessionManager)

	housekeepingCtx, cancelHousekeeping := context.WithCancel(context.Background())
	defer cancelHousekeeping()

	go runHousekeeping(housekeepingCtx, stores.sweepers)

	logger.Info("Starting pid-issuer server", logfields.WithHostURL(params.hostURL))

	server := &http.Server{
		Addr:              params.hostURL,
		Handler:           e,
		ReadHeaderTimeout: serverReadHeaderTimeout,
	}

	return server.ListenAndServe()
}

func buildEchoHandler(
	params *startupParameters,
	stores *storeSet,
	flows map[authorization.FlowVariant]*authorization.Flow,
	sessionManager *authorization.SessionManager,
) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recover())

	controller := issuance.NewController(issuance.Config{
		ExternalURL: params.hostURLExternal,
		Flows:       flows,
		Results:     authorization.NewResultReceiver(sessionManager),
	})

	issuance.RegisterHandlers(e, controller)

	responseTimes := map[string]healthutil.ResponseTimeState{}

	checkerOpts := []health.CheckerOption{
		health.WithInterceptors(healthutil.ResponseTimeInterceptor(responseTimes)),
	}

	for _, check := range stores.healthChecks {
		checkerOpts = append(checkerOpts, health.WithCheck(check))
	}

	checker := health.NewChecker(checkerOpts...)

	e.GET("/healthcheck", echo.WrapHandler(health.NewHandler(checker,
		health.WithResultWriter(healthutil.NewJSONResultWriter(responseTimes)))))

	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	return e
}

type expiredDeleter interface {
	DeleteExpired(ctx context.Context) (int64, error)
}

// runHousekeeping periodically sweeps expired state out of stores without
// native TTL eviction. Sweep failures back off so a struggling store is not
// hammered.
func runHousekeeping(ctx context.Context, sweepers map[string]expiredDeleter) {
	if len(sweepers) == 0 {
		return
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = housekeepingInterval
	policy.MaxInterval = 10 * housekeepingInterval
	policy.MaxElapsedTime = 0

	for {
		interval := housekeepingInterval

		if failed := sweep(ctx, sweepers); failed {
			interval = policy.NextBackOff()
		} else {
			policy.Reset()
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(interval):
		}
	}
}

func sweep(ctx context.Context, sweepers map[string]expiredDeleter) bool {
	var failed bool

	for name, sweeper := range sweepers {
		started := time.Now()

		deleted, err := sweeper.DeleteExpired(ctx)
		if err != nil {
			logger.Warnc(ctx, "Failed to delete expired entries",
				logfields.WithStore(name), log.WithError(err))

			failed = true

			continue
		}

		if deleted > 0 {
			logger.Debugc(ctx, "Deleted expired entries",
				logfields.WithStore(name),
				logfields.WithDeleted(deleted),
				logfields.WithSweepTime(time.Since(started)))
		}
	}

	return failed
}

func setLogLevel(userLogLevel string) {
	logLevel, err := log.ParseLevel(userLogLevel)
	if err != nil {
		logger.Warn("Log level is not valid. Defaulting to info.",
			logfields.WithUserLogLevel(userLogLevel))

		logLevel = log.INFO
	}

	log.SetLevel("", logLevel)
}
