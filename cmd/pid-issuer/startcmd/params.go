/*
Copyright Bundesdruckerei GmbH. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package startcmd

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"
	cmdutils "github.com/trustbloc/cmdutil-go/pkg/utils/cmd"
)

const (
	commonEnvVarUsageText = " Alternatively, this can be set with the following environment variable: "

	hostURLFlagName  = "host-url"
	hostURLFlagUsage = "Host:Port to run the pid-issuer instance on." +
		commonEnvVarUsageText + hostURLEnvKey
	hostURLEnvKey = "PID_ISSUER_HOST_URL"

	hostURLExternalFlagName  = "host-url-external"
	hostURLExternalFlagUsage = "The public base URL wallets address the pid-issuer under." +
		" DPoP proofs are validated against it." +
		commonEnvVarUsageText + hostURLExternalEnvKey
	hostURLExternalEnvKey = "PID_ISSUER_HOST_URL_EXTERNAL"

	clientIDsFlagName  = "client-ids"
	clientIDsFlagUsage = "Comma-separated list of registered wallet client ids (UUIDs)." +
		commonEnvVarUsageText + clientIDsEnvKey
	clientIDsEnvKey = "PID_ISSUER_CLIENT_IDS"

	identityProviderURLFlagName  = "identity-provider-url"
	identityProviderURLFlagUsage = "URL of the eID identification provider to redirect users to." +
		commonEnvVarUsageText + identityProviderURLEnvKey
	identityProviderURLEnvKey = "PID_ISSUER_IDENTITY_PROVIDER_URL"

	databaseTypeFlagName  = "database-type"
	databaseTypeFlagUsage = "The type of database to use for session state. Supported options: mem, redis, mongodb." +
		commonEnvVarUsageText + databaseTypeEnvKey
	databaseTypeEnvKey = "PID_ISSUER_DATABASE_TYPE"

	databaseTypeMemOption     = "mem"
	databaseTypeRedisOption   = "redis"
	databaseTypeMongoDBOption = "mongodb"

	mongoDBURLFlagName  = "mongodb-url"
	mongoDBURLFlagUsage = "The URL of the MongoDB instance. Required when database-type is mongodb." +
		commonEnvVarUsageText + mongoDBURLEnvKey
	mongoDBURLEnvKey = "PID_ISSUER_MONGODB_URL"

	redisURLFlagName  = "redis-url"
	redisURLFlagUsage = "Comma-separated list of Redis addresses. Required when database-type is redis." +
		commonEnvVarUsageText + redisURLEnvKey
	redisURLEnvKey = "PID_ISSUER_REDIS_URL"

	redisMasterNameFlagName  = "redis-master-name"
	redisMasterNameFlagUsage = "Redis Sentinel master name." +
		commonEnvVarUsageText + redisMasterNameEnvKey
	redisMasterNameEnvKey = "PID_ISSUER_REDIS_MASTER_NAME"

	redisPasswordFlagName  = "redis-password" //nolint:gosec
	redisPasswordFlagUsage = "Redis password." +
		commonEnvVarUsageText + redisPasswordEnvKey
	redisPasswordEnvKey = "PID_ISSUER_REDIS_PASSWORD" //nolint:gosec

	signingKeyPathFlagName  = "signing-key-path"
	signingKeyPathFlagUsage = "Path to the PEM-encoded EC private key used to sign credentials and seed" +
		" credentials. A fresh ephemeral key is generated when not set." +
		commonEnvVarUsageText + signingKeyPathEnvKey
	signingKeyPathEnvKey = "PID_ISSUER_SIGNING_KEY_PATH"

	signingKeyIDFlagName  = "signing-key-id"
	signingKeyIDFlagUsage = "Key id written into the kid header of signed credentials." +
		commonEnvVarUsageText + signingKeyIDEnvKey
	signingKeyIDEnvKey = "PID_ISSUER_SIGNING_KEY_ID"

	seedEncryptionKeyPathFlagName  = "seed-encryption-key-path"
	seedEncryptionKeyPathFlagUsage = "Path to the 32-byte key (hex) that encrypts personal data inside seed" +
		" credentials. A fresh ephemeral key is generated when not set." +
		commonEnvVarUsageText + seedEncryptionKeyPathEnvKey
	seedEncryptionKeyPathEnvKey = "PID_ISSUER_SEED_ENCRYPTION_KEY_PATH"

	pinMaxAttemptsFlagName  = "pin-max-attempts"
	pinMaxAttemptsFlagUsage = "Number of failed PIN redemption attempts before the seed credential locks." +
		commonEnvVarUsageText + pinMaxAttemptsEnvKey
	pinMaxAttemptsEnvKey = "PID_ISSUER_PIN_MAX_ATTEMPTS"

	sessionLifetimeFlagName  = "session-lifetime"
	sessionLifetimeFlagUsage = "Lifetime of an authorization session, as a Go duration." +
		commonEnvVarUsageText + sessionLifetimeEnvKey
	sessionLifetimeEnvKey = "PID_ISSUER_SESSION_LIFETIME"

	seedValidityFlagName  = "seed-validity"
	seedValidityFlagUsage = "Validity of issued seed credentials and refresh tokens, as a Go duration." +
		commonEnvVarUsageText + seedValidityEnvKey
	seedValidityEnvKey = "PID_ISSUER_SEED_VALIDITY"

	tracingExporterFlagName  = "tracing-exporter"
	tracingExporterFlagUsage = "Span exporter for OpenTelemetry tracing. Supported options: JAEGER, STDOUT." +
		" Tracing is disabled when not set." +
		commonEnvVarUsageText + tracingExporterEnvKey
	tracingExporterEnvKey = "PID_ISSUER_TRACING_EXPORTER"

	logLevelFlagName  = "log-level"
	logLevelFlagUsage = "Logging level. Supported levels: PANIC, FATAL, ERROR, WARNING, INFO, DEBUG." +
		commonEnvVarUsageText + logLevelEnvKey
	logLevelEnvKey = "PID_ISSUER_LOG_LEVEL"
)

const (
	defaultPinMaxAttempts  = 5
	defaultSessionLifetime = 30 * time.Minute
	defaultSeedValidity    = 90 * 24 * time.Hour
)

type startupParameters struct {
	hostURL             string
	hostURLExternal     *url.URL
	clientIDs           []string
	identityProviderURL string

	databaseType    string
	mongoDBURL      string
	redisURLs       []string
	redisMasterName string
	redisPassword   string

	signingKeyPath        string
	signingKeyID          string
	seedEncryptionKeyPath string

	pinMaxAttempts  int
	sessionLifetime time.Duration
	seedValidity    time.Duration

	tracingExporter string
	logLevel        string
}

func getStartupParameters(cmd *cobra.Command) (*startupParameters, error) {
	hostURL, err := cmdutils.GetUserSetVarFromString(cmd, hostURLFlagName, hostURLEnvKey, false)
	if err != nil {
		return nil, err
	}

	hostURLExternalRaw, err := cmdutils.GetUserSetVarFromString(cmd, hostURLExternalFlagName,
		hostURLExternalEnvKey, false)
	if err != nil {
		return nil, err
	}

	hostURLExternal, err := url.Parse(hostURLExternalRaw)
	if err != nil || !hostURLExternal.IsAbs() {
		return nil, fmt.Errorf("%s is not a valid absolute URL", hostURLExternalFlagName)
	}

	clientIDsRaw, err := cmdutils.GetUserSetVarFromString(cmd, clientIDsFlagName, clientIDsEnvKey, false)
	if err != nil {
		return nil, err
	}

	identityProviderURL, err := cmdutils.GetUserSetVarFromString(cmd, identityProviderURLFlagName,
		identityProviderURLEnvKey, false)
	if err != nil {
		return nil, err
	}

	databaseType, err := cmdutils.GetUserSetVarFromString(cmd, databaseTypeFlagName, databaseTypeEnvKey, true)
	if err != nil {
		return nil, err
	}

	if databaseType == "" {
		databaseType = databaseTypeMemOption
	}

	mongoDBURL := cmdutils.GetUserSetOptionalVarFromString(cmd, mongoDBURLFlagName, mongoDBURLEnvKey)
	redisURL := cmdutils.GetUserSetOptionalVarFromString(cmd, redisURLFlagName, redisURLEnvKey)

	switch databaseType {
	case databaseTypeMemOption:
	case databaseTypeRedisOption:
		if redisURL == "" {
			return nil, fmt.Errorf("%s is required when %s is %s",
				redisURLFlagName, databaseTypeFlagName, databaseTypeRedisOption)
		}
	case databaseTypeMongoDBOption:
		if mongoDBURL == "" {
			return nil, fmt.Errorf("%s is required when %s is %s",
				mongoDBURLFlagName, databaseTypeFlagName, databaseTypeMongoDBOption)
		}
	default:
		return nil, fmt.Errorf("unsupported %s: %s", databaseTypeFlagName, databaseType)
	}

	pinMaxAttempts, err := getIntParameter(cmd, pinMaxAttemptsFlagName, pinMaxAttemptsEnvKey, defaultPinMaxAttempts)
	if err != nil {
		return nil, err
	}

	sessionLifetime, err := getDurationParameter(cmd, sessionLifetimeFlagName, sessionLifetimeEnvKey,
		defaultSessionLifetime)
	if err != nil {
		return nil, err
	}

	seedValidity, err := getDurationParameter(cmd, seedValidityFlagName, seedValidityEnvKey, defaultSeedValidity)
	if err != nil {
		return nil, err
	}

	return &startupParameters{
		hostURL:             hostURL,
		hostURLExternal:     hostURLExternal,
		clientIDs:           splitList(clientIDsRaw),
		identityProviderURL: identityProviderURL,

		databaseType:    databaseType,
		mongoDBURL:      mongoDBURL,
		redisURLs:       splitList(redisURL),
		redisMasterName: cmdutils.GetUserSetOptionalVarFromString(cmd, redisMasterNameFlagName, redisMasterNameEnvKey),
		redisPassword:   cmdutils.GetUserSetOptionalVarFromString(cmd, redisPasswordFlagName, redisPasswordEnvKey),

		signingKeyPath: cmdutils.GetUserSetOptionalVarFromString(cmd, signingKeyPathFlagName, signingKeyPathEnvKey),
		signingKeyID: cmdutils.GetUserSetOptionalVarFromString(cmd, signingKeyIDFlagName,
			signingKeyIDEnvKey),
		seedEncryptionKeyPath: cmdutils.GetUserSetOptionalVarFromString(cmd, seedEncryptionKeyPathFlagName,
			seedEncryptionKeyPathEnvKey),

		pinMaxAttempts:  pinMaxAttempts,
		sessionLifetime: sessionLifetime,
		seedValidity:    seedValidity,

		tracingExporter: cmdutils.GetUserSetOptionalVarFromString(cmd, tracingExporterFlagName, tracingExporterEnvKey),
		logLevel:        cmdutils.GetUserSetOptionalVarFromString(cmd, logLevelFlagName, logLevelEnvKey),
	}, nil
}

func getIntParameter(cmd *cobra.Command, flagName, envKey string, defaultValue int) (int, error) {
	raw := cmdutils.GetUserSetOptionalVarFromString(cmd, flagName, envKey)
	if raw == "" {
		return defaultValue, nil
	}

	value, err := strconv.Atoi(raw)
	if err != nil || value <= 0 {
		return 0, fmt.Errorf("%s must be a positive integer", flagName)
	}

	return value, nil
}

func getDurationParameter(
	cmd *cobra.Command,
	flagName, envKey string,
	defaultValue time.Duration,
) (time.Duration, error) {
	raw := cmdutils.GetUserSetOptionalVarFromString(cmd, flagName, envKey)
	if raw == "" {
		return defaultValue, nil
	}

	value, err := time.ParseDuration(raw)
	if err != nil || value <= 0 {
		return 0, fmt.Errorf("%s must be a positive duration", flagName)
	}

	return value, nil
}

func splitList(raw string) []string {
	var values []string

	for _, value := range strings.Split(raw, ",") {
		if value = strings.TrimSpace(value); value != "" {
			values = append(values, value)
		}
	}

	return values
}

func createFlags(startCmd *cobra.Command) {
	startCmd.Flags().StringP(hostURLFlagName, "u", "", hostURLFlagUsage)
	startCmd.Flags().StringP(hostURLExternalFlagName, "x", "", hostURLExternalFlagUsage)
	startCmd.Flags().StringP(clientIDsFlagName, "", "", clientIDsFlagUsage)
	startCmd.Flags().StringP(identityProviderURLFlagName, "", "", identityProviderURLFlagUsage)
	startCmd.Flags().StringP(databaseTypeFlagName, "t", "", databaseTypeFlagUsage)
	startCmd.Flags().StringP(mongoDBURLFlagName, "", "", mongoDBURLFlagUsage)
	startCmd.Flags().StringP(redisURLFlagName, "", "", redisURLFlagUsage)
	startCmd.Flags().StringP(redisMasterNameFlagName, "", "", redisMasterNameFlagUsage)
	startCmd.Flags().StringP(redisPasswordFlagName, "", "", redisPasswordFlagUsage)
	startCmd.Flags().StringP(signingKeyPathFlagName, "", "", signingKeyPathFlagUsage)
	startCmd.Flags().StringP(signingKeyIDFlagName, "", "", signingKeyIDFlagUsage)
	startCmd.Flags().StringP(seedEncryptionKeyPathFlagName, "", "", seedEncryptionKeyPathFlagUsage)
	startCmd.Flags().StringP(pinMaxAttemptsFlagName, "", "", pinMaxAttemptsFlagUsage)
	startCmd.Flags().StringP(sessionLifetimeFlagName, "", "", sessionLifetimeFlagUsage)
	startCmd.Flags().StringP(seedValidityFlagName, "", "", seedValidityFlagUsage)
	startCmd.Flags().StringP(tracingExporterFlagName, "", "", tracingExporterFlagUsage)
	startCmd.Flags().StringP(logLevelFlagName, "l", "", logLevelFlagUsage)
}
