package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/common-nighthawk/go-figure"
	"github.com/jrsteele09/go-resource-auth/internal/config"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		log.Fatal().Err(err).Msg("Error running server")
	}
	log.Info().Msg("Server stopped")
}

func newRootCommand() *cobra.Command {
	v := viper.New()
	var configFile string

	cmd := &cobra.Command{
		Use:           "resource-auth",
		Short:         "OAuth 2.0 PKCE authorization and bearer-protected resource server",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if configFile == "" {
				return nil
			}
			v.SetConfigFile(configFile)
			if err := v.ReadInConfig(); err != nil {
				return fmt.Errorf("read config %s: %w", configFile, err)
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), config.New(v))
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&configFile, "config", "", "Path to a YAML, TOML or JSON config file")
	flags.String("port", ":8080", "Address to listen on")
	flags.String("base-url", "", "Public base URL of this server")
	flags.String("log-level", "info", "Log level (debug, info, warn, error)")
	flags.String("idp-issuer", "", "Issuer URL of the upstream identity provider")
	flags.String("idp-client-id", "", "Client ID registered with the upstream identity provider")
	flags.String("signing-alg", "RS256", "Access token signing algorithm (HS256, RS256, ES256)")
	flags.String("private-key-file", "", "PEM private key for RS256/ES256 signing")
	flags.String("redis-addr", "", "Redis address for shared attempt latches")
	flags.String("protected-api-url", "", "Upstream URL of the protected resource")

	mustBindFlag(v, config.KeyPort, flags.Lookup("port"))
	mustBindFlag(v, config.KeyBaseURL, flags.Lookup("base-url"))
	mustBindFlag(v, config.KeyLogLevel, flags.Lookup("log-level"))
	mustBindFlag(v, config.KeyIdentityIssuer, flags.Lookup("idp-issuer"))
	mustBindFlag(v, config.KeyIdentityClientID, flags.Lookup("idp-client-id"))
	mustBindFlag(v, config.KeyTokenSigningAlg, flags.Lookup("signing-alg"))
	mustBindFlag(v, config.KeyTokenPrivateKeyFile, flags.Lookup("private-key-file"))
	mustBindFlag(v, config.KeyRedisAddr, flags.Lookup("redis-addr"))
	mustBindFlag(v, config.KeyProtectedAPIURL, flags.Lookup("protected-api-url"))

	return cmd
}

func mustBindFlag(v *viper.Viper, key string, flag *pflag.Flag) {
	if err := v.BindPFlag(key, flag); err != nil {
		panic(fmt.Sprintf("bind flag %s: %v", flag.Name, err))
	}
}

func run(ctx context.Context, c config.Config) (returnError error) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Bytes("stack", debug.Stack()).Msg("Recovered from panic")
			returnError = errors.New("panic recovered")
		}
	}()

	setupLogging(c)
	displayAppname(c.GetAppName())

	handler, cleanup, err := buildHandler(ctx, c)
	if err != nil {
		return err
	}
	defer cleanup()

	server := &http.Server{
		Addr:              c.GetPort(),
		Handler:           otelhttp.NewHandler(handler, c.GetAppName()),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() { errCh <- listenAndServe(server) }()

	select {
	case err := <-errCh:
		return err
	case <-waitForStopSignal():
	}
	return shutdown(server)
}

func setupLogging(c config.Config) {
	level, err := zerolog.ParseLevel(c.GetLogLevel())
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	if c.GetEnv() == "DEV" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}
}

func listenAndServe(server *http.Server) error {
	log.Info().Str("addr", server.Addr).Msg("Server listening")
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server.ListenAndServe %w", err)
	}
	return nil
}

func waitForStopSignal() <-chan os.Signal {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	return stop
}

func shutdown(server *http.Server) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server.Shutdown: %w", err)
	}
	return nil
}

func displayAppname(appname string) {
	myFigure := figure.NewFigure(appname, "cybermedium", true)
	myFigure.Print()
	fmt.Println()
}
