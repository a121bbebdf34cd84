package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/MarcoPoloResearchLab/tripsync/internal/auth"
	"github.com/MarcoPoloResearchLab/tripsync/internal/chat"
	"github.com/MarcoPoloResearchLab/tripsync/internal/collab"
	"github.com/MarcoPoloResearchLab/tripsync/internal/config"
	"github.com/MarcoPoloResearchLab/tripsync/internal/database"
	"github.com/MarcoPoloResearchLab/tripsync/internal/itineraries"
	"github.com/MarcoPoloResearchLab/tripsync/internal/logging"
	"github.com/MarcoPoloResearchLab/tripsync/internal/notifications"
	"github.com/MarcoPoloResearchLab/tripsync/internal/server"
	"github.com/MarcoPoloResearchLab/tripsync/internal/users"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

const shutdownTimeout = 10 * time.Second

var (
	cfgFile string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "tripsync-api",
		Short: "Real-time itinerary collaboration backend",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return initConfig()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context())
		},
	}

	setupFlags(rootCmd)
	rootCmd.AddCommand(newMintTokenCommand())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func setupFlags(cmd *cobra.Command) {
	config.ApplyDefaults(viper.GetViper())
	defaults := config.NewViper()
	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Path to configuration file")
	cmd.PersistentFlags().String("http-address", defaults.GetString("http.address"), "HTTP listen address")
	cmd.PersistentFlags().String("database-driver", defaults.GetString("database.driver"), "Database driver (sqlite, postgres)")
	cmd.PersistentFlags().String("database-dsn", defaults.GetString("database.dsn"), "Database DSN or SQLite path")
	cmd.PersistentFlags().Int("token-ttl-minutes", defaults.GetInt("auth.token_ttl_minutes"), "Session token TTL in minutes")
	cmd.PersistentFlags().String("log-level", defaults.GetString("log.level"), "Log level (debug, info, warn, error)")
	cmd.PersistentFlags().String("log-format", defaults.GetString("log.format"), "Log format (json, console)")
	cmd.PersistentFlags().String("signing-secret", "", "Session signing secret (overrides env)")
	cmd.PersistentFlags().StringSlice("allowed-origins", defaults.GetStringSlice("cors.allowed_origins"), "Allowed browser origins")

	bindFlag(cmd, "http.address", "http-address")
	bindFlag(cmd, "database.driver", "database-driver")
	bindFlag(cmd, "database.dsn", "database-dsn")
	bindFlag(cmd, "auth.token_ttl_minutes", "token-ttl-minutes")
	bindFlag(cmd, "log.level", "log-level")
	bindFlag(cmd, "log.format", "log-format")
	bindFlag(cmd, "auth.signing_secret", "signing-secret")
	bindFlag(cmd, "cors.allowed_origins", "allowed-origins")
}

func bindFlag(cmd *cobra.Command, key, flag string) {
	if err := viper.BindPFlag(key, cmd.PersistentFlags().Lookup(flag)); err != nil {
		panic(err)
	}
}

func initConfig() error {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("load .env: %w", err)
	}

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	}

	if err := viper.ReadInConfig(); err != nil {
		var configNotFound viper.ConfigFileNotFoundError
		if cfgFile != "" && errors.As(err, &configNotFound) {
			return err
		}
	}

	return nil
}

func newMintTokenCommand() *cobra.Command {
	var identity auth.Identity
	cmd := &cobra.Command{
		Use:   "mint-token",
		Short: "Issue a session token for local testing",
		RunE: func(cmd *cobra.Command, args []string) error {
			appConfig, err := config.Load(viper.GetViper())
			if err != nil {
				return err
			}
			issuer, err := auth.NewTokenIssuer(auth.TokenIssuerConfig{
				SigningSecret: []byte(appConfig.SigningSecret),
				Issuer:        appConfig.AuthIssuer,
				TokenTTL:      appConfig.TokenTTL,
			})
			if err != nil {
				return err
			}
			token, expiresIn, err := issuer.IssueSessionToken(cmd.Context(), identity)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s\nexpires_in=%d\n", token, expiresIn)
			return nil
		},
	}
	cmd.Flags().StringVar(&identity.UserID, "user-id", "", "User identifier (required)")
	cmd.Flags().StringVar(&identity.DisplayName, "name", "", "Display name")
	cmd.Flags().StringVar(&identity.Email, "email", "", "Email address")
	_ = cmd.MarkFlagRequired("user-id")
	return cmd
}

func runServer(ctx context.Context) error {
	appConfig, err := config.Load(viper.GetViper())
	if err != nil {
		return err
	}

	logger, err := logging.NewLogger(appConfig.LogLevel, appConfig.LogFormat)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	db, err := database.Open(appConfig.DatabaseDriver, appConfig.DatabaseDSN, logger)
	if err != nil {
		return err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	defer sqlDB.Close()

	sessionValidator, err := auth.NewSessionValidator(auth.SessionValidatorConfig{
		SigningSecret: []byte(appConfig.SigningSecret),
		Issuer:        appConfig.AuthIssuer,
		CookieName:    appConfig.AuthCookieName,
	})
	if err != nil {
		return err
	}

	itineraryService, err := itineraries.NewService(itineraries.ServiceConfig{Database: db, Logger: logger})
	if err != nil {
		return err
	}
	userService, err := users.NewService(users.ServiceConfig{Database: db, Clock: time.Now})
	if err != nil {
		return err
	}

	hub := collab.NewHub(collab.HubConfig{
		Logger: logger,
		Clock:  time.Now,
		Access: server.ItineraryAccess(itineraryService),
	})

	notificationService, err := notifications.NewService(notifications.ServiceConfig{
		Database: db,
		Pusher:   hub,
		Logger:   logger,
	})
	if err != nil {
		return err
	}
	chatService, err := chat.NewService(chat.ServiceConfig{
		Database:    db,
		Itineraries: itineraryService,
		Profiles:    userService,
		Broadcaster: hub,
		Notifier:    notificationService,
		Logger:      logger,
	})
	if err != nil {
		return err
	}

	handler, err := server.NewHTTPHandler(server.Dependencies{
		SessionValidator: sessionValidator,
		Hub:              hub,
		ChatService:      chatService,
		Notifications:    notificationService,
		Profiles:         userService,
		Logger:           logger,
		AllowedOrigins:   appConfig.AllowedOrigins,
		Realtime: server.RealtimeConfig{
			PingInterval:    appConfig.PingInterval,
			PongWait:        appConfig.PongWait,
			WriteWait:       appConfig.WriteWait,
			SendBuffer:      appConfig.SendBuffer,
			MaxMessageBytes: appConfig.MaxMessageBytes,
		},
	})
	if err != nil {
		return err
	}

	httpServer := &http.Server{
		Addr:    appConfig.HTTPAddress,
		Handler: handler,
	}

	signalCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting",
			zap.String("address", appConfig.HTTPAddress),
			zap.String("database_driver", appConfig.DatabaseDriver))
		err := httpServer.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-signalCtx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		logger.Info("server shutting down")
		return httpServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}
