package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/MarcoPoloResearchLab/tandem/backend/internal/auth"
	"github.com/MarcoPoloResearchLab/tandem/backend/internal/config"
	"github.com/MarcoPoloResearchLab/tandem/backend/internal/database"
	"github.com/MarcoPoloResearchLab/tandem/backend/internal/logging"
	"github.com/MarcoPoloResearchLab/tandem/backend/internal/server"
	"github.com/MarcoPoloResearchLab/tandem/backend/internal/storage"
)

var (
	cfgFile string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "tandem-api",
		Short: "Tandem collaborative sync server",
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return initConfig()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context())
		},
	}

	setupFlags(rootCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func setupFlags(cmd *cobra.Command) {
	config.ApplyDefaults(viper.GetViper())
	defaults := config.NewViper()
	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Path to configuration file")
	cmd.PersistentFlags().String("http-address", defaults.GetString("http.address"), "HTTP listen address")
	cmd.PersistentFlags().String("storage-backend", defaults.GetString("storage.backend"), "Blob storage backend (filesystem, sqlite)")
	cmd.PersistentFlags().String("data-dir", defaults.GetString("storage.data_dir"), "Data directory for the filesystem backend")
	cmd.PersistentFlags().String("database-path", defaults.GetString("database.path"), "SQLite database path for the sqlite backend")
	cmd.PersistentFlags().Duration("flush-interval", defaults.GetDuration("flush.interval"), "Interval between dirty-document flushes")
	cmd.PersistentFlags().Bool("debug-state", defaults.GetBool("debug.state_endpoint"), "Expose the /debug/state development endpoint")
	cmd.PersistentFlags().String("log-level", defaults.GetString("log.level"), "Log level (debug, info, warn, error)")
	cmd.PersistentFlags().String("signing-secret", "", "Backend token signing secret (overrides env)")

	bindFlag(cmd, "http.address", "http-address")
	bindFlag(cmd, "storage.backend", "storage-backend")
	bindFlag(cmd, "storage.data_dir", "data-dir")
	bindFlag(cmd, "database.path", "database-path")
	bindFlag(cmd, "flush.interval", "flush-interval")
	bindFlag(cmd, "debug.state_endpoint", "debug-state")
	bindFlag(cmd, "log.level", "log-level")
	bindFlag(cmd, "auth.signing_secret", "signing-secret")
}

func bindFlag(cmd *cobra.Command, key, flag string) {
	if err := viper.BindPFlag(key, cmd.PersistentFlags().Lookup(flag)); err != nil {
		panic(err)
	}
}

func initConfig() error {
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

func runServer(ctx context.Context) error {
	appConfig, err := config.Load(viper.GetViper())
	if err != nil {
		return err
	}

	logger, err := logging.NewLogger(appConfig.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	blobStore, cleanup, err := openBlobStore(appConfig, logger)
	if err != nil {
		return err
	}
	if cleanup != nil {
		defer cleanup()
	}

	docs, err := storage.NewDocStore(storage.DocStoreConfig{
		Store:  blobStore,
		Logger: logger,
	})
	if err != nil {
		return err
	}

	hub, err := server.NewHub(server.HubConfig{
		Docs:   docs,
		Logger: logger,
		Clock:  time.Now,
	})
	if err != nil {
		return err
	}

	if err := hub.LoadBaseDocuments(); err != nil {
		return err
	}

	var validator auth.TokenValidator
	if appConfig.SigningSecret != "" {
		validator = auth.NewTokenIssuer(auth.TokenIssuerConfig{
			SigningSecret: []byte(appConfig.SigningSecret),
			Issuer:        "tandem-auth",
			Audience:      "tandem-api",
		})
	}

	handler, err := server.NewHTTPHandler(server.Dependencies{
		Hub:        hub,
		Identifier: auth.NewIdentifier(validator),
		Logger:     logger,
		DebugState: appConfig.DebugState,
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

	flushDone := make(chan struct{})
	go func() {
		defer close(flushDone)
		ticker := time.NewTicker(appConfig.FlushInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if err := hub.Flush(); err != nil {
					logger.Error("periodic flush failed", zap.Error(err))
				}
			case <-signalCtx.Done():
				return
			}
		}
	}()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting", zap.String("address", appConfig.HTTPAddress))
		err := httpServer.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-signalCtx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		shutdownErr := httpServer.Shutdown(shutdownCtx)
		<-flushDone
		if err := hub.Flush(); err != nil {
			logger.Error("final flush failed", zap.Error(err))
		}
		return shutdownErr
	case err := <-errCh:
		return err
	}
}

func openBlobStore(appConfig config.AppConfig, logger *zap.Logger) (storage.BlobStore, func(), error) {
	switch appConfig.StorageBackend {
	case config.StorageBackendSQLite:
		db, err := database.OpenSQLite(appConfig.DatabasePath, logger)
		if err != nil {
			return nil, nil, err
		}
		sqlDB, err := db.DB()
		if err != nil {
			return nil, nil, err
		}
		store, err := storage.NewDatabaseStore(storage.DatabaseStoreConfig{Database: db})
		if err != nil {
			_ = sqlDB.Close()
			return nil, nil, err
		}
		return store, func() { _ = sqlDB.Close() }, nil
	default:
		store, err := storage.NewFileStore(appConfig.DataDir)
		if err != nil {
			return nil, nil, err
		}
		return store, nil, nil
	}
}
