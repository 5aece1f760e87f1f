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

	"github.com/rayonware/picksync/internal/api"
	"github.com/rayonware/picksync/internal/config"
	"github.com/rayonware/picksync/internal/connectivity"
	"github.com/rayonware/picksync/internal/localstore"
	"github.com/rayonware/picksync/internal/logging"
	"github.com/rayonware/picksync/internal/orders"
	"github.com/rayonware/picksync/internal/server"
	"github.com/rayonware/picksync/internal/session"
	"github.com/rayonware/picksync/internal/syncengine"
)

var (
	cfgFile string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "picksync-agent",
		Short: "Offline-first warehouse picking companion agent",
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return initConfig()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAgent(cmd.Context())
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
	cmd.PersistentFlags().String("http-address", defaults.GetString("http.address"), "Local UI listen address")
	cmd.PersistentFlags().String("remote-base-url", defaults.GetString("remote.base_url"), "Fulfillment API base URL")
	cmd.PersistentFlags().String("database-path", defaults.GetString("database.path"), "SQLite database path")
	cmd.PersistentFlags().Int("sync-interval-seconds", defaults.GetInt("sync.interval_seconds"), "Background sync interval in seconds")
	cmd.PersistentFlags().Int("remote-timeout-seconds", defaults.GetInt("remote.timeout_seconds"), "Per-request remote timeout in seconds")
	cmd.PersistentFlags().String("allowed-origin", defaults.GetString("http.allowed_origin"), "CORS origin allowed to call the local API")
	cmd.PersistentFlags().String("log-level", defaults.GetString("log.level"), "Log level (debug, info, warn, error)")

	bindFlag(cmd, "http.address", "http-address")
	bindFlag(cmd, "remote.base_url", "remote-base-url")
	bindFlag(cmd, "database.path", "database-path")
	bindFlag(cmd, "sync.interval_seconds", "sync-interval-seconds")
	bindFlag(cmd, "remote.timeout_seconds", "remote-timeout-seconds")
	bindFlag(cmd, "http.allowed_origin", "allowed-origin")
	bindFlag(cmd, "log.level", "log-level")
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

func runAgent(ctx context.Context) error {
	appConfig, err := config.Load(viper.GetViper())
	if err != nil {
		return err
	}

	logger, err := logging.NewLogger(appConfig.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	db, err := localstore.OpenSQLite(appConfig.DatabasePath, logger)
	if err != nil {
		return err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	defer sqlDB.Close()

	local, err := localstore.NewStore(localstore.StoreConfig{Database: db, Clock: time.Now})
	if err != nil {
		return err
	}

	sessions, err := session.NewManager(session.ManagerConfig{Local: local, Clock: time.Now, Logger: logger})
	if err != nil {
		return err
	}
	if err := sessions.Restore(ctx); err != nil {
		logger.Warn("session restore failed", zap.Error(err))
	}

	client, err := api.NewClient(api.ClientConfig{
		BaseURL: appConfig.RemoteBaseURL,
		Tokens:  sessions,
		Timeout: appConfig.RequestTimeout,
		Logger:  logger,
	})
	if err != nil {
		return err
	}

	monitor := connectivity.NewMonitor(connectivity.MonitorConfig{
		InitiallyOnline: true,
		Logger:          logger,
	})

	engine, err := syncengine.NewEngine(syncengine.Config{
		Queue:    local,
		Client:   client,
		Monitor:  monitor,
		Clock:    time.Now,
		Logger:   logger,
		Interval: appConfig.SyncInterval,
	})
	if err != nil {
		return err
	}

	orderStore, err := orders.NewService(orders.ServiceConfig{
		Client:  client,
		Local:   local,
		Engine:  engine,
		Monitor: monitor,
		Clock:   time.Now,
		Logger:  logger,
	})
	if err != nil {
		return err
	}

	handler, err := server.NewHTTPHandler(server.Dependencies{
		Sessions:      sessions,
		Client:        client,
		Orders:        orderStore,
		Engine:        engine,
		Monitor:       monitor,
		Logger:        logger,
		AllowedOrigin: appConfig.AllowedOrigin,
	})
	if err != nil {
		return err
	}

	signalCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := engine.Start(signalCtx); err != nil {
		return err
	}
	defer engine.Stop()

	httpServer := &http.Server{
		Addr:    appConfig.HTTPAddress,
		Handler: handler,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("agent serving local UI", zap.String("address", appConfig.HTTPAddress))
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
		return httpServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}
