// Copyright (C) 2026 Fieldtrack Labs, Inc.
// See LICENSE for copying information.

package main

import (
	"errors"
	"fmt"
	"net"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/zeebo/errs"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/fieldtrack/tracklog/export"
	"github.com/fieldtrack/tracklog/ingest"
	"github.com/fieldtrack/tracklog/mqttsource"
	"github.com/fieldtrack/tracklog/sweeper"
	"github.com/fieldtrack/tracklog/web"
)

var (
	rootCmd = &cobra.Command{
		Use:   "tracklog",
		Short: "GPS fix ingestion and export server",
	}
	setupCmd = &cobra.Command{
		Use:   "setup",
		Short: "Create config files",
		RunE:  cmdSetup,
	}
	runCmd = &cobra.Command{
		Use:   "run",
		Short: "Run the tracklog server",
		RunE:  cmdRun,
	}

	confDir string
)

func init() {
	rootCmd.PersistentFlags().StringVar(&confDir, "config-dir", ".", "directory for the configuration file")

	flags := runCmd.Flags()
	flags.String("listen", ":8080", "address for the HTTP server")
	flags.String("api-token", "", "shared token expected in X-API-Token")
	flags.String("data-dir", "data", "directory holding the per-device ledgers")
	flags.Int("retention-days", 7, "days of ledger files to keep")
	flags.Int("recent-keys-max", 5000, "bound of the per-device dedup key file")
	flags.Int64("max-future-skew", 86400, "seconds past now before a timestamp is rejected")
	flags.Duration("sweep-interval", time.Hour, "how frequently the retention sweeper runs")
	flags.String("mqtt-broker", "", "MQTT broker URL; empty disables the bridge")
	flags.String("mqtt-topic", "v3/+/devices/+/up", "MQTT uplink subscription filter")
	flags.String("mqtt-client-id", "tracklog-ingest", "MQTT client identifier")
	flags.String("mqtt-username", "", "MQTT username")
	flags.String("mqtt-password", "", "MQTT password")

	cobra.CheckErr(viper.BindPFlags(flags))

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(setupCmd)
}

func loadConfig() error {
	viper.SetEnvPrefix("TRACKLOG")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(confDir)
	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return errs.Wrap(err)
		}
	}
	return nil
}

func cmdSetup(cmd *cobra.Command, args []string) (err error) {
	setupDir, err := filepath.Abs(confDir)
	if err != nil {
		return errs.Wrap(err)
	}
	if err := os.MkdirAll(setupDir, 0700); err != nil {
		return errs.Wrap(err)
	}

	path := filepath.Join(setupDir, "config.yaml")
	if _, err := os.Stat(path); err == nil {
		return errs.New("configuration already exists (%v)", path)
	}

	if err := loadConfig(); err != nil {
		return err
	}
	return errs.Wrap(viper.WriteConfigAs(path))
}

func cmdRun(cmd *cobra.Command, args []string) (err error) {
	if err := loadConfig(); err != nil {
		return err
	}

	log, err := zap.NewProduction()
	if err != nil {
		return errs.Wrap(err)
	}
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	ingestConfig := ingest.DefaultConfig()
	ingestConfig.DataDir = viper.GetString("data-dir")
	ingestConfig.RetentionDays = viper.GetInt("retention-days")
	ingestConfig.RecentKeysMax = viper.GetInt("recent-keys-max")
	ingestConfig.MaxFutureSkew = viper.GetInt64("max-future-skew")
	ingestService := ingest.NewService(log.Named("ingest"), ingestConfig)

	exportConfig := export.DefaultConfig()
	exportConfig.DataDir = ingestConfig.DataDir
	exportService := export.NewService(log.Named("export"), exportConfig)

	server := web.NewServer(log.Named("web"), ingestService, exportService, web.Config{
		Address: viper.GetString("listen"),
		Token:   viper.GetString("api-token"),
	})

	sweepConfig := sweeper.DefaultConfig()
	sweepConfig.Interval = viper.GetDuration("sweep-interval")
	sweepConfig.RetentionDays = ingestConfig.RetentionDays
	sweepService := sweeper.NewService(log.Named("sweeper"), ingestConfig.DataDir, sweepConfig)

	listener, err := net.Listen("tcp", viper.GetString("listen"))
	if err != nil {
		return errs.Wrap(err)
	}
	log.Info("server listening", zap.Stringer("address", listener.Addr()))

	group, ctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		return server.Run(ctx, listener)
	})
	group.Go(func() error {
		defer func() { _ = sweepService.Close() }()
		return sweepService.Run(ctx)
	})
	if broker := viper.GetString("mqtt-broker"); broker != "" {
		mqttConfig := mqttsource.Config{
			Broker:   broker,
			ClientID: viper.GetString("mqtt-client-id"),
			Topic:    viper.GetString("mqtt-topic"),
			Username: viper.GetString("mqtt-username"),
			Password: viper.GetString("mqtt-password"),
		}
		bridge := mqttsource.NewService(log.Named("mqtt"), ingestService, mqttConfig)
		group.Go(func() error {
			return bridge.Run(ctx)
		})
	}

	err = group.Wait()
	if err != nil && ctx.Err() != nil {
		// canceled by signal; treat the shutdown as clean
		err = nil
	}
	return err
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
