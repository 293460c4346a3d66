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

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	flag "github.com/spf13/pflag"

	"ws2osc/internal/bridge"
	"ws2osc/internal/config"
	"ws2osc/internal/ingress"
	"ws2osc/internal/logger"
	"ws2osc/internal/metrics"
	"ws2osc/internal/mqttstatus"
)

const shutdownTimeout = 10 * time.Second

var (
	configFile string
	logLevel   string
)

func init() {
	flag.StringVarP(&configFile, "config", "c", "configs/conf.toml", "Path to configuration file")
	flag.StringVar(&logLevel, "log-level", "", "Override the log level from the configuration file")
}

func main() {
	flag.Parse()
	store, err := config.Open(configFile)
	if err != nil {
		fmt.Printf("configuration file read error: %v\n", err)
		os.Exit(1)
	}
	cfg := store.Config()
	if logLevel != "" {
		cfg.Logger.Level = logLevel
	}

	log, err := logger.NewLogger(cfg.Logger)
	if err != nil {
		fmt.Printf("failed to create a logger: %v\n", err)
		os.Exit(1)
	}
	log.With(logger.Fields{"module": "logger"}).Debug("newLogger created ok")

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	b, err := bridge.New(store, ingress.ConfigFrom(cfg.WebSocket), log, m)
	if err != nil {
		log.With(logger.Fields{"module": "bridge"}).Errorf("error while creating the bridge. %v", err)
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	defer cancel()

	if err = b.Start(); err != nil {
		log.Error("failed to start bridge: ", err.Error())
		os.Exit(1)
	}
	st := b.Status()
	log.With(logger.Fields{"module": "bridge"}).Infof("OSC target %s, mappings %v, timeout %ds", st.Target, st.Mappings, st.TimeoutSeconds)

	metricsSrv := startMetrics(cfg.Metrics, reg, log)

	var publisher *mqttstatus.Publisher
	if cfg.MQTT.Enabled {
		publisher = mqttstatus.NewPublisher(log, mqttstatus.ConvertConfig(cfg.MQTT), b)
		if err = publisher.Start(ctx); err != nil {
			log.Error("failed to start MQTT status publisher: ", err.Error())
			publisher = nil
		}
	}

	<-ctx.Done()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	if publisher != nil {
		if err := publisher.Stop(); err != nil {
			log.Error("failed to stop MQTT status publisher: ", err.Error())
		}
	}

	if err := b.Stop(shutdownCtx); err != nil {
		log.Error("failed to stop bridge: ", err.Error())
	}

	if metricsSrv != nil {
		if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
			log.Error("failed to stop metrics server: ", err.Error())
		}
	}

	log.Info("shutdown complete")
}

func startMetrics(cfg config.MetricsConf, reg *prometheus.Registry, log *logger.Log) *http.Server {
	if cfg.Listen == "" {
		return nil
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	srv := &http.Server{
		Addr:              cfg.Listen,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.With(logger.Fields{"module": "metrics"}).Errorf("metrics server: %v", err)
		}
	}()
	log.With(logger.Fields{"module": "metrics"}).Infof("metrics on http://%s/metrics", cfg.Listen)
	return srv
}
