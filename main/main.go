package main

import (
	"context"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"pcdpublisher/pkg/config"
	"pcdpublisher/pkg/logger"
	"pcdpublisher/pkg/pcd"
	"pcdpublisher/pkg/sink"
	"pcdpublisher/pkg/stream"
)

var v = viper.New()

var cmd = &cobra.Command{
	Use:          "pcdpublisher",
	Short:        "Replay a PCD file as a periodic point cloud stream",
	Args:         cobra.NoArgs,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(v)
		if err != nil {
			return err
		}
		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		return run(ctx, cfg, os.Stderr)
	},
}

func init() {
	if err := config.BindFlags(cmd.Flags(), v); err != nil {
		panic(err)
	}
}

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// run decodes the configured file once and streams it until ctx is done.
// Decode failures abort before anything is published.
func run(ctx context.Context, cfg config.Config, logOut io.Writer) error {
	level, err := cfg.Level()
	if err != nil {
		return err
	}
	log := logger.New(logOut, level)
	defer log.Sync()

	dec := &pcd.Decoder{Logger: log, Strict: cfg.Strict}
	cloud, err := dec.Load(cfg.File)
	if err != nil {
		return errors.Wrapf(err, "load %s", cfg.File)
	}
	log.Info("Loaded point cloud", zap.String("file", cfg.File), zap.Int("points", cloud.Len()))

	w, err := sink.Open(sink.Options{
		Kind:         cfg.Sink,
		Target:       cfg.Target,
		Topic:        cfg.Topic,
		WriteTimeout: cfg.WriteTimeout,
		Logger:       log,
	})
	if err != nil {
		return errors.Wrapf(err, "open %s sink", cfg.Sink)
	}
	defer w.Close()
	log.Info("Publishing point clouds",
		zap.String("topic", cfg.Topic),
		zap.String("schema", cfg.Schema),
		zap.String("sink", cfg.Sink))

	metrics := stream.NewMetrics()
	if cfg.MetricsAddr != "" {
		srv := serveMetrics(cfg.MetricsAddr, metrics, log)
		defer srv.Close()
	}

	s, err := stream.New(w, stream.Config{
		RateHz:     cfg.RateHz,
		ModuleName: cfg.ModuleName,
		FrameID:    cfg.FrameID,
		Intensity:  stream.DefaultIntensity,
	}, stream.WithLogger(log), stream.WithMetrics(metrics))
	if err != nil {
		return err
	}
	return s.Run(ctx, cloud.Points)
}

func serveMetrics(addr string, metrics *stream.Metrics, log *zap.Logger) *http.Server {
	reg := prometheus.NewRegistry()
	reg.MustRegister(metrics.PrometheusCollectors()...)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("Metrics server stopped", zap.Error(err))
		}
	}()
	log.Info("Serving metrics", zap.String("addr", addr))
	return srv
}
