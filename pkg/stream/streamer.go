// Package stream replays a decoded point cloud as a periodic message stream.
package stream

import (
	"context"
	"errors"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"

	"pcdpublisher/pkg/pcd"
)

// DefaultIntensity is written on every point; the decoder does not read intensity.
const DefaultIntensity = 100

var ErrInvalidRate = errors.New("publish rate must be greater than zero")

// Writer is the publish channel. Write must not retain msg past the call
// unless it treats it as read-only.
type Writer interface {
	Write(msg *PointCloud) error
}

// WriterFunc adapts a function to a Writer.
type WriterFunc func(msg *PointCloud) error

func (f WriterFunc) Write(msg *PointCloud) error {
	return f(msg)
}

type Config struct {
	RateHz     float64
	ModuleName string
	FrameID    string
	Intensity  float32
}

func DefaultConfig() Config {
	return Config{
		RateHz:     10,
		ModuleName: "pcd_publisher",
		Intensity:  DefaultIntensity,
	}
}

// Interval is the nominal time between two messages.
func (c Config) Interval() time.Duration {
	return time.Duration(float64(time.Second) / c.RateHz)
}

type Option func(*Streamer)

// WithClock sets the clock used for timestamps and ticks.
func WithClock(c clock.Clock) Option {
	return func(s *Streamer) {
		s.clock = c
	}
}

func WithLogger(log *zap.Logger) Option {
	return func(s *Streamer) {
		s.logger = log.With(zap.String("service", "stream"))
	}
}

func WithMetrics(m *Metrics) Option {
	return func(s *Streamer) {
		s.metrics = m
	}
}

// Streamer publishes the same point set once per tick until stopped.
type Streamer struct {
	config  Config
	writer  Writer
	clock   clock.Clock
	logger  *zap.Logger
	metrics *Metrics
	seq     Sequence
}

func New(w Writer, cfg Config, opts ...Option) (*Streamer, error) {
	if !(cfg.RateHz > 0) || cfg.Interval() <= 0 {
		return nil, ErrInvalidRate
	}
	if w == nil {
		return nil, errors.New("stream: nil writer")
	}
	s := &Streamer{
		config: cfg,
		writer: w,
		clock:  clock.New(),
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Sequence returns the sequence number the next message will carry.
func (s *Streamer) Sequence() uint64 {
	return s.seq.Current()
}

// Run publishes points once per tick until ctx is done. The first message
// is sent immediately. It returns nil when stopped through ctx.
//
// points is shared by every message and must not be modified while Run
// is active.
func (s *Streamer) Run(ctx context.Context, points []pcd.Point) error {
	interval := s.config.Interval()
	ticker := s.clock.Ticker(interval)
	defer ticker.Stop()

	s.logger.Info("Starting point cloud stream",
		zap.Float64("rate_hz", s.config.RateHz),
		zap.Duration("interval", interval),
		zap.Int("points", len(points)))

	for {
		if ctx.Err() != nil {
			break
		}
		s.publish(points)

		select {
		case <-ctx.Done():
		case <-ticker.C:
		}
	}

	s.logger.Info("Terminating point cloud stream", zap.Uint64("published", s.seq.Current()))
	return nil
}

func (s *Streamer) publish(points []pcd.Point) {
	seq := s.seq.Next()
	msg := s.config.BuildMessage(points, seq, s.clock.Now())

	if err := s.writer.Write(msg); err != nil {
		s.logger.Warn("Failed to publish point cloud", zap.Uint64("seq", seq), zap.Error(err))
		if s.metrics != nil {
			s.metrics.WriteErrors.Inc()
		}
	} else {
		s.logger.Debug("Published point cloud", zap.Uint64("seq", seq))
	}

	if s.metrics != nil {
		s.metrics.Messages.Inc()
		s.metrics.Points.Set(float64(len(points)))
	}
}
