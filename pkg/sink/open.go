package sink

import (
	"fmt"
	"io"
	"os"
	"time"

	"go.uber.org/zap"

	"pcdpublisher/pkg/stream"
)

const (
	KindLog  = "log"
	KindTCP  = "tcp"
	KindFile = "file"
)

// Kinds lists the supported channel kinds.
var Kinds = []string{KindLog, KindTCP, KindFile}

type Writer interface {
	stream.Writer
	io.Closer
}

type Options struct {
	Kind string
	// Target is the TCP address for KindTCP and the output path for KindFile.
	Target       string
	Topic        string
	WriteTimeout time.Duration
	Logger       *zap.Logger
}

// Open creates the channel writer described by opts.
func Open(opts Options) (Writer, error) {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.String("sink", opts.Kind))

	// LogWriter adds the topic to every line itself.
	if opts.Kind == KindLog || opts.Kind == "" {
		return &LogWriter{Topic: opts.Topic, Logger: logger}, nil
	}
	logger = logger.With(zap.String("topic", opts.Topic))

	switch opts.Kind {
	case KindTCP:
		fw, err := DialTCP(opts.Target, opts.WriteTimeout)
		if err != nil {
			return nil, err
		}
		logger.Info("Connected to subscriber", zap.String("addr", opts.Target))
		return fw, nil
	case KindFile:
		f, err := os.OpenFile(opts.Target, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, err
		}
		logger.Info("Recording messages", zap.String("path", opts.Target))
		return NewFrameWriter(f), nil
	}
	return nil, fmt.Errorf("unknown sink %q", opts.Kind)
}
