package logging

import (
	"fmt"
	"io"

	log "github.com/sirupsen/logrus"

	"github.com/ligustah/unadj/internal/config"
)

// Configure sets up the package-global logrus logger from cfg, writing
// to w. The text format uses full timestamps.
func Configure(cfg config.LogConfig, w io.Writer) error {
	level, err := log.ParseLevel(cfg.Level)
	if err != nil {
		return fmt.Errorf("logging: %w", err)
	}
	formatter, err := newFormatter(cfg.Format)
	if err != nil {
		return err
	}

	log.SetLevel(level)
	log.SetFormatter(formatter)
	log.SetOutput(w)
	return nil
}

func newFormatter(format string) (log.Formatter, error) {
	switch format {
	case "", "text":
		return &log.TextFormatter{FullTimestamp: true}, nil
	case "json":
		return &log.JSONFormatter{}, nil
	default:
		return nil, fmt.Errorf("logging: unknown format %q", format)
	}
}
