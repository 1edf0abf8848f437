// Package logging routes the standard logger to stderr or a rotating file.
package logging

import (
	"io"
	"log"
	"os"

	"gopkg.in/natefinch/lumberjack.v2"

	"pendrag/internal/config"
)

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// Setup points the standard logger at the destination described by cfg.
// The returned Closer releases the log file, if any.
func Setup(cfg config.LogConfig) (io.Closer, error) {
	w, closer, err := Writer(cfg)
	if err != nil {
		return nil, err
	}
	log.SetOutput(w)
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)
	return closer, nil
}

// Writer builds the log destination without installing it
func Writer(cfg config.LogConfig) (io.Writer, io.Closer, error) {
	if cfg.Filename == "" || cfg.Filename == "-" {
		return os.Stderr, nopCloser{}, nil
	}

	lj := &lumberjack.Logger{
		Filename:   cfg.Filename,
		MaxSize:    cfg.MaxSize,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAge,
		Compress:   cfg.Compress,
		LocalTime:  true,
	}
	if !cfg.Append {
		if err := lj.Rotate(); err != nil {
			return nil, nil, err
		}
	}

	if cfg.AlsoStderr {
		return io.MultiWriter(os.Stderr, lj), lj, nil
	}
	return lj, lj, nil
}
