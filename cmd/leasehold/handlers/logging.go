package handlers

import (
	"os"

	"github.com/go-logr/logr"
	"github.com/mattn/go-isatty"
	"sigs.k8s.io/controller-runtime/pkg/log"
	"sigs.k8s.io/controller-runtime/pkg/log/zap"
)

// SetupLogger builds the process logger and installs it as the
// controller-runtime default. Development mode (console encoding, debug
// level) is used when debug is set, LEASEHOLD_DEBUG=true, or stderr is a
// terminal; otherwise logs are JSON.
func SetupLogger(debug bool) logr.Logger {
	opts := zap.Options{
		Development: developmentLogging(debug),
	}
	logger := zap.New(zap.UseFlagOptions(&opts))
	log.SetLogger(logger)
	return logger
}

func developmentLogging(debug bool) bool {
	if debug || os.Getenv("LEASEHOLD_DEBUG") == "true" {
		return true
	}
	fd := os.Stderr.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}
