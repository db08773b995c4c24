// Package logging configures the process-wide logrus logger.
package logging

import (
	"io"
	"os"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// Setup applies level and format ("text" or "json") to the standard logger
// and directs it to out, or stderr when out is nil.
func Setup(level, format string, out io.Writer) error {
	logLevel, err := log.ParseLevel(level)
	if err != nil {
		return errors.Wrapf(err, "bad log level %q", level)
	}

	switch format {
	case "", "text":
		log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	case "json":
		log.SetFormatter(&log.JSONFormatter{})
	default:
		return errors.Errorf("bad log format %q", format)
	}

	if out == nil {
		out = os.Stderr
	}
	log.SetOutput(out)
	log.SetLevel(logLevel)

	log.Debugln("Logging at level", logLevel)
	return nil
}
