// Package logging builds the process logger from configuration.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

// New returns a logrus logger writing to w (stderr when nil) with the given
// level and format ("text" or "json").
func New(w io.Writer, level, format string) (*logrus.Logger, error) {
	if w == nil {
		w = os.Stderr
	}
	lvl, err := logrus.ParseLevel(strings.TrimSpace(level))
	if err != nil {
		return nil, fmt.Errorf("log level: %w", err)
	}

	l := logrus.New()
	l.SetOutput(w)
	l.SetLevel(lvl)

	switch strings.ToLower(strings.TrimSpace(format)) {
	case "", "text":
		l.SetFormatter(&logrus.TextFormatter{
			DisableColors:    true,
			FullTimestamp:    true,
			DisableQuote:     true,
			DisableSorting:   false,
			QuoteEmptyFields: true,
		})
	case "json":
		l.SetFormatter(&logrus.JSONFormatter{})
	default:
		return nil, fmt.Errorf("log format %q: want text or json", format)
	}
	return l, nil
}

// LogError records a failed operation with its component and context.
func LogError(logger *logrus.Logger, component, op string, err error, fields logrus.Fields) {
	if logger == nil || err == nil {
		return
	}
	f := logrus.Fields{"component": component, "op": op}
	for k, v := range fields {
		f[k] = v
	}
	logger.WithFields(f).WithError(err).Error(op + " failed")
}
