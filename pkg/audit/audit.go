package audit

import (
	"io"

	"github.com/sirupsen/logrus"
)

// Logger emits structured audit events for security-relevant actions:
// denied access attempts, credential issuance and key lifecycle changes.
// Entries go to a dedicated logrus logger so they can be routed or
// filtered independently of application logs.
type Logger struct {
	log *logrus.Logger
}

// NewLogger creates an audit logger on top of the given logrus logger.
func NewLogger(log *logrus.Logger) *Logger {
	return &Logger{log: log}
}

// Nop returns an audit logger that discards all entries. Used in tests
// and as a fallback when no logger is configured.
func Nop() *Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return &Logger{log: log}
}

// Denied records an access attempt that fell outside the caller's
// derived prefix. The attempted key, the resolved prefix and the
// principal are always recorded.
func (l *Logger) Denied(principal, key, prefix string) {
	l.log.WithFields(logrus.Fields{
		"audit":     true,
		"action":    "access_denied",
		"principal": principal,
		"key":       key,
		"prefix":    prefix,
	}).Warn("access denied")
}

// Event records a successful security-relevant action such as
// credential issuance or a key lifecycle change.
func (l *Logger) Event(principal, action, resource string, fields logrus.Fields) {
	entry := l.log.WithFields(logrus.Fields{
		"audit":     true,
		"action":    action,
		"principal": principal,
		"resource":  resource,
	})
	if len(fields) > 0 {
		entry = entry.WithFields(fields)
	}
	entry.Info("audit event")
}

// Warning records a non-fatal anomaly during an otherwise successful
// action, such as a stale key that could not be cleaned up.
func (l *Logger) Warning(principal, action, resource string, err error) {
	l.log.WithFields(logrus.Fields{
		"audit":     true,
		"action":    action,
		"principal": principal,
		"resource":  resource,
		"error":     err.Error(),
	}).Warn("audit warning")
}
