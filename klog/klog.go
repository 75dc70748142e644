// Package klog is the kernel's structured logger, a thin wrapper over
// logrus.  Printd is the debug-gated variant of the old printd; Printk
// always logs; Warn is for user bugs that are warned about and ignored.
package klog

import (
	"github.com/sirupsen/logrus"

	"manycore/caller"
)

/// Ctx carries structured fields attached to a log line, typically
/// pid/vcore/pcore.
type Ctx map[string]interface{}

var log = logrus.New()

var warnonce = caller.Distinct_caller_t{Enabled: true}

/// SetDebug toggles Printd output.
func SetDebug(on bool) {
	if on {
		log.SetLevel(logrus.DebugLevel)
	} else {
		log.SetLevel(logrus.InfoLevel)
	}
}

/// Printd logs a debug message; compiled in, gated at runtime.
func Printd(msg string, ctx Ctx) {
	log.WithFields(logrus.Fields(ctx)).Debug(msg)
}

/// Printk logs an informational message.
func Printk(msg string, ctx Ctx) {
	log.WithFields(logrus.Fields(ctx)).Info(msg)
}

/// Warn logs a warning.
func Warn(msg string, ctx Ctx) {
	log.WithFields(logrus.Fields(ctx)).Warn(msg)
}

/// Warn_once logs a warning only for call chains not seen before.
/// User-bug paths use this so a misbehaving process cannot spam the
/// console.
func Warn_once(msg string, ctx Ctx) {
	if first, _ := warnonce.Distinct(); first {
		log.WithFields(logrus.Fields(ctx)).Warn(msg)
	}
}
