// Package logging provides structured logging with per-module log levels.
//
// Loggers are obtained per module and carry a "module" attribute:
//
//	logger := logging.GetLogger("engine")
//	logger.Info("Program starting", "program", name)
//
// Initialize configures the global level, the output format (text or json),
// per-module overrides and an optional size-rotated log file. Records are
// written to stdout when it is connected to something useful and to the
// systemd journal when journald is available, so a daemon running under a
// systemd unit is searchable with:
//
//	journalctl -t procsup MODULE=engine
//	journalctl -t procsup PROGRAM=web
package logging
