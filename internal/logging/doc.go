// Package logging provides structured logging for the AuraLink daemon.
//
// This package wraps zap logger with convenience functions for common logging
// patterns used throughout the daemon. It provides both general logging
// functions and specialized functions for connectivity-specific logging needs.
//
// # Log Levels
//
// The package supports standard log levels:
//   - Debug: Detailed debugging info (DNS queries, retry timing, poll ticks)
//   - Info: Normal operations (connections, messages, state changes)
//   - Warn: Non-fatal issues (connection drops, retries, degraded mode)
//   - Error: Fatal issues (startup failures, critical errors)
//
// # Structured Logging
//
// All log functions use structured fields for queryability:
//
//	logging.Info("Station connected",
//	    zap.String("ssid", "MyNet"),
//	    zap.String("ip", "192.168.1.42"),
//	    zap.Int("rssi", -52),
//	)
//
// # Configuration
//
// Initialize logging at daemon startup:
//
//	if err := logging.Initialize("debug"); err != nil {
//	    log.Fatal(err)
//	}
//	defer logging.Sync()
//
// When no level is given, the AURALINK_LOG_LEVEL environment variable is
// consulted; if that is also unset, logging is silent.
//
// # Thread Safety
//
// All logging functions are safe for concurrent use. The underlying zap
// logger handles synchronization automatically.
package logging
