// Package logging provides structured logging for nodelink.
//
// This package wraps a global zap logger with convenience functions for the
// logging patterns used by the node core and its host transports. The core
// never prints directly; every state transition, boot-count update and
// provisioning request goes through this package.
//
// # Log Levels
//
//   - Debug: link polls, raw provisioning frames
//   - Info: state transitions, credential updates, boot counter changes
//   - Warn: persistence failures the core recovers from, join timeouts
//   - Error: transport failures, restart decisions
//
// # Structured Logging
//
//	logging.Info("Joining network",
//	    zap.String("ssid", ssid),
//	    zap.Duration("timeout", timeout),
//	)
//
// Domain helpers keep field names consistent across packages:
//
//	logging.LogStateTransition("disconnected", "provisioning", "no network credentials")
//	logging.LogBootCount(3)
//	logging.LogProvisioningRequest(remoteAddr, props)
//
// LogProvisioningRequest never writes secret values; any property whose key
// names a password is masked.
//
// # Configuration
//
// Logging is silent until initialized:
//
//	if err := logging.Initialize("debug"); err != nil {
//	    return err
//	}
//	defer logging.Sync()
//
// When the level is empty the NODELINK_LOG_LEVEL environment variable is
// consulted. If that is also empty a no-op logger is installed.
//
// # Thread Safety
//
// All logging functions are safe for concurrent use.
package logging
