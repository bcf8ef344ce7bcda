// Package pkg provides shared utilities for the sinn7 driver.
//
// This package contains common functionality used by the streaming engine,
// the transport HALs and the command-line player:
//
//   - Structured logging via Go's standard [log/slog] package
//   - Sentinel errors for the streaming and transport error taxonomy
//   - Transfer completion statuses shared by every HAL
//   - Component identifiers for log filtering
//
// # Logging
//
// The logging subsystem wraps [log/slog] with per-component context:
//
//	pkg.SetLogLevel(slog.LevelDebug)
//	pkg.LogInfo(pkg.ComponentPCM, "stream running", "slots", 8)
//
// # Errors
//
// Errors are sentinel values, wrapped with context where they are raised:
//
//	if errors.Is(err, pkg.ErrDeviceUnavailable) {
//	    // Close and reopen the stream
//	}
package pkg
