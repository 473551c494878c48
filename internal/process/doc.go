// Package process provides generic subprocess lifecycle management.
//
// This package is designed for managing long-running child processes like
// radio receiver daemons (rtl_433 and similar) that the telemetry pipeline
// depends on.
//
// Features:
//   - Start/stop subprocess with graceful shutdown
//   - Automatic restart on failure with exponential backoff
//   - Status reporting and restart accounting
//   - Log capture from subprocess stdout/stderr
//   - Context-based cancellation for clean shutdown
//
// Example usage:
//
//	mgr := process.NewManager(process.Config{
//	    Name:              "rtl_433",
//	    Binary:            "/usr/bin/rtl_433",
//	    Args:              []string{"-F", "mqtt://localhost:1883"},
//	    RestartOnFailure:  true,
//	    RestartDelay:      5 * time.Second,
//	    MaxRestartAttempts: 10,
//	})
//
//	if err := mgr.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer mgr.Stop()
package process
