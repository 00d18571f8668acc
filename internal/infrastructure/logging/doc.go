// Package logging builds the bridge's structured logger on log/slog.
//
// Every entry carries service=atcbridge and the build version. Output goes
// to stdout or stderr as JSON (default) or logfmt-style text, and can be
// teed to a size-rotated file managed by lumberjack:
//
//	logging:
//	  level: info        # debug, info, warn, error
//	  format: json       # json, text
//	  output: stdout     # stdout, stderr
//	  file:
//	    path: /var/log/atcbridge.log
//	    max_size: 10     # MB
//	    max_backups: 3
//	    max_age: 28      # days
//	    compress: true
//
// Bindkeys and broker credentials must never be logged. Log whether a key
// is present instead:
//
//	log.Info("device configured", "device", id, "encrypted", key != "")
package logging
