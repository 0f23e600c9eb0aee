// Package logx configures desk-display's structured logging.
//
// This repo uses a small wrapper (logx.Logger) on top of zerolog to keep:
//   - Console output readable (short timestamp + short caller)
//   - File output JSON-structured
//   - Repeated failure lines throttled (Throttle) so a long outage
//     cannot flood the journal
package logx
