// Package logx configures schedulerd's structured logging.
//
// This repo uses a small wrapper (logx.Logger) on top of zerolog to keep:
//   - Console output readable (short timestamp + short caller)
//   - File output JSON-structured
//   - Live sink swapping on config reload (Service.Apply)
package logx
