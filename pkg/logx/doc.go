// Package logx is medbot's structured logging.
//
// A small Logger value wraps zerolog so call sites stay terse:
//   - console output is human readable (short timestamp and caller)
//   - file output is JSON
//   - an optional chat sink forwards WARN and above to an operator chat,
//     rate limited and never blocking the caller
package logx
