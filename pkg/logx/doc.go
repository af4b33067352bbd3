// Package logx configures aquabot's structured logging.
//
// It is a small wrapper (logx.Logger) on top of zerolog that keeps console
// output readable (short timestamp + short caller) and file output
// JSON-structured. The level and sinks can be swapped at runtime via
// Service.Apply, which config hot reload uses.
package logx
