// Package logx configures backupd's structured logging.
//
// A small wrapper (logx.Logger) on top of zerolog keeps:
//   - Console and text-file output in the operational line format
//     "<timestamp> - <LEVEL> - <message> key=value ..."
//   - Optional JSON file output
//   - Optional Telegram sink (min-level + rate limiting) for operator alerts
//
// Loggers are passed around as values; nothing in this package is consulted
// implicitly by other packages.
package logx
