// Package logx wraps zerolog behind a small structured-logging API.
//
// Components receive a Logger value; the zero value is a safe no-op, which
// keeps tests quiet without nil checks. Loggers created from a Service stay
// live across Apply() calls, so log level and sink changes from a config
// reload take effect without re-plumbing loggers through the app.
package logx
