// Package log builds the slog loggers used across CyberBuddy.
//
// Every logger returned here wraps its text or JSON handler in a
// SecureHandler, which masks the bearer token, login passwords and
// Authorization headers before a record is written. Masking applies in
// verbose mode too.
//
//	logger := log.NewSecureLogger(os.Stderr, verbose)
//	slog.SetDefault(logger)
//	logger.Debug("login", "user", email, "password", pw) // password=***REDACTED***
package log
