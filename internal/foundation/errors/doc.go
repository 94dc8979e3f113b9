// Package errors provides foundational, type-safe error primitives used across packd.
//
// This package contains classified error types and helpers for robust error handling,
// including a fluent builder API for constructing ClassifiedError values with context.
//
// Key features:
//   - ErrorCategory: Broad error classification (validation, network, build, timeout, etc.)
//   - ErrorSeverity: Impact level (fatal, error, warning, info)
//   - RetryStrategy: Retry behavior (never, immediate, backoff)
//   - ClassifiedError: Structured error with category, severity, and context
//   - ErrorBuilder: Fluent API for creating classified errors
//   - HTTP and CLI adapters for error presentation
//
// Example usage:
//
//	err := errors.NewError(errors.CategoryNetwork, "registry request failed").
//		WithSeverity(errors.SeverityError).
//		Retryable().
//		WithContext("package", name).
//		Build()
//
// Sentinel errors declared by other packages are plain ClassifiedError values;
// errors.Is matches any error of the same category and message, so a sentinel
// enriched with WithContext still compares equal to its declaration.
package errors
