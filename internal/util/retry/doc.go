// Package retry retries transient failures with exponential backoff.
//
// [WithExponentialBackoff] retries an operation up to a configurable number
// of times. Errors wrapped with [Fatal] stop the loop immediately. It guards
// SNS publishes, where throttling is the common failure.
package retry
