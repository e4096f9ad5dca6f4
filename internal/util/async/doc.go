// Package async runs independent tasks concurrently and joins them.
//
// [RunParallel] starts every task at once, waits for all of them, and
// reports every failure. The dispatcher uses it to run one conflict
// check per StackSet named in a batch message.
package async
