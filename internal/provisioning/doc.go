// Package provisioning provides shared types and interfaces for StackSet orchestration.
//
// # Subpackages
//
//   - monitor/: polls a StackSet operation until it settles or a budget runs out
//   - instances/: creates, lists, and deletes stack instances
//   - dispatch/: conflict-aware submission of provisioning requests with requeue
//   - registration/: ensure and teardown of the managed StackSet
//   - lifecycle/: turns seed lists and account lifecycle events into requests
//
// # Core Types
//
// Backend is the CloudFormation StackSet surface the orchestration needs.
// Publisher sends a Request back onto the SNS topic.
// Request is the wire payload exchanged over SNS.
// TargetSet is the de-duplicated set of (account, region) pairs.
//
// Nothing in these packages keeps state between invocations; CloudFormation
// itself is the source of truth.
package provisioning
