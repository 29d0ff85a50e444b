// Package flows contains the orchestration behind every Engine operation.
//
// Each Run* function takes a dependency struct of plain functions and returns
// a result carrying a FailureKind. The root package owns every resource, maps
// failure kinds onto its public errors and emits audit events and metrics;
// flows only decide what happens in which order.
//
// # What this package must NOT do
//
//   - Import the root package (import cycle).
//   - Hold state between calls.
//   - Perform I/O other than through its dependency functions.
package flows
