// Package vm implements a toy virtual machine whose heap is reclaimed by a
// tracing mark-and-sweep collector.
//
// This package contains:
//   - Tagged values (Int and Pair) and generational object handles
//   - The heap arena and the explicit root stack
//   - Threshold-triggered mark-and-sweep collection
//   - Weak references with finalizers
//   - An inspector for debugging and CBOR heap images
package vm
