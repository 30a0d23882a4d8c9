// Package params owns the parameter data model and the Provider contract.
//
// Ownership boundary:
// - ParameterType tags, tagged Value union, Descriptor and ranges
// - Set-time constraint checks (read-only, type locking, range/step)
// - rcl_interfaces message layouts for values and descriptors
// - fixed-capacity request batches
//
// Parameter state itself lives behind Provider; nothing here is long-lived.
package params
