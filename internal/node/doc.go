// Package node owns the identity of a parameter-serving node and the
// services it declares: key expressions, per-service reply buffers, rmw
// attachments and the small result-code set used during bring-up.
package node
