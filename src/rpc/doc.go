// Package rpc implements the ClearNode wire format.
//
// Outbound requests are JSON objects of the form
//
//	{"req":[requestId,"method",[params],timestamp],"sig":["0x..."]}
//
// where each signature covers keccak256 of the exact bytes of the req array.
// The req array is encoded canonically (sorted object keys) so that it can be
// re-encoded identically.
//
// Inbound frames use the same shape with "res" in place of "req". Frames in
// the flat {"method":...,"params":...} form are accepted as well. Numeric and
// date fields in results are normalized to strings so callers never depend on
// the broker's number formatting.
package rpc
