package decoder

import "errors"

// ErrNoPlausibleHeader names the case where neither the fast-path
// offsets nor the byte-by-byte fallback search locate a header that
// passes validation within the configured search window. The scanner
// (findHeader) reports that case with a false result and Decode
// advances past it; no function in this package returns this error.
var ErrNoPlausibleHeader = errors.New("decoder: no plausible message header found")

// errDecodeSkip names a per-radial or per-block validation failure
// (spec §7 DecodeSkip). It is never returned to callers of Decode, and
// no code path in this package returns it either: the parsers signal
// "drop this item, keep parsing" with an ok=false result, matching the
// continue-style policy inside parsing loops rather than exceptions.
var errDecodeSkip = errors.New("decoder: skip")
