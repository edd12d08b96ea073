package statetrie

import "errors"

// errCorruptEncoding signals a node-store payload that cannot be parsed back
// into a node at all, as distinct from errors.Corruption (a hash mismatch on
// bytes that did parse).
var errCorruptEncoding = errors.New("statetrie: corrupt node encoding")
