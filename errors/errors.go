// Package errors defines the ledger core's error taxonomy. It replaces the
// teacher's NetworkErrorCode/NetworkError pair (a flat string-coded error for
// RPC-facing messages) with a small closed set of severity-ordered codes
// that map directly onto spec.md §7's propagation policy: recoverable
// outcomes are values callers can inspect, CodeCorruption is the sole
// process-fatal case.
package errors

import "fmt"

// Code is one of the severity bands from spec.md §7, in increasing order of
// severity. The numeric order IS the contract: Severity comparisons rely on
// it, matching spec.md §4.3's "ordered bands" requirement for apply-engine
// result codes.
type Code int

const (
	CodeLocal            Code = iota // caller-visible only, not logged beyond debug
	CodeMalformed                    // rejected at preflight; never queued, never broadcast
	CodeTransient                    // missing trie node, network unreachable; retried with backoff
	CodeRetry                        // sequence gap or unsatisfiable precondition; may be queued
	CodeClaimedFee                   // committed with fee taken, no other effect
	CodeInvariant                    // invariant violation forced a claimed-fee outcome; logged fatal, process continues
	CodeAmendmentBlocked             // node can't evaluate an enabled rule; keeps serving reads only
	CodeCorruption                   // bytes don't hash to their claimed key; process-fatal
)

func (c Code) String() string {
	switch c {
	case CodeLocal:
		return "local"
	case CodeMalformed:
		return "malformed"
	case CodeTransient:
		return "transient"
	case CodeRetry:
		return "retry"
	case CodeClaimedFee:
		return "claimed_fee"
	case CodeInvariant:
		return "invariant"
	case CodeAmendmentBlocked:
		return "amendment_blocked"
	case CodeCorruption:
		return "corruption"
	default:
		return "unknown"
	}
}

// LedgerError wraps a Code with context, satisfying the standard error
// interface and unwrap chain.
type LedgerError struct {
	Code Code
	Msg  string
	Err  error
}

func (e *LedgerError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Msg)
}

func (e *LedgerError) Unwrap() error { return e.Err }

// New constructs a LedgerError at the given code.
func New(code Code, msg string) error {
	return &LedgerError{Code: code, Msg: msg}
}

// Wrap attaches a code and message to an underlying error.
func Wrap(code Code, msg string, err error) error {
	return &LedgerError{Code: code, Msg: msg, Err: err}
}

// CodeOf extracts the Code from err if it is (or wraps) a *LedgerError,
// defaulting to CodeLocal otherwise.
func CodeOf(err error) Code {
	var le *LedgerError
	for err != nil {
		if e, ok := err.(*LedgerError); ok {
			le = e
			break
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			break
		}
		err = u.Unwrap()
	}
	if le == nil {
		return CodeLocal
	}
	return le.Code
}

// MissingNode signals a trie node absent from the local store: recoverable
// by fetching from a peer and retrying, per spec.md §4.1's failure semantics.
type MissingNode struct {
	Hash [32]byte
}

func (e *MissingNode) Error() string {
	return fmt.Sprintf("missing node %x", e.Hash)
}

// Corruption signals stored bytes that do not hash to their claimed key:
// fatal, per spec.md §4.1 and §7. Callers should halt rather than continue.
type Corruption struct {
	Hash [32]byte
}

func (e *Corruption) Error() string {
	return fmt.Sprintf("corrupt node: stored bytes do not hash to %x", e.Hash)
}
