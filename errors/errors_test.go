package errors

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCodeOfUnwrapsWrappedChain(t *testing.T) {
	base := New(CodeRetry, "sequence gap")
	wrapped := Wrap(CodeTransient, "fetching node", base)

	require.Equal(t, CodeTransient, CodeOf(wrapped))
}

func TestCodeOfDefaultsToLocalForPlainErrors(t *testing.T) {
	assert.Equal(t, CodeLocal, CodeOf(nil))
}

func TestSeverityOrderingMatchesDeclarationOrder(t *testing.T) {
	assert.True(t, CodeMalformed > CodeLocal)
	assert.True(t, CodeCorruption > CodeInvariant)
	assert.True(t, CodeClaimedFee > CodeRetry)
}

func TestLedgerErrorMessageIncludesWrappedError(t *testing.T) {
	inner := New(CodeMalformed, "bad signature")
	outer := Wrap(CodeRetry, "preflight failed", inner)
	require.Error(t, outer)
	assert.Contains(t, outer.Error(), "bad signature")
	assert.Contains(t, outer.Error(), "preflight failed")
}
