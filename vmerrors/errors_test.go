package vmerrors_test

import (
	"errors"
	"testing"

	"github.com/filecoin-project/go-state-types/exitcode"
	"github.com/stretchr/testify/require"

	"github.com/filecoin-project/venus-core/vmerrors"
)

func TestAbortRoundTripsExitCode(t *testing.T) {
	err := vmerrors.Abort(exitcode.ErrForbidden, "rejected")
	ab, ok := vmerrors.AsAbort(err)
	require.True(t, ok)
	require.Equal(t, exitcode.ErrForbidden, ab.ExitCode)
	require.Equal(t, exitcode.ErrForbidden, vmerrors.RetCode(err))
}

func TestRetCodeOkWhenNotAbort(t *testing.T) {
	require.Equal(t, exitcode.Ok, vmerrors.RetCode(vmerrors.NotFound("missing")))
}

func TestIsFatal(t *testing.T) {
	require.True(t, vmerrors.IsFatal(vmerrors.Fatal(errors.New("disk full"), "could not commit")))
	require.False(t, vmerrors.IsFatal(vmerrors.Inconsistent("bad root")))
}

func TestDecodeWrapsCause(t *testing.T) {
	cause := errors.New("unexpected EOF")
	err := vmerrors.Decode(cause, "decoding actor")
	require.ErrorIs(t, err, cause)
}
