package dispatch

import (
	"context"
	"testing"

	"github.com/filecoin-project/go-state-types/exitcode"
	"github.com/ipfs/go-cid"
	mh "github.com/multiformats/go-multihash"
	"github.com/stretchr/testify/require"

	"github.com/filecoin-project/venus-core/vmerrors"
)

type greetParams struct{ Name string }

type greetReturn struct{ Greeting string }

type fakeActor struct{ code cid.Cid }

func (a *fakeActor) Code() cid.Cid { return a.code }

func (a *fakeActor) Exports() []Method {
	return []Method{
		func(ctx context.Context, p *greetParams) (*greetReturn, error) {
			return &greetReturn{Greeting: "hello " + p.Name}, nil
		},
	}
}

func testCode(t *testing.T) cid.Cid {
	t.Helper()
	h, err := mh.Sum([]byte("fake-actor-code"), mh.SHA2_256, -1)
	require.NoError(t, err)
	return cid.NewCidV1(cid.Raw, h)
}

func TestDispatchInvokesMatchingMethod(t *testing.T) {
	actor := &fakeActor{code: testCode(t)}
	r := NewRegistry(actor)
	d, ok := r.Get(actor.Code())
	require.True(t, ok)

	params, err := encodeValue(&greetParams{Name: "alice"})
	require.NoError(t, err)

	_, code := d.Dispatch(context.Background(), 0, params)
	require.Equal(t, exitcode.Ok, code)
}

func TestDispatchRejectsOutOfRangeMethod(t *testing.T) {
	actor := &fakeActor{code: testCode(t)}
	d := NewDispatcher(actor)
	_, code := d.Dispatch(context.Background(), 5, nil)
	require.Equal(t, exitcode.SysErrInvalidMethod, code)
}

func TestRegistryGetMissingCode(t *testing.T) {
	r := NewRegistry()
	_, ok := r.Get(testCode(t))
	require.False(t, ok)
}

type abortingActor struct{ code cid.Cid }

func (a *abortingActor) Code() cid.Cid { return a.code }

func (a *abortingActor) Exports() []Method {
	return []Method{
		func(ctx context.Context, p *greetParams) (*greetReturn, error) {
			panic(vmerrors.Abort(exitcode.SysErrOutOfGas, "out of gas"))
		},
	}
}

func TestDispatchRecoversVmAbortAsExitCode(t *testing.T) {
	actor := &abortingActor{code: testCode(t)}
	d := NewDispatcher(actor)

	params, err := encodeValue(&greetParams{Name: "alice"})
	require.NoError(t, err)

	out, code := d.Dispatch(context.Background(), 0, params)
	require.Nil(t, out)
	require.Equal(t, exitcode.SysErrOutOfGas, code)
}

func TestDispatchDoesNotRecoverFatalError(t *testing.T) {
	actor := &abortingFatalActor{code: testCode(t)}
	d := NewDispatcher(actor)
	require.Panics(t, func() {
		d.Dispatch(context.Background(), 0, nil)
	})
}

type abortingFatalActor struct{ code cid.Cid }

func (a *abortingFatalActor) Code() cid.Cid { return a.code }

func (a *abortingFatalActor) Exports() []Method {
	return []Method{
		func(ctx context.Context) error {
			panic(vmerrors.Fatal(nil, "invariant violated"))
		},
	}
}
