package vm

import (
	"context"
	"testing"

	"github.com/filecoin-project/go-address"
	"github.com/filecoin-project/go-state-types/big"
	"github.com/filecoin-project/go-state-types/exitcode"
	"github.com/ipfs/go-cid"
	"github.com/stretchr/testify/require"

	"github.com/filecoin-project/venus-core/ipld"
	"github.com/filecoin-project/venus-core/state"
	"github.com/filecoin-project/venus-core/vm/builtin"
)

func mustIDAddr(t *testing.T, id uint64) address.Address {
	t.Helper()
	addr, err := address.NewIDAddress(id)
	require.NoError(t, err)
	return addr
}

// newTestEnv seeds a tree with the init actor, a funded sender account,
// and the reward/burnt-funds singletons, returning an Env ready to apply
// messages against.
func newTestEnv(t *testing.T, senderBalance big.Int) (*Env, address.Address) {
	t.Helper()
	ctx := context.Background()
	store := ipld.NewMemStore()
	tree := state.NewTree(store)

	require.NoError(t, tree.Set(ctx, mustIDAddr(t, builtin.InitActorID), &state.Actor{Head: cid.Undef}))
	require.NoError(t, tree.Set(ctx, builtin.RewardActorAddr, &state.Actor{Code: builtin.RewardCode, Balance: big.Zero()}))
	require.NoError(t, tree.Set(ctx, builtin.BurntFundsActorAddr, &state.Actor{Code: builtin.BurntFundsCode, Balance: big.Zero()}))

	senderPubkey, err := address.NewActorAddress([]byte("sender"))
	require.NoError(t, err)
	senderID, err := tree.RegisterNewAddress(ctx, senderPubkey)
	require.NoError(t, err)
	require.NoError(t, tree.Set(ctx, senderID, &state.Actor{Code: builtin.AccountCode, Balance: senderBalance}))

	env := NewEnv(store, tree, 1, big.NewInt(100), DefaultRegistry())
	return env, senderID
}

func TestApplyMessageChargesSuccessfulTransfer(t *testing.T) {
	ctx := context.Background()
	env, sender := newTestEnv(t, big.NewInt(1_000_000_000_000))

	recipientPubkey, err := address.NewActorAddress([]byte("recipient"))
	require.NoError(t, err)

	msg := &Message{
		From:       sender,
		To:         recipientPubkey,
		Nonce:      0,
		Value:      big.NewInt(1000),
		GasLimit:   50_000_000,
		GasFeeCap:  big.NewInt(200),
		GasPremium: big.NewInt(100),
		Method:     builtin.MethodSend,
	}
	ret, err := env.ApplyMessage(ctx, msg, 100)
	require.NoError(t, err)
	require.Equal(t, exitcode.Ok, ret.Receipt.ExitCode)

	recvID, err := env.State.LookupID(ctx, recipientPubkey)
	require.NoError(t, err)
	recvActor, err := env.State.Get(ctx, recvID)
	require.NoError(t, err)
	require.True(t, recvActor.Balance.Equals(big.NewInt(1000)))
}

func TestApplyMessageRejectsBadNonce(t *testing.T) {
	ctx := context.Background()
	env, sender := newTestEnv(t, big.NewInt(1_000_000_000_000))

	msg := &Message{
		From:       sender,
		To:         sender,
		Nonce:      7,
		Value:      big.Zero(),
		GasLimit:   1_000_000,
		GasFeeCap:  big.NewInt(200),
		GasPremium: big.NewInt(100),
		Method:     builtin.MethodSend,
	}
	ret, err := env.ApplyMessage(ctx, msg, 100)
	require.NoError(t, err)
	require.Equal(t, exitcode.SysErrSenderStateInvalid, ret.Receipt.ExitCode)
}

func TestApplyMessageRejectsInsufficientGasFunds(t *testing.T) {
	ctx := context.Background()
	env, sender := newTestEnv(t, big.NewInt(10))

	msg := &Message{
		From:       sender,
		To:         sender,
		Nonce:      0,
		Value:      big.Zero(),
		GasLimit:   1_000_000,
		GasFeeCap:  big.NewInt(200),
		GasPremium: big.NewInt(100),
		Method:     builtin.MethodSend,
	}
	ret, err := env.ApplyMessage(ctx, msg, 100)
	require.NoError(t, err)
	require.Equal(t, exitcode.SysErrSenderStateInvalid, ret.Receipt.ExitCode)
}

func TestApplyMessageSettlesGasConservation(t *testing.T) {
	ctx := context.Background()
	env, sender := newTestEnv(t, big.NewInt(1_000_000_000_000))

	before, err := env.State.Get(ctx, sender)
	require.NoError(t, err)

	msg := &Message{
		From:       sender,
		To:         sender,
		Nonce:      0,
		Value:      big.Zero(),
		GasLimit:   1_000_000,
		GasFeeCap:  big.NewInt(200),
		GasPremium: big.NewInt(100),
		Method:     builtin.MethodSend,
	}
	ret, err := env.ApplyMessage(ctx, msg, 100)
	require.NoError(t, err)
	require.Equal(t, exitcode.Ok, ret.Receipt.ExitCode)

	after, err := env.State.Get(ctx, sender)
	require.NoError(t, err)
	reward, err := env.State.Get(ctx, builtin.RewardActorAddr)
	require.NoError(t, err)
	burnt, err := env.State.Get(ctx, builtin.BurntFundsActorAddr)
	require.NoError(t, err)

	spent := big.Sub(before.Balance, after.Balance)
	moved := big.Sum(reward.Balance, burnt.Balance)
	require.True(t, spent.Equals(moved), "gas reserve must be fully accounted for")
}

func TestApplyImplicitMessageBypassesNonceCheck(t *testing.T) {
	ctx := context.Background()
	env, sender := newTestEnv(t, big.NewInt(1_000_000_000_000))

	receipt, err := env.ApplyImplicitMessage(ctx, &Message{
		From:   builtin.SystemActorAddr,
		To:     sender,
		Value:  big.Zero(),
		Method: builtin.MethodSend,
	})
	require.NoError(t, err)
	require.Equal(t, exitcode.Ok, receipt.ExitCode)
}
