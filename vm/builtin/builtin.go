// Package builtin implements exactly the actors the message applier's
// hooks require (spec.md §1 keeps actor business logic beyond those hooks
// out of scope, SPEC_FULL.md §11): account, init, reward, system and
// burntfunds. Shape is grounded on the teacher's
// internal/pkg/vm/actor/builtin/{account,initactor} packages; the
// well-known singleton ids below are the stable Filecoin network actor
// ids every implementation in the ecosystem agrees on (the teacher's own
// code references them by name — builtin.RewardActorAddr,
// builtin.BurntFundsActorAddr, builtin.SystemActorAddr — without the
// numeric values surviving in this retrieval pack).
package builtin

import (
	"github.com/filecoin-project/go-address"
	"github.com/ipfs/go-cid"

	"github.com/filecoin-project/venus-core/ipld"
)

// Well-known singleton actor ids.
const (
	SystemActorID     = 0
	InitActorID       = 1
	RewardActorID     = 2
	BurntFundsActorID = 99
)

func mustID(id uint64) address.Address {
	addr, err := address.NewIDAddress(id)
	if err != nil {
		panic(err)
	}
	return addr
}

// Well-known singleton actor addresses.
var (
	SystemActorAddr     = mustID(SystemActorID)
	InitActorAddr       = mustID(InitActorID)
	RewardActorAddr     = mustID(RewardActorID)
	BurntFundsActorAddr = mustID(BurntFundsActorID)
)

// MethodSend is the reserved method number that moves value between
// actors without invoking actor code. MethodConstructor is the method
// number every actor's Exports slot 1 answers to.
const (
	MethodSend        = 0
	MethodConstructor = 1
)

func codeCid(name string) cid.Cid {
	return ipld.NewRawCid([]byte("venus-core/actor/" + name))
}

// Well-known builtin actor code cids.
var (
	AccountCode    = codeCid("account")
	InitCode       = codeCid("init")
	RewardCode     = codeCid("reward")
	SystemCode     = codeCid("system")
	BurntFundsCode = codeCid("burntfunds")
)
