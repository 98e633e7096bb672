package vm

import (
	"github.com/filecoin-project/go-state-types/big"
	"github.com/filecoin-project/go-state-types/exitcode"

	"github.com/filecoin-project/venus-core/vm/gas"
)

// MessageReceipt is the durable, chain-visible record of one message's
// outcome (spec.md §4.H step 8).
type MessageReceipt struct {
	ExitCode exitcode.ExitCode
	Return   []byte
	GasUsed  int64
}

// ApplyRet is Env.ApplyMessage's full result: the receipt plus the two
// token movements the caller (the chain layer) must account for
// out-of-band, mirroring the teacher's vmcontext.Ret and the original's
// Env::Apply.
type ApplyRet struct {
	Receipt MessageReceipt
	Penalty big.Int
	Reward  big.Int
	Outputs gas.GasOutputs
}

func failureRet(code exitcode.ExitCode, penalty big.Int) *ApplyRet {
	return &ApplyRet{
		Receipt: MessageReceipt{ExitCode: code},
		Penalty: penalty,
		Reward:  big.Zero(),
		Outputs: gas.ZeroGasOutputs(),
	}
}
