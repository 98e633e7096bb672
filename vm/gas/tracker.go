package gas

import (
	"fmt"

	"github.com/filecoin-project/go-state-types/exitcode"

	"github.com/filecoin-project/venus-core/vmerrors"
)

// Tracker maintains gas usage across one message's execution, including
// any nested sends it makes; each Execution shares its caller's Tracker.
type Tracker struct {
	GasAvailable Unit
	GasUsed      Unit
}

// NewTracker initializes a Tracker with the given gas limit.
func NewTracker(limit Unit) *Tracker {
	return &Tracker{GasAvailable: limit}
}

// TryCharge deducts charge.Total(), returning false (and deducting
// nothing further than the available gas) if that would exceed
// GasAvailable.
func (t *Tracker) TryCharge(charge GasCharge) bool {
	toUse := charge.Total()
	if t.GasUsed > t.GasAvailable-toUse {
		t.GasUsed = t.GasAvailable
		return false
	}
	t.GasUsed += toUse
	return true
}

// Charge deducts charge.Total(), aborting with SysErrOutOfGas if that
// would exceed GasAvailable.
func (t *Tracker) Charge(charge GasCharge, msg string, args ...interface{}) {
	if t.TryCharge(charge) {
		return
	}
	detail := fmt.Sprintf(msg, args...)
	panic(vmerrors.Abort(exitcode.SysErrOutOfGas, "gas limit %d exceeded with charge of %d: %s", t.GasAvailable, charge.Total(), detail))
}
