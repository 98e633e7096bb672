package gas

import (
	"testing"

	"github.com/filecoin-project/go-state-types/big"
	"github.com/stretchr/testify/require"
)

func TestTrackerChargesWithinLimit(t *testing.T) {
	tr := NewTracker(1000)
	require.True(t, tr.TryCharge(newGasCharge("x", 100, 50)))
	require.Equal(t, Unit(150), tr.GasUsed)
}

func TestTrackerRejectsOverLimit(t *testing.T) {
	tr := NewTracker(100)
	require.False(t, tr.TryCharge(newGasCharge("x", 60, 60)))
	require.Equal(t, tr.GasAvailable, tr.GasUsed)
}

func TestChargePanicsOnOverLimit(t *testing.T) {
	tr := NewTracker(10)
	require.Panics(t, func() {
		tr.Charge(newGasCharge("x", 100, 0), "too much")
	})
}

func TestPricelistOnChainMessageScalesWithSize(t *testing.T) {
	pl := PricelistByEpoch(0)
	small := pl.OnChainMessage(10)
	large := pl.OnChainMessage(1000)
	require.Less(t, small.Total(), large.Total())
}

func TestComputeGasOutputsBaseFeeAboveFeeCapCapsAtFeeCap(t *testing.T) {
	out := ComputeGasOutputs(1000, 1000, big.NewInt(10), big.NewInt(5), big.NewInt(1))
	require.True(t, out.BaseFeeBurn.Equals(big.NewInt(5000)))
	require.True(t, out.MinerTip.IsZero())
}

func TestComputeGasOutputsRefundsUnusedPrepayment(t *testing.T) {
	out := ComputeGasOutputs(100, 100, big.NewInt(1), big.NewInt(10), big.NewInt(2))
	require.True(t, out.Refund.GreaterThanEqual(big.Zero()))
	prepaid := big.Mul(big.NewInt(10), big.NewInt(100))
	spent := big.Sum(out.BaseFeeBurn, out.MinerTip, out.OverEstimationBurn, out.Refund)
	require.True(t, prepaid.Equals(spent))
}

func TestComputeGasOutputsBurnsOverestimatedLimit(t *testing.T) {
	out := ComputeGasOutputs(100, 1000, big.NewInt(1), big.NewInt(10), big.NewInt(2))
	require.True(t, out.OverEstimationBurn.GreaterThan(big.Zero()))
}
