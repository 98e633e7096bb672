package gas

import "github.com/filecoin-project/go-state-types/big"

// GasOutputs is the settlement of one message's gas spend (spec.md §4.H
// step 7): how much of the sender's prepaid gas went to the base-fee
// burn, how much to the miner's tip, how much was burned back for
// overestimating the gas limit, and how much of the prepayment is
// refunded.
type GasOutputs struct {
	BaseFeeBurn        big.Int
	MinerTip           big.Int
	OverEstimationBurn big.Int
	Refund             big.Int
}

// ZeroGasOutputs is the settlement of a message that never ran (the
// sender was invalid, or the message never got far enough to spend gas).
func ZeroGasOutputs() GasOutputs {
	return GasOutputs{
		BaseFeeBurn:        big.Zero(),
		MinerTip:           big.Zero(),
		OverEstimationBurn: big.Zero(),
		Refund:             big.Zero(),
	}
}

// gasOveruseNum/gasOveruseDen: a sender may set GasLimit up to 1.1x actual
// usage before part of the excess is burned rather than refunded.
const gasOveruseNum = int64(11)
const gasOveruseDen = int64(10)

// ComputeGasOutputs implements the settlement step: the base fee is paid
// up to feeCap (never more, even if the network base fee is higher) per
// unit of gas used; the miner's tip, per unit of gas limit, is the lesser
// of gasPremium and whatever headroom remains under feeCap once the base
// fee is paid; with over = GasLimit - 1.1*GasUsed, when over >= 0 a further
// (GasLimit-GasUsed)*min(GasUsed, over)/GasUsed units of gas are burned at
// the paid base fee instead of refunded; whatever of the prepaid gas limit
// remains after burn and tip is refunded to the sender.
func ComputeGasOutputs(gasUsed, gasLimit int64, baseFee, feeCap, gasPremium big.Int) GasOutputs {
	out := ZeroGasOutputs()
	if gasUsed == 0 {
		out.Refund = big.Mul(feeCap, big.NewInt(gasLimit))
		return out
	}

	baseFeeToPay := baseFee
	if baseFee.GreaterThan(feeCap) {
		baseFeeToPay = feeCap
	}
	out.BaseFeeBurn = big.Mul(baseFeeToPay, big.NewInt(gasUsed))

	minerTip := gasPremium
	headroom := big.Sub(feeCap, baseFeeToPay)
	if headroom.LessThan(minerTip) {
		minerTip = headroom
	}
	if minerTip.LessThan(big.Zero()) {
		minerTip = big.Zero()
	}
	out.MinerTip = big.Mul(minerTip, big.NewInt(gasLimit))

	over := gasLimit - gasUsed*gasOveruseNum/gasOveruseDen
	if over >= 0 {
		if over > gasUsed {
			over = gasUsed
		}
		overBurnUnits := big.Div(big.Mul(big.NewInt(gasLimit-gasUsed), big.NewInt(over)), big.NewInt(gasUsed))
		out.OverEstimationBurn = big.Mul(baseFeeToPay, overBurnUnits)
	}

	spent := big.Sum(out.BaseFeeBurn, out.MinerTip, out.OverEstimationBurn)
	prepaid := big.Mul(feeCap, big.NewInt(gasLimit))
	out.Refund = big.Sub(prepaid, spent)
	if out.Refund.LessThan(big.Zero()) {
		out.Refund = big.Zero()
	}
	return out
}
