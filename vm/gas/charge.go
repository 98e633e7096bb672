package gas

// GasCharge is one individually-named gas deduction: a fixed compute cost
// plus a cost proportional to bytes touched, kept separate so a trace
// can attribute spend to the operation that caused it.
type GasCharge struct {
	Name       string
	ComputeGas Unit
	StorageGas Unit
}

// Total is the amount TryCharge/Charge actually deduct.
func (g GasCharge) Total() Unit { return g.ComputeGas + g.StorageGas }

func newGasCharge(name string, compute, storage Unit) GasCharge {
	return GasCharge{Name: name, ComputeGas: compute, StorageGas: storage}
}
