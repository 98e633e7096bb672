// Package dispatch implements reflection-based method dispatch onto
// builtin actors (spec.md §9's actor-registry supplement): each actor
// exports a slice of Go methods indexed by method number, and a
// Dispatcher decodes CBOR params, invokes the matching method, and
// re-encodes its result.
package dispatch

import (
	"bytes"
	"context"
	"reflect"

	"github.com/filecoin-project/go-state-types/abi"
	"github.com/filecoin-project/go-state-types/exitcode"
	"github.com/ipfs/go-cid"
	cbor "github.com/ipfs/go-ipld-cbor"
	cbg "github.com/whyrusleeping/cbor-gen"

	"github.com/filecoin-project/venus-core/vmerrors"
)

// Method is the shape every exported actor method must have:
// func(ctx context.Context, params *P) (*R, error), where P and R are
// CBOR-(de)serializable. Either pointer may be nil to mean "no params"
// or "no return value".
type Method = interface{}

// Actor is the interface every builtin actor implements to be dispatched
// through a Registry.
type Actor interface {
	// Exports lists the actor's methods in method-number order; the
	// builtin actors leave index 0 (the plain value send) nil and put
	// their constructor at index 1.
	Exports() []Method
	// Code is the actor's code CID, the Registry's lookup key.
	Code() cid.Cid
}

// Dispatcher invokes one actor's exported methods by number.
type Dispatcher struct {
	actor Actor
}

// NewDispatcher wraps actor for reflection-based dispatch.
func NewDispatcher(actor Actor) *Dispatcher {
	return &Dispatcher{actor: actor}
}

// Dispatch decodes params (if any) into the target method's parameter
// type, invokes it, and re-encodes its return value. A method whose
// final return value is a non-nil error is reported as
// exitcode.ErrIllegalState; an out-of-range or nil method slot is
// exitcode.SysErrInvalidMethod; a params decode failure is
// exitcode.ErrSerialization.
//
// A method that panics with a *vmerrors.Error of KindVmAbort is reported
// as that error's exit code, matching the teacher's runtime.Abortf +
// panic/recover convention (pkg/vm/gas/gas_tracker.go's GasTracker.Charge
// panics the same way). Any other panic (including KindFatal) is not
// recovered here: it propagates up to Env.ApplyMessage's own recover,
// where a fatal abort surfaces as a Go error rather than a receipt.
func (d *Dispatcher) Dispatch(ctx context.Context, method abi.MethodNum, params []byte) (out []byte, ec exitcode.ExitCode) {
	exports := d.actor.Exports()
	idx := uint64(method)
	if idx >= uint64(len(exports)) || exports[idx] == nil {
		return nil, exitcode.SysErrInvalidMethod
	}

	fn := reflect.ValueOf(exports[idx])
	ft := fn.Type()
	args := []reflect.Value{reflect.ValueOf(ctx)}

	if ft.NumIn() > 1 {
		paramType := ft.In(1)
		paramVal := reflect.New(paramType.Elem())
		if len(params) > 0 {
			if err := decodeInto(params, paramVal.Interface()); err != nil {
				return nil, exitcode.ErrSerialization
			}
		}
		args = append(args, paramVal)
	}

	defer func() {
		if r := recover(); r != nil {
			if abortErr, ok := r.(*vmerrors.Error); ok && abortErr.Kind == vmerrors.KindVmAbort {
				out, ec = nil, abortErr.ExitCode
				return
			}
			panic(r)
		}
	}()

	return d.dispatch(args, fn)
}

func (d *Dispatcher) dispatch(args []reflect.Value, fn reflect.Value) ([]byte, exitcode.ExitCode) {
	out := fn.Call(args)
	if len(out) == 0 {
		return nil, exitcode.Ok
	}

	last := out[len(out)-1]
	if !last.IsNil() {
		return nil, exitcode.ErrIllegalState
	}

	if len(out) == 1 {
		return nil, exitcode.Ok
	}

	ret := out[0]
	if ret.IsNil() {
		return nil, exitcode.Ok
	}
	data, err := encodeValue(ret.Interface())
	if err != nil {
		return nil, exitcode.ErrSerialization
	}
	return data, exitcode.Ok
}

func decodeInto(raw []byte, out interface{}) error {
	if um, ok := out.(cbg.CBORUnmarshaler); ok {
		return um.UnmarshalCBOR(bytes.NewReader(raw))
	}
	return cbor.DecodeInto(raw, out)
}

func encodeValue(val interface{}) ([]byte, error) {
	if m, ok := val.(cbg.CBORMarshaler); ok {
		buf := new(bytes.Buffer)
		if err := m.MarshalCBOR(buf); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	}
	return cbor.DumpObject(val)
}

// Registry maps an actor's code CID to its Dispatcher, populated once at
// construction from the compiled-in builtin set (spec.md §9).
type Registry struct {
	byCode map[cid.Cid]*Dispatcher
}

// NewRegistry builds a Registry from a fixed set of actors.
func NewRegistry(actors ...Actor) *Registry {
	r := &Registry{byCode: make(map[cid.Cid]*Dispatcher, len(actors))}
	for _, a := range actors {
		r.byCode[a.Code()] = NewDispatcher(a)
	}
	return r
}

// Get returns the Dispatcher for a code CID, if any builtin actor was
// registered under it.
func (r *Registry) Get(code cid.Cid) (*Dispatcher, bool) {
	d, ok := r.byCode[code]
	return d, ok
}
