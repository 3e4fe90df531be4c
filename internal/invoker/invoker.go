// Package invoker drives a pooled wazero instance through the fixed
// guest ABI: writing method/path/headers/body into linear memory at
// fixed offsets, calling the exported "handle" function, and reading
// the response back out. Grounded on the teacher's wasm_integration_test.go
// call pattern (instantiate once, invoke repeatedly, check error per
// call) generalised from the teacher's ad-hoc Transform() to the
// spec's fixed-offset request/response slot layout.
package invoker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/tetratelabs/wazero/api"
)

// Slot offsets and default response capacity, fixed by the ABI.
const (
	MethodOffset     = 0
	PathOffset       = 256
	HeadersOffset    = 512
	BodyOffset       = 768
	ResponseOffset   = 1024
	DefaultRespCap   = 4096
	maxSlotLen       = 256 // capacity of each of the method, path and headers slots
)

// ErrGuestTrap is returned when the exported handle function traps or
// returns a negative/overflowing length.
var ErrGuestTrap = errors.New("invoker: guest trap")

// ErrTimeout is returned when the guest does not return within the
// function's declared deadline.
var ErrTimeout = errors.New("invoker: deadline exceeded")

// Request is the ingress-side view of one invocation.
type Request struct {
	Method  string
	Path    string
	Headers string // pre-encoded; the ABI does not prescribe a format beyond "bytes"
	Body    []byte
}

// Invoke writes req into mod's linear memory, calls its exported
// "handle" export, and reads back the response slot capped at
// respCap bytes. deadline bounds wall-clock time; an overrun is
// reported as ErrTimeout and the instance must not be returned to the
// pool by the caller.
func Invoke(ctx context.Context, mod api.Module, req Request, respCap int, deadline time.Duration) ([]byte, error) {
	if respCap <= 0 {
		respCap = DefaultRespCap
	}
	mem := mod.Memory()
	if mem == nil {
		return nil, fmt.Errorf("invoker: module has no exported memory")
	}

	methodLen, err := writeSlot(mem, MethodOffset, maxSlotLen, []byte(req.Method))
	if err != nil {
		return nil, err
	}
	pathLen, err := writeSlot(mem, PathOffset, maxSlotLen, []byte(req.Path))
	if err != nil {
		return nil, err
	}
	headersLen, err := writeSlot(mem, HeadersOffset, maxSlotLen, []byte(req.Headers))
	if err != nil {
		return nil, err
	}
	bodyLen, err := writeSlot(mem, BodyOffset, ResponseOffset-BodyOffset, req.Body)
	if err != nil {
		return nil, err
	}

	handle := mod.ExportedFunction("handle")
	if handle == nil {
		return nil, fmt.Errorf("invoker: module does not export handle")
	}

	type callResult struct {
		results []uint64
		err     error
	}
	done := make(chan callResult, 1)
	go func() {
		results, err := handle.Call(ctx,
			MethodOffset, uint64(methodLen),
			PathOffset, uint64(pathLen),
			HeadersOffset, uint64(headersLen),
			BodyOffset, uint64(bodyLen),
			ResponseOffset, uint64(respCap),
		)
		done <- callResult{results, err}
	}()

	select {
	case r := <-done:
		if r.err != nil {
			return nil, fmt.Errorf("%w: %v", ErrGuestTrap, r.err)
		}
		return readResponse(mem, r.results, respCap)
	case <-time.After(deadline):
		return nil, ErrTimeout
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func writeSlot(mem api.Memory, offset uint32, cap int, data []byte) (int, error) {
	if len(data) > cap {
		data = data[:cap]
	}
	if !mem.Write(offset, data) {
		return 0, fmt.Errorf("invoker: write out of memory bounds at offset %d", offset)
	}
	return len(data), nil
}

// readResponse interprets the guest's i32 return as response_len,
// capping it to respCap. A negative or overflowing length is treated
// as a guest trap per the ABI's "numeric truncation is an execution
// error" rule.
func readResponse(mem api.Memory, results []uint64, respCap int) ([]byte, error) {
	if len(results) != 1 {
		return nil, fmt.Errorf("%w: expected 1 result, got %d", ErrGuestTrap, len(results))
	}
	respLen := int32(results[0])
	if respLen < 0 {
		return nil, fmt.Errorf("%w: negative response_len", ErrGuestTrap)
	}
	n := int(respLen)
	if n > respCap {
		n = respCap
	}
	data, ok := mem.Read(ResponseOffset, uint32(n))
	if !ok {
		return nil, fmt.Errorf("%w: response read out of bounds", ErrGuestTrap)
	}
	out := make([]byte, n)
	copy(out, data)
	return out, nil
}
