package session

import (
	"context"
	"testing"

	"github.com/sirupsen/logrus"

	"github.com/mcudbg/coredbg/internal/coreerr"
	"github.com/mcudbg/coredbg/internal/rangestep"
	"github.com/mcudbg/coredbg/internal/rsp"
)

// fakeTarget is a scripted TargetDriver double recording every call for
// assertions, mirroring the fakeTransport/fakeTarget doubles used
// throughout internal/target and internal/rangestep.
type fakeTarget struct {
	calls []string
	mem   map[uint32]byte
	pc    uint32

	hwBreakpoints map[uint32]bool
	swBreakpoints map[uint32]bool

	readErr  error
	writeErr error
}

func newFakeTarget() *fakeTarget {
	return &fakeTarget{
		mem:           make(map[uint32]byte),
		hwBreakpoints: make(map[uint32]bool),
		swBreakpoints: make(map[uint32]bool),
	}
}

func (t *fakeTarget) Detach(ctx context.Context) error     { t.calls = append(t.calls, "detach"); return nil }
func (t *fakeTarget) Deactivate(ctx context.Context) error { t.calls = append(t.calls, "deactivate"); return nil }
func (t *fakeTarget) Run(ctx context.Context) error        { t.calls = append(t.calls, "run"); return nil }
func (t *fakeTarget) Stop(ctx context.Context) error        { t.calls = append(t.calls, "stop"); return nil }
func (t *fakeTarget) Step(ctx context.Context) error        { t.calls = append(t.calls, "step"); return nil }

func (t *fakeTarget) GetExecutionState(ctx context.Context) (ExecState, error) { return Stopped, nil }
func (t *fakeTarget) GetProgramCounter(ctx context.Context) (uint32, error)    { return t.pc, nil }
func (t *fakeTarget) SetProgramCounter(ctx context.Context, addr uint32) error { t.pc = addr; return nil }

func (t *fakeTarget) ReadMemory(ctx context.Context, addr uint32, n int) ([]byte, error) {
	if t.readErr != nil {
		return nil, t.readErr
	}
	out := make([]byte, n)
	for i := 0; i < n; i++ {
		out[i] = t.mem[addr+uint32(i)]
	}
	return out, nil
}

func (t *fakeTarget) WriteMemory(ctx context.Context, addr uint32, data []byte) error {
	if t.writeErr != nil {
		return t.writeErr
	}
	for i, b := range data {
		t.mem[addr+uint32(i)] = b
	}
	return nil
}

func (t *fakeTarget) SetHardwareBreakpoint(ctx context.Context, addr uint32) error {
	t.hwBreakpoints[addr] = true
	return nil
}
func (t *fakeTarget) ClearHardwareBreakpoint(ctx context.Context, addr uint32) error {
	delete(t.hwBreakpoints, addr)
	return nil
}
func (t *fakeTarget) SetSoftwareBreakpoint(ctx context.Context, addr uint32, size int) error {
	t.swBreakpoints[addr] = true
	return nil
}
func (t *fakeTarget) ClearSoftwareBreakpoint(ctx context.Context, addr uint32) error {
	delete(t.swBreakpoints, addr)
	return nil
}
func (t *fakeTarget) ClearAllBreakpoints(ctx context.Context) error {
	t.calls = append(t.calls, "clearAllBreakpoints")
	t.hwBreakpoints = make(map[uint32]bool)
	t.swBreakpoints = make(map[uint32]bool)
	return nil
}

func (t *fakeTarget) EnableProgrammingMode(ctx context.Context) error  { return nil }
func (t *fakeTarget) DisableProgrammingMode(ctx context.Context) error { return nil }

// fakeRegisters is a minimal 2-register layout (one 4-byte "pc"-like
// register at index 0, one 1-byte register at index 1).
type fakeRegisters struct {
	r0 [4]byte
	r1 [1]byte
}

func (r *fakeRegisters) Count() int { return 2 }
func (r *fakeRegisters) RegisterSize(index int) int {
	if index == 0 {
		return 4
	}
	return 1
}
func (r *fakeRegisters) ReadRegister(ctx context.Context, index int) ([]byte, error) {
	if index == 0 {
		out := make([]byte, 4)
		copy(out, r.r0[:])
		return out, nil
	}
	return []byte{r.r1[0]}, nil
}
func (r *fakeRegisters) WriteRegister(ctx context.Context, index int, data []byte) error {
	if index == 0 {
		copy(r.r0[:], data)
		return nil
	}
	r.r1[0] = data[0]
	return nil
}

func newTestSession(t *fakeTarget) *Session {
	return NewSession(t, &fakeRegisters{}, nil, rangestep.AddressRange{Start: 0, End: 0x8000}, logrus.NewEntry(logrus.New()))
}

func mustDecode(tb testing.TB, raw string) rsp.Packet {
	tb.Helper()
	pkt, err := rsp.Decode([]byte(raw))
	if err != nil {
		tb.Fatalf("Decode(%q): %v", raw, err)
	}
	return pkt
}

func TestHaltReasonReply(t *testing.T) {
	s := newTestSession(newFakeTarget())
	reply, err := s.dispatch(context.Background(), mustDecode(t, "$?#3f"))
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if string(reply) != string(rsp.Encode([]byte("S05"))) {
		t.Fatalf("reply = %q", reply)
	}
}

func TestReadMemoryRoundTrip(t *testing.T) {
	ft := newFakeTarget()
	ft.mem[0x100] = 0xAB
	ft.mem[0x101] = 0xCD
	s := newTestSession(ft)
	reply, err := s.dispatch(context.Background(), mustDecode(t, "$m100,2#5c"))
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	want := rsp.Encode([]byte("abcd"))
	if string(reply) != string(want) {
		t.Fatalf("reply = %q, want %q", reply, want)
	}
}

func TestWriteMemoryThenReadBack(t *testing.T) {
	ft := newFakeTarget()
	s := newTestSession(ft)
	if _, err := s.dispatch(context.Background(), mustDecode(t, "$M100,2:abcd#00")); err != nil {
		t.Fatalf("dispatch write: %v", err)
	}
	if ft.mem[0x100] != 0xAB || ft.mem[0x101] != 0xCD {
		t.Fatalf("mem = %+v", ft.mem)
	}
}

func TestSetAndClearHardwareBreakpoint(t *testing.T) {
	ft := newFakeTarget()
	s := newTestSession(ft)
	if _, err := s.dispatch(context.Background(), mustDecode(t, "$Z1,1000,2#d6")); err != nil {
		t.Fatalf("dispatch set: %v", err)
	}
	if !ft.hwBreakpoints[0x1000] {
		t.Fatalf("breakpoint not set")
	}
	if _, err := s.dispatch(context.Background(), mustDecode(t, "$z1,1000,2#f6")); err != nil {
		t.Fatalf("dispatch clear: %v", err)
	}
	if ft.hwBreakpoints[0x1000] {
		t.Fatalf("breakpoint not cleared")
	}
}

func TestVContRangeStepStartsEngine(t *testing.T) {
	ft := newFakeTarget()
	// A single NOP-like word (0x0000) between start and end, decoded as
	// non-flow-changing, so only the range end is intercepted.
	ft.mem[0x100] = 0x00
	ft.mem[0x101] = 0x00
	s := newTestSession(ft)
	args := []byte("vCont;r100,104")
	if _, err := s.dispatch(context.Background(), rsp.Packet{Raw: args}); err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if !s.rangeEngine.Active() {
		t.Fatalf("range-step engine did not start")
	}
	if !s.waitingForBreak {
		t.Fatalf("waitingForBreak = false, want true")
	}
}

func TestDispatchTranslatesOrdinaryErrorToE01(t *testing.T) {
	ft := newFakeTarget()
	ft.readErr = coreerr.NewTargetOperationFailure(0, "boom")
	s := newTestSession(ft)
	reply, err := s.dispatch(context.Background(), mustDecode(t, "$m100,2#5c"))
	if err != nil {
		t.Fatalf("dispatch should not propagate a TargetOperationFailure: %v", err)
	}
	if string(reply) != string(rsp.ErrorReply(0x01)) {
		t.Fatalf("reply = %q, want E01", reply)
	}
}

func TestDispatchPropagatesDeviceCommunicationFailure(t *testing.T) {
	ft := newFakeTarget()
	ft.readErr = coreerr.NewDeviceCommunicationFailure("usb link down")
	s := newTestSession(ft)
	_, err := s.dispatch(context.Background(), mustDecode(t, "$m100,2#5c"))
	if err == nil {
		t.Fatalf("dispatch: expected DeviceCommunicationFailure to propagate")
	}
}

func TestTeardownOrder(t *testing.T) {
	ft := newFakeTarget()
	s := newTestSession(ft)
	s.Teardown(context.Background())
	want := []string{"clearAllBreakpoints", "detach", "deactivate"}
	if len(ft.calls) != len(want) {
		t.Fatalf("calls = %v, want %v", ft.calls, want)
	}
	for i := range want {
		if ft.calls[i] != want[i] {
			t.Fatalf("calls[%d] = %q, want %q", i, ft.calls[i], want[i])
		}
	}
}
