package edbg

import (
	"context"
	"testing"

	"github.com/mcudbg/coredbg/internal/coreerr"
	"github.com/mcudbg/coredbg/internal/probeproto/edbgavr8"
)

// fakeTransport is a scripted Transport: each call to SendFrame pops the
// next response off the queue, ignoring the frame it was sent.
type fakeTransport struct {
	responses   [][]byte
	sent        [][]byte
	maxFrame    int
	eventsQueue [][]byte
}

func (f *fakeTransport) SendFrame(ctx context.Context, frame []byte) ([]byte, error) {
	f.sent = append(f.sent, frame)
	if len(f.responses) == 0 {
		panic("fakeTransport: no scripted response left")
	}
	resp := f.responses[0]
	f.responses = f.responses[1:]
	return resp, nil
}

func (f *fakeTransport) ReadEvent(ctx context.Context) ([]byte, bool, error) {
	if len(f.eventsQueue) == 0 {
		return nil, false, nil
	}
	ev := f.eventsQueue[0]
	f.eventsQueue = f.eventsQueue[1:]
	return ev, true, nil
}

func (f *fakeTransport) MaxFrameSize() int { return f.maxFrame }
func (f *fakeTransport) Close() error      { return nil }

func TestGetDeviceIdATtiny85(t *testing.T) {
	ft := &fakeTransport{
		maxFrame:  64,
		responses: [][]byte{{byte(edbgavr8.StatusOK), 0x1E, 0x93, 0x0B}},
	}
	p := New(ft)
	sig, err := p.GetDeviceId(context.Background())
	if err != nil {
		t.Fatalf("GetDeviceId: %v", err)
	}
	want := []byte{0x1E, 0x93, 0x0B}
	for i := range want {
		if sig[i] != want[i] {
			t.Fatalf("signature = % x, want % x", sig, want)
		}
	}
}

func TestReadMemoryChunksAcrossMaxChunkSize(t *testing.T) {
	ft := &fakeTransport{
		maxFrame: 64,
		responses: [][]byte{
			append([]byte{byte(edbgavr8.StatusData)}, make([]byte, 10)...),
			append([]byte{byte(edbgavr8.StatusData)}, make([]byte, 5)...),
		},
	}
	p := New(ft)
	data, err := p.ReadMemory(context.Background(), edbgavr8.MemSRAM, 0x00, 15, 10)
	if err != nil {
		t.Fatalf("ReadMemory: %v", err)
	}
	if len(data) != 15 {
		t.Fatalf("len(data) = %d, want 15", len(data))
	}
	if len(ft.sent) != 2 {
		t.Fatalf("expected 2 chunked requests, got %d", len(ft.sent))
	}
}

func TestSendAVR8TranslatesDebugWireFailure(t *testing.T) {
	ft := &fakeTransport{
		maxFrame:  64,
		responses: [][]byte{{byte(edbgavr8.StatusFailed), 0x10}},
	}
	p := New(ft)
	err := p.Activate(context.Background(), false)
	if err == nil {
		t.Fatalf("Activate: expected error")
	}
	var dwErr *coreerr.DebugWirePhysicalInterfaceError
	if !errorsAs(err, &dwErr) {
		t.Fatalf("Activate error = %v (%T), want *DebugWirePhysicalInterfaceError", err, err)
	}
}

func TestSendAVR8TranslatesOrdinaryFailure(t *testing.T) {
	ft := &fakeTransport{
		maxFrame:  64,
		responses: [][]byte{{byte(edbgavr8.StatusFailed), 0x15}},
	}
	p := New(ft)
	err := p.EraseMemory(context.Background(), edbgavr8.EraseChip, 0)
	if err == nil {
		t.Fatalf("EraseMemory: expected error")
	}
	var opErr *coreerr.TargetOperationFailure
	if !errorsAs(err, &opErr) {
		t.Fatalf("EraseMemory error = %v (%T), want *TargetOperationFailure", err, err)
	}
}

func TestPollBreakEvent(t *testing.T) {
	ev := make([]byte, 8)
	ev[1], ev[2], ev[3], ev[4] = 0x00, 0x00, 0x00, 0x00
	ev[7] = 0x01
	ft := &fakeTransport{maxFrame: 64, eventsQueue: [][]byte{ev}}
	p := New(ft)
	decoded, ok, err := p.PollBreakEvent(context.Background())
	if err != nil || !ok {
		t.Fatalf("PollBreakEvent: ok=%v err=%v", ok, err)
	}
	if decoded.Cause != edbgavr8.BreakCauseBreakpoint {
		t.Fatalf("Cause = %v, want BreakCauseBreakpoint", decoded.Cause)
	}
}

// errorsAs avoids importing errors.As's std-lib wrapping considerations
// this test doesn't need; these errors are never wrapped.
func errorsAs[T any](err error, target *T) bool {
	if v, ok := err.(T); ok {
		*target = v
		return true
	}
	return false
}
