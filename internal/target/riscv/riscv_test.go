package riscv

import (
	"context"
	"testing"

	"github.com/sirupsen/logrus"

	"github.com/mcudbg/coredbg/internal/probe/wchlink"
	proto "github.com/mcudbg/coredbg/internal/probeproto/wchlink"
	"github.com/mcudbg/coredbg/internal/targetdesc"
)

type fakeTransport struct {
	responses [][]byte
	sent      [][]byte
	maxFrame  int
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

func (f *fakeTransport) ReadEvent(ctx context.Context) ([]byte, bool, error) { return nil, false, nil }
func (f *fakeTransport) MaxFrameSize() int                                  { return f.maxFrame }
func (f *fakeTransport) Close() error                                       { return nil }

func dmiResponse(regAddr byte, value uint32, status proto.DMIStatus) []byte {
	return []byte{regAddr, byte(value >> 24), byte(value >> 16), byte(value >> 8), byte(value), byte(status)}
}

func newTestDriver(ft *fakeTransport, flashBlockSize uint32) *Driver {
	probe := wchlink.New(ft, nil)
	log := logrus.NewEntry(logrus.New())
	td := &targetdesc.TargetDescriptor{}
	return NewDriver(probe, td, log, DefaultAbstractAccessTranslator{}, flashBlockSize, 0x01, 4)
}

// flashTestDriver is newTestDriver plus a flash segment covering
// [0, 0xFFFF] inclusive, so SetSoftwareBreakpoint/ClearSoftwareBreakpoint can
// resolve a flash segment for their WriteFlash calls.
func flashTestDriver(ft *fakeTransport, flashBlockSize uint32) *Driver {
	d := newTestDriver(ft, flashBlockSize)
	d.td = &targetdesc.TargetDescriptor{
		AddressSpaces: map[string]*targetdesc.AddressSpaceDescriptor{
			"mem": {
				Key:   "mem",
				Range: targetdesc.AddressRange{Start: 0, End: 0xFFFF},
				Segments: map[string]*targetdesc.MemorySegmentDescriptor{
					"flash": {
						Key:   "flash",
						Type:  targetdesc.SegmentFlash,
						Range: targetdesc.AddressRange{Start: 0, End: 0xFFFF},
					},
				},
			},
		},
	}
	return d
}

func TestAttachAppliesPostAttachQuirk(t *testing.T) {
	ft := &fakeTransport{
		maxFrame: 64,
		responses: [][]byte{
			{},                                  // SetClockSpeed
			{0x02, 0x08},                        // GetDeviceInfo (known firmware)
			{proto.TargetIDRequiresPostAttach},  // AttachTarget (first)
			{},                                  // PostAttach
			{0x01},                              // AttachTarget (second)
		},
	}
	d := newTestDriver(ft, 4096)
	if err := d.Attach(context.Background(), proto.Clock4000kHz); err != nil {
		t.Fatalf("Attach: %v", err)
	}
	if len(ft.sent) != 5 {
		t.Fatalf("expected 5 frames sent, got %d", len(ft.sent))
	}
	if d.cachedExecState != Stopped {
		t.Fatalf("cachedExecState = %v, want Stopped", d.cachedExecState)
	}
}

func TestAttachSkipsPostAttachWhenNotRequired(t *testing.T) {
	ft := &fakeTransport{
		maxFrame: 64,
		responses: [][]byte{
			{},           // SetClockSpeed
			{0x02, 0x08}, // GetDeviceInfo
			{0x01},       // AttachTarget
		},
	}
	d := newTestDriver(ft, 4096)
	if err := d.Attach(context.Background(), proto.Clock4000kHz); err != nil {
		t.Fatalf("Attach: %v", err)
	}
	if len(ft.sent) != 3 {
		t.Fatalf("expected 3 frames sent, got %d", len(ft.sent))
	}
}

func TestReadMemoryWordViaTranslator(t *testing.T) {
	ft := &fakeTransport{
		maxFrame: 64,
		responses: [][]byte{
			dmiResponse(regData1, 0, proto.DMISuccess),      // write addr
			dmiResponse(RegCommand, 0, proto.DMISuccess),    // issue abstract command
			dmiResponse(RegData0, 0xDEADBEEF, proto.DMISuccess), // read data0
		},
	}
	d := newTestDriver(ft, 4096)
	data, err := d.ReadMemory(context.Background(), 0x8000, 4)
	if err != nil {
		t.Fatalf("ReadMemory: %v", err)
	}
	want := []byte{0xEF, 0xBE, 0xAD, 0xDE}
	for i := range want {
		if data[i] != want[i] {
			t.Fatalf("data = %x, want %x", data, want)
		}
	}
}

func TestWriteFlashRejectsSegmentSpan(t *testing.T) {
	ft := &fakeTransport{maxFrame: 64}
	d := newTestDriver(ft, 4096)
	seg := &targetdesc.MemorySegmentDescriptor{
		Key:      "flash",
		Type:     targetdesc.SegmentFlash,
		Range:    targetdesc.AddressRange{Start: 0, End: 0xFFF},
		PageSize: 256,
	}
	err := d.WriteFlash(context.Background(), seg, 0xF00, make([]byte, 0x200))
	if err == nil {
		t.Fatalf("WriteFlash: expected error for a write spanning past the segment end")
	}
}

func TestWriteFlashPartialBlockPath(t *testing.T) {
	ft := &fakeTransport{
		maxFrame: 64,
		responses: [][]byte{
			dmiResponse(RegProgBuf0+0, 0, proto.DMISuccess),
			dmiResponse(RegProgBuf0+1, 0, proto.DMISuccess),
			dmiResponse(RegProgBuf0+2, 0, proto.DMISuccess),
			dmiResponse(RegProgBuf0+3, 0, proto.DMISuccess),
			{}, // PreparePartialFlashBlockWrite
			{0x00, 0x00, 0x00, 0x02}, // WriteDataPayload success
			dmiResponse(RegAbstractCS, 0, proto.DMISuccess), // abstractCommandError: none
		},
	}
	d := newTestDriver(ft, 4096)
	seg := &targetdesc.MemorySegmentDescriptor{
		Key:      "flash",
		Type:     targetdesc.SegmentFlash,
		Range:    targetdesc.AddressRange{Start: 0, End: 0xFFFF},
		PageSize: 256,
	}
	if err := d.WriteFlash(context.Background(), seg, 0x100, make([]byte, 16)); err != nil {
		t.Fatalf("WriteFlash: %v", err)
	}
}

// TestWriteFlashPartialBlockOddAddressReadModifyWrite writes a 2-byte
// c.ebreak opcode at an odd (non-16-bit-aligned) address, which must be
// serviced by a driver-side read-modify-write of the enclosing
// even-aligned word rather than rejected.
func TestWriteFlashPartialBlockOddAddressReadModifyWrite(t *testing.T) {
	ft := &fakeTransport{
		maxFrame: 64,
		responses: [][]byte{
			// ReadMemory of the enclosing aligned word [0x8000, 0x8004)
			dmiResponse(regData1, 0, proto.DMISuccess),
			dmiResponse(RegCommand, 0, proto.DMISuccess),
			dmiResponse(RegData0, 0x12345678, proto.DMISuccess),
			// partialBlockWrite over the expanded, aligned range
			dmiResponse(RegProgBuf0+0, 0, proto.DMISuccess),
			dmiResponse(RegProgBuf0+1, 0, proto.DMISuccess),
			dmiResponse(RegProgBuf0+2, 0, proto.DMISuccess),
			dmiResponse(RegProgBuf0+3, 0, proto.DMISuccess),
			{},                       // PreparePartialFlashBlockWrite
			{0x00, 0x00, 0x00, 0x02}, // WriteDataPayload success
			dmiResponse(RegAbstractCS, 0, proto.DMISuccess), // abstractCommandError: none
		},
	}
	d := newTestDriver(ft, 4096)
	seg := &targetdesc.MemorySegmentDescriptor{
		Key:      "flash",
		Type:     targetdesc.SegmentFlash,
		Range:    targetdesc.AddressRange{Start: 0, End: 0xFFFF},
		PageSize: 256,
	}
	if err := d.WriteFlash(context.Background(), seg, 0x8001, []byte{0x02, 0x90}); err != nil {
		t.Fatalf("WriteFlash: %v", err)
	}
}

func TestSetAndClearSoftwareBreakpoint4Byte(t *testing.T) {
	partialBlockWriteResponses := func() [][]byte {
		return [][]byte{
			dmiResponse(RegProgBuf0+0, 0, proto.DMISuccess),
			dmiResponse(RegProgBuf0+1, 0, proto.DMISuccess),
			dmiResponse(RegProgBuf0+2, 0, proto.DMISuccess),
			dmiResponse(RegProgBuf0+3, 0, proto.DMISuccess),
			{},                       // PreparePartialFlashBlockWrite
			{0x00, 0x00, 0x00, 0x02}, // WriteDataPayload success
			dmiResponse(RegAbstractCS, 0, proto.DMISuccess), // abstractCommandError: none
		}
	}
	ft := &fakeTransport{
		maxFrame: 64,
		responses: append(append([][]byte{
			// ReadMemory original instruction (one word)
			dmiResponse(regData1, 0, proto.DMISuccess),
			dmiResponse(RegCommand, 0, proto.DMISuccess),
			dmiResponse(RegData0, 0x12345678, proto.DMISuccess),
			// SetSoftwareBreakpoint: WriteFlash's partial block write path
		}, partialBlockWriteResponses()...),
			// ClearSoftwareBreakpoint: WriteFlash restores the original
			// instruction via the same partial block write path
			partialBlockWriteResponses()...),
	}
	d := flashTestDriver(ft, 4096)
	ctx := context.Background()
	if err := d.SetSoftwareBreakpoint(ctx, 0x8000, 4); err != nil {
		t.Fatalf("SetSoftwareBreakpoint: %v", err)
	}
	if d.swBreakpoints[0x8000] != 0x12345678 {
		t.Fatalf("swBreakpoints[0x8000] = %#x, want 0x12345678", d.swBreakpoints[0x8000])
	}
	if err := d.ClearSoftwareBreakpoint(ctx, 0x8000); err != nil {
		t.Fatalf("ClearSoftwareBreakpoint: %v", err)
	}
	if _, ok := d.swBreakpoints[0x8000]; ok {
		t.Fatalf("swBreakpoints[0x8000] still present after clear")
	}
}

func TestSetSoftwareBreakpointRejectsBadSize(t *testing.T) {
	d := newTestDriver(&fakeTransport{maxFrame: 64}, 4096)
	if err := d.SetSoftwareBreakpoint(context.Background(), 0x8000, 3); err == nil {
		t.Fatalf("SetSoftwareBreakpoint: expected error for size 3")
	}
}
