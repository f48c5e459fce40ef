package avr8

import (
	"context"
	"testing"

	"github.com/sirupsen/logrus"

	"github.com/mcudbg/coredbg/internal/probe/edbg"
	"github.com/mcudbg/coredbg/internal/probeproto/edbgavr8"
	"github.com/mcudbg/coredbg/internal/targetdesc"
)

func TestResolveConfigVariant(t *testing.T) {
	cases := []struct {
		family  Family
		iface   PhysicalInterface
		want    ConfigVariant
		wantOK  bool
	}{
		{FamilyMega, InterfaceJTAG, VariantMegaJTAG, true},
		{FamilyTiny, InterfaceDebugWire, VariantDebugWire, true},
		{FamilyMega, InterfaceUPDI, VariantUPDI, true},
		{FamilyXmega, InterfacePDI, VariantXmega, true},
		{FamilyDA, InterfaceUPDI, VariantUPDI, true},
		{FamilyXmega, InterfaceDebugWire, 0, false},
		{FamilyDA, InterfaceJTAG, 0, false},
	}
	for _, c := range cases {
		got, ok := ResolveConfigVariant(c.family, c.iface)
		if ok != c.wantOK || (ok && got != c.want) {
			t.Errorf("ResolveConfigVariant(%s, %s) = (%v, %v), want (%v, %v)", c.family, c.iface, got, ok, c.want, c.wantOK)
		}
	}
}

func TestAlignRange(t *testing.T) {
	addr, n := alignRange(0x105, 10, 0x100)
	if addr != 0x100 || n != 0x100 {
		t.Fatalf("alignRange = (%#x, %#x), want (0x100, 0x100)", addr, n)
	}

	addr, n = alignRange(0x200, 0x100, 0x100)
	if addr != 0x200 || n != 0x100 {
		t.Fatalf("alignRange (exact fit) = (%#x, %#x), want (0x200, 0x100)", addr, n)
	}
}

func TestFreeSlotAllocatesLowestAndRejectsWhenFull(t *testing.T) {
	d := &Driver{maxHWSlots: 2, hwBreakpoints: map[uint32]byte{}}
	slot, ok := d.freeSlot()
	if !ok || slot != 0 {
		t.Fatalf("freeSlot = (%d, %v), want (0, true)", slot, ok)
	}
	d.hwBreakpoints[0x100] = 0
	slot, ok = d.freeSlot()
	if !ok || slot != 1 {
		t.Fatalf("freeSlot = (%d, %v), want (1, true)", slot, ok)
	}
	d.hwBreakpoints[0x200] = 1
	if _, ok := d.freeSlot(); ok {
		t.Fatalf("freeSlot: expected no free slots")
	}
}

type fakeTransport struct {
	responses [][]byte
	sent      [][]byte
	maxFrame  int
	events    [][]byte
}

func (f *fakeTransport) SendFrame(ctx context.Context, frame []byte) ([]byte, error) {
	f.sent = append(f.sent, frame)
	resp := f.responses[0]
	f.responses = f.responses[1:]
	return resp, nil
}
func (f *fakeTransport) ReadEvent(ctx context.Context) ([]byte, bool, error) {
	if len(f.events) == 0 {
		return nil, false, nil
	}
	ev := f.events[0]
	f.events = f.events[1:]
	return ev, true, nil
}
func (f *fakeTransport) MaxFrameSize() int { return f.maxFrame }
func (f *fakeTransport) Close() error      { return nil }

func newTestDriver(t *testing.T, ft *fakeTransport) *Driver {
	t.Helper()
	td := &targetdesc.TargetDescriptor{
		AddressSpaces: map[string]*targetdesc.AddressSpaceDescriptor{
			"data": {
				Key:   "data",
				Range: targetdesc.AddressRange{Start: 0, End: 0xFFFF},
				Segments: map[string]*targetdesc.MemorySegmentDescriptor{
					"sram": {Key: "sram", Type: targetdesc.SegmentRAM, Range: targetdesc.AddressRange{Start: 0x100, End: 0xFFFF}},
				},
			},
		},
	}
	probe := edbg.New(ft)
	log := logrus.NewEntry(logrus.New())
	d := NewDriver(probe, td, log, 3)
	d.variant = VariantDebugWire
	return d
}

func TestReadMemoryDispatchesToSRAMForOrdinarySegment(t *testing.T) {
	ft := &fakeTransport{
		maxFrame:  64,
		responses: [][]byte{append([]byte{byte(edbgavr8.StatusData)}, make([]byte, 4)...)},
	}
	d := newTestDriver(t, ft)
	seg := d.td.AddressSpaces["data"].Segments["sram"]
	access := MemoryAccess{AddressSpace: d.td.AddressSpaces["data"], Segment: seg, StartAddr: 0x100}
	data, err := d.ReadMemory(context.Background(), access, 4, nil)
	if err != nil {
		t.Fatalf("ReadMemory: %v", err)
	}
	if len(data) != 4 {
		t.Fatalf("len(data) = %d, want 4", len(data))
	}
}

func TestProgrammingModeRejectsRAMAccess(t *testing.T) {
	ft := &fakeTransport{maxFrame: 64}
	d := newTestDriver(t, ft)
	d.programmingModeEnabled = true
	seg := d.td.AddressSpaces["data"].Segments["sram"]
	access := MemoryAccess{AddressSpace: d.td.AddressSpaces["data"], Segment: seg, StartAddr: 0x100}
	if err := d.WriteMemory(context.Background(), access, []byte{0x01}); err == nil {
		t.Fatalf("WriteMemory: expected error while in programming mode")
	}
}
