package wchlink

import (
	"context"
	"testing"

	proto "github.com/mcudbg/coredbg/internal/probeproto/wchlink"
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

func TestDMIReadRetriesOnBusy(t *testing.T) {
	ft := &fakeTransport{
		maxFrame: 64,
		responses: [][]byte{
			{0x10, 0x00, 0x00, 0x00, 0x00, byte(proto.DMIBusy)},
			{0x10, 0x00, 0x00, 0x00, 0x00, byte(proto.DMIBusy)},
			{0x10, 0x00, 0x00, 0x00, 0x2A, byte(proto.DMISuccess)},
		},
	}
	p := New(ft, nil)
	val, err := p.DMIRead(context.Background(), 0x10)
	if err != nil {
		t.Fatalf("DMIRead: %v", err)
	}
	if val != 0x2A {
		t.Fatalf("val = %#x, want 0x2A", val)
	}
	if len(ft.sent) != 3 {
		t.Fatalf("expected 3 attempts, got %d", len(ft.sent))
	}
}

func TestDMIReadFailed(t *testing.T) {
	ft := &fakeTransport{
		maxFrame:  64,
		responses: [][]byte{{0x10, 0x00, 0x00, 0x00, 0x00, byte(proto.DMIFailed)}},
	}
	p := New(ft, nil)
	if _, err := p.DMIRead(context.Background(), 0x10); err == nil {
		t.Fatalf("DMIRead: expected error on FAILED status")
	}
}

func TestReattachSequenceWithPostAttachQuirk(t *testing.T) {
	ft := &fakeTransport{
		maxFrame: 64,
		responses: [][]byte{
			{}, // DetachTarget
			{0x02, 0x08}, // GetDeviceInfo
			{proto.TargetIDRequiresPostAttach}, // AttachTarget (first)
			{}, // PostAttach
			{0x01}, // AttachTarget (second, now trustworthy)
		},
	}
	p := New(ft, nil)
	if err := p.Reattach(context.Background()); err != nil {
		t.Fatalf("Reattach: %v", err)
	}
	if len(ft.sent) != 5 {
		t.Fatalf("expected 5 frames sent, got %d", len(ft.sent))
	}
}

func TestWriteDataPayloadSuccess(t *testing.T) {
	ft := &fakeTransport{maxFrame: 64, responses: [][]byte{{0x00, 0x00, 0x00, 0x02}}}
	p := New(ft, nil)
	ok, err := p.WriteDataPayload(context.Background(), make([]byte, 64))
	if err != nil {
		t.Fatalf("WriteDataPayload: %v", err)
	}
	if !ok {
		t.Fatalf("expected success")
	}
}
