package edbgavr8

import (
	"bytes"
	"testing"
)

func TestActivatePhysicalEncode(t *testing.T) {
	f := ActivatePhysical(true)
	got := f.Encode(1)
	want := []byte{0x0E, 0x01, 0x00, 0x12, 0x10, 0x00, 0x01}
	if !bytes.Equal(got, want) {
		t.Fatalf("Encode = % x, want % x", got, want)
	}
}

func TestRunToDividesByteAddressByTwo(t *testing.T) {
	f := RunTo(0x1000)
	// payload is the 4-byte LE word address = 0x1000/2 = 0x800
	want := []byte{0x00, 0x08, 0x00, 0x00}
	if !bytes.Equal(f.Payload, want) {
		t.Fatalf("RunTo payload = % x, want % x", f.Payload, want)
	}
}

func TestSetProgramCounterDividesByteAddressByTwo(t *testing.T) {
	f := SetProgramCounter(0x2000)
	want := []byte{0x00, 0x10, 0x00, 0x00}
	if !bytes.Equal(f.Payload, want) {
		t.Fatalf("SetProgramCounter payload = % x, want % x", f.Payload, want)
	}
}

func TestReadMemoryMaskedExcludesOCDDataRegister(t *testing.T) {
	// Scenario: readMemory(SRAM, 0x00, 64, {0x31}) should produce a mask
	// whose bit at offset 0x31 is zero and all other bits (within range)
	// are one.
	mask := BuildInclusionMask(0x00, 64, map[uint32]bool{0x31: true})
	if len(mask) != 8 {
		t.Fatalf("mask length = %d, want 8 (64 bits)", len(mask))
	}
	byteIdx := 0x31 / 8
	bitIdx := uint(0x31 % 8)
	if mask[byteIdx]&(1<<bitIdx) != 0 {
		t.Fatalf("expected bit for excluded address 0x31 to be clear, mask[%d] = %08b", byteIdx, mask[byteIdx])
	}
	// A non-excluded address, e.g. 0x00, should have its bit set.
	if mask[0]&(1<<0) == 0 {
		t.Fatalf("expected bit for address 0x00 to be set, mask[0] = %08b", mask[0])
	}
}

func TestReadMemoryEncodesCommandIDForMaskedRead(t *testing.T) {
	f := ReadMemoryMasked(MemSRAM, 0x00, 64, BuildInclusionMask(0x00, 64, map[uint32]bool{0x31: true}))
	if f.Command != CmdReadMemoryMasked {
		t.Fatalf("Command = %#x, want %#x (0x22)", f.Command, CmdReadMemoryMasked)
	}
}

func TestParseBreakEventMultipliesPCByTwo(t *testing.T) {
	// Word address 0x10 on the wire is byte address 0x20.
	payload := []byte{0x0E, 0x10, 0x00, 0x00, 0x00, 0x00, 0x00, 0x01}
	ev, err := ParseBreakEvent(payload)
	if err != nil {
		t.Fatalf("ParseBreakEvent: %v", err)
	}
	if ev.PC != 0x20 || ev.Cause != BreakCauseBreakpoint {
		t.Fatalf("ParseBreakEvent = %+v", ev)
	}
}

func TestParseGetDeviceIdScenario1(t *testing.T) {
	// ATtiny85 signature, as in end-to-end scenario 1 of the spec.
	payload := []byte{byte(StatusData), 0x1E, 0x93, 0x0B}
	sig, err := ParseGetDeviceId(payload)
	if err != nil {
		t.Fatalf("ParseGetDeviceId: %v", err)
	}
	want := []byte{0x1E, 0x93, 0x0B}
	if !bytes.Equal(sig, want) {
		t.Fatalf("signature = % x, want % x", sig, want)
	}
}
