package avropcode

import "testing"

func word(lo, hi byte) uint16 { return uint16(lo) | uint16(hi)<<8 }

func TestDecodeRJMPForward(t *testing.T) {
	words := []uint16{0xC001} // RJMP +1
	insn := Decode(words, 0, 0x100)
	if !insn.CanChangeProgramFlow || insn.SizeWords != 1 {
		t.Fatalf("unexpected decode: %+v", insn)
	}
	if insn.DestinationAddress == nil || *insn.DestinationAddress != 0x104 {
		t.Fatalf("destination = %v, want 0x104", insn.DestinationAddress)
	}
}

func TestDecodeRJMPBackward(t *testing.T) {
	// RJMP -1 (0xFFF as 12-bit two's complement): jumps back to its own
	// address, an infinite-loop idiom.
	words := []uint16{0xCFFF}
	insn := Decode(words, 0, 0x100)
	if insn.DestinationAddress == nil || *insn.DestinationAddress != 0x100 {
		t.Fatalf("destination = %v, want 0x100", insn.DestinationAddress)
	}
}

func TestDecodeJMPAbsolute(t *testing.T) {
	// JMP 0x000200 (word address), encoded across two words.
	words := []uint16{0x940C, 0x0200}
	insn := Decode(words, 0, 0x0)
	if insn.SizeWords != 2 {
		t.Fatalf("SizeWords = %d, want 2", insn.SizeWords)
	}
	if insn.DestinationAddress == nil || *insn.DestinationAddress != 0x400 {
		t.Fatalf("destination = %#x, want 0x400", *insn.DestinationAddress)
	}
}

func TestDecodeIJMPHasNoDestination(t *testing.T) {
	insn := Decode([]uint16{0x9409}, 0, 0)
	if !insn.CanChangeProgramFlow || insn.DestinationAddress != nil {
		t.Fatalf("unexpected decode: %+v", insn)
	}
}

func TestDecodeRETHasNoDestination(t *testing.T) {
	insn := Decode([]uint16{0x9508}, 0, 0)
	if !insn.CanChangeProgramFlow || insn.DestinationAddress != nil {
		t.Fatalf("unexpected decode: %+v", insn)
	}
}

func TestDecodeNOPIsNotFlowChanging(t *testing.T) {
	insn := Decode([]uint16{0x0000}, 0, 0)
	if insn.CanChangeProgramFlow {
		t.Fatalf("NOP decoded as flow-changing")
	}
}

func TestDecodeSBRCIsFlowChanging(t *testing.T) {
	// SBRC r0, 0: 1111 1100 0000 0000
	insn := Decode([]uint16{0xFC00}, 0, 0)
	if !insn.CanChangeProgramFlow {
		t.Fatalf("SBRC not decoded as flow-changing")
	}
}
