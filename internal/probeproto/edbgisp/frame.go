// Package edbgisp builds EDBG AVR-ISP command frames, used for fuse/lock/
// signature access via in-system programming rather than debug-mode memory
// access. The package is stateless: it performs no I/O.
package edbgisp

import "fmt"

// Command identifies an AVR-ISP sub-protocol command.
type Command byte

const (
	CmdEnterProgrammingMode Command = 0x10
	CmdLeaveProgrammingMode Command = 0x11
	CmdProgramFuse          Command = 0x17
	CmdReadFuse             Command = 0x18
	CmdReadLock             Command = 0x1A
	CmdReadSignature        Command = 0x1B
)

// Frame is a built AVR-ISP command frame.
type Frame struct {
	Command Command
	Payload []byte
}

// subProtocolID is the AVR-ISP sub-protocol identifier.
const subProtocolID = 0x11

const avrCommandEnvelopeID = 0x0E
const version = 0x00

// Encode serialises f for sequence number seq, using the same outer AVR
// command envelope as the AVR8-Generic sub-protocol but tagged for ISP.
func (f Frame) Encode(seq uint16) []byte {
	out := make([]byte, 6+len(f.Payload))
	out[0] = avrCommandEnvelopeID
	out[1] = byte(seq)
	out[2] = byte(seq >> 8)
	out[3] = subProtocolID
	out[4] = byte(f.Command)
	out[5] = version
	copy(out[6:], f.Payload)
	return out
}

// FuseType selects which fuse byte a ProgramFuse/ReadFuse command targets.
type FuseType int

const (
	FuseLow FuseType = iota
	FuseHigh
	FuseExtended
)

// EnterProgrammingMode builds the ISP EnterProgrammingMode (0x10) frame.
// The timing parameters are probe/target specific; callers typically pull
// them from the TDF's isp_interface.* property group.
func EnterProgrammingMode(timeout, stabDelay, cmdExeDelay, syncLoops, byteDelay, pollValue, pollIndex byte) Frame {
	return Frame{
		Command: CmdEnterProgrammingMode,
		Payload: []byte{timeout, stabDelay, cmdExeDelay, syncLoops, byteDelay, pollValue, pollIndex, 0xAC, 0x53, 0x00, 0x00},
	}
}

// LeaveProgrammingMode builds the ISP LeaveProgrammingMode (0x11) frame.
func LeaveProgrammingMode(preDelay, postDelay byte) Frame {
	return Frame{Command: CmdLeaveProgrammingMode, Payload: []byte{preDelay, postDelay}}
}

// programIsp1Isp2 returns the two ISP instruction bytes that select a fuse
// type for program operations, per the vendor's ISP instruction set.
func programIsp1Isp2(t FuseType) (byte, byte) {
	switch t {
	case FuseLow:
		return 0xAC, 0xA0
	case FuseHigh:
		return 0xAC, 0xA8
	case FuseExtended:
		return 0xAC, 0xA4
	default:
		panic(fmt.Sprintf("edbgisp: unknown fuse type %d", t))
	}
}

func readIsp(t FuseType) []byte {
	switch t {
	case FuseLow:
		return []byte{0x50, 0x00}
	case FuseHigh:
		return []byte{0x58, 0x08}
	case FuseExtended:
		return []byte{0x50, 0x08}
	default:
		panic(fmt.Sprintf("edbgisp: unknown fuse type %d", t))
	}
}

// ProgramFuse builds the ISP ProgramFuse (0x17) frame.
func ProgramFuse(retAddr byte, fuseType FuseType, value byte) Frame {
	isp1, isp2 := programIsp1Isp2(fuseType)
	return Frame{Command: CmdProgramFuse, Payload: []byte{retAddr, isp1, isp2, 0x00, value}}
}

// ReadFuse builds the ISP ReadFuse (0x18) frame: retAddr followed by the
// four ISP instruction bytes (ISP1, ISP2 select the fuse type; ISP3, ISP4
// are clocked out to receive the fuse value).
func ReadFuse(retAddr byte, fuseType FuseType) Frame {
	isp := readIsp(fuseType)
	return Frame{Command: CmdReadFuse, Payload: []byte{retAddr, isp[0], isp[1], 0x00, 0x00}}
}

// ReadLock builds the ISP ReadLock (0x1A) frame.
func ReadLock(retAddr byte) Frame {
	return Frame{Command: CmdReadLock, Payload: []byte{retAddr, 0x58, 0x00, 0x00, 0x00}}
}

// ReadSignature builds the ISP ReadSignature (0x1B) frame for the given
// signature byte index (0, 1, or 2).
func ReadSignature(retAddr byte, signatureByteIndex byte) Frame {
	return Frame{Command: CmdReadSignature, Payload: []byte{retAddr, 0x30, 0x00, signatureByteIndex & 0x03, 0x00}}
}
