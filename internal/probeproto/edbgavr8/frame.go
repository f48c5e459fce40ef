// Package edbgavr8 builds EDBG AVR8-Generic command frames and parses their
// responses. The package is stateless: it performs no I/O, it only encodes
// and decodes byte slices.
package edbgavr8

import (
	"encoding/binary"
	"fmt"
)

// Command identifies an AVR8-Generic sub-protocol command.
type Command byte

const (
	CmdSetParameter                 Command = 0x01
	CmdGetParameter                 Command = 0x02
	CmdActivatePhysical             Command = 0x10
	CmdDeactivatePhysical           Command = 0x11
	CmdGetDeviceId                  Command = 0x12
	CmdAttach                       Command = 0x13
	CmdDetach                       Command = 0x14
	CmdEnterProgrammingMode         Command = 0x15
	CmdLeaveProgrammingMode         Command = 0x16
	CmdDisableDebugWire             Command = 0x17
	CmdEraseMemory                  Command = 0x20
	CmdReadMemory                   Command = 0x21
	CmdReadMemoryMasked             Command = 0x22
	CmdWriteMemory                  Command = 0x23
	CmdStop                         Command = 0x31
	CmdRun                          Command = 0x32
	CmdRunTo                        Command = 0x33
	CmdStep                         Command = 0x34
	CmdGetProgramCounter            Command = 0x35
	CmdSetProgramCounter            Command = 0x36
	CmdSetHardwareBreakpoint        Command = 0x40
	CmdClearHardwareBreakpoint      Command = 0x41
	CmdSetSoftwareBreakpoints       Command = 0x43
	CmdClearSoftwareBreakpoints     Command = 0x44
	CmdClearAllSoftwareBreakpoints  Command = 0x45
)

// subProtocolID is the AVR8-Generic sub-protocol identifier carried in
// every frame built by this package.
const subProtocolID = 0x12

// version is the fixed protocol version byte following the command ID.
const version = 0x00

// avrCommandEnvelopeID is the outer byte that tells the probe to route this
// frame to its AVR command handler.
const avrCommandEnvelopeID = 0x0E

// Frame is a built command frame, ready to have a sequence number stamped
// on it and be sent to the probe.
type Frame struct {
	Command Command
	Payload []byte
}

// Encode serialises f into the wire bytes for sequence number seq:
// [0x0E, seqLo, seqHi, 0x12, commandID, 0x00, ...payload].
func (f Frame) Encode(seq uint16) []byte {
	out := make([]byte, 6+len(f.Payload))
	out[0] = avrCommandEnvelopeID
	binary.LittleEndian.PutUint16(out[1:3], seq)
	out[3] = subProtocolID
	out[4] = byte(f.Command)
	out[5] = version
	copy(out[6:], f.Payload)
	return out
}

// EraseMode selects the scope of an EraseMemory command.
type EraseMode byte

const (
	EraseChip              EraseMode = 0x00
	EraseApplicationSection EraseMode = 0x01
	EraseBootSection       EraseMode = 0x02
)

// MemoryType identifies the probe-level memory-access opcode used by
// ReadMemory/WriteMemory.
type MemoryType byte

const (
	MemSRAM            MemoryType = 0x20
	MemEEPROM          MemoryType = 0x22
	MemEEPROMPage      MemoryType = 0x23
	MemEEPROMAtomic    MemoryType = 0x25
	MemSPM             MemoryType = 0xA0
	MemFlashPage       MemoryType = 0xB0
	MemApplFlash       MemoryType = 0xC0
	MemBootFlash       MemoryType = 0xC1
	MemFuses           MemoryType = 0xB2
	MemRegisterFile    MemoryType = 0xB8
	MemUserSignatures  MemoryType = 0xC5
	MemSignatures      MemoryType = 0xB4
)

// StopMode selects whether Stop halts immediately or at the next symbol.
type StopMode byte

const (
	StopImmediate  StopMode = 0x01
	StopNextSymbol StopMode = 0x02
)

func putUint32LE(b []byte, v uint32) {
	binary.LittleEndian.PutUint32(b, v)
}

// SetParameter builds a SetParameter (0x01) frame.
func SetParameter(context, paramID byte, value []byte) Frame {
	payload := make([]byte, 3+len(value))
	payload[0] = context
	payload[1] = paramID
	payload[2] = byte(len(value))
	copy(payload[3:], value)
	return Frame{Command: CmdSetParameter, Payload: payload}
}

// GetParameter builds a GetParameter (0x02) frame.
func GetParameter(context, paramID, length byte) Frame {
	return Frame{Command: CmdGetParameter, Payload: []byte{context, paramID, length}}
}

// ActivatePhysical builds an ActivatePhysical (0x10) frame.
func ActivatePhysical(applyExternalReset bool) Frame {
	var b byte
	if applyExternalReset {
		b = 0x01
	}
	return Frame{Command: CmdActivatePhysical, Payload: []byte{b}}
}

// DeactivatePhysical builds a DeactivatePhysical (0x11) frame.
func DeactivatePhysical() Frame {
	return Frame{Command: CmdDeactivatePhysical}
}

// GetDeviceId builds a GetDeviceId (0x12) frame.
func GetDeviceId() Frame {
	return Frame{Command: CmdGetDeviceId}
}

// Attach builds an Attach (0x13) frame.
func Attach(breakAfterAttach bool) Frame {
	var b byte
	if breakAfterAttach {
		b = 0x01
	}
	return Frame{Command: CmdAttach, Payload: []byte{b}}
}

// Detach builds a Detach (0x14) frame.
func Detach() Frame {
	return Frame{Command: CmdDetach}
}

// EnterProgrammingMode builds an EnterProgrammingMode (0x15) frame.
func EnterProgrammingMode() Frame {
	return Frame{Command: CmdEnterProgrammingMode}
}

// LeaveProgrammingMode builds a LeaveProgrammingMode (0x16) frame.
func LeaveProgrammingMode() Frame {
	return Frame{Command: CmdLeaveProgrammingMode}
}

// DisableDebugWire builds a DisableDebugWire (0x17) frame.
func DisableDebugWire() Frame {
	return Frame{Command: CmdDisableDebugWire}
}

// EraseMemory builds an EraseMemory (0x20) frame.
func EraseMemory(mode EraseMode, startAddress uint32) Frame {
	payload := make([]byte, 5)
	payload[0] = byte(mode)
	putUint32LE(payload[1:], startAddress)
	return Frame{Command: CmdEraseMemory, Payload: payload}
}

// ReadMemory builds a ReadMemory (0x21) frame.
func ReadMemory(memType MemoryType, addr, bytes uint32) Frame {
	payload := make([]byte, 9)
	payload[0] = byte(memType)
	putUint32LE(payload[1:5], addr)
	putUint32LE(payload[5:9], bytes)
	return Frame{Command: CmdReadMemory, Payload: payload}
}

// ReadMemoryMasked builds a masked ReadMemory (0x22) frame. mask has one bit
// per requested byte; a set bit means "include this byte in the response."
func ReadMemoryMasked(memType MemoryType, addr, bytes uint32, mask []byte) Frame {
	payload := make([]byte, 9+len(mask))
	payload[0] = byte(memType)
	putUint32LE(payload[1:5], addr)
	putUint32LE(payload[5:9], bytes)
	copy(payload[9:], mask)
	return Frame{Command: CmdReadMemoryMasked, Payload: payload}
}

// WriteMemory builds a WriteMemory (0x23) frame.
func WriteMemory(memType MemoryType, addr uint32, data []byte) Frame {
	payload := make([]byte, 10+len(data))
	payload[0] = byte(memType)
	putUint32LE(payload[1:5], addr)
	putUint32LE(payload[5:9], uint32(len(data)))
	payload[9] = 0x00 // asyncFlag
	copy(payload[10:], data)
	return Frame{Command: CmdWriteMemory, Payload: payload}
}

// Stop builds a Stop (0x31) frame.
func Stop(mode StopMode) Frame {
	return Frame{Command: CmdStop, Payload: []byte{byte(mode)}}
}

// Run builds a Run (0x32) frame.
func Run() Frame {
	return Frame{Command: CmdRun}
}

// RunTo builds a RunTo (0x33) frame. byteAddress is the target's byte
// address; the wire frame carries the word address (byteAddress/2).
func RunTo(byteAddress uint32) Frame {
	payload := make([]byte, 4)
	putUint32LE(payload, byteAddress/2)
	return Frame{Command: CmdRunTo, Payload: payload}
}

// Step builds a Step (0x34) frame.
func Step() Frame {
	return Frame{Command: CmdStep, Payload: []byte{0x01, 0x01}}
}

// GetProgramCounter builds a GetProgramCounter (0x35) frame. The response
// carries the PC as a word address; the caller is responsible for the
// word-to-byte conversion.
func GetProgramCounter() Frame {
	return Frame{Command: CmdGetProgramCounter}
}

// SetProgramCounter builds a SetProgramCounter (0x36) frame. byteAddress is
// a caller-visible byte address; the wire frame carries the word address.
func SetProgramCounter(byteAddress uint32) Frame {
	payload := make([]byte, 4)
	putUint32LE(payload, byteAddress/2)
	return Frame{Command: CmdSetProgramCounter, Payload: payload}
}

// SetHardwareBreakpoint builds a SetHardwareBreakpoint (0x40) frame.
func SetHardwareBreakpoint(slot byte, byteAddress uint32) Frame {
	payload := make([]byte, 7)
	payload[0] = 0x01 // type
	payload[1] = slot
	putUint32LE(payload[2:6], byteAddress)
	payload[6] = 0x03 // mode
	return Frame{Command: CmdSetHardwareBreakpoint, Payload: payload}
}

// ClearHardwareBreakpoint builds a ClearHardwareBreakpoint (0x41) frame.
func ClearHardwareBreakpoint(slot byte) Frame {
	return Frame{Command: CmdClearHardwareBreakpoint, Payload: []byte{slot}}
}

func encodeAddressList(addrs []uint32) []byte {
	payload := make([]byte, 4*len(addrs))
	for i, a := range addrs {
		putUint32LE(payload[i*4:i*4+4], a)
	}
	return payload
}

// SetSoftwareBreakpoints builds a SetSoftwareBreakpoints (0x43) frame.
func SetSoftwareBreakpoints(addrs []uint32) Frame {
	return Frame{Command: CmdSetSoftwareBreakpoints, Payload: encodeAddressList(addrs)}
}

// ClearSoftwareBreakpoints builds a ClearSoftwareBreakpoints (0x44) frame.
func ClearSoftwareBreakpoints(addrs []uint32) Frame {
	return Frame{Command: CmdClearSoftwareBreakpoints, Payload: encodeAddressList(addrs)}
}

// ClearAllSoftwareBreakpoints builds a ClearAllSoftwareBreakpoints (0x45) frame.
func ClearAllSoftwareBreakpoints() Frame {
	return Frame{Command: CmdClearAllSoftwareBreakpoints}
}

// errShortResponse is returned by parsers when a response is too small to
// contain the fields it promises.
func errShortResponse(command string, want, got int) error {
	return fmt.Errorf("edbgavr8: %s response too short: want at least %d bytes, got %d", command, want, got)
}
