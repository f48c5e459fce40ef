// Package wchlink builds WCH-Link command frames and parses their
// responses. The package is stateless: it performs no I/O.
package wchlink

import (
	"encoding/binary"
	"fmt"
)

// frameHeader is the fixed leading byte of every WCH-Link command frame.
const frameHeader = 0x81

// Frame is a built WCH-Link command frame.
type Frame struct {
	CmdID   byte
	Payload []byte
}

// Encode serialises f: [0x81, cmd_id, payload_length, ...payload].
func (f Frame) Encode() []byte {
	out := make([]byte, 3+len(f.Payload))
	out[0] = frameHeader
	out[1] = f.CmdID
	out[2] = byte(len(f.Payload))
	copy(out[3:], f.Payload)
	return out
}

// Control command group (cmd_id 0x0D).
const cmdControl = 0x0D

const (
	controlGetDeviceInfo byte = 0x01
	controlAttachTarget  byte = 0x02
	controlPostAttach    byte = 0x03
	controlDetachTarget  byte = 0xFF
)

// GetDeviceInfo builds the GetDeviceInfo control frame.
func GetDeviceInfo() Frame { return Frame{CmdID: cmdControl, Payload: []byte{controlGetDeviceInfo}} }

// AttachTarget builds the AttachTarget control frame.
func AttachTarget() Frame { return Frame{CmdID: cmdControl, Payload: []byte{controlAttachTarget}} }

// PostAttach builds the PostAttach control frame, required after
// AttachTarget for targets whose attach returns target ID 0x09 before a
// second AttachTarget is trustworthy.
func PostAttach() Frame { return Frame{CmdID: cmdControl, Payload: []byte{controlPostAttach}} }

// DetachTarget builds the DetachTarget control frame.
func DetachTarget() Frame { return Frame{CmdID: cmdControl, Payload: []byte{controlDetachTarget}} }

// TargetID values returned by AttachTarget; 0x09 requires the
// PostAttach-then-reattach quirk described in spec §4.3.
const TargetIDRequiresPostAttach byte = 0x09

// ClockSpeed selects the WCH-Link target clock speed used by SetClockSpeed.
type ClockSpeed byte

const (
	Clock6000kHz ClockSpeed = 0x01
	Clock4000kHz ClockSpeed = 0x02
	Clock400kHz  ClockSpeed = 0x03
)

// SetClockSpeed builds the SetClockSpeed (0x0C) frame.
func SetClockSpeed(targetGroupID byte, speed ClockSpeed) Frame {
	return Frame{CmdID: 0x0C, Payload: []byte{targetGroupID, byte(speed)}}
}

// DMIOp selects the kind of Debug Module Interface operation.
type DMIOp byte

const (
	DMINone  DMIOp = 0x00
	DMIRead  DMIOp = 0x01
	DMIWrite DMIOp = 0x02
)

// DMIOperation builds a DMI Operation (0x08) frame.
func DMIOperation(regAddr byte, value uint32, op DMIOp) Frame {
	payload := make([]byte, 6)
	payload[0] = regAddr
	binary.BigEndian.PutUint32(payload[1:5], value)
	payload[5] = byte(op)
	return Frame{CmdID: 0x08, Payload: payload}
}

// SetFlashWriteRegion builds the SetFlashWriteRegion (0x01) frame.
func SetFlashWriteRegion(startAddress, bytes uint32) Frame {
	payload := make([]byte, 8)
	binary.BigEndian.PutUint32(payload[0:4], startAddress)
	binary.BigEndian.PutUint32(payload[4:8], bytes)
	return Frame{CmdID: 0x01, Payload: payload}
}

// Flash/program command group (cmd_id 0x02).
const cmdFlashProgram = 0x02

const (
	flashWriteFlash              byte = 0x02
	flashStartRamCodeWrite       byte = 0x05
	flashEndRamCodeWrite         byte = 0x07
	flashEndProgrammingSession   byte = 0x08
	flashEraseProgramMemory      byte = 0x01
)

// WriteFlash builds the WriteFlash (0x02/0x02) frame.
func WriteFlash() Frame { return Frame{CmdID: cmdFlashProgram, Payload: []byte{flashWriteFlash}} }

// StartRamCodeWrite builds the StartRamCodeWrite (0x02/0x05) frame.
func StartRamCodeWrite() Frame {
	return Frame{CmdID: cmdFlashProgram, Payload: []byte{flashStartRamCodeWrite}}
}

// EndRamCodeWrite builds the EndRamCodeWrite (0x02/0x07) frame.
func EndRamCodeWrite() Frame {
	return Frame{CmdID: cmdFlashProgram, Payload: []byte{flashEndRamCodeWrite}}
}

// EndProgrammingSession builds the EndProgrammingSession (0x02/0x08) frame.
func EndProgrammingSession() Frame {
	return Frame{CmdID: cmdFlashProgram, Payload: []byte{flashEndProgrammingSession}}
}

// EraseProgramMemory builds the EraseProgramMemory (0x02/0x01) frame.
func EraseProgramMemory() Frame {
	return Frame{CmdID: cmdFlashProgram, Payload: []byte{flashEraseProgramMemory}}
}

// PreparePartialFlashBlockWrite builds the PreparePartialFlashBlockWrite
// (0x0A) frame.
func PreparePartialFlashBlockWrite(startAddr uint32, length byte) Frame {
	payload := make([]byte, 5)
	binary.BigEndian.PutUint32(payload[0:4], startAddr)
	payload[4] = length
	return Frame{CmdID: 0x0A, Payload: payload}
}

func errShortResponse(what string, want, got int) error {
	return fmt.Errorf("wchlink: %s response too short: want at least %d bytes, got %d", what, want, got)
}
