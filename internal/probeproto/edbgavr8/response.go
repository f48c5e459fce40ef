package edbgavr8

import "encoding/binary"

// ResponseStatus is the first byte of every AVR8-Generic response.
type ResponseStatus byte

const (
	StatusOK     ResponseStatus = 0x80
	StatusFailed ResponseStatus = 0x81
	StatusList   ResponseStatus = 0x82 // multi-value response, e.g. GetParameter
	StatusData   ResponseStatus = 0x84 // data response, e.g. ReadMemory
	StatusPC     ResponseStatus = 0x83
	StatusEvent  ResponseStatus = 0x0E
)

// ParseGetParameter extracts the raw parameter value from a GetParameter
// response payload (the bytes after the status byte).
func ParseGetParameter(payload []byte) ([]byte, error) {
	if len(payload) < 1 {
		return nil, errShortResponse("GetParameter", 1, len(payload))
	}
	return payload[1:], nil
}

// ParseGetDeviceId extracts the 3-byte signature from a GetDeviceId
// response, or the literal ASCII bytes "AVR " on UPDI variants where the
// probe does not return a real signature over this command.
func ParseGetDeviceId(payload []byte) ([]byte, error) {
	if len(payload) < 4 {
		return nil, errShortResponse("GetDeviceId", 4, len(payload))
	}
	if len(payload) >= 5 && string(payload[1:5]) == "AVR " {
		return payload[1:5], nil
	}
	return payload[1:4], nil
}

// ParseGetProgramCounter extracts the PC as a word address from a
// GetProgramCounter response.
func ParseGetProgramCounter(payload []byte) (uint32, error) {
	if len(payload) < 5 {
		return 0, errShortResponse("GetProgramCounter", 5, len(payload))
	}
	return binary.LittleEndian.Uint32(payload[1:5]), nil
}

// ParseReadMemory extracts the data bytes from a ReadMemory (or masked
// ReadMemory) response.
func ParseReadMemory(payload []byte) ([]byte, error) {
	if len(payload) < 1 {
		return nil, errShortResponse("ReadMemory", 1, len(payload))
	}
	return payload[1:], nil
}

// ParseSetHardwareBreakpoint validates a SetHardwareBreakpoint response,
// which carries only a status byte.
func ParseSetHardwareBreakpoint(payload []byte) error {
	if len(payload) < 1 {
		return errShortResponse("SetHardwareBreakpoint", 1, len(payload))
	}
	return nil
}

// BreakCause identifies why an AVR8_BREAK_EVENT was raised.
type BreakCause byte

const (
	BreakCauseBreakpoint BreakCause = 0x01
	BreakCauseUnknown    BreakCause = 0xFF
)

// BreakEvent is a decoded out-of-band AVR8_BREAK_EVENT: program counter (in
// bytes; the wire carries a word address, already multiplied by 2 here) and
// the break cause.
type BreakEvent struct {
	PC    uint32
	Cause BreakCause
}

// ParseBreakEvent decodes an AVR8_BREAK_EVENT payload: PC as a word address
// in bytes 1-4 (little endian), break cause in byte 7.
func ParseBreakEvent(payload []byte) (BreakEvent, error) {
	if len(payload) < 8 {
		return BreakEvent{}, errShortResponse("AVR8_BREAK_EVENT", 8, len(payload))
	}
	wordPC := binary.LittleEndian.Uint32(payload[1:5])
	cause := BreakCauseUnknown
	if payload[7] == byte(BreakCauseBreakpoint) {
		cause = BreakCauseBreakpoint
	}
	return BreakEvent{PC: wordPC * 2, Cause: cause}, nil
}

// IsFailed reports whether the response's status byte indicates failure.
func IsFailed(payload []byte) bool {
	return len(payload) > 0 && ResponseStatus(payload[0]) == StatusFailed
}

// FailureCode extracts the vendor failure code from a FAILED response, if
// present (byte 1).
func FailureCode(payload []byte) int {
	if len(payload) < 2 {
		return -1
	}
	return int(payload[1])
}
