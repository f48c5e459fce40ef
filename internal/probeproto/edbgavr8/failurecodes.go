package edbgavr8

// FailureReasons maps EDBG AVR8 FAILED response codes (0x10..0xFF) to a
// human-readable reason, per the vendor failure-code table. Codes not
// present here are reported with a generic "unknown failure code" message
// by FailureReason.
var FailureReasons = map[int]string{
	0x10: "debugWIRE physical interface error",
	0x11: "CRC mismatch",
	0x12: "target not found",
	0x13: "illegal target run state",
	0x14: "illegal target stopped state",
	0x15: "not a valid memory type",
	0x16: "too many bytes requested for this operation",
	0x17: "too few bytes requested for this operation",
	0x18: "badly aligned data for this operation",
	0x19: "read an illegal OCD status",
	0x1A: "NVM enable failed",
	0x1B: "NVM disable failed",
	0x20: "JTAGM init failed",
	0x21: "JTAGM command failed",
	0x30: "PDI enable failed",
	0x31: "PDI disable failed",
	0x40: "failed to enable on-chip debugging",
	0x41: "illegal target ID",
	0x42: "clock speed out of range",
	0x44: "failed to enable on-chip debugging (debugWIRE)",
}

// FailureReason returns a human-readable description of an EDBG failure
// code, falling back to a generic message for codes this table does not
// enumerate.
func FailureReason(code int) string {
	if reason, ok := FailureReasons[code]; ok {
		return reason
	}
	return "unknown failure code"
}
