// Package coreerr defines the error kinds shared by the probe, target
// driver, and debug session layers.
package coreerr

import "fmt"

// ConfigurationError reports invalid user input: an unknown physical
// interface, an inconsistent target selection, a flash write that spans
// segments, and similar. Activation aborts on this error.
type ConfigurationError struct {
	Reason string
}

func (e *ConfigurationError) Error() string {
	return "configuration error: " + e.Reason
}

func NewConfigurationError(format string, args ...interface{}) *ConfigurationError {
	return &ConfigurationError{Reason: fmt.Sprintf(format, args...)}
}

// DeviceCommunicationFailure reports unexpected USB framing or an unexpected
// response size. It is typically fatal for the session.
type DeviceCommunicationFailure struct {
	Reason string
}

func (e *DeviceCommunicationFailure) Error() string {
	return "device communication failure: " + e.Reason
}

func NewDeviceCommunicationFailure(format string, args ...interface{}) *DeviceCommunicationFailure {
	return &DeviceCommunicationFailure{Reason: fmt.Sprintf(format, args...)}
}

// TargetOperationFailure reports that the probe itself rejected a command:
// an EDBG FAILED response, an ISP non-OK status, or a DMI FAILED status.
// Code is the vendor-specific failure code, if any, for callers that want it.
type TargetOperationFailure struct {
	Reason string
	Code   int
}

func (e *TargetOperationFailure) Error() string {
	return "target operation failed: " + e.Reason
}

func NewTargetOperationFailure(code int, reason string) *TargetOperationFailure {
	return &TargetOperationFailure{Reason: reason, Code: code}
}

// DebugWirePhysicalInterfaceError is a distinguished TargetOperationFailure
// raised only when activation fails on debugWIRE with failure code 0x10 or
// 0x44. It carries remediation advice for the user.
type DebugWirePhysicalInterfaceError struct {
	*TargetOperationFailure
}

func (e *DebugWirePhysicalInterfaceError) Error() string {
	return e.Reason + " - check the target connection and try cycling power to the target"
}

func NewDebugWirePhysicalInterfaceError(code int, reason string) *DebugWirePhysicalInterfaceError {
	return &DebugWirePhysicalInterfaceError{
		TargetOperationFailure: &TargetOperationFailure{Reason: reason, Code: code},
	}
}

// IsDebugWireActivationFailureCode reports whether code is one of the two
// EDBG failure codes that should be surfaced as a
// DebugWirePhysicalInterfaceError when seen during debugWIRE activation.
func IsDebugWireActivationFailureCode(code int) bool {
	return code == 0x10 || code == 0x44
}

// InternalFatalError reports an invariant violation: a register missing
// from the TDF, an impossible memory-type dispatch branch, and similar
// conditions that indicate a bug rather than a target or user problem.
// It aborts the daemon.
type InternalFatalError struct {
	Reason string
}

func (e *InternalFatalError) Error() string {
	return "internal error (please report a bug): " + e.Reason
}

func NewInternalFatalError(format string, args ...interface{}) *InternalFatalError {
	return &InternalFatalError{Reason: fmt.Sprintf(format, args...)}
}

// InvalidTargetDescriptionData reports a structural or semantic problem in
// the loaded TDF. It aborts daemon initialisation.
type InvalidTargetDescriptionData struct {
	Reason string
}

func (e *InvalidTargetDescriptionData) Error() string {
	return "invalid target description data: " + e.Reason
}

func NewInvalidTargetDescriptionData(format string, args ...interface{}) *InvalidTargetDescriptionData {
	return &InvalidTargetDescriptionData{Reason: fmt.Sprintf(format, args...)}
}
