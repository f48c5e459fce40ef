package wchlink

import "encoding/binary"

// DMIStatus is the status byte of a DMI Operation response.
type DMIStatus byte

const (
	DMISuccess DMIStatus = 0x00
	DMIFailed  DMIStatus = 0x02
	DMIBusy    DMIStatus = 0x03
)

// DMIResponse is a decoded DMI Operation response.
type DMIResponse struct {
	RegAddr byte
	Value   uint32
	Status  DMIStatus
}

// ParseDMIResponse decodes a DMI Operation response payload:
// {regAddr(1), value(4 BE), status(1)}.
func ParseDMIResponse(payload []byte) (DMIResponse, error) {
	if len(payload) < 6 {
		return DMIResponse{}, errShortResponse("DMI operation", 6, len(payload))
	}
	return DMIResponse{
		RegAddr: payload[0],
		Value:   binary.BigEndian.Uint32(payload[1:5]),
		Status:  DMIStatus(payload[5]),
	}, nil
}

// WchLinkVariant identifies a specific WCH-Link probe hardware variant, as
// decoded from GetDeviceInfo.
type WchLinkVariant int

const (
	VariantUnknown WchLinkVariant = iota
	VariantLinkCH549
	VariantLinkECH32V307
	VariantLinkSCH32V203
)

var variantsByID = map[byte]WchLinkVariant{
	0x01: VariantLinkCH549,
	0x02: VariantLinkECH32V307,
	0x12: VariantLinkECH32V307,
	0x03: VariantLinkSCH32V203,
}

// FirmwareVersion is the probe firmware version reported by GetDeviceInfo.
type FirmwareVersion struct {
	Major byte
	Minor byte
}

// DeviceInfo is the decoded result of a GetDeviceInfo command.
type DeviceInfo struct {
	FirmwareVersion FirmwareVersion
	Variant         WchLinkVariant // VariantUnknown if the response didn't carry one
}

// ParseDeviceInfo decodes a GetDeviceInfo response payload: firmware major
// and minor version, and (if present) a probe variant byte.
func ParseDeviceInfo(payload []byte) (DeviceInfo, error) {
	if len(payload) < 2 {
		return DeviceInfo{}, errShortResponse("GetDeviceInfo", 2, len(payload))
	}
	info := DeviceInfo{
		FirmwareVersion: FirmwareVersion{Major: payload[0], Minor: payload[1]},
	}
	if len(payload) >= 3 {
		if v, ok := variantsByID[payload[2]]; ok {
			info.Variant = v
		}
	}
	return info, nil
}

// KnownFirmwareVersions enumerates the probe firmware versions the
// parameter tables in this package were validated against. Versions
// outside this set are not refused, only logged as a warning by the
// caller (see Driver.Attach in internal/target/riscv).
var KnownFirmwareVersions = []FirmwareVersion{
	{Major: 2, Minor: 8},
	{Major: 2, Minor: 9},
	{Major: 2, Minor: 11},
}

// IsKnownFirmwareVersion reports whether v appears in KnownFirmwareVersions.
func IsKnownFirmwareVersion(v FirmwareVersion) bool {
	for _, known := range KnownFirmwareVersions {
		if known == v {
			return true
		}
	}
	return false
}

// DataEndpointStatus is the status byte (offset 3) of a 4-byte response
// read from the WCH-Link data endpoint after a flash-write payload.
type DataEndpointStatus byte

// IsDataEndpointSuccess reports whether a 4-byte data-endpoint response
// indicates success: byte 3 is 0x02 or 0x04.
func IsDataEndpointSuccess(response []byte) bool {
	if len(response) < 4 {
		return false
	}
	return response[3] == 0x02 || response[3] == 0x04
}
