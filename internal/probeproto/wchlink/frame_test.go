package wchlink

import (
	"bytes"
	"testing"
)

func TestFrameEncode(t *testing.T) {
	f := GetDeviceInfo()
	got := f.Encode()
	want := []byte{0x81, 0x0D, 0x01, controlGetDeviceInfo}
	if !bytes.Equal(got, want) {
		t.Fatalf("GetDeviceInfo.Encode() = % x, want % x", got, want)
	}
}

func TestAttachTargetRequiresPostAttachQuirk(t *testing.T) {
	// Scenario 4/5 groundwork: a target ID of 0x09 signals that the caller
	// must send PostAttach and re-issue AttachTarget before the session is
	// trustworthy.
	if TargetIDRequiresPostAttach != 0x09 {
		t.Fatalf("TargetIDRequiresPostAttach = %#x, want 0x09", TargetIDRequiresPostAttach)
	}
	post := PostAttach()
	if post.CmdID != cmdControl || !bytes.Equal(post.Payload, []byte{controlPostAttach}) {
		t.Fatalf("PostAttach() = %+v", post)
	}
}

func TestDMIOperationEncode(t *testing.T) {
	f := DMIOperation(0x10, 0x12345678, DMIWrite)
	want := []byte{0x10, 0x12, 0x34, 0x56, 0x78, byte(DMIWrite)}
	if !bytes.Equal(f.Payload, want) {
		t.Fatalf("DMIOperation payload = % x, want % x", f.Payload, want)
	}
}

func TestSetFlashWriteRegionEncode(t *testing.T) {
	f := SetFlashWriteRegion(0x08000000, 256)
	want := []byte{0x08, 0x00, 0x00, 0x00, 0x00, 0x00, 0x01, 0x00}
	if !bytes.Equal(f.Payload, want) {
		t.Fatalf("SetFlashWriteRegion payload = % x, want % x", f.Payload, want)
	}
}

func TestPreparePartialFlashBlockWriteEncode(t *testing.T) {
	f := PreparePartialFlashBlockWrite(0x08000100, 48)
	want := []byte{0x08, 0x00, 0x01, 0x00, 48}
	if !bytes.Equal(f.Payload, want) {
		t.Fatalf("PreparePartialFlashBlockWrite payload = % x, want % x", f.Payload, want)
	}
}

func TestParseDMIResponse(t *testing.T) {
	payload := []byte{0x10, 0x00, 0x00, 0x00, 0x01, byte(DMISuccess)}
	res, err := ParseDMIResponse(payload)
	if err != nil {
		t.Fatalf("ParseDMIResponse: %v", err)
	}
	if res.RegAddr != 0x10 || res.Value != 1 || res.Status != DMISuccess {
		t.Fatalf("ParseDMIResponse = %+v", res)
	}
}

func TestParseDMIResponseBusy(t *testing.T) {
	payload := []byte{0x10, 0x00, 0x00, 0x00, 0x00, byte(DMIBusy)}
	res, err := ParseDMIResponse(payload)
	if err != nil {
		t.Fatalf("ParseDMIResponse: %v", err)
	}
	if res.Status != DMIBusy {
		t.Fatalf("Status = %#x, want DMIBusy", res.Status)
	}
}

func TestParseDMIResponseShort(t *testing.T) {
	if _, err := ParseDMIResponse([]byte{0x10, 0x00}); err == nil {
		t.Fatalf("ParseDMIResponse: expected error on short payload")
	}
}

func TestParseDeviceInfo(t *testing.T) {
	info, err := ParseDeviceInfo([]byte{0x02, 0x08, 0x02})
	if err != nil {
		t.Fatalf("ParseDeviceInfo: %v", err)
	}
	if info.FirmwareVersion != (FirmwareVersion{Major: 2, Minor: 8}) {
		t.Fatalf("FirmwareVersion = %+v", info.FirmwareVersion)
	}
	if info.Variant != VariantLinkECH32V307 {
		t.Fatalf("Variant = %v, want VariantLinkECH32V307", info.Variant)
	}
	if !IsKnownFirmwareVersion(info.FirmwareVersion) {
		t.Fatalf("expected firmware version %+v to be known", info.FirmwareVersion)
	}
}

func TestParseDeviceInfoWithoutVariantByte(t *testing.T) {
	info, err := ParseDeviceInfo([]byte{0x02, 0x0B})
	if err != nil {
		t.Fatalf("ParseDeviceInfo: %v", err)
	}
	if info.Variant != VariantUnknown {
		t.Fatalf("Variant = %v, want VariantUnknown", info.Variant)
	}
}

func TestIsDataEndpointSuccess(t *testing.T) {
	if !IsDataEndpointSuccess([]byte{0x00, 0x00, 0x00, 0x02}) {
		t.Fatalf("expected success for status byte 0x02")
	}
	if IsDataEndpointSuccess([]byte{0x00, 0x00, 0x00, 0x00}) {
		t.Fatalf("expected failure for status byte 0x00")
	}
	if IsDataEndpointSuccess([]byte{0x00, 0x00}) {
		t.Fatalf("expected failure for short response")
	}
}
