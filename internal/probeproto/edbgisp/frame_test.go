package edbgisp

import (
	"bytes"
	"testing"
)

func TestReadFuseLow(t *testing.T) {
	f := ReadFuse(0x00, FuseLow)
	want := []byte{0x00, 0x50, 0x00, 0x00, 0x00}
	if !bytes.Equal(f.Payload, want) {
		t.Fatalf("ReadFuse(LOW) payload = % x, want % x", f.Payload, want)
	}
}

func TestProgramFuseHigh(t *testing.T) {
	f := ProgramFuse(0x00, FuseHigh, 0xD9)
	want := []byte{0x00, 0xAC, 0xA8, 0x00, 0xD9}
	if !bytes.Equal(f.Payload, want) {
		t.Fatalf("ProgramFuse(HIGH) payload = % x, want % x", f.Payload, want)
	}
}

func TestParseReadRequiresBothStatusBytesOK(t *testing.T) {
	payload := []byte{byte(StatusOK), 0x00, 0xD9, byte(StatusOK)}
	res, err := ParseRead(payload)
	if err != nil {
		t.Fatalf("ParseRead: %v", err)
	}
	if res.Data != 0xD9 {
		t.Fatalf("Data = %#x, want 0xD9", res.Data)
	}

	payload[3] = byte(StatusFailed)
	if _, err := ParseRead(payload); err == nil {
		t.Fatalf("ParseRead: expected error when second status byte is not OK")
	}
}
