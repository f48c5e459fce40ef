package avr8

import (
	"context"

	"github.com/mcudbg/coredbg/internal/coreerr"
	"github.com/mcudbg/coredbg/internal/probeproto/edbgavr8"
	"github.com/mcudbg/coredbg/internal/targetdesc"
)

// updiDeviceIDPlaceholder is the literal ASCII response GetDeviceId
// returns on UPDI variants instead of a real signature.
const updiDeviceIDPlaceholder = "AVR "

// findSignatureSegment locates the signature segment (and its owning
// address space) in the TargetDescriptor.
func (d *Driver) findSignatureSegment() (*targetdesc.AddressSpaceDescriptor, *targetdesc.MemorySegmentDescriptor, error) {
	for _, as := range d.td.AddressSpaces {
		for _, seg := range as.Segments {
			if seg.Type == targetdesc.SegmentSignatures {
				return as, seg, nil
			}
		}
	}
	return nil, nil, coreerr.NewInternalFatalError("target description has no signatures segment")
}

// DeviceID returns the 3-byte device signature. On UPDI, GetDeviceId
// returns the literal placeholder "AVR " instead of a signature, so the
// driver reads the signature segment via SRAM directly; on every other
// variant, the GetDeviceId response itself decodes to the 3 signature
// bytes.
func (d *Driver) DeviceID(ctx context.Context) ([]byte, error) {
	if d.variant == VariantUPDI {
		_, seg, err := d.findSignatureSegment()
		if err != nil {
			return nil, err
		}
		return d.probe.ReadMemory(ctx, edbgavr8.MemSRAM, uint32(seg.Range.Start), 3, d.probe.MaxChunkSize(0))
	}

	resp, err := d.probe.GetDeviceId(ctx)
	if err != nil {
		return nil, err
	}
	if string(resp) == updiDeviceIDPlaceholder {
		return nil, coreerr.NewInternalFatalError("GetDeviceId returned the UPDI placeholder on a non-UPDI variant")
	}
	return resp, nil
}

// Erase issues an EraseMemory command. Only XMEGA supports non-CHIP erase
// modes; CHIP erase is universal, per spec.md §4.2.
func (d *Driver) Erase(ctx context.Context, mode edbgavr8.EraseMode, startAddress uint32) error {
	if mode != edbgavr8.EraseChip && d.variant != VariantXmega {
		return coreerr.NewConfigurationError("erase mode %d is only supported on XMEGA", mode)
	}
	return d.probe.EraseMemory(ctx, mode, startAddress)
}
