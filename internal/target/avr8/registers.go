package avr8

import (
	"context"

	"github.com/mcudbg/coredbg/internal/probeproto/edbgavr8"
	"github.com/mcudbg/coredbg/internal/targetdesc"
)

// registerMemType reports which probe memory type backs CPU general-purpose
// registers for the active variant: SRAM for debugWIRE/JTAG, a dedicated
// REGISTER_FILE address space for PDI/UPDI, per spec.md §4.2.
func (d *Driver) registerMemType() edbgavr8.MemoryType {
	switch d.variant {
	case VariantDebugWire, VariantMegaJTAG:
		return edbgavr8.MemSRAM
	default:
		return edbgavr8.MemRegisterFile
	}
}

func reverseBytes(b []byte) []byte {
	out := make([]byte, len(b))
	for i, v := range b {
		out[len(b)-1-i] = v
	}
	return out
}

// ReadRegisters batches descriptors into a single large read spanning their
// min/max addresses, stops the target first if necessary, and returns each
// register's value reordered from the AVR's little-endian on-chip layout to
// big-endian. Every descriptor is read from the variant's one register
// memory type (see registerMemType); a batch is not split into separate
// SRAM and REGISTER_FILE reads.
func (d *Driver) ReadRegisters(ctx context.Context, descriptors []*targetdesc.RegisterDescriptor) (map[string][]byte, error) {
	if err := d.ensureStopped(ctx); err != nil {
		return nil, err
	}
	if len(descriptors) == 0 {
		return map[string][]byte{}, nil
	}

	memType := d.registerMemType()
	minAddr, maxEnd := descriptors[0].StartAddress, descriptors[0].StartAddress+uint64(descriptors[0].Size)
	for _, reg := range descriptors[1:] {
		if reg.StartAddress < minAddr {
			minAddr = reg.StartAddress
		}
		end := reg.StartAddress + uint64(reg.Size)
		if end > maxEnd {
			maxEnd = end
		}
	}

	span, err := d.probe.ReadMemory(ctx, memType, uint32(minAddr), int(maxEnd-minAddr), d.probe.MaxChunkSize(0))
	if err != nil {
		return nil, err
	}

	out := make(map[string][]byte, len(descriptors))
	for _, reg := range descriptors {
		off := int(reg.StartAddress - minAddr)
		onChip := span[off : off+int(reg.Size)]
		out[reg.Name] = reverseBytes(onChip)
	}
	return out, nil
}

// WriteRegisters writes values (big-endian, as supplied by the caller) to
// the corresponding descriptors, reversing each back to the AVR's
// little-endian on-chip layout.
func (d *Driver) WriteRegisters(ctx context.Context, values map[string][]byte, descriptors []*targetdesc.RegisterDescriptor) error {
	if err := d.ensureStopped(ctx); err != nil {
		return err
	}
	memType := d.registerMemType()
	for _, reg := range descriptors {
		value, ok := values[reg.Name]
		if !ok {
			continue
		}
		onChip := reverseBytes(value)
		if err := d.probe.WriteMemory(ctx, memType, uint32(reg.StartAddress), onChip, d.probe.MaxChunkSize(0)); err != nil {
			return err
		}
	}
	return nil
}
