package targetdesc

import (
	"encoding/binary"
	"testing"
)

func sramSpace() *AddressSpaceDescriptor {
	return &AddressSpaceDescriptor{
		Key:       "data",
		Range:     AddressRange{Start: 0, End: 0xFFFF},
		ByteOrder: binary.LittleEndian,
		UnitSize:  1,
		Segments: map[string]*MemorySegmentDescriptor{
			"internal_sram": {
				Key:   "internal_sram",
				Type:  SegmentRAM,
				Range: AddressRange{Start: 0x100, End: 0x8FF},
			},
		},
	}
}

func TestValidateSegmentWithinAddressSpace(t *testing.T) {
	d := &TargetDescriptor{
		AddressSpaces: map[string]*AddressSpaceDescriptor{"data": sramSpace()},
	}
	if err := d.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestValidateSegmentOutsideAddressSpace(t *testing.T) {
	space := sramSpace()
	space.Segments["internal_sram"].Range = AddressRange{Start: 0x100, End: 0x10000}
	d := &TargetDescriptor{
		AddressSpaces: map[string]*AddressSpaceDescriptor{"data": space},
	}
	if err := d.Validate(); err == nil {
		t.Fatalf("Validate: expected error for segment exceeding address space bounds")
	}
}

func TestValidateRegisterGroupUnknownAddressSpace(t *testing.T) {
	d := &TargetDescriptor{
		AddressSpaces: map[string]*AddressSpaceDescriptor{"data": sramSpace()},
		Peripherals: []*PeripheralDescriptor{
			{
				Name: "PORTB",
				Groups: []*RegisterGroupDescriptor{
					{Name: "PORTB", AddressSpaceKey: "io", Registers: []*RegisterDescriptor{
						{Name: "PORTB", StartAddress: 0x25, Size: 1},
					}},
				},
			},
		},
	}
	if err := d.Validate(); err == nil {
		t.Fatalf("Validate: expected error for unknown address space key")
	}
}

func TestValidateRegisterOutsideAddressSpace(t *testing.T) {
	d := &TargetDescriptor{
		AddressSpaces: map[string]*AddressSpaceDescriptor{"data": sramSpace()},
		Peripherals: []*PeripheralDescriptor{
			{
				Name: "PORTB",
				Groups: []*RegisterGroupDescriptor{
					{Name: "PORTB", AddressSpaceKey: "data", Registers: []*RegisterDescriptor{
						{Name: "PORTB", StartAddress: 0x20000, Size: 1},
					}},
				},
			},
		},
	}
	if err := d.Validate(); err == nil {
		t.Fatalf("Validate: expected error for register address outside its address space")
	}
}

func TestSegmentPaged(t *testing.T) {
	unpaged := &MemorySegmentDescriptor{}
	if unpaged.Paged() {
		t.Fatalf("Paged: expected false for zero page size")
	}
	paged := &MemorySegmentDescriptor{PageSize: 128}
	if !paged.Paged() {
		t.Fatalf("Paged: expected true for nonzero page size")
	}
}
