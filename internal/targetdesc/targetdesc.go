// Package targetdesc defines the data shape yielded by a target description
// file (TDF), immutable for the lifetime of a debug session. The XML loader
// that produces these values is an external collaborator; this package only
// defines the shape and the structural invariants it must satisfy.
package targetdesc

import (
	"encoding/binary"
	"fmt"
)

// SegmentType identifies the kind of storage a MemorySegmentDescriptor
// describes.
type SegmentType string

const (
	SegmentRAM                  SegmentType = "ram"
	SegmentFlash                SegmentType = "flash"
	SegmentEEPROM               SegmentType = "eeprom"
	SegmentFuses                SegmentType = "fuses"
	SegmentLockbits             SegmentType = "lockbits"
	SegmentSignatures           SegmentType = "signatures"
	SegmentIO                   SegmentType = "io"
	SegmentRegisters            SegmentType = "registers"
	SegmentOsccal               SegmentType = "osccal"
	SegmentUserSignatures       SegmentType = "user_signatures"
	SegmentProductionSignatures SegmentType = "production_signatures"
	SegmentAliased              SegmentType = "aliased"
	SegmentGeneralPurposeRegs   SegmentType = "general_purpose_registers"
)

// AddressRange is an inclusive [Start, End] byte-address range.
type AddressRange struct {
	Start uint64
	End   uint64
}

// Contains reports whether r fully contains other.
func (r AddressRange) Contains(other AddressRange) bool {
	return other.Start >= r.Start && other.End <= r.End
}

// ContainsAddress reports whether addr lies within r.
func (r AddressRange) ContainsAddress(addr uint64) bool {
	return addr >= r.Start && addr <= r.End
}

// AccessMask describes what a memory segment permits in a given mode.
type AccessMask struct {
	Readable   bool
	Writeable  bool
	Executable bool
}

// MemorySegmentDescriptor describes one contiguous region of a kind of
// storage within an address space.
type MemorySegmentDescriptor struct {
	Key               string
	Type              SegmentType
	Range             AddressRange
	PageSize          uint32 // 0 if not paged
	DebugModeAccess   AccessMask
	ProgrammingAccess AccessMask
}

// Paged reports whether the segment is accessed in fixed-size pages.
func (s *MemorySegmentDescriptor) Paged() bool {
	return s.PageSize > 0
}

// AddressSpaceDescriptor groups memory segments that share an address
// space, endianness, and unit size.
type AddressSpaceDescriptor struct {
	Key       string
	Range     AddressRange
	ByteOrder binary.ByteOrder
	UnitSize  uint8 // commonly 1
	Segments  map[string]*MemorySegmentDescriptor
}

// Segment looks up a segment by key within the address space.
func (a *AddressSpaceDescriptor) Segment(key string) (*MemorySegmentDescriptor, bool) {
	seg, ok := a.Segments[key]
	return seg, ok
}

// BitFieldDescriptor describes one named bit field within a register.
type BitFieldDescriptor struct {
	Name        string
	Mask        uint64
	Description string // optional; empty if absent
}

// RegisterDescriptor describes one peripheral register.
type RegisterDescriptor struct {
	Name         string
	StartAddress uint64
	Size         uint8
	Access       AccessMask
	InitialValue *uint64 // optional
	BitFields    []BitFieldDescriptor
}

// RegisterGroupDescriptor is a named collection of registers (and nested
// subgroups) addressed within one address space.
type RegisterGroupDescriptor struct {
	Name            string
	AddressSpaceKey string
	Registers       []*RegisterDescriptor
	Subgroups       []*RegisterGroupDescriptor
}

// PeripheralDescriptor is the root of a register-group tree for one
// on-chip peripheral.
type PeripheralDescriptor struct {
	Name    string
	Groups  []*RegisterGroupDescriptor
}

// TargetDescriptor is the complete, immutable description of a target
// built from a TDF at load time.
type TargetDescriptor struct {
	Name          string
	Family        string
	SignatureBytes []byte
	AddressSpaces map[string]*AddressSpaceDescriptor
	Peripherals   []*PeripheralDescriptor
	Properties    map[string]string // e.g. "ocd.ocd_revision", "signatures.signature0"
}

// AddressSpace looks up an address space by key.
func (d *TargetDescriptor) AddressSpace(key string) (*AddressSpaceDescriptor, bool) {
	as, ok := d.AddressSpaces[key]
	return as, ok
}

// Validate checks the structural invariants required by the data model:
// every segment lies within its address space; segment keys are unique
// within an address space (guaranteed by the map representation); every
// peripheral register's start address lies within exactly one address
// space identified by its group's AddressSpaceKey.
func (d *TargetDescriptor) Validate() error {
	for asKey, as := range d.AddressSpaces {
		for segKey, seg := range as.Segments {
			if !as.Range.Contains(seg.Range) {
				return fmt.Errorf("targetdesc: segment %q (space %q) range [%#x,%#x] is not contained in address space range [%#x,%#x]",
					segKey, asKey, seg.Range.Start, seg.Range.End, as.Range.Start, as.Range.End)
			}
		}
	}

	for _, periph := range d.Peripherals {
		for _, group := range periph.Groups {
			if err := validateGroup(d, group); err != nil {
				return err
			}
		}
	}
	return nil
}

func validateGroup(d *TargetDescriptor, group *RegisterGroupDescriptor) error {
	as, ok := d.AddressSpace(group.AddressSpaceKey)
	if !ok {
		return fmt.Errorf("targetdesc: register group %q references unknown address space %q", group.Name, group.AddressSpaceKey)
	}
	for _, reg := range group.Registers {
		if !as.Range.ContainsAddress(reg.StartAddress) {
			return fmt.Errorf("targetdesc: register %q (group %q) start address %#x lies outside address space %q",
				reg.Name, group.Name, reg.StartAddress, group.AddressSpaceKey)
		}
	}
	for _, sub := range group.Subgroups {
		if err := validateGroup(d, sub); err != nil {
			return err
		}
	}
	return nil
}
