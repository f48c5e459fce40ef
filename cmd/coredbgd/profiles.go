package main

import (
	"encoding/binary"
	"fmt"
	"sort"
	"strings"

	proto "github.com/mcudbg/coredbg/internal/probeproto/wchlink"
	"github.com/mcudbg/coredbg/internal/target/avr8"
	"github.com/mcudbg/coredbg/internal/targetdesc"
)

// chipProfile is the target-specific half of coredbgd's configuration:
// everything a TDF would otherwise supply, plus the architecture-specific
// activation parameters spec.md's parameter tables name. Loading these
// from an actual TDF is out of scope (spec.md §1/§6 names that loader an
// external collaborator), and coredbgd invents no file format to stand in
// for one; instead a small built-in set is selected by name with --chip,
// the same way cobra flags select everything else.
type chipProfile struct {
	arch  string
	td    *targetdesc.TargetDescriptor
	avr8  avr8.Config
	riscv riscVProfile
}

// riscVProfile holds the riscv.NewDriver construction parameters
// spec.md §4.3 treats as fixed per-variant constants.
type riscVProfile struct {
	flashBlockSize uint32
	targetGroupID  byte
	clockSpeed     proto.ClockSpeed
}

var chipProfiles = map[string]chipProfile{
	"atmega328p": {
		arch: "avr8",
		td:   atmega328pDescriptor(),
		avr8: avr8.Config{
			Family:            avr8.FamilyMega,
			Interface:         avr8.InterfaceDebugWire,
			MegaDebugClockKHz: 4000,
			DebugWireMegaParams: avr8.DebugWireMegaJTAGParams{
				FlashPageSize:   128,
				FlashSize:       32 * 1024,
				FlashBase:       0,
				SRAMStart:       0x100,
				EEPROMSize:      1024,
				EEPROMPageSize:  4,
				OCDDataRegister: 0x51,
				EEARLAddr:       0x41,
				EEARHAddr:       0x42,
				EECRAddr:        0x3F,
				EEDRAddr:        0x40,
				SPMCRAddr:       0x57,
				OSCCALAddr:      0x66,
			},
		},
	},
	"ch32v307": {
		arch: "riscv",
		td:   ch32v307Descriptor(),
		riscv: riscVProfile{
			flashBlockSize: 4096,
			targetGroupID:  0x01,
			clockSpeed:     proto.Clock6000kHz,
		},
	},
}

// chipNames lists the built-in profile names in a stable order, for the
// --chip flag's usage text.
func chipNames() string {
	names := make([]string, 0, len(chipProfiles))
	for n := range chipProfiles {
		names = append(names, n)
	}
	sort.Strings(names)
	return strings.Join(names, ", ")
}

func lookupChip(name string) (chipProfile, error) {
	p, ok := chipProfiles[name]
	if !ok {
		return chipProfile{}, fmt.Errorf("unknown --chip %q (known: %s)", name, chipNames())
	}
	return p, nil
}

// atmega328pDescriptor is a built-in TargetDescriptor for an ATmega328P:
// the classic avr-gdb flat program/data split, a single flash segment,
// and SRAM plus the I/O register window within the data address space.
func atmega328pDescriptor() *targetdesc.TargetDescriptor {
	const flashSize = 32 * 1024
	const sramEnd = 0x8FF

	prog := &targetdesc.AddressSpaceDescriptor{
		Key:       "prog",
		Range:     targetdesc.AddressRange{Start: 0, End: flashSize - 1},
		ByteOrder: binary.LittleEndian,
		UnitSize:  1,
		Segments: map[string]*targetdesc.MemorySegmentDescriptor{
			"flash": {
				Key:             "flash",
				Type:            targetdesc.SegmentFlash,
				Range:           targetdesc.AddressRange{Start: 0, End: flashSize - 1},
				PageSize:        128,
				DebugModeAccess: targetdesc.AccessMask{Readable: true, Executable: true},
			},
		},
	}
	data := &targetdesc.AddressSpaceDescriptor{
		Key:       "data",
		Range:     targetdesc.AddressRange{Start: 0, End: sramEnd},
		ByteOrder: binary.LittleEndian,
		UnitSize:  1,
		Segments: map[string]*targetdesc.MemorySegmentDescriptor{
			"io": {
				Key:             "io",
				Type:            targetdesc.SegmentIO,
				Range:           targetdesc.AddressRange{Start: 0x20, End: 0xFF},
				DebugModeAccess: targetdesc.AccessMask{Readable: true, Writeable: true},
			},
			"sram": {
				Key:             "sram",
				Type:            targetdesc.SegmentRAM,
				Range:           targetdesc.AddressRange{Start: 0x100, End: sramEnd},
				DebugModeAccess: targetdesc.AccessMask{Readable: true, Writeable: true},
			},
		},
	}
	return &targetdesc.TargetDescriptor{
		Name:   "ATmega328P",
		Family: "avr8",
		AddressSpaces: map[string]*targetdesc.AddressSpaceDescriptor{
			"prog": prog,
			"data": data,
		},
	}
}

// ch32v307Descriptor is a built-in TargetDescriptor for a CH32V307: RISC-V
// has no prog/data split, so flash and RAM share one unified address
// space, per internal/session.RiscVAdapter's doc comment.
func ch32v307Descriptor() *targetdesc.TargetDescriptor {
	unified := &targetdesc.AddressSpaceDescriptor{
		Key:       "mem",
		Range:     targetdesc.AddressRange{Start: 0, End: 0x2000FFFF},
		ByteOrder: binary.LittleEndian,
		UnitSize:  1,
		Segments: map[string]*targetdesc.MemorySegmentDescriptor{
			"flash": {
				Key:             "flash",
				Type:            targetdesc.SegmentFlash,
				Range:           targetdesc.AddressRange{Start: 0, End: 256*1024 - 1},
				PageSize:        4096,
				DebugModeAccess: targetdesc.AccessMask{Readable: true, Executable: true},
			},
			"sram": {
				Key:             "sram",
				Type:            targetdesc.SegmentRAM,
				Range:           targetdesc.AddressRange{Start: 0x20000000, End: 0x2000FFFF},
				DebugModeAccess: targetdesc.AccessMask{Readable: true, Writeable: true},
			},
		},
	}
	return &targetdesc.TargetDescriptor{
		Name:   "CH32V307",
		Family: "riscv",
		AddressSpaces: map[string]*targetdesc.AddressSpaceDescriptor{
			"mem": unified,
		},
	}
}
