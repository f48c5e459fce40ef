package avr8

import "github.com/mcudbg/coredbg/internal/coreerr"

// Family identifies the AVR device family read from the TDF's device
// attributes.
type Family string

const (
	FamilyMega  Family = "mega"
	FamilyTiny  Family = "tiny"
	FamilyXmega Family = "xmega"
	FamilyDA    Family = "da"
	FamilyDB    Family = "db"
	FamilyDD    Family = "dd"
	FamilyEA    Family = "ea"
)

// PhysicalInterface identifies the physical debug interface selected for
// the session (from the TDF's variant/pinout data or user configuration).
type PhysicalInterface string

const (
	InterfaceJTAG      PhysicalInterface = "jtag"
	InterfaceDebugWire PhysicalInterface = "debugwire"
	InterfacePDI       PhysicalInterface = "pdi"
	InterfaceUPDI      PhysicalInterface = "updi"
)

// ConfigVariant selects which parameter bundle and memory-dispatch rules
// apply for the remainder of the session, per spec.md §4.2.
type ConfigVariant int

const (
	VariantDebugWire ConfigVariant = iota
	VariantMegaJTAG
	VariantXmega
	VariantUPDI
)

func (v ConfigVariant) String() string {
	switch v {
	case VariantDebugWire:
		return "DEBUG_WIRE"
	case VariantMegaJTAG:
		return "MEGAJTAG"
	case VariantXmega:
		return "XMEGA"
	case VariantUPDI:
		return "UPDI"
	default:
		return "unknown"
	}
}

// ResolveConfigVariant is a pure function mapping (family, interface) to a
// ConfigVariant per the table in spec.md §4.2. It returns ok=false for any
// unmapped pair.
func ResolveConfigVariant(family Family, iface PhysicalInterface) (variant ConfigVariant, ok bool) {
	switch family {
	case FamilyMega, FamilyTiny:
		switch iface {
		case InterfaceJTAG:
			return VariantMegaJTAG, true
		case InterfaceDebugWire:
			return VariantDebugWire, true
		case InterfaceUPDI:
			return VariantUPDI, true
		}
	case FamilyXmega:
		switch iface {
		case InterfaceJTAG, InterfacePDI:
			return VariantXmega, true
		}
	case FamilyDA, FamilyDB, FamilyDD, FamilyEA:
		if iface == InterfaceUPDI {
			return VariantUPDI, true
		}
	}
	return 0, false
}

// mustResolveConfigVariant wraps ResolveConfigVariant for call sites that
// need a ConfigurationError rather than a boolean.
func mustResolveConfigVariant(family Family, iface PhysicalInterface) (ConfigVariant, error) {
	variant, ok := ResolveConfigVariant(family, iface)
	if !ok {
		return 0, coreerr.NewConfigurationError("unsupported family/physical-interface combination: %s over %s", family, iface)
	}
	return variant, nil
}
