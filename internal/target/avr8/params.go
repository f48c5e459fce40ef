// Parameter bundles for activate(), per spec.md §4.2.a: each ConfigVariant
// loads a distinct set of addresses/sizes/offsets from the TDF that the
// probe needs in order to talk to the target.
package avr8

import (
	"context"
	"encoding/binary"

	"github.com/mcudbg/coredbg/internal/probe/edbg"
	"github.com/mcudbg/coredbg/internal/probeproto/edbgavr8"
)

// DebugWireMegaJTAGParams bundles the TDF-sourced fields shared by the
// DEBUG_WIRE and MEGAJTAG variants.
type DebugWireMegaJTAGParams struct {
	FlashPageSize   uint16
	FlashSize       uint32
	FlashBase       uint32
	SRAMStart       uint16
	EEPROMSize      uint16
	EEPROMPageSize  uint8
	BootStartAddr   uint32
	OCDRevision     uint8
	OCDDataRegister uint16 // IO-segment-relative
	EEARLAddr       uint16 // IO-segment-relative
	EEARHAddr       uint16
	EECRAddr        uint16
	EEDRAddr        uint16
	SPMCRAddr       uint16 // not IO-relative
	OSCCALAddr      uint16
}

// XmegaParams bundles the PDI offsets the XMEGA variant needs.
type XmegaParams struct {
	ApplBaseAddr     uint32
	BootBaseAddr     uint32
	EEPROMBaseAddr   uint32
	FuseBaseAddr     uint32
	LockbitBaseAddr  uint32
	UserSignBaseAddr uint32
	ProdSignBaseAddr uint32
	DataBaseAddr     uint32
	ApplicationBytes uint32
	BootBytes        uint32
	FlashPageBytes   uint16
	EEPROMSize       uint16
	EEPROMPageSize   uint8
	NVMBase          uint16
	SignatureOffset  uint8
}

// UPDIParams bundles the fields the UPDI variant needs, including the
// split 24-bit/16-bit fields the probe's parameter table carries as
// separate low/MSB bytes.
type UPDIParams struct {
	ProgmemBase       uint32 // 24-bit; split into low16 + msb8 when written
	FlashPageSize     uint16 // split into low8 + msb8 when written
	EEPROMPageSize    uint8
	NVMCtrlAddr       uint16
	OCDAddr           uint16
	FlashSize         uint32
	EEPROMSize        uint16
	EEPROMBaseAddr    uint32
	SigBaseAddr       uint32
	FuseBaseAddr      uint32
	FuseSize          uint16
	LockBaseAddr      uint32
	HighVoltageEnable bool
}

func put16(v uint16) []byte {
	b := make([]byte, 2)
	binary.LittleEndian.PutUint16(b, v)
	return b
}

func put32(v uint32) []byte {
	b := make([]byte, 4)
	binary.LittleEndian.PutUint32(b, v)
	return b
}

func put8(v uint8) []byte { return []byte{v} }

func setParam(ctx context.Context, p *edbg.Probe, ctxByte byte, id edbgavr8.ParamID, value []byte) error {
	return p.SetParameter(ctx, ctxByte, byte(id), value)
}

// applyCommonParams writes the common parameters (CONFIG_VARIANT, CONFIG_FUNCTION,
// PHYSICAL_INTERFACE) shared by every variant.
func applyCommonParams(ctx context.Context, p *edbg.Probe, variant ConfigVariant, iface byte) error {
	var variantID edbgavr8.ConfigVariantID
	switch variant {
	case VariantDebugWire:
		variantID = edbgavr8.ConfigVariantDebugWire
	case VariantMegaJTAG:
		variantID = edbgavr8.ConfigVariantMegaJTAG
	case VariantXmega:
		variantID = edbgavr8.ConfigVariantXmega
	case VariantUPDI:
		variantID = edbgavr8.ConfigVariantUPDI
	}
	if err := setParam(ctx, p, edbgavr8.ContextAVR8, edbgavr8.ParamConfigVariant, put8(byte(variantID))); err != nil {
		return err
	}
	if err := setParam(ctx, p, edbgavr8.ContextAVR8, edbgavr8.ParamConfigFunction, put8(edbgavr8.ConfigFunctionDebugging)); err != nil {
		return err
	}
	return setParam(ctx, p, edbgavr8.ContextAVR8, edbgavr8.ParamPhysicalInterface, put8(iface))
}

func applyDebugWireMegaJTAGParams(ctx context.Context, p *edbg.Probe, params DebugWireMegaJTAGParams, megaDebugClockKHz uint16) error {
	fields := []struct {
		id    edbgavr8.ParamID
		value []byte
	}{
		{edbgavr8.ParamFlashPageSize, put16(params.FlashPageSize)},
		{edbgavr8.ParamFlashSize, put32(params.FlashSize)},
		{edbgavr8.ParamFlashBase, put32(params.FlashBase)},
		{edbgavr8.ParamSRAMStart, put16(params.SRAMStart)},
		{edbgavr8.ParamEEPROMSize, put16(params.EEPROMSize)},
		{edbgavr8.ParamEEPROMPageSize, put8(params.EEPROMPageSize)},
		{edbgavr8.ParamBootStartAddr, put32(params.BootStartAddr)},
		{edbgavr8.ParamOCDRevision, put8(params.OCDRevision)},
		{edbgavr8.ParamOCDDataRegister, put16(params.OCDDataRegister)},
		{edbgavr8.ParamEEARLAddr, put16(params.EEARLAddr)},
		{edbgavr8.ParamEEARHAddr, put16(params.EEARHAddr)},
		{edbgavr8.ParamEECRAddr, put16(params.EECRAddr)},
		{edbgavr8.ParamEEDRAddr, put16(params.EEDRAddr)},
		{edbgavr8.ParamSPMCRRegister, put16(params.SPMCRAddr)},
		{edbgavr8.ParamOSCCALAddr, put16(params.OSCCALAddr)},
		{edbgavr8.ParamMegaDebugClock, put16(megaDebugClockKHz)},
	}
	for _, f := range fields {
		if err := setParam(ctx, p, edbgavr8.ContextAVR8, f.id, f.value); err != nil {
			return err
		}
	}
	return nil
}

func applyXmegaParams(ctx context.Context, p *edbg.Probe, params XmegaParams, pdiClockKHz uint16) error {
	fields := []struct {
		id    edbgavr8.ParamID
		value []byte
	}{
		{edbgavr8.ParamXmegaApplBaseAddr, put32(params.ApplBaseAddr)},
		{edbgavr8.ParamXmegaBootBaseAddr, put32(params.BootBaseAddr)},
		{edbgavr8.ParamXmegaEEPROMBaseAddr, put32(params.EEPROMBaseAddr)},
		{edbgavr8.ParamXmegaFuseBaseAddr, put32(params.FuseBaseAddr)},
		{edbgavr8.ParamXmegaLockbitBaseAddr, put32(params.LockbitBaseAddr)},
		{edbgavr8.ParamXmegaUserSignBaseAddr, put32(params.UserSignBaseAddr)},
		{edbgavr8.ParamXmegaProdSignBaseAddr, put32(params.ProdSignBaseAddr)},
		{edbgavr8.ParamXmegaDataBaseAddr, put32(params.DataBaseAddr)},
		{edbgavr8.ParamXmegaApplicationBytes, put32(params.ApplicationBytes)},
		{edbgavr8.ParamXmegaBootBytes, put32(params.BootBytes)},
		{edbgavr8.ParamXmegaFlashPageBytes, put16(params.FlashPageBytes)},
		{edbgavr8.ParamXmegaEEPROMSize, put16(params.EEPROMSize)},
		{edbgavr8.ParamXmegaEEPROMPageSize, put8(params.EEPROMPageSize)},
		{edbgavr8.ParamXmegaNVMBase, put16(params.NVMBase)},
		{edbgavr8.ParamXmegaSignatureOffset, put8(params.SignatureOffset)},
		{edbgavr8.ParamPDIClockSpeed, put16(pdiClockKHz)},
	}
	for _, f := range fields {
		if err := setParam(ctx, p, edbgavr8.ContextAVR8, f.id, f.value); err != nil {
			return err
		}
	}
	return nil
}

func applyUPDIParams(ctx context.Context, p *edbg.Probe, params UPDIParams, pdiClockKHz uint16) error {
	progmemLow := uint16(params.ProgmemBase & 0xFFFF)
	progmemMSB := uint8((params.ProgmemBase >> 16) & 0xFF)
	flashPageLow := uint8(params.FlashPageSize & 0xFF)
	flashPageMSB := uint8((params.FlashPageSize >> 8) & 0xFF)

	fields := []struct {
		id    edbgavr8.ParamID
		value []byte
	}{
		{edbgavr8.ParamUPDIProgmemBaseAddr, put16(progmemLow)},
		{edbgavr8.ParamUPDIProgmemBaseAddrMSB, put8(progmemMSB)},
		{edbgavr8.ParamUPDI24BitAddressingEnable, put8(1)},
		{edbgavr8.ParamUPDIFlashPageSize, put8(flashPageLow)},
		{edbgavr8.ParamUPDIFlashPageSizeMSB, put8(flashPageMSB)},
		{edbgavr8.ParamUPDIEEPROMPageSize, put8(params.EEPROMPageSize)},
		{edbgavr8.ParamUPDINVMCtrlAddr, put16(params.NVMCtrlAddr)},
		{edbgavr8.ParamUPDIOCDAddr, put16(params.OCDAddr)},
		{edbgavr8.ParamUPDIFlashSize, put32(params.FlashSize)},
		{edbgavr8.ParamUPDIEEPROMSize, put16(params.EEPROMSize)},
		{edbgavr8.ParamUPDIEEPROMBaseAddr, put32(params.EEPROMBaseAddr)},
		{edbgavr8.ParamUPDISigBaseAddr, put32(params.SigBaseAddr)},
		{edbgavr8.ParamUPDIFuseBaseAddr, put32(params.FuseBaseAddr)},
		{edbgavr8.ParamUPDIFuseSize, put16(params.FuseSize)},
		{edbgavr8.ParamUPDILockBaseAddr, put32(params.LockBaseAddr)},
		{edbgavr8.ParamPDIClockSpeed, put16(pdiClockKHz)},
	}
	for _, f := range fields {
		if err := setParam(ctx, p, edbgavr8.ContextAVR8, f.id, f.value); err != nil {
			return err
		}
	}
	if params.HighVoltageEnable {
		if err := setParam(ctx, p, edbgavr8.ContextAVR8, edbgavr8.ParamEnableHighVoltageUPDI, put8(1)); err != nil {
			return err
		}
	}
	return nil
}
