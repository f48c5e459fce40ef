package edbgavr8

// Parameter contexts, as carried in the context byte of SetParameter /
// GetParameter.
const (
	ContextGeneral byte = 0x01 // JTAG_DAISY_CHAIN_SETTINGS lives here
	ContextAVR8    byte = 0x02
)

// ParamID identifies an AVR8-Generic SetParameter/GetParameter field.
type ParamID byte

// Parameters common to all variants.
const (
	ParamConfigVariant        ParamID = 0x00
	ParamConfigFunction       ParamID = 0x01
	ParamPhysicalInterface    ParamID = 0x02
	ParamPDIClockSpeed        ParamID = 0x03
	ParamJTAGDaisyChain       ParamID = 0x01 // context = ContextGeneral
	ParamEnableHighVoltageUPDI ParamID = 0x06
	ParamMegaDebugClock       ParamID = 0x20
)

// Parameters for DEBUG_WIRE and MEGAJTAG variants (0x80..0x95).
const (
	ParamFlashPageSize     ParamID = 0x80
	ParamFlashSize         ParamID = 0x81
	ParamFlashBase         ParamID = 0x82
	ParamSRAMStart         ParamID = 0x83
	ParamEEPROMSize        ParamID = 0x84
	ParamEEPROMPageSize    ParamID = 0x85
	ParamBootStartAddr     ParamID = 0x86
	ParamOCDRevision       ParamID = 0x87
	ParamOCDDataRegister   ParamID = 0x88
	ParamEEARLAddr         ParamID = 0x89
	ParamEEARHAddr         ParamID = 0x8A
	ParamEECRAddr          ParamID = 0x8B
	ParamEEDRAddr          ParamID = 0x8C
	ParamSPMCRRegister     ParamID = 0x8D
	ParamOSCCALAddr        ParamID = 0x8E
)

// Parameters for XMEGA variants (0xC0..0xCF).
const (
	ParamXmegaApplBaseAddr    ParamID = 0xC0
	ParamXmegaBootBaseAddr    ParamID = 0xC1
	ParamXmegaEEPROMBaseAddr  ParamID = 0xC2
	ParamXmegaFuseBaseAddr    ParamID = 0xC3
	ParamXmegaLockbitBaseAddr ParamID = 0xC4
	ParamXmegaUserSignBaseAddr ParamID = 0xC5
	ParamXmegaProdSignBaseAddr ParamID = 0xC6
	ParamXmegaDataBaseAddr    ParamID = 0xC7
	ParamXmegaApplicationBytes ParamID = 0xC8
	ParamXmegaBootBytes       ParamID = 0xC9
	ParamXmegaFlashPageBytes  ParamID = 0xCA
	ParamXmegaEEPROMSize      ParamID = 0xCB
	ParamXmegaEEPROMPageSize  ParamID = 0xCC
	ParamXmegaNVMBase         ParamID = 0xCD
	ParamXmegaSignatureOffset ParamID = 0xCE
)

// Parameters for UPDI variants (0xD0..0xDE).
const (
	ParamUPDIProgmemBaseAddr      ParamID = 0xD0
	ParamUPDIProgmemBaseAddrMSB   ParamID = 0xD1
	ParamUPDI24BitAddressingEnable ParamID = 0xD2
	ParamUPDIFlashPageSize        ParamID = 0xD3
	ParamUPDIFlashPageSizeMSB     ParamID = 0xD4
	ParamUPDIEEPROMPageSize       ParamID = 0xD5
	ParamUPDINVMCtrlAddr          ParamID = 0xD6
	ParamUPDIOCDAddr              ParamID = 0xD7
	ParamUPDIFlashSize            ParamID = 0xD8
	ParamUPDIEEPROMSize           ParamID = 0xD9
	ParamUPDIEEPROMBaseAddr       ParamID = 0xDA
	ParamUPDISigBaseAddr          ParamID = 0xDB
	ParamUPDIFuseBaseAddr         ParamID = 0xDC
	ParamUPDIFuseSize             ParamID = 0xDD
	ParamUPDILockBaseAddr         ParamID = 0xDE
)

// Physical interface IDs, as carried by ParamPhysicalInterface.
const (
	PhysicalInterfaceDebugWire byte = 0x05
	PhysicalInterfaceJTAG      byte = 0x04
	PhysicalInterfacePDI       byte = 0x06
	PhysicalInterfaceUPDI      byte = 0x08
)

// ConfigVariant value written to ParamConfigVariant.
type ConfigVariantID byte

const (
	ConfigVariantDebugWire ConfigVariantID = 0x00
	ConfigVariantMegaJTAG  ConfigVariantID = 0x01
	ConfigVariantXmega     ConfigVariantID = 0x02
	ConfigVariantUPDI      ConfigVariantID = 0x03
)

// ConfigFunctionDebugging is the only ConfigFunction value this core uses.
const ConfigFunctionDebugging byte = 0x00
