// Package avr8 implements the L4 AVR8 target driver: the architecture-
// specific state machine that owns a live AVR session over an EDBG probe.
package avr8

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/mcudbg/coredbg/internal/coreerr"
	"github.com/mcudbg/coredbg/internal/probe/edbg"
	"github.com/mcudbg/coredbg/internal/probeproto/edbgavr8"
	"github.com/mcudbg/coredbg/internal/targetdesc"
)

// ExecutionState mirrors the session's execution_state, cached locally so
// that GetExecutionState need not always query the probe.
type ExecutionState int

const (
	Stopped ExecutionState = iota
	Running
	Stepping
)

// postResetQuiescence is the minimum delay observed after a reset before
// issuing further commands, per spec.md §4.2 ("Issuing any command
// immediately after a reset may return ILLEGAL_TARGET_STATE").
const postResetQuiescence = 250 * time.Millisecond

// Config bundles the variant parameter values and clock speeds sourced
// from the TDF/user configuration that activate() needs. Exactly one of
// the variant-specific parameter fields is meaningful, selected by Variant.
type Config struct {
	Family    Family
	Interface PhysicalInterface

	PDIClockSpeedKHz    uint16 // XMEGA, UPDI (Supplemented Features: DEVICE_PDI_CLOCK_SPEED)
	MegaDebugClockKHz   uint16 // MEGAJTAG   (Supplemented Features: MEGA_DEBUG_CLOCK)
	DebugWireMegaParams DebugWireMegaJTAGParams
	XmegaParams         XmegaParams
	UPDIParams          UPDIParams
}

// Driver owns a live AVR8 debug session over an EDBG probe.
type Driver struct {
	probe *edbg.Probe
	td    *targetdesc.TargetDescriptor
	log   *logrus.Entry

	variant ConfigVariant
	cfg     Config

	cachedExecState        ExecutionState
	programmingModeEnabled bool
	transparentProgramming bool // entered programming mode only to service a FUSES access

	hwBreakpoints  map[uint32]byte // address -> slot
	maxHWSlots     int
	swBreakpoints  map[uint32]struct{}
	forceMaskEmulation bool

	deviceID []byte
}

// NewDriver constructs a Driver bound to probe and td. The driver is
// unusable until Activate and Attach both succeed.
func NewDriver(probe *edbg.Probe, td *targetdesc.TargetDescriptor, log *logrus.Entry, maxHWSlots int) *Driver {
	return &Driver{
		probe:         probe,
		td:            td,
		log:           log,
		maxHWSlots:    maxHWSlots,
		hwBreakpoints: make(map[uint32]byte),
		swBreakpoints: make(map[uint32]struct{}),
	}
}

// Activate resolves the ConfigVariant, writes its parameter bundle, and
// activates the physical interface, retrying once with an external reset
// for debugWIRE per spec.md §4.2.
func (d *Driver) Activate(ctx context.Context, cfg Config) error {
	variant, err := mustResolveConfigVariant(cfg.Family, cfg.Interface)
	if err != nil {
		return err
	}
	d.variant = variant
	d.cfg = cfg

	ifaceByte, err := physicalInterfaceByte(cfg.Interface)
	if err != nil {
		return err
	}
	if err := applyCommonParams(ctx, d.probe, variant, ifaceByte); err != nil {
		return err
	}

	switch variant {
	case VariantDebugWire, VariantMegaJTAG:
		if err := applyDebugWireMegaJTAGParams(ctx, d.probe, cfg.DebugWireMegaParams, cfg.MegaDebugClockKHz); err != nil {
			return err
		}
	case VariantXmega:
		if err := applyXmegaParams(ctx, d.probe, cfg.XmegaParams, cfg.PDIClockSpeedKHz); err != nil {
			return err
		}
	case VariantUPDI:
		if err := applyUPDIParams(ctx, d.probe, cfg.UPDIParams, cfg.PDIClockSpeedKHz); err != nil {
			return err
		}
	}

	err = d.probe.Activate(ctx, false)
	if err != nil && cfg.Interface == InterfaceDebugWire {
		var dwErr *coreerr.DebugWirePhysicalInterfaceError
		if isDebugWireError(err, &dwErr) {
			d.log.WithError(err).Warn("activation failed over debugWIRE, retrying with external reset")
			err = d.probe.Activate(ctx, true)
			if err != nil {
				return err
			}
			time.Sleep(postResetQuiescence)
		} else {
			return err
		}
	} else if err != nil {
		return err
	}

	d.cachedExecState = Stopped
	return nil
}

func isDebugWireError(err error, target **coreerr.DebugWirePhysicalInterfaceError) bool {
	if e, ok := err.(*coreerr.DebugWirePhysicalInterfaceError); ok {
		*target = e
		return true
	}
	return false
}

func physicalInterfaceByte(iface PhysicalInterface) (byte, error) {
	switch iface {
	case InterfaceDebugWire:
		return edbgavr8.PhysicalInterfaceDebugWire, nil
	case InterfaceJTAG:
		return edbgavr8.PhysicalInterfaceJTAG, nil
	case InterfacePDI:
		return edbgavr8.PhysicalInterfacePDI, nil
	case InterfaceUPDI:
		return edbgavr8.PhysicalInterfaceUPDI, nil
	default:
		return 0, coreerr.NewConfigurationError("unknown physical interface %q", iface)
	}
}

// Attach sends Attach and waits for the resulting break event. For
// MEGAJTAG, breakAfterAttach must be forced to false (sending true causes
// a timeout), but the target may still halt, so the driver waits for a
// break event either way.
func (d *Driver) Attach(ctx context.Context) error {
	breakAfterAttach := true
	if d.variant == VariantMegaJTAG {
		breakAfterAttach = false
	}
	if err := d.probe.Attach(ctx, breakAfterAttach); err != nil {
		return err
	}
	if err := d.waitForBreak(ctx); err != nil {
		return err
	}
	d.cachedExecState = Stopped

	id, err := d.DeviceID(ctx)
	if err != nil {
		return err
	}
	d.deviceID = id
	return nil
}

// waitForBreak polls for a break event up to a fixed attempt budget, per
// spec.md §5's attach/halt handshake timeout.
func (d *Driver) waitForBreak(ctx context.Context) error {
	const attempts = 10
	const delay = 10 * time.Microsecond
	for i := 0; i < attempts; i++ {
		_, ok, err := d.probe.PollBreakEvent(ctx)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
		time.Sleep(delay)
	}
	return nil
}

// Deactivate sends DeactivatePhysical. Callers (internal/session) must
// ensure breakpoint sets are empty first, per spec.md §3's session
// lifecycle contract.
func (d *Driver) Deactivate(ctx context.Context) error {
	return d.probe.Deactivate(ctx)
}

// Detach sends Detach.
func (d *Driver) Detach(ctx context.Context) error {
	return d.probe.Detach(ctx)
}

// GetExecutionState returns the cached execution state without querying
// the probe when the cache already reads Stopped (the target cannot leave
// Stopped without the driver's own instruction). Otherwise it polls for a
// break event: if one arrives, the cache transitions to Stopped; if not,
// to Running (preserving Stepping if the cache was already Stepping).
func (d *Driver) GetExecutionState(ctx context.Context) (ExecutionState, error) {
	if d.cachedExecState == Stopped {
		return Stopped, nil
	}
	_, ok, err := d.probe.PollBreakEvent(ctx)
	if err != nil {
		return d.cachedExecState, err
	}
	if ok {
		d.cachedExecState = Stopped
		return Stopped, nil
	}
	if d.cachedExecState != Stepping {
		d.cachedExecState = Running
	}
	return d.cachedExecState, nil
}

// ensureStopped halts the target first if an operation requires it to be
// stopped (getProgramCounter, setProgramCounter, register read/write), per
// spec.md §4.2.
func (d *Driver) ensureStopped(ctx context.Context) error {
	state, err := d.GetExecutionState(ctx)
	if err != nil {
		return err
	}
	if state == Stopped {
		return nil
	}
	if err := d.probe.Stop(ctx, edbgavr8.StopImmediate); err != nil {
		return err
	}
	return d.waitForBreak(ctx)
}

// Run resumes execution.
func (d *Driver) Run(ctx context.Context) error {
	if err := d.probe.Run(ctx); err != nil {
		return err
	}
	d.cachedExecState = Running
	return nil
}

// Step issues a single step.
func (d *Driver) Step(ctx context.Context) error {
	if err := d.probe.Step(ctx); err != nil {
		return err
	}
	d.cachedExecState = Stepping
	return nil
}

// Stop halts the target immediately.
func (d *Driver) Stop(ctx context.Context) error {
	if err := d.probe.Stop(ctx, edbgavr8.StopImmediate); err != nil {
		return err
	}
	d.cachedExecState = Stopped
	return nil
}

// RunTo runs until byteAddress is reached.
func (d *Driver) RunTo(ctx context.Context, byteAddress uint32) error {
	if err := d.probe.RunTo(ctx, byteAddress); err != nil {
		return err
	}
	d.cachedExecState = Running
	return nil
}

// GetProgramCounter stops the target if necessary and reads the PC as a
// byte address.
func (d *Driver) GetProgramCounter(ctx context.Context) (uint32, error) {
	if err := d.ensureStopped(ctx); err != nil {
		return 0, err
	}
	return d.probe.GetProgramCounter(ctx)
}

// SetProgramCounter stops the target if necessary and sets the PC from a
// byte address.
func (d *Driver) SetProgramCounter(ctx context.Context, byteAddress uint32) error {
	if err := d.ensureStopped(ctx); err != nil {
		return err
	}
	return d.probe.SetProgramCounter(ctx, byteAddress)
}

// Variant reports the resolved ConfigVariant (valid after Activate).
func (d *Driver) Variant() ConfigVariant { return d.variant }
