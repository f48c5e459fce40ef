package main

import (
	"context"
	"fmt"

	"github.com/google/gousb"
	"github.com/sirupsen/logrus"

	"github.com/mcudbg/coredbg/internal/probe/edbg"
	"github.com/mcudbg/coredbg/internal/probe/wchlink"
	"github.com/mcudbg/coredbg/internal/rangestep"
	"github.com/mcudbg/coredbg/internal/session"
	"github.com/mcudbg/coredbg/internal/target/avr8"
	"github.com/mcudbg/coredbg/internal/target/riscv"
	"github.com/mcudbg/coredbg/internal/targetdesc"
	"github.com/mcudbg/coredbg/internal/transport"
	"github.com/mcudbg/coredbg/internal/transport/usbbulk"
	"github.com/mcudbg/coredbg/internal/transport/usbhid"
)

// probeFlags is the USB addressing every subcommand needs to open the
// probe, taken from cobra flags only — per SPEC_FULL.md's AMBIENT STACK,
// no config file format is invented.
type probeFlags struct {
	vid, pid                         uint16
	configNum, interfaceNum, altNum  int
	outEndpoint, inEndpoint          int
	reportSize                       int // usbhid (avr8) only
	dataOutEndpoint, dataInEndpoint  int // usbbulk (riscv) split data pipe, optional
	maxHWSlots                       int
}

// rig bundles everything buildSession opens, so the caller can tear it
// all down in reverse order on shutdown.
type rig struct {
	sess      *session.Session
	transport transport.Transport
	dataXport transport.Transport // nil unless riscv opened a split data endpoint
}

func (r *rig) Close() {
	if r.dataXport != nil {
		r.dataXport.Close()
	}
	if r.transport != nil {
		r.transport.Close()
	}
}

// buildSession opens the USB transport(s) pf names, constructs the
// matching probe and target driver from the named built-in chip profile,
// attaches to the target, and returns a ready-to-run Session.
func buildSession(ctx context.Context, chipName string, pf probeFlags, log *logrus.Entry) (*rig, error) {
	chip, err := lookupChip(chipName)
	if err != nil {
		return nil, err
	}
	switch chip.arch {
	case "avr8":
		return buildAvr8Session(ctx, chip, pf, log)
	case "riscv":
		return buildRiscVSession(ctx, chip, pf, log)
	default:
		return nil, fmt.Errorf("chip profile %q has unknown arch %q", chipName, chip.arch)
	}
}

func buildAvr8Session(ctx context.Context, chip chipProfile, pf probeFlags, log *logrus.Entry) (*rig, error) {
	if pf.reportSize == 0 {
		return nil, fmt.Errorf("--report-size is required for an avr8 (usbhid) probe")
	}

	xport, err := usbhid.Open(gousb.ID(pf.vid), gousb.ID(pf.pid), pf.configNum, pf.interfaceNum, pf.altNum, pf.outEndpoint, pf.inEndpoint, pf.reportSize)
	if err != nil {
		return nil, err
	}
	r := &rig{transport: xport}

	probe := edbg.New(xport)
	driver := avr8.NewDriver(probe, chip.td, log, pf.maxHWSlots)
	if err := driver.Activate(ctx, chip.avr8); err != nil {
		r.Close()
		return nil, fmt.Errorf("activating avr8 target: %w", err)
	}
	if err := driver.Attach(ctx); err != nil {
		r.Close()
		return nil, fmt.Errorf("attaching avr8 target: %w", err)
	}

	progRange, err := programMemoryRange(chip.td)
	if err != nil {
		r.Close()
		return nil, err
	}

	adapter := &session.Avr8Adapter{D: driver, TD: chip.td}
	registers := &session.Avr8RegisterLayout{D: driver}
	sess := session.NewSession(adapter, registers, chip.td, progRange, log)
	sess.Init()
	r.sess = sess
	return r, nil
}

func buildRiscVSession(ctx context.Context, chip chipProfile, pf probeFlags, log *logrus.Entry) (*rig, error) {
	xport, err := usbbulk.Open(gousb.ID(pf.vid), gousb.ID(pf.pid), pf.configNum, pf.interfaceNum, pf.altNum, pf.outEndpoint, pf.inEndpoint)
	if err != nil {
		return nil, err
	}
	r := &rig{transport: xport}

	var dataXport transport.Transport
	if pf.dataOutEndpoint != 0 || pf.dataInEndpoint != 0 {
		dataXport, err = usbbulk.Open(gousb.ID(pf.vid), gousb.ID(pf.pid), pf.configNum, pf.interfaceNum, pf.altNum, pf.dataOutEndpoint, pf.dataInEndpoint)
		if err != nil {
			r.Close()
			return nil, err
		}
		r.dataXport = dataXport
	}

	probe := wchlink.New(xport, dataXport)
	driver := riscv.NewDriver(probe, chip.td, log, riscv.DefaultAbstractAccessTranslator{}, chip.riscv.flashBlockSize, chip.riscv.targetGroupID, pf.maxHWSlots)
	if err := driver.Attach(ctx, chip.riscv.clockSpeed); err != nil {
		r.Close()
		return nil, fmt.Errorf("attaching riscv target: %w", err)
	}

	progRange, err := programMemoryRange(chip.td)
	if err != nil {
		r.Close()
		return nil, err
	}

	adapter := &session.RiscVAdapter{D: driver, TD: chip.td}
	registers := &session.RiscVRegisterLayout{D: driver}
	sess := session.NewSession(adapter, registers, chip.td, progRange, log)
	sess.Init()
	r.sess = sess
	return r, nil
}

// programMemoryRange derives the rangestep engine's program-memory bound
// from whichever segment is typed SegmentFlash, per spec.md §4.4's
// "within program memory" validity rule. AVR8's and RISC-V's built-in
// profiles both name their executable segment "flash" (AVR8's nested
// under its "prog" address space, RISC-V's under its single unified
// space), so this looks the segment up by type rather than by a
// convention-specific address-space key.
func programMemoryRange(td *targetdesc.TargetDescriptor) (rangestep.AddressRange, error) {
	for _, as := range td.AddressSpaces {
		for _, seg := range as.Segments {
			if seg.Type == targetdesc.SegmentFlash {
				// targetdesc.AddressRange is inclusive on both ends;
				// rangestep.AddressRange is half-open.
				return rangestep.AddressRange{Start: uint32(seg.Range.Start), End: uint32(seg.Range.End) + 1}, nil
			}
		}
	}
	return rangestep.AddressRange{}, fmt.Errorf("target description has no flash segment")
}
