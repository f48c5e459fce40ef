package avr8

import (
	"context"
	"sort"

	"github.com/mcudbg/coredbg/internal/coreerr"
)

// EnableProgrammingMode enters programming mode. This invalidates all
// hardware breakpoints (the probe itself clears them); software
// breakpoints persist as probe state, per spec.md §4.2.
func (d *Driver) EnableProgrammingMode(ctx context.Context) error {
	if d.programmingModeEnabled {
		return nil
	}
	if err := d.probe.EnterProgrammingMode(ctx); err != nil {
		return err
	}
	d.programmingModeEnabled = true
	d.hwBreakpoints = make(map[uint32]byte)
	return nil
}

// DisableProgrammingMode leaves programming mode.
func (d *Driver) DisableProgrammingMode(ctx context.Context) error {
	if !d.programmingModeEnabled {
		return nil
	}
	if err := d.probe.LeaveProgrammingMode(ctx); err != nil {
		return err
	}
	d.programmingModeEnabled = false
	return nil
}

// freeSlot returns the lowest hardware breakpoint slot not currently in
// hwBreakpoints, or ok=false if all maxHWSlots slots are taken.
func (d *Driver) freeSlot() (slot byte, ok bool) {
	used := make(map[byte]bool, len(d.hwBreakpoints))
	for _, s := range d.hwBreakpoints {
		used[s] = true
	}
	for s := byte(0); int(s) < d.maxHWSlots; s++ {
		if !used[s] {
			return s, true
		}
	}
	return 0, false
}

// SetHardwareBreakpoint allocates the lowest free slot for address and
// programs it on the probe. It rejects the request without mutating the
// slot map if no slots are free.
func (d *Driver) SetHardwareBreakpoint(ctx context.Context, address uint32) error {
	if _, exists := d.hwBreakpoints[address]; exists {
		return nil
	}
	slot, ok := d.freeSlot()
	if !ok {
		return coreerr.NewTargetOperationFailure(0, "no free hardware breakpoint slots")
	}
	if err := d.probe.SetHardwareBreakpoint(ctx, slot, address); err != nil {
		return err
	}
	d.hwBreakpoints[address] = slot
	return nil
}

// ClearHardwareBreakpoint clears the breakpoint at address, if any.
// Clearing an unknown address is a non-fatal warning, per spec.md §4.2.
func (d *Driver) ClearHardwareBreakpoint(ctx context.Context, address uint32) error {
	slot, ok := d.hwBreakpoints[address]
	if !ok {
		d.log.Warnf("clearHardwareBreakpoint: no breakpoint set at %#x", address)
		return nil
	}
	if err := d.probe.ClearHardwareBreakpoint(ctx, slot); err != nil {
		return err
	}
	delete(d.hwBreakpoints, address)
	return nil
}

// SetSoftwareBreakpoints programs software breakpoints at addrs.
func (d *Driver) SetSoftwareBreakpoints(ctx context.Context, addrs []uint32) error {
	return d.probe.SetSoftwareBreakpoints(ctx, addrs)
}

// ClearSoftwareBreakpoints clears software breakpoints at addrs.
func (d *Driver) ClearSoftwareBreakpoints(ctx context.Context, addrs []uint32) error {
	return d.probe.ClearSoftwareBreakpoints(ctx, addrs)
}

// ClearAllBreakpoints clears all software breakpoints via the dedicated
// probe command, then clears each hardware breakpoint individually, per
// spec.md §4.2.
func (d *Driver) ClearAllBreakpoints(ctx context.Context) error {
	if err := d.probe.ClearAllSoftwareBreakpoints(ctx); err != nil {
		return err
	}
	addrs := make([]uint32, 0, len(d.hwBreakpoints))
	for addr := range d.hwBreakpoints {
		addrs = append(addrs, addr)
	}
	sort.Slice(addrs, func(i, j int) bool { return addrs[i] < addrs[j] })
	for _, addr := range addrs {
		if err := d.ClearHardwareBreakpoint(ctx, addr); err != nil {
			return err
		}
	}
	return nil
}

// FreeHardwareBreakpointSlots reports how many hardware breakpoint slots
// remain unallocated.
func (d *Driver) FreeHardwareBreakpointSlots() int {
	return d.maxHWSlots - len(d.hwBreakpoints)
}
