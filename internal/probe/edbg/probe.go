// Package edbg implements the L3 probe interface for an EDBG/CMSIS-DAP
// probe talking the AVR8-Generic and AVR-ISP sub-protocols: connection
// lifecycle, chunked memory I/O, and programming-mode sub-sessions. It owns
// no target-architecture policy (memory-type selection, page-alignment
// expansion, masked-read emulation for non-SRAM types) — that lives in
// internal/target/avr8, which is this package's only caller.
package edbg

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/mcudbg/coredbg/internal/coreerr"
	"github.com/mcudbg/coredbg/internal/probeproto/edbgavr8"
	"github.com/mcudbg/coredbg/internal/probeproto/edbgisp"
	"github.com/mcudbg/coredbg/internal/transport"
)

// Probe drives an EDBG probe over a Transport. It is not safe for
// concurrent use; internal/session serialises all access through its
// single run-loop goroutine per spec.md §5.
type Probe struct {
	t   transport.Transport
	seq uint32
}

// New wraps t in a Probe.
func New(t transport.Transport) *Probe {
	return &Probe{t: t}
}

// MaxChunkSize returns the largest per-request byte count for memory
// access, computed as max(2*(probeInputReportSize-30), pageSize), per
// spec.md §4.2.
func (p *Probe) MaxChunkSize(pageSize int) int {
	c := 2 * (p.t.MaxFrameSize() - 30)
	if c < pageSize {
		return pageSize
	}
	return c
}

func (p *Probe) nextSeq() uint16 {
	return uint16(atomic.AddUint32(&p.seq, 1))
}

// sendAVR8 sends an AVR8-Generic frame and returns its raw response
// payload, translating a FAILED response into a TargetOperationFailure (or
// its DebugWirePhysicalInterfaceError subtype).
func (p *Probe) sendAVR8(ctx context.Context, f edbgavr8.Frame) ([]byte, error) {
	resp, err := p.t.SendFrame(ctx, f.Encode(p.nextSeq()))
	if err != nil {
		return nil, coreerr.NewDeviceCommunicationFailure("edbg: sending command %#x: %v", f.Command, err)
	}
	if edbgavr8.IsFailed(resp) {
		code := edbgavr8.FailureCode(resp)
		reason := edbgavr8.FailureReason(code)
		if coreerr.IsDebugWireActivationFailureCode(code) {
			return nil, coreerr.NewDebugWirePhysicalInterfaceError(code, reason)
		}
		return nil, coreerr.NewTargetOperationFailure(code, reason)
	}
	return resp, nil
}

// sendISP sends an AVR-ISP frame and returns its raw response payload.
func (p *Probe) sendISP(ctx context.Context, f edbgisp.Frame) ([]byte, error) {
	resp, err := p.t.SendFrame(ctx, f.Encode(p.nextSeq()))
	if err != nil {
		return nil, coreerr.NewDeviceCommunicationFailure("edbg: sending ISP command %#x: %v", f.Command, err)
	}
	return resp, nil
}

// Activate sends ActivatePhysical once, with or without an external reset
// as applyExternalReset selects. It does not retry; the caller
// (internal/target/avr8) decides whether a retry with an external reset is
// appropriate for the selected physical interface.
func (p *Probe) Activate(ctx context.Context, applyExternalReset bool) error {
	_, err := p.sendAVR8(ctx, edbgavr8.ActivatePhysical(applyExternalReset))
	return err
}

// Deactivate sends DeactivatePhysical.
func (p *Probe) Deactivate(ctx context.Context) error {
	_, err := p.sendAVR8(ctx, edbgavr8.DeactivatePhysical())
	return err
}

// Attach sends Attach.
func (p *Probe) Attach(ctx context.Context, breakAfterAttach bool) error {
	_, err := p.sendAVR8(ctx, edbgavr8.Attach(breakAfterAttach))
	return err
}

// Detach sends Detach.
func (p *Probe) Detach(ctx context.Context) error {
	_, err := p.sendAVR8(ctx, edbgavr8.Detach())
	return err
}

// EnterProgrammingMode sends EnterProgrammingMode.
func (p *Probe) EnterProgrammingMode(ctx context.Context) error {
	_, err := p.sendAVR8(ctx, edbgavr8.EnterProgrammingMode())
	return err
}

// LeaveProgrammingMode sends LeaveProgrammingMode.
func (p *Probe) LeaveProgrammingMode(ctx context.Context) error {
	_, err := p.sendAVR8(ctx, edbgavr8.LeaveProgrammingMode())
	return err
}

// DisableDebugWire sends DisableDebugWire.
func (p *Probe) DisableDebugWire(ctx context.Context) error {
	_, err := p.sendAVR8(ctx, edbgavr8.DisableDebugWire())
	return err
}

// SetParameter sends SetParameter.
func (p *Probe) SetParameter(ctx context.Context, context_, paramID byte, value []byte) error {
	_, err := p.sendAVR8(ctx, edbgavr8.SetParameter(context_, paramID, value))
	return err
}

// GetParameter sends GetParameter and returns the raw value bytes.
func (p *Probe) GetParameter(ctx context.Context, context_, paramID, length byte) ([]byte, error) {
	resp, err := p.sendAVR8(ctx, edbgavr8.GetParameter(context_, paramID, length))
	if err != nil {
		return nil, err
	}
	return edbgavr8.ParseGetParameter(resp)
}

// GetDeviceId sends GetDeviceId and returns the raw 3-byte (or "AVR ")
// response.
func (p *Probe) GetDeviceId(ctx context.Context) ([]byte, error) {
	resp, err := p.sendAVR8(ctx, edbgavr8.GetDeviceId())
	if err != nil {
		return nil, err
	}
	return edbgavr8.ParseGetDeviceId(resp)
}

// EraseMemory sends EraseMemory.
func (p *Probe) EraseMemory(ctx context.Context, mode edbgavr8.EraseMode, startAddress uint32) error {
	_, err := p.sendAVR8(ctx, edbgavr8.EraseMemory(mode, startAddress))
	return err
}

// ReadMemory reads n bytes of the given memory type starting at addr,
// issuing as many ReadMemory commands as needed to respect maxChunk.
func (p *Probe) ReadMemory(ctx context.Context, memType edbgavr8.MemoryType, addr uint32, n int, maxChunk int) ([]byte, error) {
	out := make([]byte, 0, n)
	for len(out) < n {
		chunk := n - len(out)
		if chunk > maxChunk {
			chunk = maxChunk
		}
		resp, err := p.sendAVR8(ctx, edbgavr8.ReadMemory(memType, addr+uint32(len(out)), uint32(chunk)))
		if err != nil {
			return nil, err
		}
		data, err := edbgavr8.ParseReadMemory(resp)
		if err != nil {
			return nil, coreerr.NewDeviceCommunicationFailure("edbg: %v", err)
		}
		if len(data) != chunk {
			return nil, coreerr.NewDeviceCommunicationFailure("edbg: ReadMemory returned %d bytes, expected %d", len(data), chunk)
		}
		out = append(out, data...)
	}
	return out, nil
}

// ReadMemoryMasked reads n bytes of the given memory type with a
// one-bit-per-byte inclusion mask, chunking to respect maxChunk. Excluded
// bytes come back as 0x00 from the probe itself; the caller does not need
// to splice them in.
func (p *Probe) ReadMemoryMasked(ctx context.Context, memType edbgavr8.MemoryType, addr uint32, n int, excluded map[uint32]bool, maxChunk int) ([]byte, error) {
	out := make([]byte, 0, n)
	for len(out) < n {
		chunk := n - len(out)
		if chunk > maxChunk {
			chunk = maxChunk
		}
		chunkAddr := addr + uint32(len(out))
		mask := edbgavr8.BuildInclusionMask(chunkAddr, chunk, excluded)
		resp, err := p.sendAVR8(ctx, edbgavr8.ReadMemoryMasked(memType, chunkAddr, uint32(chunk), mask))
		if err != nil {
			return nil, err
		}
		data, err := edbgavr8.ParseReadMemory(resp)
		if err != nil {
			return nil, coreerr.NewDeviceCommunicationFailure("edbg: %v", err)
		}
		if len(data) != chunk {
			return nil, coreerr.NewDeviceCommunicationFailure("edbg: masked ReadMemory returned %d bytes, expected %d", len(data), chunk)
		}
		out = append(out, data...)
	}
	return out, nil
}

// WriteMemory writes data to the given memory type starting at addr,
// issuing as many WriteMemory commands as needed to respect maxChunk.
func (p *Probe) WriteMemory(ctx context.Context, memType edbgavr8.MemoryType, addr uint32, data []byte, maxChunk int) error {
	for off := 0; off < len(data); {
		chunk := len(data) - off
		if chunk > maxChunk {
			chunk = maxChunk
		}
		_, err := p.sendAVR8(ctx, edbgavr8.WriteMemory(memType, addr+uint32(off), data[off:off+chunk]))
		if err != nil {
			return err
		}
		off += chunk
	}
	return nil
}

// Stop sends Stop.
func (p *Probe) Stop(ctx context.Context, mode edbgavr8.StopMode) error {
	_, err := p.sendAVR8(ctx, edbgavr8.Stop(mode))
	return err
}

// Run sends Run.
func (p *Probe) Run(ctx context.Context) error {
	_, err := p.sendAVR8(ctx, edbgavr8.Run())
	return err
}

// RunTo sends RunTo.
func (p *Probe) RunTo(ctx context.Context, byteAddress uint32) error {
	_, err := p.sendAVR8(ctx, edbgavr8.RunTo(byteAddress))
	return err
}

// Step sends Step.
func (p *Probe) Step(ctx context.Context) error {
	_, err := p.sendAVR8(ctx, edbgavr8.Step())
	return err
}

// GetProgramCounter sends GetProgramCounter and returns the PC as a byte
// address (the wire's word address, multiplied by 2).
func (p *Probe) GetProgramCounter(ctx context.Context) (uint32, error) {
	resp, err := p.sendAVR8(ctx, edbgavr8.GetProgramCounter())
	if err != nil {
		return 0, err
	}
	wordPC, err := edbgavr8.ParseGetProgramCounter(resp)
	if err != nil {
		return 0, coreerr.NewDeviceCommunicationFailure("edbg: %v", err)
	}
	return wordPC * 2, nil
}

// SetProgramCounter sends SetProgramCounter. byteAddress is a caller-visible
// byte address.
func (p *Probe) SetProgramCounter(ctx context.Context, byteAddress uint32) error {
	_, err := p.sendAVR8(ctx, edbgavr8.SetProgramCounter(byteAddress))
	return err
}

// SetHardwareBreakpoint sends SetHardwareBreakpoint.
func (p *Probe) SetHardwareBreakpoint(ctx context.Context, slot byte, byteAddress uint32) error {
	resp, err := p.sendAVR8(ctx, edbgavr8.SetHardwareBreakpoint(slot, byteAddress))
	if err != nil {
		return err
	}
	if err := edbgavr8.ParseSetHardwareBreakpoint(resp); err != nil {
		return coreerr.NewDeviceCommunicationFailure("edbg: %v", err)
	}
	return nil
}

// ClearHardwareBreakpoint sends ClearHardwareBreakpoint.
func (p *Probe) ClearHardwareBreakpoint(ctx context.Context, slot byte) error {
	_, err := p.sendAVR8(ctx, edbgavr8.ClearHardwareBreakpoint(slot))
	return err
}

// SetSoftwareBreakpoints sends SetSoftwareBreakpoints.
func (p *Probe) SetSoftwareBreakpoints(ctx context.Context, addrs []uint32) error {
	_, err := p.sendAVR8(ctx, edbgavr8.SetSoftwareBreakpoints(addrs))
	return err
}

// ClearSoftwareBreakpoints sends ClearSoftwareBreakpoints.
func (p *Probe) ClearSoftwareBreakpoints(ctx context.Context, addrs []uint32) error {
	_, err := p.sendAVR8(ctx, edbgavr8.ClearSoftwareBreakpoints(addrs))
	return err
}

// ClearAllSoftwareBreakpoints sends ClearAllSoftwareBreakpoints.
func (p *Probe) ClearAllSoftwareBreakpoints(ctx context.Context) error {
	_, err := p.sendAVR8(ctx, edbgavr8.ClearAllSoftwareBreakpoints())
	return err
}

// PollBreakEvent drains one queued out-of-band event, if any, and reports
// whether it decoded as an AVR8_BREAK_EVENT.
func (p *Probe) PollBreakEvent(ctx context.Context) (edbgavr8.BreakEvent, bool, error) {
	raw, ok, err := p.t.ReadEvent(ctx)
	if err != nil {
		return edbgavr8.BreakEvent{}, false, coreerr.NewDeviceCommunicationFailure("edbg: polling for events: %v", err)
	}
	if !ok {
		return edbgavr8.BreakEvent{}, false, nil
	}
	ev, err := edbgavr8.ParseBreakEvent(raw)
	if err != nil {
		return edbgavr8.BreakEvent{}, false, coreerr.NewDeviceCommunicationFailure("edbg: %v", err)
	}
	return ev, true, nil
}

// ISP-mode operations, used for fuse/lock/signature access.

// EnterIspProgrammingMode sends the ISP EnterProgrammingMode command.
func (p *Probe) EnterIspProgrammingMode(ctx context.Context, timeout, stabDelay, cmdExeDelay, syncLoops, byteDelay, pollValue, pollIndex byte) error {
	_, err := p.sendISP(ctx, edbgisp.EnterProgrammingMode(timeout, stabDelay, cmdExeDelay, syncLoops, byteDelay, pollValue, pollIndex))
	return err
}

// LeaveIspProgrammingMode sends the ISP LeaveProgrammingMode command.
func (p *Probe) LeaveIspProgrammingMode(ctx context.Context, preDelay, postDelay byte) error {
	_, err := p.sendISP(ctx, edbgisp.LeaveProgrammingMode(preDelay, postDelay))
	return err
}

// ProgramFuse sends the ISP ProgramFuse command.
func (p *Probe) ProgramFuse(ctx context.Context, retAddr byte, fuseType edbgisp.FuseType, value byte) error {
	resp, err := p.sendISP(ctx, edbgisp.ProgramFuse(retAddr, fuseType, value))
	if err != nil {
		return err
	}
	if err := edbgisp.ParseWrite(resp); err != nil {
		return coreerr.NewTargetOperationFailure(int(resp[0]), fmt.Sprintf("program fuse: %v", err))
	}
	return nil
}

// ReadFuse sends the ISP ReadFuse command and returns the fuse value.
func (p *Probe) ReadFuse(ctx context.Context, retAddr byte, fuseType edbgisp.FuseType) (byte, error) {
	resp, err := p.sendISP(ctx, edbgisp.ReadFuse(retAddr, fuseType))
	if err != nil {
		return 0, err
	}
	res, err := edbgisp.ParseRead(resp)
	if err != nil {
		return 0, coreerr.NewTargetOperationFailure(int(resp[0]), fmt.Sprintf("read fuse: %v", err))
	}
	return res.Data, nil
}

// ReadLock sends the ISP ReadLock command and returns the lock byte.
func (p *Probe) ReadLock(ctx context.Context, retAddr byte) (byte, error) {
	resp, err := p.sendISP(ctx, edbgisp.ReadLock(retAddr))
	if err != nil {
		return 0, err
	}
	res, err := edbgisp.ParseRead(resp)
	if err != nil {
		return 0, coreerr.NewTargetOperationFailure(int(resp[0]), fmt.Sprintf("read lock: %v", err))
	}
	return res.Data, nil
}

// ReadSignature sends the ISP ReadSignature command for one signature byte.
func (p *Probe) ReadSignature(ctx context.Context, retAddr byte, index byte) (byte, error) {
	resp, err := p.sendISP(ctx, edbgisp.ReadSignature(retAddr, index))
	if err != nil {
		return 0, err
	}
	res, err := edbgisp.ParseRead(resp)
	if err != nil {
		return 0, coreerr.NewTargetOperationFailure(int(resp[0]), fmt.Sprintf("read signature byte %d: %v", index, err))
	}
	return res.Data, nil
}
