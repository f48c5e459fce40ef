// Package wchlink implements the L3 probe interface for a WCH-Link probe:
// connection lifecycle, DMI read/write with busy-retry, and the dedicated
// flash-write command groups. It owns no target-architecture policy (which
// DMI registers mean what, flash write-path dispatch between partial and
// full-block writes) — that lives in internal/target/riscv, this package's
// only caller.
package wchlink

import (
	"context"
	"time"

	"github.com/mcudbg/coredbg/internal/coreerr"
	proto "github.com/mcudbg/coredbg/internal/probeproto/wchlink"
	"github.com/mcudbg/coredbg/internal/transport"
)

// dmiRetryAttempts and dmiRetryDelay bound the busy-retry loop for DMI
// operations per spec.md §5's timeout budget ("10-32 attempts, >=10us
// between attempts").
const (
	dmiRetryAttempts = 16
	dmiRetryDelay    = 20 * time.Microsecond
)

// Probe drives a WCH-Link probe over a Transport. Not safe for concurrent
// use; internal/session serialises all access through its run-loop.
type Probe struct {
	t          transport.Transport
	dataEndpt  transport.Transport // nil if the data endpoint shares t
}

// New wraps t in a Probe. If the data endpoint (used for flash write
// payloads) is a distinct USB endpoint from the command endpoint, pass it
// as dataEndpoint; otherwise pass nil to reuse t for both.
func New(t transport.Transport, dataEndpoint transport.Transport) *Probe {
	return &Probe{t: t, dataEndpt: dataEndpoint}
}

func (p *Probe) data() transport.Transport {
	if p.dataEndpt != nil {
		return p.dataEndpt
	}
	return p.t
}

func (p *Probe) send(ctx context.Context, f proto.Frame) ([]byte, error) {
	resp, err := p.t.SendFrame(ctx, f.Encode())
	if err != nil {
		return nil, coreerr.NewDeviceCommunicationFailure("wchlink: sending command %#x: %v", f.CmdID, err)
	}
	return resp, nil
}

// GetDeviceInfo sends GetDeviceInfo and decodes the firmware version and
// probe variant.
func (p *Probe) GetDeviceInfo(ctx context.Context) (proto.DeviceInfo, error) {
	resp, err := p.send(ctx, proto.GetDeviceInfo())
	if err != nil {
		return proto.DeviceInfo{}, err
	}
	info, err := proto.ParseDeviceInfo(resp)
	if err != nil {
		return proto.DeviceInfo{}, coreerr.NewDeviceCommunicationFailure("wchlink: %v", err)
	}
	return info, nil
}

// AttachTarget sends AttachTarget and returns the raw target ID byte
// (response payload[0]); the caller checks it against
// TargetIDRequiresPostAttach.
func (p *Probe) AttachTarget(ctx context.Context) (byte, error) {
	resp, err := p.send(ctx, proto.AttachTarget())
	if err != nil {
		return 0, err
	}
	if len(resp) < 1 {
		return 0, coreerr.NewDeviceCommunicationFailure("wchlink: AttachTarget response too short")
	}
	return resp[0], nil
}

// PostAttach sends PostAttach, required for targets whose AttachTarget
// returns TargetIDRequiresPostAttach before a second AttachTarget is
// trustworthy.
func (p *Probe) PostAttach(ctx context.Context) error {
	_, err := p.send(ctx, proto.PostAttach())
	return err
}

// DetachTarget sends DetachTarget.
func (p *Probe) DetachTarget(ctx context.Context) error {
	_, err := p.send(ctx, proto.DetachTarget())
	return err
}

// SetClockSpeed sends SetClockSpeed.
func (p *Probe) SetClockSpeed(ctx context.Context, targetGroupID byte, speed proto.ClockSpeed) error {
	_, err := p.send(ctx, proto.SetClockSpeed(targetGroupID, speed))
	return err
}

// DMIRead performs a DMI read of regAddr, retrying while the probe reports
// BUSY, up to dmiRetryAttempts.
func (p *Probe) DMIRead(ctx context.Context, regAddr byte) (uint32, error) {
	res, err := p.dmiRetry(ctx, regAddr, 0, proto.DMIRead)
	if err != nil {
		return 0, err
	}
	return res.Value, nil
}

// DMIWrite performs a DMI write of value to regAddr, retrying while the
// probe reports BUSY, up to dmiRetryAttempts.
func (p *Probe) DMIWrite(ctx context.Context, regAddr byte, value uint32) error {
	_, err := p.dmiRetry(ctx, regAddr, value, proto.DMIWrite)
	return err
}

func (p *Probe) dmiRetry(ctx context.Context, regAddr byte, value uint32, op proto.DMIOp) (proto.DMIResponse, error) {
	var last proto.DMIResponse
	for attempt := 0; attempt < dmiRetryAttempts; attempt++ {
		resp, err := p.send(ctx, proto.DMIOperation(regAddr, value, op))
		if err != nil {
			return proto.DMIResponse{}, err
		}
		res, err := proto.ParseDMIResponse(resp)
		if err != nil {
			return proto.DMIResponse{}, coreerr.NewDeviceCommunicationFailure("wchlink: %v", err)
		}
		last = res
		switch res.Status {
		case proto.DMISuccess:
			return res, nil
		case proto.DMIBusy:
			time.Sleep(dmiRetryDelay)
			continue
		case proto.DMIFailed:
			return proto.DMIResponse{}, coreerr.NewTargetOperationFailure(int(res.Status), "DMI operation failed")
		default:
			return proto.DMIResponse{}, coreerr.NewDeviceCommunicationFailure("wchlink: DMI operation returned unrecognised status %#x", res.Status)
		}
	}
	return proto.DMIResponse{}, coreerr.NewDeviceCommunicationFailure("wchlink: DMI operation stayed BUSY after %d attempts (last status %#x)", dmiRetryAttempts, last.Status)
}

// SetFlashWriteRegion sends SetFlashWriteRegion.
func (p *Probe) SetFlashWriteRegion(ctx context.Context, startAddress, bytes uint32) error {
	_, err := p.send(ctx, proto.SetFlashWriteRegion(startAddress, bytes))
	return err
}

// PreparePartialFlashBlockWrite sends PreparePartialFlashBlockWrite.
func (p *Probe) PreparePartialFlashBlockWrite(ctx context.Context, startAddr uint32, length byte) error {
	_, err := p.send(ctx, proto.PreparePartialFlashBlockWrite(startAddr, length))
	return err
}

// StartRamCodeWrite, EndRamCodeWrite, WriteFlash, EndProgrammingSession, and
// EraseProgramMemory each send their corresponding zero-argument flash
// command.

func (p *Probe) StartRamCodeWrite(ctx context.Context) error {
	_, err := p.send(ctx, proto.StartRamCodeWrite())
	return err
}

func (p *Probe) EndRamCodeWrite(ctx context.Context) error {
	_, err := p.send(ctx, proto.EndRamCodeWrite())
	return err
}

func (p *Probe) WriteFlash(ctx context.Context) error {
	_, err := p.send(ctx, proto.WriteFlash())
	return err
}

func (p *Probe) EndProgrammingSession(ctx context.Context) error {
	_, err := p.send(ctx, proto.EndProgrammingSession())
	return err
}

func (p *Probe) EraseProgramMemory(ctx context.Context) error {
	_, err := p.send(ctx, proto.EraseProgramMemory())
	return err
}

// WriteDataPayload writes a raw flash-write payload to the probe's data
// endpoint and reports whether the 4-byte status response indicates
// success.
func (p *Probe) WriteDataPayload(ctx context.Context, payload []byte) (bool, error) {
	resp, err := p.data().SendFrame(ctx, payload)
	if err != nil {
		return false, coreerr.NewDeviceCommunicationFailure("wchlink: writing flash data payload: %v", err)
	}
	return proto.IsDataEndpointSuccess(resp), nil
}

// Reattach performs the detach/GetDeviceInfo/attach resync sequence
// required after a full-block flash write, per spec.md §4.3.
func (p *Probe) Reattach(ctx context.Context) error {
	if err := p.DetachTarget(ctx); err != nil {
		return err
	}
	if _, err := p.GetDeviceInfo(ctx); err != nil {
		return err
	}
	targetID, err := p.AttachTarget(ctx)
	if err != nil {
		return err
	}
	if targetID == proto.TargetIDRequiresPostAttach {
		if err := p.PostAttach(ctx); err != nil {
			return err
		}
		if _, err := p.AttachTarget(ctx); err != nil {
			return err
		}
	}
	return nil
}
