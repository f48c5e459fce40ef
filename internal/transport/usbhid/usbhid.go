// Package usbhid implements transport.Transport over a gousb interrupt
// endpoint pair shaped like a USB HID report pipe, the wire this repo's EDBG
// probe talks. cmd/coredbgd is the only caller; internal/probe/edbg never
// imports gousb directly.
package usbhid

import (
	"context"
	"fmt"

	"github.com/google/gousb"

	"github.com/mcudbg/coredbg/internal/coreerr"
)

// Transport is an interrupt-endpoint transport.Transport implementation
// sized to one fixed HID report length per direction.
type Transport struct {
	ctx    *gousb.Context
	device *gousb.Device
	config *gousb.Config
	intf   *gousb.Interface
	out    *gousb.OutEndpoint
	in     *gousb.InEndpoint

	reportSize int
}

// Open claims configuration configNum, interface/alt setting
// (interfaceNum, altNum) on the first device matching vid/pid, and opens
// outEndpoint/inEndpoint as interrupt endpoints reporting reportSize-byte
// HID reports.
func Open(vid, pid gousb.ID, configNum, interfaceNum, altNum int, outEndpoint, inEndpoint int, reportSize int) (*Transport, error) {
	usbCtx := gousb.NewContext()

	device, err := usbCtx.OpenDeviceWithVIDPID(vid, pid)
	if err != nil {
		usbCtx.Close()
		return nil, coreerr.NewDeviceCommunicationFailure("usbhid: opening device %s:%s: %v", vid, pid, err)
	}
	if device == nil {
		usbCtx.Close()
		return nil, coreerr.NewDeviceCommunicationFailure("usbhid: no device found for %s:%s", vid, pid)
	}

	// CMSIS-DAP probes enumerate as a composite device; detaching the
	// kernel's hidraw/usbhid driver first lets gousb claim the interface.
	if err := device.SetAutoDetach(true); err != nil {
		device.Close()
		usbCtx.Close()
		return nil, coreerr.NewDeviceCommunicationFailure("usbhid: enabling auto kernel-driver detach: %v", err)
	}

	config, err := device.Config(configNum)
	if err != nil {
		device.Close()
		usbCtx.Close()
		return nil, coreerr.NewDeviceCommunicationFailure("usbhid: setting config %d: %v", configNum, err)
	}

	intf, err := config.Interface(interfaceNum, altNum)
	if err != nil {
		config.Close()
		device.Close()
		usbCtx.Close()
		return nil, coreerr.NewDeviceCommunicationFailure("usbhid: claiming interface %d alt %d: %v", interfaceNum, altNum, err)
	}

	out, err := intf.OutEndpoint(outEndpoint)
	if err != nil {
		intf.Close()
		config.Close()
		device.Close()
		usbCtx.Close()
		return nil, coreerr.NewDeviceCommunicationFailure("usbhid: opening OUT endpoint %#x: %v", outEndpoint, err)
	}
	in, err := intf.InEndpoint(inEndpoint)
	if err != nil {
		intf.Close()
		config.Close()
		device.Close()
		usbCtx.Close()
		return nil, coreerr.NewDeviceCommunicationFailure("usbhid: opening IN endpoint %#x: %v", inEndpoint, err)
	}

	return &Transport{
		ctx:        usbCtx,
		device:     device,
		config:     config,
		intf:       intf,
		out:        out,
		in:         in,
		reportSize: reportSize,
	}, nil
}

// SendFrame pads frame to one HID report and writes it, then reads and
// returns the next inbound report.
func (t *Transport) SendFrame(ctx context.Context, frame []byte) ([]byte, error) {
	report := make([]byte, t.reportSize)
	if len(frame) > t.reportSize {
		return nil, coreerr.NewConfigurationError("usbhid: frame of %d bytes exceeds the %d-byte report size", len(frame), t.reportSize)
	}
	copy(report, frame)

	if _, err := t.out.WriteContext(ctx, report); err != nil {
		return nil, coreerr.NewDeviceCommunicationFailure("usbhid: write: %v", err)
	}
	buf := make([]byte, t.reportSize)
	n, err := t.in.ReadContext(ctx, buf)
	if err != nil {
		return nil, coreerr.NewDeviceCommunicationFailure("usbhid: read: %v", err)
	}
	return buf[:n], nil
}

// ReadEvent is not pollable on this transport: CMSIS-DAP delivers every
// reply as a direct response to the command that requested it, and EDBG's
// break notifications arrive as the response payload of the command that
// triggered them (per internal/probe/edbg), not as an unsolicited report.
func (t *Transport) ReadEvent(ctx context.Context) ([]byte, bool, error) {
	return nil, false, nil
}

// MaxFrameSize returns the fixed HID report size.
func (t *Transport) MaxFrameSize() int { return t.reportSize }

// Close releases the USB interface, configuration, device, and context, in
// that order, tolerating an already-torn-down handle.
func (t *Transport) Close() error {
	if t.intf != nil {
		t.intf.Close()
	}
	if t.config != nil {
		t.config.Close()
	}
	var err error
	if t.device != nil {
		err = t.device.Close()
	}
	if t.ctx != nil {
		t.ctx.Close()
	}
	if err != nil {
		return fmt.Errorf("usbhid: closing device: %w", err)
	}
	return nil
}
