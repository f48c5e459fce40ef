// Package usbbulk implements transport.Transport over a gousb bulk
// endpoint pair, the wire this repo's WCH-Link probe talks. cmd/coredbgd is
// the only caller; internal/probe/wchlink never imports gousb directly.
package usbbulk

import (
	"context"
	"fmt"

	"github.com/google/gousb"

	"github.com/mcudbg/coredbg/internal/coreerr"
)

// Transport is a bulk-endpoint transport.Transport implementation.
type Transport struct {
	ctx    *gousb.Context
	device *gousb.Device
	config *gousb.Config
	intf   *gousb.Interface
	out    *gousb.OutEndpoint
	in     *gousb.InEndpoint

	maxPacketSize int
	events        chan []byte
}

// Open claims configuration configNum, interface/alt setting
// (interfaceNum, altNum) on the first device matching vid/pid, and opens
// outEndpoint/inEndpoint as bulk endpoints.
func Open(vid, pid gousb.ID, configNum, interfaceNum, altNum int, outEndpoint, inEndpoint int) (*Transport, error) {
	usbCtx := gousb.NewContext()

	device, err := usbCtx.OpenDeviceWithVIDPID(vid, pid)
	if err != nil {
		usbCtx.Close()
		return nil, coreerr.NewDeviceCommunicationFailure("usbbulk: opening device %s:%s: %v", vid, pid, err)
	}
	if device == nil {
		usbCtx.Close()
		return nil, coreerr.NewDeviceCommunicationFailure("usbbulk: no device found for %s:%s", vid, pid)
	}

	config, err := device.Config(configNum)
	if err != nil {
		device.Close()
		usbCtx.Close()
		return nil, coreerr.NewDeviceCommunicationFailure("usbbulk: setting config %d: %v", configNum, err)
	}

	intf, err := config.Interface(interfaceNum, altNum)
	if err != nil {
		config.Close()
		device.Close()
		usbCtx.Close()
		return nil, coreerr.NewDeviceCommunicationFailure("usbbulk: claiming interface %d alt %d: %v", interfaceNum, altNum, err)
	}

	out, err := intf.OutEndpoint(outEndpoint)
	if err != nil {
		intf.Close()
		config.Close()
		device.Close()
		usbCtx.Close()
		return nil, coreerr.NewDeviceCommunicationFailure("usbbulk: opening OUT endpoint %#x: %v", outEndpoint, err)
	}
	in, err := intf.InEndpoint(inEndpoint)
	if err != nil {
		intf.Close()
		config.Close()
		device.Close()
		usbCtx.Close()
		return nil, coreerr.NewDeviceCommunicationFailure("usbbulk: opening IN endpoint %#x: %v", inEndpoint, err)
	}

	return &Transport{
		ctx:           usbCtx,
		device:        device,
		config:        config,
		intf:          intf,
		out:           out,
		in:            in,
		maxPacketSize: out.Desc.MaxPacketSize,
		events:        make(chan []byte, 8),
	}, nil
}

// SendFrame writes frame to the OUT endpoint and reads one response packet
// from the IN endpoint.
func (t *Transport) SendFrame(ctx context.Context, frame []byte) ([]byte, error) {
	if _, err := t.out.WriteContext(ctx, frame); err != nil {
		return nil, coreerr.NewDeviceCommunicationFailure("usbbulk: write: %v", err)
	}
	buf := make([]byte, t.in.Desc.MaxPacketSize)
	n, err := t.in.ReadContext(ctx, buf)
	if err != nil {
		return nil, coreerr.NewDeviceCommunicationFailure("usbbulk: read: %v", err)
	}
	return buf[:n], nil
}

// ReadEvent drains one already-queued out-of-band event, if any. The
// WCH-Link protocol delivers everything as a direct response to a command
// it issued, so no background reader feeds t.events yet; this is here to
// satisfy transport.Transport and to leave a documented extension point if
// a future WCH-Link firmware starts pushing unsolicited notifications.
func (t *Transport) ReadEvent(ctx context.Context) ([]byte, bool, error) {
	select {
	case ev := <-t.events:
		return ev, true, nil
	default:
		return nil, false, nil
	}
}

// MaxFrameSize returns the bulk OUT endpoint's max packet size.
func (t *Transport) MaxFrameSize() int { return t.maxPacketSize }

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
		return fmt.Errorf("usbbulk: closing device: %w", err)
	}
	return nil
}
