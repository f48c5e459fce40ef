package main

import "github.com/spf13/cobra"

// addProbeFlags registers the USB probe-addressing and chip-selection
// flags shared by `serve` and `console`. Everything the daemon needs to
// open a device and activate a target comes from these flags; per
// SPEC_FULL.md's AMBIENT STACK, no config file format is invented.
func addProbeFlags(cmd *cobra.Command, chip *string, pf *probeFlags) {
	cmd.Flags().StringVar(chip, "chip", "", "built-in target profile to use (one of: "+chipNames()+")")
	cmd.Flags().Uint16Var(&pf.vid, "vid", 0, "probe USB vendor ID")
	cmd.Flags().Uint16Var(&pf.pid, "pid", 0, "probe USB product ID")
	cmd.Flags().IntVar(&pf.configNum, "usb-config", 1, "USB configuration number to select")
	cmd.Flags().IntVar(&pf.interfaceNum, "usb-interface", 0, "USB interface number to claim")
	cmd.Flags().IntVar(&pf.altNum, "usb-alt-setting", 0, "USB interface alternate setting")
	cmd.Flags().IntVar(&pf.outEndpoint, "out-endpoint", 0x01, "USB OUT endpoint address")
	cmd.Flags().IntVar(&pf.inEndpoint, "in-endpoint", 0x81, "USB IN endpoint address")
	cmd.Flags().IntVar(&pf.reportSize, "report-size", 0, "HID report size in bytes (avr8/usbhid probes only)")
	cmd.Flags().IntVar(&pf.dataOutEndpoint, "data-out-endpoint", 0, "second bulk OUT endpoint for flash payloads (riscv only; 0 to share --out-endpoint)")
	cmd.Flags().IntVar(&pf.dataInEndpoint, "data-in-endpoint", 0, "second bulk IN endpoint for flash payloads (riscv only; 0 to share --in-endpoint)")
	cmd.Flags().IntVar(&pf.maxHWSlots, "max-hw-slots", 1, "number of hardware breakpoint/trigger slots the target implements")
	cmd.MarkFlagRequired("chip")
	cmd.MarkFlagRequired("vid")
	cmd.MarkFlagRequired("pid")
}
