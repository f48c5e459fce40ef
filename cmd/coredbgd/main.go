// Command coredbgd is the on-chip debugger daemon: it translates GDB
// Remote Serial Protocol commands into vendor wire-level frames for an
// EDBG/CMSIS-DAP probe (Microchip AVR8) or a WCH-Link probe (WCH RISC-V),
// through the layered transport/probe/target/session stack in internal/.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "coredbgd",
		Short:         "GDB-to-vendor-wire debug probe daemon",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newServeCmd(), newConsoleCmd())
	return root
}
