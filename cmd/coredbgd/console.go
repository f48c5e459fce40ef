package main

import (
	"context"
	"encoding/hex"
	"fmt"
	"io"
	"os/user"
	"strings"

	"github.com/chzyer/readline"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/mcudbg/coredbg/internal/transport"
)

func newConsoleCmd() *cobra.Command {
	var (
		chip        string
		pf          probeFlags
		logLevel    string
		historyFile string
	)
	cmd := &cobra.Command{
		Use:   "console",
		Short: "Open an interactive prompt for sending raw probe frames",
		RunE: func(cmd *cobra.Command, args []string) error {
			log, err := newLogger(logLevel)
			if err != nil {
				return err
			}
			return runConsole(cmd.Context(), chip, pf, historyFile, log.WithField("component", "console"))
		},
	}
	addProbeFlags(cmd, &chip, &pf)
	cmd.Flags().StringVar(&logLevel, "log-level", "warn", "log level (panic, fatal, error, warn, info, debug, trace)")
	cmd.Flags().StringVar(&historyFile, "history-file", "", "readline history file (default: $HOME/.coredbgd_history)")
	return cmd
}

// runConsole opens the configured probe's transport directly and drops
// into a REPL that sends whatever hex-encoded bytes the operator types as
// a single frame, printing the raw hex reply. It bypasses the target
// driver and session entirely: this is a bring-up/diagnostic tool for
// exercising a probe's wire protocol by hand, not a GDB-facing surface.
func runConsole(ctx context.Context, chip string, pf probeFlags, historyFile string, log *logrus.Entry) error {
	r, err := buildSession(ctx, chip, pf, log)
	if err != nil {
		return fmt.Errorf("building session: %w", err)
	}
	defer r.Close()

	if historyFile == "" {
		if u, err := user.Current(); err == nil {
			historyFile = u.HomeDir + "/.coredbgd_history"
		}
	}
	rl, err := readline.NewEx(&readline.Config{
		Prompt:      "(coredbgd) ",
		HistoryFile: historyFile,
	})
	if err != nil {
		return fmt.Errorf("opening readline: %w", err)
	}
	defer rl.Close()

	fmt.Println("type hex bytes to send as a raw frame, or \"quit\" to exit")
	for {
		line, err := rl.Readline()
		if err == io.EOF || err == readline.ErrInterrupt {
			return nil
		}
		if err != nil {
			return err
		}
		line = strings.TrimSpace(line)
		switch {
		case line == "":
			continue
		case line == "quit" || line == "exit":
			return nil
		default:
			runConsoleCommand(ctx, r.transport, line, log)
		}
	}
}

func runConsoleCommand(ctx context.Context, t transport.Transport, line string, log *logrus.Entry) {
	frame, err := hex.DecodeString(strings.ReplaceAll(line, " ", ""))
	if err != nil {
		fmt.Printf("bad hex: %v\n", err)
		return
	}
	resp, err := t.SendFrame(ctx, frame)
	if err != nil {
		log.WithError(err).Error("frame send failed")
		return
	}
	fmt.Println(hex.EncodeToString(resp))
}
