package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/mcudbg/coredbg/internal/rsp"
	"github.com/mcudbg/coredbg/internal/session"
)

// breakPollInterval bounds how often a connection with a command in
// flight (`c`, `s`, `vCont;c`/`vCont;r`) asks the session whether the
// target has stopped yet, and doubles as the read deadline waitForStop
// uses to check for an inbound Ctrl-C between polls.
const breakPollInterval = 5 * time.Millisecond

func newServeCmd() *cobra.Command {
	var (
		chip       string
		pf         probeFlags
		listenAddr string
		logLevel   string
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the GDB remote serial protocol server",
		RunE: func(cmd *cobra.Command, args []string) error {
			log, err := newLogger(logLevel)
			if err != nil {
				return err
			}
			return runServe(cmd.Context(), chip, pf, listenAddr, log.WithField("component", "serve"))
		},
	}
	addProbeFlags(cmd, &chip, &pf)
	cmd.Flags().StringVar(&listenAddr, "listen", "localhost:2331", "TCP address to accept GDB connections on")
	cmd.Flags().StringVar(&logLevel, "log-level", "info", "log level (panic, fatal, error, warn, info, debug, trace)")
	return cmd
}

func runServe(ctx context.Context, chip string, pf probeFlags, listenAddr string, log *logrus.Entry) error {
	r, err := buildSession(ctx, chip, pf, log)
	if err != nil {
		return fmt.Errorf("building session: %w", err)
	}
	defer r.Close()

	ln, err := net.Listen("tcp", listenAddr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", listenAddr, err)
	}
	defer ln.Close()
	log.WithField("addr", listenAddr).Info("listening for gdb connections")

	loopCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go r.sess.Loop(loopCtx)

	for {
		conn, err := ln.Accept()
		if err != nil {
			if loopCtx.Err() != nil {
				return nil
			}
			return fmt.Errorf("accept: %w", err)
		}
		// spec.md §5 is a single-target, single-session daemon: one
		// connection is served at a time, sequentially, per process
		// lifetime, so each Accept blocks the next until Teardown.
		handleConnection(loopCtx, conn, r.sess, log.WithField("remote", conn.RemoteAddr()))
	}
}

// handleConnection drives one GDB RSP connection to completion: the
// `+`/`-` acknowledgement retry loop, command dispatch, Ctrl-C handling,
// and teardown on disconnect.
func handleConnection(ctx context.Context, conn net.Conn, sess *session.Session, log *logrus.Entry) {
	defer conn.Close()
	defer sess.Teardown(ctx)
	log.Info("client connected")

	br := bufio.NewReader(conn)
	for {
		raw, err := readPacketOrSignal(br)
		if err != nil {
			if err != io.EOF {
				log.WithError(err).Warn("connection read failed")
			}
			return
		}
		if raw == nil {
			// Ctrl-C: stop the target immediately and report the halt.
			reply, err := sess.Interrupt(ctx)
			if err != nil {
				log.WithError(err).Warn("interrupt failed")
				continue
			}
			if _, err := conn.Write(reply); err != nil {
				return
			}
			continue
		}

		pkt, err := rsp.Decode(raw)
		if err != nil {
			log.WithError(err).Warn("malformed packet")
			conn.Write(rsp.Nack())
			continue
		}
		if _, err := conn.Write(rsp.Ack()); err != nil {
			return
		}

		reply, err := sess.HandlePacket(ctx, pkt)
		if err != nil {
			log.WithError(err).Error("command failed")
			return
		}
		if reply != nil {
			if _, err := conn.Write(reply); err != nil {
				return
			}
			continue
		}

		// No immediate reply: a run/step/range-step command was just
		// issued (dispatch.go's handleContinue/handleStep/executeVCont).
		// Poll the session until the target stops, watching the same
		// connection for an inbound Ctrl-C between polls.
		stopReply, err := waitForStop(ctx, conn, br, sess)
		if err != nil {
			if err != io.EOF {
				log.WithError(err).Warn("waiting for target stop failed")
			}
			return
		}
		if stopReply != nil {
			if _, err := conn.Write(stopReply); err != nil {
				return
			}
		}
	}
}

// waitForStop alternates between a short-deadline read (to catch Ctrl-C
// without a second goroutine racing br's buffer) and PollBreak, until the
// target stops or the client interrupts it.
func waitForStop(ctx context.Context, conn net.Conn, br *bufio.Reader, sess *session.Session) ([]byte, error) {
	for {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		conn.SetReadDeadline(time.Now().Add(breakPollInterval))
		b, err := br.ReadByte()
		conn.SetReadDeadline(time.Time{})
		switch {
		case err == nil:
			if b == 0x03 {
				return sess.Interrupt(ctx)
			}
			// GDB shouldn't send anything else while a command is
			// outstanding; drop it and keep waiting for the stop.
			continue
		case errors.Is(err, os.ErrDeadlineExceeded):
			reply, stopped, err := sess.PollBreak(ctx)
			if err != nil {
				return nil, err
			}
			if stopped {
				return reply, nil
			}
		default:
			return nil, err
		}
	}
}

// readPacketOrSignal reads one RSP unit from r: an ack/nack byte is
// consumed and skipped, a 0x03 (Ctrl-C) returns (nil, nil), and a `$...#cc`
// packet is returned whole (including the framing) for rsp.Decode.
func readPacketOrSignal(r *bufio.Reader) ([]byte, error) {
	for {
		b, err := r.ReadByte()
		if err != nil {
			return nil, err
		}
		switch b {
		case '+', '-':
			continue
		case 0x03:
			return nil, nil
		case '$':
			var buf []byte
			buf = append(buf, b)
			for {
				c, err := r.ReadByte()
				if err != nil {
					return nil, err
				}
				buf = append(buf, c)
				if c == '#' {
					var cksum [2]byte
					for i := range cksum {
						cksum[i], err = r.ReadByte()
						if err != nil {
							return nil, err
						}
					}
					buf = append(buf, cksum[0], cksum[1])
					return buf, nil
				}
			}
		default:
			continue
		}
	}
}
