package session

import (
	"context"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"

	"github.com/mcudbg/coredbg/internal/rsp"
)

// execute is the real RSP command switch; dispatch wraps it with the
// error-to-E01 translation boundary.
func (s *Session) execute(ctx context.Context, pkt rsp.Packet) ([]byte, error) {
	if len(pkt.Raw) == 0 {
		return nil, nil
	}
	switch cmd := pkt.Command(); cmd {
	case '?':
		return s.haltReasonReply(ctx)
	case 'g':
		return s.handleReadAllRegisters(ctx)
	case 'G':
		return s.handleWriteAllRegisters(ctx, pkt.Raw[1:])
	case 'p':
		return s.handleReadOneRegister(ctx, pkt.Raw[1:])
	case 'P':
		return s.handleWriteOneRegister(ctx, pkt.Raw[1:])
	case 'm':
		return s.handleReadMemory(ctx, pkt.Raw[1:])
	case 'M':
		return s.handleWriteMemory(ctx, pkt.Raw[1:])
	case 'X':
		return s.handleWriteMemoryBinary(ctx, pkt.Raw[1:])
	case 'c':
		return s.handleContinue(ctx)
	case 's':
		return s.handleStep(ctx)
	case 'Z', 'z':
		return s.handleBreakpoint(ctx, cmd, pkt.Raw[1:])
	case 'v':
		return s.handleMultiLetterV(ctx, pkt.Raw)
	case 'q':
		return s.handleMultiLetterQ(ctx, pkt.Raw)
	default:
		return nil, nil // empty reply: "unsupported", per RSP convention
	}
}

func (s *Session) handleReadAllRegisters(ctx context.Context) ([]byte, error) {
	var sb strings.Builder
	for i := 0; i < s.registers.Count(); i++ {
		v, err := s.registers.ReadRegister(ctx, i)
		if err != nil {
			return nil, err
		}
		sb.WriteString(hex.EncodeToString(v))
	}
	return rsp.Encode([]byte(sb.String())), nil
}

func (s *Session) handleWriteAllRegisters(ctx context.Context, args []byte) ([]byte, error) {
	data, err := hex.DecodeString(string(args))
	if err != nil {
		return nil, fmt.Errorf("rsp: malformed G payload: %w", err)
	}
	off := 0
	for i := 0; i < s.registers.Count(); i++ {
		n := s.registers.RegisterSize(i)
		if off+n > len(data) {
			return nil, fmt.Errorf("rsp: G payload shorter than register file")
		}
		if err := s.registers.WriteRegister(ctx, i, data[off:off+n]); err != nil {
			return nil, err
		}
		off += n
	}
	return rsp.OK(), nil
}

func (s *Session) handleReadOneRegister(ctx context.Context, args []byte) ([]byte, error) {
	idx, err := strconv.ParseInt(string(args), 16, 32)
	if err != nil {
		return nil, fmt.Errorf("rsp: malformed register index %q: %w", args, err)
	}
	v, err := s.registers.ReadRegister(ctx, int(idx))
	if err != nil {
		return nil, err
	}
	return rsp.Encode([]byte(hex.EncodeToString(v))), nil
}

func (s *Session) handleWriteOneRegister(ctx context.Context, args []byte) ([]byte, error) {
	idxStr, dataStr, ok := strings.Cut(string(args), "=")
	if !ok {
		return nil, fmt.Errorf("rsp: malformed P packet %q", args)
	}
	idx, err := strconv.ParseInt(idxStr, 16, 32)
	if err != nil {
		return nil, fmt.Errorf("rsp: malformed register index %q: %w", idxStr, err)
	}
	data, err := hex.DecodeString(dataStr)
	if err != nil {
		return nil, fmt.Errorf("rsp: malformed P payload: %w", err)
	}
	if err := s.registers.WriteRegister(ctx, int(idx), data); err != nil {
		return nil, err
	}
	return rsp.OK(), nil
}

func parseAddrLength(s string) (addr uint64, length int, err error) {
	addrStr, lenStr, ok := strings.Cut(s, ",")
	if !ok {
		return 0, 0, fmt.Errorf("rsp: malformed addr,length %q", s)
	}
	a, err := strconv.ParseUint(addrStr, 16, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("rsp: malformed address %q: %w", addrStr, err)
	}
	l, err := strconv.ParseUint(lenStr, 16, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("rsp: malformed length %q: %w", lenStr, err)
	}
	return a, int(l), nil
}

func (s *Session) handleReadMemory(ctx context.Context, args []byte) ([]byte, error) {
	addr, length, err := parseAddrLength(string(args))
	if err != nil {
		return nil, err
	}
	data, err := s.target.ReadMemory(ctx, uint32(addr), length)
	if err != nil {
		return nil, err
	}
	return rsp.Encode([]byte(hex.EncodeToString(data))), nil
}

func (s *Session) handleWriteMemory(ctx context.Context, args []byte) ([]byte, error) {
	header, hexData, ok := strings.Cut(string(args), ":")
	if !ok {
		return nil, fmt.Errorf("rsp: malformed M packet %q", args)
	}
	addr, length, err := parseAddrLength(header)
	if err != nil {
		return nil, err
	}
	data, err := hex.DecodeString(hexData)
	if err != nil {
		return nil, fmt.Errorf("rsp: malformed M payload: %w", err)
	}
	if len(data) != length {
		return nil, fmt.Errorf("rsp: M payload length %d does not match declared length %d", len(data), length)
	}
	if err := s.target.WriteMemory(ctx, uint32(addr), data); err != nil {
		return nil, err
	}
	return rsp.OK(), nil
}

func (s *Session) handleWriteMemoryBinary(ctx context.Context, args []byte) ([]byte, error) {
	header, rawData, ok := strings.Cut(string(args), ":")
	if !ok {
		return nil, fmt.Errorf("rsp: malformed X packet %q", args)
	}
	addr, _, err := parseAddrLength(header)
	if err != nil {
		return nil, err
	}
	if err := s.target.WriteMemory(ctx, uint32(addr), []byte(rawData)); err != nil {
		return nil, err
	}
	return rsp.OK(), nil
}

func (s *Session) handleContinue(ctx context.Context) ([]byte, error) {
	if err := s.target.Run(ctx); err != nil {
		return nil, err
	}
	s.execState = Running
	s.waitingForBreak = true
	return nil, nil
}

func (s *Session) handleStep(ctx context.Context) ([]byte, error) {
	if err := s.target.Step(ctx); err != nil {
		return nil, err
	}
	s.execState = Stepping
	s.waitingForBreak = true
	return nil, nil
}

func (s *Session) handleBreakpoint(ctx context.Context, cmd byte, args []byte) ([]byte, error) {
	req, err := rsp.ParseBreakpoint(cmd, args)
	if err != nil {
		return nil, err
	}
	switch req.Kind {
	case rsp.HardwareBreakpoint:
		if req.Set {
			if err := s.target.SetHardwareBreakpoint(ctx, uint32(req.Address)); err != nil {
				return nil, err
			}
			s.hwBreakpoints[req.Address] = true
		} else {
			if err := s.target.ClearHardwareBreakpoint(ctx, uint32(req.Address)); err != nil {
				return nil, err
			}
			delete(s.hwBreakpoints, req.Address)
		}
	case rsp.SoftwareBreakpoint:
		if req.Set {
			if err := s.target.SetSoftwareBreakpoint(ctx, uint32(req.Address), int(req.Length)); err != nil {
				return nil, err
			}
			s.swBreakpoints[req.Address] = int(req.Length)
		} else {
			if err := s.target.ClearSoftwareBreakpoint(ctx, uint32(req.Address)); err != nil {
				return nil, err
			}
			delete(s.swBreakpoints, req.Address)
		}
	}
	return rsp.OK(), nil
}

// handleMultiLetterV handles the `v...` packet family: only `vCont` (and
// its `vCont?` capability probe) per spec.md §6's required subset.
func (s *Session) handleMultiLetterV(ctx context.Context, raw []byte) ([]byte, error) {
	s2 := string(raw)
	switch {
	case s2 == "vCont?":
		return rsp.Encode([]byte("vCont;c;s;r")), nil
	case strings.HasPrefix(s2, "vCont"):
		actions, err := rsp.ParseVCont(raw[len("vCont"):])
		if err != nil {
			return nil, err
		}
		return s.executeVCont(ctx, actions)
	default:
		return nil, nil
	}
}

func (s *Session) executeVCont(ctx context.Context, actions []rsp.VContAction) ([]byte, error) {
	for _, a := range actions {
		switch a.Kind {
		case rsp.VContContinue:
			if err := s.target.Run(ctx); err != nil {
				return nil, err
			}
			s.execState = Running
		case rsp.VContStep:
			if err := s.target.Step(ctx); err != nil {
				return nil, err
			}
			s.execState = Stepping
		case rsp.VContRangeStep:
			if err := s.rangeEngine.Start(ctx, uint32(a.RangeStart), uint32(a.RangeEnd)); err != nil {
				return nil, err
			}
			s.execState = Running
		}
	}
	s.waitingForBreak = true
	return nil, nil
}

// OnBreak is called by the run-loop whenever the target reports a break
// while waitingForBreak is set. It folds in the range-stepping engine's
// own on-break contract (spec.md §4.4's re-arm-or-stop rule) before
// reporting the halt to the debugger connection.
func (s *Session) OnBreak(ctx context.Context) ([]byte, error) {
	if s.rangeEngine.Active() {
		reportStop, err := s.rangeEngine.OnBreak(ctx)
		if err != nil {
			return nil, err
		}
		if !reportStop {
			return nil, nil
		}
	}
	s.execState = Stopped
	s.waitingForBreak = false
	return s.haltReasonReply(ctx)
}

// WaitingForBreak reports whether the run-loop should be polling the
// target for a break event rather than waiting on the next RSP command.
func (s *Session) WaitingForBreak() bool { return s.waitingForBreak }

// pollBreak backs PollBreak: it only consults OnBreak once the target
// driver itself reports Stopped (GetExecutionState is what actually polls
// the probe for a break event), so a caller polling in a loop gets
// stopped=false on every tick the target is still running.
func (s *Session) pollBreak(ctx context.Context) breakPollResult {
	if !s.waitingForBreak {
		return breakPollResult{stopped: false}
	}
	state, err := s.target.GetExecutionState(ctx)
	if err != nil {
		return breakPollResult{err: err}
	}
	if state != Stopped {
		return breakPollResult{stopped: false}
	}
	data, err := s.OnBreak(ctx)
	if err != nil {
		return breakPollResult{err: err}
	}
	return breakPollResult{data: data, stopped: data != nil}
}

// handleMultiLetterQ handles the `q...` packet family: qSupported and
// qXfer:features:read, per spec.md §6's required subset.
func (s *Session) handleMultiLetterQ(ctx context.Context, raw []byte) ([]byte, error) {
	s2 := string(raw)
	switch {
	case strings.HasPrefix(s2, "qSupported"):
		rsp.ParseQSupported(raw[len("qSupported"):]) // parsed for future negotiation; this core advertises a fixed feature set
		return rsp.Encode([]byte("PacketSize=4000;qXfer:features:read+;swbreak+;hwbreak+")), nil
	case strings.HasPrefix(s2, "qXfer:features:read"):
		req, err := rsp.ParseQXfer(raw)
		if err != nil {
			return nil, err
		}
		return rsp.Encode(rsp.EncodeQXferReply(s.targetDescriptionXML(), req.Offset, req.Length)), nil
	default:
		return nil, nil
	}
}
