package session

import (
	"context"
	"errors"

	"github.com/sirupsen/logrus"

	"github.com/mcudbg/coredbg/internal/coreerr"
	"github.com/mcudbg/coredbg/internal/rangestep"
	"github.com/mcudbg/coredbg/internal/rsp"
	"github.com/mcudbg/coredbg/internal/targetdesc"
)

func errUnknownRegister(index int) error {
	return coreerr.NewConfigurationError("unknown register index %d", index)
}

// packetCall is the session's analogue of the teacher's `call` struct in
// ogle/program/server: one request (here always an rsp.Packet, since
// unlike that server's heterogeneous RPC methods every request the
// session handles is already the same shape) paired with a channel the
// caller blocks on for the reply.
type packetCall struct {
	pkt   rsp.Packet
	respc chan packetResult
}

type packetResult struct {
	data []byte
	err  error
}

// breakPollResult is PollBreak's reply, carried over the run-loop the same
// way packetResult carries dispatch's.
type breakPollResult struct {
	data    []byte
	stopped bool
	err     error
}

// Session is the L5 Debug Session: per-connection state plus the
// single-goroutine run-loop that serialises every RSP command against
// the active target driver, per spec.md §5's single-threaded cooperative
// scheduling model.
type Session struct {
	target    TargetDriver
	registers RegisterLayout
	td        *targetdesc.TargetDescriptor
	log       *logrus.Entry

	rangeEngine *rangestep.Engine

	execState              ExecState
	waitingForBreak        bool
	programmingModeEnabled bool
	hwBreakpoints          map[uint64]bool
	swBreakpoints          map[uint64]int // address -> size

	packetc    chan packetCall
	breakPollc chan chan breakPollResult
}

// NewSession constructs a Session. programMemoryRange bounds the
// range-stepping engine's validity check (spec.md §4.4's "within program
// memory" rule); callers derive it from the TargetDescriptor's flash/prog
// segment.
func NewSession(target TargetDriver, registers RegisterLayout, td *targetdesc.TargetDescriptor, programMemoryRange rangestep.AddressRange, log *logrus.Entry) *Session {
	return &Session{
		target:        target,
		registers:     registers,
		td:            td,
		log:           log,
		rangeEngine:   rangestep.NewEngine(rangeStepTarget{target}, programMemoryRange),
		hwBreakpoints: make(map[uint64]bool),
		swBreakpoints: make(map[uint64]int),
	}
}

// Loop runs the session's run-loop until ctx is cancelled, draining
// packetc and dispatching each request in turn. The caller (cmd/coredbgd)
// feeds packets in via HandlePacket from whatever goroutine reads the
// debugger's TCP connection; this goroutine is the only one that ever
// touches the target driver, per spec.md §5's "no interior concurrency"
// rule.
func (s *Session) Loop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case pc := <-s.packetc:
			data, err := s.dispatch(ctx, pc.pkt)
			pc.respc <- packetResult{data: data, err: err}
		case respc := <-s.breakPollc:
			respc <- s.pollBreak(ctx)
		}
	}
}

// HandlePacket submits pkt to the run-loop and blocks for its reply.
func (s *Session) HandlePacket(ctx context.Context, pkt rsp.Packet) ([]byte, error) {
	respc := make(chan packetResult, 1)
	select {
	case s.packetc <- packetCall{pkt: pkt, respc: respc}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	select {
	case r := <-respc:
		return r.data, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// PollBreak asks the run-loop to check whether a running/stepping/
// range-stepping target has stopped, serialized against ordinary command
// dispatch the same way HandlePacket is. stopped is false when the target
// is still going and the caller should poll again.
func (s *Session) PollBreak(ctx context.Context) (reply []byte, stopped bool, err error) {
	respc := make(chan breakPollResult, 1)
	select {
	case s.breakPollc <- respc:
	case <-ctx.Done():
		return nil, false, ctx.Err()
	}
	select {
	case r := <-respc:
		return r.data, r.stopped, r.err
	case <-ctx.Done():
		return nil, false, ctx.Err()
	}
}

// Init must run before Loop's first HandlePacket; it sizes packetc and
// breakPollc. Split from NewSession so tests can construct a Session and
// call dispatch directly without a running Loop goroutine.
func (s *Session) Init() {
	s.packetc = make(chan packetCall)
	s.breakPollc = make(chan chan breakPollResult)
}

// dispatch is the error-translation boundary spec.md §7 describes:
// ordinary command failures become an E01 reply and the session stays
// alive; a DeviceCommunicationFailure propagates so the caller can tear
// the connection down.
func (s *Session) dispatch(ctx context.Context, pkt rsp.Packet) ([]byte, error) {
	reply, err := s.execute(ctx, pkt)
	if err == nil {
		return reply, nil
	}
	var dcf *coreerr.DeviceCommunicationFailure
	if errors.As(err, &dcf) {
		return nil, err
	}
	s.log.WithError(err).Warn("rsp command failed")
	return rsp.ErrorReply(0x01), nil
}

// Interrupt handles GDB's Ctrl-C (RSP `\x03`): stop the target and wait
// for the resulting break, per spec.md §5's cancellation contract.
func (s *Session) Interrupt(ctx context.Context) ([]byte, error) {
	if err := s.target.Stop(ctx); err != nil {
		return nil, err
	}
	s.execState = Stopped
	s.waitingForBreak = false
	return s.haltReasonReply(ctx)
}

// Teardown runs the four-step shutdown order spec.md §5 mandates on
// client disconnect: clear all breakpoints, exit programming mode if
// entered, detach, deactivate — each step tolerating failure of its
// predecessors and logging rather than re-throwing.
func (s *Session) Teardown(ctx context.Context) {
	if err := s.target.ClearAllBreakpoints(ctx); err != nil {
		s.log.WithError(err).Warn("teardown: clearing breakpoints failed")
	}
	if s.programmingModeEnabled {
		if err := s.target.DisableProgrammingMode(ctx); err != nil {
			s.log.WithError(err).Warn("teardown: leaving programming mode failed")
		}
	}
	if err := s.target.Detach(ctx); err != nil {
		s.log.WithError(err).Warn("teardown: detach failed")
	}
	if err := s.target.Deactivate(ctx); err != nil {
		s.log.WithError(err).Warn("teardown: deactivate failed")
	}
}

// haltReasonReply builds the `S05` (SIGTRAP) stop-reply spec.md §6 names
// as the minimum `?`/post-stop response.
func (s *Session) haltReasonReply(ctx context.Context) ([]byte, error) {
	return rsp.Encode([]byte("S05")), nil
}
