package rangestep_test

import (
	"context"
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/mcudbg/coredbg/internal/rangestep"
)

func TestRangeStep(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "rangestep suite")
}

// fakeTarget is a scripted rangestep.Target: program memory is a plain
// byte slice, hardware breakpoints and PC are recorded, Step/Run just
// advance a caller-driven cursor.
type fakeTarget struct {
	mem           []byte
	pc            uint32
	hwBreakpoints map[uint32]bool
	stepCalls     int
	runCalls      int
}

func newFakeTarget(mem []byte) *fakeTarget {
	return &fakeTarget{mem: mem, hwBreakpoints: map[uint32]bool{}}
}

func (f *fakeTarget) ReadProgramMemory(ctx context.Context, startAddr uint32, n int) ([]byte, error) {
	return f.mem[startAddr : startAddr+uint32(n)], nil
}
func (f *fakeTarget) SetHardwareBreakpoint(ctx context.Context, address uint32) error {
	f.hwBreakpoints[address] = true
	return nil
}
func (f *fakeTarget) ClearHardwareBreakpoint(ctx context.Context, address uint32) error {
	delete(f.hwBreakpoints, address)
	return nil
}
func (f *fakeTarget) Step(ctx context.Context) error { f.stepCalls++; return nil }
func (f *fakeTarget) Run(ctx context.Context) error  { f.runCalls++; return nil }
func (f *fakeTarget) GetProgramCounter(ctx context.Context) (uint32, error) { return f.pc, nil }

func le16(w uint16) []byte { return []byte{byte(w), byte(w >> 8)} }

var _ = Describe("Engine.Start validation", func() {
	var target *fakeTarget
	var engine *rangestep.Engine

	BeforeEach(func() {
		target = newFakeTarget(make([]byte, 0x1000))
		engine = rangestep.NewEngine(target, rangestep.AddressRange{Start: 0, End: 0x1000})
	})

	It("rejects start >= end", func() {
		Expect(engine.Start(context.Background(), 0x100, 0x100)).To(HaveOccurred())
	})

	It("rejects odd-aligned addresses", func() {
		Expect(engine.Start(context.Background(), 0x101, 0x200)).To(HaveOccurred())
	})

	It("rejects a range outside program memory", func() {
		Expect(engine.Start(context.Background(), 0x900, 0x1100)).To(HaveOccurred())
	})

	It("just steps once for a single-instruction range", func() {
		Expect(engine.Start(context.Background(), 0x100, 0x102)).NotTo(HaveOccurred())
		Expect(target.stepCalls).To(Equal(1))
		Expect(engine.Active()).To(BeTrue())
		Expect(engine.Session().InterceptedAddresses).To(HaveKey(uint32(0x102)))
	})
})

var _ = Describe("Engine interception rules", func() {
	var target *fakeTarget
	var engine *rangestep.Engine

	BeforeEach(func() {
		target = newFakeTarget(make([]byte, 0x1000))
		engine = rangestep.NewEngine(target, rangestep.AddressRange{Start: 0, End: 0x1000})
	})

	Context("an instruction that falls through with no control-flow change", func() {
		It("intercepts nothing but the range end", func() {
			copy(target.mem[0x100:], le16(0x0000)) // NOP
			copy(target.mem[0x102:], le16(0x0000))
			copy(target.mem[0x104:], le16(0x0000))
			Expect(engine.Start(context.Background(), 0x100, 0x106)).NotTo(HaveOccurred())
			Expect(engine.Session().InterceptedAddresses).To(Equal(map[uint32]bool{0x106: true}))
		})
	})

	Context("RJMP whose destination lies inside the range", func() {
		It("does not intercept the jump instruction or its destination", func() {
			// RJMP to the word two instructions ahead (k=1, skipping one NOP).
			copy(target.mem[0x100:], le16(0xC001))
			copy(target.mem[0x102:], le16(0x0000))
			copy(target.mem[0x104:], le16(0x0000))
			Expect(engine.Start(context.Background(), 0x100, 0x106)).NotTo(HaveOccurred())
			Expect(engine.Session().InterceptedAddresses).To(Equal(map[uint32]bool{0x106: true}))
		})
	})

	Context("RJMP whose destination lies outside the range but inside program memory", func() {
		It("intercepts the destination, not the jump instruction", func() {
			// RJMP with a large forward offset landing outside [start, end).
			copy(target.mem[0x100:], le16(0xC0FF))
			Expect(engine.Start(context.Background(), 0x100, 0x104)).NotTo(HaveOccurred())
			Expect(engine.Session().InterceptedAddresses).To(HaveKey(uint32(0x300)))
			Expect(engine.Session().InterceptedAddresses).NotTo(HaveKey(uint32(0x100)))
		})
	})

	Context("IJMP (register-indirect, destination unknown)", func() {
		It("intercepts the instruction address itself", func() {
			copy(target.mem[0x100:], le16(0x9409)) // IJMP
			copy(target.mem[0x102:], le16(0x0000))
			Expect(engine.Start(context.Background(), 0x100, 0x104)).NotTo(HaveOccurred())
			Expect(engine.Session().InterceptedAddresses).To(HaveKey(uint32(0x100)))
		})
	})
})

var _ = Describe("Engine.OnBreak", func() {
	var target *fakeTarget
	var engine *rangestep.Engine

	BeforeEach(func() {
		target = newFakeTarget(make([]byte, 0x1000))
		engine = rangestep.NewEngine(target, rangestep.AddressRange{Start: 0, End: 0x1000})
		Expect(engine.Start(context.Background(), 0x100, 0x110)).NotTo(HaveOccurred())
	})

	It("reports a stop when the PC has left the range", func() {
		target.pc = 0x200
		reportStop, err := engine.OnBreak(context.Background())
		Expect(err).NotTo(HaveOccurred())
		Expect(reportStop).To(BeTrue())
		Expect(engine.Active()).To(BeFalse())
	})

	It("reports a stop when the PC is at an intercepted address", func() {
		target.pc = 0x110 // the range end is always intercepted
		reportStop, err := engine.OnBreak(context.Background())
		Expect(err).NotTo(HaveOccurred())
		Expect(reportStop).To(BeTrue())
	})

	It("re-arms the range and resumes when the PC is still inside and not intercepted", func() {
		target.pc = 0x104
		reportStop, err := engine.OnBreak(context.Background())
		Expect(err).NotTo(HaveOccurred())
		Expect(reportStop).To(BeFalse())
		Expect(target.runCalls).To(Equal(1))
		Expect(engine.Active()).To(BeTrue())
	})
})
