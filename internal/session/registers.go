package session

import (
	"context"
	"encoding/binary"
	"fmt"

	"github.com/mcudbg/coredbg/internal/target/avr8"
	"github.com/mcudbg/coredbg/internal/target/riscv"
	"github.com/mcudbg/coredbg/internal/targetdesc"
)

// RegisterLayout maps GDB's flat, architecture-specific register index
// (as used by `g`/`G`/`p`/`P`) onto the concrete driver calls that read or
// write it. Neither target package expresses a GDB register order of its
// own (spec.md's TargetDescriptor doesn't name one either), so each
// layout below fixes the same order that architecture's standard GDB
// target description uses.
type RegisterLayout interface {
	Count() int
	RegisterSize(index int) int
	ReadRegister(ctx context.Context, index int) ([]byte, error)
	WriteRegister(ctx context.Context, index int, data []byte) error
}

// Avr8RegisterLayout orders registers as r0-r31, SREG, SP (16-bit), PC
// (32-bit byte address), the layout avr-gdb's target description uses.
type Avr8RegisterLayout struct {
	D *avr8.Driver
}

const (
	avr8SREGAddr = 0x5F
	avr8SPLAddr  = 0x5D
	avr8NumRegs  = 35 // 32 GPRs + SREG + SP + PC
)

func (l *Avr8RegisterLayout) Count() int { return avr8NumRegs }

func (l *Avr8RegisterLayout) RegisterSize(index int) int {
	switch {
	case index < 32, index == 32:
		return 1
	case index == 33:
		return 2
	default:
		return 4
	}
}

// descriptorFor builds the ad-hoc RegisterDescriptor D.ReadRegisters/
// WriteRegisters need; they only consult Name, StartAddress, and Size.
func descriptorFor(name string, addr uint64, size uint8) *targetdesc.RegisterDescriptor {
	return &targetdesc.RegisterDescriptor{Name: name, StartAddress: addr, Size: size}
}

func (l *Avr8RegisterLayout) ReadRegister(ctx context.Context, index int) ([]byte, error) {
	if index == 34 { // PC has no on-chip SRAM address; read directly.
		pc, err := l.D.GetProgramCounter(ctx)
		if err != nil {
			return nil, err
		}
		buf := make([]byte, 4)
		binary.LittleEndian.PutUint32(buf, pc)
		return buf, nil
	}
	desc, err := l.descriptorForIndex(index)
	if err != nil {
		return nil, err
	}
	values, err := l.D.ReadRegisters(ctx, []*targetdesc.RegisterDescriptor{desc})
	if err != nil {
		return nil, err
	}
	return reverseLE(values[desc.Name]), nil
}

func (l *Avr8RegisterLayout) WriteRegister(ctx context.Context, index int, data []byte) error {
	if index == 34 {
		return l.D.SetProgramCounter(ctx, binary.LittleEndian.Uint32(data))
	}
	desc, err := l.descriptorForIndex(index)
	if err != nil {
		return err
	}
	return l.D.WriteRegisters(ctx, map[string][]byte{desc.Name: reverseLE(data)}, []*targetdesc.RegisterDescriptor{desc})
}

func (l *Avr8RegisterLayout) descriptorForIndex(index int) (*targetdesc.RegisterDescriptor, error) {
	switch {
	case index < 32:
		return descriptorFor(fmt.Sprintf("r%d", index), uint64(index), 1), nil
	case index == 32:
		return descriptorFor("sreg", avr8SREGAddr, 1), nil
	case index == 33:
		return descriptorFor("sp", avr8SPLAddr, 2), nil
	default:
		return nil, errUnknownRegister(index)
	}
}

// reverseLE reverses byte order: D.ReadRegisters/WriteRegisters already
// flip the AVR's little-endian on-chip layout to/from big-endian, but GDB
// wants the session's own little-endian wire order, so this undoes that
// flip rather than introducing a third convention.
func reverseLE(b []byte) []byte {
	out := make([]byte, len(b))
	for i, v := range b {
		out[len(b)-1-i] = v
	}
	return out
}

// RiscVRegisterLayout orders registers as x0-x31, pc, the layout RISC-V's
// standard GDB target description uses.
type RiscVRegisterLayout struct {
	D *riscv.Driver
}

const riscvNumRegs = 33 // 32 GPRs + PC

func (l *RiscVRegisterLayout) Count() int { return riscvNumRegs }

func (l *RiscVRegisterLayout) RegisterSize(index int) int { return 4 }

func (l *RiscVRegisterLayout) ReadRegister(ctx context.Context, index int) ([]byte, error) {
	buf := make([]byte, 4)
	switch {
	case index < 32:
		v, err := l.D.ReadGPR(ctx, index)
		if err != nil {
			return nil, err
		}
		binary.LittleEndian.PutUint32(buf, v)
		return buf, nil
	case index == 32:
		v, err := l.D.GetProgramCounter(ctx)
		if err != nil {
			return nil, err
		}
		binary.LittleEndian.PutUint32(buf, v)
		return buf, nil
	default:
		return nil, errUnknownRegister(index)
	}
}

func (l *RiscVRegisterLayout) WriteRegister(ctx context.Context, index int, data []byte) error {
	v := binary.LittleEndian.Uint32(data)
	switch {
	case index < 32:
		return l.D.WriteGPR(ctx, index, v)
	case index == 32:
		return l.D.SetProgramCounter(ctx, v)
	default:
		return errUnknownRegister(index)
	}
}
