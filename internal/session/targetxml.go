package session

import (
	"fmt"
	"strings"
)

// targetDescriptionXML renders the minimal GDB target-description XML
// qXfer:features:read serves: one <reg> per entry in s.registers, named
// generically since neither driver's RegisterLayout carries GDB-specific
// names beyond what spec.md's TargetDescriptor already exposes as
// human-readable peripheral/register names.
func (s *Session) targetDescriptionXML() []byte {
	var sb strings.Builder
	sb.WriteString(`<?xml version="1.0"?>` + "\n")
	sb.WriteString("<!DOCTYPE target SYSTEM \"gdb-target.dtd\">\n")
	sb.WriteString(fmt.Sprintf("<target><architecture>%s</architecture><feature name=\"org.mcudbg.core\">\n", s.architectureName()))
	for i := 0; i < s.registers.Count(); i++ {
		bitsize := s.registers.RegisterSize(i) * 8
		sb.WriteString(fmt.Sprintf("<reg name=\"r%d\" bitsize=\"%d\" regnum=\"%d\"/>\n", i, bitsize, i))
	}
	sb.WriteString("</feature></target>\n")
	return []byte(sb.String())
}

func (s *Session) architectureName() string {
	if s.td != nil && s.td.Family != "" {
		return s.td.Family
	}
	return "unknown"
}
