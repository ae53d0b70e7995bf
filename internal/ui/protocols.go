package ui

import (
	"fmt"
	"strings"

	"github.com/bnema/waycore/internal/protocol"
	"github.com/charmbracelet/lipgloss"
)

// RenderProtocols lists interfaces with their versions. With verbose set
// every request and event is shown with its opcode and signature.
func RenderProtocols(specs []*protocol.InterfaceSpec, verbose bool) string {
	var b strings.Builder
	b.WriteString(FormatHeader("PROTOCOLS", fmt.Sprintf("%d interfaces", len(specs))))
	b.WriteString("\n\n")

	if len(specs) == 0 {
		b.WriteString(MutedStyle.Italic(true).Render("No interfaces loaded"))
		b.WriteString("\n")
		return b.String()
	}

	width := 0
	for _, spec := range specs {
		width = max(width, lipgloss.Width(spec.Name))
	}
	nameStyle := TableCellStyle.Width(width + 2)

	b.WriteString(TableHeaderStyle.Render(fmt.Sprintf("%-*s  %-7s  %-8s  %s", width, "INTERFACE", "VERSION", "REQUESTS", "EVENTS")))
	b.WriteString("\n")
	for _, spec := range specs {
		b.WriteString(nameStyle.Render(spec.Name))
		b.WriteString(TextStyle.Render(fmt.Sprintf("v%-6d  %-8d  %d", spec.Version, len(spec.Requests), len(spec.Events))))
		b.WriteString("\n")
		if verbose {
			writeMessages(&b, "request", spec.Requests)
			writeMessages(&b, "event", spec.Events)
		}
	}
	return b.String()
}

func writeMessages(b *strings.Builder, kind string, msgs []protocol.MessageSpec) {
	for _, m := range msgs {
		line := fmt.Sprintf("    %-7s %2d %s", kind, m.Opcode, m.Name)
		b.WriteString(SubtleStyle.Render(line))
		b.WriteString(" ")
		b.WriteString(SignatureStyle.Render("(" + m.Signature() + ")"))
		if m.Since > 1 {
			b.WriteString(MutedStyle.Render(fmt.Sprintf(" since %d", m.Since)))
		}
		if m.Destructor {
			b.WriteString(WarningStyle.Render(" destructor"))
		}
		b.WriteString("\n")
	}
}
