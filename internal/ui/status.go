package ui

import (
	"fmt"
	"strings"

	"google.golang.org/protobuf/types/known/structpb"
)

// RenderStatus renders a status report received over the IPC socket.
func RenderStatus(report *structpb.Struct) string {
	f := report.GetFields()
	var b strings.Builder

	b.WriteString(FormatHeader("WAYCORE STATUS", f["socket"].GetStringValue()))
	b.WriteString("\n\n")

	var summary strings.Builder
	summary.WriteString(SuccessStyle.Render("● Running"))
	summary.WriteString(SubtleStyle.Render("  up " + f["uptime"].GetStringValue()))
	summary.WriteString("\n")
	summary.WriteString(SubheaderStyle.Render("Keyboard focus: "))
	summary.WriteString(focusText(f["keyboard_focus"].GetStringValue()))
	summary.WriteString("\n")
	summary.WriteString(SubheaderStyle.Render("Pointer focus:  "))
	summary.WriteString(focusText(f["pointer_focus"].GetStringValue()))
	summary.WriteString(SubtleStyle.Render(fmt.Sprintf("  at %.1f,%.1f",
		f["pointer_x"].GetNumberValue(), f["pointer_y"].GetNumberValue())))
	summary.WriteString("\n")
	summary.WriteString(SubtleStyle.Render(fmt.Sprintf("%d pointers, %d keyboards, %d touch",
		int(f["pointers"].GetNumberValue()),
		int(f["keyboards"].GetNumberValue()),
		int(f["touches"].GetNumberValue()))))
	b.WriteString(BoxStyle.Render(summary.String()))
	b.WriteString("\n\n")

	clients := f["clients"].GetListValue().GetValues()
	b.WriteString(SubheaderStyle.Render(fmt.Sprintf("Clients (%d)", len(clients))))
	b.WriteString("\n")
	if len(clients) == 0 {
		b.WriteString(MutedStyle.Italic(true).Render("  No clients connected"))
		b.WriteString("\n")
	}
	for _, v := range clients {
		c := v.GetStructValue().GetFields()
		session := c["session"].GetStringValue()
		if len(session) > 8 {
			session = session[:8]
		}
		line := fmt.Sprintf("client %d  pid %d  %d objects  session %s",
			int(c["id"].GetNumberValue()),
			int(c["pid"].GetNumberValue()),
			int(c["objects"].GetNumberValue()),
			session)
		b.WriteString(FormatListItem(line, false))
		b.WriteString("\n")
	}
	b.WriteString("\n")

	surfaces := f["surfaces"].GetListValue().GetValues()
	b.WriteString(SubheaderStyle.Render(fmt.Sprintf("Surfaces (%d)", len(surfaces))))
	b.WriteString("\n")
	if len(surfaces) == 0 {
		b.WriteString(MutedStyle.Italic(true).Render("  No surfaces"))
		b.WriteString("\n")
	}
	for _, v := range surfaces {
		s := v.GetStructValue().GetFields()
		line := fmt.Sprintf("%-10s %-12s %dx%d",
			s["id"].GetStringValue(),
			s["role"].GetStringValue(),
			int(s["width"].GetNumberValue()),
			int(s["height"].GetNumberValue()))
		if parent := s["parent"].GetStringValue(); parent != "" {
			line += SubtleStyle.Render(" parent " + parent)
		}
		b.WriteString("  ")
		b.WriteString(FormatStatus(s["mapped"].GetBoolValue(), line))
		b.WriteString("\n")
	}

	if devices := f["input_devices"].GetListValue().GetValues(); len(devices) > 0 {
		b.WriteString("\n")
		b.WriteString(SubheaderStyle.Render("Input devices"))
		b.WriteString("\n")
		for _, d := range devices {
			b.WriteString(FormatListItem(d.GetStringValue(), false))
			b.WriteString("\n")
		}
	}

	globals := f["globals"].GetListValue().GetValues()
	if len(globals) > 0 {
		b.WriteString("\n")
		b.WriteString(SubheaderStyle.Render("Globals"))
		b.WriteString("\n")
		for _, v := range globals {
			g := v.GetStructValue().GetFields()
			b.WriteString(SubtleStyle.Render(fmt.Sprintf("  %3d %s v%d",
				int(g["name"].GetNumberValue()),
				g["interface"].GetStringValue(),
				int(g["version"].GetNumberValue()))))
			b.WriteString("\n")
		}
	}

	b.WriteString(CreateSeparator(50, "─"))
	return b.String()
}

func focusText(id string) string {
	if id == "" {
		return MutedStyle.Render("none")
	}
	return InfoStyle.Bold(true).Render(id)
}
