package cli

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/vk/dynplug/internal/app"
	"github.com/vk/dynplug/internal/host"
	"github.com/vk/dynplug/loader"
)

// renderer styles output for w. Colours are dropped when w is not a
// terminal.
type renderer struct {
	w      io.Writer
	title  lipgloss.Style
	label  lipgloss.Style
	dim    lipgloss.Style
	good   lipgloss.Style
	bad    lipgloss.Style
	indent lipgloss.Style
}

func newRenderer(w io.Writer) *renderer {
	r := lipgloss.NewRenderer(w)
	return &renderer{
		w:      w,
		title:  r.NewStyle().Bold(true).Foreground(lipgloss.Color("86")),
		label:  r.NewStyle().Foreground(lipgloss.Color("245")),
		dim:    r.NewStyle().Foreground(lipgloss.Color("240")),
		good:   r.NewStyle().Foreground(lipgloss.Color("46")),
		bad:    r.NewStyle().Bold(true).Foreground(lipgloss.Color("196")),
		indent: r.NewStyle().PaddingLeft(2),
	}
}

func (r *renderer) summary(s app.Summary) {
	if s.Err != nil {
		fmt.Fprintln(r.w, lipgloss.JoinVertical(lipgloss.Left,
			r.bad.Render(s.Path),
			r.indent.Render(s.Err.Error()),
		))
		fmt.Fprintln(r.w)
		return
	}

	lines := []string{
		r.title.Render(s.Name) + " " + s.Version.String() + r.dim.Render(" (compatible from "+s.Compat.String()+")"),
		r.indent.Render(r.label.Render("path ") + s.Path),
	}
	if len(s.Functions) > 0 {
		lines = append(lines, r.indent.Render(r.label.Render("functions")))
		for _, fd := range s.Functions {
			lines = append(lines, r.indent.Render(fmt.Sprintf("  %3d  %s%s", fd.ID, modulePrefix(fd.Module), fd)))
		}
	}
	if len(s.Types) > 0 {
		lines = append(lines, r.indent.Render(r.label.Render("types")))
		for _, td := range s.Types {
			lines = append(lines, r.indent.Render(fmt.Sprintf("  %3d  %s%s = %s", td.ID, modulePrefix(td.Module), td.Name, td.Type)))
		}
	}
	if len(s.Traits) > 0 {
		lines = append(lines, r.indent.Render(r.label.Render("traits")))
		for _, tr := range s.Traits {
			lines = append(lines, r.indent.Render(fmt.Sprintf("  %3d  %s", tr.ID, tr)))
		}
	}
	if len(s.Dependencies) > 0 {
		lines = append(lines, r.indent.Render(r.label.Render("requires")))
		for _, d := range s.Dependencies {
			line := "  " + d.String()
			if d.Optional {
				line += r.dim.Render(" (optional)")
			}
			lines = append(lines, r.indent.Render(line))
		}
	}
	fmt.Fprintln(r.w, lipgloss.JoinVertical(lipgloss.Left, lines...))
	fmt.Fprintln(r.w)
}

func modulePrefix(path string) string {
	if path == "" {
		return ""
	}
	return path + "."
}

func (r *renderer) plugins(infos []host.Info) {
	if len(infos) == 0 {
		fmt.Fprintln(r.w, r.dim.Render("No plugins loaded."))
		return
	}
	for _, i := range infos {
		state := r.good.Render(i.State.String())
		if i.State != loader.StateActive {
			state = r.bad.Render(i.State.String())
		}
		lines := []string{
			fmt.Sprintf("%s %s  %s  %s", r.title.Render(i.Name), i.Version, state, r.dim.Render(fmt.Sprintf("refs=%d", i.Refs))),
		}
		deps := make([]string, 0, len(i.Provided))
		for dep := range i.Provided {
			deps = append(deps, dep)
		}
		sort.Strings(deps)
		for _, dep := range deps {
			lines = append(lines, r.indent.Render(fmt.Sprintf("%s <- %s", dep, i.Provided[dep])))
		}
		for _, dep := range i.Denied {
			lines = append(lines, r.indent.Render(dep+" "+r.bad.Render("denied")))
		}
		for _, dep := range i.Pending {
			lines = append(lines, r.indent.Render(dep+" "+r.dim.Render("pending")))
		}
		if len(i.Dependents) > 0 {
			lines = append(lines, r.indent.Render(r.label.Render("used by ")+strings.Join(i.Dependents, ", ")))
		}
		fmt.Fprintln(r.w, lipgloss.JoinVertical(lipgloss.Left, lines...))
	}
}
