package commands

import (
	"context"
	"fmt"
	"strings"

	"github.com/atotto/clipboard"
	"github.com/avishayil/secure-ec2/internal/secureec2"
	"github.com/chainguard-dev/clog"
	"github.com/charmbracelet/lipgloss"
)

var (
	colorGreen = lipgloss.Color("#22c55e")
	colorBlue  = lipgloss.Color("#3b82f6")
	colorDim   = lipgloss.Color("#6b7280")
	colorRed   = lipgloss.Color("#ef4444")

	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(colorGreen)

	labelStyle = lipgloss.NewStyle().
			Foreground(colorDim).
			Width(12)

	urlStyle = lipgloss.NewStyle().
			Foreground(colorBlue).
			Underline(true)

	errorStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(colorRed)
)

func row(label, value string) string {
	return labelStyle.Render(label) + value
}

// renderTemplate summarizes a materialized launch template.
func renderTemplate(tpl secureec2.LaunchTemplate) string {
	return strings.Join([]string{
		titleStyle.Render("Launch template ready"),
		row("Name", tpl.Name),
		row("ID", tpl.ID),
		row("Version", fmt.Sprint(tpl.Version)),
		row("Image", tpl.ImageID),
		row("Subnet", tpl.SubnetID),
		row("Group", tpl.SecurityGroupID),
	}, "\n")
}

// renderInstance shows the launched instances and how to reach them.
func renderInstance(inst secureec2.Instance, url string) string {
	lines := []string{titleStyle.Render("Instance launched")}
	if len(inst.IDs) > 1 {
		lines = append(lines, row("Instances", strings.Join(inst.IDs, ", ")))
	}
	lines = append(lines,
		row("Instance", inst.ID),
		row("Access", string(inst.AccessMode)),
		row("Connect", urlStyle.Render(url)),
	)
	return strings.Join(lines, "\n")
}

// RenderError formats a fatal error for stderr.
func RenderError(err error) string {
	return errorStyle.Render("Error:") + " " + err.Error()
}

// copyURL puts url on the clipboard. A missing clipboard only warrants a
// warning.
func copyURL(ctx context.Context, url string) {
	log := clog.FromContext(ctx)
	if err := clipboard.WriteAll(url); err != nil {
		log.Warn("failed to copy connection URL to clipboard", "error", err)
		return
	}
	log.Info("copied connection URL to clipboard")
}
