package handlers

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/imamik/stackfleet/internal/provisioning"
)

var (
	colorGreen = lipgloss.Color("#22c55e")
	colorRed   = lipgloss.Color("#ef4444")
	colorAmber = lipgloss.Color("#f59e0b")
	colorBlue  = lipgloss.Color("#3b82f6")
	colorDim   = lipgloss.Color("#6b7280")
)

var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(colorBlue)
	dimStyle     = lipgloss.NewStyle().Foreground(colorDim)
	successStyle = lipgloss.NewStyle().Foreground(colorGreen)
	failureStyle = lipgloss.NewStyle().Foreground(colorRed)
	pendingStyle = lipgloss.NewStyle().Foreground(colorAmber)
)

func renderInstances(stackSet string, all []provisioning.Instance, targets provisioning.TargetSet) string {
	var b strings.Builder

	b.WriteString("\n")
	b.WriteString(titleStyle.Render("  Stack instances: " + stackSet))
	b.WriteString("\n")
	b.WriteString(dimStyle.Render("  " + strings.Repeat("─", 60)))
	b.WriteString("\n")
	b.WriteString(dimStyle.Render(fmt.Sprintf("  %-14s %-16s %-10s %s", "Account", "Region", "Status", "Reason")))
	b.WriteString("\n")

	for _, inst := range all {
		fmt.Fprintf(&b, "  %-14s %-16s %s %s\n",
			inst.Account, inst.Region, statusStyle(inst.Status).Render(fmt.Sprintf("%-10s", inst.Status)), inst.StatusReason)
	}

	b.WriteString(dimStyle.Render("  " + strings.Repeat("─", 60)))
	b.WriteString("\n")
	fmt.Fprintf(&b, "  %d instance(s), %d account(s), %d region(s)\n",
		targets.Len(), len(targets.Accounts()), len(targets.Regions()))
	return b.String()
}

func renderOperations(stackSet string, ops []provisioning.Operation) string {
	var b strings.Builder

	b.WriteString("\n")
	b.WriteString(titleStyle.Render("  Operations: " + stackSet))
	b.WriteString("\n")
	b.WriteString(dimStyle.Render("  " + strings.Repeat("─", 72)))
	b.WriteString("\n")
	b.WriteString(dimStyle.Render(fmt.Sprintf("  %-38s %-8s %-10s %s", "Operation", "Action", "Status", "Created")))
	b.WriteString("\n")

	for _, op := range ops {
		fmt.Fprintf(&b, "  %-38s %-8s %s %s\n",
			op.ID, op.Action, statusStyle(string(op.Status)).Render(fmt.Sprintf("%-10s", op.Status)), formatTime(op.CreatedAt))
	}
	return b.String()
}

func statusStyle(status string) lipgloss.Style {
	switch status {
	case "CURRENT", string(provisioning.OperationSucceeded):
		return successStyle
	case "INOPERABLE", string(provisioning.OperationFailed), string(provisioning.OperationStopped):
		return failureStyle
	default:
		return pendingStyle
	}
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.UTC().Format(time.RFC3339)
}
