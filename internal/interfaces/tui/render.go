package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	domainChat "github.com/fanqingsong/dify-chat-ui/internal/domain/chat"
)

var (
	dimStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	boldStyle   = lipgloss.NewStyle().Bold(true)
	accentStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("86"))
	errorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	promptStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("63"))
)

// renderTranscript 把快照渲染为纯文本（按宽度折行）
func renderTranscript(t domainChat.Transcript, width int) string {
	var b strings.Builder
	for i, turn := range t.Turns {
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString(renderTurn(turn, width))
	}
	return b.String()
}

func renderTurn(turn domainChat.Turn, width int) string {
	wrap := lipgloss.NewStyle()
	if width > 0 {
		wrap = wrap.Width(width)
	}

	var b strings.Builder
	if turn.Role == domainChat.RoleQuestion {
		b.WriteString(boldStyle.Render("You"))
		b.WriteString("\n")
		b.WriteString(wrap.Render(turn.Content))
		for _, f := range turn.Files {
			b.WriteString("\n")
			b.WriteString(dimStyle.Render("📎 " + fileLabel(f)))
		}
		b.WriteString("\n")
		return b.String()
	}

	b.WriteString(accentStyle.Render("Assistant"))
	if tag := statusTag(turn); tag != "" {
		b.WriteString(" ")
		b.WriteString(dimStyle.Render(tag))
	}
	b.WriteString("\n")

	if wp := turn.WorkflowProcess; wp != nil {
		b.WriteString(dimStyle.Render(fmt.Sprintf("workflow %s", wp.Status)))
		b.WriteString("\n")
		for _, node := range wp.Tracing {
			line := fmt.Sprintf("  • %s [%s]", nodeTitle(node), node.Status)
			if node.Error != "" {
				line += " " + node.Error
			}
			b.WriteString(dimStyle.Render(line))
			b.WriteString("\n")
		}
	}

	for _, th := range turn.AgentThoughts {
		if th.Tool != "" {
			b.WriteString(dimStyle.Render(fmt.Sprintf("⚙ %s", th.Tool)))
			b.WriteString("\n")
		}
		if th.Thought != "" {
			b.WriteString(wrap.Render(th.Thought))
			b.WriteString("\n")
		}
		for _, f := range th.Files {
			b.WriteString(dimStyle.Render("📎 " + fileLabel(f)))
			b.WriteString("\n")
		}
	}
	if len(turn.AgentThoughts) == 0 && turn.Content != "" {
		b.WriteString(wrap.Render(turn.Content))
		b.WriteString("\n")
	}

	if turn.Annotation != nil {
		b.WriteString(dimStyle.Render("annotated by " + turn.Annotation.AuthorName))
		b.WriteString("\n")
	}
	if footer := usageFooter(turn); footer != "" {
		b.WriteString(dimStyle.Render(footer))
		b.WriteString("\n")
	}
	return b.String()
}

func statusTag(turn domainChat.Turn) string {
	switch turn.Status {
	case domainChat.StatusPending:
		return "• 生成中..."
	case domainChat.StatusInterrupted:
		return "• 已停止"
	}
	if turn.Feedback != nil {
		switch turn.Feedback.Rating {
		case "like":
			return "👍"
		case "dislike":
			return "👎"
		}
	}
	return ""
}

func usageFooter(turn domainChat.Turn) string {
	if turn.Usage == nil || turn.Status != domainChat.StatusCompleted {
		return ""
	}
	prefix := ""
	if turn.Usage.Estimated {
		prefix = "~"
	}
	return fmt.Sprintf("%s%d tokens", prefix, turn.Usage.TotalTokens)
}

func nodeTitle(n domainChat.NodeTrace) string {
	if n.Title != "" {
		return n.Title
	}
	return n.NodeID
}

func fileLabel(f domainChat.VisionFile) string {
	if f.URL != "" {
		return f.URL
	}
	if f.UploadFileID != "" {
		return f.UploadFileID
	}
	return f.ID
}
