package agent

import (
	"context"
	"fmt"
	"runtime"
	"strings"
	"time"

	"skillbot/internal/domain"
	"skillbot/internal/metrics"
)

// ChatCommand represents a parsed chat command.
type ChatCommand struct {
	Name string   // command name without "/"
	Args []string // arguments after the command
	Raw  string   // original full text
}

// CommandResult holds the response for a handled command.
type CommandResult struct {
	Response string
	Handled  bool // false: route the message like any other input
}

const historyPreviewLimit = 10

// startTime records when the process started for /status.
var startTime = time.Now()

// version is set by the build system.
var version = "0.1.0"

// SetVersion sets the version string used by commands.
func SetVersion(v string) {
	version = v
}

// Version returns the version string reported by /version.
func Version() string {
	return version
}

// ParseCommand checks if a message starts with "/" and parses it into a ChatCommand.
// Returns nil if the message is not a command.
func ParseCommand(text string) *ChatCommand {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "/") {
		return nil
	}

	parts := strings.Fields(text)
	name := strings.ToLower(strings.TrimPrefix(parts[0], "/"))

	var args []string
	if len(parts) > 1 {
		args = parts[1:]
	}
	return &ChatCommand{Name: name, Args: args, Raw: text}
}

// HandleCommand answers the built-in chat commands. Skill commands such as
// /calc are not handled here and reach the dispatcher.
func (l *Loop) HandleCommand(ctx context.Context, cmd *ChatCommand, msg domain.InboundMessage) CommandResult {
	var resp string
	switch cmd.Name {
	case "help":
		resp = helpText()
	case "skills":
		resp = l.skillsText()
	case "status":
		resp = l.statusText()
	case "version":
		resp = fmt.Sprintf("skillbot v%s (%s/%s, Go %s)", version, runtime.GOOS, runtime.GOARCH, runtime.Version())
	case "clear":
		resp = l.clearSession(ctx, msg)
	case "history":
		resp = l.historyText(ctx, msg)
	default:
		return CommandResult{Handled: false}
	}

	metrics.RecordCommand(cmd.Name)
	return CommandResult{Response: resp, Handled: true}
}

func helpText() string {
	return `**skillbot commands**

/weather <city> - Current weather for a city
/calc <expression> - Evaluate an arithmetic expression
/define <word> - Look up a word
/skills - List skills and their trigger phrases
/history - Show recent messages in this chat
/clear - Forget this chat's history
/status - Show bot status
/version - Show version info

You can also just ask, e.g. "what's the weather in Paris" or "calculate 25 * 4".`
}

func (l *Loop) skillsText() string {
	var sb strings.Builder
	sb.WriteString("**Available skills**\n")
	for _, s := range l.dispatcher.Skills() {
		fmt.Fprintf(&sb, "\n/%s - %s", s.Name(), s.Description())
		if phrases := s.Triggers().Phrases; len(phrases) > 0 {
			fmt.Fprintf(&sb, "\n  phrases: %s", strings.Join(phrases, ", "))
		}
	}
	return sb.String()
}

func (l *Loop) statusText() string {
	uptime := time.Since(startTime).Round(time.Second)
	var sb strings.Builder
	fmt.Fprintf(&sb, "**skillbot v%s**\n\n", version)
	fmt.Fprintf(&sb, "Skills: %d registered\n", len(l.dispatcher.Skills()))
	if l.sessions != nil {
		sb.WriteString("Transcript: enabled\n")
	} else {
		sb.WriteString("Transcript: disabled\n")
	}
	fmt.Fprintf(&sb, "Uptime: %s\n", uptime)
	fmt.Fprintf(&sb, "Runtime: %s/%s, Go %s\n", runtime.GOOS, runtime.GOARCH, runtime.Version())
	return sb.String()
}

func (l *Loop) clearSession(ctx context.Context, msg domain.InboundMessage) string {
	if l.sessions == nil {
		return "History is not being recorded."
	}
	if err := l.sessions.ClearSession(ctx, msg.Channel, msg.ChatID); err != nil {
		l.logger.Warn("failed to clear session", "channel", msg.Channel, "chat", msg.ChatID, "err", err)
		return "Could not clear the conversation. Please try again."
	}
	return "Conversation cleared. Starting fresh."
}

func (l *Loop) historyText(ctx context.Context, msg domain.InboundMessage) string {
	if l.sessions == nil {
		return "History is not being recorded."
	}
	records, err := l.sessions.History(ctx, msg.Channel, msg.ChatID, historyPreviewLimit)
	if err != nil {
		l.logger.Warn("failed to load history", "channel", msg.Channel, "chat", msg.ChatID, "err", err)
		return "Could not load the conversation history."
	}
	if len(records) == 0 {
		return "No messages yet."
	}

	var sb strings.Builder
	sb.WriteString("**Recent messages**\n")
	for _, r := range records {
		line := r.Content
		if i := strings.IndexByte(line, '\n'); i >= 0 {
			line = line[:i] + " ..."
		}
		if r.SkillName != "" {
			fmt.Fprintf(&sb, "\n%s [%s]: %s", r.Sender, r.SkillName, line)
		} else {
			fmt.Fprintf(&sb, "\n%s: %s", r.Sender, line)
		}
	}
	return sb.String()
}
