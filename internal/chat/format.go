package chat

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/zulandar/interviewer/internal/interview"
)

// Message size limits. Discord rejects messages over 2000 characters.
const (
	maxMessageLen    = 1900
	maxTranscriptLen = 1800
	maxThreadNameLen = 95
)

// ColorInfo is the sidebar color for formatted notices.
const ColorInfo = "#2196F3"

// mentionRe matches user mentions in Discord (<@123>, <@!123>) and Slack
// (<@U123ABC>, <@U123ABC|name>) formats.
var mentionRe = regexp.MustCompile(`<@!?([A-Za-z0-9]+)(?:\|[^>]*)?>`)

// firstMention returns the user ID and raw token of the first mention in
// args, or empty strings.
func firstMention(args []string) (userID, token string) {
	for _, a := range args {
		if m := mentionRe.FindStringSubmatch(a); m != nil {
			return m[1], m[0]
		}
	}
	return "", ""
}

// mention renders a user mention understood by both Discord and Slack.
func mention(userID string) string {
	return "<@" + userID + ">"
}

// threadName builds the dedicated thread name for a candidate.
func threadName(candidateID string) string {
	name := "interview-" + candidateID
	if r := []rune(name); len(r) > maxThreadNameLen {
		name = string(r[:maxThreadNameLen])
	}
	return name
}

// truncate returns s cut to at most maxLen bytes on a rune boundary, with
// "..." appended if anything was dropped.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:runeCut(s, maxLen)] + "..."
}

// runeCut returns the largest index <= n that starts a rune in s.
func runeCut(s string, n int) int {
	if n >= len(s) {
		return len(s)
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return n
}

// chunkMessage splits text into chunks of at most maxLen characters.
// It prefers breaking at newlines when possible.
func chunkMessage(text string, maxLen int) []string {
	if maxLen <= 0 {
		maxLen = 2000
	}
	if len(text) <= maxLen {
		return []string{text}
	}

	var chunks []string
	for len(text) > 0 {
		if len(text) <= maxLen {
			chunks = append(chunks, text)
			break
		}

		// Look for a newline in the second half of the chunk to break at.
		cut := runeCut(text, maxLen)
		if cut == 0 {
			cut = maxLen
		}
		chunk := text[:cut]
		breakAt := -1
		half := maxLen / 2
		for i := cut - 1; i >= half; i-- {
			if chunk[i] == '\n' {
				breakAt = i
				break
			}
		}

		if breakAt >= 0 {
			chunks = append(chunks, text[:breakAt])
			text = text[breakAt+1:] // skip the newline
		} else {
			chunks = append(chunks, chunk)
			text = text[cut:]
		}
	}
	return chunks
}

// formatStatus renders one session's progress line.
func formatStatus(st interview.SessionStatus) string {
	covered := "none"
	if len(st.Covered) > 0 {
		covered = strings.Join(st.Covered, ", ")
	}
	line := fmt.Sprintf("Session #%d for **%s**: turn %d/%d, covered %d/%d (%s).",
		st.Session.ID, st.Session.CandidateID, st.TurnCount, st.MaxTurns,
		len(st.Covered), len(interview.Categories), covered)
	if st.Sufficient {
		line += " Ready to end."
	}
	return line
}

// FormatDigest renders the operator digest of active interviews. It
// returns nil when nothing is in progress.
func FormatDigest(statuses []interview.SessionStatus) *FormattedEvent {
	if len(statuses) == 0 {
		return nil
	}
	ready := 0
	var b strings.Builder
	for _, st := range statuses {
		if st.Sufficient {
			ready++
		}
		fmt.Fprintf(&b, "- #%d **%s** in `%s`: turn %d/%d, %d categories covered",
			st.Session.ID, st.Session.CandidateID, st.Session.ChannelID,
			st.TurnCount, st.MaxTurns, len(st.Covered))
		if st.Sufficient {
			b.WriteString(" (ready to end)")
		}
		b.WriteString("\n")
	}
	return &FormattedEvent{
		Title: fmt.Sprintf("Active interviews: %d", len(statuses)),
		Body:  strings.TrimRight(b.String(), "\n"),
		Color: ColorInfo,
		Fields: []Field{
			{Name: "Active", Value: fmt.Sprintf("%d", len(statuses)), Short: true},
			{Name: "Ready to end", Value: fmt.Sprintf("%d", ready), Short: true},
		},
	}
}
