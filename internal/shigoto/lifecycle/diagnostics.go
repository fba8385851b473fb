package lifecycle

import (
	"github.com/bdobrica/Shigoto/common/redact"
	"github.com/bdobrica/Shigoto/internal/shigoto/command"
)

const maxOutputLog = 16 * 1024

// escapeRedacted renders the command line with secret env values removed.
func escapeRedacted(res command.Result) string {
	return command.Escape(res.Command, redact.EnvAssignments(res.Args)...)
}

func redactOutput(s string, secrets []string) string {
	return truncate(redact.String(s, secrets...), maxOutputLog)
}

// truncate keeps the tail of s, where runtime errors usually are.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return "..." + s[len(s)-n:]
}
