// Package inbound turns customer replies into outreach actions.
package inbound

import (
	"strconv"
	"strings"
)

type Kind int

const (
	KindHelp Kind = iota
	KindOptOut
	KindOptIn
	KindCallNow
	KindChoose
)

// Command is an interpreted reply. Choice is the 1-based slot key for
// KindChoose.
type Command struct {
	Kind   Kind
	Choice int
}

func (c Command) String() string {
	switch c.Kind {
	case KindOptOut:
		return "opt_out"
	case KindOptIn:
		return "opt_in"
	case KindCallNow:
		return "call_now"
	case KindChoose:
		return "choose_" + strconv.Itoa(c.Choice)
	default:
		return "help"
	}
}

// maxChoice is the highest reply key ever offered.
const maxChoice = 3

// Interpret matches the whole trimmed body, case-insensitively. Anything
// that is not an exact keyword or key is a request for help.
func Interpret(body string) Command {
	word := strings.ToUpper(strings.TrimSpace(body))
	switch word {
	case "STOP", "UNSUBSCRIBE", "CANCEL":
		return Command{Kind: KindOptOut}
	case "START", "UNSTOP":
		return Command{Kind: KindOptIn}
	case "YES", "Y":
		return Command{Kind: KindCallNow}
	}
	if len(word) == 1 {
		if n, err := strconv.Atoi(word); err == nil && n >= 1 && n <= maxChoice {
			return Command{Kind: KindChoose, Choice: n}
		}
	}
	return Command{Kind: KindHelp}
}
