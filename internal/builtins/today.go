package builtins

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/kingrea/lattice-prompts/internal/variables"
)

// TodayVariable renders the current date. The argument selects the format:
// empty for YYYY-MM-DD, "iso" for RFC 3339, "unix" for seconds since the epoch,
// anything else is used as a Go time layout.
var TodayVariable = variables.Variable{
	Name:        "today",
	ID:          "builtin",
	Description: "Current date, optionally formatted (iso, unix or a Go layout)",
	Arguments:   []variables.Argument{{Name: "format", Description: "iso, unix or a Go time layout"}},
}

// TodayResolver is a SimpleResolver for TodayVariable.
type TodayResolver struct {
	clock func() time.Time
}

// NewTodayResolver reads the time from clock.
func NewTodayResolver(clock func() time.Time) *TodayResolver {
	if clock == nil {
		clock = time.Now
	}
	return &TodayResolver{clock: clock}
}

func (r *TodayResolver) Score(context.Context, variables.Request, any) int {
	return 1
}

func (r *TodayResolver) Resolve(_ context.Context, req variables.Request, _ any) (*variables.ResolvedVariable, error) {
	now := r.clock()
	var value string
	switch format := strings.TrimSpace(req.Arg); strings.ToLower(format) {
	case "":
		value = now.Format(time.DateOnly)
	case "iso":
		value = now.Format(time.RFC3339)
	case "unix":
		value = strconv.FormatInt(now.Unix(), 10)
	default:
		value = now.Format(format)
	}
	return &variables.ResolvedVariable{Variable: req.Variable, Arg: req.Arg, Value: value}, nil
}
