// Package gateway parses the textual alarm command language and feeds the
// core.
//
// Two commands exist:
//
//	Start_Alarm(<id>): <seconds> <message>
//	Change_Alarm(<id>): <seconds> <message>
//
// Anything else is rejected with a diagnostic on the error stream. The
// gateway never mutates state itself; it validates shape, then delegates to
// the Service and maps its sentinel errors onto the three diagnostics the
// operator sees.
package gateway

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"regexp"
	"strconv"
	"strings"

	"github.com/alarmd-project/alarmd/internal/core"
	"github.com/alarmd-project/alarmd/internal/metrics"
	"github.com/alarmd-project/alarmd/internal/types"
)

// Service is the command surface of the core the gateway depends on.
type Service interface {
	StartAlarm(id int64, seconds int, message string) (types.Alarm, bool, error)
	ChangeAlarm(id int64, seconds int, message string) (types.Alarm, error)
}

// cmdRe matches "Verb(<id>): <seconds> <rest>". The verb is captured as a
// free word and checked after the match, so a shape-correct line with an
// unknown verb or a bad value gets the "invalid Alarm Request" diagnostic
// rather than the generic one.
var cmdRe = regexp.MustCompile(`^(\w+)\((-?\d+)\):\s+(-?\d+)\s+(.+)$`)

// Option is a functional option for the Gateway.
type Option func(*Gateway)

// WithMetrics attaches a metrics.Registry so every command line increments
// the relevant counter.
func WithMetrics(reg *metrics.Registry) Option {
	return func(g *Gateway) { g.metrics = reg }
}

// WithPrompt writes prompt to w before each line is read.
func WithPrompt(w io.Writer, prompt string) Option {
	return func(g *Gateway) {
		g.promptW = w
		g.prompt = prompt
	}
}

// WithLogger attaches a structured logger for command tracing.
func WithLogger(log *slog.Logger) Option {
	return func(g *Gateway) { g.log = log }
}

// Gateway reads command lines and drives the Service.
type Gateway struct {
	svc  Service
	errW io.Writer // diagnostics ("Bad command ...") go here
	log  *slog.Logger

	metrics *metrics.Registry
	promptW io.Writer
	prompt  string
}

// New creates a Gateway that reports diagnostics to errW.
func New(svc Service, errW io.Writer, opts ...Option) *Gateway {
	g := &Gateway{
		svc:  svc,
		errW: errW,
		log:  slog.Default(),
	}
	for _, o := range opts {
		o(g)
	}
	return g
}

// Run reads in line by line until EOF or ctx is cancelled. Blank lines are
// ignored. Parse and validation failures are reported and the loop keeps
// going; only a read error stops it.
func (g *Gateway) Run(ctx context.Context, in io.Reader) error {
	sc := bufio.NewScanner(in)
	for {
		if g.promptW != nil {
			fmt.Fprint(g.promptW, g.prompt)
		}
		if !sc.Scan() {
			return sc.Err()
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		g.HandleLine(line)
	}
}

// HandleLine processes one command line.
func (g *Gateway) HandleLine(line string) {
	m := cmdRe.FindStringSubmatch(line)
	if m == nil {
		g.reject("parse", "Bad command")
		return
	}

	verb := m[1]
	if verb != "Start_Alarm" && verb != "Change_Alarm" {
		g.reject("invalid_request", "Bad command, invalid Alarm Request")
		return
	}
	id, err := strconv.ParseInt(m[2], 10, 64)
	if err != nil {
		// Shape matched but the id overflows int64.
		g.reject("invalid_request", "Bad command, invalid Alarm Request")
		return
	}
	seconds, err := strconv.Atoi(m[3])
	if err != nil {
		g.reject("invalid_request", "Bad command, invalid Alarm Request")
		return
	}
	message := strings.TrimSpace(m[4])

	switch verb {
	case "Start_Alarm":
		if _, _, err := g.svc.StartAlarm(id, seconds, message); err != nil {
			g.rejectErr(id, err)
			return
		}
		g.accepted("start", id)
	case "Change_Alarm":
		if _, err := g.svc.ChangeAlarm(id, seconds, message); err != nil {
			g.rejectErr(id, err)
			return
		}
		g.accepted("change", id)
	}
}

// rejectErr maps a Service sentinel onto the operator-facing diagnostic.
func (g *Gateway) rejectErr(id int64, err error) {
	switch {
	case errors.Is(err, core.ErrNotFound):
		g.reject("id_not_found", fmt.Sprintf("Bad command, Alarm ID (%d) not found", id))
	case errors.Is(err, core.ErrInvalidSeconds), errors.Is(err, core.ErrInvalidMessage):
		g.reject("invalid_request", "Bad command, invalid Alarm Request")
	default:
		g.log.Error("command failed", "alarm_id", id, "error", err)
		g.reject("internal", "Bad command")
	}
}

func (g *Gateway) reject(reason, diag string) {
	fmt.Fprintln(g.errW, diag)
	if g.metrics != nil {
		g.metrics.BadCommands.Inc(reason)
	}
}

func (g *Gateway) accepted(verb string, id int64) {
	if g.metrics != nil {
		g.metrics.Commands.Inc(verb)
	}
	g.log.Debug("command accepted", "verb", verb, "alarm_id", id)
}
