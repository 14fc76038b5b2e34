// Package commands implements the slash commands: setup, help, stats and ping.
package commands

import (
	"context"
	"strings"
	"time"

	"bigbrother/internal/eventbus"
	"bigbrother/internal/transport"
	"bigbrother/pkg/logx"
)

// DevPrefix is prepended to command names registered on the development guild.
const DevPrefix = "dev-"

// ErrorReply is sent when a handler fails.
var ErrorReply = transport.Reply{Content: "There was an error while executing this command!", Ephemeral: true}

type Command struct {
	Spec    transport.CommandSpec
	Timeout time.Duration
	Handle  HandlerFunc
}

// Router dispatches interactions by command name. It is immutable after New.
type Router struct {
	log      logx.Logger
	bus      eventbus.Bus
	stripDev bool
	cmds     map[string]HandlerFunc
	specs    []transport.CommandSpec
}

// NewRouter wraps every command with panic recovery, a timeout and request
// logging. With stripDev the "dev-" prefix is removed before lookup.
func NewRouter(log logx.Logger, bus eventbus.Bus, stripDev bool, cmds ...Command) *Router {
	if bus == nil {
		bus = eventbus.Nop{}
	}
	log = log.With(logx.String("comp", "commands"))
	r := &Router{log: log, bus: bus, stripDev: stripDev, cmds: map[string]HandlerFunc{}}
	for _, c := range cmds {
		if c.Handle == nil || c.Spec.Name == "" {
			continue
		}
		r.cmds[c.Spec.Name] = Chain(c.Handle, MWPanicRecover(log), MWTimeout(c.Timeout), MWRequestLog(log))
		r.specs = append(r.specs, c.Spec)
	}
	return r
}

// Specs returns the command declarations in registration order.
func (r *Router) Specs() []transport.CommandSpec {
	return append([]transport.CommandSpec(nil), r.specs...)
}

// Handle runs the command named by in and always returns a reply. ok is false
// for unknown commands, which get no reply.
func (r *Router) Handle(ctx context.Context, in *transport.Interaction) (reply transport.Reply, ok bool) {
	name := in.Command
	if r.stripDev {
		name = strings.TrimPrefix(name, DevPrefix)
	}
	h, found := r.cmds[name]
	if !found {
		r.log.Debug("unknown command", logx.String("cmd", in.Command))
		return transport.Reply{}, false
	}
	reply, err := h(ctx, in)
	r.bus.Publish(eventbus.Event{Type: eventbus.TypeCommandProcessed, Data: eventbus.Command{Name: name, OK: err == nil}})
	if err != nil {
		return ErrorReply, true
	}
	return reply, true
}

// DevSpecs returns specs with the development prefix applied.
func DevSpecs(specs []transport.CommandSpec) []transport.CommandSpec {
	out := make([]transport.CommandSpec, len(specs))
	for i, s := range specs {
		s.Name = DevPrefix + s.Name
		out[i] = s
	}
	return out
}
