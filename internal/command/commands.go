package command

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/life-stream-dev/afk-bridge/internal/session"
	"github.com/life-stream-dev/afk-bridge/internal/utils"
)

type command struct {
	name    string
	aliases []string
	// args is the number of fixed arguments; text commands take the rest of the line.
	args    int
	text    bool
	usage   string
	summary string
	run     func(r *Router, req Request) (string, error)
}

var commands []command

func init() {
	commands = []command{
		{name: "configure", aliases: []string{"settings"}, args: 3, usage: "/settings <host> <port> <name> [slot]", summary: "save the server to join", run: (*Router).configure},
		{name: "connect", args: 0, usage: "/connect [slot]", summary: "join the saved server", run: (*Router).connect},
		{name: "disconnect", args: 0, usage: "/disconnect [slot]", summary: "leave and stop reconnecting", run: (*Router).disconnect},
		{name: "joincommand", aliases: []string{"setjoin"}, text: true, usage: "/joincommand [@slot] <text>", summary: "chat line sent after every join (empty clears)", run: (*Router).joinCommand},
		{name: "delay", aliases: []string{"setdelay"}, args: 1, usage: "/delay <seconds> [slot]", summary: "wait before reconnecting", run: (*Router).delay},
		{name: "reconnect", aliases: []string{"forcereconnect"}, args: 0, usage: "/reconnect [slot]", summary: "rejoin now under a fresh name", run: (*Router).reconnect},
		{name: "rename", args: 1, usage: "/rename <name> [slot]", summary: "change the bot name", run: (*Router).rename},
		{name: "chat", aliases: []string{"say"}, text: true, usage: "/chat [@slot] <text>", summary: "send a chat line", run: (*Router).chat},
		{name: "jump", args: 0, usage: "/jump [slot]", summary: "start or stop jumping", run: (*Router).jump},
		{name: "look", args: 0, usage: "/look [slot]", summary: "look around", run: (*Router).look},
		{name: "attack", args: 0, usage: "/attack [slot]", summary: "hit the nearest entity", run: (*Router).attack},
		{name: "move", args: 0, usage: "/move [slot]", summary: "walk forward for a moment", run: (*Router).move},
		{name: "players", args: 0, usage: "/players [slot]", summary: "list players in the world", run: (*Router).players},
		{name: "simchat", aliases: []string{"simulatechat"}, args: 0, usage: "/simchat [slot]", summary: "say something casual", run: (*Router).simulateChat},
		{name: "panel", args: 0, usage: "/panel [slot]", summary: "show the available controls", run: (*Router).panel},
		{name: "status", args: 0, usage: "/status", summary: "show every slot", run: (*Router).status},
		{name: "help", args: 0, usage: "/help", summary: "this list", run: (*Router).help},
	}
}

func lookup(name string) (command, bool) {
	name = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(name), "/"))
	for _, c := range commands {
		if c.name == name {
			return c, true
		}
		for _, alias := range c.aliases {
			if alias == name {
				return c, true
			}
		}
	}
	return command{}, false
}

func (c command) check(args []string) error {
	switch {
	case c.text && c.name != "joincommand" && len(args) == 0:
		return session.InvalidArgument("usage %s", c.usage)
	case !c.text && len(args) != c.args:
		return session.InvalidArgument("usage %s", c.usage)
	}
	return nil
}

// slotLabel names the slot the supervisor actually serves the request on.
func (r *Router) slotLabel(slot int) string {
	return fmt.Sprintf("slot %d", r.sessions.Slot(slot))
}

func (r *Router) configure(req Request) (string, error) {
	port, err := strconv.Atoi(req.Args[1])
	if err != nil {
		return "", session.InvalidArgument("port %q is not a number", req.Args[1])
	}
	if err := r.sessions.Configure(req.Operator, req.Slot, req.Args[0], port, req.Args[2]); err != nil {
		return "", err
	}
	return fmt.Sprintf("Saved %s: %s:%d as %s. Use /connect to join.", r.slotLabel(req.Slot), req.Args[0], port, req.Args[2]), nil
}

func (r *Router) connect(req Request) (string, error) {
	if err := r.sessions.Connect(req.Operator, req.Slot); err != nil {
		return "", err
	}
	return fmt.Sprintf("Connecting %s...", r.slotLabel(req.Slot)), nil
}

func (r *Router) disconnect(req Request) (string, error) {
	if err := r.sessions.Disconnect(req.Operator, req.Slot); err != nil {
		return "", err
	}
	return fmt.Sprintf("Disconnected %s.", r.slotLabel(req.Slot)), nil
}

func (r *Router) joinCommand(req Request) (string, error) {
	text := strings.Join(req.Args, " ")
	if err := r.sessions.SetJoinCommand(req.Operator, req.Slot, text); err != nil {
		return "", err
	}
	if strings.TrimSpace(text) == "" {
		return fmt.Sprintf("Join command cleared for %s.", r.slotLabel(req.Slot)), nil
	}
	return fmt.Sprintf("Join command set for %s.", r.slotLabel(req.Slot)), nil
}

func (r *Router) delay(req Request) (string, error) {
	d, err := parseDelay(req.Args[0])
	if err != nil {
		return "", err
	}
	if err := r.sessions.SetReconnectDelay(req.Operator, req.Slot, d); err != nil {
		return "", err
	}
	return fmt.Sprintf("Reconnect delay for %s set to %s.", r.slotLabel(req.Slot), utils.FormatDuration(d)), nil
}

// parseDelay reads plain seconds ("5") or a duration string ("800ms", "1m").
func parseDelay(s string) (time.Duration, error) {
	if n, err := strconv.Atoi(s); err == nil {
		if n <= 0 {
			return 0, session.InvalidArgument("delay must be positive")
		}
		return time.Duration(n) * time.Second, nil
	}
	d, err := utils.ParseStringTime(s)
	if err != nil {
		return 0, session.InvalidArgument("delay %q is not a duration", s)
	}
	return d, nil
}

func (r *Router) reconnect(req Request) (string, error) {
	identity, err := r.sessions.ForceReconnect(req.Operator, req.Slot)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("Reconnecting %s as %s.", r.slotLabel(req.Slot), identity), nil
}

func (r *Router) rename(req Request) (string, error) {
	reconnecting, err := r.sessions.RenameIdentity(req.Operator, req.Slot, req.Args[0])
	if err != nil {
		return "", err
	}
	if reconnecting {
		return fmt.Sprintf("Renamed %s to %s, rejoining.", r.slotLabel(req.Slot), req.Args[0]), nil
	}
	return fmt.Sprintf("Renamed %s to %s.", r.slotLabel(req.Slot), req.Args[0]), nil
}

func (r *Router) chat(req Request) (string, error) {
	if err := r.sessions.SendChatLine(req.Operator, req.Slot, strings.Join(req.Args, " ")); err != nil {
		return "", err
	}
	return "Sent.", nil
}

func (r *Router) jump(req Request) (string, error) {
	running, err := r.sessions.ToggleJump(req.Operator, req.Slot)
	if err != nil {
		return "", err
	}
	if running {
		return "Jumping. Send /jump again to stop.", nil
	}
	return "Stopped jumping.", nil
}

func (r *Router) look(req Request) (string, error) {
	if err := r.sessions.Look(req.Operator, req.Slot); err != nil {
		return "", err
	}
	return "Looked around.", nil
}

func (r *Router) attack(req Request) (string, error) {
	if err := r.sessions.Attack(req.Operator, req.Slot); err != nil {
		return "", err
	}
	return "Attacked the nearest entity.", nil
}

func (r *Router) move(req Request) (string, error) {
	if err := r.sessions.Move(req.Operator, req.Slot); err != nil {
		return "", err
	}
	return "Walking forward.", nil
}

func (r *Router) players(req Request) (string, error) {
	names, err := r.sessions.Players(req.Operator, req.Slot)
	if err != nil {
		return "", err
	}
	if len(names) == 0 {
		return "Nobody else is online.", nil
	}
	return fmt.Sprintf("Players online (%d): %s", len(names), strings.Join(names, ", ")), nil
}

func (r *Router) simulateChat(req Request) (string, error) {
	line, err := r.sessions.SimulateChat(req.Operator, req.Slot)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("Said %q.", line), nil
}

func (r *Router) panel(req Request) (string, error) {
	caps, err := r.sessions.Panel(req.Operator, req.Slot)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("Controls for %s: %s", r.slotLabel(req.Slot), strings.Join(caps, ", ")), nil
}

func (r *Router) status(req Request) (string, error) {
	snaps, ok := r.sessions.Snapshot(req.Operator)
	if !ok {
		return "", session.ErrNotConfigured
	}
	lines := make([]string, 0, len(snaps))
	for _, s := range snaps {
		line := fmt.Sprintf("#%d %s", s.Slot, s.State)
		if s.Host != "" {
			line += fmt.Sprintf(" %s:%d as %s", s.Host, s.Port, s.Identity)
		}
		if s.Uptime != "" {
			line += ", up " + s.Uptime
		}
		if s.State != session.Connected.String() && s.DesiredConnected {
			line += ", reconnecting"
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n"), nil
}

func (r *Router) help(Request) (string, error) {
	return HelpText(), nil
}

// HelpText lists every command with its usage.
func HelpText() string {
	var b strings.Builder
	b.WriteString("Commands:")
	for _, c := range commands {
		fmt.Fprintf(&b, "\n  %-36s %s", c.usage, c.summary)
	}
	return b.String()
}
