package main

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/whisper/chat-sync/internal/conversation"
)

// command is one parsed slash command.
type command struct {
	name string
	args []string
}

type commandSpec struct {
	min, max int // argument count; max < 0 means unbounded
	syntax   string
	help     string
}

var commands = map[string]commandSpec{
	"p":       {1, 2, "/p <conversation> [peer]", "show a private chat"},
	"g":       {1, 1, "/g <group>", "show a group"},
	"track":   {2, 3, "/track p|g <id> [peer]", "follow a conversation without showing it"},
	"open":    {2, 3, "/open p|g <id> [peer]", "load a conversation's history without showing it"},
	"panel":   {0, 0, "/panel", "toggle the side panel"},
	"del":     {1, 1, "/del <message>", "delete a message"},
	"read":    {1, 1, "/read <message>", "mark a message read"},
	"toggle":  {1, 1, "/toggle <user>", "select a user to add"},
	"add":     {0, -1, "/add [user...]", "add users (or the selection) to the group"},
	"kick":    {1, 1, "/kick <user>", "remove a member from the group"},
	"leave":   {0, 1, "/leave [group]", "leave the group"},
	"close":   {1, 1, "/close <conversation>", "forget a conversation"},
	"dismiss": {0, 0, "/dismiss", "dismiss the oldest notice"},
	"help":    {0, 0, "/help", "list commands"},
	"quit":    {0, 0, "/quit", "exit"},
}

// parseInput interprets one input line. Lines not starting with "/" are
// message text; "//" escapes a leading slash.
func parseInput(line string) (cmd command, isCommand bool, err error) {
	trimmed := strings.TrimSpace(line)
	if !strings.HasPrefix(trimmed, "/") || strings.HasPrefix(trimmed, "//") {
		return command{}, false, nil
	}

	fields := strings.Fields(trimmed[1:])
	if len(fields) == 0 {
		return command{}, true, errors.New("empty command")
	}
	name, args := strings.ToLower(fields[0]), fields[1:]
	spec, ok := commands[name]
	if !ok {
		return command{}, true, fmt.Errorf("unknown command /%s (try /help)", name)
	}
	if len(args) < spec.min || (spec.max >= 0 && len(args) > spec.max) {
		return command{}, true, fmt.Errorf("usage: %s", spec.syntax)
	}
	return command{name: name, args: args}, true, nil
}

// messageText strips the "//" escape from a message line.
func messageText(line string) string {
	trimmed := strings.TrimSpace(line)
	if strings.HasPrefix(trimmed, "//") {
		return trimmed[1:]
	}
	return line
}

func parseKind(s string) (conversation.Kind, error) {
	switch strings.ToLower(s) {
	case "p", "private":
		return conversation.Private, nil
	case "g", "group":
		return conversation.Group, nil
	}
	return conversation.None, fmt.Errorf("unknown conversation kind %q (valid: p, g)", s)
}

// usageLines lists every command, sorted.
func usageLines() []string {
	out := make([]string, 0, len(commands))
	for _, spec := range commands {
		out = append(out, fmt.Sprintf("%-24s %s", spec.syntax, spec.help))
	}
	sort.Strings(out)
	return out
}
