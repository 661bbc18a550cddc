package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/teslashibe/go-mechros/pkg/protocol"
)

// buildRequest turns command line arguments into an operator message.
func buildRequest(args []string) (*protocol.Message, error) {
	if len(args) == 0 {
		return nil, fmt.Errorf("missing subcommand")
	}

	switch args[0] {
	case "goal":
		if len(args) < 3 || len(args) > 4 {
			return nil, fmt.Errorf("usage: goal <x> <y> [z]")
		}
		var xyz [3]float64
		for i, s := range args[1:] {
			v, err := strconv.ParseFloat(s, 64)
			if err != nil {
				return nil, fmt.Errorf("goal coordinate %q: %w", s, err)
			}
			xyz[i] = v
		}
		return protocol.NewGoalMessage(xyz[0], xyz[1], xyz[2])

	case "cmd":
		command := strings.TrimSpace(strings.Join(args[1:], " "))
		if command == "" {
			return nil, fmt.Errorf("usage: cmd <command>")
		}
		return protocol.NewCommandMessage(command)

	case "ping":
		return protocol.NewPingMessage(uuid.NewString())
	}
	return nil, fmt.Errorf("unknown subcommand %q", args[0])
}
