// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package frame

import "fmt"

// Command is a single-byte host to device control command. The device
// never acknowledges.
type Command byte

const (
	CmdStart   Command = 's'
	CmdStop    Command = 'e'
	CmdRestart Command = 'r'
)

// ParseCommand maps a received byte to a Command.
func ParseCommand(b byte) (Command, bool) {
	switch Command(b) {
	case CmdStart, CmdStop, CmdRestart:
		return Command(b), true
	}
	return 0, false
}

// Byte returns the wire byte.
func (c Command) Byte() byte { return byte(c) }

func (c Command) String() string {
	switch c {
	case CmdStart:
		return "start"
	case CmdStop:
		return "stop"
	case CmdRestart:
		return "restart"
	}
	return fmt.Sprintf("unknown(0x%02X)", byte(c))
}
