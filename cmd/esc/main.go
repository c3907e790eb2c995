/*
esc is the Escalator CLI for running alert escalation chains.

When an alert group fires, its configured escalation chain is frozen
into a snapshot, and a background driver walks the chain step by step:
waiting, notifying users, schedules and groups, repeating the chain,
and resolving.

Usage:

	esc <command> [arguments]

Common commands:

	esc alert <group>     Record an incoming alert
	esc groups list       List alert groups
	esc plan <group>      Show the projected escalation timeline
	esc log <group>       Show the escalation log
	esc ack <group>       Acknowledge an alert group
	esc drive start       Start the escalation driver
	esc watch <group>     Follow an alert group live

See 'esc help <command>' for more information on a specific command.
*/
package main

import (
	"os"

	"github.com/OWNER/escalator/internal/cmd"
)

func main() {
	os.Exit(cmd.Execute())
}
