// mdrctl is a D-Bus control client for the mdrd daemon.
package main

import "github.com/sony-mdr/mdrd/cmd/mdrctl/commands"

func main() {
	commands.Execute()
}
