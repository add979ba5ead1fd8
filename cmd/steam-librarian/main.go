package main

import (
	"go-steam-librarian/cmd/steam-librarian/cmd"
)

func main() {
	// Execute the root command (defined in cmd/root.go). The logging
	// transport, if enabled, is closed by Execute itself.
	cmd.Execute()
}
