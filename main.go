package main

import "github.com/timvw/pane-driver/cmd"

func main() {
	cmd.Execute()
}
