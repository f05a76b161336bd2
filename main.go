package main

import "github.com/fakeyudi/pomotrack/cmd"

func main() {
	cmd.Execute()
}
