package main

import "github.com/ademuri/workout-music-tools/cmd"

func main() {
	cmd.Execute()
}
