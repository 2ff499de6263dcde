package main

import "Bindr/cmd"

func main() {
	cmd.Execute()
}
