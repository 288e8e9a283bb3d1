package main

import "github.com/strrl/ragchat/cmd/ragchat/commands"

func main() {
	commands.Execute()
}
