package main

import "github.com/nextlevelbuilder/wristclaw/cmd"

func main() {
	cmd.Execute()
}
