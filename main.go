package main

import "github.com/nextlevelbuilder/crosstalk/cmd"

func main() {
	cmd.Execute()
}
