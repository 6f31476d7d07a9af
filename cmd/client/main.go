package main

import "loanbook/cmd/client/cmd"

func main() {
	cmd.Execute()
}
