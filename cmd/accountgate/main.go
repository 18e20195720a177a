package main

import "github.com/account-gate/accountgate/cmd/accountgate/cmd"

func main() {
	cmd.Execute()
}
