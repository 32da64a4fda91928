package main

import "github.com/scttfrdmn/probav/cmd"

func main() {
	cmd.Execute()
}
