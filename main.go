package main

import "github.com/dayuer/haggle-go/cmd"

func main() {
	cmd.Execute()
}
