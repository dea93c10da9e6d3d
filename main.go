package main

import "github.com/AdguardTeam/WebStats/internal/cmd"

func main() {
	cmd.Main()
}
