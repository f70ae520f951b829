package main

import (
	"github.com/axellelanca/funnelstats/cmd"
	_ "github.com/axellelanca/funnelstats/cmd/cli"
	_ "github.com/axellelanca/funnelstats/cmd/server"
)

func main() {
	cmd.Execute()
}
