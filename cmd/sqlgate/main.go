package main

import "github.com/koustreak/sqlgate/internal/cli"

func main() {
	cli.Execute()
}
