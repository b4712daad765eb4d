package main

import "github.com/northcutted/chart-scan/cmd"

func main() {
	cmd.Execute()
}
