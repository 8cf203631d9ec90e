package main

import "github.com/stridelab/warehouse/cmd/warehouse/cmd"

func main() {
	cmd.Execute()
}
