package main

import "github.com/LENAX/stageflow/pkg/cli/cmd"

func main() {
	cmd.Execute()
}
