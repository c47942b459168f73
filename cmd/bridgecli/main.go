package main

import (
	"github.com/robotalks/motorsense/pkg/cli/sh"
	"github.com/robotalks/motorsense/pkg/l1/env"
)

func init() {
	env.SetupFlags()
	sh.SetupFlags()
}

func main() {
	sh.Main()
}
