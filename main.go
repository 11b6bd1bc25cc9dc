package main

import (
	"github.com/nodepool-project/nodepool/cmd/cli"
	_ "github.com/nodepool-project/nodepool/pkg/logger"
)

func main() {
	cli.Execute()
}
