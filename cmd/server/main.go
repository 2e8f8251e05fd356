package main

import (
	"patchsage/internal/server"
	"patchsage/internal/util"
	"patchsage/pkg/logger"
	"patchsage/pkg/logger/console"
)

func main() {
	util.LoadEnv()

	debug := util.GetEnvBool("DEBUG", false)

	consoleLogger := console.NewConsoleLogger(console.ConsoleLoggerParams{
		Debug: debug,
	})
	logger.Init(consoleLogger)

	server.Init()
}
