package main

import (
	"github.com/knowledgebase/netgraph/internal/server"
	"github.com/knowledgebase/netgraph/internal/util"
	"github.com/knowledgebase/netgraph/pkg/logger"
	"github.com/knowledgebase/netgraph/pkg/logger/console"

	_ "github.com/lib/pq"
)

func main() {
	util.LoadEnv()

	debug := util.GetEnvBool("DEBUG", false)

	consoleLogger := console.NewConsoleLogger(console.ConsoleLoggerParams{
		Debug:  debug,
		JSON:   util.GetEnvString("LOG_FORMAT", "text") == "json",
		Prefix: "netgraph",
	})
	logger.Init(consoleLogger)

	server.Init()
}
