package main

import (
	"cyberia/cmd"
	"cyberia/config"
	"flag"
	"os"
)

func main() {
	var (
		server bool
		port   int
		fetch  string
	)

	flag.BoolVar(&server, "server", false, "Start in web server mode")
	flag.IntVar(&port, "port", 8080, "Port for web server mode")
	flag.StringVar(&fetch, "fetch", "", "App id to download and install once")
	flag.Parse()

	logger := config.NewLogger(os.Stderr)

	// Server mode takes precedence
	if server {
		if err := cmd.StartWebServer(port, logger); err != nil {
			logger.Error("Server stopped", "error", err)
			os.Exit(1)
		}
		return
	}

	if fetch == "" {
		flag.Usage()
		return
	}

	if err := cmd.Fetch(fetch, cmd.NewPlugin(logger, nil), os.Stdout); err != nil {
		logger.Error("Fetch failed", "appid", fetch, "error", err)
		os.Exit(1)
	}
}
