package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/coralstor/hafw/plugin"
	"github.com/coralstor/hafw/server"
	"github.com/coralstor/hafw/utils"
)

func loadPlugins() {
	plugin.MiscEntryPoint()
	plugin.VipEntryPoint()
	plugin.FirewallEntryPoint()
	plugin.PrometheusEntryPoint()
}

var options server.Options

func abortOnWrongOption(msg string) {
	fmt.Println(msg)
	flag.Usage()
	os.Exit(1)
}

func parseCommandOptions() {
	options = server.DefaultOptions()
	flag.StringVar(&options.Ip, "ip", options.Ip, "The IP address the server listens on")
	flag.UintVar(&options.Port, "port", options.Port, "The port the server listens on")
	flag.UintVar(&options.ReadTimeout, "readtimeout", options.ReadTimeout, "The socket read timeout")
	flag.UintVar(&options.WriteTimeout, "writetimeout", options.WriteTimeout, "The socket write timeout")
	flag.StringVar(&options.LogFile, "logfile", options.LogFile, "The log file path")

	flag.Parse()

	if options.Ip == "" {
		abortOnWrongOption("error: the option 'ip' is required")
	}

	server.SetOptions(options)
}

func main() {
	parseCommandOptions()
	utils.InitLog(options.LogFile, false)
	utils.InitBootstrapInfo()
	loadPlugins()

	server.Start()
}
