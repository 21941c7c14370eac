package plugin

import (
	"io"
	"net/http"

	"github.com/coralstor/hafw/server"
	"github.com/coralstor/hafw/utils"

	log "github.com/sirupsen/logrus"
)

const (
	INIT_PATH = "/init"
	PING_PATH = "/ping"
	ECHO_PATH = "/echo"
	TEST_PATH = "/test"
)

var (
	VERSION = ""
)

type initCmd struct {
	Uuid     string `json:"uuid"`
	LogLevel string `json:"logLevel"`
}

type initRsp struct {
	Uuid         string `json:"uuid"`
	AgentVersion string `json:"agentVersion"`
}

type pingRsp struct {
	Uuid     string `json:"uuid"`
	Version  string `json:"version"`
	HaStatus string `json:"haStatus"`
}

type testRsp struct {
	Success      bool   `json:"success"`
	AgentVersion string `json:"agentVersion"`
}

var initConfig = &initCmd{}

func initHandler(ctx *server.CommandContext) interface{} {
	ctx.GetCommand(initConfig)

	if initConfig.LogLevel != "" {
		level, err := log.ParseLevel(initConfig.LogLevel)
		if err != nil {
			log.Warnf("unknown log level %s, keeping current level", initConfig.LogLevel)
		} else {
			log.SetLevel(level)
		}
	}

	return initRsp{Uuid: initConfig.Uuid, AgentVersion: VERSION}
}

func pingHandler(ctx *server.CommandContext) interface{} {
	return pingRsp{Uuid: initConfig.Uuid, Version: VERSION, HaStatus: utils.GetHaStatus()}
}

func echoHandler(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	w.Write(body)
}

func testHandler(ctx *server.CommandContext) interface{} {
	return testRsp{Success: true, AgentVersion: VERSION}
}

func MiscEntryPoint() {
	server.RegisterSyncCommandHandler(INIT_PATH, initHandler)
	server.RegisterSyncCommandHandler(PING_PATH, pingHandler)
	server.RegisterRawHttpHandler(ECHO_PATH, echoHandler)
	server.RegisterSyncCommandHandler(TEST_PATH, testHandler)
}
