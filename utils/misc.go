package utils

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

const (
	AGENT_ROOT_PATH_ENV = "HAFW_ROOT"
	UT_FLAG_ENV         = "HAFW_UT"
)

func Assert(expression bool, msg string) {
	if !expression {
		panic(errors.New(msg))
	}
}

func Assertf(expression bool, f string, args ...interface{}) {
	if !expression {
		panic(errors.Errorf(f, args...))
	}
}

func PanicOnError(err error) {
	if err != nil {
		panic(err)
	}
}

func LogError(args ...interface{}) {
	for _, arg := range args {
		if e, ok := arg.(error); ok {
			err := errors.Wrap(e, "UNHANDLED ERROR, PLEASE REPORT A BUG TO US")
			log.Warn(fmt.Sprintf("%+v\n", err))
		}
	}
}

// GetAgentRootPath returns the agent state directory. Unit tests point
// HAFW_ROOT at a scratch directory so nothing touches /var/lib.
func GetAgentRootPath() string {
	if p := os.Getenv(AGENT_ROOT_PATH_ENV); p != "" {
		return p
	}
	return "/var/lib/hafw/"
}

func GetUtLogDir() string {
	return filepath.Join(GetAgentRootPath(), "testLog") + "/"
}

func IsRunningUT() bool {
	return os.Getenv(UT_FLAG_ENV) != ""
}
