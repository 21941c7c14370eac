package utils

import (
	"reflect"
	"runtime"
	"time"

	log "github.com/sirupsen/logrus"
)

func Retry(fn func() error, retryTimes uint, interval uint) error {
	for {
		err := fn()
		if err == nil {
			return nil
		}

		if retryTimes == 0 {
			return err
		}

		log.Warnf("failed to execute a function %v, sleep %d seconds and will retry %v times, %v",
			runtime.FuncForPC(reflect.ValueOf(fn).Pointer()).Name(), interval, retryTimes, err)
		time.Sleep(time.Duration(interval) * time.Second)
		retryTimes--
	}
}
