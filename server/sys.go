package server

import (
	"fmt"
	"path/filepath"
	"sync"

	"github.com/coralstor/hafw/utils"
)

var (
	jobLocks   = make(map[string]*sync.Mutex)
	jobLocksMu sync.Mutex
)

func getJobLock(name string) *sync.Mutex {
	jobLocksMu.Lock()
	defer jobLocksMu.Unlock()

	m, ok := jobLocks[name]
	if !ok {
		m = &sync.Mutex{}
		jobLocks[name] = m
	}

	return m
}

func getJobLockPath(name string) string {
	return filepath.Join(utils.GetAgentRootPath(), fmt.Sprintf(".%s.flock", name))
}

// JobLock serializes all command handlers registered under the same lock
// name. The in-process mutex queues concurrent requests; the flock keeps
// out-of-process tooling that honors the same lock file from interleaving
// with an in-flight job.
func JobLock(name string, fn CommandHandler) CommandHandler {
	return func(ctx *CommandContext) interface{} {
		m := getJobLock(name)
		m.Lock()
		defer m.Unlock()

		if fileLock, err := utils.LockFileExcl(getJobLockPath(name)); err == nil {
			defer fileLock.Unlock()
		}

		return fn(ctx)
	}
}

// JobLockInterface wraps a plain function with the same named lock used
// by JobLock'd command handlers.
func JobLockInterface(name string, fn func()) func() {
	return func() {
		m := getJobLock(name)
		m.Lock()
		defer m.Unlock()

		if fileLock, err := utils.LockFileExcl(getJobLockPath(name)); err == nil {
			defer fileLock.Unlock()
		}

		fn()
	}
}
