package utils

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// Filelock is a flock(2) based lock, shared or exclusive.
type Filelock struct {
	file *os.File
}

func doLockFile(path string, mode int) (*Filelock, error) {
	// a lock can be placed on a file regardless of the mode
	// in which the file was opened
	file, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0640)
	if err != nil {
		return nil, fmt.Errorf("open %s: %s", path, err)
	}

	err = unix.Flock(int(file.Fd()), mode)
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("lock %s: %s", path, err)
	}

	return &Filelock{file}, nil
}

// LockFileShar imposes a shared lock on a file.
func LockFileShar(path string) (*Filelock, error) {
	return doLockFile(path, unix.LOCK_SH)
}

// LockFileExcl locks a file exclusively.
func LockFileExcl(path string) (*Filelock, error) {
	return doLockFile(path, unix.LOCK_EX)
}

// Unlock releases a lock held by the current process.
func (lck *Filelock) Unlock() error {
	file := lck.file
	err := unix.Flock(int(file.Fd()), unix.LOCK_UN)
	file.Close()
	os.Remove(file.Name())
	return err
}
