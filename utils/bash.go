package utils

import (
	"bytes"
	"fmt"
	"os"
	"os/exec"
	"syscall"
	"text/template"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// Bash runs a shell command and captures its exit code and output.
// Command may be a text/template rendered against Arguments, which makes
// it easy to feed a whole struct in via structs.Map.
type Bash struct {
	Command   string
	PipeFail  bool
	Arguments map[string]interface{}
	NoLog     bool
	Timeout   int
	Sudo      bool

	retCode int
	stdout  string
	stderr  string
	err     error
}

func (b *Bash) build() error {
	Assert(b.Command != "", "Command cannot be empty string")

	if b.Arguments != nil {
		tmpl, err := template.New("script").Parse(b.Command)
		if err != nil {
			return err
		}

		var buf bytes.Buffer
		err = tmpl.Execute(&buf, b.Arguments)
		if err != nil {
			return err
		}

		b.Command = buf.String()
	}

	if b.PipeFail {
		b.Command = fmt.Sprintf("set -o pipefail; %s", b.Command)
	}

	if b.Timeout == 0 {
		b.Timeout = 300
	}

	return nil
}

func (b *Bash) Run() error {
	ret, so, se, err := b.RunWithReturn()
	if err != nil {
		return errors.Wrap(err, fmt.Sprintf("failed to execute the command[%s] because of an internal error", b.Command))
	}

	if ret != 0 {
		return errors.New(fmt.Sprintf("failed to execute the command[%s]\nreturn code:%d\nstdout:%s\nstderr:%s\n",
			b.Command, ret, so, se))
	}

	return nil
}

func (b *Bash) RunWithReturn() (retCode int, stdout, stderr string, err error) {
	if err = b.build(); err != nil {
		b.err = err
		return -1, "", "", err
	}

	if !b.NoLog {
		log.Debugf("shell start: %s", b.Command)
	}

	var so, se bytes.Buffer
	var cmd *exec.Cmd

	cmdstr := b.Command

	// very long scripts go through a temp file to dodge ARG_MAX
	var tmpName string
	if len(b.Command) > 1024*4 {
		tmpfile, terr := os.CreateTemp("", "hafw-command")
		PanicOnError(terr)
		tmpName = tmpfile.Name()

		err = tmpfile.Chmod(0775)
		PanicOnError(err)
		_, err = tmpfile.Write([]byte(b.Command))
		PanicOnError(err)
		err = tmpfile.Close()
		PanicOnError(err)
		cmdstr = tmpName
	}
	if tmpName != "" {
		defer os.Remove(tmpName)
	}

	if b.Sudo {
		cmd = exec.Command("sudo", "bash", "-c", cmdstr)
	} else {
		cmd = exec.Command("bash", "-c", cmdstr)
	}

	cmd.Stdout = &so
	cmd.Stderr = &se
	if err = cmd.Start(); err != nil {
		return
	}

	done := make(chan error)
	go func() { done <- cmd.Wait() }()

	after := time.After(time.Duration(b.Timeout) * time.Second)
	select {
	case <-after:
		cmd.Process.Signal(syscall.SIGTERM)
		err = fmt.Errorf("bash command %s timeout after %d sec", b.Command, b.Timeout)
		retCode = -1
	case err = <-done:
		if err != nil {
			if exitError, ok := err.(*exec.ExitError); ok {
				retCode = exitError.ExitCode()
				err = nil
			} else {
				panic(errors.Errorf("unable to get return code, %s", err))
			}
		} else {
			retCode = cmd.ProcessState.ExitCode()
		}
	}

	stdout = so.String()
	stderr = se.String()

	b.retCode = retCode
	b.stdout = stdout
	b.stderr = stderr

	if !b.NoLog {
		log.WithFields(log.Fields{
			"return code": fmt.Sprintf("%v", retCode),
			"stdout":      stdout,
			"stderr":      stderr,
			"err":         fmt.Sprintf("%v", err),
		}).Debugf("shell done: %s", b.Command)
	}

	return
}

func (b *Bash) PanicIfError() {
	if b.err != nil {
		panic(errors.New(fmt.Sprintf("shell failure[command: %v], internal error: %v",
			b.Command, b.err)))
	}

	if b.retCode != 0 {
		panic(errors.New(fmt.Sprintf("shell failure[command: %v, return code: %v, stdout: %v, stderr: %v",
			b.Command, b.retCode, b.stdout, b.stderr)))
	}
}

func NewBash() *Bash {
	return &Bash{}
}
