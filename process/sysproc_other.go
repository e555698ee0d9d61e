//go:build !unix

package process

import (
	"os"
	"os/exec"
)

func configureSysProcAttr(cmd *exec.Cmd) {}

func killTree(proc *os.Process) error {
	if proc == nil {
		return nil
	}
	return proc.Kill()
}
