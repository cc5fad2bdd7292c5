//go:build !unix

package streamer

import (
	"os/exec"
	"syscall"
)

func setProcessGroup(cmd *exec.Cmd) {}

func terminate(cmd *exec.Cmd) error {
	return cmd.Process.Kill()
}

func exitSignal(err error) syscall.Signal {
	return 0
}
