//go:build !windows

package builder

import (
	"os"
	"os/exec"
)

func interrupt(cmd *exec.Cmd) error {
	if cmd.Process == nil {
		return nil
	}
	return cmd.Process.Signal(os.Interrupt)
}
