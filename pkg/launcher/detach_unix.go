//go:build !windows

package launcher

import (
	"os/exec"
	"syscall"
)

// detach puts the browser in its own process group so it survives the
// controller exiting and does not receive our terminal signals.
func detach(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}
