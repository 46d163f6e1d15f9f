package action

import (
	"os/exec"
	"syscall"

	"github.com/bnema/radialmx/internal/logger"
)

// ProcessSpawner starts commands in their own process group and reaps them
// in the background.
type ProcessSpawner struct{}

func (ProcessSpawner) Spawn(argv []string) (int, error) {
	cmd := exec.Command(argv[0], argv[1:]...)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	if err := cmd.Start(); err != nil {
		return 0, err
	}
	pid := cmd.Process.Pid
	go func() {
		if err := cmd.Wait(); err != nil {
			logger.Debugf("action: %s (pid %d) exited: %v", argv[0], pid, err)
		}
	}()
	return pid, nil
}
