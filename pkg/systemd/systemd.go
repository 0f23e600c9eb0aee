package systemd

import (
	"context"
	"os/exec"
)

// Restart asks systemd to restart the named unit. Wired to the Y button so
// an operator can bounce the display without a shell.
func Restart(ctx context.Context, unit string) error {
	return exec.CommandContext(ctx, "systemctl", "restart", unit).Run()
}
