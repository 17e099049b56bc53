//go:build !unix

package backup

import "os/exec"

// isolateProcessGroup keeps exec's default cancellation (kill the process).
func isolateProcessGroup(cmd *exec.Cmd) {}
