package actions

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

const scriptTimeout = 10 * time.Second

// ExecuteScript runs a shell snippet for the configured admin. Everyone else
// is refused. With no admin configured the function is disabled entirely.
func (s *Set) ExecuteScript(ctx context.Context, args map[string]any) (any, error) {
	id, err := userID(args)
	if err != nil {
		return nil, err
	}
	if s.AdminUserID == "" || id != s.AdminUserID {
		s.logger().Warn("script execution refused", "user_id", id)
		return "You don't have permission to execute scripts.", nil
	}
	script, _ := args["script"].(string)
	if strings.TrimSpace(script) == "" {
		return "No script provided.", nil
	}

	ctx, cancel := context.WithTimeout(ctx, scriptTimeout)
	defer cancel()
	out, err := exec.CommandContext(ctx, "sh", "-c", script).CombinedOutput()
	if err != nil {
		return fmt.Sprintf("Error executing script: %v\n%s", err, out), nil
	}
	return fmt.Sprintf("Script executed. Result: %s", strings.TrimSpace(string(out))), nil
}
