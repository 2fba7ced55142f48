package tendermint

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
)

// InitTendermint runs `tendermint init` once for tmHome.
func InitTendermint(ctx context.Context, tmHome string) error {
	if tmHome == "" {
		tmHome = TendermintHome()
	}
	if _, err := os.Stat(filepath.Join(tmHome, "config", "config.toml")); err == nil {
		return nil
	}

	cmd := exec.CommandContext(ctx, "tendermint", "init", "--home", tmHome)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("failed to initialize Tendermint: %w", err)
	}
	return nil
}

// GetTendermintCommand returns the command that starts a node connected to
// the application socket. The caller starts and waits on it.
func GetTendermintCommand(ctx context.Context, tmHome, socketAddr string) *exec.Cmd {
	if tmHome == "" {
		tmHome = TendermintHome()
	}
	if socketAddr == "" {
		socketAddr = "unix://cfl.sock"
	}

	cmd := exec.CommandContext(ctx, "tendermint", "node",
		"--home", tmHome,
		"--proxy_app", socketAddr,
	)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	return cmd
}

// TendermintHome returns $TMHOME, falling back to ~/.tendermint.
func TendermintHome() string {
	if home := os.Getenv("TMHOME"); home != "" {
		return home
	}
	home, err := os.UserHomeDir()
	if err != nil {
		home = os.Getenv("HOME")
	}
	return filepath.Join(home, ".tendermint")
}
