package wifi

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// NMCLI drives NetworkManager through its CLI.
type NMCLI struct{}

func (NMCLI) Status(ctx context.Context) (bool, string, error) {
	out, err := exec.CommandContext(ctx, "nmcli", "-t", "-f", "ACTIVE,SSID", "dev", "wifi").Output()
	if err != nil {
		return false, "", fmt.Errorf("nmcli status: %w", err)
	}
	for _, line := range strings.Split(strings.TrimSpace(string(out)), "\n") {
		if ssid, ok := strings.CutPrefix(line, "yes:"); ok {
			return true, ssid, nil
		}
	}
	return false, "", nil
}

func (NMCLI) Scan(ctx context.Context) ([]string, error) {
	out, err := exec.CommandContext(ctx, "nmcli", "-t", "-f", "SSID", "dev", "wifi", "list", "--rescan", "yes").Output()
	if err != nil {
		return nil, fmt.Errorf("nmcli scan: %w", err)
	}
	var ssids []string
	for _, line := range strings.Split(strings.TrimSpace(string(out)), "\n") {
		if line != "" {
			ssids = append(ssids, line)
		}
	}
	return ssids, nil
}

func (NMCLI) Connect(ctx context.Context, ssid string) error {
	if err := exec.CommandContext(ctx, "nmcli", "dev", "wifi", "connect", ssid).Run(); err != nil {
		return fmt.Errorf("nmcli connect %s: %w", ssid, err)
	}
	return nil
}
