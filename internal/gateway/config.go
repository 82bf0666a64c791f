package gateway

import (
	"fmt"
	"os"
	"path/filepath"

	json "github.com/goccy/go-json"

	"clawsync/internal/statesync"
)

// WriteConfig merges the device-auth override into the gateway's
// openclaw.json under stateDir, creating the file if absent and preserving
// every other key. The file is ordinary state to the sync engine and doubles
// as the boot sentinel, so this must run strictly after the restore decision.
func WriteConfig(stateDir string) error {
	path := filepath.Join(stateDir, statesync.SentinelName)

	doc := map[string]any{}
	data, err := os.ReadFile(path)
	if err == nil {
		if err := json.Unmarshal(data, &doc); err != nil {
			return fmt.Errorf("parsing existing %s: %w", statesync.SentinelName, err)
		}
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("reading %s: %w", statesync.SentinelName, err)
	}

	gw, _ := doc["gateway"].(map[string]any)
	if gw == nil {
		gw = map[string]any{}
	}
	gw["device_auth_disabled"] = true
	doc["gateway"] = gw

	out, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding %s: %w", statesync.SentinelName, err)
	}

	if err := os.MkdirAll(stateDir, 0755); err != nil {
		return fmt.Errorf("creating state directory: %w", err)
	}
	if err := os.WriteFile(path, out, 0600); err != nil {
		return fmt.Errorf("writing %s: %w", statesync.SentinelName, err)
	}
	return nil
}
