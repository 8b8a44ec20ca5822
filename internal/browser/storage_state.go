package browser

import (
	"fmt"
	"os"

	jsoniter "github.com/json-iterator/go"
)

// StorageState is the saved authentication state of a browser context, in the
// JSON layout playwright writes with storageState().
type StorageState struct {
	Cookies []StorageCookie `json:"cookies"`
	Origins []StorageOrigin `json:"origins"`
}

type StorageCookie struct {
	Name     string  `json:"name"`
	Value    string  `json:"value"`
	Domain   string  `json:"domain"`
	Path     string  `json:"path"`
	Expires  float64 `json:"expires"`
	HTTPOnly bool    `json:"httpOnly"`
	Secure   bool    `json:"secure"`
	SameSite string  `json:"sameSite"`
}

type StorageOrigin struct {
	Origin       string         `json:"origin"`
	LocalStorage []StorageEntry `json:"localStorage"`
}

type StorageEntry struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// LoadStorageState reads a storage state file.
func LoadStorageState(path string) (*StorageState, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read storage state '%s': %w", path, err)
	}
	var state StorageState
	if err := jsoniter.Unmarshal(raw, &state); err != nil {
		return nil, fmt.Errorf("failed to parse storage state '%s': %w", path, err)
	}
	return &state, nil
}
