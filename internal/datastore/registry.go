package datastore

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/tidwall/jsonc"

	"planstore/internal/apperr"
)

// Registry names accepted by Registries.Get.
const (
	RegistryAreas   = "areas"
	RegistryFloors  = "floors"
	RegistryDevices = "devices"
)

// Registries reads the auxiliary array-shaped datasets written by the
// external registry sync. They are display data only, so every read failure
// degrades to an empty list.
type Registries struct {
	paths map[string]string
}

// NewRegistries maps registry names to file paths.
func NewRegistries(areas, floors, devices string) *Registries {
	return &Registries{paths: map[string]string{
		RegistryAreas:   areas,
		RegistryFloors:  floors,
		RegistryDevices: devices,
	}}
}

// Get reads the named registry.
func (r *Registries) Get(name string) ([]json.RawMessage, error) {
	p, ok := r.paths[name]
	if !ok {
		return nil, fmt.Errorf("%w: unknown registry %q", apperr.ErrInvalidInput, name)
	}
	return ReadRegistry(p), nil
}

// ReadRegistry returns the JSON array stored at path, or an empty list when
// the file is absent, unreadable, not JSON, or not an array. Comments and
// trailing commas are tolerated.
func ReadRegistry(path string) []json.RawMessage {
	raw, err := os.ReadFile(path)
	if err != nil {
		return []json.RawMessage{}
	}
	var items []json.RawMessage
	if err := json.Unmarshal(jsonc.ToJSON(raw), &items); err != nil || items == nil {
		return []json.RawMessage{}
	}
	return items
}
