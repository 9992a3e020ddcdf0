package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// VehicleIdentity names one vehicle this fabric instance can bridge to,
// loaded from the vehicle registry YAML file (§3, §6).
type VehicleIdentity struct {
	ID           string `yaml:"id"`
	Name         string `yaml:"name"`
	SerialDevice string `yaml:"serial_device"`
	Baud         int    `yaml:"baud"`
}

// VehicleRegistry holds every configured vehicle identity.
type VehicleRegistry struct {
	Vehicles []VehicleIdentity `yaml:"vehicles"`
}

// LoadVehicleRegistry loads the registry from path. A missing file is not
// an error: the caller falls back to a single synthesized identity, the
// same graceful-degradation the teacher's drone registry loader applies.
func LoadVehicleRegistry(path string) (*VehicleRegistry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &VehicleRegistry{}, nil
		}
		return nil, fmt.Errorf("read vehicle registry: %w", err)
	}

	var registry VehicleRegistry
	if err := yaml.Unmarshal(data, &registry); err != nil {
		return nil, fmt.Errorf("parse vehicle registry: %w", err)
	}
	return &registry, nil
}

// Find looks up a vehicle identity by id.
func (r *VehicleRegistry) Find(id string) (*VehicleIdentity, bool) {
	for i := range r.Vehicles {
		if r.Vehicles[i].ID == id {
			return &r.Vehicles[i], true
		}
	}
	return nil, false
}

// FallbackIdentity synthesizes a single vehicle identity from the
// fabric's own autopilot config, used when the registry is empty.
func FallbackIdentity(cfg *AutopilotConfig) VehicleIdentity {
	return VehicleIdentity{
		ID:           "default",
		Name:         "default",
		SerialDevice: cfg.Device,
		Baud:         cfg.Baud,
	}
}
