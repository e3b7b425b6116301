// Package inventory loads named device addresses and groups from a YAML or JSON file.
//
//	devices:
//	  - name: kitchen-plug
//	    address: 10.0.0.5
//	    groups: [kitchen]
//	  - name: hall-lamp
//	    address: "[fd00::7]:9999"
//	    groups: [hall]
//	groups:
//	  downstairs:
//	    children: [kitchen, hall]
package inventory

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"tplinker/internal/endpoint"
)

// Provider defines the interface for inventory providers
type Provider interface {
	// Endpoints returns every device in the inventory, in file order
	Endpoints() ([]endpoint.Endpoint, error)
	// Groups returns the names of all groups, sorted
	Groups() []string
	// EndpointsByGroup returns the devices of a group and of its child groups
	EndpointsByGroup(group string) ([]endpoint.Endpoint, error)
}

var _ Provider = (*FileInventory)(nil)

// Device is one named device entry
type Device struct {
	Name    string   `yaml:"name" json:"name"`
	Address string   `yaml:"address" json:"address"`
	Groups  []string `yaml:"groups" json:"groups"`
}

// Group gathers other groups under one name
type Group struct {
	Children []string `yaml:"children" json:"children"`
}

// Data is the decoded inventory file
type Data struct {
	Devices []Device         `yaml:"devices" json:"devices"`
	Groups  map[string]Group `yaml:"groups" json:"groups"`
}

// FileInventory is an inventory read from disk
type FileInventory struct {
	path string
	data Data
}

// LoadInventoryFromFile loads inventory from a file based on its extension
func LoadInventoryFromFile(path string) (*FileInventory, error) {
	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".yml", ".yaml", ".json":
	default:
		return nil, fmt.Errorf("unsupported inventory file format: %s", ext)
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read inventory file: %w", err)
	}

	inv, err := Parse(content, ext == ".json")
	if err != nil {
		return nil, err
	}
	inv.path = path
	return inv, nil
}

// Parse decodes inventory content and checks that every group it names exists
func Parse(content []byte, isJSON bool) (*FileInventory, error) {
	var data Data
	var err error
	if isJSON {
		err = json.Unmarshal(content, &data)
	} else {
		err = yaml.Unmarshal(content, &data)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse inventory file: %w", err)
	}

	inv := &FileInventory{data: data}
	if err := inv.check(); err != nil {
		return nil, err
	}
	return inv, nil
}

// Path returns the file the inventory was loaded from
func (fi *FileInventory) Path() string {
	return fi.path
}

func (fi *FileInventory) check() error {
	known := fi.groupSet()
	names := make(map[string]bool, len(fi.data.Devices))
	for i, dev := range fi.data.Devices {
		if dev.Address == "" {
			return fmt.Errorf("device %d (%q) has no address", i+1, dev.Name)
		}
		if dev.Name != "" {
			if names[dev.Name] {
				return fmt.Errorf("device name %q is used twice", dev.Name)
			}
			names[dev.Name] = true
		}
	}
	for name, group := range fi.data.Groups {
		for _, child := range group.Children {
			if !known[child] {
				return fmt.Errorf("group %q refers to unknown group %q", name, child)
			}
		}
	}
	return nil
}

// groupSet returns every group named by a device or declared at the top level
func (fi *FileInventory) groupSet() map[string]bool {
	known := make(map[string]bool)
	for _, dev := range fi.data.Devices {
		for _, g := range dev.Groups {
			known[g] = true
		}
	}
	for name := range fi.data.Groups {
		known[name] = true
	}
	return known
}

// Endpoints returns every device in the inventory, in file order
func (fi *FileInventory) Endpoints() ([]endpoint.Endpoint, error) {
	return fi.endpoints(func(Device) bool { return true })
}

// Groups returns the names of all groups, sorted
func (fi *FileInventory) Groups() []string {
	known := fi.groupSet()
	groups := make([]string, 0, len(known))
	for name := range known {
		groups = append(groups, name)
	}
	sort.Strings(groups)
	return groups
}

// EndpointsByGroup returns the devices of a group and of its child groups, in file order
func (fi *FileInventory) EndpointsByGroup(group string) ([]endpoint.Endpoint, error) {
	if !fi.groupSet()[group] {
		return nil, fmt.Errorf("group '%s' not found in inventory", group)
	}

	members := make(map[string]bool)
	fi.expandGroup(group, members)

	return fi.endpoints(func(dev Device) bool {
		for _, g := range dev.Groups {
			if members[g] {
				return true
			}
		}
		return false
	})
}

// expandGroup collects group and its descendants. Cycles stop at the first revisit.
func (fi *FileInventory) expandGroup(group string, members map[string]bool) {
	if members[group] {
		return
	}
	members[group] = true
	for _, child := range fi.data.Groups[group].Children {
		fi.expandGroup(child, members)
	}
}

func (fi *FileInventory) endpoints(keep func(Device) bool) ([]endpoint.Endpoint, error) {
	var endpoints []endpoint.Endpoint
	for _, dev := range fi.data.Devices {
		if !keep(dev) {
			continue
		}
		ep, err := endpoint.Parse(dev.Address)
		if err != nil {
			return nil, fmt.Errorf("device %s: not a valid address: %s: %w", displayName(dev), dev.Address, err)
		}
		endpoints = append(endpoints, ep)
	}
	return endpoints, nil
}

func displayName(dev Device) string {
	if dev.Name != "" {
		return dev.Name
	}
	return dev.Address
}
