// Package nodeconfig provides access to the configuration of the storage
// grid node that hosts the plugin.
//
// A node is rooted at a directory. Private, per-node state lives under
// <node-dir>/private and plugin settings are read from <node-dir>/zkapauthz.yaml,
// a map of section names to key/value maps:
//
//	storageclient.plugins.privatestorageio-zkapauthz-v1:
//	  redeemer: dummy
//	  listen: 127.0.0.1:3456
package nodeconfig

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// FileName is the name of the settings file inside a node directory.
const FileName = "zkapauthz.yaml"

// PluginSection is the section holding this plugin's settings.
const PluginSection = "storageclient.plugins.privatestorageio-zkapauthz-v1"

// Config is the node configuration as seen by the plugin.
type Config interface {
	// PrivatePath returns the path of name inside the node's private state
	// directory. The directory is not created.
	PrivatePath(name string) string

	// Get returns the value of key in section, or def when it is unset.
	Get(section, key, def string) string
}

// Sections maps a section name to its key/value settings.
type Sections map[string]map[string]string

// Node is a Config backed by a node directory on disk.
type Node struct {
	dir      string
	sections Sections
}

// Load reads the node configuration rooted at dir. A missing settings file
// yields an empty configuration.
func Load(dir string) (*Node, error) {
	data, err := os.ReadFile(filepath.Join(dir, FileName))
	if errors.Is(err, fs.ErrNotExist) {
		return &Node{dir: dir, sections: Sections{}}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read node config: %w", err)
	}

	sections := Sections{}
	if err := yaml.Unmarshal(data, &sections); err != nil {
		return nil, fmt.Errorf("parse node config %s: %w", filepath.Join(dir, FileName), err)
	}
	return &Node{dir: dir, sections: sections}, nil
}

// Dir returns the node directory.
func (n *Node) Dir() string {
	return n.dir
}

// PrivatePath implements Config.
func (n *Node) PrivatePath(name string) string {
	return filepath.Join(n.dir, "private", name)
}

// Get implements Config.
func (n *Node) Get(section, key, def string) string {
	return lookup(n.sections, section, key, def)
}

// Memory is a Config held entirely in memory. Its private directory is
// PrivateDir.
type Memory struct {
	PrivateDir string
	Sections   Sections
}

// PrivatePath implements Config.
func (m *Memory) PrivatePath(name string) string {
	return filepath.Join(m.PrivateDir, name)
}

// Get implements Config.
func (m *Memory) Get(section, key, def string) string {
	return lookup(m.Sections, section, key, def)
}

// Save writes sections to the settings file of the node rooted at dir.
func Save(dir string, sections Sections) error {
	data, err := yaml.Marshal(sections)
	if err != nil {
		return fmt.Errorf("encode node config: %w", err)
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("create node dir: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, FileName), data, 0o600); err != nil {
		return fmt.Errorf("write node config: %w", err)
	}
	return nil
}

func lookup(sections Sections, section, key, def string) string {
	values, ok := sections[section]
	if !ok {
		return def
	}
	v, ok := values[key]
	if !ok {
		return def
	}
	return v
}
