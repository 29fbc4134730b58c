/*
SPDX-License-Identifier: Apache-2.0

Copyright 2024 The Taxinomia Authors

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    https://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package datasources

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/goccy/go-json"
	"github.com/google/pivotengine/core/metrics"
	"golang.org/x/sync/singleflight"
	"google.golang.org/protobuf/encoding/prototext"
	"google.golang.org/protobuf/types/known/structpb"
)

// ErrUnknownSource is returned for source names that are not configured.
var ErrUnknownSource = errors.New("unknown data source")

// DataSource describes one configured source.
type DataSource struct {
	Name          string            `json:"name"`
	SourceType    string            `json:"sourceType"`
	Description   string            `json:"description,omitempty"`
	AnnotationsID string            `json:"annotationsId,omitempty"`
	Config        map[string]string `json:"config,omitempty"`
}

// DataSourcesConfig is the file format read by LoadConfig.
type DataSourcesConfig struct {
	Annotations []*ColumnAnnotations `json:"annotations,omitempty"`
	Sources     []*DataSource        `json:"sources"`
}

// ParseConfig reads a DataSourcesConfig from JSON, or from a
// google.protobuf.Struct in text format when textproto is set.
func ParseConfig(data []byte, textproto bool) (*DataSourcesConfig, error) {
	if textproto {
		var s structpb.Struct
		if err := prototext.Unmarshal(data, &s); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
		var err error
		if data, err = json.Marshal(s.AsMap()); err != nil {
			return nil, err
		}
	}
	config := &DataSourcesConfig{}
	if err := json.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	for i, src := range config.Sources {
		if src.Name == "" || src.SourceType == "" {
			return nil, fmt.Errorf("source %d: name and sourceType are required", i)
		}
	}
	return config, nil
}

// Manager handles loading and caching of data sources.
// Annotations and source metadata are registered eagerly; data is loaded
// lazily on demand and cached until invalidated.
type Manager struct {
	mu sync.RWMutex

	annotations map[string]*ColumnAnnotations
	sources     map[string]*DataSource
	loaders     map[string]Loader
	datasets    map[string]*Dataset

	// Concurrent loads of one source share a single call.
	group singleflight.Group

	// Base directory for resolving relative paths
	baseDir string
}

// NewManager creates a new data source manager.
func NewManager() *Manager {
	return &Manager{
		annotations: make(map[string]*ColumnAnnotations),
		sources:     make(map[string]*DataSource),
		loaders:     make(map[string]Loader),
		datasets:    make(map[string]*Dataset),
	}
}

// RegisterLoader registers a loader for its source type, replacing any
// loader already registered for that type.
func (m *Manager) RegisterLoader(loader Loader) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.loaders[loader.SourceType()] = loader
}

// LoadConfig reads a config file (.json, otherwise textproto) and registers
// its annotations and sources. Relative paths resolve against the file's
// directory.
func (m *Manager) LoadConfig(configPath string) error {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	config, err := ParseConfig(data, filepath.Ext(configPath) != ".json")
	if err != nil {
		return err
	}
	m.SetBaseDir(filepath.Dir(configPath))
	m.AddConfig(config)
	return nil
}

// AddConfig registers everything in config.
func (m *Manager) AddConfig(config *DataSourcesConfig) {
	for _, ann := range config.Annotations {
		m.AddAnnotations(ann)
	}
	for _, src := range config.Sources {
		m.AddSource(src)
	}
}

// SetBaseDir sets the base directory for resolving relative paths in config.
func (m *Manager) SetBaseDir(dir string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.baseDir = dir
}

// AddAnnotations registers an annotation set by ID.
func (m *Manager) AddAnnotations(annotations *ColumnAnnotations) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.annotations[annotations.ID] = annotations
}

// GetAnnotations returns the annotations for an ID, or nil.
func (m *Manager) GetAnnotations(id string) *ColumnAnnotations {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.annotations[id]
}

// AddSource registers a source, dropping any cached data for its name.
func (m *Manager) AddSource(source *DataSource) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sources[source.Name] = source
	delete(m.datasets, source.Name)
}

// GetSourceNames returns all registered source names, sorted.
func (m *Manager) GetSourceNames() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, 0, len(m.sources))
	for name := range m.sources {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// GetSource returns the source metadata for a given name, or nil.
func (m *Manager) GetSource(name string) *DataSource {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.sources[name]
}

// LoadData loads a source by name, returning cached data when present.
// Columns carry the source's annotations.
func (m *Manager) LoadData(ctx context.Context, sourceName string) (*Dataset, error) {
	m.mu.RLock()
	if ds, ok := m.datasets[sourceName]; ok {
		m.mu.RUnlock()
		return ds, nil
	}
	source, ok := m.sources[sourceName]
	if !ok {
		m.mu.RUnlock()
		return nil, fmt.Errorf("%w: %q", ErrUnknownSource, sourceName)
	}
	annotations := m.annotations[source.AnnotationsID]
	loader, hasLoader := m.loaders[source.SourceType]
	baseDir := m.baseDir
	m.mu.RUnlock()

	if !hasLoader {
		return nil, fmt.Errorf("no loader registered for source type %q", source.SourceType)
	}

	v, err, _ := m.group.Do(sourceName, func() (any, error) {
		config := resolveConfigPaths(source.Config, baseDir)
		ds, err := loader.Load(ctx, config)
		metrics.RecordLoad(source.SourceType, err)
		if err != nil {
			return nil, fmt.Errorf("failed to load source %q: %w", sourceName, err)
		}
		if annotations != nil {
			ds = ds.Annotate(annotations)
		}
		m.mu.Lock()
		if m.sources[sourceName] == source {
			m.datasets[sourceName] = ds
		}
		m.mu.Unlock()
		return ds, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Dataset), nil
}

var pathKeys = map[string]bool{
	"file_path":      true,
	"options_file":   true,
	"proto_file":     true,
	"descriptor_set": true,
}

// resolveConfigPaths resolves relative file paths in config against baseDir.
func resolveConfigPaths(config map[string]string, baseDir string) map[string]string {
	if baseDir == "" {
		return config
	}
	resolved := make(map[string]string, len(config))
	for k, v := range config {
		if pathKeys[k] && v != "" && !filepath.IsAbs(v) {
			resolved[k] = filepath.Join(baseDir, v)
		} else {
			resolved[k] = v
		}
	}
	return resolved
}

// InvalidateCache removes a source from the cache, forcing reload on next access.
func (m *Manager) InvalidateCache(sourceName string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.datasets, sourceName)
}

// InvalidateAllCaches removes all sources from the cache.
func (m *Manager) InvalidateAllCaches() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.datasets = make(map[string]*Dataset)
}

// IsLoaded reports whether data for a source is currently cached.
func (m *Manager) IsLoaded(sourceName string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.datasets[sourceName]
	return ok
}

// GetLoadedSources returns the names of all cached sources, sorted.
func (m *Manager) GetLoadedSources() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, 0, len(m.datasets))
	for name := range m.datasets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
