package descriptor

import "encoding/json"

const (
	// ManifestFileName is the manifest written at the archive root.
	ManifestFileName = "metadata.json"
	// ModuleTypeHardware is the only module type this packager emits.
	ModuleTypeHardware = "hardware"
)

// EntryModuleMetadata is the metadata.json document read by the host
// loader. Field names and nesting are a file-format contract.
type EntryModuleMetadata struct {
	ModuleName string           `json:"moduleName"`
	Version    string           `json:"version"`
	Type       string           `json:"type"`
	Title      json.RawMessage  `json:"title,omitempty"`
	Files      ModuleFiles      `json:"files"`
	Properties ModuleProperties `json:"properties"`
}

// ModuleFiles lists archive-root paths of the packaged files.
type ModuleFiles struct {
	Image  string `json:"image"`
	Block  string `json:"block"`
	Module string `json:"module"`
}

// ModuleProperties carries the descriptor's classification values. Values
// absent from the descriptor are left out; an explicit null is kept.
type ModuleProperties struct {
	Platform json.RawMessage `json:"platform,omitempty"`
	Category json.RawMessage `json:"category,omitempty"`
	ID       json.RawMessage `json:"id,omitempty"`
}

// NewManifest derives the manifest for req from a normalized descriptor.
func NewManifest(req CompressionRequest, d *HardwareDescriptor) EntryModuleMetadata {
	return EntryModuleMetadata{
		ModuleName: req.ModuleName,
		Version:    req.Version,
		Type:       ModuleTypeHardware,
		Title:      d.Name,
		Files: ModuleFiles{
			Image:  d.Icon,
			Block:  req.BlockFileName(),
			Module: req.ArchiveName(),
		},
		Properties: ModuleProperties{
			Platform: d.Platform,
			Category: d.Category,
			ID:       d.ID,
		},
	}
}

// Paths returns the files entries in manifest order.
func (f ModuleFiles) Paths() []string {
	return []string{f.Image, f.Block, f.Module}
}
