// Package version exposes the build metadata stamped at link time, falling
// back to the VCS information embedded in the binary.
package version

import (
	"encoding/json"
	"runtime"
	"runtime/debug"
)

///////////////////////////////////////////////////////////////////////////////
// TYPES

type Metadata struct {
	Name      string `json:"name"`
	Version   string `json:"version"`
	Compiler  string `json:"compiler"`
	Source    string `json:"source,omitempty"`
	Branch    string `json:"branch,omitempty"`
	Hash      string `json:"hash,omitempty"`
	BuildTime string `json:"build_time,omitempty"`
	Platform  string `json:"platform,omitempty"`
	Modified  bool   `json:"modified,omitempty"`
}

///////////////////////////////////////////////////////////////////////////////
// GLOBALS

// Set via -ldflags at build time
var (
	GitSource   string
	GitTag      string
	GitBranch   string
	GitHash     string
	GoBuildTime string
)

///////////////////////////////////////////////////////////////////////////////
// PUBLIC METHODS

// Version returns the best available version string: the stamped git tag,
// then the branch, then the short embedded VCS revision, then "dev".
func Version() string {
	if GitTag != "" {
		return GitTag
	}
	if GitBranch != "" {
		return GitBranch
	}
	if info, ok := debug.ReadBuildInfo(); ok {
		for _, s := range info.Settings {
			if s.Key == "vcs.revision" && s.Value != "" {
				if len(s.Value) > 12 {
					return s.Value[:12]
				}
				return s.Value
			}
		}
	}
	return "dev"
}

// Get returns the full build metadata for the given executable name
func Get(execName string) Metadata {
	metadata := Metadata{
		Name:      execName,
		Version:   Version(),
		Compiler:  runtime.Version(),
		Source:    GitSource,
		Branch:    GitBranch,
		Hash:      GitHash,
		BuildTime: GoBuildTime,
	}

	// Fill in any missing fields from the embedded build info
	if info, ok := debug.ReadBuildInfo(); ok {
		if metadata.Source == "" {
			metadata.Source = info.Main.Path
		}
		var goos, goarch string
		for _, s := range info.Settings {
			switch s.Key {
			case "vcs.revision":
				if metadata.Hash == "" {
					metadata.Hash = s.Value
				}
			case "vcs.time":
				if metadata.BuildTime == "" {
					metadata.BuildTime = s.Value
				}
			case "vcs.modified":
				metadata.Modified = s.Value == "true"
			case "GOOS":
				goos = s.Value
			case "GOARCH":
				goarch = s.Value
			}
		}
		if goos != "" && goarch != "" {
			metadata.Platform = goos + "/" + goarch
		}
	}

	return metadata
}

// JSON returns the build metadata as an indented JSON document
func JSON(execName string) []byte {
	data, err := json.MarshalIndent(Get(execName), "", "  ")
	if err != nil {
		panic(err)
	}
	return data
}
