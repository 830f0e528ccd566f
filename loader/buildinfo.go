package loader

import (
	"debug/buildinfo"

	"github.com/vk/dynplug/abi"
	"github.com/vk/dynplug/plugerr"
)

// CheckBuildInfo reads the Go build info embedded in the file at path and
// compares its toolchain with the host's. It never maps the file.
func CheckBuildInfo(path string) error {
	bi, err := buildinfo.ReadFile(path)
	if err != nil {
		return &plugerr.LoadError{Path: path, Err: err}
	}
	if bi.GoVersion != abi.ToolchainVersion {
		return &plugerr.VersionMismatchError{Path: path, Field: "toolchain", Want: abi.ToolchainVersion, Got: bi.GoVersion}
	}
	return nil
}
