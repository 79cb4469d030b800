package tools

import (
	"context"
	"log/slog"
	"runtime/debug"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/NERVsystems/ecoroute/pkg/core"
	"github.com/NERVsystems/ecoroute/pkg/version"
)

// BuildInfo contains module build information when available
var BuildInfo *debug.BuildInfo

func init() {
	if info, ok := debug.ReadBuildInfo(); ok {
		BuildInfo = info
	}
}

// VersionInfo represents version information for the service
type VersionInfo struct {
	Version     string `json:"version"`
	Commit      string `json:"commit,omitempty"`
	BuildDate   string `json:"build_date,omitempty"`
	GoVersion   string `json:"go_version,omitempty"`
	VCSRevision string `json:"vcs_revision,omitempty"`
	VCSTime     string `json:"vcs_time,omitempty"`
}

// CurrentVersion collects version metadata from ldflags and build info
func CurrentVersion() VersionInfo {
	meta := version.Info()
	info := VersionInfo{
		Version:   meta["version"],
		Commit:    meta["commit"],
		BuildDate: meta["build_date"],
		GoVersion: meta["go_version"],
	}

	if BuildInfo != nil {
		for _, setting := range BuildInfo.Settings {
			switch setting.Key {
			case "vcs.revision":
				info.VCSRevision = setting.Value
			case "vcs.time":
				info.VCSTime = setting.Value
			}
		}
	}
	return info
}

// HandleGetVersion implements version information retrieval
func HandleGetVersion(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	logger := slog.Default().With("tool", "get_version")

	result, err := jsonResult(CurrentVersion())
	if err != nil {
		logger.Error("failed to marshal version info", "error", err)
		return core.NewError(core.ErrInternalError, "Failed to retrieve version information").ToMCPResult(), nil
	}
	return result, nil
}
