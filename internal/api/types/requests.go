// Package types defines the request and response shapes of the HTTP API.
package types

// DeployRequest starts a deployment run against hosts or a group.
type DeployRequest struct {
	HostIDs    []string `json:"hostIds" validate:"required_without=GroupID"`
	GroupID    string   `json:"groupId,omitempty"`
	Action     string   `json:"action" validate:"required,oneof=detect upload erase"`
	ProfileID  string   `json:"profileId,omitempty"`
	SketchPath string   `json:"sketchPath,omitempty"`
	HexPath    string   `json:"hexPath,omitempty"`
	DryRun     bool     `json:"dryRun,omitempty"`
}

// UpsertHostRequest creates or replaces one host.
type UpsertHostRequest struct {
	ID      string   `json:"id,omitempty"`
	Name    string   `json:"name" validate:"required,min=1,max=100"`
	Address string   `json:"address" validate:"required,min=1"`
	OS      string   `json:"os,omitempty"`
	Tags    []string `json:"tags,omitempty"`
	Enabled *bool    `json:"enabled,omitempty"`
}

// UpsertGroupRequest creates or replaces one host group.
type UpsertGroupRequest struct {
	ID      string   `json:"id,omitempty"`
	Label   string   `json:"label" validate:"required,min=1,max=100"`
	HostIDs []string `json:"hostIds,omitempty"`
	Tags    []string `json:"tags,omitempty"`
}

// RecordBuildRequest memoizes an external compile result.
type RecordBuildRequest struct {
	SketchPath string `json:"sketchPath" validate:"required"`
	FQBN       string `json:"fqbn" validate:"required"`
	HexPath    string `json:"hexPath" validate:"required"`
	Checksum   string `json:"checksum,omitempty"`
	SizeBytes  int64  `json:"sizeBytes,omitempty"`
}
