package dto

import "time"

type HostResponse struct {
	Alias                 string `json:"alias"`
	Host                  string `json:"host"`
	User                  string `json:"user"`
	Port                  int    `json:"port"`
	IdentityFile          string `json:"identityFile,omitempty"`
	StrictHostKeyChecking bool   `json:"strictHostKeyChecking"`
	ConnectTimeout        int    `json:"connectTimeout,omitempty"`
}

type HostListResponse struct {
	Items []HostResponse `json:"items"`
}

type HostTestResponse struct {
	Alias     string    `json:"alias"`
	Host      string    `json:"host"`
	Success   bool      `json:"success"`
	Output    string    `json:"output,omitempty"`
	Error     string    `json:"error,omitempty"`
	LatencyMS int64     `json:"latencyMs"`
	CheckedAt time.Time `json:"checkedAt"`
}

type CommandResponse struct {
	Key         string `json:"key"`
	Type        string `json:"type"`
	Cmd         string `json:"cmd"`
	HostAlias   string `json:"hostAlias,omitempty"`
	WorkingDir  string `json:"workingDir,omitempty"`
	Description string `json:"description,omitempty"`
}

type CommandListResponse struct {
	Items []CommandResponse `json:"items"`
}
