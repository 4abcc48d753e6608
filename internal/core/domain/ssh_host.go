package domain

// SSHHost holds the connection parameters resolved for a host alias.
type SSHHost struct {
	Alias                 string `json:"alias"`
	Host                  string `json:"host"`
	User                  string `json:"user"`
	Port                  int    `json:"port"`
	IdentityFile          string `json:"identityFile,omitempty"`
	StrictHostKeyChecking bool   `json:"strictHostKeyChecking"`
	// ConnectTimeout is in seconds; zero means the caller's default.
	ConnectTimeout int `json:"connectTimeout,omitempty"`
}
