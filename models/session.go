package models

// SessionConfig is the launch configuration of one browser session.
type SessionConfig struct {
	Headless bool
	// Proxy is injected ahead of every other launch flag when non-empty.
	Proxy string
}
