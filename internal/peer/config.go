// Package peer drives one WebRTC peer connection per child process:
// it ingests signalling ops over the child's own stdio, wires ICE and
// data-channel callbacks, and hands each opened channel to the router
// package for bridging to a TCP target.
package peer

// Config is the peer connection's signalling configuration, received
// as the first Config op or falling back to DefaultConfig.
type Config struct {
	Stuns          []string          `json:"stuns"`
	HTTPRoutes     map[string]string `json:"httpRoutes"`
	TCPRoutes      map[string]string `json:"tcpRoutes"`
	PortMin        uint16            `json:"portMin"`
	PortMax        uint16            `json:"portMax"`
	TimeoutSeconds uint16            `json:"timeout"`
}

// DefaultConfig mirrors the built-in fallback used when no Config op
// arrives before the peer connection must be created.
func DefaultConfig() Config {
	return Config{
		Stuns:      []string{"stun:stun.l.google.com:19302"},
		HTTPRoutes: map[string]string{"@": "http://www.baidu.com"},
		TCPRoutes:  map[string]string{},
	}
}

// EffectiveTimeout returns the idle-check interval, floored at 5
// seconds.
func (c Config) EffectiveTimeout() uint16 {
	if c.TimeoutSeconds < 5 {
		return 5
	}
	return c.TimeoutSeconds
}
