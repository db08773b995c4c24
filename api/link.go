package api

// Network is a container engine network as listed by the engine.
type Network struct {
	ID     string            `json:"Id"`
	Name   string            `json:"Name"`
	Driver string            `json:"Driver"`
	Scope  string            `json:"Scope"`
	Labels map[string]string `json:"Labels"`
}

// NetworkSegment is an emulator-managed network.
type NetworkSegment struct {
	Network
	Meta NetworkMeta `json:"meta"`
}

type NetworkMeta struct {
	EmulatorInfo NetworkInfo `json:"emulatorInfo"`
}

// NetworkInfo is the emulator identity decoded from network labels. Name is
// also the interface name of the segment inside every member node.
type NetworkInfo struct {
	Name        string `json:"name,omitempty"`
	Type        string `json:"type,omitempty"`
	Scope       string `json:"scope,omitempty"`
	Prefix      string `json:"prefix,omitempty"`
	DisplayName string `json:"displayname,omitempty"`
	Description string `json:"description,omitempty"`
}

// ImpairmentProfile is the netem configuration of a segment. A nil field is
// unset, which is different from zero.
type ImpairmentProfile struct {
	Rate       *uint64  `json:"bw,omitempty,string"`    // bit/s
	LatencyMs  *float64 `json:"latency,omitempty"`      // ms
	Loss       *uint32  `json:"loss,omitempty,string"`  // percent, 0-100
	QueueLimit *uint32  `json:"queue,omitempty,string"` // packets
}

// Empty reports whether no field is set.
func (p ImpairmentProfile) Empty() bool {
	return p.Rate == nil && p.LatencyMs == nil && p.Loss == nil && p.QueueLimit == nil
}

// NodeResult is the outcome of one relayed command on one node.
type NodeResult struct {
	Node   string `json:"node"`
	Output string `json:"output"`
	Error  string `json:"error,omitempty"`
}
