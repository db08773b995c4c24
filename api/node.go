package api

// Container is a running container as reported by the container engine.
// It is never modified after listing; emulator identity is attached by
// projecting it into a Node.
type Container struct {
	ID     string            `json:"Id"`
	Names  []string          `json:"Names"`
	Image  string            `json:"Image"`
	State  string            `json:"State"`
	Status string            `json:"Status"`
	Labels map[string]string `json:"Labels"`

	// NetworkIDs lists the networks the container is attached to, ordered by
	// network name.
	NetworkIDs []string `json:"NetworkIDs"`
}

// Running reports whether the engine considers the container live.
func (c Container) Running() bool {
	return c.State == "running"
}

// AttachedTo reports whether the container is a member of the network.
func (c Container) AttachedTo(networkID string) bool {
	for _, id := range c.NetworkIDs {
		if id == networkID {
			return true
		}
	}
	return false
}

// Node is an emulator-managed container.
type Node struct {
	Container
	Meta NodeMeta `json:"meta"`
}

type NodeMeta struct {
	HasSession   bool     `json:"hasSession"`
	EmulatorInfo NodeInfo `json:"emulatorInfo"`
}

// NodeInfo is the emulator identity decoded from container labels.
type NodeInfo struct {
	Name        string          `json:"name,omitempty"` // empty for foreign containers
	ASN         int             `json:"asn,omitempty"`
	Role        string          `json:"role,omitempty"`
	DisplayName string          `json:"displayname,omitempty"`
	Description string          `json:"description,omitempty"`
	Classes     []string        `json:"classes,omitempty"`
	Nets        []NodeInterface `json:"nets"`
}

// NodeInterface is one emulator network attachment of a node.
type NodeInterface struct {
	Name    string `json:"name,omitempty"`
	Address string `json:"address,omitempty"`
}

// BgpPeer is a routing peer as enumerated by the node agent.
type BgpPeer struct {
	Name          string `json:"name"`
	ProtocolState string `json:"protocolState"`
	BgpState      string `json:"bgpState,omitempty"`
	Enabled       bool   `json:"enabled"`
}
