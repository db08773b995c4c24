// Package meta decodes the labels the emulator stamps on containers and
// networks into typed identity records.
package meta

import (
	"sort"
	"strconv"
	"strings"

	"emuctl/api"
)

const DefaultPrefix = "org.seedsecuritylabs.seedemu.meta."

type Extractor struct {
	prefix string
}

func NewExtractor(prefix string) *Extractor {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &Extractor{prefix: prefix}
}

// keys returns the labels under the reserved prefix, keyed without it.
func (e *Extractor) keys(labels map[string]string) map[string]string {
	out := make(map[string]string)
	for k, v := range labels {
		if strings.HasPrefix(k, e.prefix) {
			out[strings.TrimPrefix(k, e.prefix)] = v
		}
	}
	return out
}

// NodeInfo decodes container labels. The returned Name is empty when the
// container is not emulator-managed.
func (e *Extractor) NodeInfo(labels map[string]string) api.NodeInfo {
	info := api.NodeInfo{Nets: []api.NodeInterface{}}
	nets := make(map[int]*api.NodeInterface)

	for key, value := range e.keys(labels) {
		switch {
		case key == "nodename":
			info.Name = value
		case key == "asn":
			if asn, err := strconv.Atoi(value); err == nil {
				info.ASN = asn
			}
		case key == "role":
			info.Role = value
		case key == "displayname":
			info.DisplayName = value
		case key == "description":
			info.Description = value
		case strings.HasPrefix(key, "class."):
			info.Classes = append(info.Classes, value)
		case strings.HasPrefix(key, "net."):
			// net.<index>.<attribute>
			parts := strings.SplitN(key, ".", 3)
			if len(parts) != 3 {
				continue
			}
			idx, err := strconv.Atoi(parts[1])
			if err != nil || idx < 0 {
				continue
			}
			nif, ok := nets[idx]
			if !ok {
				nif = &api.NodeInterface{}
				nets[idx] = nif
			}
			switch parts[2] {
			case "name":
				nif.Name = value
			case "address":
				nif.Address = value
			}
		}
	}

	sort.Strings(info.Classes)

	idxs := make([]int, 0, len(nets))
	for idx := range nets {
		idxs = append(idxs, idx)
	}
	sort.Ints(idxs)
	for _, idx := range idxs {
		info.Nets = append(info.Nets, *nets[idx])
	}

	return info
}

// NetworkInfo decodes network labels. The returned Name is empty when the
// network is not emulator-managed.
func (e *Extractor) NetworkInfo(labels map[string]string) api.NetworkInfo {
	var info api.NetworkInfo
	for key, value := range e.keys(labels) {
		switch key {
		case "name":
			info.Name = value
		case "type":
			info.Type = value
		case "scope":
			info.Scope = value
		case "prefix":
			info.Prefix = value
		case "displayname":
			info.DisplayName = value
		case "description":
			info.Description = value
		}
	}
	return info
}
