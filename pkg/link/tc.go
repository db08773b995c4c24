package link

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"emuctl/api"
	"emuctl/pkg/util"
)

// Unset is the wire value meaning "leave this field out of the qdisc".
const Unset = "-1"

// ShowArgs : tc qdisc show dev eth0
func ShowArgs(dev string) []string {
	return []string{"tc", "qdisc", "show", "dev", dev}
}

// clause is one "<keyword> <value>" pair of a qdisc status line.
type clause struct {
	key   string
	value string
}

var clauseKeys = map[string]bool{
	"limit": true,
	"delay": true,
	"loss":  true,
	"rate":  true,
}

// scan tokenizes tc output into the clauses Decode understands, in the order
// they appear. Unknown words are skipped.
func scan(text string) []clause {
	fields := strings.Fields(text)
	var out []clause
	for i := 0; i+1 < len(fields); i++ {
		if !clauseKeys[fields[i]] {
			continue
		}
		out = append(out, clause{key: fields[i], value: fields[i+1]})
		i++
	}
	return out
}

// Decode parses the output of "tc qdisc show", e.g.
//
//	qdisc netem 803a: dev net0 root refcnt 5 limit 100 delay 100.0ms loss 5% rate 1Tbit
//
// Clauses may come in any order. A clause that is absent or malformed
// leaves its field unset; for repeated clauses the first valid one wins.
func Decode(text string) api.ImpairmentProfile {
	var p api.ImpairmentProfile
	for _, c := range scan(text) {
		switch c.key {
		case "limit":
			if p.QueueLimit == nil {
				if v, ok := parseUint32(c.value); ok {
					p.QueueLimit = &v
				}
			}
		case "delay":
			if p.LatencyMs == nil {
				if v, ok := parseLatency(c.value); ok {
					p.LatencyMs = &v
				}
			}
		case "loss":
			if p.Loss == nil {
				if v, ok := parseLoss(c.value); ok {
					p.Loss = &v
				}
			}
		case "rate":
			if p.Rate == nil {
				if v, ok := parseRate(c.value); ok {
					p.Rate = &v
				}
			}
		}
	}
	return p
}

// Encode builds the netem replace command for dev. It returns false when the
// profile sets nothing, in which case no command must be run.
//
//	tc qdisc replace dev net0 root netem rate 5000000bit latency 100ms loss 5% limit 1000
func Encode(dev string, p api.ImpairmentProfile) ([]string, bool) {
	if p.Empty() {
		return nil, false
	}
	argv := []string{"tc", "qdisc", "replace", "dev", dev, "root", "netem"}
	if p.Rate != nil {
		argv = append(argv, "rate", strconv.FormatUint(*p.Rate, 10)+"bit")
	}
	if p.LatencyMs != nil {
		argv = append(argv, "latency", strconv.FormatFloat(*p.LatencyMs, 'f', -1, 64)+"ms")
	}
	if p.Loss != nil {
		argv = append(argv, "loss", strconv.FormatUint(uint64(*p.Loss), 10)+"%")
	}
	if p.QueueLimit != nil {
		argv = append(argv, "limit", strconv.FormatUint(uint64(*p.QueueLimit), 10))
	}
	return argv, true
}

// latency units, normalized to milliseconds
var latencyUnits = map[string]func(float64) float64{
	"ms": func(v float64) float64 { return v },
	"us": func(v float64) float64 { return v / 1000 },
	"ns": func(v float64) float64 { return v / 1000000 },
	"s":  func(v float64) float64 { return v * 1000 },
}

// rate units, normalized to bit/s
var rateUnits = map[string]uint64{
	"bit":  1,
	"Kbit": 1000,
	"Mbit": 1000000,
	"Gbit": 1000000000,
	"Tbit": 1000000000000,
}

// splitUnit splits "100.0ms" into "100.0" and "ms".
func splitUnit(s string) (string, string) {
	i := strings.IndexFunc(s, func(r rune) bool {
		return (r < '0' || r > '9') && r != '.'
	})
	if i < 0 {
		return s, ""
	}
	return s[:i], s[i:]
}

func parseLatency(s string) (float64, bool) {
	num, unit := splitUnit(s)
	conv, ok := latencyUnits[unit]
	if !ok || !util.CheckDecimal(num) {
		return 0, false
	}
	v, err := strconv.ParseFloat(num, 64)
	if err != nil {
		return 0, false
	}
	return conv(v), true
}

func parseRate(s string) (uint64, bool) {
	num, unit := splitUnit(s)
	mul, ok := rateUnits[unit]
	if !ok || !util.CheckUnsigned(num) {
		return 0, false
	}
	v, err := strconv.ParseUint(num, 10, 64)
	if err != nil || v > math.MaxUint64/mul {
		return 0, false
	}
	return v * mul, true
}

func parseLoss(s string) (uint32, bool) {
	num, found := strings.CutSuffix(s, "%")
	if !found {
		return 0, false
	}
	v, ok := parseUint32(num)
	if !ok || v > 100 {
		return 0, false
	}
	return v, true
}

func parseUint32(s string) (uint32, bool) {
	if !util.CheckUnsigned(s) {
		return 0, false
	}
	v, err := strconv.ParseUint(s, 10, 32)
	if err != nil {
		return 0, false
	}
	return uint32(v), true
}

// WireValue is one field of a shaping request. Clients send either a JSON
// string or a JSON number.
type WireValue string

func (w *WireValue) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*w = WireValue(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*w = WireValue(n.String())
	return nil
}

// ShapeRequest is the body of a shaping request. A field that is absent, null
// or "-1" is left unset.
type ShapeRequest struct {
	Bw      *WireValue `json:"bw"`
	Latency *WireValue `json:"latency"`
	Loss    *WireValue `json:"loss"`
	Queue   *WireValue `json:"queue"`
}

func wire(w *WireValue) (string, bool) {
	if w == nil || string(*w) == Unset {
		return "", false
	}
	return string(*w), true
}

// Profile validates the request and converts it to a profile.
func (r ShapeRequest) Profile() (api.ImpairmentProfile, error) {
	var p api.ImpairmentProfile

	if s, ok := wire(r.Bw); ok {
		if !util.CheckUnsigned(s) {
			return api.ImpairmentProfile{}, &util.ValidationError{Field: "bw", Value: s, Reason: "must be a non-negative integer (bit/s)"}
		}
		v, err := strconv.ParseUint(s, 10, 64)
		if err != nil {
			return api.ImpairmentProfile{}, &util.ValidationError{Field: "bw", Value: s, Reason: "out of range"}
		}
		p.Rate = &v
	}

	if s, ok := wire(r.Latency); ok {
		if !util.CheckDecimal(s) {
			return api.ImpairmentProfile{}, &util.ValidationError{Field: "latency", Value: s, Reason: "must be a non-negative number (ms)"}
		}
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return api.ImpairmentProfile{}, &util.ValidationError{Field: "latency", Value: s, Reason: "out of range"}
		}
		p.LatencyMs = &v
	}

	if s, ok := wire(r.Loss); ok {
		v, valid := parseUint32(s)
		if !valid || v > 100 {
			return api.ImpairmentProfile{}, &util.ValidationError{Field: "loss", Value: s, Reason: "must be an integer between 0 and 100"}
		}
		p.Loss = &v
	}

	if s, ok := wire(r.Queue); ok {
		v, valid := parseUint32(s)
		if !valid {
			return api.ImpairmentProfile{}, &util.ValidationError{Field: "queue", Value: s, Reason: "must be a non-negative integer"}
		}
		p.QueueLimit = &v
	}

	return p, nil
}
