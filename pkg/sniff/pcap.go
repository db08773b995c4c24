package sniff

import (
	"fmt"
	"io"
	"strings"

	"github.com/google/gopacket"
	"github.com/google/gopacket/pcapgo"
)

// decodePcap reads a pcap stream and emits one summary line per packet.
func decodePcap(r io.Reader, source string, emit Listener) error {
	pr, err := pcapgo.NewReader(r)
	if err != nil {
		return err
	}
	for {
		data, ci, err := pr.ReadPacketData()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		pkt := gopacket.NewPacket(data, pr.LinkType(), gopacket.DecodeOptions{Lazy: true, NoCopy: true})
		pkt.Metadata().CaptureInfo = ci
		emit(source, []byte(Summary(pkt)+"\n"))
	}
}

// Summary renders a packet as a single tcpdump-like line, e.g.
//
//	12:00:00.000000 IPv4 10.0.0.1:5000 > 10.0.0.2:53 UDP, length 60
func Summary(p gopacket.Packet) string {
	md := p.Metadata()

	var b strings.Builder
	b.WriteString(md.Timestamp.UTC().Format("15:04:05.000000"))

	if nl := p.NetworkLayer(); nl != nil {
		src, dst := nl.NetworkFlow().Endpoints()
		if tl := p.TransportLayer(); tl != nil {
			sport, dport := tl.TransportFlow().Endpoints()
			fmt.Fprintf(&b, " %s %s:%s > %s:%s %s", nl.LayerType(), src, sport, dst, dport, tl.LayerType())
		} else {
			fmt.Fprintf(&b, " %s %s > %s", nl.LayerType(), src, dst)
			if ls := p.Layers(); len(ls) > 0 && ls[len(ls)-1].LayerType() != nl.LayerType() {
				fmt.Fprintf(&b, " %s", ls[len(ls)-1].LayerType())
			}
		}
	} else if ll := p.LinkLayer(); ll != nil {
		src, dst := ll.LinkFlow().Endpoints()
		fmt.Fprintf(&b, " %s %s > %s", ll.LayerType(), src, dst)
	} else {
		b.WriteString(" undecoded")
	}

	fmt.Fprintf(&b, ", length %d", md.Length)
	return b.String()
}
