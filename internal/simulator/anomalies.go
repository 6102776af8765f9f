package simulator

import (
	"math/rand"
	"strconv"
)

// Anomaly rewrites a normal packet into an outlier.
type Anomaly interface {
	Inject(rng *rand.Rand, p Packet) Packet
	Name() string
}

var defaultAnomalies = []Anomaly{
	&OversizeAnomaly{},
	&UnknownHostAnomaly{},
	&PayloadFloodAnomaly{},
}

func ParseAnomaly(name string) (Anomaly, bool) {
	for _, a := range defaultAnomalies {
		if a.Name() == name {
			return a, true
		}
	}
	return nil, false
}

// OversizeAnomaly - jumbo frame far above the normal packet size
type OversizeAnomaly struct{}

func (a *OversizeAnomaly) Inject(rng *rand.Rand, p Packet) Packet {
	p.Length = 9000 + rng.Intn(1000)
	return p
}

func (a *OversizeAnomaly) Name() string {
	return "oversize"
}

// UnknownHostAnomaly - traffic from an address range never seen otherwise
type UnknownHostAnomaly struct{}

func (a *UnknownHostAnomaly) Inject(rng *rand.Rand, p Packet) Packet {
	p.Source = "203.0.113." + strconv.Itoa(1+rng.Intn(254))
	p.Dest = "198.51.100." + strconv.Itoa(1+rng.Intn(254))
	return p
}

func (a *UnknownHostAnomaly) Name() string {
	return "unknown_host"
}

// PayloadFloodAnomaly - long payload of high bytes
type PayloadFloodAnomaly struct{}

func (a *PayloadFloodAnomaly) Inject(rng *rand.Rand, p Packet) Packet {
	p.Payload = make([]byte, 200+rng.Intn(56))
	for i := range p.Payload {
		p.Payload[i] = byte(0xc0 + rng.Intn(0x40))
	}
	p.Length = 1400 + rng.Intn(100)
	return p
}

func (a *PayloadFloodAnomaly) Name() string {
	return "payload_flood"
}
