package simulator

import (
	"math"
	"math/rand"
)

// Packet is one generated capture entry before rendering.
type Packet struct {
	Length  int
	Source  string
	Dest    string
	Payload []byte
}

// Pattern shapes the normal traffic of a capture. Patterns draw all
// randomness from the supplied rng so output is reproducible per seed.
type Pattern interface {
	Next(rng *rand.Rand, i int) Packet
	Name() string
}

var (
	PatternSteady Pattern = &SteadyPattern{}
	PatternWeb    Pattern = &WebPattern{}
	PatternWave   Pattern = &WavePattern{Period: 200}
)

func ParsePattern(name string) Pattern {
	switch name {
	case "web":
		return PatternWeb
	case "wave":
		return PatternWave
	default:
		return PatternSteady
	}
}

var (
	internalHosts = []string{"192.168.1.10", "192.168.1.11", "192.168.1.12", "192.168.1.20"}
	serverHosts   = []string{"10.0.0.1", "10.0.0.2", "10.0.0.5"}
)

func pick(rng *rand.Rand, hosts []string) string {
	return hosts[rng.Intn(len(hosts))]
}

func payload(rng *rand.Rand, n, maxByte int) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = byte(rng.Intn(maxByte + 1))
	}
	return b
}

// SteadyPattern - small packets between a fixed set of hosts
type SteadyPattern struct{}

func (p *SteadyPattern) Next(rng *rand.Rand, _ int) Packet {
	n := 8 + rng.Intn(8)
	return Packet{
		Length:  60 + rng.Intn(20),
		Source:  pick(rng, internalHosts),
		Dest:    pick(rng, serverHosts),
		Payload: payload(rng, n, 0x7f),
	}
}

func (p *SteadyPattern) Name() string {
	return "steady"
}

// WebPattern - short requests answered by larger responses
type WebPattern struct{}

func (p *WebPattern) Next(rng *rand.Rand, i int) Packet {
	if i%2 == 0 {
		return Packet{
			Length:  80 + rng.Intn(40),
			Source:  pick(rng, internalHosts),
			Dest:    pick(rng, serverHosts),
			Payload: payload(rng, 12+rng.Intn(4), 0x7f),
		}
	}
	return Packet{
		Length:  400 + rng.Intn(200),
		Source:  pick(rng, serverHosts),
		Dest:    pick(rng, internalHosts),
		Payload: payload(rng, 16+rng.Intn(8), 0xff),
	}
}

func (p *WebPattern) Name() string {
	return "web"
}

// WavePattern - packet sizes oscillating smoothly over the capture
type WavePattern struct {
	Period int
}

func (p *WavePattern) Next(rng *rand.Rand, i int) Packet {
	period := p.Period
	if period <= 0 {
		period = 200
	}
	phase := float64(i) / float64(period) * 2 * math.Pi
	length := 200 + int(100*math.Sin(phase)) + rng.Intn(10)

	return Packet{
		Length:  length,
		Source:  pick(rng, internalHosts),
		Dest:    pick(rng, serverHosts),
		Payload: payload(rng, 10+rng.Intn(6), 0x7f),
	}
}

func (p *WavePattern) Name() string {
	return "wave"
}
