package models

// Feature columns in the order the encoder emits them.
const (
	FeaturePacketLength = iota
	FeatureSourceIP
	FeatureDestIP
	FeaturePayloadSum
	FeaturePayloadLen
	FeatureCount
)

var FeatureNames = []string{
	"packet_length",
	"source_ip",
	"dest_ip",
	"payload_sum",
	"payload_len",
}

// FeatureVector is the numeric projection of a single LogRecord.
type FeatureVector [FeatureCount]float64

func (v FeatureVector) Slice() []float64 {
	out := make([]float64, FeatureCount)
	copy(out, v[:])
	return out
}
