package models

const DefaultIP = "0.0.0.0"

// LogRecord is one reconstructed packet observation with every field resolved.
type LogRecord struct {
	Timestamp    string `json:"timestamp"`
	PacketLength int64  `json:"packet_length"`
	SourceIP     string `json:"source_ip"`
	DestIP       string `json:"dest_ip"`
	PayloadSum   int64  `json:"payload_sum"`
	PayloadLen   int64  `json:"payload_len"`
}

// RawRecord is a record as assembled by the parser. Fields that never appeared
// in the block stay nil until Resolve projects them onto their defaults.
type RawRecord struct {
	Timestamp    string
	PacketLength *int64
	SourceIP     *string
	DestIP       *string
	PayloadSum   *int64
	PayloadLen   *int64
}

func (r RawRecord) Resolve() LogRecord {
	rec := LogRecord{
		Timestamp: r.Timestamp,
		SourceIP:  DefaultIP,
		DestIP:    DefaultIP,
	}
	if r.PacketLength != nil {
		rec.PacketLength = *r.PacketLength
	}
	if r.SourceIP != nil {
		rec.SourceIP = *r.SourceIP
	}
	if r.DestIP != nil {
		rec.DestIP = *r.DestIP
	}
	if r.PayloadSum != nil {
		rec.PayloadSum = *r.PayloadSum
	}
	if r.PayloadLen != nil {
		rec.PayloadLen = *r.PayloadLen
	}
	return rec
}

func ResolveAll(raw []RawRecord) []LogRecord {
	records := make([]LogRecord, len(raw))
	for i, r := range raw {
		records[i] = r.Resolve()
	}
	return records
}
