// Package features turns parsed packet records into numeric feature rows.
package features

import (
	"strconv"
	"strings"

	"github.com/OldStager01/packet-anomaly/pkg/models"
)

// EncodeIP maps a dotted-quad address to its big-endian 32-bit value.
// Anything that is not four numeric octets in [0,255] encodes to 0.
func EncodeIP(addr string) uint32 {
	parts := strings.Split(addr, ".")
	if len(parts) != 4 {
		return 0
	}

	var value uint32
	for _, part := range parts {
		octet, err := strconv.ParseUint(strings.TrimSpace(part), 10, 8)
		if err != nil {
			return 0
		}
		value = value<<8 | uint32(octet)
	}
	return value
}

// DecodeIP is the inverse of EncodeIP for valid addresses.
func DecodeIP(value uint32) string {
	return strconv.Itoa(int(value>>24)) + "." +
		strconv.Itoa(int(value>>16&0xff)) + "." +
		strconv.Itoa(int(value>>8&0xff)) + "." +
		strconv.Itoa(int(value&0xff))
}

func EncodeRecord(rec models.LogRecord) models.FeatureVector {
	var v models.FeatureVector
	v[models.FeaturePacketLength] = float64(rec.PacketLength)
	v[models.FeatureSourceIP] = float64(EncodeIP(rec.SourceIP))
	v[models.FeatureDestIP] = float64(EncodeIP(rec.DestIP))
	v[models.FeaturePayloadSum] = float64(rec.PayloadSum)
	v[models.FeaturePayloadLen] = float64(rec.PayloadLen)
	return v
}

// Encode builds the feature matrix, one row per record in input order.
func Encode(records []models.LogRecord) ([]models.FeatureVector, models.Matrix) {
	vectors := make([]models.FeatureVector, len(records))
	matrix := make(models.Matrix, len(records))
	for i, rec := range records {
		vectors[i] = EncodeRecord(rec)
		matrix[i] = vectors[i].Slice()
	}
	return vectors, matrix
}
