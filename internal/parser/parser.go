// Package parser reassembles multi-line capture logs into packet records.
package parser

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"

	"github.com/OldStager01/packet-anomaly/internal/logger"
	"github.com/OldStager01/packet-anomaly/pkg/models"
)

const (
	markerPacketLength = "Packet length"
	markerSource       = "Source:"
	markerDest         = "Dest:"
	markerPayload      = "Payload (hex):"

	fieldSeparator = ": "
	maxLineSize    = 1024 * 1024
)

var (
	ErrMalformedPayload = errors.New("malformed hex payload")

	timestampPattern = regexp.MustCompile(`^[A-Za-z]{3} \w{3} \d{2} \d{2}:\d{2}:\d{2} \d{4}$`)
	integerPattern   = regexp.MustCompile(`\d+`)
)

// PayloadError reports the location of a hex token that could not be decoded.
type PayloadError struct {
	File  string
	Line  int
	Token string
}

func (e *PayloadError) Error() string {
	if e.File == "" {
		return fmt.Sprintf("line %d: %s: token %q", e.Line, ErrMalformedPayload, e.Token)
	}
	return fmt.Sprintf("%s:%d: %s: token %q", e.File, e.Line, ErrMalformedPayload, e.Token)
}

func (e *PayloadError) Unwrap() error {
	return ErrMalformedPayload
}

// IsTimestamp reports whether a trimmed line opens a new record block.
func IsTimestamp(line string) bool {
	return timestampPattern.MatchString(line)
}

// Parse reads one logical file and returns its records in line order.
// Fields missing from a block are left nil; see models.RawRecord.Resolve.
func Parse(r io.Reader) ([]models.RawRecord, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)

	var (
		records []models.RawRecord
		current *models.RawRecord
		lineNo  int
	)

	flush := func() {
		if current != nil {
			records = append(records, *current)
			current = nil
		}
	}

	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())

		if IsTimestamp(line) {
			flush()
			current = &models.RawRecord{Timestamp: line}
			continue
		}

		// Field lines outside a block have nothing to attach to.
		if current == nil {
			continue
		}

		if err := applyLine(current, line, lineNo); err != nil {
			var perr *PayloadError
			if errors.As(err, &perr) {
				perr.Line = lineNo
			}
			return nil, err
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read input: %w", err)
	}

	flush()
	return records, nil
}

func applyLine(rec *models.RawRecord, line string, lineNo int) error {
	switch {
	case strings.Contains(line, markerPacketLength):
		if digits := integerPattern.FindString(line); digits != "" {
			n, err := strconv.ParseInt(digits, 10, 64)
			if err != nil {
				logger.WithFields(map[string]interface{}{
					"line":  lineNo,
					"value": digits,
				}).Warn("Packet length out of range, leaving it unset")
				break
			}
			rec.PacketLength = &n
		}

	case strings.Contains(line, markerSource):
		if value, ok := fieldValue(line); ok {
			rec.SourceIP = &value
		}

	case strings.Contains(line, markerDest):
		if value, ok := fieldValue(line); ok {
			rec.DestIP = &value
		}

	case strings.Contains(line, markerPayload):
		sum, count, err := decodePayload(line)
		if err != nil {
			return err
		}
		rec.PayloadSum = &sum
		rec.PayloadLen = &count
	}

	return nil
}

func fieldValue(line string) (string, bool) {
	_, value, found := strings.Cut(line, fieldSeparator)
	return value, found
}

// decodePayload sums the byte values of a hex payload line. A marker with no
// bytes after it decodes to an empty payload.
func decodePayload(line string) (sum, count int64, err error) {
	value, _ := fieldValue(line)

	for _, token := range strings.Fields(value) {
		b, err := strconv.ParseUint(token, 16, 32)
		if err != nil {
			return 0, 0, &PayloadError{Token: token}
		}
		sum += int64(b)
		count++
	}

	return sum, count, nil
}
