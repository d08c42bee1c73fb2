package stream

import (
	"encoding/binary"
	"fmt"
	"time"
)

// miniSEED record decoding, limited to what the SeedLink feed actually
// sends: 512-byte records, blockette 1000 for encoding discovery, and
// uncompressed INT16/INT32 payloads. Compressed encodings are reported as
// unsupported and the record is skipped upstream.

const mseedRecordSize = 512

const (
	encodingInt16 = 1
	encodingInt32 = 3
)

// decodeRecord parses one 512-byte miniSEED record into a Trace. The raw
// bytes are retained on the trace for persistence.
func decodeRecord(record []byte) (Trace, error) {
	if len(record) != mseedRecordSize {
		return Trace{}, fmt.Errorf("expected %d byte record, got %d", mseedRecordSize, len(record))
	}

	tr := Trace{
		Station:  trimASCII(record[8:13]),
		Location: trimASCII(record[13:15]),
		Channel:  trimASCII(record[15:18]),
		Network:  trimASCII(record[18:20]),
		Raw:      record,
	}

	// Blockette 1000 carries the encoding and word order.
	encoding, order, err := findBlockette1000(record)
	if err != nil {
		return Trace{}, err
	}

	tr.StartTime = decodeBTime(record[20:30], order)

	sampleCount := int(order.Uint16(record[30:32]))
	factor := int16(order.Uint16(record[32:34]))
	multiplier := int16(order.Uint16(record[34:36]))
	tr.SamplingRate = sampleRate(factor, multiplier)
	if tr.SamplingRate <= 0 {
		return Trace{}, fmt.Errorf("non-positive sample rate (factor %d, multiplier %d)", factor, multiplier)
	}

	dataOffset := int(order.Uint16(record[44:46]))
	if dataOffset < 48 || dataOffset >= mseedRecordSize {
		return Trace{}, fmt.Errorf("data offset %d out of range", dataOffset)
	}

	samples, err := decodeSamples(record[dataOffset:], sampleCount, encoding, order)
	if err != nil {
		return Trace{}, err
	}
	tr.Samples = samples
	return tr, nil
}

func trimASCII(b []byte) string {
	start, end := 0, len(b)
	for start < end && b[start] == ' ' {
		start++
	}
	for end > start && b[end-1] == ' ' {
		end--
	}
	return string(b[start:end])
}

// decodeBTime parses the 10-byte BTIME structure: year, day-of-year, hour,
// minute, second, and fractional seconds in units of 0.0001s.
func decodeBTime(b []byte, order binary.ByteOrder) time.Time {
	year := int(order.Uint16(b[0:2]))
	doy := int(order.Uint16(b[2:4]))
	hour := int(b[4])
	minute := int(b[5])
	second := int(b[6])
	fract := int(order.Uint16(b[8:10]))

	t := time.Date(year, 1, 1, hour, minute, second, fract*100_000, time.UTC)
	return t.AddDate(0, 0, doy-1)
}

// sampleRate resolves the factor/multiplier pair; negative values mean
// "periods per sample" rather than "samples per second".
func sampleRate(factor, multiplier int16) float64 {
	f, m := float64(factor), float64(multiplier)
	switch {
	case factor > 0 && multiplier > 0:
		return f * m
	case factor > 0 && multiplier < 0:
		return f / -m
	case factor < 0 && multiplier > 0:
		return m / -f
	case factor < 0 && multiplier < 0:
		return 1 / (f * m)
	}
	return 0
}

// findBlockette1000 walks the blockette chain for the data-only SEED
// blockette and returns the payload encoding and byte order.
func findBlockette1000(record []byte) (encoding int, order binary.ByteOrder, err error) {
	// The blockette chain offsets are themselves big-endian in every feed
	// this client speaks to; blockette 1000 then states the record order.
	offset := int(binary.BigEndian.Uint16(record[46:48]))
	for offset != 0 {
		if offset+4 > mseedRecordSize {
			return 0, nil, fmt.Errorf("blockette offset %d out of range", offset)
		}
		blocketteType := int(binary.BigEndian.Uint16(record[offset : offset+2]))
		next := int(binary.BigEndian.Uint16(record[offset+2 : offset+4]))
		if blocketteType == 1000 {
			if offset+7 > mseedRecordSize {
				return 0, nil, fmt.Errorf("truncated blockette 1000 at offset %d", offset)
			}
			encoding = int(record[offset+4])
			if record[offset+5] == 1 {
				order = binary.BigEndian
			} else {
				order = binary.LittleEndian
			}
			return encoding, order, nil
		}
		if next != 0 && next <= offset {
			return 0, nil, fmt.Errorf("blockette chain does not advance at offset %d", offset)
		}
		offset = next
	}
	return 0, nil, fmt.Errorf("record has no blockette 1000")
}

func decodeSamples(data []byte, count, encoding int, order binary.ByteOrder) ([]float64, error) {
	switch encoding {
	case encodingInt16:
		if count*2 > len(data) {
			return nil, fmt.Errorf("record too short for %d int16 samples", count)
		}
		samples := make([]float64, count)
		for i := 0; i < count; i++ {
			samples[i] = float64(int16(order.Uint16(data[i*2 : i*2+2])))
		}
		return samples, nil
	case encodingInt32:
		if count*4 > len(data) {
			return nil, fmt.Errorf("record too short for %d int32 samples", count)
		}
		samples := make([]float64, count)
		for i := 0; i < count; i++ {
			samples[i] = float64(int32(order.Uint32(data[i*4 : i*4+4])))
		}
		return samples, nil
	default:
		return nil, fmt.Errorf("unsupported data encoding %d", encoding)
	}
}
