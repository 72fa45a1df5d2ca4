package cache

import (
	"bytes"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/cespare/xxhash/v2"
)

// ErrMalformedRecord is returned by DecodeRecord for truncated or unparsable records.
var ErrMalformedRecord = errors.New("malformed cache record")

// HashURL returns the stable storage key for url: the 64-bit xxhash as 16 hex chars.
// Distinct URLs may collide; readers re-check the URL stored inside the record.
func HashURL(url string) string {
	return fmt.Sprintf("%016x", xxhash.Sum64String(url))
}

// EncodeRecord serializes an entry as
//
//	<fetchedAt unix seconds>\n<url>\n<payload>
//
// The payload is written raw and may contain newlines.
func EncodeRecord(url string, entry Entry) []byte {
	var buf bytes.Buffer
	buf.Grow(len(url) + len(entry.payload) + 24)
	buf.WriteString(strconv.FormatInt(entry.fetchedAt.Unix(), 10))
	buf.WriteByte('\n')
	buf.WriteString(url)
	buf.WriteByte('\n')
	buf.Write(entry.payload)
	return buf.Bytes()
}

// DecodeRecord parses a record written by EncodeRecord.
func DecodeRecord(data []byte) (string, Entry, error) {
	header, rest, ok := bytes.Cut(data, []byte{'\n'})
	if !ok {
		return "", Entry{}, fmt.Errorf("%w: missing timestamp line", ErrMalformedRecord)
	}
	ts, err := strconv.ParseInt(string(bytes.TrimSpace(header)), 10, 64)
	if err != nil {
		return "", Entry{}, fmt.Errorf("%w: timestamp: %v", ErrMalformedRecord, err)
	}
	url, payload, _ := bytes.Cut(rest, []byte{'\n'})
	if len(url) == 0 {
		return "", Entry{}, fmt.Errorf("%w: missing url line", ErrMalformedRecord)
	}
	return string(url), NewEntry(payload, time.Unix(ts, 0)), nil
}
