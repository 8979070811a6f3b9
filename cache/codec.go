package cache

import (
	"bytes"
	"encoding/gob"
	"fmt"
	"net/http"
)

func init() {
	gob.Register(http.Header{})
}

func encodeEntry(e Entry) ([]byte, error) {
	var buf bytes.Buffer
	enc := gob.NewEncoder(&buf)
	if err := enc.Encode(e); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decodeEntry(b []byte) (Entry, error) {
	var e Entry
	dec := gob.NewDecoder(bytes.NewReader(b))
	if err := dec.Decode(&e); err != nil {
		return Entry{}, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	if e.Header == nil {
		e.Header = http.Header{}
	}
	return e, nil
}
