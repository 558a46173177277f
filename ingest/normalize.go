// Copyright (C) 2026 Fieldtrack Labs, Inc.
// See LICENSE for copying information.

package ingest

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"sort"
	"strings"

	"github.com/fieldtrack/tracklog/lorapayload"
)

// Source labels for the request summary.
const (
	SourceESP32 = "esp32"
	SourceTTN   = "ttn"
)

// batch is the normalized form of one ingestion payload: a uniform sequence
// of candidate records plus the device identifier hinted by the payload
// itself (only network-server envelopes carry one).
type batch struct {
	source     string
	deviceHint string
	records    []interface{}
}

// normalize detects the payload shape and flattens it into a batch. Only a
// missing body, undecodable JSON, a non-object/array top level, or an
// envelope without a usable payload are fatal; everything else is deferred
// to per-record validation.
func normalize(body []byte) (batch, error) {
	if len(bytes.TrimSpace(body)) == 0 {
		return batch{}, ErrMalformedInput.New("empty body")
	}

	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var decoded interface{}
	if err := dec.Decode(&decoded); err != nil {
		return batch{}, ErrMalformedInput.New("invalid json: %v", err)
	}

	switch v := decoded.(type) {
	case []interface{}:
		return batch{source: SourceESP32, records: v}, nil

	case map[string]interface{}:
		if uplink, ok := v["uplink_message"].(map[string]interface{}); ok {
			return normalizeEnvelope(v, uplink)
		}
		// a single record posted directly
		if hasRecordField(v) {
			return batch{source: SourceESP32, records: []interface{}{v}}, nil
		}
		// an object used as a container: its values are the records
		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		records := make([]interface{}, 0, len(v))
		for _, k := range keys {
			records = append(records, v[k])
		}
		return batch{source: SourceESP32, records: records}, nil

	default:
		return batch{}, ErrMalformedInput.New("payload is not an object or array")
	}
}

// normalizeEnvelope handles a network-server uplink envelope. The decoded
// payload is preferred; when the network server did not run a formatter, a
// 13-byte raw frame is decoded locally instead.
func normalizeEnvelope(envelope, uplink map[string]interface{}) (batch, error) {
	b := batch{source: SourceTTN}

	if ids, ok := envelope["end_device_ids"].(map[string]interface{}); ok {
		if id, ok := ids["device_id"].(string); ok {
			b.deviceHint = id
		}
	}

	if payload, ok := uplink["decoded_payload"].(map[string]interface{}); ok {
		b.records = []interface{}{payload}
		return b, nil
	}

	if raw, ok := uplink["frm_payload"].(string); ok && strings.TrimSpace(raw) != "" {
		frame, err := base64.StdEncoding.DecodeString(strings.TrimSpace(raw))
		if err != nil {
			return batch{}, ErrMalformedInput.New("envelope frm_payload is not base64: %v", err)
		}
		p, err := lorapayload.Decode(frame)
		if err != nil {
			return batch{}, ErrMalformedInput.Wrap(err)
		}
		b.records = []interface{}{map[string]interface{}{
			"ts":    int64(p.Ts),
			"latE7": int64(p.LatE7),
			"lonE7": int64(p.LonE7),
			"bat":   int64(p.Battery),
			"ch":    "lora",
		}}
		return b, nil
	}

	return batch{}, ErrMalformedInput.New("envelope is missing decoded_payload")
}

func hasRecordField(m map[string]interface{}) bool {
	_, ts := m["ts"]
	_, lat := m["latE7"]
	_, lon := m["lonE7"]
	return ts || lat || lon
}
