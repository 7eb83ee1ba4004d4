package engine

import (
	"encoding/csv"
	"encoding/json"
	"io"
	"time"

	bolt "go.etcd.io/bbolt"
	"gopkg.in/yaml.v3"

	"github.com/kvstash/kvstash/pkg/codec"
	"github.com/kvstash/kvstash/pkg/kv"
	"github.com/kvstash/kvstash/pkg/ttl"
)

// ExportFormat selects the on-wire shape ExportData/ImportData use. YAML is
// not part of spec §6's required CSV/JSON pair; it rides along because the
// teacher's own config/apply path is YAML-first (cmd/warren's apply command).
type ExportFormat string

const (
	FormatJSON ExportFormat = "json"
	FormatCSV  ExportFormat = "csv"
	FormatYAML ExportFormat = "yaml"
)

// exportRecord is one key's current value, in the shape every ExportData
// format serializes.
type exportRecord struct {
	Key   string `json:"key" yaml:"key"`
	Value any    `json:"value" yaml:"value"`
}

// ExportData writes every live key's current value to w. History is not
// carried (spec §6: "export/import round-trip must preserve current
// values; history is not required"). Encrypted entries are skipped when
// the engine has no passphrase, and are not counted in the returned total.
func (e *Engine) ExportData(workspaceName string, w io.Writer, format ExportFormat) (int, error) {
	var records []exportRecord
	err := e.view(workspaceName, "export", func(tx *bolt.Tx) error {
		keys, err := kv.ListKeys(tx, "")
		if err != nil {
			return err
		}
		now := time.Now()
		records = make([]exportRecord, 0, len(keys))
		for _, key := range keys {
			entry, found, err := kv.Get(tx, key)
			if err != nil || !found {
				return err
			}
			if ttl.Expired(entry.ExpiresAt, now) {
				continue
			}
			enc, unlocked, err := e.openValue(entry.Value)
			if err != nil {
				return err
			}
			if !unlocked {
				continue
			}
			decoded, err := codec.Decode(enc)
			if err != nil {
				return err
			}
			records = append(records, exportRecord{Key: key, Value: decoded})
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	switch format {
	case FormatCSV:
		return len(records), writeCSV(w, records)
	case FormatYAML:
		return len(records), yaml.NewEncoder(w).Encode(records)
	default:
		return len(records), json.NewEncoder(w).Encode(records)
	}
}

func writeCSV(w io.Writer, records []exportRecord) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"key", "value"}); err != nil {
		return err
	}
	for _, rec := range records {
		raw, err := json.Marshal(rec.Value)
		if err != nil {
			return err
		}
		if err := cw.Write([]string{rec.Key, string(raw)}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// ImportData reads records from r and saves each one, all inside a single
// transaction; a malformed record rolls back the whole import.
func (e *Engine) ImportData(workspaceName string, r io.Reader, format ExportFormat) (int, error) {
	var records []exportRecord
	var err error
	switch format {
	case FormatCSV:
		records, err = readCSV(r)
	case FormatYAML:
		err = yaml.NewDecoder(r).Decode(&records)
	default:
		err = json.NewDecoder(r).Decode(&records)
	}
	if err != nil {
		return 0, err
	}

	items := make([]SaveManyItem, len(records))
	for i, rec := range records {
		// encoding/json decodes every number as float64; whole numbers go
		// back to int64, as codec.Decode does for stored lists and maps.
		value := rec.Value
		if f, ok := value.(float64); ok && float64(int64(f)) == f {
			value = int64(f)
		} else if enc, err := codec.Encode(value); err == nil && (enc.Kind == codec.KindList || enc.Kind == codec.KindMap) {
			if decoded, err := codec.Decode(enc); err == nil {
				value = decoded
			}
		}
		items[i] = SaveManyItem{Key: rec.Key, Value: value}
	}

	outcomes, err := e.SaveMany(workspaceName, items)
	return len(outcomes), err
}

func readCSV(r io.Reader) ([]exportRecord, error) {
	cr := csv.NewReader(r)
	rows, err := cr.ReadAll()
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}

	records := make([]exportRecord, 0, len(rows)-1)
	for _, row := range rows[1:] {
		var value any
		if err := json.Unmarshal([]byte(row[1]), &value); err != nil {
			return nil, err
		}
		records = append(records, exportRecord{Key: row[0], Value: value})
	}
	return records, nil
}
