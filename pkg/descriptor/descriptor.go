// Package descriptor models the hardware module descriptor, the packaging
// request that targets it, and the metadata.json manifest derived from both.
package descriptor

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// HardwareDescriptor is the JSON document that describes a hardware module.
//
// Only the fields the packager reads or migrates are typed. The full source
// document is retained so that writing a descriptor back keeps every other
// key, in its original order. Keys introduced by migration are appended.
type HardwareDescriptor struct {
	// ID, Category and Platform are classification values copied verbatim
	// into the manifest. Any JSON value is accepted.
	ID       json.RawMessage
	Category json.RawMessage
	Platform json.RawMessage

	// Name is the display title: a string or a map of localized strings.
	Name json.RawMessage

	// Icon is a path relative to the module root.
	Icon string

	// ModuleName and Version are stamped by Normalize. A non-string value
	// in the source reads as empty and is kept until a value is stamped.
	ModuleName string
	Version    string

	doc []byte
}

type descriptorFields struct {
	ID       json.RawMessage `json:"id"`
	Name     json.RawMessage `json:"name"`
	Category json.RawMessage `json:"category"`
	Platform json.RawMessage `json:"platform"`
	Icon     string          `json:"icon"`
}

// Key order used when a descriptor has no source document.
var rawKeys = []string{"id", "name", "category", "platform"}
var stringKeys = []string{"icon", "moduleName", "version"}

// UnmarshalJSON implements json.Unmarshaler.
func (d *HardwareDescriptor) UnmarshalJSON(data []byte) error {
	var doc bytes.Buffer
	if err := json.Compact(&doc, data); err != nil {
		return err
	}
	if !gjson.ParseBytes(doc.Bytes()).IsObject() {
		return fmt.Errorf("hardware descriptor must be a JSON object")
	}

	var f descriptorFields
	if err := json.Unmarshal(doc.Bytes(), &f); err != nil {
		return err
	}

	*d = HardwareDescriptor{
		ID:         compactRaw(f.ID),
		Name:       compactRaw(f.Name),
		Category:   compactRaw(f.Category),
		Platform:   compactRaw(f.Platform),
		Icon:       f.Icon,
		ModuleName: stringField(doc.Bytes(), "moduleName"),
		Version:    stringField(doc.Bytes(), "version"),
		doc:        doc.Bytes(),
	}
	return nil
}

// MarshalJSON implements json.Marshaler. Typed fields are reconciled into
// the retained document; unchanged values keep their original encoding.
func (d HardwareDescriptor) MarshalJSON() ([]byte, error) {
	doc := []byte("{}")
	if len(d.doc) > 0 {
		doc = append([]byte(nil), d.doc...)
	}

	raws := map[string]json.RawMessage{
		"id":       d.ID,
		"name":     d.Name,
		"category": d.Category,
		"platform": d.Platform,
	}
	strs := map[string]string{
		"icon":       d.Icon,
		"moduleName": d.ModuleName,
		"version":    d.Version,
	}

	var err error
	for _, key := range rawKeys {
		if doc, err = setRaw(doc, key, raws[key]); err != nil {
			return nil, err
		}
	}
	for _, key := range stringKeys {
		if doc, err = setString(doc, key, strs[key]); err != nil {
			return nil, err
		}
	}
	return doc, nil
}

func setRaw(doc []byte, key string, value json.RawMessage) ([]byte, error) {
	existing := gjson.GetBytes(doc, key)
	if len(value) == 0 {
		if existing.Exists() {
			return sjson.DeleteBytes(doc, key)
		}
		return doc, nil
	}
	value = compactRaw(value)
	if existing.Exists() && existing.Raw == string(value) {
		return doc, nil
	}
	return sjson.SetRawBytes(doc, key, value)
}

func stringField(doc []byte, key string) string {
	if res := gjson.GetBytes(doc, key); res.Type == gjson.String {
		return res.Str
	}
	return ""
}

func setString(doc []byte, key, value string) ([]byte, error) {
	existing := gjson.GetBytes(doc, key)
	if value == "" && existing.Type != gjson.String {
		return doc, nil
	}
	if existing.Type == gjson.String && existing.String() == value {
		return doc, nil
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(value); err != nil {
		return nil, err
	}
	return sjson.SetRawBytes(doc, key, bytes.TrimSpace(buf.Bytes()))
}

func compactRaw(raw json.RawMessage) json.RawMessage {
	if len(raw) == 0 {
		return nil
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return raw
	}
	return buf.Bytes()
}

// extra returns the raw value of a descriptor key the packager does not model.
func (d *HardwareDescriptor) extra(key string) (json.RawMessage, bool) {
	res := gjson.GetBytes(d.doc, gjson.Escape(key))
	if !res.Exists() {
		return nil, false
	}
	return json.RawMessage(res.Raw), true
}

// Normalize force-upgrades a legacy descriptor to the current schema by
// stamping it with the identity of the module being packaged. Applying it
// repeatedly with the same request is a no-op after the first call.
func Normalize(d *HardwareDescriptor, req CompressionRequest) {
	d.ModuleName = req.ModuleName
	d.Version = req.Version
}
