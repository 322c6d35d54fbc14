package plan

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/sw33tLie/goesplan/pkg/goeserr"
)

// templateKey is the placeholder inventory key used to describe the shape
// shared by every inventory entry.
const templateKey = "*"

var (
	templateOnce sync.Once
	template     map[string]interface{}
)

// schemaTemplate is the canonical key tree of a plan document.
func schemaTemplate() map[string]interface{} {
	templateOnce.Do(func() {
		p := &Plan{Inventory: Inventory{templateKey: &Entry{}}}
		data, _ := json.Marshal(p)
		_ = json.Unmarshal(data, &template)
	})
	return template
}

// Decode parses a plan document, rejecting unknown keys and missing keys at
// every nesting level.
func Decode(data []byte) (*Plan, error) {
	var raw map[string]interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, &goeserr.Error{Kind: goeserr.SchemaViolation, Op: "decode plan", Err: err}
	}
	if err := checkKeys(raw, schemaTemplate(), ""); err != nil {
		return nil, err
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	var p Plan
	if err := dec.Decode(&p); err != nil {
		return nil, &goeserr.Error{Kind: goeserr.SchemaViolation, Op: "decode plan", Err: err}
	}
	for k, e := range p.Inventory {
		if e == nil {
			return nil, goeserr.Schema("download_inventory."+k, "entry is null")
		}
	}
	return &p, nil
}

// Encode renders the plan as indented JSON.
func Encode(p *Plan) ([]byte, error) {
	data, err := json.MarshalIndent(p, "", "    ")
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}

func checkKeys(doc, tmpl map[string]interface{}, at string) error {
	for k := range doc {
		if _, ok := tmpl[k]; !ok && !(at == "download_inventory" && tmpl[templateKey] != nil) {
			return goeserr.Schema(join(at, k), "unknown key")
		}
	}
	if at != "download_inventory" {
		for k := range tmpl {
			if _, ok := doc[k]; !ok {
				return goeserr.Schema(join(at, k), "missing key")
			}
		}
	}

	keys := make([]string, 0, len(doc))
	for k := range doc {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		sub := tmpl[k]
		if at == "download_inventory" {
			sub = tmpl[templateKey]
		}
		subTmpl, isObj := sub.(map[string]interface{})
		if !isObj {
			continue
		}
		subDoc, ok := doc[k].(map[string]interface{})
		if !ok {
			return goeserr.Schema(join(at, k), "expected an object")
		}
		if err := checkKeys(subDoc, subTmpl, join(at, k)); err != nil {
			return err
		}
	}
	return nil
}

func join(at, k string) string {
	if at == "" {
		return k
	}
	return at + "." + k
}

// immutableBlocks cannot be changed through Set.
var immutableBlocks = []string{"sat_prod_info", "plan_download_self_info"}

// Set assigns value to the dotted key path, e.g.
// "download_inventory.file03.mini_summary.is_done". Any path segment not
// already present in the document is a schema violation, and on any error
// the plan is left unchanged.
func (p *Plan) Set(keyPath string, value interface{}) error {
	segs := strings.Split(keyPath, ".")
	if keyPath == "" || len(segs) == 0 {
		return goeserr.Schema(keyPath, "empty key path")
	}
	for _, b := range immutableBlocks {
		if segs[0] == b {
			return goeserr.Schema(keyPath, "block is immutable")
		}
	}

	data, err := json.Marshal(p)
	if err != nil {
		return err
	}
	var doc map[string]interface{}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&doc); err != nil {
		return err
	}

	cur := doc
	for i, seg := range segs {
		v, ok := cur[seg]
		if !ok {
			return goeserr.Schema(strings.Join(segs[:i+1], "."), "unknown key")
		}
		if i == len(segs)-1 {
			cur[seg] = value
			break
		}
		next, ok := v.(map[string]interface{})
		if !ok {
			return goeserr.Schema(strings.Join(segs[:i+1], "."), "not an object")
		}
		cur = next
	}

	updated, err := json.Marshal(doc)
	if err != nil {
		return goeserr.Schema(keyPath, err.Error())
	}
	np, err := Decode(updated)
	if err != nil {
		return err
	}
	if err := sameKeys(p.Inventory, np.Inventory); err != nil {
		return err
	}
	*p = *np
	return nil
}

// sameKeys enforces that the inventory key set is fixed after creation.
func sameKeys(before, after Inventory) error {
	if len(before) != len(after) {
		return goeserr.Schema("download_inventory", fmt.Sprintf("inventory size changed from %d to %d", len(before), len(after)))
	}
	for k := range before {
		if _, ok := after[k]; !ok {
			return goeserr.Schema("download_inventory."+k, "inventory key removed")
		}
	}
	return nil
}
