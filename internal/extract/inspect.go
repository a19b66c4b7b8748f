package extract

import (
	"tiksql/internal/catalog"
	pjson "tiksql/internal/parser/json"
	"tiksql/internal/pathres"
)

// EntryReport describes how one catalog entry matches a document.
type EntryReport struct {
	Path     string        `json:"path"`
	Table    string        `json:"table"`
	Mode     catalog.Mode  `json:"mode"`
	Resolved bool          `json:"resolved"`
	Shape    pathres.Shape `json:"shape"`
	// Items is the number of rows the entry is expected to produce. It is 0 for
	// plain entries and for nested entries, which are not pre-counted.
	Items int `json:"items"`
}

// Inspection is the result of Inspect.
type Inspection struct {
	Entries []EntryReport `json:"entries"`
	Total   int           `json:"total"`
}

// Inspect resolves every catalog entry against doc without extracting anything.
// Total is the estimate used for progress.
func Inspect(cat *catalog.Catalog, doc any) Inspection {
	var out Inspection
	for _, e := range cat.Entries() {
		v := pathres.Resolve(doc, e.Path)
		r := EntryReport{
			Path:     e.Path,
			Table:    e.Table,
			Mode:     e.Mode,
			Resolved: v != nil,
			Shape:    pathres.ShapeOf(v),
			Items:    estimateItems(e, v),
		}
		out.Total += r.Items
		out.Entries = append(out.Entries, r)
	}
	return out
}

// EstimateTotal is the advisory item count for progress percentages.
func EstimateTotal(cat *catalog.Catalog, doc any) int {
	return Inspect(cat, doc).Total
}

func estimateItems(e catalog.Entry, v any) int {
	switch e.Mode {
	case catalog.Array:
		if arr, ok := v.([]any); ok {
			return len(arr)
		}
	case catalog.DynamicKeyedMap:
		obj, ok := v.(*pjson.Object)
		if !ok {
			return 0
		}
		n := 0
		for _, k := range obj.Keys() {
			if arr, ok := mustGet(obj, k).([]any); ok {
				n += len(arr)
			}
		}
		return n
	}
	return 0
}

func mustGet(o *pjson.Object, k string) any {
	v, _ := o.Get(k)
	return v
}
