package stock

import (
	"strings"

	"github.com/normalkidtim/tiger-mango-inventory-sub000/internal/orders"
)

// Inventory document names. Each document is a set of named counters.
const (
	DocCups   = "cups"
	DocLids   = "lids"
	DocStraws = "straws"
	DocAddOns = "addons"
)

type LidKind string

const (
	LidNone LidKind = ""
	LidFlat LidKind = "flat-lid"
	LidDome LidKind = "dome-lid"
)

type StrawKind string

const (
	StrawNone StrawKind = ""
	StrawBoba StrawKind = "boba-straw"
	StrawThin StrawKind = "thin-straw"
)

// Consumption is what one unit of a classified category uses besides its cup.
// A zero field means the category genuinely takes no lid or no straw, which
// is distinct from the category being absent from the table entirely.
type Consumption struct {
	Lid   LidKind
	Straw StrawKind
}

// consumptionByCategory maps normalized category names to their consumables.
// Categories missing here contribute no lid/straw deduction and are reported
// via DeductionSet.Unclassified so an operator can extend the table.
var consumptionByCategory = map[string]Consumption{
	"milk-tea":    {Lid: LidFlat, Straw: StrawBoba},
	"brown-sugar": {Lid: LidFlat, Straw: StrawBoba},
	"fruit-tea":   {Lid: LidFlat, Straw: StrawThin},
	"coffee":      {Lid: LidFlat, Straw: StrawThin},
	"chocolate":   {Lid: LidFlat, Straw: StrawThin},
	"frappe":      {Lid: LidDome, Straw: StrawThin},
	"smoothie":    {Lid: LidDome, Straw: StrawThin},
	"slush":       {Lid: LidDome, Straw: StrawNone},
}

// cupKeys are the stock counters tracked in the cups document. Sizes come in
// either as the web flow's medium/large or the legacy mobile TALL/GRANDE/1LITER.
var cupKeys = []string{"tall", "grande", "liter", "medium", "large"}

// NormalizeCategory turns a free-text menu category into a classification
// key: lower-cased, spaces replaced with hyphens.
func NormalizeCategory(name string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(name)), " ", "-")
}

// CupKey derives the cups-document counter from a line item size.
func CupKey(size string) string {
	s := strings.ToLower(strings.TrimSpace(size))
	if s == "1liter" {
		return "liter"
	}
	return s
}

// ClassifyCategory resolves a raw category name against the consumption
// table. ok=false marks the category as unclassified.
func ClassifyCategory(name string) (c Consumption, ok bool) {
	c, ok = consumptionByCategory[NormalizeCategory(name)]
	return c, ok
}

// DeductionSet is the net stock consumption of one order, one sub-map per
// inventory document.
type DeductionSet struct {
	Cups   map[string]int
	Lids   map[string]int
	Straws map[string]int
	AddOns map[string]int

	// Unclassified lists normalized categories (first appearance order,
	// deduplicated) that matched no consumption table entry.
	Unclassified []string
}

// ByDocument returns the non-zero deductions grouped by document name.
func (ds DeductionSet) ByDocument() map[string]map[string]int {
	out := map[string]map[string]int{}
	for doc, m := range map[string]map[string]int{
		DocCups: ds.Cups, DocLids: ds.Lids, DocStraws: ds.Straws, DocAddOns: ds.AddOns,
	} {
		for k, v := range m {
			if v == 0 {
				continue
			}
			if out[doc] == nil {
				out[doc] = map[string]int{}
			}
			out[doc][k] = v
		}
	}
	return out
}

func (ds DeductionSet) IsZero() bool {
	return len(ds.ByDocument()) == 0
}

// Compute aggregates per-document consumption for a list of line items.
// Pure and total: it never fails, whatever the category names look like.
// Unclassified categories contribute zero lid/straw deduction.
func Compute(items []orders.LineItem) DeductionSet {
	ds := DeductionSet{
		Cups:   make(map[string]int, len(cupKeys)),
		Lids:   map[string]int{string(LidFlat): 0, string(LidDome): 0},
		Straws: map[string]int{string(StrawBoba): 0, string(StrawThin): 0},
		AddOns: map[string]int{},
	}
	for _, k := range cupKeys {
		ds.Cups[k] = 0
	}

	seen := map[string]bool{}
	for _, it := range items {
		ds.Cups[CupKey(it.Size)] += it.Qty

		c, ok := ClassifyCategory(it.Category)
		if !ok {
			norm := NormalizeCategory(it.Category)
			if !seen[norm] {
				seen[norm] = true
				ds.Unclassified = append(ds.Unclassified, norm)
			}
		}
		if c.Lid != LidNone {
			ds.Lids[string(c.Lid)] += it.Qty
		}
		if c.Straw != StrawNone {
			ds.Straws[string(c.Straw)] += it.Qty
		}

		for _, a := range it.AddOns {
			ds.AddOns[a.ID] += it.Qty
		}
	}
	return ds
}
