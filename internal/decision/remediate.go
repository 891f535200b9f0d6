package decision

import (
	"github.com/dshills/flsverify/internal/schema"
)

// MissingSearch returns the contexts of rec that record neither a search
// nor a waiver.
func MissingSearch(rec *schema.DecisionRecord) []schema.Context {
	var out []schema.Context
	for _, c := range schema.Contexts {
		if !rec.Entry(c).SearchToolsUsed.Present() {
			out = append(out, c)
		}
	}
	return out
}

// Remediate sets st in every context of rec that lacks search evidence
// and returns those contexts. Contexts that already have some are left
// alone.
func Remediate(rec *schema.DecisionRecord, st schema.SearchTools) []schema.Context {
	missing := MissingSearch(rec)
	for _, c := range missing {
		cp := schema.SearchTools{Uses: append([]schema.SearchToolUse(nil), st.Uses...)}
		if st.Waiver != nil {
			w := *st.Waiver
			cp.Waiver = &w
		}
		rec.Entry(c).SearchToolsUsed = &cp
	}
	return missing
}
