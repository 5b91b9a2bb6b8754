package formflow

// Triggered returns the rules whose condition holds against the full state,
// in declaration order. Rules are global, so no current answer is bound.
func Triggered(rules []EligibilityRule, answers Answers, calcs Calculations, flags FlagSet) []EligibilityRule {
	var hits []EligibilityRule
	for _, r := range rules {
		if r.Action == "" {
			continue
		}
		if Evaluate(r.If, nil, answers, calcs, flags) {
			hits = append(hits, r)
		}
	}
	return hits
}

// Accumulate returns existing plus the action of every triggered rule.
// Flags are never removed.
func Accumulate(rules []EligibilityRule, answers Answers, calcs Calculations, existing FlagSet) FlagSet {
	out := existing.Clone()
	for _, r := range Triggered(rules, answers, calcs, existing) {
		out.Add(r.Action)
	}
	return out
}
