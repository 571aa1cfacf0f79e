package toothchart

import "strings"

// Rule maps any of its keywords, matched as a lower-case substring, to Status.
type Rule struct {
	Keywords []string
	Status   Status
}

// Classifier turns free-text treatment and appointment descriptions into a
// canonical status. Rules are evaluated in order and the first hit wins, so
// more specific phrases ("root canal") must come before anything that could
// match a fragment of them.
type Classifier struct {
	rules []Rule
}

// DefaultRules is the keyword table used by the clinic.
func DefaultRules() []Rule {
	return []Rule{
		{Keywords: []string{"root canal", "rct", "endodontic", "pulpectomy"}, Status: StatusRootCanal},
		{Keywords: []string{"implant"}, Status: StatusImplant},
		{Keywords: []string{"extraction", "extract"}, Status: StatusMissing},
		{Keywords: []string{"crown", "onlay", "cap"}, Status: StatusCrown},
		{Keywords: []string{"filling", "restoration", "composite", "amalgam"}, Status: StatusFilled},
		{Keywords: []string{"periodontal"}, Status: StatusAttention},
		{Keywords: []string{"scaling", "polishing", "cleaning"}, Status: StatusHealthy},
	}
}

// NewClassifier copies rules so later changes by the caller cannot leak in.
func NewClassifier(rules []Rule) *Classifier {
	cp := make([]Rule, len(rules))
	for i, r := range rules {
		kws := make([]string, len(r.Keywords))
		for j, kw := range r.Keywords {
			kws[j] = strings.ToLower(kw)
		}
		cp[i] = Rule{Keywords: kws, Status: r.Status}
	}
	return &Classifier{rules: cp}
}

// Classify returns the status implied by text. ok is false when no rule
// matches; callers must leave the tooth untouched in that case rather than
// assume it is healthy.
func (c *Classifier) Classify(text string) (status Status, ok bool) {
	lower := strings.ToLower(text)
	if strings.TrimSpace(lower) == "" {
		return "", false
	}
	for _, r := range c.rules {
		for _, kw := range r.Keywords {
			if strings.Contains(lower, kw) {
				return r.Status, true
			}
		}
	}
	return "", false
}

// Matches reports whether text contains a keyword of any rule for family,
// regardless of rule order. A plan such as "root canal followed by crown"
// matches both root_canal and crown.
func (c *Classifier) Matches(text string, family Status) bool {
	lower := strings.ToLower(text)
	for _, r := range c.rules {
		if r.Status != family {
			continue
		}
		for _, kw := range r.Keywords {
			if strings.Contains(lower, kw) {
				return true
			}
		}
	}
	return false
}

var toothlessTypes = []string{"consultation", "first visit", "first_visit", "check-up", "checkup"}

// IsToothless reports whether a treatment type never addresses a specific
// tooth, such as a consultation or first visit.
func IsToothless(treatmentType string) bool {
	lower := strings.ToLower(strings.TrimSpace(treatmentType))
	for _, t := range toothlessTypes {
		if strings.Contains(lower, t) {
			return true
		}
	}
	return false
}
