// Package classify assigns a subject label to a video through a tiered
// policy: trained scorer first, ordered keyword rules second, the job's own
// subject last. Classification is total; it always produces a label.
package classify

import (
	"strings"
	"unicode"
)

// Tier identifies which tier of the policy produced a label.
type Tier string

const (
	// TierModel means the trained scorer exceeded the confidence threshold.
	TierModel Tier = "model"
	// TierRule means an ordered keyword rule matched.
	TierRule Tier = "rule"
	// TierDefault means the job's configured subject was returned unchanged.
	TierDefault Tier = "default"
)

// DefaultConfidenceThreshold gates the model tier.
const DefaultConfidenceThreshold = 0.6

// Scorer is an externally trained text classifier. Implementations must be
// deterministic for a fixed model state.
type Scorer interface {
	PredictWithConfidence(text string) (label string, confidence float64, err error)
}

// Rule maps any of its keywords, matched as substrings of the lowercased
// title+tags, to a subject. Rules are evaluated in order; first match wins.
type Rule struct {
	Keywords []string
	Subject  string
}

// DefaultRules covers the three core undergraduate math subjects.
func DefaultRules() []Rule {
	return []Rule{
		{Keywords: []string{"线代", "线性代数", "矩阵"}, Subject: "线性代数"},
		{Keywords: []string{"高数", "高等数学", "微积分"}, Subject: "高等数学"},
		{Keywords: []string{"概率", "统计"}, Subject: "概率论"},
	}
}

// Config assembles a Classifier. A nil Scorer means no model is available;
// the classifier then degrades straight to the rule tier.
type Config struct {
	Scorer              Scorer
	Rules               []Rule
	ConfidenceThreshold float64
}

// Classifier implements the tiered policy.
type Classifier struct {
	scorer    Scorer
	rules     []Rule
	threshold float64
}

// New builds a Classifier, filling in default rules and threshold.
func New(cfg Config) *Classifier {
	rules := cfg.Rules
	if rules == nil {
		rules = DefaultRules()
	}
	threshold := cfg.ConfidenceThreshold
	if threshold <= 0 {
		threshold = DefaultConfidenceThreshold
	}
	return &Classifier{
		scorer:    cfg.Scorer,
		rules:     rules,
		threshold: threshold,
	}
}

// Classify returns a subject label for the given title and tags, together
// with the tier that produced it. It never fails: a missing or erroring
// scorer and unmatched rules fall through to the fallback subject.
func (c *Classifier) Classify(title, tags, fallback string) (string, Tier) {
	if c.scorer != nil {
		text := strings.Join(Tokenize(title+" "+tags), " ")
		if text != "" {
			label, confidence, err := c.scorer.PredictWithConfidence(text)
			if err == nil && label != "" && confidence > c.threshold {
				return label, TierModel
			}
		}
	}

	combined := strings.ToLower(title + tags)
	for _, rule := range c.rules {
		for _, kw := range rule.Keywords {
			if strings.Contains(combined, kw) {
				return rule.Subject, TierRule
			}
		}
	}

	return fallback, TierDefault
}

// stopwords are function words excluded from scorer input. Single-rune
// tokens are already dropped by the length filter.
var stopwords = map[string]struct{}{
	"的话": {}, "我们": {}, "你们": {}, "他们": {}, "这个": {}, "那个": {},
	"什么": {}, "怎么": {}, "可以": {}, "就是": {}, "一个": {}, "没有": {},
	"the": {}, "and": {}, "for": {}, "with": {}, "this": {}, "that": {},
}

// Tokenize splits text into content tokens: runs of letters and digits,
// lowercased, longer than one rune, with stopwords removed. The same
// tokenizer is used when training scorer artifacts, so scorer input stays
// consistent with training input.
func Tokenize(text string) []string {
	fields := strings.FieldsFunc(text, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		f = strings.ToLower(f)
		if len([]rune(f)) <= 1 {
			continue
		}
		if _, ok := stopwords[f]; ok {
			continue
		}
		out = append(out, f)
	}
	return out
}
