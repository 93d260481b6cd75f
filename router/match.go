package router

import "strings"

// MatcherOptions configures how a pattern is compared against a directive
// type string such as "SpeechSynthesizer:Speak".
type MatcherOptions struct {
	Separator string // default ":"
	// TailOnly requires the multi-segment wildcard "#" to be the last segment.
	TailOnly bool
}

// NewMatcher returns a func(pattern, topic string) bool.
//
// "*" and "+" match exactly one segment. "#" matches zero or more segments,
// so "#" alone matches every type and "Alerts:#" matches the namespace
// "Alerts" with any name.
func NewMatcher(opts ...MatcherOptions) func(pattern, topic string) bool {
	sep := ":"
	tailOnly := false
	if len(opts) > 0 {
		if opts[0].Separator != "" {
			sep = opts[0].Separator
		}
		tailOnly = opts[0].TailOnly
	}

	return func(pattern, topic string) bool {
		if pattern == topic {
			return true
		}
		p := strings.Split(pattern, sep)
		t := strings.Split(topic, sep)
		if tailOnly {
			return matchTail(p, t)
		}
		return matchAnywhere(p, t)
	}
}

func single(seg string) bool {
	return seg == "*" || seg == "+"
}

func matchTail(pattern, topic []string) bool {
	i := 0
	for ; i < len(pattern); i++ {
		if pattern[i] == "#" {
			return i == len(pattern)-1
		}
		if i >= len(topic) {
			return false
		}
		if pattern[i] != topic[i] && !single(pattern[i]) {
			return false
		}
	}
	return i == len(topic)
}

// matchAnywhere lets "#" appear at any position. It walks the pattern once,
// keeping the set of topic prefixes matched so far.
func matchAnywhere(pattern, topic []string) bool {
	reach := make([]bool, len(topic)+1)
	next := make([]bool, len(topic)+1)
	reach[0] = true

	for _, seg := range pattern {
		for j := range next {
			next[j] = false
		}
		for j := 0; j <= len(topic); j++ {
			switch {
			case seg == "#":
				next[j] = reach[j] || (j > 0 && next[j-1])
			case j == 0:
			case single(seg):
				next[j] = reach[j-1]
			default:
				next[j] = reach[j-1] && seg == topic[j-1]
			}
		}
		reach, next = next, reach
	}
	return reach[len(topic)]
}
