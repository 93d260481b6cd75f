package directive

import (
	"sort"
	"strings"
)

// BlockingPolicy declares whether executing a directive type must finish
// before the next queued directive may execute.
type BlockingPolicy int

const (
	NonBlocking BlockingPolicy = iota
	Blocking
)

func (p BlockingPolicy) String() string {
	switch p {
	case NonBlocking:
		return "NON_BLOCKING"
	case Blocking:
		return "BLOCKING"
	default:
		return "UNKNOWN"
	}
}

// ParseBlockingPolicy accepts "blocking", "non_blocking", "non-blocking" and
// "nonblocking" in any case.
func ParseBlockingPolicy(s string) (BlockingPolicy, error) {
	norm := strings.ToUpper(strings.TrimSpace(s))
	norm = strings.ReplaceAll(norm, "-", "_")
	switch norm {
	case "BLOCKING":
		return Blocking, nil
	case "NON_BLOCKING", "NONBLOCKING":
		return NonBlocking, nil
	}
	return NonBlocking, NewError(ErrInvalidPolicy, "unknown blocking policy", nil, map[string]any{
		"policy": s,
	})
}

func (p BlockingPolicy) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

func (p *BlockingPolicy) UnmarshalText(text []byte) error {
	parsed, err := ParseBlockingPolicy(string(text))
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

// HandlerConfiguration is the full set of directive types a handler owns and
// the policy for each.
type HandlerConfiguration map[NamespaceAndName]BlockingPolicy

// Types returns the configured types sorted by namespace then name.
func (c HandlerConfiguration) Types() []NamespaceAndName {
	out := make([]NamespaceAndName, 0, len(c))
	for t := range c {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Namespace != out[j].Namespace {
			return out[i].Namespace < out[j].Namespace
		}
		return out[i].Name < out[j].Name
	})
	return out
}

// Clone returns a shallow copy safe to keep after the handler mutates its own map.
func (c HandlerConfiguration) Clone() HandlerConfiguration {
	if c == nil {
		return nil
	}
	out := make(HandlerConfiguration, len(c))
	for t, p := range c {
		out[t] = p
	}
	return out
}
