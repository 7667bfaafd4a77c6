package labels

import (
	"sort"
	"strings"
)

// Tag prefixes. Hypervisor tags are flat strings, so key and value are
// joined with a hyphen.
const (
	ManagedBy      = "leasehold"
	PrefixOwner    = "owner-"
	PrefixTemplate = "tmpl-"
	PrefixResource = "res-"
)

// TagBuilder provides a fluent interface for building container tags.
type TagBuilder struct {
	tags map[string]struct{}
}

// NewTagBuilder creates a tag builder with the managed-by and owner tags pre-set.
func NewTagBuilder(ownerID string) *TagBuilder {
	tb := &TagBuilder{tags: map[string]struct{}{ManagedBy: {}}}
	return tb.add(PrefixOwner + ownerID)
}

// WithTemplate adds the template tag.
func (tb *TagBuilder) WithTemplate(template string) *TagBuilder {
	return tb.add(PrefixTemplate + template)
}

// WithResource adds the short resource id tag.
func (tb *TagBuilder) WithResource(shortID string) *TagBuilder {
	return tb.add(PrefixResource + shortID)
}

func (tb *TagBuilder) add(tag string) *TagBuilder {
	if t := normalize(tag); t != "" {
		tb.tags[t] = struct{}{}
	}
	return tb
}

// Build returns the sorted tag list.
func (tb *TagBuilder) Build() []string {
	out := make([]string, 0, len(tb.tags))
	for t := range tb.tags {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// String returns the tags in the semicolon-separated hypervisor wire format.
func (tb *TagBuilder) String() string {
	return strings.Join(tb.Build(), ";")
}

// normalize keeps only characters the hypervisor accepts in a tag.
func normalize(tag string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(tag) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-', r == '_', r == '.', r == '+':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	return strings.Trim(b.String(), "-_")
}
