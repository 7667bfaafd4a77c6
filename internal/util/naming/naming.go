package naming

import (
	"fmt"
	"strings"
	"time"
)

// MaxLabelLength is the longest permitted DNS label.
const MaxLabelLength = 63

const shortIDLength = 8

// ShortID returns the first eight significant characters of a resource id.
func ShortID(id string) string {
	compact := strings.ReplaceAll(strings.ToLower(id), "-", "")
	if len(compact) > shortIDLength {
		return compact[:shortIDLength]
	}
	return compact
}

// Sanitize lowercases s and replaces every run of characters outside
// [a-z0-9] with a single hyphen. Leading and trailing hyphens are dropped.
func Sanitize(s string) string {
	var b strings.Builder
	lastHyphen := true
	for _, r := range strings.ToLower(s) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
			lastHyphen = false
			continue
		}
		if !lastHyphen {
			b.WriteByte('-')
			lastHyphen = true
		}
	}
	return strings.TrimRight(b.String(), "-")
}

// Hostname returns the technical hostname of a container.
//
// The owner name segment is shortened first when the result would exceed
// MaxLabelLength, so the owner id, template and short id always survive.
func Hostname(ownerID, ownerName, template, resourceID string) string {
	owner := "u" + Sanitize(ownerID)
	tmpl := Sanitize(template)
	short := ShortID(resourceID)
	name := Sanitize(ownerName)

	fixed := len(owner) + len(tmpl) + len(short) + 3
	if budget := MaxLabelLength - fixed; len(name) > budget {
		if budget < 1 {
			name = ""
		} else {
			name = strings.TrimRight(name[:budget], "-")
		}
	}

	parts := []string{owner}
	if name != "" {
		parts = append(parts, name)
	}
	parts = append(parts, tmpl, short)
	host := strings.Join(parts, "-")
	if len(host) > MaxLabelLength {
		host = strings.TrimRight(host[:MaxLabelLength], "-")
	}
	return host
}

// PanelSubdomain returns the fully-qualified management-panel hostname of a resource.
func PanelSubdomain(resourceID, baseDomain string) string {
	return fmt.Sprintf("%s-panel.%s", ShortID(resourceID), strings.TrimPrefix(baseDomain, "."))
}

// SnapshotName returns a hypervisor snapshot name embedding the creation time
// formatted as YYYYMMDD-HHMMSS.
func SnapshotName(ts time.Time) string {
	return "snap-" + ts.Format("20060102-150405")
}
