package mqtt

import "strings"

// TopicMatches reports whether topic matches filter. "+" matches exactly
// one level and a trailing "#" matches any number of remaining levels,
// including none.
func TopicMatches(filter, topic string) bool {
	if filter == "" || topic == "" {
		return false
	}
	fs := strings.Split(filter, "/")
	ts := strings.Split(topic, "/")

	for i, f := range fs {
		if f == "#" {
			return i == len(fs)-1
		}
		if i >= len(ts) {
			return false
		}
		if f != "+" && f != ts[i] {
			return false
		}
	}
	return len(fs) == len(ts)
}
