package stream

import (
	"strconv"
	"strings"

	"github.com/tidwall/gjson"
	"golang.org/x/text/unicode/norm"
)

// cleanText trims s and converts it to NFC.
func cleanText(s string) string {
	return strings.TrimSpace(norm.NFC.String(s))
}

// firstString returns the first non-empty string found at the given paths.
func firstString(doc gjson.Result, paths ...string) string {
	for _, p := range paths {
		v := doc.Get(p)
		if !v.Exists() || v.Type == gjson.Null {
			continue
		}
		if s := cleanText(v.String()); s != "" {
			return s
		}
	}
	return ""
}

// firstInt returns the first positive integer at the given paths. Numeric
// strings are accepted.
func firstInt(doc gjson.Result, paths ...string) int {
	for _, p := range paths {
		v := doc.Get(p)
		switch v.Type {
		case gjson.Number:
			if n := int(v.Int()); n > 0 {
				return n
			}
		case gjson.String:
			if n, err := strconv.Atoi(strings.TrimSpace(v.Str)); err == nil && n > 0 {
				return n
			}
		}
	}
	return 0
}

// artistName reads an artist from a field that may be a string, an object
// with a name, or a list of either. Multiple artists are joined with ", ".
func artistName(doc gjson.Result, paths ...string) string {
	for _, p := range paths {
		v := doc.Get(p)
		var names []string
		switch {
		case v.IsArray():
			for _, item := range v.Array() {
				if n := nameOf(item); n != "" {
					names = append(names, n)
				}
			}
		default:
			if n := nameOf(v); n != "" {
				names = append(names, n)
			}
		}
		if len(names) > 0 {
			return strings.Join(names, ", ")
		}
	}
	return ""
}

func nameOf(v gjson.Result) string {
	if v.IsObject() {
		return firstString(v, "name", "title")
	}
	if v.Type == gjson.String {
		return cleanText(v.Str)
	}
	return ""
}

// explicitFlag coerces the assorted explicit markers (0/1, "true", true) to a bool.
func explicitFlag(doc gjson.Result, paths ...string) bool {
	for _, p := range paths {
		v := doc.Get(p)
		switch v.Type {
		case gjson.True:
			return true
		case gjson.Number:
			return v.Int() != 0
		case gjson.String:
			b, err := strconv.ParseBool(strings.TrimSpace(v.Str))
			if err == nil {
				return b
			}
			if n, err := strconv.Atoi(strings.TrimSpace(v.Str)); err == nil {
				return n != 0
			}
		}
	}
	return false
}

// newResult applies the display defaults to raw metadata.
func newResult(url, title, artist, thumbnail string, durationSeconds int) *StreamResult {
	result := &StreamResult{
		URL:    url,
		Title:  cleanText(title),
		Artist: cleanText(artist),
	}
	if result.Title == "" {
		result.Title = UnknownTitle
	}
	if result.Artist == "" {
		result.Artist = UnknownArtist
	}
	if thumb := strings.TrimSpace(thumbnail); thumb != "" {
		result.Thumbnail = &thumb
	}
	if durationSeconds > 0 {
		d := durationSeconds
		result.Duration = &d
	}
	return result
}

// parseCandidates reads stream variants from the shapes upstreams commonly
// use: an object keyed by quality label, a list of URLs, or a list of
// objects carrying url, label and bitrate fields.
func parseCandidates(v gjson.Result) []StreamCandidate {
	var candidates []StreamCandidate
	switch {
	case v.IsArray():
		for _, item := range v.Array() {
			if c, ok := parseCandidate(item, ""); ok {
				candidates = append(candidates, c)
			}
		}
	case v.IsObject():
		v.ForEach(func(key, value gjson.Result) bool {
			if c, ok := parseCandidate(value, key.String()); ok {
				candidates = append(candidates, c)
			}
			return true
		})
	}
	return candidates
}

func parseCandidate(item gjson.Result, label string) (StreamCandidate, bool) {
	if item.Type == gjson.String {
		u := strings.TrimSpace(item.Str)
		if !isStreamURL(u) {
			return StreamCandidate{}, false
		}
		return StreamCandidate{URL: u, Quality: label}, true
	}
	if !item.IsObject() {
		return StreamCandidate{}, false
	}

	c := StreamCandidate{
		URL:     firstString(item, "url", "streamUrl", "stream_url", "src"),
		Quality: firstString(item, "quality", "label", "level", "format_note"),
		Bitrate: firstInt(item, "bitrate", "br", "abr", "kbps"),
		Codec:   firstString(item, "codec", "acodec", "type", "mime"),
	}
	if c.Quality == "" {
		c.Quality = label
	}
	if !isStreamURL(c.URL) {
		return StreamCandidate{}, false
	}
	return c, true
}

func isStreamURL(s string) bool {
	return strings.HasPrefix(s, "https://") || strings.HasPrefix(s, "http://")
}
