package gitee

import "strings"

// parseLinkHeader extracts rel -> url from an RFC 8288 Link header, e.g.
// <https://gitee.com/api/v5/repos/o/r/issues?page=2>; rel="next"
func parseLinkHeader(header string) map[string]string {
	links := make(map[string]string)
	if header == "" {
		return links
	}
	for _, part := range strings.Split(header, ",") {
		segments := strings.Split(strings.TrimSpace(part), ";")
		if len(segments) < 2 {
			continue
		}
		target := strings.TrimSpace(segments[0])
		if !strings.HasPrefix(target, "<") || !strings.HasSuffix(target, ">") {
			continue
		}
		target = target[1 : len(target)-1]
		for _, param := range segments[1:] {
			param = strings.TrimSpace(param)
			if !strings.HasPrefix(param, "rel=") {
				continue
			}
			for _, rel := range strings.Fields(strings.Trim(strings.TrimPrefix(param, "rel="), `"`)) {
				links[rel] = target
			}
		}
	}
	return links
}
