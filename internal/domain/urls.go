package domain

import "strings"

// ExtractOPeNDAPURLs returns every related URL whose description mentions
// OPENDAP, in granule order. Duplicates are kept.
func ExtractOPeNDAPURLs(granules []Granule) []string {
	var urls []string
	for _, g := range granules {
		for _, u := range g.RelatedURLs {
			if u.URL == "" {
				continue
			}
			if strings.Contains(strings.ToUpper(u.Description), "OPENDAP") {
				urls = append(urls, u.URL)
			}
		}
	}
	return urls
}
