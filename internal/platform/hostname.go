package platform

import "strings"

// WWWAlias returns the www alias served alongside a domain.
// Example: shop.test -> www.shop.test. A domain that already starts with
// "www." has no alias.
func WWWAlias(domain string) string {
	if strings.HasPrefix(domain, "www.") {
		return ""
	}
	return "www." + domain
}
