package user

import (
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/simp-lee/userdir/internal/domain"
)

var phoneDisallowed = regexp.MustCompile(`[^\d\s\-().]`)

// FormatAddress renders an address as "street, suite, city zipcode".
func FormatAddress(a domain.Address) string {
	return a.Street + ", " + a.Suite + ", " + a.City + " " + a.Zipcode
}

// FormatPhone strips every character except digits, whitespace, '-', '(',
// ')' and '.'. Extensions such as "x5442" lose their letter but keep digits.
func FormatPhone(phone string) string {
	return phoneDisallowed.ReplaceAllString(phone, "")
}

// WebsiteURL prefixes "https://" unless the value already starts with "http".
func WebsiteURL(website string) string {
	if strings.HasPrefix(website, "http") {
		return website
	}
	return "https://" + website
}

// IsValidURL reports whether website, normalized by WebsiteURL, forms an
// absolute URL with a scheme, a host and a port no greater than 65535.
func IsValidURL(website string) bool {
	u, err := url.Parse(WebsiteURL(website))
	if err != nil {
		return false
	}
	if p := u.Port(); p != "" {
		if n, err := strconv.Atoi(p); err != nil || n > 65535 {
			return false
		}
	}
	return u.Scheme != "" && u.Hostname() != ""
}
