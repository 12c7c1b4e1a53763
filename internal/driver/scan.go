package driver

import (
	"bufio"
	"context"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/edvin/lampctl/internal/model"
)

var (
	serverNameRe = regexp.MustCompile(`(?i)^\s*ServerName\s+(\S+)`)
	docRootRe    = regexp.MustCompile(`(?i)^\s*DocumentRoot\s+"?([^"\s]+)"?`)
	// An HTTPS redirect or rewrite rule, e.g.
	//   RewriteRule ^ https://%{SERVER_NAME}%{REQUEST_URI} [END,NE,R=permanent]
	//   Redirect permanent / https://shop.test/
	httpsRuleRe = regexp.MustCompile(`(?i)^\s*(RewriteRule|Redirect|RedirectMatch|RedirectPermanent)\b.*https://`)
)

// CMSMarkers must all exist under a document root for the site to be
// reported as running the CMS.
var CMSMarkers = []string{"wp-config.php", "wp-content", "wp-includes"}

type descriptorInfo struct {
	path      string
	domain    string
	docRoot   string
	httpsRule bool
}

// List rebuilds the site inventory from the descriptors in sites-available.
// A base descriptor and its TLS companion are reported as one site with SSL
// set. When two descriptors declare the same domain the first in name order
// wins.
func (d *VhostDriver) List(_ context.Context) ([]model.Site, error) {
	paths, err := filepath.Glob(filepath.Join(d.available, "*.conf"))
	if err != nil {
		return nil, err
	}
	sort.Strings(paths)

	type group struct {
		base      *descriptorInfo
		companion *descriptorInfo
	}
	groups := map[string]*group{}
	var order []string

	for _, path := range paths {
		info, err := parseDescriptor(path)
		if err != nil {
			d.logger.Warn().Err(err).Str("path", path).Msg("skipping unreadable descriptor")
			continue
		}
		stem := strings.TrimSuffix(filepath.Base(path), ".conf")
		key := strings.TrimSuffix(stem, TLSSuffix)
		g, ok := groups[key]
		if !ok {
			g = &group{}
			groups[key] = g
			order = append(order, key)
		}
		if stem != key {
			g.companion = info
		} else {
			g.base = info
		}
	}
	sort.Strings(order)

	seen := map[string]bool{}
	var sites []model.Site
	for _, key := range order {
		g := groups[key]
		primary := g.base
		if primary == nil {
			primary = g.companion
		}
		domain := primary.domain
		if domain == "" && g.companion != nil {
			domain = g.companion.domain
		}
		if domain == "" || seen[domain] {
			continue
		}
		seen[domain] = true

		docRoot := primary.docRoot
		if docRoot == "" && g.companion != nil {
			docRoot = g.companion.docRoot
		}
		site := model.Site{
			Domain:    domain,
			DocRoot:   docRoot,
			VhostPath: primary.path,
			SSL:       g.companion != nil || primary.httpsRule,
		}
		site.CMS = hasCMSMarkers(docRoot)
		sites = append(sites, site)
	}
	return sites, nil
}

func parseDescriptor(path string) (*descriptorInfo, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	info := &descriptorInfo{path: path}
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := sc.Text()
		if strings.HasPrefix(strings.TrimSpace(line), "#") {
			continue
		}
		if info.domain == "" {
			if m := serverNameRe.FindStringSubmatch(line); m != nil {
				info.domain = m[1]
			}
		}
		if info.docRoot == "" {
			if m := docRootRe.FindStringSubmatch(line); m != nil {
				info.docRoot = m[1]
			}
		}
		if !info.httpsRule && httpsRuleRe.MatchString(line) {
			info.httpsRule = true
		}
	}
	return info, sc.Err()
}

func hasCMSMarkers(docRoot string) bool {
	if docRoot == "" {
		return false
	}
	for _, m := range CMSMarkers {
		if _, err := os.Stat(filepath.Join(docRoot, m)); err != nil {
			return false
		}
	}
	return true
}
