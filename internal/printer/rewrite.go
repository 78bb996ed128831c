package printer

import (
	"net"
	"net/url"
	"strings"

	"resume-printer/internal/config"
)

// RewriteTable routes requests aimed at loopback hosts to names the remote
// browser can reach. A request is intercepted when its hostname is one of the
// loopback hostnames of the configured base URLs. The alias is looked up by
// exact host and port first, then by port alone, then the fallback applies.
type RewriteTable struct {
	navigationURL string
	hostnames     map[string]bool
	hosts         map[string]string
	ports         map[string]string
	fallback      string
}

// NewRewriteTable derives the table from the configured base URLs: the public
// host maps to the app alias and the storage host to the storage alias. When
// both name the same host and port, the app alias is used.
func NewRewriteTable(publicURL, storageURL string, cfg config.RewriteConfig) *RewriteTable {
	t := &RewriteTable{
		navigationURL: strings.TrimRight(publicURL, "/"),
		hostnames:     make(map[string]bool),
		hosts:         make(map[string]string),
		ports:         make(map[string]string),
		fallback:      cfg.FallbackAlias,
	}
	if t.fallback == "" {
		t.fallback = cfg.AppAlias
	}
	for port, alias := range cfg.Ports {
		t.ports[port] = alias
	}

	if st, err := url.Parse(storageURL); err == nil {
		t.register(st, cfg.StorageAlias)
	}
	pub, err := url.Parse(publicURL)
	if err == nil && t.register(pub, cfg.AppAlias) {
		t.navigationURL = strings.TrimRight(replaceHostname(pub, t.aliasFor(pub)), "/")
	}
	return t
}

func (t *RewriteTable) register(u *url.URL, alias string) bool {
	if !isLoopback(u.Hostname()) {
		return false
	}
	t.hostnames[strings.ToLower(u.Hostname())] = true
	if alias != "" {
		t.hosts[hostKey(u)] = alias
	}
	return true
}

// Active reports whether any configured base URL points at a loopback host,
// in which case requests must be intercepted.
func (t *RewriteTable) Active() bool { return len(t.hostnames) > 0 }

// NavigationURL is the public base URL as the browser must see it.
func (t *RewriteTable) NavigationURL() string { return t.navigationURL }

// Rewrite implements domain.RequestRewriter. Requests to hosts outside the
// table, and URLs that do not parse, pass through unchanged.
func (t *RewriteTable) Rewrite(rawURL string) (string, bool) {
	u, err := url.Parse(rawURL)
	if err != nil || !t.hostnames[strings.ToLower(u.Hostname())] {
		return rawURL, false
	}
	alias := t.aliasFor(u)
	if alias == "" || strings.EqualFold(alias, u.Hostname()) {
		return rawURL, false
	}
	return replaceHostname(u, alias), true
}

func (t *RewriteTable) aliasFor(u *url.URL) string {
	if alias, ok := t.hosts[hostKey(u)]; ok {
		return alias
	}
	if alias, ok := t.ports[u.Port()]; ok && alias != "" {
		return alias
	}
	return t.fallback
}

// hostKey is the lowercased hostname with an explicit port, so that
// http://localhost and http://localhost:80 share one entry.
func hostKey(u *url.URL) string {
	port := u.Port()
	if port == "" {
		switch u.Scheme {
		case "http", "ws":
			port = "80"
		case "https", "wss":
			port = "443"
		}
	}
	return net.JoinHostPort(strings.ToLower(u.Hostname()), port)
}

func replaceHostname(u *url.URL, hostname string) string {
	c := *u
	if port := u.Port(); port != "" {
		c.Host = net.JoinHostPort(hostname, port)
	} else {
		c.Host = hostname
	}
	return c.String()
}

func isLoopback(hostname string) bool {
	h := strings.ToLower(hostname)
	if h == "localhost" || strings.HasSuffix(h, ".localhost") {
		return true
	}
	ip := net.ParseIP(h)
	return ip != nil && ip.IsLoopback()
}
