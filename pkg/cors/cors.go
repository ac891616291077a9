// Package cors decides which browser origins may call the API.
package cors

import (
	"net/url"
	"strings"
)

// Policy admits an origin when it is on the allow-list or when its hostname
// falls under the trusted suffix. It is immutable once built.
type Policy struct {
	origins map[string]struct{}
	list    []string
	suffix  string
}

// Decision is the outcome of Admit. Origin echoes the evaluated value so a
// rejection can be reported back to the caller.
type Decision struct {
	Allowed bool
	Origin  string
}

// NewPolicy builds a policy. A suffix without a leading dot gets one, so
// "vercel.app" never admits "evilvercel.app".
func NewPolicy(origins []string, suffix string) Policy {
	p := Policy{origins: map[string]struct{}{}}
	for _, o := range origins {
		o = strings.TrimSpace(o)
		if o == "" {
			continue
		}
		if _, dup := p.origins[o]; dup {
			continue
		}
		p.origins[o] = struct{}{}
		p.list = append(p.list, o)
	}
	suffix = strings.ToLower(strings.TrimSpace(suffix))
	if suffix != "" && !strings.HasPrefix(suffix, ".") {
		suffix = "." + suffix
	}
	p.suffix = suffix
	return p
}

// Admit evaluates origin. An empty origin means a non-browser caller and is
// always admitted.
func (p Policy) Admit(origin string) Decision {
	d := Decision{Origin: origin}
	if origin == "" {
		d.Allowed = true
		return d
	}
	if _, ok := p.origins[origin]; ok {
		d.Allowed = true
		return d
	}
	if p.suffix == "" {
		return d
	}
	u, err := url.Parse(origin)
	if err != nil || u.Hostname() == "" {
		return d
	}
	host := strings.ToLower(u.Hostname())
	if host == p.suffix[1:] || strings.HasSuffix(host, p.suffix) {
		d.Allowed = true
	}
	return d
}

// Origins returns the allow-list in configuration order.
func (p Policy) Origins() []string {
	return append([]string(nil), p.list...)
}

func (p Policy) Suffix() string { return p.suffix }
