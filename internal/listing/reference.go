package listing

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/pkg/errors"
)

// Reference is a validated item reference.
type Reference struct {
	Raw      string
	Platform string
	Host     string
	// Slug is the human-readable segment carrying category and title words.
	Slug   string
	ItemID string
}

// Key identifies the item independent of URL decoration.
func (r Reference) Key() string {
	return r.Platform + ":" + r.ItemID
}

var (
	olxPathRe   = regexp.MustCompile(`^/(?:[a-z]{2}-[a-z]{2}/)?item/([a-z0-9-]+?)-iid-(\d{4,})/?$`)
	quikrPathRe = regexp.MustCompile(`^/([a-z0-9-]+)/([a-z0-9-]+)/W0QQAdIdZ(\d{4,})/?$`)
	itemIDRe    = regexp.MustCompile(`\d{4,}`)
	alphaSegRe  = regexp.MustCompile(`^[a-zA-Z][a-zA-Z-]*$`)
)

// ParseReference validates raw against the shape its platform requires. Every
// reference must carry a category-bearing segment and an item identifier.
func ParseReference(raw string) (Reference, error) {
	raw = strings.TrimSpace(raw)
	u, err := url.Parse(raw)
	if err != nil {
		return Reference{}, errors.Wrapf(ErrInvalidReference, "parse %q: %v", raw, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return Reference{}, errors.Wrapf(ErrInvalidReference, "scheme %q not allowed", u.Scheme)
	}
	host := strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
	if host == "" {
		return Reference{}, errors.Wrap(ErrInvalidReference, "missing host")
	}

	ref := Reference{Raw: raw, Host: host}
	path := u.EscapedPath()

	switch {
	case strings.HasPrefix(host, "olx."):
		m := olxPathRe.FindStringSubmatch(strings.ToLower(path))
		if m == nil || strings.Trim(m[1], "-") == "" {
			return Reference{}, errors.Wrapf(ErrInvalidReference, "olx path %q lacks item slug or iid", path)
		}
		ref.Platform, ref.Slug, ref.ItemID = "olx", m[1], m[2]

	case strings.HasPrefix(host, "quikr."):
		m := quikrPathRe.FindStringSubmatch(path)
		if m == nil {
			return Reference{}, errors.Wrapf(ErrInvalidReference, "quikr path %q lacks category or ad id", path)
		}
		ref.Platform, ref.Slug, ref.ItemID = "quikr", m[1]+"-"+m[2], m[3]

	default:
		segs := splitPath(path)
		if len(segs) < 2 {
			return Reference{}, errors.Wrapf(ErrInvalidReference, "path %q needs category and item segments", path)
		}
		last := segs[len(segs)-1]
		id := itemIDRe.FindString(last)
		if id == "" {
			return Reference{}, errors.Wrapf(ErrInvalidReference, "path %q has no item identifier", path)
		}
		category := ""
		for _, s := range segs[:len(segs)-1] {
			if alphaSegRe.MatchString(s) {
				category = s
			}
		}
		if category == "" {
			return Reference{}, errors.Wrapf(ErrInvalidReference, "path %q has no category segment", path)
		}
		ref.Platform = strings.SplitN(host, ".", 2)[0]
		ref.Slug = strings.ToLower(category + "-" + last)
		ref.ItemID = id
	}
	return ref, nil
}

func splitPath(p string) []string {
	var out []string
	for _, s := range strings.Split(p, "/") {
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}
