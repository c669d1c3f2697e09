package transport

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
)

// ErrInvalidLocation is returned when a location string cannot be parsed.
var ErrInvalidLocation = errors.New("invalid location")

const (
	SchemeFile = "file"
	SchemeSFTP = "sftp"
	SchemeGCS  = "gs"
)

// Location is a parsed source or sink URI.
type Location struct {
	Scheme string
	Host   string // bucket name for gs://
	User   string
	Path   string
	Port   int
}

// IsRemote returns true if the location refers to a remote host.
func (l Location) IsRemote() bool {
	return l.Host != ""
}

// String renders l as a URI that ParseLocation maps back to l. Reserved
// characters in the path are percent-escaped.
func (l Location) String() string {
	if l.Scheme == SchemeFile || l.Scheme == "" {
		return l.Path
	}
	u := url.URL{Scheme: l.Scheme, Host: l.Host, Path: l.Path}
	if l.Port != 0 {
		u.Host = net.JoinHostPort(l.Host, strconv.Itoa(l.Port))
	}
	if l.User != "" {
		u.User = url.User(l.User)
	}
	return u.String()
}

// ParseLocation parses a feed source or sink URI.
//
// Supported formats:
//   - /absolute/path                  → local
//   - file:///absolute/path           → local, scheme stripped
//   - sftp://[user@]host[:port]/path  → SFTP (default port 22)
//   - gs://bucket[/prefix]            → Google Cloud Storage
//
// A string without "://" is always a local path. Other schemes parse
// but are left for the caller to reject.
func ParseLocation(raw string) (Location, error) {
	if strings.TrimSpace(raw) == "" {
		return Location{}, fmt.Errorf("%w: empty", ErrInvalidLocation)
	}

	idx := strings.Index(raw, "://")
	if idx < 0 {
		return Location{Scheme: SchemeFile, Path: raw}, nil
	}

	scheme := strings.ToLower(raw[:idx])
	if scheme == SchemeFile {
		p := raw[idx+len("://"):]
		if p == "" {
			return Location{}, fmt.Errorf("%w: %s: missing path", ErrInvalidLocation, raw)
		}
		return Location{Scheme: SchemeFile, Path: p}, nil
	}

	u, err := url.Parse(raw)
	if err != nil {
		return Location{}, fmt.Errorf("%w: %s: %w", ErrInvalidLocation, raw, err)
	}
	if u.Hostname() == "" {
		return Location{}, fmt.Errorf("%w: %s: missing host", ErrInvalidLocation, raw)
	}

	loc := Location{Scheme: scheme, Host: u.Hostname(), Path: u.Path}
	if p := u.Port(); p != "" {
		loc.Port, err = strconv.Atoi(p)
		if err != nil {
			return Location{}, fmt.Errorf("%w: %s: bad port %q", ErrInvalidLocation, raw, p)
		}
	}
	if u.User != nil {
		loc.User = u.User.Username()
	}

	switch scheme {
	case SchemeSFTP:
		if loc.Path == "" {
			loc.Path = "."
		}
	case SchemeGCS:
		// Object names never start with a slash.
		loc.Path = strings.Trim(loc.Path, "/")
	}
	return loc, nil
}
