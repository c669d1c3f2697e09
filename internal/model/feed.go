package model

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"
)

// ErrInvalidConfiguration is returned when a domain value is constructed
// from invalid inputs. It indicates caller misuse.
var ErrInvalidConfiguration = errors.New("invalid configuration")

// Feed is one configured source-to-destination relationship. Construct it
// with NewFeed; the zero value is not a usable feed.
type Feed struct {
	metadata          map[string]any
	id                string
	sourceURI         string
	destinationPrefix string
	includePatterns   []string
	excludePatterns   []string
	active            bool
}

// FeedSpec holds the inputs to NewFeed.
type FeedSpec struct {
	Metadata          map[string]any
	ID                string
	SourceURI         string
	DestinationPrefix string
	IncludePatterns   []string
	ExcludePatterns   []string
	Active            bool
}

// NewFeed validates spec and returns an immutable Feed. Pattern lists and
// metadata are copied.
func NewFeed(spec FeedSpec) (Feed, error) {
	if strings.TrimSpace(spec.ID) == "" {
		return Feed{}, fmt.Errorf("%w: feed id cannot be blank", ErrInvalidConfiguration)
	}
	if strings.TrimSpace(spec.SourceURI) == "" {
		return Feed{}, fmt.Errorf("%w: feed %s: source uri cannot be blank", ErrInvalidConfiguration, spec.ID)
	}

	md := make(map[string]any, len(spec.Metadata))
	maps.Copy(md, spec.Metadata)

	return Feed{
		id:                spec.ID,
		sourceURI:         spec.SourceURI,
		includePatterns:   slices.Clone(spec.IncludePatterns),
		excludePatterns:   slices.Clone(spec.ExcludePatterns),
		destinationPrefix: spec.DestinationPrefix,
		active:            spec.Active,
		metadata:          md,
	}, nil
}

func (f Feed) ID() string                { return f.id }
func (f Feed) SourceURI() string         { return f.sourceURI }
func (f Feed) DestinationPrefix() string { return f.destinationPrefix }
func (f Feed) Active() bool              { return f.active }

// IncludePatterns returns a copy of the include globs. An empty list means
// every path is included.
func (f Feed) IncludePatterns() []string { return slices.Clone(f.includePatterns) }

// ExcludePatterns returns a copy of the exclude globs.
func (f Feed) ExcludePatterns() []string { return slices.Clone(f.excludePatterns) }

// Metadata returns a copy of the feed's opaque metadata.
func (f Feed) Metadata() map[string]any {
	md := make(map[string]any, len(f.metadata))
	maps.Copy(md, f.metadata)
	return md
}
