package sla

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Bucket is a duration class an SLA name is mapped to.
type Bucket string

const (
	BucketFRT Bucket = "FRT" // first response
	BucketNRT Bucket = "NRT" // next response
	BucketTTC Bucket = "TTC" // time to close

	// BucketUnclassified marks names that matched no keyword.
	BucketUnclassified Bucket = "unclassified"
)

// DefaultDurations are used for buckets without an operator override.
var DefaultDurations = map[Bucket]time.Duration{
	BucketFRT: 5 * time.Minute,
	BucketNRT: 5 * time.Minute,
	BucketTTC: 24 * time.Hour,
}

// Keyword buckets are checked in order; the first containing match wins.
var bucketKeywords = []struct {
	bucket   Bucket
	keywords []string
}{
	{BucketFRT, []string{"first response", "frt"}},
	{BucketNRT, []string{"next response", "nrt"}},
	{BucketTTC, []string{"close", "ttc"}},
}

// Policy resolves SLA names to commitment durations.
type Policy struct {
	durations map[Bucket]time.Duration
}

// NewPolicy returns a Policy with the defaults overlaid by overrides.
func NewPolicy(overrides map[Bucket]time.Duration) *Policy {
	d := make(map[Bucket]time.Duration, len(DefaultDurations))
	for b, v := range DefaultDurations {
		d[b] = v
	}
	for b, v := range overrides {
		if v > 0 {
			d[b] = v
		}
	}
	return &Policy{durations: d}
}

// ParseDurations parses an override list such as "FRT:300,NRT:300,TTC:86400"
// where values are seconds.
func ParseDurations(s string) (map[Bucket]time.Duration, error) {
	out := map[Bucket]time.Duration{}
	for _, item := range strings.Split(s, ",") {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		name, val, ok := strings.Cut(item, ":")
		if !ok {
			return nil, fmt.Errorf("sla duration %q: want NAME:SECONDS", item)
		}
		b := Bucket(strings.ToUpper(strings.TrimSpace(name)))
		if _, known := DefaultDurations[b]; !known {
			return nil, fmt.Errorf("sla duration %q: unknown bucket %q", item, b)
		}
		secs, err := strconv.ParseInt(strings.TrimSpace(val), 10, 64)
		if err != nil || secs <= 0 {
			return nil, fmt.Errorf("sla duration %q: seconds must be a positive integer", item)
		}
		out[b] = time.Duration(secs) * time.Second
	}
	return out, nil
}

// Classify maps an SLA name to its bucket by case-insensitive substring match.
func (p *Policy) Classify(name string) Bucket {
	n := strings.ToLower(name)
	for _, kb := range bucketKeywords {
		for _, kw := range kb.keywords {
			if strings.Contains(n, kw) {
				return kb.bucket
			}
		}
	}
	return BucketUnclassified
}

// ResolveDuration returns the commitment for an SLA name. Unrecognized names
// get the shortest configured duration.
func (p *Policy) ResolveDuration(name string) time.Duration {
	if d, ok := p.durations[p.Classify(name)]; ok {
		return d
	}
	return p.shortest()
}

// Durations returns a copy of the effective bucket durations.
func (p *Policy) Durations() map[Bucket]time.Duration {
	out := make(map[Bucket]time.Duration, len(p.durations))
	for b, d := range p.durations {
		out[b] = d
	}
	return out
}

func (p *Policy) shortest() time.Duration {
	var min time.Duration
	for _, d := range p.durations {
		if min == 0 || d < min {
			min = d
		}
	}
	return min
}
