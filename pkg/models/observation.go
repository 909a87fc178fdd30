package models

import (
	"strconv"
	"time"
)

// Observation is a single extracted counter value before it is folded into a
// table: one value for one chart at one row position, optionally scoped to an
// object instance. Observations are transient; adapters emit them and the
// table collector consumes them immediately.
type Observation struct {
	Chart    string // chart identity, e.g. "volume:avg_latency"
	Row      RowKey
	Instance string // empty for per-counter charts
	Column   string // column identifier within the chart
	Value    float64
}

// RowKey identifies one table row. Most charts are time series, so the key is
// a timestamp. Histogram charts use a bucket index instead; Label carries the
// bucket's display name when one is known.
type RowKey struct {
	Time     time.Time
	Bucket   int
	IsBucket bool
	Label    string
}

// TimeRow returns a time-axis row key.
func TimeRow(t time.Time) RowKey {
	return RowKey{Time: t}
}

// BucketRow returns a bucket-axis row key. label may be empty; the bucket
// index is used for display then.
func BucketRow(bucket int, label string) RowKey {
	return RowKey{Bucket: bucket, IsBucket: true, Label: label}
}

// Less orders row keys chronologically, or by bucket index for histogram rows.
// Bucket rows never mix with time rows within one table.
func (k RowKey) Less(other RowKey) bool {
	if k.IsBucket {
		return k.Bucket < other.Bucket
	}
	return k.Time.Before(other.Time)
}

// String renders the key the way it appears in the first column of an
// emitted table.
func (k RowKey) String() string {
	if k.IsBucket {
		if k.Label != "" {
			return k.Label
		}
		return strconv.Itoa(k.Bucket)
	}
	return k.Time.Format("2006-01-02 15:04:05")
}
