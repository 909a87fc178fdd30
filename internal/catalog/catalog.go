// Package catalog declares which raw counters the extraction engine cares
// about, grouped by chart. The catalogs are plain data: loaded once at
// startup, validated for duplicate keys, and shared read-only by every
// adapter. Adding a chart means adding an entry here.
package catalog

import (
	"fmt"
)

// Key identifies a counter of one object kind in the structured formats.
type Key struct {
	Object  string
	Counter string
}

// ChartID returns the chart identity used by the table model.
func (k Key) ChartID() string {
	return k.Object + ":" + k.Counter
}

// Aspect is one requested counter of a line-oriented per-iteration object
// kind. Unit is the suffix the raw value carries in the file; Scale divides
// the parsed value before recording (1 when no conversion applies) and
// DisplayUnit is what the chart axis shows after scaling.
type Aspect struct {
	Name        string
	Unit        string
	Scale       float64
	DisplayUnit string
}

// CounterGroup declares one counters-over-time chart: a set of counters of a
// single-instance object kind that share a unit and are drawn together.
type CounterGroup struct {
	ID       string
	Object   string
	Counters []string
}

// DerivedChart declares a chart computed from two already-populated charts
// instead of read from source data. The only supported operation is the
// element-wise quotient; rows missing from either operand become gaps.
type DerivedChart struct {
	ID          string
	Unit        string
	Numerator   string // operand chart ID
	Denominator string // operand chart ID
}

// Structured is the catalog for the self-describing record formats (ASUP
// XML, ASUP JSON and the legacy 7-mode XML variant).
type Structured struct {
	InstancesOverTime   []Key
	InstancesOverBucket []Key
	CounterGroups       []CounterGroup
	Derived             []DerivedChart

	overTime   map[Key]struct{}
	overBucket map[Key]struct{}
	grouped    map[Key]string // key -> group chart ID
}

// validate builds the lookup indices and rejects duplicate declarations.
// A key declared twice is a configuration error and fails at load, never at
// stream time.
func (c *Structured) validate() error {
	c.overTime = make(map[Key]struct{}, len(c.InstancesOverTime))
	c.overBucket = make(map[Key]struct{}, len(c.InstancesOverBucket))
	c.grouped = make(map[Key]string)

	for _, k := range c.InstancesOverTime {
		if _, dup := c.overTime[k]; dup {
			return fmt.Errorf("duplicate instances-over-time key %s", k.ChartID())
		}
		c.overTime[k] = struct{}{}
	}
	for _, k := range c.InstancesOverBucket {
		if _, dup := c.overBucket[k]; dup {
			return fmt.Errorf("duplicate instances-over-bucket key %s", k.ChartID())
		}
		if _, dup := c.overTime[k]; dup {
			return fmt.Errorf("key %s declared in both time and bucket buckets", k.ChartID())
		}
		c.overBucket[k] = struct{}{}
	}
	groupIDs := make(map[string]struct{}, len(c.CounterGroups))
	for _, g := range c.CounterGroups {
		if _, dup := groupIDs[g.ID]; dup {
			return fmt.Errorf("duplicate counter group %q", g.ID)
		}
		groupIDs[g.ID] = struct{}{}
		for _, counter := range g.Counters {
			k := Key{Object: g.Object, Counter: counter}
			if _, dup := c.grouped[k]; dup {
				return fmt.Errorf("counter %s declared in two groups", k.ChartID())
			}
			c.grouped[k] = g.ID
		}
	}
	derivedIDs := make(map[string]struct{}, len(c.Derived))
	for _, d := range c.Derived {
		if _, dup := derivedIDs[d.ID]; dup {
			return fmt.Errorf("duplicate derived chart %q", d.ID)
		}
		derivedIDs[d.ID] = struct{}{}
	}
	return nil
}

// LookupOverTime reports whether object/counter is an instances-over-time key.
func (c *Structured) LookupOverTime(object, counter string) (Key, bool) {
	k := Key{Object: object, Counter: counter}
	_, ok := c.overTime[k]
	return k, ok
}

// LookupOverBucket reports whether object/counter is a histogram key.
func (c *Structured) LookupOverBucket(object, counter string) (Key, bool) {
	k := Key{Object: object, Counter: counter}
	_, ok := c.overBucket[k]
	return k, ok
}

// LookupGroup returns the counters-over-time chart a counter contributes to.
func (c *Structured) LookupGroup(object, counter string) (string, bool) {
	id, ok := c.grouped[Key{Object: object, Counter: counter}]
	return id, ok
}

// mustValidate panics on an invalid built-in catalog. The built-ins are
// compile-time data; a duplicate there is a programming error.
func mustValidate(c *Structured) *Structured {
	if err := c.validate(); err != nil {
		panic(err)
	}
	return c
}

// NewStructured builds and validates a caller-supplied structured catalog.
func NewStructured(overTime, overBucket []Key, groups []CounterGroup, derived []DerivedChart) (*Structured, error) {
	c := &Structured{
		InstancesOverTime:   overTime,
		InstancesOverBucket: overBucket,
		CounterGroups:       groups,
		Derived:             derived,
	}
	if err := c.validate(); err != nil {
		return nil, err
	}
	return c, nil
}
