package catalog

// Built-in catalogs for the supported source formats. The raw key names are
// the counter names as the storage controllers write them; they are not
// invented here and must not be "cleaned up".

// PerIteration lists the requested counters per line-oriented object kind.
// Order matters twice: aspects are tried in order against each counter line,
// and chart metadata is emitted in declaration order.
type PerIteration struct {
	Objects  []string            // declaration order of object kinds
	Aspects  map[string][]Aspect // object kind -> requested aspects
	LunAlign Aspect              // histogram special case, eight buckets per lun
}

// Lookup returns the aspect requested for an object kind's counter.
func (p *PerIteration) Lookup(object, counter string) (Aspect, bool) {
	for _, a := range p.Aspects[object] {
		if a.Name == counter {
			return a, true
		}
	}
	return Aspect{}, false
}

// Perfstat returns the per-iteration catalog of the line-oriented format.
func Perfstat() *PerIteration {
	return &PerIteration{
		Objects: []string{"aggregate", "processor", "volume", "lun"},
		Aspects: map[string][]Aspect{
			"aggregate": {
				{Name: "total_transfers", Unit: "/s", Scale: 1, DisplayUnit: "/s"},
			},
			"processor": {
				{Name: "processor_busy", Unit: "%", Scale: 1, DisplayUnit: "%"},
			},
			"volume": {
				{Name: "read_ops", Unit: "/s", Scale: 1, DisplayUnit: "/s"},
				{Name: "write_ops", Unit: "/s", Scale: 1, DisplayUnit: "/s"},
				{Name: "other_ops", Unit: "/s", Scale: 1, DisplayUnit: "/s"},
				{Name: "total_ops", Unit: "/s", Scale: 1, DisplayUnit: "/s"},
				{Name: "avg_latency", Unit: "us", Scale: 1, DisplayUnit: "us"},
				// raw b/s is unreadable at storage scale; charts show MB/s
				{Name: "read_data", Unit: "b/s", Scale: 1e6, DisplayUnit: "MB/s"},
				{Name: "write_data", Unit: "b/s", Scale: 1e6, DisplayUnit: "MB/s"},
			},
			"lun": {
				{Name: "total_ops", Unit: "/s", Scale: 1, DisplayUnit: "/s"},
				{Name: "avg_latency", Unit: "ms", Scale: 1, DisplayUnit: "ms"},
				{Name: "read_data", Unit: "b/s", Scale: 1e6, DisplayUnit: "MB/s"},
			},
		},
		LunAlign: Aspect{Name: "read_align_histo", Unit: "%", Scale: 1, DisplayUnit: "%"},
	}
}

// SysstatColumn is a composite key into the two-line sysstat header: the
// token expected in the category line and the sub-label expected right
// beneath its end in the second line. A blank Lower means the category token
// stands alone. Paired names a second sub-label whose value sits in the
// immediately following column; the sysstat format gives no way to match it
// from the header alone.
type SysstatColumn struct {
	Upper  string
	Lower  string
	Paired string
}

// SysstatGroup is one chart built from a sysstat block: a unit plus the
// composite keys of every column drawn into it.
type SysstatGroup struct {
	ID      string
	Unit    string
	Scale   float64 // divides raw values before recording
	Columns []SysstatColumn
}

// Sysstat returns the three chart groups extracted from sysstat_x_1sec
// blocks. Duplicate composite keys within a group are rejected at startup.
func Sysstat() ([]SysstatGroup, error) {
	groups := []SysstatGroup{
		{
			ID:    "sysstat_1sec:percent",
			Unit:  "%",
			Scale: 1,
			Columns: []SysstatColumn{
				{Upper: "CPU"},
				{Upper: "Disk", Lower: "util"},
				{Upper: "HDD", Lower: "util"},
				{Upper: "SSD", Lower: "util"},
			},
		},
		{
			ID:    "sysstat_1sec:MBs",
			Unit:  "MB/s",
			Scale: 1000, // raw columns are kB/s
			Columns: []SysstatColumn{
				{Upper: "Net", Lower: "in", Paired: "out"},
				{Upper: "FCP", Lower: "in", Paired: "out"},
				{Upper: "Disk", Lower: "read", Paired: "write"},
				{Upper: "HDD", Lower: "read", Paired: "write"},
				{Upper: "SSD", Lower: "read", Paired: "write"},
			},
		},
		{
			ID:    "sysstat_1sec:IOPS",
			Unit:  " ",
			Scale: 1,
			Columns: []SysstatColumn{
				{Upper: "NFS"},
				{Upper: "CIFS"},
				{Upper: "FCP"},
				{Upper: "iSCSI"},
			},
		},
	}
	for _, g := range groups {
		seen := make(map[SysstatColumn]struct{}, len(g.Columns))
		for _, col := range g.Columns {
			if _, dup := seen[col]; dup {
				return nil, duplicateColumnError(g.ID, col)
			}
			seen[col] = struct{}{}
		}
	}
	return groups, nil
}

func duplicateColumnError(group string, col SysstatColumn) error {
	return &DuplicateKeyError{Group: group, Upper: col.Upper, Lower: col.Lower}
}

// DuplicateKeyError reports a composite key declared twice in one group.
type DuplicateKeyError struct {
	Group string
	Upper string
	Lower string
}

func (e *DuplicateKeyError) Error() string {
	return "duplicate sysstat key " + e.Upper + "/" + e.Lower + " in group " + e.Group
}

// ASUPXML returns the catalog for cluster-mode ASUP XML archives.
func ASUPXML() *Structured {
	return mustValidate(&Structured{
		InstancesOverTime: []Key{
			{"aggregate", "total_transfers"},
			{"ext_cache_obj", "hya_reads_replaced"},
			{"processor", "processor_busy"},
			{"disk:constituent", "disk_busy"},
			{"volume", "total_ops"},
			{"volume", "avg_latency"},
			{"volume", "read_data"},
			{"volume", "write_data"},
			{"lun:constituent", "total_ops"},
			{"lun:constituent", "avg_latency"},
			{"lun:constituent", "read_data"},
		},
		InstancesOverBucket: []Key{
			{"lun:constituent", "read_align_histo"},
		},
		CounterGroups: []CounterGroup{
			{
				ID:     "bandwidth",
				Object: "system:constituent",
				Counters: []string{
					"hdd_data_read", "hdd_data_written", "net_data_recv",
					"net_data_sent", "ssd_data_read", "ssd_data_written",
					"fcp_data_recv", "fcp_data_sent", "tape_data_read",
					"tape_data_written",
				},
			},
			{
				ID:       "IOPS",
				Object:   "system:constituent",
				Counters: []string{"nfs_ops", "cifs_ops", "fcp_ops", "iscsi_ops", "other_ops"},
			},
			{
				ID:       "fragmentation",
				Object:   "raid",
				Counters: []string{"partial_stripes", "full_stripes"},
			},
		},
		Derived: []DerivedChart{
			{
				ID:          "volume:write_read_ratio",
				Unit:        "ratio",
				Numerator:   "volume:write_data",
				Denominator: "volume:read_data",
			},
		},
	})
}

// ASUPJSON returns the catalog for the per-record JSON export. Same charts as
// the XML archive, but the exporter writes plain object names without the
// ":constituent" suffix.
func ASUPJSON() *Structured {
	return mustValidate(&Structured{
		InstancesOverTime: []Key{
			{"aggregate", "total_transfers"},
			{"ext_cache_obj", "hya_reads_replaced"},
			{"processor", "processor_busy"},
			{"disk", "disk_busy"},
			{"volume", "total_ops"},
			{"volume", "avg_latency"},
			{"volume", "read_data"},
			{"volume", "write_data"},
			{"lun", "total_ops"},
			{"lun", "avg_latency"},
			{"lun", "read_data"},
		},
		InstancesOverBucket: []Key{
			{"lun", "read_align_histo"},
		},
		CounterGroups: []CounterGroup{
			{
				ID:     "bandwidth",
				Object: "system",
				Counters: []string{
					"hdd_data_read", "hdd_data_written", "net_data_recv",
					"net_data_sent", "ssd_data_read", "ssd_data_written",
					"fcp_data_recv", "fcp_data_sent", "tape_data_read",
					"tape_data_written",
				},
			},
			{
				ID:       "IOPS",
				Object:   "system",
				Counters: []string{"nfs_ops", "cifs_ops", "fcp_ops", "iscsi_ops", "other_ops"},
			},
			{
				ID:       "fragmentation",
				Object:   "raid",
				Counters: []string{"partial_stripes", "full_stripes"},
			},
		},
		Derived: []DerivedChart{
			{
				ID:          "volume:write_read_ratio",
				Unit:        "ratio",
				Numerator:   "volume:write_data",
				Denominator: "volume:read_data",
			},
		},
	})
}

// ASUPHDF5 returns the catalog for the binary-table export. Same keys as the
// JSON export, but the tables declare neither units nor bases, so no derived
// charts are possible.
func ASUPHDF5() *Structured {
	return mustValidate(&Structured{
		InstancesOverTime: []Key{
			{"aggregate", "total_transfers"},
			{"ext_cache_obj", "hya_reads_replaced"},
			{"processor", "processor_busy"},
			{"disk", "disk_busy"},
			{"volume", "total_ops"},
			{"volume", "avg_latency"},
			{"volume", "read_data"},
			{"volume", "write_data"},
			{"lun", "total_ops"},
			{"lun", "avg_latency"},
			{"lun", "read_data"},
		},
		InstancesOverBucket: []Key{
			{"lun", "read_align_histo"},
		},
		CounterGroups: []CounterGroup{
			{
				ID:     "bandwidth",
				Object: "system",
				Counters: []string{
					"hdd_data_read", "hdd_data_written", "net_data_recv",
					"net_data_sent", "ssd_data_read", "ssd_data_written",
					"fcp_data_recv", "fcp_data_sent", "tape_data_read",
					"tape_data_written",
				},
			},
			{
				ID:       "IOPS",
				Object:   "system",
				Counters: []string{"nfs_ops", "cifs_ops", "fcp_ops", "iscsi_ops", "other_ops"},
			},
			{
				ID:       "fragmentation",
				Object:   "raid",
				Counters: []string{"partial_stripes", "full_stripes"},
			},
		},
	})
}

// Legacy7Mode returns the catalog for the deprecated 7-mode XML export. The
// format is no longer produced by supported controllers; the catalog is kept
// so old bundles still render.
func Legacy7Mode() *Structured {
	return mustValidate(&Structured{
		InstancesOverTime: []Key{
			{"aggregate", "total_transfers"},
			{"processor", "processor_busy"},
			{"volume", "total_ops"},
			{"volume", "avg_latency"},
			{"volume", "read_data"},
			{"lun", "total_ops"},
			{"lun", "avg_latency"},
			{"lun", "read_data"},
		},
	})
}
