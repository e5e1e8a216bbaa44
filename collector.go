// Copyright 2026 The Gravel Authors. All rights reserved. Use of this source
// code is governed by a BSD-style license that can be found in the LICENSE
// file.

package gravel

import (
	"strconv"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// gaugeProperties are the integer properties the collector republishes as
// gauges, resolved through the same registry as every other caller.
var gaugeProperties = []struct {
	metric string
	help   string
	prop   string
}{
	{"gravel_memtable_active_size_bytes", "Approximate memory used by the active memtable.", PropertyPrefix + "cur-size-active-mem-table"},
	{"gravel_memtable_total_size_bytes", "Approximate memory used by active and immutable memtables.", PropertyPrefix + "cur-size-all-mem-tables"},
	{"gravel_immutable_memtables", "Number of immutable memtables awaiting flush.", PropertyPrefix + "num-immutable-mem-table"},
	{"gravel_memtable_flush_pending", "Whether an immutable memtable is ready to flush.", PropertyPrefix + "mem-table-flush-pending"},
	{"gravel_compaction_pending", "Whether the picker has determined a compaction is needed.", PropertyPrefix + "compaction-pending"},
	{"gravel_estimated_keys", "Estimated number of live keys in the column family.", PropertyPrefix + "estimate-num-keys"},
	{"gravel_snapshots_open", "Number of open read snapshots.", PropertyPrefix + "num-snapshots"},
	{"gravel_live_versions", "Number of live, referenced versions.", PropertyPrefix + "num-live-versions"},
}

// MetricsCollector republishes the accumulated statistics as Prometheus
// metrics. It is a caller of the statistics subsystem, not part of it:
// Collect acquires the engine mutex for the duration of the scrape, which
// is acceptable because every read is a counter load.
type MetricsCollector struct {
	stats *InternalStats
	mu    *sync.Mutex
	env   Env

	compactionBytesRead    *prometheus.Desc
	compactionBytesWritten *prometheus.Desc
	compactionBytesMoved   *prometheus.Desc
	compactionSeconds      *prometheus.Desc
	compactions            *prometheus.Desc
	levelSizeBytes         *prometheus.Desc
	levelFiles             *prometheus.Desc
	stallSeconds           *prometheus.Desc
	stalls                 *prometheus.Desc
	writes                 *prometheus.Desc
	keysWritten            *prometheus.Desc
	userBytesWritten       *prometheus.Desc
	flushedBytes           *prometheus.Desc
	walBytes               *prometheus.Desc
	walSyncs               *prometheus.Desc
	backgroundErrors       *prometheus.Desc
	gauges                 []*prometheus.Desc
}

var _ prometheus.Collector = (*MetricsCollector)(nil)

// NewMetricsCollector returns a collector over stats. mu is the engine
// mutex guarding the counters; env provides the collaborators backing the
// gauge properties.
func NewMetricsCollector(stats *InternalStats, mu *sync.Mutex, env Env) *MetricsCollector {
	c := &MetricsCollector{
		stats: stats,
		mu:    mu,
		env:   env,
		compactionBytesRead: prometheus.NewDesc(
			"gravel_compaction_bytes_read_total",
			"Bytes read by compactions, by input level and source level.",
			[]string{"level", "source"}, nil),
		compactionBytesWritten: prometheus.NewDesc(
			"gravel_compaction_bytes_written_total",
			"Bytes written by compactions, by input level.",
			[]string{"level"}, nil),
		compactionBytesMoved: prometheus.NewDesc(
			"gravel_compaction_bytes_moved_total",
			"Bytes trivially moved between levels, by input level.",
			[]string{"level"}, nil),
		compactionSeconds: prometheus.NewDesc(
			"gravel_compaction_seconds_total",
			"Wall-clock seconds spent compacting, by input level.",
			[]string{"level"}, nil),
		compactions: prometheus.NewDesc(
			"gravel_compactions_total",
			"Number of compactions, by input level.",
			[]string{"level"}, nil),
		levelSizeBytes: prometheus.NewDesc(
			"gravel_level_size_bytes",
			"Cumulative size of the tables in each level.",
			[]string{"level"}, nil),
		levelFiles: prometheus.NewDesc(
			"gravel_level_files",
			"Number of table files in each level.",
			[]string{"level"}, nil),
		stallSeconds: prometheus.NewDesc(
			"gravel_write_stall_seconds_total",
			"Seconds foreground writes spent stalled, by reason.",
			[]string{"reason"}, nil),
		stalls: prometheus.NewDesc(
			"gravel_write_stalls_total",
			"Number of write stalls, by reason.",
			[]string{"reason"}, nil),
		writes: prometheus.NewDesc(
			"gravel_writes_total",
			"Number of write requests.", nil, nil),
		keysWritten: prometheus.NewDesc(
			"gravel_keys_written_total",
			"Number of key updates issued by write requests.", nil, nil),
		userBytesWritten: prometheus.NewDesc(
			"gravel_user_bytes_written_total",
			"User bytes ingested by writes.", nil, nil),
		flushedBytes: prometheus.NewDesc(
			"gravel_flushed_bytes_total",
			"Bytes flushed from memtables into level 0.", nil, nil),
		walBytes: prometheus.NewDesc(
			"gravel_wal_bytes_total",
			"Bytes written to the WAL.", nil, nil),
		walSyncs: prometheus.NewDesc(
			"gravel_wal_syncs_total",
			"Number of WAL sync operations.", nil, nil),
		backgroundErrors: prometheus.NewDesc(
			"gravel_background_errors_total",
			"Accumulated background flush and compaction errors.", nil, nil),
	}
	for _, g := range gaugeProperties {
		c.gauges = append(c.gauges,
			prometheus.NewDesc(g.metric, g.help, nil, nil))
	}
	return c
}

// Describe implements prometheus.Collector.
func (c *MetricsCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.compactionBytesRead
	ch <- c.compactionBytesWritten
	ch <- c.compactionBytesMoved
	ch <- c.compactionSeconds
	ch <- c.compactions
	ch <- c.levelSizeBytes
	ch <- c.levelFiles
	ch <- c.stallSeconds
	ch <- c.stalls
	ch <- c.writes
	ch <- c.keysWritten
	ch <- c.userBytesWritten
	ch <- c.flushedBytes
	ch <- c.walBytes
	ch <- c.walSyncs
	ch <- c.backgroundErrors
	for _, d := range c.gauges {
		ch <- d
	}
}

// Collect implements prometheus.Collector.
func (c *MetricsCollector) Collect(ch chan<- prometheus.Metric) {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := c.stats
	current := c.env.Versions.Current()
	for level := 0; level < s.numLevels; level++ {
		l := strconv.Itoa(level)
		cs := s.compStats[level]
		ch <- prometheus.MustNewConstMetric(c.compactionBytesRead,
			prometheus.CounterValue, float64(cs.BytesRead), l, "level")
		ch <- prometheus.MustNewConstMetric(c.compactionBytesRead,
			prometheus.CounterValue, float64(cs.BytesReadNextLevel), l, "next-level")
		ch <- prometheus.MustNewConstMetric(c.compactionBytesWritten,
			prometheus.CounterValue, float64(cs.BytesWritten), l)
		ch <- prometheus.MustNewConstMetric(c.compactionBytesMoved,
			prometheus.CounterValue, float64(cs.BytesMoved), l)
		ch <- prometheus.MustNewConstMetric(c.compactionSeconds,
			prometheus.CounterValue, float64(cs.Micros)/1e6, l)
		ch <- prometheus.MustNewConstMetric(c.compactions,
			prometheus.CounterValue, float64(cs.Count), l)
		ch <- prometheus.MustNewConstMetric(c.levelSizeBytes,
			prometheus.GaugeValue, float64(current.Levels[level].Size()), l)
		ch <- prometheus.MustNewConstMetric(c.levelFiles,
			prometheus.GaugeValue, float64(current.Levels[level].Len()), l)
	}

	for r := StallLevel0Slowdown; r < numStallReasons; r++ {
		var sc stallCounters
		if r.PerLevel() {
			// The per-level reasons are summed across levels, matching the
			// stall summary block of the text report.
			perLevel := s.stallSoft
			if r == StallLevelSlowdownHard {
				perLevel = s.stallHard
			}
			for level := range perLevel {
				sc.add(perLevel[level])
			}
		} else {
			sc = s.stall[r]
		}
		ch <- prometheus.MustNewConstMetric(c.stallSeconds,
			prometheus.CounterValue, float64(sc.micros)/1e6, r.String())
		ch <- prometheus.MustNewConstMetric(c.stalls,
			prometheus.CounterValue, float64(sc.count), r.String())
	}

	db := &s.DB
	ch <- prometheus.MustNewConstMetric(c.writes,
		prometheus.CounterValue, float64(db.WriteDoneBySelf+db.WriteDoneByOther))
	ch <- prometheus.MustNewConstMetric(c.keysWritten,
		prometheus.CounterValue, float64(db.NumKeysWritten))
	ch <- prometheus.MustNewConstMetric(c.userBytesWritten,
		prometheus.CounterValue, float64(db.BytesWritten))
	ch <- prometheus.MustNewConstMetric(c.flushedBytes,
		prometheus.CounterValue, float64(s.flushBytes))
	ch <- prometheus.MustNewConstMetric(c.walBytes,
		prometheus.CounterValue, float64(db.WALBytes))
	ch <- prometheus.MustNewConstMetric(c.walSyncs,
		prometheus.CounterValue, float64(db.WALSynced))
	ch <- prometheus.MustNewConstMetric(c.backgroundErrors,
		prometheus.CounterValue, float64(s.backgroundErrors))

	for i, g := range gaugeProperties {
		p, ok := ResolveProperty(g.prop, s.numLevels)
		if !ok {
			continue
		}
		if v, ok := s.GetIntProperty(p, c.env); ok {
			ch <- prometheus.MustNewConstMetric(c.gauges[i],
				prometheus.GaugeValue, float64(v))
		}
	}
}
