package graph

import "time"

// ---------------------------------------------------------------------------
// Time and TimeSpan clusters
// ---------------------------------------------------------------------------

// A Time cluster has meaning Time and children
// [year, month, day, hour, minute, second]; a TimeSpan cluster has meaning
// TimeSpan and children [days, hours, minutes, seconds]. All are ints and
// times are interpreted in UTC.

// IsTimeCluster reports whether n is a Time cluster.
func IsTimeCluster(n *Neuron) bool {
	return n != nil && n.HasMeaning(Time)
}

// IsTimeSpanCluster reports whether n is a TimeSpan cluster.
func IsTimeSpanCluster(n *Neuron) bool {
	return n != nil && n.HasMeaning(TimeSpan)
}

func clusterInts(n *Neuron, want int) ([]int64, bool) {
	c, ok := n.Cluster()
	if !ok {
		return nil, false
	}
	children := c.Children()
	if len(children) != want {
		return nil, false
	}
	out := make([]int64, want)
	for i, ch := range children {
		v, ok := ch.Int()
		if !ok {
			return nil, false
		}
		out[i] = v
	}
	return out, true
}

// ClusterTime decodes a Time cluster.
func ClusterTime(n *Neuron) (time.Time, bool) {
	if !IsTimeCluster(n) {
		return time.Time{}, false
	}
	v, ok := clusterInts(n, 6)
	if !ok {
		return time.Time{}, false
	}
	return time.Date(int(v[0]), time.Month(v[1]), int(v[2]), int(v[3]), int(v[4]), int(v[5]), 0, time.UTC), true
}

// ClusterSpan decodes a TimeSpan cluster.
func ClusterSpan(n *Neuron) (time.Duration, bool) {
	if !IsTimeSpanCluster(n) {
		return 0, false
	}
	v, ok := clusterInts(n, 4)
	if !ok {
		return 0, false
	}
	d := time.Duration(v[0])*24*time.Hour +
		time.Duration(v[1])*time.Hour +
		time.Duration(v[2])*time.Minute +
		time.Duration(v[3])*time.Second
	return d, true
}

func timeParts(t time.Time) []int64 {
	t = t.UTC()
	return []int64{int64(t.Year()), int64(t.Month()), int64(t.Day()), int64(t.Hour()), int64(t.Minute()), int64(t.Second())}
}

func spanParts(d time.Duration) []int64 {
	total := int64(d / time.Second)
	days := total / 86400
	total -= days * 86400
	hours := total / 3600
	total -= hours * 3600
	minutes := total / 60
	return []int64{days, hours, minutes, total - minutes*60}
}

// TempTime builds a temporary Time cluster.
func (b *Brain) TempTime(t time.Time) *Neuron {
	parts := timeParts(t)
	children := make([]*Neuron, len(parts))
	for i, p := range parts {
		children[i] = b.TempInt(p)
	}
	return b.TempCluster(Time, children...)
}

// TempSpan builds a temporary TimeSpan cluster.
func (b *Brain) TempSpan(d time.Duration) *Neuron {
	parts := spanParts(d)
	children := make([]*Neuron, len(parts))
	for i, p := range parts {
		children[i] = b.TempInt(p)
	}
	return b.TempCluster(TimeSpan, children...)
}

// NewTime builds a durable Time cluster.
func (b *Brain) NewTime(t time.Time) *Neuron {
	return b.Add(b.TempTime(t))
}

// NewSpan builds a durable TimeSpan cluster.
func (b *Brain) NewSpan(d time.Duration) *Neuron {
	return b.Add(b.TempSpan(d))
}
