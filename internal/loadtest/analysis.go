package loadtest

// AnalyzeResources derives peaks, averages and growth from a run's snapshots.
// Memory figures are process memory; CPU figures are host-wide.
func AnalyzeResources(snapshots []ResourceSnapshot) *ResourceAnalysis {
	out := &ResourceAnalysis{
		Snapshots:     snapshots,
		SnapshotCount: len(snapshots),
	}
	if len(snapshots) == 0 {
		out.Snapshots = []ResourceSnapshot{}
		return out
	}

	var cpuSum, memSum float64
	for _, s := range snapshots {
		cpuSum += s.CPUPercent
		memSum += float64(s.MemoryBytes)
		if s.CPUPercent > out.PeakCPUPercent {
			out.PeakCPUPercent = s.CPUPercent
		}
		if s.MemoryBytes > out.PeakMemoryBytes {
			out.PeakMemoryBytes = s.MemoryBytes
		}
		if s.MemoryPercent > out.PeakMemoryPercent {
			out.PeakMemoryPercent = s.MemoryPercent
		}
		if s.ActiveActorCount > out.MaxActiveActors {
			out.MaxActiveActors = s.ActiveActorCount
		}
	}
	n := float64(len(snapshots))
	out.AvgCPUPercent = cpuSum / n
	out.AvgMemoryBytes = memSum / n

	first := snapshots[0].MemoryBytes
	last := snapshots[len(snapshots)-1].MemoryBytes
	if first > 0 {
		out.MemoryGrowth = (float64(last) - float64(first)) / float64(first) * 100
	}
	return out
}
