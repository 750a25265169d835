package hostplan

import "fmt"

// Plan is the concurrency plan derived from a HostProfile. ThreadTriple is
// the external tool's own load:proc:save concurrency flag, passed through
// verbatim and never interpreted here.
type Plan struct {
	ProcessCount int    `json:"process_count"`
	LoadThreads  int    `json:"load_threads"`
	ProcThreads  int    `json:"proc_threads"`
	SaveThreads  int    `json:"save_threads"`
	ThreadTriple string `json:"thread_triple"`
}

// Compute derives the plan. Hosts with at least 12 safe threads and 4 GB of
// GPU memory run six tool processes; everything else runs at most four,
// never fewer than one.
func Compute(p HostProfile) Plan {
	processes := processCount(p)
	save := saveThreads(p.DiskMBps)
	load := save - 1
	if load < 1 {
		load = 1
	}
	proc := procThreads(p.SafeThreads, processes)

	return Plan{
		ProcessCount: processes,
		LoadThreads:  load,
		ProcThreads:  proc,
		SaveThreads:  save,
		ThreadTriple: fmt.Sprintf("%d:%d:%d", load, proc, save),
	}
}

func processCount(p HostProfile) int {
	if p.SafeThreads >= 12 && p.GPUMemMB >= 4096 {
		return 6
	}
	n := p.SafeThreads / 2
	if n > 4 {
		n = 4
	}
	if n < 1 {
		n = 1
	}
	return n
}

func saveThreads(diskMBps float64) int {
	// NVMe-class and SATA SSDs both sustain two writers; spinning disks
	// thrash with more than one.
	if diskMBps >= 500 {
		return 2
	}
	return 1
}

func procThreads(safeThreads, processes int) int {
	if processes < 1 {
		processes = 1
	}
	n := safeThreads/processes - 1
	if n < 2 {
		n = 2
	}
	if n > 8 {
		n = 8
	}
	return n
}
