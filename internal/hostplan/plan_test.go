package hostplan

import "testing"

func TestComputeWorkstation(t *testing.T) {
	// 16 physical threads, dedicated GPU, NVMe disk.
	plan := Compute(HostProfile{
		CPUThreads:  16,
		SafeThreads: safeThreads(16),
		RAMGB:       32,
		DiskMBps:    2400,
		GPUMemMB:    8192,
	})

	if plan.ProcessCount != 6 {
		t.Fatalf("process count = %d, want 6", plan.ProcessCount)
	}
	if plan.SaveThreads != 2 || plan.LoadThreads != 1 {
		t.Fatalf("save/load = %d/%d, want 2/1", plan.SaveThreads, plan.LoadThreads)
	}
	// safe=13, 13/6-1 = 1, floored to 2.
	if plan.ProcThreads != 2 {
		t.Fatalf("proc threads = %d, want 2", plan.ProcThreads)
	}
	if plan.ThreadTriple != "1:2:2" {
		t.Fatalf("triple = %q, want 1:2:2", plan.ThreadTriple)
	}
}

func TestComputeSlowDiskForcesSingleWriter(t *testing.T) {
	plan := Compute(HostProfile{
		CPUThreads:  8,
		SafeThreads: safeThreads(8),
		RAMGB:       16,
		DiskMBps:    250,
		GPUMemMB:    0,
	})

	if plan.SaveThreads != 1 {
		t.Fatalf("save threads = %d, want 1", plan.SaveThreads)
	}
	if plan.LoadThreads != 1 {
		t.Fatalf("load threads = %d, want 1", plan.LoadThreads)
	}
}

func TestComputeGPUGate(t *testing.T) {
	base := HostProfile{CPUThreads: 24, SafeThreads: safeThreads(24), RAMGB: 64, DiskMBps: 3000}

	withGPU := base
	withGPU.GPUMemMB = 4096
	if got := Compute(withGPU).ProcessCount; got != 6 {
		t.Fatalf("process count with 4GB GPU = %d, want 6", got)
	}

	withoutGPU := base
	withoutGPU.GPUMemMB = 2048
	if got := Compute(withoutGPU).ProcessCount; got != 4 {
		t.Fatalf("process count with 2GB GPU = %d, want 4", got)
	}
}

func TestComputeBounds(t *testing.T) {
	for safe := 2; safe <= 64; safe++ {
		for _, gpu := range []int{0, 4096} {
			plan := Compute(HostProfile{
				CPUThreads:  safe,
				SafeThreads: safe,
				RAMGB:       16,
				DiskMBps:    1000,
				GPUMemMB:    gpu,
			})
			if plan.ProcessCount < 1 {
				t.Fatalf("safe=%d gpu=%d: process count %d < 1", safe, gpu, plan.ProcessCount)
			}
			if plan.ProcThreads < 2 || plan.ProcThreads > 8 {
				t.Fatalf("safe=%d gpu=%d: proc threads %d outside [2,8]", safe, gpu, plan.ProcThreads)
			}
		}
	}
}

func TestSafeThreadsFloor(t *testing.T) {
	cases := []struct {
		cpu  int
		want int
	}{
		{1, 2},
		{2, 2},
		{4, 3},
		{10, 8},
		{16, 13},
	}
	for _, c := range cases {
		if got := safeThreads(c.cpu); got != c.want {
			t.Errorf("safeThreads(%d) = %d, want %d", c.cpu, got, c.want)
		}
	}
}
