package cli

import (
	"flag"
	"fmt"
	"os"

	"framelift/internal/hostplan"
	"framelift/internal/logging"
)

func runPlan(args []string) error {
	fs := flag.NewFlagSet("plan", flag.ContinueOnError)
	logLevel := fs.String("log-level", "warn", "log level: debug|info|warn|error")
	jsonOut := fs.Bool("json", false, "print JSON output")
	fs.SetOutput(flag.CommandLine.Output())
	if err := fs.Parse(args); err != nil {
		return err
	}

	log := logging.New(*logLevel, os.Stderr)
	profile, err := hostplan.Probe(log)
	if err != nil {
		return err
	}
	plan := hostplan.Compute(profile)

	if *jsonOut {
		return printJSON(struct {
			Profile hostplan.HostProfile `json:"profile"`
			Plan    hostplan.Plan        `json:"plan"`
		}{profile, plan})
	}
	fmt.Printf("cpu_threads: %d\n", profile.CPUThreads)
	fmt.Printf("safe_threads: %d\n", profile.SafeThreads)
	fmt.Printf("ram_gb: %.1f\n", profile.RAMGB)
	fmt.Printf("disk_speed_mb_s: %.0f\n", profile.DiskMBps)
	fmt.Printf("gpu_mem_mb: %d\n", profile.GPUMemMB)
	fmt.Printf("process_count: %d\n", plan.ProcessCount)
	fmt.Printf("thread_triple: %s\n", plan.ThreadTriple)
	return nil
}
