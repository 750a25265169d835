package cli

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"framelift/internal/aitool"
	"framelift/internal/config"
	"framelift/internal/ffmpegcli"
	"framelift/internal/hostplan"
	"framelift/internal/logging"
)

type DoctorResult struct {
	OK     bool          `json:"ok"`
	Checks []DoctorCheck `json:"checks"`
}

type DoctorCheck struct {
	Name    string `json:"name"`
	OK      bool   `json:"ok"`
	Message string `json:"message"`
}

func runDoctor(args []string) error {
	fs := flag.NewFlagSet("doctor", flag.ContinueOnError)
	settingsPath := fs.String("settings", "settings.json", "settings file path")
	workDir := fs.String("work-dir", "", "working directory to verify")
	jsonOut := fs.Bool("json", false, "print JSON output")
	fs.SetOutput(flag.CommandLine.Output())
	if err := fs.Parse(args); err != nil {
		return err
	}

	settings, err := config.Load(*settingsPath)
	if err != nil {
		return err
	}
	if strings.TrimSpace(*workDir) != "" {
		settings.WorkDir = *workDir
	}

	result := doctor(settings)
	if *jsonOut {
		if err := printJSON(result); err != nil {
			return err
		}
	} else {
		for _, c := range result.Checks {
			status := "ok"
			if !c.OK {
				status = "FAIL"
			}
			fmt.Printf("%-28s %-4s %s\n", c.Name, status, c.Message)
		}
	}
	if !result.OK {
		return fmt.Errorf("doctor found problems")
	}
	return nil
}

func doctor(settings config.Settings) DoctorResult {
	checks := make([]DoctorCheck, 0, 8)

	dep := ffmpegcli.DependencyStatus()
	checks = append(checks,
		DoctorCheck{Name: "dependency:ffmpeg", OK: dep.FFmpegFound, Message: dependencyMessage(dep.FFmpegFound, dep.FFmpegPath, "ffmpeg")},
		DoctorCheck{Name: "dependency:ffprobe", OK: dep.FFprobeFound, Message: dependencyMessage(dep.FFprobeFound, dep.FFprobePath, "ffprobe")},
	)

	stageTools := []struct {
		name  string
		stage config.StageSettings
	}{
		{"denoise", settings.Denoise},
		{"upscale", settings.Upscale},
		{"interpolate", settings.Interpolate},
	}
	for _, st := range stageTools {
		if !st.stage.Enabled {
			continue
		}
		err := aitool.CheckTool(st.stage.ToolPath)
		check := DoctorCheck{Name: "tool:" + st.name, OK: err == nil}
		if err != nil {
			check.Message = err.Error()
		} else {
			check.Message = st.stage.ToolPath
		}
		checks = append(checks, check)
	}

	if strings.TrimSpace(settings.WorkDir) != "" {
		ok, msg := ensureWritableDir(settings.WorkDir)
		checks = append(checks, DoctorCheck{Name: "directory:work", OK: ok, Message: msg})
	}

	log := logging.New("error", os.Stderr)
	profile, err := hostplan.Probe(log)
	hostCheck := DoctorCheck{Name: "host:resources", OK: err == nil}
	if err != nil {
		hostCheck.Message = err.Error()
	} else {
		hostCheck.Message = fmt.Sprintf("%d threads, %.1f GB RAM, %.0f MB/s disk, %d MB GPU",
			profile.CPUThreads, profile.RAMGB, profile.DiskMBps, profile.GPUMemMB)
	}
	checks = append(checks, hostCheck)

	ok := true
	for _, c := range checks {
		if !c.OK {
			ok = false
			break
		}
	}
	return DoctorResult{OK: ok, Checks: checks}
}

func dependencyMessage(found bool, path, name string) string {
	if found {
		return path
	}
	return name + " not found on PATH"
}

func ensureWritableDir(dir string) (bool, string) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return false, err.Error()
	}
	probe := filepath.Join(dir, ".framelift-doctor")
	if err := os.WriteFile(probe, []byte("ok"), 0o644); err != nil {
		return false, err.Error()
	}
	_ = os.Remove(probe)
	return true, dir
}
