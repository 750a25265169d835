package cli

import "fmt"

func Run(args []string) error {
	if len(args) == 0 {
		printRootUsage()
		return nil
	}

	switch args[0] {
	case "enhance":
		return runEnhance(args[1:])
	case "plan":
		return runPlan(args[1:])
	case "doctor":
		return runDoctor(args[1:])
	case "batches":
		return runBatches(args[1:])
	case "help", "-h", "--help":
		printRootUsage()
		return nil
	default:
		printRootUsage()
		return fmt.Errorf("unknown command %q", args[0])
	}
}

func printRootUsage() {
	fmt.Println("framelift: batch AI video enhancement orchestrator")
	fmt.Println()
	fmt.Println("Quick Start:")
	fmt.Println("  framelift doctor --settings settings.json")
	fmt.Println("  framelift plan")
	fmt.Println("  framelift enhance --input in.mp4 --output out.mp4 --work-dir work")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  enhance   run the full pipeline: extract, enhance, render, merge")
	fmt.Println("  plan      probe the host and print the derived concurrency plan")
	fmt.Println("  doctor    run dependency and filesystem preflight checks")
	fmt.Println("  batches   count or clean batch frame directories")
	fmt.Println()
	fmt.Println("Run 'framelift <command> -h' for command flags.")
}
