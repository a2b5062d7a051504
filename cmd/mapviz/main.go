package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/seuros/geoviz/src/render"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	command := os.Args[1]
	args := os.Args[2:]

	var err error
	switch command {
	case "render":
		err = renderCommand(args)
	case "ping":
		err = pingCommand(args)
	case "metrics":
		err = metricsCommand(args)
	case "version", "--version", "-v":
		err = versionCommand()
	case "help", "--help", "-h":
		printUsage()
		return
	default:
		fmt.Printf("Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}

	if err != nil {
		var exitErr *exitError
		if errors.As(err, &exitErr) {
			if exitErr.Error() != "" {
				fmt.Fprintln(os.Stderr, exitErr.Error())
			}
			os.Exit(exitErr.code)
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("mapviz - geo visualization tool")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  mapviz render [flags]          - Fetch a dataset and render a visualization")
	fmt.Println("  mapviz ping [flags]            - Test render daemon connectivity")
	fmt.Println("  mapviz metrics [flags]         - Run a render with telemetry printed to stdout")
	fmt.Println("  mapviz version                 - Show version information")
	fmt.Println()
	fmt.Println("Render flags:")
	fmt.Println("  --base-url <url>               - Dashboard base URL (or set MAPVIZ_URL)")
	fmt.Println("  --daemon <host:port>           - Render daemon address (or set MAPVIZ_DAEMON; omit for dry run)")
	fmt.Println("  --data-type cdr|tower_dump|ipdr|sdr")
	fmt.Println("  --mode markers|clusters|heatmap|trajectory|geofence|timeline")
	fmt.Println("  --wkt <polygon>                - Geofence boundary (geofence mode)")
	fmt.Println("  --max-points <n>               - Display cap override")
	fmt.Println("  --bucket 1h                    - Timeline bucket width")
	fmt.Println("  --timeout 30s                  - Optional context timeout (default: none)")
}

func versionCommand() error {
	fmt.Printf("mapviz version %s\n", render.Version())
	return nil
}
