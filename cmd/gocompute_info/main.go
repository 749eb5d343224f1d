// gocompute_info lists the devices of a compute backend with their attributes, and runs a small smoke test
// (write, fill, marker and read) on each of them in parallel.
//
// Usage:
//
//	gocompute_info [--backend=host] devices [--format=text|json|prototext]
//	gocompute_info [--backend=host] smoke [--size=1048576]
//
// Without a sub-command it lists the devices. klog flags (e.g. --v=2) are accepted too.
package main

import (
	goflag "flag"
	"fmt"
	"os"
	"strings"

	"github.com/gomlx/gocompute/backend"
	"github.com/gomlx/gocompute/compute"
	_ "github.com/gomlx/gocompute/host"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"k8s.io/klog/v2"
)

// BackendEnv is the environment variable with the default value of the --backend flag.
const BackendEnv = "GOCOMPUTE_BACKEND"

var flagBackend string

var rootCmd = &cobra.Command{
	Use:   "gocompute_info",
	Short: "Lists compute devices and checks their command queues",
	Long: `gocompute_info queries a registered compute backend: it lists its devices and
attributes, and can run a smoke test of the command queue on each device.`,
	SilenceUsage: true,
	RunE:         runDevices,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagBackend, "backend", defaultBackend(),
		fmt.Sprintf("Backend to query, one of the registered backends. Defaults to $%s, or %q.", BackendEnv, "host"))
}

func defaultBackend() string {
	if name := os.Getenv(BackendEnv); name != "" {
		return name
	}
	return "host"
}

// getBackend returns the backend selected with --backend.
func getBackend() (backend.Backend, error) {
	b, err := compute.GetBackend(flagBackend)
	if err != nil {
		return nil, errors.WithMessagef(err, "registered backends: %s", strings.Join(compute.Backends(), ", "))
	}
	return b, nil
}

func main() {
	klogFlags := goflag.NewFlagSet("klog", goflag.ExitOnError)
	klog.InitFlags(klogFlags)
	rootCmd.PersistentFlags().AddGoFlagSet(klogFlags)
	defer klog.Flush()
	if err := rootCmd.Execute(); err != nil {
		klog.Errorf("%+v", err)
		os.Exit(1)
	}
}
