package main

import (
	"bytes"
	"fmt"

	"github.com/gomlx/gocompute/backend"
	"github.com/gomlx/gocompute/compute"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"k8s.io/klog/v2"
)

var flagSize int

var smokeCmd = &cobra.Command{
	Use:   "smoke",
	Short: "Run a smoke test of the command queue on every device, in parallel",
	Args:  cobra.NoArgs,
	RunE:  runSmoke,
}

func init() {
	smokeCmd.Flags().IntVar(&flagSize, "size", 1<<20, "Size in bytes of the buffer used by the smoke test")
	rootCmd.AddCommand(smokeCmd)
}

func runSmoke(cmd *cobra.Command, _ []string) error {
	if flagSize <= 0 {
		return errors.Errorf("--size must be positive, got %d", flagSize)
	}
	b, err := getBackend()
	if err != nil {
		return err
	}
	devices, err := compute.Devices(b)
	if err != nil {
		return err
	}
	var g errgroup.Group
	results := make([]string, len(devices))
	for ii, device := range devices {
		g.Go(func() error {
			if err := smokeTest(b, device, flagSize); err != nil {
				return errors.WithMessagef(err, "device #%d (%s)", ii, device)
			}
			results[ii] = fmt.Sprintf("#%d: %s: ok", ii, device)
			return nil
		})
	}
	err = g.Wait()
	for _, result := range results {
		if result != "" {
			fmt.Fprintln(cmd.OutOrStdout(), result)
		}
	}
	return err
}

// smokeTest writes a pattern to a buffer, overwrites its first half with a fill (if the device supports it),
// and reads it back after a marker.
func smokeTest(b backend.Backend, device *compute.Device, size int) error {
	ctx, err := compute.NewContext(b, device)
	if err != nil {
		return err
	}
	defer ctx.Release()
	q, err := ctx.NewCommandQueue(device).WithProfiling().Done()
	if err != nil {
		return err
	}
	defer q.Release()
	buf, err := ctx.NewBuffer(size).Done()
	if err != nil {
		return err
	}
	defer buf.Release()

	src := make([]byte, size)
	for ii := range src {
		src[ii] = byte(ii)
	}
	write, err := q.EnqueueWriteBufferAsync(buf, 0, src)
	if err != nil {
		return err
	}
	defer write.Release()

	want := bytes.Clone(src)
	half := size / 2
	fill, err := q.Supports(compute.FeatureFillBuffer)
	if err != nil {
		return err
	}
	if fill && half > 0 {
		if err := q.EnqueueFillBuffer(buf, []byte{0xFF}, 0, half); err != nil {
			return err
		}
		for ii := range half {
			want[ii] = 0xFF
		}
	}
	marker, err := q.EnqueueMarker()
	if err != nil {
		return err
	}
	defer marker.Release()
	dst := make([]byte, size)
	if err := q.EnqueueReadBuffer(buf, 0, dst, marker); err != nil {
		return err
	}
	if !bytes.Equal(want, dst) {
		return errors.New("buffer read back doesn't match what was written")
	}
	if duration, err := write.Duration(); err == nil {
		klog.V(1).Infof("%s: write of %d bytes took %s", device, size, duration)
	}
	return nil
}
