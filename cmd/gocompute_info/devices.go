package main

import (
	"fmt"

	"github.com/gomlx/gocompute/compute"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/encoding/prototext"
)

var flagFormat string

var devicesCmd = &cobra.Command{
	Use:   "devices",
	Short: "List the devices of the backend and their attributes",
	Args:  cobra.NoArgs,
	RunE:  runDevices,
}

func init() {
	// The root command lists the devices too, so it takes the same flag.
	for _, flags := range []*pflag.FlagSet{rootCmd.Flags(), devicesCmd.Flags()} {
		flags.StringVar(&flagFormat, "format", "text", "Output format of the attributes: text, json or prototext")
	}
	rootCmd.AddCommand(devicesCmd)
}

func runDevices(cmd *cobra.Command, _ []string) error {
	b, err := getBackend()
	if err != nil {
		return err
	}
	devices, err := compute.Devices(b)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Backend %q: %d device(s)\n", b.Name(), len(devices))
	for ii, device := range devices {
		attrs, err := device.Attributes()
		if err != nil {
			return errors.WithMessagef(err, "device #%d", ii)
		}
		fmt.Fprintf(out, "\n#%d: %s\n", ii, device)
		text, err := formatAttributes(attrs, flagFormat)
		if err != nil {
			return err
		}
		fmt.Fprint(out, text)
	}
	return nil
}

func formatAttributes(attrs compute.NamedValuesMap, format string) (string, error) {
	switch format {
	case "text":
		var text string
		for _, key := range attrs.Keys() {
			text += fmt.Sprintf("\t%s: %v\n", key, attrs[key])
		}
		return text, nil
	case "json", "prototext":
		s, err := attrs.ToStruct()
		if err != nil {
			return "", err
		}
		var encoded []byte
		if format == "json" {
			encoded, err = protojson.MarshalOptions{Multiline: true, Indent: "  "}.Marshal(s)
		} else {
			encoded, err = prototext.MarshalOptions{Multiline: true, Indent: "  "}.Marshal(s)
		}
		if err != nil {
			return "", errors.Wrapf(err, "failed to marshal attributes to %s", format)
		}
		return string(encoded) + "\n", nil
	}
	return "", errors.Errorf("unknown --format=%q, valid values are text, json and prototext", format)
}
