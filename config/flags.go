package config

import (
	"flag"
	"io"
)

// Flags command line options.
type Flags struct {
	ConfigPath string
	Setup      bool
}

// ParseFlags parses the command line. Without --config, config.yaml is used.
func ParseFlags(args []string, output io.Writer) (Flags, error) {
	fs := flag.NewFlagSet("whalewatch", flag.ContinueOnError)
	fs.SetOutput(output)

	var f Flags
	fs.StringVar(&f.ConfigPath, "config", "config.yaml", "path to yaml config")
	fs.BoolVar(&f.Setup, "setup", false, "run the interactive setup wizard and write the config")

	if err := fs.Parse(args); err != nil {
		return Flags{}, err
	}
	return f, nil
}
