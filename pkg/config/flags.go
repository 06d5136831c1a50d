package config

import (
	"sort"

	"github.com/xplshn/glisp/pkg/cli"
)

// SetupFlagGroups registers the -W and -F switches on fs. The defaults shown
// in the help page are the current settings of c.
func (c *Config) SetupFlagGroups(fs *cli.FlagSet) {
	var wAll, wNoAll bool
	fs.Bool(&wAll, "Wall", "", false, "Enable all warnings")
	fs.Bool(&wNoAll, "Wno-all", "", false, "Disable all warnings")

	var warningEntries []cli.FlagGroupEntry
	for i := Warning(0); i < WarnCount; i++ {
		info := c.Warnings[i]
		enabled, disabled := info.Enabled, false
		warningEntries = append(warningEntries, cli.FlagGroupEntry{
			Name: info.Name, Prefix: "W", Usage: info.Description, Enabled: &enabled, Disabled: &disabled,
		})
	}
	fs.AddFlagGroup("Warning Flags", "", "warning", "Available Warnings:", warningEntries)

	var featureEntries []cli.FlagGroupEntry
	for i := Feature(0); i < FeatCount; i++ {
		info := c.Features[i]
		enabled, disabled := info.Enabled, false
		featureEntries = append(featureEntries, cli.FlagGroupEntry{
			Name: info.Name, Prefix: "F", Usage: info.Description, Enabled: &enabled, Disabled: &disabled,
		})
	}
	fs.AddFlagGroup("Feature Flags", "", "feature", "Available Features:", featureEntries)
}

// ApplyFlagGroups applies the -W and -F switches that were given on the
// command line, leaving everything else as configured.
func (c *Config) ApplyFlagGroups(fs *cli.FlagSet) error {
	var names []string
	fs.Visit(func(f *cli.Flag) {
		if len(f.Name) > 1 && (f.Name[0] == 'W' || f.Name[0] == 'F') {
			if on, ok := f.Value.Get().(bool); ok && on {
				names = append(names, "-"+f.Name)
			}
		}
	})
	sort.Strings(names)
	return c.ApplyFlags(names)
}
