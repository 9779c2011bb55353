package cli

import "github.com/spf13/pflag"

const (
	defaultHelpDesc    = "Show help"
	defaultVersionDesc = "Print version and exit"
)

type HelpVersionFlags struct {
	Help    bool
	Version bool
}

// AddHelpVersionFlags registers --help/-h and --version/-v.
func AddHelpVersionFlags(fs *pflag.FlagSet, helpDesc, versionDesc string) *HelpVersionFlags {
	flags := &HelpVersionFlags{}
	if fs == nil {
		return flags
	}
	if helpDesc == "" {
		helpDesc = defaultHelpDesc
	}
	if versionDesc == "" {
		versionDesc = defaultVersionDesc
	}
	fs.BoolVarP(&flags.Help, "help", "h", false, helpDesc)
	fs.BoolVarP(&flags.Version, "version", "v", false, versionDesc)
	return flags
}
