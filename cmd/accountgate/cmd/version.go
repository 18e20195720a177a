package cmd

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"
)

// Set at release time via -ldflags; the defaults mark a local dev build.
var (
	version   = "0.3.0"
	gitCommit = "dev"
	buildDate = ""
)

func newVersionCmd() *cobra.Command {
	var short bool
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Show build information",
		Run: func(cmd *cobra.Command, args []string) {
			if short {
				fmt.Println(version)
				return
			}
			fmt.Printf("accountgate %s (%s)\n", version, gitCommit)
			if buildDate != "" {
				fmt.Printf("built %s, %s, %s/%s\n", buildDate, runtime.Version(), runtime.GOOS, runtime.GOARCH)
			} else {
				fmt.Printf("built with %s, %s/%s\n", runtime.Version(), runtime.GOOS, runtime.GOARCH)
			}
		},
	}
	cmd.Flags().BoolVar(&short, "short", false, "print only the version number")
	return cmd
}

func init() {
	rootCmd.AddCommand(newVersionCmd())
}
