// Package cli defines the wava command tree.
package cli

import (
	"github.com/spf13/cobra"
)

// NewRoot builds the root command with all subcommands attached.
func NewRoot() *cobra.Command {
	root := &cobra.Command{
		Use:           "wava",
		Short:         "WAVA Builder: AI 마케팅 콘텐츠 제작 도구",
		Long:          "WAVA Builder runs the local web app for video jobs, shopping thumbnails and SNS publishing.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newServeCmd())
	root.AddCommand(newDoctorCmd())
	return root
}
