package cmd

import (
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

// newTargetsCmd creates the 'targets' subcommand, which lists the configured
// browser targets without opening any session.
func newTargetsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "targets",
		Short: "Lists the configured browser targets",
		RunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			t := table.NewWriter()
			t.SetOutputMirror(cmd.OutOrStdout())
			t.SetStyle(table.StyleLight)
			t.AppendHeader(table.Row{"#", "Session", "Browser", "Version", "OS", "Device", "Build"})
			for i, target := range appInstance.Targets() {
				osName := target.OS
				if target.OSVersion != "" {
					osName += " " + target.OSVersion
				}
				t.AppendRow(table.Row{i + 1, target.Label(), target.BrowserName, target.BrowserVersion, osName, target.DeviceName, target.BuildName})
			}
			t.Render()
			return nil
		},
	}
}
