package cmd

import (
	"github.com/spf13/cobra"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "terminput",
	Short: "Terminal keyboard input decoder and inspector",
	Long: `Terminput decodes raw terminal input into logical key events: it
handles bracketed paste, drag-and-drop paths, Shift+Enter in its many
terminal encodings, and the kitty keyboard protocol where available.

Available commands:
  keys    - Decode and display key events live
  detect  - Probe the terminal for extended keyboard protocol support
  replay  - Re-run a recorded input trace through the decoder
  init    - Write a default config file into the working directory

Run 'terminput keys' in any terminal and start typing.`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}
