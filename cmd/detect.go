package cmd

import (
	"fmt"
	"os"

	"github.com/alantheprice/terminput/pkg/config"
	"github.com/alantheprice/terminput/pkg/console"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var detectCmd = &cobra.Command{
	Use:   "detect",
	Short: "Probe the terminal for extended keyboard protocol support",
	Long: `Sends the kitty keyboard protocol query followed by a primary device
attributes request and reports which replies came back. The probe runs in raw
mode so the replies are consumed instead of echoed.`,
	RunE: runDetect,
}

func init() {
	rootCmd.AddCommand(detectCmd)
}

func runDetect(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadOrInitConfig()
	if err != nil {
		return err
	}

	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return fmt.Errorf("stdin is not a terminal")
	}
	oldState, err := term.MakeRaw(fd)
	if err != nil {
		return fmt.Errorf("enter raw mode: %w", err)
	}
	res := console.DetectExtendedProtocol(os.Stdin, os.Stdout, cfg.DetectTimeout())
	term.Restore(fd, oldState)

	fmt.Printf("terminal: %s\n", os.Getenv("TERM"))
	if res.Caps.ExtendedProtocol {
		fmt.Printf("extended keyboard protocol: supported (flags=%d)\n", res.Caps.KittyFlags)
	} else {
		fmt.Println("extended keyboard protocol: not supported")
	}
	if len(res.Leftover) > 0 {
		fmt.Printf("leftover input during probe: %q\n", res.Leftover)
	}
	return nil
}
