package cmd

import (
	"fmt"
	"os"

	"github.com/alantheprice/terminput/pkg/config"
	"github.com/alantheprice/terminput/pkg/trace"
	"github.com/spf13/cobra"
)

var (
	replayExpectPath string
	replayUpdate     bool
	replayExtended   bool
)

var replayCmd = &cobra.Command{
	Use:   "replay <trace-file>",
	Short: "Re-run a recorded input trace through the decoder",
	Long: `Replays a trace recorded with 'terminput keys --trace' on a simulated
clock, so timing-sensitive decoding (escape timeouts, the backslash+Enter
window, drag bursts) resolves identically on every run.

With --expect the rendered events are compared against a golden file and any
difference is shown; --update rewrites the golden file instead.`,
	Args: cobra.ExactArgs(1),
	RunE: runReplay,
}

func init() {
	replayCmd.Flags().StringVar(&replayExpectPath, "expect", "", "Compare the replay against this expected rendering")
	replayCmd.Flags().BoolVar(&replayUpdate, "update", false, "Write the replay rendering to the --expect file")
	replayCmd.Flags().BoolVar(&replayExtended, "extended", false, "Decode as if the extended protocol was active")
	rootCmd.AddCommand(replayCmd)
}

func runReplay(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadOrInitConfig()
	if err != nil {
		return err
	}

	f, err := os.Open(args[0])
	if err != nil {
		return err
	}
	defer f.Close()

	frames, err := trace.ReadFrames(f)
	if err != nil {
		return err
	}

	events := trace.Replay(frames, trace.ReplayOptions{
		Extended:        replayExtended,
		EscTimeout:      cfg.EscTimeout(),
		BackslashWindow: cfg.BackslashWindow(),
		DragIdle:        cfg.DragIdle(),
	})
	rendered := trace.FormatEvents(events)

	if replayExpectPath == "" {
		fmt.Print(rendered)
		return nil
	}

	if replayUpdate {
		if err := os.WriteFile(replayExpectPath, []byte(rendered), 0644); err != nil {
			return err
		}
		fmt.Printf("updated %s (%d frames, %d events)\n", replayExpectPath, len(frames), len(events))
		return nil
	}

	want, err := os.ReadFile(replayExpectPath)
	if err != nil {
		return err
	}
	ok, diff := trace.Verify(rendered, string(want))
	if !ok {
		fmt.Print(diff)
		return fmt.Errorf("replay differs from %s", replayExpectPath)
	}
	fmt.Printf("replay matches %s (%d frames, %d events)\n", replayExpectPath, len(frames), len(events))
	return nil
}
