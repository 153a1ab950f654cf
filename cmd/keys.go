package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/alantheprice/terminput/pkg/config"
	"github.com/alantheprice/terminput/pkg/console"
	"github.com/alantheprice/terminput/pkg/events"
	"github.com/alantheprice/terminput/pkg/monitor"
	"github.com/alantheprice/terminput/pkg/trace"
	"github.com/alantheprice/terminput/pkg/utils"
	"github.com/spf13/cobra"
)

var (
	keysRawIntercept  bool
	keysKeypress      bool
	keysNoExtended    bool
	keysForceExtended bool
	keysMonitor       bool
	keysMonitorAddr   string
	keysTracePath     string
)

var keysCmd = &cobra.Command{
	Use:   "keys",
	Short: "Decode and display key events live",
	Long: `Puts the terminal in raw mode and prints every decoded event as you
type: named keys with modifiers, pasted text, dropped file paths. Use it to
check what a terminal actually sends for a given key combination.

Press Ctrl+C or Ctrl+D to quit.`,
	RunE: runKeys,
}

func init() {
	keysCmd.Flags().BoolVar(&keysRawIntercept, "raw", false, "Force raw byte interception")
	keysCmd.Flags().BoolVar(&keysKeypress, "keypress", false, "Force keypress interception")
	keysCmd.Flags().BoolVar(&keysNoExtended, "no-extended", false, "Skip extended keyboard protocol detection")
	keysCmd.Flags().BoolVar(&keysForceExtended, "force-extended", false, "Assume extended protocol support without probing")
	keysCmd.Flags().BoolVar(&keysMonitor, "monitor", false, "Serve events over WebSocket for external viewers")
	keysCmd.Flags().StringVar(&keysMonitorAddr, "monitor-addr", "", "Monitor listen address (default from config)")
	keysCmd.Flags().StringVar(&keysTracePath, "trace", "", "Record raw input with timing to this file")
	rootCmd.AddCommand(keysCmd)
}

func runKeys(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadOrInitConfig()
	if err != nil {
		return err
	}
	logger := utils.GetLogger(cfg.LogFile)
	defer logger.Close()

	mode, err := resolveInterceptFlag(cfg)
	if err != nil {
		return err
	}

	bus := events.NewEventBus()

	if keysMonitor {
		// Determine address: use the specified one or auto-find from the
		// configured port
		addr := keysMonitorAddr
		if addr == "" {
			addr = monitor.FindAvailableAddr(cfg.MonitorAddr)
		}
		srv := monitor.NewServer(bus, addr, logger.Std())
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		if err := srv.Start(ctx); err != nil {
			return err
		}
		defer srv.Shutdown()
		fmt.Printf("monitor: ws://%s/ws\n", srv.Addr())
	}

	var rawTap io.Writer
	if keysTracePath != "" {
		f, err := os.Create(keysTracePath)
		if err != nil {
			return fmt.Errorf("create trace file: %w", err)
		}
		defer f.Close()
		rawTap = trace.NewWriter(f)
	}

	dispatcher := console.NewDispatcher()
	quit := make(chan struct{})
	var quitOnce sync.Once

	dispatcher.Subscribe(func(ev console.KeyEvent) {
		echoEvent(ev)
		publishKeyEvent(bus, ev)
		if ev.Ctrl && (ev.Name == "c" || ev.Name == "d") {
			quitOnce.Do(func() { close(quit) })
		}
	})

	session := console.NewSession(dispatcher, console.SessionOptions{
		Mode:            mode,
		DisableExtended: keysNoExtended || cfg.ExtendedProtocol == config.ExtendedOff,
		ForceExtended:   keysForceExtended || cfg.ExtendedProtocol == config.ExtendedOn,
		DetectTimeout:   cfg.DetectTimeout(),
		EscTimeout:      cfg.EscTimeout(),
		BackslashWindow: cfg.BackslashWindow(),
		DragIdle:        cfg.DragIdle(),
		Logger:          logger.Std(),
		RawTap:          rawTap,
		OnResize: func(w, h int) {
			bus.Publish(events.EventTypeResize, events.ResizeEvent(w, h))
			fmt.Printf("resize %dx%d\r\n", w, h)
		},
	})
	if err := session.Start(); err != nil {
		return err
	}

	caps := session.Caps()
	bus.Publish(events.EventTypeSessionStarted,
		events.SessionStartedEvent(session.Intercept().String(), caps.ExtendedProtocol))
	bus.Publish(events.EventTypeProtocolDetected,
		events.ProtocolDetectedEvent(caps.ExtendedProtocol, caps.KittyFlags))

	// Raw mode is active from here on: every line needs an explicit \r.
	fmt.Printf("terminput keys: extended=%v intercept=%s (Ctrl+C to quit)\r\n",
		caps.ExtendedProtocol, session.Intercept())

	select {
	case <-quit:
	case <-session.Done():
	}
	session.Stop()
	bus.Publish(events.EventTypeSessionStopped, nil)

	if keysTracePath != "" {
		fmt.Printf("trace written to %s\n", keysTracePath)
	}
	return nil
}

func resolveInterceptFlag(cfg *config.Config) (console.InterceptMode, error) {
	if keysRawIntercept && keysKeypress {
		return console.InterceptAuto, fmt.Errorf("--raw and --keypress are mutually exclusive")
	}
	if keysRawIntercept {
		return console.InterceptRaw, nil
	}
	if keysKeypress {
		return console.InterceptKeypress, nil
	}
	switch cfg.InterceptMode {
	case config.InterceptRaw:
		return console.InterceptRaw, nil
	case config.InterceptKeypress:
		return console.InterceptKeypress, nil
	}
	return console.InterceptAuto, nil
}

func echoEvent(ev console.KeyEvent) {
	if ev.Paste {
		fmt.Printf("%-20s %q\r\n", fmt.Sprintf("paste (%d bytes)", len(ev.Sequence)), truncateSeq(ev.Sequence, 60))
		return
	}
	fmt.Printf("%-20s %q\r\n", ev.String(), ev.Sequence)
}

func publishKeyEvent(bus *events.EventBus, ev console.KeyEvent) {
	if ev.Paste {
		bus.Publish(events.EventTypePasteReceived, events.PasteReceivedEvent(ev.Sequence, len(ev.Sequence)))
		return
	}
	bus.Publish(events.EventTypeKeyPressed, events.KeyPressedEvent(ev.Name, ev.Sequence, ev.Ctrl, ev.Meta, ev.Shift))
}

func truncateSeq(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
