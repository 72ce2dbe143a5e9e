package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ckoons/katra-sub002/internal/logging"
	"github.com/ckoons/katra-sub002/internal/memory"
	"github.com/ckoons/katra-sub002/internal/watch"
)

func init() {
	cmd := &cobra.Command{
		Use:   "consolidate",
		Short: "Run a sleep consolidation cycle",
		Long: "Enter sleep mode and run the full cycle: strength routing, graph\n" +
			"centrality, pattern extraction. With --watch, waits for the machine\n" +
			"to go idle and consolidates in the background.",
		Run: runConsolidate,
	}

	cmd.Flags().Bool("watch", false, "Keep running and consolidate whenever the machine goes idle")

	RootCmd.AddCommand(cmd)
}

func runConsolidate(cmd *cobra.Command, args []string) {
	owner, err := getOwner()
	if err != nil {
		exitErr("consolidate", err)
	}

	s, err := openStore()
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	if watchFlag, _ := cmd.Flags().GetBool("watch"); watchFlag {
		watcher := watch.NewIdleWatcher(func() {
			if err := sleepCycle(s, owner, true); err != nil {
				logging.Warn("cli", "consolidation cycle: %v", err)
			}
		})
		watcher.Start()
		defer watcher.Stop()

		sig := make(chan os.Signal, 1)
		signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
		<-sig
		return
	}

	if err := sleepCycle(s, owner, false); err != nil {
		exitErr("consolidate", err)
	}
}

// sleepCycle runs the conventional SLEEP order: route by strength, then
// centrality, then patterns, then complete.
func sleepCycle(s *memory.Store, owner string, quiet bool) error {
	ctl, err := s.Controller(owner)
	if err != nil {
		return err
	}
	if err := ctl.BeginSleep(); err != nil {
		return err
	}
	if _, _, _, err := ctl.RouteByStrength(); err != nil {
		return err
	}
	if _, err := ctl.CalculateCentrality(); err != nil {
		return err
	}
	if _, err := ctl.ExtractPatterns(); err != nil {
		return err
	}
	stats, err := ctl.Complete()
	if err != nil {
		return err
	}

	if !quiet {
		b, _ := json.MarshalIndent(stats, "", "  ")
		fmt.Println(string(b))
	}
	return nil
}
