package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "rebuild",
		Short: "Rebuild the index from the append log",
		Long:  "Rescan the owner's append log and reconstruct the index. Use after index loss or corruption.",
		Run:   runRebuild,
	}

	RootCmd.AddCommand(cmd)
}

func runRebuild(cmd *cobra.Command, args []string) {
	owner, err := getOwner()
	if err != nil {
		exitErr("rebuild", err)
	}

	s, err := openStore()
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	count, err := s.Rebuild(owner)
	if err != nil {
		exitErr("rebuild", err)
	}
	fmt.Printf("indexed %d records\n", count)
}
