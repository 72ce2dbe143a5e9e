package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "archive",
		Short: "Archive old, weak memories",
		Long: "Archive memories older than --max-age-days. Pattern outliers, hub\n" +
			"memories, and records marked important are preserved; records marked\n" +
			"forgettable are always archived.",
		Run: runArchive,
	}

	cmd.Flags().Int("max-age-days", 30, "Archive records older than this many days")

	RootCmd.AddCommand(cmd)
}

func runArchive(cmd *cobra.Command, args []string) {
	owner, err := getOwner()
	if err != nil {
		exitErr("archive", err)
	}
	maxAge, _ := cmd.Flags().GetInt("max-age-days")

	s, err := openStore()
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	count, err := s.Archive(owner, maxAge)
	if err != nil {
		exitErr("archive", err)
	}
	fmt.Printf("archived %d records\n", count)
}
