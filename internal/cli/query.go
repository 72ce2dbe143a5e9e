package cli

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/ckoons/katra-sub002/internal/memory"
	"github.com/ckoons/katra-sub002/internal/types"
)

func init() {
	cmd := &cobra.Command{
		Use:   "query",
		Short: "Query memory records",
		Long:  "Query memory records by type, age, and importance. Each hit counts as an access.",
		Run:   runQuery,
	}

	cmd.Flags().StringP("type", "t", "", "Filter by memory type")
	cmd.Flags().Float64("min-importance", 0, "Minimum importance")
	cmd.Flags().Int("since-days", 0, "Only records newer than this many days")
	cmd.Flags().IntP("limit", "l", 20, "Maximum results")
	cmd.Flags().Bool("archived", false, "Include archived records")
	cmd.Flags().String("as", "", "Requester id when querying another owner's memories")

	RootCmd.AddCommand(cmd)
}

func runQuery(cmd *cobra.Command, args []string) {
	owner, err := getOwner()
	if err != nil {
		exitErr("query", err)
	}

	memType, _ := cmd.Flags().GetString("type")
	minImportance, _ := cmd.Flags().GetFloat64("min-importance")
	sinceDays, _ := cmd.Flags().GetInt("since-days")
	limit, _ := cmd.Flags().GetInt("limit")
	archived, _ := cmd.Flags().GetBool("archived")
	requester, _ := cmd.Flags().GetString("as")
	if requester == "" {
		requester = owner
	}

	params := memory.QueryParams{
		OwnerID:         owner,
		Type:            types.MemoryType(memType),
		MinImportance:   minImportance,
		Limit:           limit,
		IncludeArchived: archived,
	}
	if sinceDays > 0 {
		params.Since = time.Now().UTC().AddDate(0, 0, -sinceDays)
	}

	s, err := openStore()
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	records, err := s.Query(requester, params)
	if err != nil {
		exitErr("query", err)
	}

	b, _ := json.MarshalIndent(records, "", "  ")
	fmt.Println(string(b))
}
