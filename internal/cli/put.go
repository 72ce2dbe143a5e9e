package cli

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ckoons/katra-sub002/internal/types"
)

func init() {
	cmd := &cobra.Command{
		Use:   "put [content]",
		Short: "Store a memory record",
		Long:  "Store a memory record. Content can be a positional arg or piped via stdin.",
		Run:   runPut,
	}

	cmd.Flags().StringP("type", "t", "experience", "Memory type: experience, knowledge, reflection, pattern, goal, decision")
	cmd.Flags().Float64P("importance", "i", 0.5, "Importance in [0,1]")
	cmd.Flags().String("note", "", "Human-authored importance note")
	cmd.Flags().String("related-to", "", "Record id this memory references")
	cmd.Flags().Bool("important", false, "Mark as never-archive")
	cmd.Flags().Bool("forgettable", false, "Mark as always-archive")

	RootCmd.AddCommand(cmd)
}

func runPut(cmd *cobra.Command, args []string) {
	owner, err := getOwner()
	if err != nil {
		exitErr("put", err)
	}

	memType, _ := cmd.Flags().GetString("type")
	importance, _ := cmd.Flags().GetFloat64("importance")
	note, _ := cmd.Flags().GetString("note")
	relatedTo, _ := cmd.Flags().GetString("related-to")
	important, _ := cmd.Flags().GetBool("important")
	forgettable, _ := cmd.Flags().GetBool("forgettable")

	var content string
	if len(args) > 0 {
		content = strings.Join(args, " ")
	} else {
		stat, _ := os.Stdin.Stat()
		if (stat.Mode() & os.ModeCharDevice) == 0 {
			b, err := io.ReadAll(os.Stdin)
			if err != nil {
				exitErr("read stdin", err)
			}
			content = string(b)
		}
	}
	if strings.TrimSpace(content) == "" {
		exitErr("put", fmt.Errorf("content is required (positional arg or stdin)"))
	}

	s, err := openStore()
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	rec, err := s.CreateRecord(owner, content, types.MemoryType(memType), importance)
	if err != nil {
		exitErr("create record", err)
	}
	rec.ImportanceNote = note
	rec.RelatedTo = relatedTo
	rec.MarkedImportant = important
	rec.MarkedForgettable = forgettable

	id, err := s.Put(rec)
	if err != nil {
		exitErr("store record", err)
	}
	fmt.Println(id)
}
