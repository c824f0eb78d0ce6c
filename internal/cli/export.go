package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export memories, profile and score history as JSON",
		Long:  "Export a user's memories, profile and score history as JSON. Without --user, exports every user's memories.",
		Run:   runExport,
	}

	cmd.Flags().Int64P("user", "u", 0, "User id (0 exports every user's memories)")
	cmd.Flags().StringP("output", "o", "", "Write to file instead of stdout")

	RootCmd.AddCommand(cmd)
}

func runExport(cmd *cobra.Command, args []string) {
	ctx := cmd.Context()
	userID, _ := cmd.Flags().GetInt64("user")
	output, _ := cmd.Flags().GetString("output")

	a := mustApp(ctx)
	defer a.Close()

	exp, err := a.store.ExportAll(ctx, userID)
	if err != nil {
		exitErr("export", err)
	}

	b, _ := json.MarshalIndent(exp, "", "  ")
	if output == "" {
		fmt.Println(string(b))
		return
	}
	if err := os.WriteFile(output, append(b, '\n'), 0644); err != nil {
		exitErr("write export", err)
	}
	fmt.Printf(`{"ok":true,"chunks":%d,"path":%q}`+"\n", len(exp.Chunks), output)
}
