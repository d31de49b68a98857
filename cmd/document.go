package main

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"pdf-chat/internal/helper"
)

var uploadCmd = &cobra.Command{
	Use:   "upload [file]",
	Short: "Upload a PDF document",
	Args:  cobra.ExactArgs(1),
	RunE:  runUpload,
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List uploaded documents",
	Args:  cobra.NoArgs,
	RunE:  runList,
}

var deleteCmd = &cobra.Command{
	Use:   "delete [document-id]",
	Short: "Delete a document and its local transcript",
	Args:  cobra.ExactArgs(1),
	RunE:  runDelete,
}

// listJSON is a flag for the list command.
var listJSON bool

var dimStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))

func init() {
	listCmd.Flags().BoolVar(&listJSON, "json", false, "Print documents as JSON")

	rootCmd.AddCommand(uploadCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(deleteCmd)
}

func runUpload(cmd *cobra.Command, args []string) error {
	doc, err := newClient().Upload(cmd.Context(), args[0])
	if err != nil {
		return fmt.Errorf("failed to upload %s: %w", args[0], err)
	}
	cmd.Printf("Uploaded %s\n", doc.Name)
	cmd.Printf("  ID: %s\n", doc.ID)
	return nil
}

func runList(cmd *cobra.Command, args []string) error {
	docs, err := newClient().List(cmd.Context())
	if err != nil {
		return fmt.Errorf("failed to list documents: %w", err)
	}

	if listJSON {
		helper.PrettyPrint(cmd.OutOrStdout(), docs)
		return nil
	}

	if len(docs) == 0 {
		cmd.Println("No documents uploaded.")
		return nil
	}
	for _, d := range docs {
		cmd.Printf("  %s\n", d.ID)
		cmd.Printf("    %s %s\n", d.Name, dimStyle.Render(fmt.Sprintf("(%s, %s)", d.Size, d.CreatedAt.Local().Format("2006-01-02 15:04"))))
	}
	cmd.Printf("\nTotal: %d documents\n", len(docs))
	return nil
}

func runDelete(cmd *cobra.Command, args []string) error {
	id := args[0]
	if err := newClient().Delete(cmd.Context(), id); err != nil {
		return fmt.Errorf("failed to delete %s: %w", id, err)
	}
	if err := newTranscripts().Delete(id); err != nil {
		return fmt.Errorf("failed to delete transcript of %s: %w", id, err)
	}
	cmd.Printf("Deleted %s\n", id)
	return nil
}
