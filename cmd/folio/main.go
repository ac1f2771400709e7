// Command folio is a CLI client for the folio backend. It performs the
// same calls the browser frontend makes around a mint: upload the
// EPUB, record the transaction, list a recipient's holdings, and
// delete a record.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"

	"folio/internal/client"

	"github.com/spf13/cobra"
)

var serverURL string

func main() {
	root := &cobra.Command{
		Use:           "folio",
		Short:         "Client for the folio marketplace backend",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&serverURL, "server", "http://localhost:5001", "backend base URL")

	root.AddCommand(createCmd(), uploadCmd(), listCmd(), deleteCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func createCmd() *cobra.Command {
	var (
		tokenID          int64
		price            string
		recipient        string
		royaltyRecipient string
		royalty          int
		metadataURI      string
		timestamp        string
		epubPath         string
	)

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Record a minted item (optionally uploading its EPUB first)",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			c := client.New(serverURL)

			// Token ids are client-generated and timestamp-derived,
			// matching what the frontend sends.
			if tokenID == 0 {
				tokenID = time.Now().UnixMilli()
			}
			if timestamp == "" {
				timestamp = time.Now().UTC().Format(time.RFC3339)
			}
			if royaltyRecipient == "" {
				royaltyRecipient = recipient
			}

			if epubPath != "" {
				filePath, err := c.UploadEpub(ctx, tokenID, epubPath)
				if err != nil {
					return fmt.Errorf("epub upload failed: %w", err)
				}
				fmt.Printf("uploaded %s -> %s\n", epubPath, filePath)
			}

			item, err := c.CreateItem(ctx, client.CreateItemParams{
				TokenID:          tokenID,
				Price:            price,
				Recipient:        recipient,
				RoyaltyRecipient: royaltyRecipient,
				RoyaltyValue:     royalty,
				MetadataURI:      metadataURI,
				Timestamp:        timestamp,
			})
			if err != nil {
				// The mint already happened on-chain; a failed record
				// insert is reported but nothing is rolled back.
				return fmt.Errorf("record insert failed: %w", err)
			}

			return printJSON(item)
		},
	}

	cmd.Flags().Int64Var(&tokenID, "token-id", 0, "token id (default: current unix millis)")
	cmd.Flags().StringVar(&price, "price", "", "price in wei")
	cmd.Flags().StringVar(&recipient, "recipient", "", "recipient address")
	cmd.Flags().StringVar(&royaltyRecipient, "royalty-recipient", "", "royalty recipient address (default: recipient)")
	cmd.Flags().IntVar(&royalty, "royalty", 0, "royalty in basis points")
	cmd.Flags().StringVar(&metadataURI, "metadata-uri", "", "metadata URI")
	cmd.Flags().StringVar(&timestamp, "timestamp", "", "ISO timestamp (default: now)")
	cmd.Flags().StringVar(&epubPath, "epub", "", "EPUB file to upload before recording")
	cmd.MarkFlagRequired("price")
	cmd.MarkFlagRequired("recipient")
	cmd.MarkFlagRequired("metadata-uri")

	return cmd
}

func uploadCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "upload <token-id> <file>",
		Short: "Upload an EPUB for a token id",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			tokenID, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid token id %q", args[0])
			}

			c := client.New(serverURL)
			filePath, err := c.UploadEpub(context.Background(), tokenID, args[1])
			if err != nil {
				return err
			}

			fmt.Printf("uploaded %s -> %s\n", args[1], filePath)
			return nil
		},
	}
}

func listCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list <recipient>",
		Short: "List items owned by a recipient address",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c := client.New(serverURL)
			items, err := c.ListItems(context.Background(), args[0])
			if err != nil {
				return err
			}
			return printJSON(items)
		},
	}
}

func deleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <token-id>",
		Short: "Delete an item record by token id",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tokenID, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid token id %q", args[0])
			}

			c := client.New(serverURL)
			item, err := c.DeleteItem(context.Background(), tokenID)
			if err != nil {
				return err
			}

			fmt.Println("deleted:")
			return printJSON(item)
		},
	}
}

func printJSON(v any) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}
