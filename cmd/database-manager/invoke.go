package main

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/edvin/dbmanager/internal/model"
	"github.com/edvin/dbmanager/internal/platform"
)

func newInvokeCmd() *cobra.Command {
	var (
		operation string
		database  string
	)

	cmd := &cobra.Command{
		Use:   "invoke",
		Short: "Run one lifecycle request and print the response",
		Long: `Invoke runs a single request against the configured engine and vault,
exactly as the Lambda handler would, and prints the response as JSON.

Examples:
    database-manager invoke --operation SELECT --database ignored
    database-manager invoke --operation createDatabase --database acme`,
		RunE: func(cmd *cobra.Command, args []string) error {
			params := map[string]string{}
			if cmd.Flags().Changed("operation") {
				params[model.ParamOperation] = operation
			}
			if cmd.Flags().Changed("database") {
				params[model.ParamDatabaseName] = database
			}

			ctx := context.Background()
			var resp model.Response
			req, err := model.ParseRequest(model.Event{RequestID: platform.NewID(), QueryStringParameters: params})
			if err != nil {
				resp = model.RejectEvent(err)
			} else {
				a, err := newApp(ctx, "invoke")
				if err != nil {
					return err
				}
				defer a.Close()
				resp = a.orch.Handle(ctx, req)
			}

			data, err := json.MarshalIndent(resp, "", "  ")
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(data))

			if !resp.Success() {
				return fmt.Errorf("request failed with status %d", resp.StatusCode)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&operation, "operation", "", "Operation: createDatabase, dropDatabase or SELECT")
	cmd.Flags().StringVar(&database, "database", "", "Tenant database name")

	return cmd
}
