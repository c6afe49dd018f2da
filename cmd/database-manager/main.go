// Command database-manager creates and drops tenant PostgreSQL databases.
//
// Usage:
//
//	database-manager lambda                                    Run as an AWS Lambda function
//	database-manager serve                                     Serve the HTTP API
//	database-manager invoke --operation SELECT --database x    Run one request and print the response
//	database-manager migrate                                   Migrate the journal database
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	rootCmd := &cobra.Command{
		Use:           "database-manager",
		Short:         "Create and drop tenant PostgreSQL databases",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(
		newLambdaCmd(),
		newServeCmd(),
		newInvokeCmd(),
		newMigrateCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
