package main

import (
	"context"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/spf13/cobra"

	"github.com/edvin/dbmanager/internal/gateway"
)

func newLambdaCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "lambda",
		Short: "Run as an AWS Lambda function behind API Gateway",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(context.Background(), "lambda")
			if err != nil {
				return err
			}
			defer a.Close()

			a.logger.Info().Msg("starting lambda handler")
			lambda.Start(gateway.NewHandler(a.orch, a.logger).Handle)
			return nil
		},
	}
}
