package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/rickgao/wsrpc/pkg/wsrpc"
)

var callCmd = &cobra.Command{
	Use:   "call <method> [param...]",
	Short: "Send one call and print its result",
	Long: `Send one call and print its result as JSON.

Each param is parsed as JSON; anything that is not valid JSON is sent as a string.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		params := parseParams(args[1:])
		return run(cmd, func(ctx context.Context, client *wsrpc.Client, _ *slog.Logger) error {
			callCtx, cancel := context.WithTimeout(ctx, globalFlags.Timeout)
			defer cancel()

			result, err := wsrpc.CallAs[json.RawMessage](client, args[0], params...).Wait(callCtx)
			if err != nil {
				return fmt.Errorf("%s: %w", args[0], err)
			}
			return printJSON(cmd, result)
		})
	},
}

// parseParams turns command line arguments into call params.
func parseParams(args []string) []any {
	params := make([]any, 0, len(args))
	for _, arg := range args {
		if json.Valid([]byte(arg)) {
			params = append(params, json.RawMessage(arg))
			continue
		}
		params = append(params, arg)
	}
	return params
}

func printJSON(cmd *cobra.Command, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(data))
	return nil
}
