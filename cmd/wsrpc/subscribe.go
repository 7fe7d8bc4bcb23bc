package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/rickgao/wsrpc/pkg/wsrpc"
)

var (
	subscribeCount    int
	subscribeStandard string
)

var standardSubscriptions = map[string]func() wsrpc.SubscribeCall{
	"new-heads":       wsrpc.NewHeads,
	"finalized-heads": wsrpc.FinalizedHeads,
	"runtime-version": wsrpc.RuntimeVersion,
}

var subscribeCmd = &cobra.Command{
	Use:   "subscribe [<method> <unsubscribe-method>] [param...]",
	Short: "Open a subscription and print its events",
	Long: `Open a subscription and print each event as one JSON line.

Either name both methods or pick a standard subscription with --standard
(new-heads, finalized-heads, runtime-version).`,
	RunE: func(cmd *cobra.Command, args []string) error {
		call, params, err := subscribeCall(subscribeStandard, args)
		if err != nil {
			return err
		}
		return run(cmd, func(ctx context.Context, client *wsrpc.Client, logger *slog.Logger) error {
			return follow(ctx, cmd, client, logger, call, params)
		})
	},
}

func init() {
	subscribeCmd.Flags().IntVarP(&subscribeCount, "count", "n", 0, "stop after this many events (0 = until interrupted)")
	subscribeCmd.Flags().StringVar(&subscribeStandard, "standard", "", "standard subscription name")
}

func subscribeCall(standard string, args []string) (wsrpc.SubscribeCall, []any, error) {
	if standard != "" {
		build, ok := standardSubscriptions[standard]
		if !ok {
			return wsrpc.SubscribeCall{}, nil, fmt.Errorf("unknown standard subscription %q", standard)
		}
		return build(), parseParams(args), nil
	}
	if len(args) < 2 {
		return wsrpc.SubscribeCall{}, nil, errors.New("subscribe needs <method> and <unsubscribe-method>, or --standard")
	}
	call := wsrpc.NewSubscribeCall[json.RawMessage](args[0], args[1])
	return call, parseParams(args[2:]), nil
}

func follow(ctx context.Context, cmd *cobra.Command, client *wsrpc.Client, logger *slog.Logger, call wsrpc.SubscribeCall, params []any) error {
	subCtx, cancel := context.WithTimeout(ctx, globalFlags.Timeout)
	sub, err := client.Subscribe(call, params...).Wait(subCtx)
	cancel()
	if err != nil {
		return fmt.Errorf("%s: %w", call.Method, err)
	}

	defer func() {
		cancelCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := sub.Cancel(cancelCtx); err != nil {
			logger.Warn("unsubscribe failed", "method", call.Unsubscribe, "subscription", sub.ServerID(), "error", err)
		}
	}()

	out := json.NewEncoder(cmd.OutOrStdout())
	for seen := 0; subscribeCount == 0 || seen < subscribeCount; seen++ {
		ev, err := sub.Next(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		}
		if err := out.Encode(map[string]any{
			"subscription": sub.ServerID(),
			"method":       ev.Method,
			"result":       ev.Value,
		}); err != nil {
			return err
		}
	}
	return nil
}
