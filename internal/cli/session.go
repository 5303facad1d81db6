package cli

import (
	"fmt"

	"github.com/dkeye/rtcserver/internal/adapters/rpc"
	"github.com/spf13/cobra"
)

func newSessionCmd(st *state) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "session",
		Short: "Create, start, stop and inspect sessions",
	}

	var id, name string
	create := &cobra.Command{
		Use:   "create",
		Short: "Create a session; the server picks an id when --id is empty",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := st.callCtx(cmd)
			defer cancel()
			res, err := st.client.CreateSession(ctx, &rpc.CreateSessionRequest{SessionID: id, Name: name})
			if err != nil {
				return err
			}
			return printJSON(cmd, res)
		},
	}
	create.Flags().StringVar(&id, "id", "", "session id")
	create.Flags().StringVar(&name, "name", "", "session name")

	list := &cobra.Command{
		Use:   "list",
		Short: "List sessions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := st.callCtx(cmd)
			defer cancel()
			res, err := st.client.ListSessions(ctx)
			if err != nil {
				return err
			}
			return printJSON(cmd, res)
		},
	}

	stats := &cobra.Command{
		Use:   "stats SESSION",
		Short: "Show aggregated session stats",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := st.callCtx(cmd)
			defer cancel()
			res, err := st.client.GetStats(ctx, &rpc.GetStatsRequest{SessionID: args[0]})
			if err != nil {
				return err
			}
			return printJSON(cmd, res)
		},
	}

	cmd.AddCommand(create, list, stats,
		sessionAction(st, "start", "Start a created session", st.startSession),
		sessionAction(st, "stop", "Stop a running session and release its peer connections", st.stopSession),
		sessionAction(st, "delete", "Delete a session in any state", st.deleteSession),
	)
	return cmd
}

type sessionCall func(cmd *cobra.Command, req *rpc.SessionRequest) error

func sessionAction(st *state, use, short string, call sessionCall) *cobra.Command {
	return &cobra.Command{
		Use:   use + " SESSION",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := call(cmd, &rpc.SessionRequest{SessionID: args[0]}); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", use, args[0])
			return nil
		},
	}
}

func (st *state) startSession(cmd *cobra.Command, req *rpc.SessionRequest) error {
	ctx, cancel := st.callCtx(cmd)
	defer cancel()
	_, err := st.client.StartSession(ctx, req)
	return err
}

func (st *state) stopSession(cmd *cobra.Command, req *rpc.SessionRequest) error {
	ctx, cancel := st.callCtx(cmd)
	defer cancel()
	_, err := st.client.StopSession(ctx, req)
	return err
}

func (st *state) deleteSession(cmd *cobra.Command, req *rpc.SessionRequest) error {
	ctx, cancel := st.callCtx(cmd)
	defer cancel()
	_, err := st.client.DeleteSession(ctx, req)
	return err
}
