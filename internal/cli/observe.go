package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/dkeye/rtcserver/internal/adapters/rpc"
	"github.com/spf13/cobra"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func newObserveCmd(st *state) *cobra.Command {
	return &cobra.Command{
		Use:   "observe SESSION PEER",
		Short: "Stream ICE candidates and transceiver changes as JSON lines",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			stream, err := st.client.Observer(cmd.Context(), &rpc.ObserverRequest{SessionID: args[0], PeerConnectionID: args[1]})
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			for {
				ev, err := stream.Recv()
				if errors.Is(err, io.EOF) {
					return nil
				}
				if status.Code(err) == codes.ResourceExhausted {
					return fmt.Errorf("observer disconnected: too slow: %w", err)
				}
				if err != nil {
					return err
				}
				if err := enc.Encode(ev); err != nil {
					return err
				}
			}
		},
	}
}
