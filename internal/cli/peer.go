package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/dkeye/rtcserver/internal/adapters/rpc"
	"github.com/spf13/cobra"
)

func newPeerCmd(st *state) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "peer",
		Short: "Manage peer connections and run offer/answer",
	}

	var id, name string
	create := &cobra.Command{
		Use:   "create SESSION",
		Short: "Create a peer connection in a running session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := st.callCtx(cmd)
			defer cancel()
			res, err := st.client.CreatePeerConnection(ctx, &rpc.CreatePeerConnectionRequest{SessionID: args[0], PeerConnectionID: id, Name: name})
			if err != nil {
				return err
			}
			return printJSON(cmd, res)
		},
	}
	create.Flags().StringVar(&id, "id", "", "peer connection id")
	create.Flags().StringVar(&name, "name", "", "peer connection name")

	offer := &cobra.Command{
		Use:   "offer SESSION PEER",
		Short: "Create an SDP offer",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := st.callCtx(cmd)
			defer cancel()
			res, err := st.client.CreateOffer(ctx, &rpc.CreateSdpRequest{SessionID: args[0], PeerConnectionID: args[1]})
			if err != nil {
				return err
			}
			return printJSON(cmd, res)
		},
	}

	answer := &cobra.Command{
		Use:   "answer SESSION PEER",
		Short: "Create an SDP answer to the applied remote offer",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := st.callCtx(cmd)
			defer cancel()
			res, err := st.client.CreateAnswer(ctx, &rpc.CreateSdpRequest{SessionID: args[0], PeerConnectionID: args[1]})
			if err != nil {
				return err
			}
			return printJSON(cmd, res)
		},
	}

	transceivers := &cobra.Command{
		Use:   "transceivers SESSION PEER",
		Short: "List transceivers",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := st.callCtx(cmd)
			defer cancel()
			res, err := st.client.GetTransceivers(ctx, &rpc.GetTransceiversRequest{SessionID: args[0], PeerConnectionID: args[1]})
			if err != nil {
				return err
			}
			return printJSON(cmd, res)
		},
	}

	cmd.AddCommand(create, offer, answer, transceivers,
		newSetDescriptionCmd(st, "set-local", "Apply a local description", false),
		newSetDescriptionCmd(st, "set-remote", "Apply a remote description", true),
		newMediaCmd(st, "add-track", "Add a send-only local track", false),
		newMediaCmd(st, "add-transceiver", "Add a send/receive transceiver", true),
	)
	return cmd
}

func newSetDescriptionCmd(st *state, use, short string, remote bool) *cobra.Command {
	var sdpType, sdpFile string
	cmd := &cobra.Command{
		Use:   use + " SESSION PEER",
		Short: short,
		Long:  short + ". The SDP is read from --file, or from stdin when --file is - or empty.",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			sdp, err := readSDP(cmd, sdpFile)
			if err != nil {
				return err
			}
			req := &rpc.SetSdpRequest{SessionID: args[0], PeerConnectionID: args[1], SDP: sdp, SDPType: sdpType}
			ctx, cancel := st.callCtx(cmd)
			defer cancel()
			var res *rpc.SetSdpResponse
			if remote {
				res, err = st.client.SetRemoteDescription(ctx, req)
			} else {
				res, err = st.client.SetLocalDescription(ctx, req)
			}
			if err != nil {
				return err
			}
			return printJSON(cmd, res)
		},
	}
	cmd.Flags().StringVar(&sdpType, "type", "", "offer, pranswer, answer or rollback")
	cmd.Flags().StringVarP(&sdpFile, "file", "f", "", "file holding the SDP text")
	_ = cmd.MarkFlagRequired("type")
	return cmd
}

func readSDP(cmd *cobra.Command, path string) (string, error) {
	var r io.Reader = cmd.InOrStdin()
	if path != "" && path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return "", err
		}
		defer f.Close()
		r = f
	}
	b, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("read sdp: %w", err)
	}
	return string(b), nil
}

func newMediaCmd(st *state, use, short string, transceiver bool) *cobra.Command {
	var label string
	cmd := &cobra.Command{
		Use:   use + " SESSION PEER TRACK",
		Short: short,
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			req := &rpc.AddTrackRequest{SessionID: args[0], PeerConnectionID: args[1], TrackID: args[2], TrackLabel: label}
			ctx, cancel := st.callCtx(cmd)
			defer cancel()
			var err error
			if transceiver {
				_, err = st.client.AddTransceiver(ctx, req)
			} else {
				_, err = st.client.AddTrack(ctx, req)
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", use, args[2])
			return nil
		},
	}
	cmd.Flags().StringVar(&label, "label", "", "stream label of the track")
	return cmd
}
