// Package cli implements rtcctl, a headless harness over the gRPC surface.
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/dkeye/rtcserver/internal/adapters/rpc"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

const (
	serverKey  = "server"
	timeoutKey = "timeout"
)

type state struct {
	v        *viper.Viper
	dialOpts []grpc.DialOption
	conn     *grpc.ClientConn
	client   *rpc.Client
}

// NewRootCmd builds the command tree. Extra dial options are appended to the
// insecure transport credentials.
func NewRootCmd(dialOpts ...grpc.DialOption) *cobra.Command {
	st := &state{v: viper.New(), dialOpts: dialOpts}
	var cfgFile string

	root := &cobra.Command{
		Use:           "rtcctl",
		Short:         "Drive an rtcserver over gRPC",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := st.loadConfig(cfgFile); err != nil {
				return err
			}
			opts := append([]grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}, st.dialOpts...)
			conn, err := grpc.NewClient(st.v.GetString(serverKey), opts...)
			if err != nil {
				return fmt.Errorf("did not connect to gRPC server: %w", err)
			}
			st.conn = conn
			st.client = rpc.NewClient(conn)
			return nil
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if st.conn != nil {
				return st.conn.Close()
			}
			return nil
		},
	}

	root.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default $HOME/.rtcctl.yaml)")
	root.PersistentFlags().String("server", "localhost:50051", "gRPC address of the rtcserver")
	root.PersistentFlags().Duration("timeout", 10*time.Second, "deadline for unary calls")
	_ = st.v.BindPFlag(serverKey, root.PersistentFlags().Lookup("server"))
	_ = st.v.BindPFlag(timeoutKey, root.PersistentFlags().Lookup("timeout"))

	root.AddCommand(newSessionCmd(st), newPeerCmd(st), newObserveCmd(st))
	return root
}

func (st *state) loadConfig(cfgFile string) error {
	st.v.SetEnvPrefix("RTCCTL")
	st.v.AutomaticEnv()
	if cfgFile != "" {
		st.v.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil
		}
		st.v.AddConfigPath(home)
		st.v.SetConfigType("yaml")
		st.v.SetConfigName(".rtcctl")
	}
	if err := st.v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok && cfgFile != "" {
			return fmt.Errorf("read config: %w", err)
		}
	}
	return nil
}

func (st *state) callCtx(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return context.WithTimeout(cmd.Context(), st.v.GetDuration(timeoutKey))
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// Execute runs rtcctl against os.Args.
func Execute() {
	root := NewRootCmd()
	if err := root.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
