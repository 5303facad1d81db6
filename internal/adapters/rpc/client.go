package rpc

import (
	"context"

	"google.golang.org/grpc"
)

// Client is the caller side of the webrtc.WebRtc service.
type Client struct {
	cc grpc.ClientConnInterface
}

func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

func invoke[Resp any](ctx context.Context, c *Client, method string, req any, opts []grpc.CallOption) (*Resp, error) {
	out := new(Resp)
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(codecName)}, opts...)
	if err := c.cc.Invoke(ctx, fullMethod(method), req, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) CreateSession(ctx context.Context, in *CreateSessionRequest, opts ...grpc.CallOption) (*CreateSessionResponse, error) {
	return invoke[CreateSessionResponse](ctx, c, "CreateSession", in, opts)
}

func (c *Client) StartSession(ctx context.Context, in *StartSessionRequest, opts ...grpc.CallOption) (*Empty, error) {
	return invoke[Empty](ctx, c, "StartSession", in, opts)
}

func (c *Client) StopSession(ctx context.Context, in *StopSessionRequest, opts ...grpc.CallOption) (*Empty, error) {
	return invoke[Empty](ctx, c, "StopSession", in, opts)
}

func (c *Client) DeleteSession(ctx context.Context, in *DeleteSessionRequest, opts ...grpc.CallOption) (*Empty, error) {
	return invoke[Empty](ctx, c, "DeleteSession", in, opts)
}

func (c *Client) ListSessions(ctx context.Context, opts ...grpc.CallOption) (*ListSessionsResponse, error) {
	return invoke[ListSessionsResponse](ctx, c, "ListSessions", &Empty{}, opts)
}

func (c *Client) GetStats(ctx context.Context, in *GetStatsRequest, opts ...grpc.CallOption) (*GetStatsResponse, error) {
	return invoke[GetStatsResponse](ctx, c, "GetStats", in, opts)
}

func (c *Client) CreatePeerConnection(ctx context.Context, in *CreatePeerConnectionRequest, opts ...grpc.CallOption) (*CreatePeerConnectionResponse, error) {
	return invoke[CreatePeerConnectionResponse](ctx, c, "CreatePeerConnection", in, opts)
}

func (c *Client) CreateOffer(ctx context.Context, in *CreateSdpRequest, opts ...grpc.CallOption) (*CreateSdpResponse, error) {
	return invoke[CreateSdpResponse](ctx, c, "CreateOffer", in, opts)
}

func (c *Client) CreateAnswer(ctx context.Context, in *CreateSdpRequest, opts ...grpc.CallOption) (*CreateSdpResponse, error) {
	return invoke[CreateSdpResponse](ctx, c, "CreateAnswer", in, opts)
}

func (c *Client) SetLocalDescription(ctx context.Context, in *SetSdpRequest, opts ...grpc.CallOption) (*SetSdpResponse, error) {
	return invoke[SetSdpResponse](ctx, c, "SetLocalDescription", in, opts)
}

func (c *Client) SetRemoteDescription(ctx context.Context, in *SetSdpRequest, opts ...grpc.CallOption) (*SetSdpResponse, error) {
	return invoke[SetSdpResponse](ctx, c, "SetRemoteDescription", in, opts)
}

func (c *Client) AddTrack(ctx context.Context, in *AddTrackRequest, opts ...grpc.CallOption) (*Empty, error) {
	return invoke[Empty](ctx, c, "AddTrack", in, opts)
}

func (c *Client) AddTransceiver(ctx context.Context, in *AddTransceiverRequest, opts ...grpc.CallOption) (*Empty, error) {
	return invoke[Empty](ctx, c, "AddTransceiver", in, opts)
}

func (c *Client) GetTransceivers(ctx context.Context, in *GetTransceiversRequest, opts ...grpc.CallOption) (*GetTransceiversResponse, error) {
	return invoke[GetTransceiversResponse](ctx, c, "GetTransceivers", in, opts)
}

// ObserverClient receives events of one Observer call.
type ObserverClient struct {
	grpc.ClientStream
}

func (o *ObserverClient) Recv() (*ObserverEvent, error) {
	ev := new(ObserverEvent)
	if err := o.ClientStream.RecvMsg(ev); err != nil {
		return nil, err
	}
	return ev, nil
}

func (c *Client) Observer(ctx context.Context, in *ObserverRequest, opts ...grpc.CallOption) (*ObserverClient, error) {
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(codecName)}, opts...)
	stream, err := c.cc.NewStream(ctx, &serviceDesc.Streams[0], fullMethod("Observer"), opts...)
	if err != nil {
		return nil, err
	}
	if err := stream.SendMsg(in); err != nil {
		return nil, err
	}
	if err := stream.CloseSend(); err != nil {
		return nil, err
	}
	return &ObserverClient{ClientStream: stream}, nil
}
