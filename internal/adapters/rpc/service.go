package rpc

import (
	"context"

	"google.golang.org/grpc"
)

const serviceName = "webrtc.WebRtc"

func fullMethod(name string) string { return "/" + serviceName + "/" + name }

// WebRTCServer is the server side of the webrtc.WebRtc service.
type WebRTCServer interface {
	CreateSession(context.Context, *CreateSessionRequest) (*CreateSessionResponse, error)
	StartSession(context.Context, *StartSessionRequest) (*Empty, error)
	StopSession(context.Context, *StopSessionRequest) (*Empty, error)
	DeleteSession(context.Context, *DeleteSessionRequest) (*Empty, error)
	ListSessions(context.Context, *Empty) (*ListSessionsResponse, error)
	GetStats(context.Context, *GetStatsRequest) (*GetStatsResponse, error)
	CreatePeerConnection(context.Context, *CreatePeerConnectionRequest) (*CreatePeerConnectionResponse, error)
	CreateOffer(context.Context, *CreateSdpRequest) (*CreateSdpResponse, error)
	CreateAnswer(context.Context, *CreateSdpRequest) (*CreateSdpResponse, error)
	SetLocalDescription(context.Context, *SetSdpRequest) (*SetSdpResponse, error)
	SetRemoteDescription(context.Context, *SetSdpRequest) (*SetSdpResponse, error)
	AddTrack(context.Context, *AddTrackRequest) (*Empty, error)
	AddTransceiver(context.Context, *AddTransceiverRequest) (*Empty, error)
	GetTransceivers(context.Context, *GetTransceiversRequest) (*GetTransceiversResponse, error)
	Observer(*ObserverRequest, ObserverStream) error
}

// ObserverStream is the server end of the Observer call.
type ObserverStream interface {
	Send(*ObserverEvent) error
	Context() context.Context
}

type observerStream struct {
	grpc.ServerStream
}

func (s observerStream) Send(ev *ObserverEvent) error { return s.ServerStream.SendMsg(ev) }

func unary[Req, Resp any](name string, call func(WebRTCServer, context.Context, *Req) (*Resp, error)) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(Req)
			if err := dec(in); err != nil {
				return nil, err
			}
			s := srv.(WebRTCServer)
			if interceptor == nil {
				return call(s, ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod(name)}
			return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
				return call(s, ctx, req.(*Req))
			})
		},
	}
}

func observerHandler(srv any, stream grpc.ServerStream) error {
	in := new(ObserverRequest)
	if err := stream.RecvMsg(in); err != nil {
		return err
	}
	return srv.(WebRTCServer).Observer(in, observerStream{stream})
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*WebRTCServer)(nil),
	Methods: []grpc.MethodDesc{
		unary("CreateSession", WebRTCServer.CreateSession),
		unary("StartSession", WebRTCServer.StartSession),
		unary("StopSession", WebRTCServer.StopSession),
		unary("DeleteSession", WebRTCServer.DeleteSession),
		unary("ListSessions", WebRTCServer.ListSessions),
		unary("GetStats", WebRTCServer.GetStats),
		unary("CreatePeerConnection", WebRTCServer.CreatePeerConnection),
		unary("CreateOffer", WebRTCServer.CreateOffer),
		unary("CreateAnswer", WebRTCServer.CreateAnswer),
		unary("SetLocalDescription", WebRTCServer.SetLocalDescription),
		unary("SetRemoteDescription", WebRTCServer.SetRemoteDescription),
		unary("AddTrack", WebRTCServer.AddTrack),
		unary("AddTransceiver", WebRTCServer.AddTransceiver),
		unary("GetTransceivers", WebRTCServer.GetTransceivers),
	},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "Observer",
			Handler:       observerHandler,
			ServerStreams: true,
		},
	},
	Metadata: "webrtc.proto",
}

func RegisterWebRTCServer(s grpc.ServiceRegistrar, srv WebRTCServer) {
	s.RegisterService(&serviceDesc, srv)
}
