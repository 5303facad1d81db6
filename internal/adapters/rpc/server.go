// Package rpc exposes the orchestrator as the webrtc.WebRtc gRPC service.
//
// Messages travel as JSON under the "json" content-subtype
// (application/grpc+json), not as protobuf. Method names match the
// webrtc.proto service, but stubs generated from that file speak protobuf and
// cannot call this server; use Client or any gRPC client configured with a
// JSON codec.
package rpc

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dkeye/rtcserver/internal/app/orch"
	"github.com/dkeye/rtcserver/internal/domain"
	"github.com/rs/zerolog/log"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

type Server struct {
	orch *orch.Orchestrator
}

func NewServer(o *orch.Orchestrator) *Server {
	return &Server{orch: o}
}

// NewGRPCServer builds a grpc.Server with the service and the logging
// interceptors registered.
func NewGRPCServer(o *orch.Orchestrator, opts ...grpc.ServerOption) *grpc.Server {
	opts = append(opts,
		grpc.ChainUnaryInterceptor(unaryLogger),
		grpc.ChainStreamInterceptor(streamLogger),
	)
	gs := grpc.NewServer(opts...)
	RegisterWebRTCServer(gs, NewServer(o))
	return gs
}

var codeByKind = map[domain.ErrorKind]codes.Code{
	domain.KindNotFound:          codes.NotFound,
	domain.KindAlreadyExists:     codes.AlreadyExists,
	domain.KindInvalidState:      codes.FailedPrecondition,
	domain.KindNegotiationFailed: codes.InvalidArgument,
	domain.KindEngine:            codes.Internal,
	domain.KindBackpressure:      codes.ResourceExhausted,
}

func toStatus(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}
	switch {
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	}
	code, ok := codeByKind[domain.Kind(err)]
	if !ok {
		code = codes.Unknown
	}
	return status.Error(code, err.Error())
}

func parseDescription(sdpType, sdp string) (domain.SessionDescription, error) {
	t, err := domain.ParseSDPType(sdpType)
	if err != nil {
		return domain.SessionDescription{}, fmt.Errorf("%w: %v", domain.ErrNegotiationFailed, err)
	}
	return domain.SessionDescription{Type: t, SDP: sdp}, nil
}

func (s *Server) CreateSession(ctx context.Context, req *CreateSessionRequest) (*CreateSessionResponse, error) {
	info, err := s.orch.CreateSession(ctx, domain.SessionID(req.SessionID), req.Name)
	if err != nil {
		return nil, toStatus(err)
	}
	return &CreateSessionResponse{SessionID: string(info.ID), Session: info}, nil
}

func (s *Server) StartSession(ctx context.Context, req *StartSessionRequest) (*Empty, error) {
	if _, err := s.orch.StartSession(ctx, domain.SessionID(req.SessionID)); err != nil {
		return nil, toStatus(err)
	}
	return &Empty{}, nil
}

func (s *Server) StopSession(ctx context.Context, req *StopSessionRequest) (*Empty, error) {
	if _, err := s.orch.StopSession(ctx, domain.SessionID(req.SessionID)); err != nil {
		return nil, toStatus(err)
	}
	return &Empty{}, nil
}

func (s *Server) DeleteSession(ctx context.Context, req *DeleteSessionRequest) (*Empty, error) {
	if err := s.orch.DeleteSession(ctx, domain.SessionID(req.SessionID)); err != nil {
		return nil, toStatus(err)
	}
	return &Empty{}, nil
}

func (s *Server) ListSessions(ctx context.Context, _ *Empty) (*ListSessionsResponse, error) {
	return &ListSessionsResponse{Sessions: s.orch.ListSessions(ctx)}, nil
}

func (s *Server) GetStats(ctx context.Context, req *GetStatsRequest) (*GetStatsResponse, error) {
	st, err := s.orch.GetStats(ctx, domain.SessionID(req.SessionID))
	if err != nil {
		return nil, toStatus(err)
	}
	return &GetStatsResponse{SessionStats: st}, nil
}

func (s *Server) CreatePeerConnection(ctx context.Context, req *CreatePeerConnectionRequest) (*CreatePeerConnectionResponse, error) {
	info, err := s.orch.CreatePeerConnection(ctx, domain.SessionID(req.SessionID), domain.PeerConnectionID(req.PeerConnectionID), req.Name)
	if err != nil {
		return nil, toStatus(err)
	}
	return &CreatePeerConnectionResponse{SessionID: string(info.SessionID), PeerConnectionID: string(info.ID)}, nil
}

func (s *Server) CreateOffer(ctx context.Context, req *CreateSdpRequest) (*CreateSdpResponse, error) {
	desc, err := s.orch.CreateOffer(ctx, domain.SessionID(req.SessionID), domain.PeerConnectionID(req.PeerConnectionID))
	if err != nil {
		return nil, toStatus(err)
	}
	return sdpResponse(req, desc), nil
}

func (s *Server) CreateAnswer(ctx context.Context, req *CreateSdpRequest) (*CreateSdpResponse, error) {
	desc, err := s.orch.CreateAnswer(ctx, domain.SessionID(req.SessionID), domain.PeerConnectionID(req.PeerConnectionID))
	if err != nil {
		return nil, toStatus(err)
	}
	return sdpResponse(req, desc), nil
}

func sdpResponse(req *CreateSdpRequest, desc domain.SessionDescription) *CreateSdpResponse {
	return &CreateSdpResponse{
		SessionID:        req.SessionID,
		PeerConnectionID: req.PeerConnectionID,
		SDP:              desc.SDP,
		SDPType:          string(desc.Type),
	}
}

func (s *Server) SetLocalDescription(ctx context.Context, req *SetSdpRequest) (*SetSdpResponse, error) {
	desc, err := parseDescription(req.SDPType, req.SDP)
	if err == nil {
		err = s.orch.SetLocalDescription(ctx, domain.SessionID(req.SessionID), domain.PeerConnectionID(req.PeerConnectionID), desc)
	}
	if err != nil {
		return nil, toStatus(err)
	}
	return &SetSdpResponse{SessionID: req.SessionID, PeerConnectionID: req.PeerConnectionID, Success: true}, nil
}

func (s *Server) SetRemoteDescription(ctx context.Context, req *SetSdpRequest) (*SetSdpResponse, error) {
	desc, err := parseDescription(req.SDPType, req.SDP)
	if err == nil {
		err = s.orch.SetRemoteDescription(ctx, domain.SessionID(req.SessionID), domain.PeerConnectionID(req.PeerConnectionID), desc)
	}
	if err != nil {
		return nil, toStatus(err)
	}
	return &SetSdpResponse{SessionID: req.SessionID, PeerConnectionID: req.PeerConnectionID, Success: true}, nil
}

func (s *Server) AddTrack(ctx context.Context, req *AddTrackRequest) (*Empty, error) {
	if err := s.orch.AddTrack(ctx, domain.SessionID(req.SessionID), domain.PeerConnectionID(req.PeerConnectionID), req.TrackID, req.TrackLabel); err != nil {
		return nil, toStatus(err)
	}
	return &Empty{}, nil
}

func (s *Server) AddTransceiver(ctx context.Context, req *AddTransceiverRequest) (*Empty, error) {
	if err := s.orch.AddTransceiver(ctx, domain.SessionID(req.SessionID), domain.PeerConnectionID(req.PeerConnectionID), req.TrackID, req.TrackLabel); err != nil {
		return nil, toStatus(err)
	}
	return &Empty{}, nil
}

func (s *Server) GetTransceivers(ctx context.Context, req *GetTransceiversRequest) (*GetTransceiversResponse, error) {
	ts, err := s.orch.GetTransceivers(ctx, domain.SessionID(req.SessionID), domain.PeerConnectionID(req.PeerConnectionID))
	if err != nil {
		return nil, toStatus(err)
	}
	return &GetTransceiversResponse{Transceivers: ts}, nil
}

// Observer streams events until the client goes away, the peer connection
// is torn down (OK) or the observer falls behind (ResourceExhausted).
func (s *Server) Observer(req *ObserverRequest, stream ObserverStream) error {
	ctx := stream.Context()
	sub, err := s.orch.Observe(ctx, domain.SessionID(req.SessionID), domain.PeerConnectionID(req.PeerConnectionID))
	if err != nil {
		return toStatus(err)
	}
	defer sub.Close()

	logger := log.With().Str("module", "rpc").
		Str("session_id", req.SessionID).
		Str("peer_connection_id", req.PeerConnectionID).Logger()
	logger.Debug().Msg("observer attached")

	for {
		select {
		case <-ctx.Done():
			logger.Debug().Msg("observer detached")
			return nil
		case ev, ok := <-sub.Events():
			if !ok {
				err := sub.Err()
				logger.Debug().Err(err).Msg("observer stream ended")
				return toStatus(err)
			}
			if err := stream.Send(&ev); err != nil {
				return err
			}
		}
	}
}

func unaryLogger(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
	start := time.Now()
	log.Debug().Str("module", "rpc").Str("method", info.FullMethod).Interface("request", req).Msg("requester")
	resp, err := handler(ctx, req)
	ev := log.Debug()
	if err != nil {
		ev = log.Warn().Err(err)
	}
	ev.Str("module", "rpc").Str("method", info.FullMethod).
		Dur("took", time.Since(start)).
		Interface("response", resp).Msg("responder")
	return resp, err
}

func streamLogger(srv any, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
	log.Debug().Str("module", "rpc").Str("method", info.FullMethod).Msg("stream opened")
	err := handler(srv, ss)
	log.Debug().Str("module", "rpc").Str("method", info.FullMethod).Err(err).Msg("stream closed")
	return err
}

var _ WebRTCServer = (*Server)(nil)
