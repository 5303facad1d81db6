package core

import (
	"testing"

	"github.com/dkeye/rtcserver/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNext(t *testing.T) {
	tests := []struct {
		name    string
		cur     domain.NegotiationState
		op      Op
		sdpType domain.SDPType
		want    domain.NegotiationState
		wantErr bool
	}{
		{"offer from idle", domain.NegotiationIdle, OpCreateOffer, "", domain.NegotiationOfferCreated, false},
		{"offer twice", domain.NegotiationOfferCreated, OpCreateOffer, "", domain.NegotiationOfferCreated, false},
		{"offer after remote", domain.NegotiationRemoteSet, OpCreateOffer, "", "", true},
		{"answer from idle", domain.NegotiationIdle, OpCreateAnswer, "", "", true},
		{"answer after remote offer", domain.NegotiationRemoteSet, OpCreateAnswer, "", domain.NegotiationAnswerCreated, false},
		{"local offer", domain.NegotiationOfferCreated, OpSetLocal, domain.SDPTypeOffer, domain.NegotiationLocalSet, false},
		{"local offer from idle", domain.NegotiationIdle, OpSetLocal, domain.SDPTypeOffer, domain.NegotiationLocalSet, false},
		{"local answer without remote", domain.NegotiationIdle, OpSetLocal, domain.SDPTypeAnswer, "", true},
		{"local answer", domain.NegotiationAnswerCreated, OpSetLocal, domain.SDPTypeAnswer, domain.NegotiationNegotiated, false},
		{"local pranswer", domain.NegotiationRemoteSet, OpSetLocal, domain.SDPTypePranswer, domain.NegotiationRemoteSet, false},
		{"remote offer", domain.NegotiationIdle, OpSetRemote, domain.SDPTypeOffer, domain.NegotiationRemoteSet, false},
		{"remote answer", domain.NegotiationLocalSet, OpSetRemote, domain.SDPTypeAnswer, domain.NegotiationNegotiated, false},
		{"remote answer without local", domain.NegotiationOfferCreated, OpSetRemote, domain.SDPTypeAnswer, "", true},
		{"remote pranswer", domain.NegotiationLocalSet, OpSetRemote, domain.SDPTypePranswer, domain.NegotiationLocalSet, false},
		{"rollback local", domain.NegotiationLocalSet, OpSetLocal, domain.SDPTypeRollback, domain.NegotiationIdle, false},
		{"rollback remote", domain.NegotiationRemoteSet, OpSetRemote, domain.SDPTypeRollback, domain.NegotiationIdle, false},
		{"rollback idle", domain.NegotiationIdle, OpSetRemote, domain.SDPTypeRollback, "", true},
		{"media before negotiation", domain.NegotiationLocalSet, OpAddMedia, "", domain.NegotiationLocalSet, false},
		{"media after negotiation", domain.NegotiationNegotiated, OpAddMedia, "", "", true},
		{"offer after negotiation", domain.NegotiationNegotiated, OpCreateOffer, "", "", true},
		{"read after negotiation", domain.NegotiationNegotiated, OpRead, "", domain.NegotiationNegotiated, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Next(tt.cur, tt.op, tt.sdpType)
			if tt.wantErr {
				require.ErrorIs(t, err, domain.ErrInvalidState)
				assert.Equal(t, tt.cur, got)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNextEitherOrderReachesNegotiated(t *testing.T) {
	// local offer first
	s, err := Next(domain.NegotiationIdle, OpCreateOffer, "")
	require.NoError(t, err)
	s, err = Next(s, OpSetLocal, domain.SDPTypeOffer)
	require.NoError(t, err)
	s, err = Next(s, OpSetRemote, domain.SDPTypeAnswer)
	require.NoError(t, err)
	assert.Equal(t, domain.NegotiationNegotiated, s)

	// remote offer first
	s, err = Next(domain.NegotiationIdle, OpSetRemote, domain.SDPTypeOffer)
	require.NoError(t, err)
	s, err = Next(s, OpCreateAnswer, "")
	require.NoError(t, err)
	s, err = Next(s, OpSetLocal, domain.SDPTypeAnswer)
	require.NoError(t, err)
	assert.Equal(t, domain.NegotiationNegotiated, s)
}
