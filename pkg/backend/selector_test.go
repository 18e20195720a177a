package backend

import (
	"context"
	"errors"
	"testing"

	"github.com/account-gate/accountgate/pkg/apierror"
)

func TestSelectorShouldUseSocket(t *testing.T) {
	live := NewSocketClient("ws://unused")
	live.connected.Store(true)
	dead := NewSocketClient("ws://unused")

	tests := []struct {
		name string
		sel  *Selector
		ctx  context.Context
		want bool
	}{
		{
			name: "socket preferred and connected",
			sel:  NewSelector(nil, WithSocket(live)),
			ctx:  context.Background(),
			want: true,
		},
		{
			name: "socket preferred but disconnected",
			sel:  NewSelector(nil, WithSocket(dead)),
			ctx:  context.Background(),
			want: false,
		},
		{
			name: "http preferred despite live socket",
			sel:  NewSelector(nil, WithSocket(live), WithTransport(TransportHTTP)),
			ctx:  context.Background(),
			want: false,
		},
		{
			name: "force-http override wins",
			sel:  NewSelector(nil, WithSocket(live)),
			ctx:  ForceHTTP(context.Background()),
			want: false,
		},
		{
			name: "no socket client configured",
			sel:  NewSelector(nil, WithTransport(TransportSocket)),
			ctx:  context.Background(),
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.sel.shouldUseSocket(tt.ctx); got != tt.want {
				t.Errorf("shouldUseSocket() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestIsSocketFailure(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"closed sentinel", ErrSocketClosed, true},
		{"connection error", apierror.New(apierror.KindConnectionError, "lost"), true},
		{"timeout", apierror.New(apierror.KindTimeout, "slow"), true},
		{"service unavailable", apierror.New(apierror.KindServiceUnavailable, "down"), true},
		{"backend-reported token failure", apierror.New(apierror.KindTokenInvalid, "bad"), false},
		{"backend-reported not found", apierror.New(apierror.KindUserNotFound, "missing"), false},
		{"untyped error", errors.New("boom"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isSocketFailure(tt.err); got != tt.want {
				t.Errorf("isSocketFailure() = %v, want %v", got, tt.want)
			}
		})
	}
}
