package socks5

import (
	"context"
	"net"
	"testing"
	"time"

	"git.tcp.direct/kayos/socks"

	"github.com/netgrove/sftptunnel/internal/testutil"
)

func TestServeConnect(t *testing.T) {
	tests := []struct {
		name    string
		auth    Auth
		creds   string
		wantErr bool
	}{
		{name: "no_auth"},
		{name: "user_pass", auth: Auth{Username: "user", Password: "pass"}, creds: "user:pass@"},
		{name: "bad_password", auth: Auth{Username: "user", Password: "pass"}, creds: "user:wrong@", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()

			echoLn := testutil.StartEchoTCPServer(t, ctx)
			defer echoLn.Close()

			upLn, waitUp := testutil.StartSingleAcceptServer(t, ctx, func(c net.Conn) {
				_ = ServeConnect(ctx, c, tt.auth)
			})

			dial := socks.Dial("socks5://" + tt.creds + upLn.Addr().String() + "?timeout=2s")
			conn, err := dial("tcp", echoLn.Addr().String())
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected negotiation error")
				}
				waitUp()
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			defer conn.Close()

			testutil.AssertEcho(t, conn, conn, []byte("hello"))
			waitUp()
		})
	}
}
