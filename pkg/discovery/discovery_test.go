package discovery

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeResolver forwards answers pushed by the test.
type fakeResolver struct {
	answers chan answer
	gone    chan answer
}

func newFakeResolver() *fakeResolver {
	return &fakeResolver{answers: make(chan answer), gone: make(chan answer)}
}

func (f *fakeResolver) resolve(ctx context.Context, _ string, entries, removed chan<- answer) error {
	for {
		var dst chan<- answer
		var a answer
		select {
		case a = <-f.answers:
			dst = entries
		case a = <-f.gone:
			dst = removed
		case <-ctx.Done():
			return ctx.Err()
		}
		select {
		case dst <- a:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func arenaAnswer(instance, gameID string, addrs ...string) answer {
	return answer{
		Instance: instance,
		Host:     instance + ".local.",
		Port:     9000,
		Text:     TXTRecordsToStrings(EncodeArenaTXT(&ArenaInfo{GameID: gameID})),
		Addrs:    addrs,
	}
}

func nextEvent(t *testing.T, events <-chan Event) Event {
	t.Helper()
	select {
	case ev, ok := <-events:
		require.True(t, ok, "event stream closed")
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("no browse event")
		return Event{}
	}
}

func TestArenaTXTRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		info ArenaInfo
		want ArenaInfo
	}{
		{
			name: "minimal",
			info: ArenaInfo{GameID: "g1"},
			want: ArenaInfo{Version: ProtocolVersion, GameID: "g1", Path: DefaultPath, Codec: "json"},
		},
		{
			name: "full",
			info: ArenaInfo{GameID: "g2", Name: "Dunes", Path: "/arena", Secure: true, Codec: "cbor", Players: 12},
			want: ArenaInfo{Version: ProtocolVersion, GameID: "g2", Name: "Dunes", Path: "/arena", Secure: true, Codec: "cbor", Players: 12},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			strs := TXTRecordsToStrings(EncodeArenaTXT(&tt.info))
			got, err := DecodeArenaTXT(StringsToTXTRecords(strs))
			require.NoError(t, err)
			assert.Equal(t, tt.want, *got)
		})
	}
}

func TestTXTRecordsToStringsIsSorted(t *testing.T) {
	got := TXTRecordsToStrings(TXTRecordMap{"gid": "g", "ver": "1", "codec": "cbor"})
	assert.Equal(t, []string{"codec=cbor", "gid=g", "ver=1"}, got)

	txt := StringsToTXTRecords([]string{"tls", "path=/a=b", ""})
	assert.Equal(t, TXTRecordMap{"tls": "", "path": "/a=b"}, txt)
}

func TestDecodeArenaTXTErrors(t *testing.T) {
	tests := []struct {
		name string
		txt  TXTRecordMap
		want error
	}{
		{"missing version", TXTRecordMap{TXTKeyGameID: "g"}, ErrMissingRequired},
		{"future version", TXTRecordMap{TXTKeyVersion: "2", TXTKeyGameID: "g"}, ErrUnsupportedVersion},
		{"missing game", TXTRecordMap{TXTKeyVersion: "1"}, ErrMissingRequired},
		{"bad tls flag", TXTRecordMap{TXTKeyVersion: "1", TXTKeyGameID: "g", TXTKeyTLS: "yes"}, ErrInvalidTXTRecord},
		{"bad codec", TXTRecordMap{TXTKeyVersion: "1", TXTKeyGameID: "g", TXTKeyCodec: "xml"}, ErrInvalidTXTRecord},
		{"bad players", TXTRecordMap{TXTKeyVersion: "1", TXTKeyGameID: "g", TXTKeyPlayers: "-1"}, ErrInvalidTXTRecord},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeArenaTXT(tt.txt)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestServerURL(t *testing.T) {
	tests := []struct {
		name   string
		server Server
		want   string
	}{
		{
			name:   "first address wins",
			server: Server{Host: "arena.local.", Port: 9000, Addresses: []string{"192.168.1.5", "fe80::1"}, ArenaInfo: ArenaInfo{Path: "/ws"}},
			want:   "ws://192.168.1.5:9000/ws",
		},
		{
			name:   "ipv6",
			server: Server{Port: 9000, Addresses: []string{"fe80::1"}, ArenaInfo: ArenaInfo{Path: "/ws"}},
			want:   "ws://[fe80::1]:9000/ws",
		},
		{
			name:   "host fallback",
			server: Server{Host: "arena.local.", ArenaInfo: ArenaInfo{Secure: true, Path: "game"}},
			want:   "wss://arena.local:8080/game",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.server.URL())
		})
	}
}

func TestBrowseAggregatesByInstance(t *testing.T) {
	fr := newFakeResolver()
	b := newBrowser(DefaultBrowserConfig(), fr.resolve)
	t.Cleanup(b.Stop)

	events, err := b.Browse(context.Background())
	require.NoError(t, err)

	fr.answers <- arenaAnswer("Dunes", "g1", "10.0.0.1")
	ev := nextEvent(t, events)
	assert.Equal(t, ServerAdded, ev.Type)
	assert.Equal(t, "Dunes", ev.Server.InstanceName)
	assert.Equal(t, "Dunes", ev.Server.Name, "name defaults to the instance")
	assert.Equal(t, uint16(9000), ev.Server.Port)
	assert.Equal(t, []string{"10.0.0.1"}, ev.Server.Addresses)

	// Second interface for the same instance and an unparseable record: no events.
	fr.answers <- arenaAnswer("Dunes", "g1", "fe80::1", "10.0.0.1")
	fr.answers <- answer{Instance: "Broken", Text: []string{"gid=g9"}}

	fr.answers <- arenaAnswer("Canyon", "g2", "10.0.0.2")
	ev = nextEvent(t, events)
	assert.Equal(t, ServerAdded, ev.Type)
	assert.Equal(t, "Canyon", ev.Server.InstanceName)

	fr.gone <- answer{Instance: "Dunes", Addrs: []string{"10.0.0.1"}}
	fr.gone <- answer{Instance: "Unknown"}
	fr.gone <- answer{Instance: "Dunes", Addrs: []string{"fe80::1"}}
	ev = nextEvent(t, events)
	assert.Equal(t, ServerRemoved, ev.Type)
	assert.Equal(t, "Dunes", ev.Server.InstanceName)
	assert.Equal(t, "removed", ev.Type.String())

	fr.gone <- answer{Instance: "Canyon"}
	ev = nextEvent(t, events)
	assert.Equal(t, ServerRemoved, ev.Type)
	assert.Equal(t, "Canyon", ev.Server.InstanceName)
}

func TestFind(t *testing.T) {
	fr := newFakeResolver()
	b := newBrowser(DefaultBrowserConfig(), fr.resolve)
	t.Cleanup(b.Stop)

	go func() {
		fr.answers <- arenaAnswer("Dunes", "g1", "10.0.0.1")
		fr.answers <- arenaAnswer("Canyon", "g2", "10.0.0.2")
	}()

	srv, err := b.Find(context.Background(), "g2")
	require.NoError(t, err)
	assert.Equal(t, "Canyon", srv.InstanceName)
	assert.Equal(t, "ws://10.0.0.2:9000/ws", srv.URL())
}

func TestFindTimesOut(t *testing.T) {
	fr := newFakeResolver()
	b := newBrowser(BrowserConfig{BrowseTimeout: 20 * time.Millisecond}, fr.resolve)

	_, err := b.Find(context.Background(), "g1")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = b.Find(context.Background(), "")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStop(t *testing.T) {
	fr := newFakeResolver()
	b := newBrowser(DefaultBrowserConfig(), fr.resolve)

	events, err := b.Browse(context.Background())
	require.NoError(t, err)

	b.Stop()
	select {
	case _, ok := <-events:
		assert.False(t, ok)
	case <-time.After(2 * time.Second):
		t.Fatal("stream not closed after Stop")
	}

	_, err = b.Browse(context.Background())
	assert.ErrorIs(t, err, ErrBrowserStopped)
}

func TestResolverFailureEndsStream(t *testing.T) {
	b := newBrowser(DefaultBrowserConfig(), func(context.Context, string, chan<- answer, chan<- answer) error {
		return errors.New("no multicast")
	})

	events, err := b.Browse(context.Background())
	require.NoError(t, err)

	select {
	case _, ok := <-events:
		assert.False(t, ok)
	case <-time.After(2 * time.Second):
		t.Fatal("stream not closed after resolver failure")
	}
}
