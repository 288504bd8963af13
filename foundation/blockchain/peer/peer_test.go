package peer_test

import (
	"net"
	"sync"
	"testing"

	"github.com/ardanlabs/p2pledger/foundation/blockchain/peer"
)

func Test_CRUD(t *testing.T) {
	type table struct {
		name  string
		peers []peer.Peer
	}

	tt := []table{
		{
			name:  "basic",
			peers: []peer.Peer{peer.New("host1", 50082), peer.New("host2", 50082), peer.New("host2", 50090)},
		},
	}

	for _, tst := range tt {
		f := func(t *testing.T) {
			ps := peer.NewPeerSet()

			for _, p := range tst.peers {
				if !ps.Add(p) {
					t.Fatalf("Test %s:\tShould be able to add peer %s.", tst.name, p)
				}
			}

			if ps.Add(tst.peers[0]) {
				t.Fatalf("Test %s:\tShould not add the same peer twice.", tst.name)
			}

			peers := ps.Copy()
			if len(peers) != len(tst.peers) {
				t.Logf("Test %s:\tgot: %d", tst.name, len(peers))
				t.Logf("Test %s:\texp: %d", tst.name, len(tst.peers))
				t.Fatalf("Test %s:\tShould get back the right peers.", tst.name)
			}

			peers = ps.CopyExcept(tst.peers[1])
			if len(peers) != len(tst.peers)-1 {
				t.Logf("Test %s:\tgot: %d", tst.name, len(peers))
				t.Logf("Test %s:\texp: %d", tst.name, len(tst.peers)-1)
				t.Fatalf("Test %s:\tShould get back the right peers.", tst.name)
			}

			if !ps.Remove(tst.peers[1]) || ps.Remove(tst.peers[1]) {
				t.Fatalf("Test %s:\tShould remove a peer once and no-op the second time.", tst.name)
			}

			ps.Overwrite([]peer.Peer{tst.peers[0]})
			if ps.Len() != 1 || !ps.Contains(tst.peers[0]) {
				t.Fatalf("Test %s:\tShould replace the set on overwrite.", tst.name)
			}
		}

		t.Run(tst.name, f)
	}
}

func Test_Edges(t *testing.T) {
	es := peer.NewEdgeSet()

	p := peer.New("10.0.0.1", 50100)
	es.Add(peer.Edge{Peer: p, Payload: "wallet-a"})
	es.Add(peer.Edge{Peer: p, Payload: "wallet-b"})

	if es.Len() != 2 {
		t.Fatalf("Should keep two edges behind the same address, got %d.", es.Len())
	}

	n := es.RemoveFunc(func(e peer.Edge) bool { return e.Peer == p })
	if n != 2 || es.Len() != 0 {
		t.Fatalf("Should remove every edge behind the address, removed %d.", n)
	}
}

func Test_Parse(t *testing.T) {
	p, err := peer.Parse("127.0.0.1:50082")
	if err != nil {
		t.Fatalf("Should be able to parse the peer: %s", err)
	}

	if p != peer.New("127.0.0.1", 50082) || p.Addr() != "127.0.0.1:50082" {
		t.Fatalf("Should get back the same peer, got %s.", p)
	}

	for _, bad := range []string{"127.0.0.1", "127.0.0.1:0", "host:abc"} {
		if _, err := peer.Parse(bad); err == nil {
			t.Fatalf("Should reject %q.", bad)
		}
	}
}

func Test_Resolve(t *testing.T) {
	p, err := peer.Resolve("127.0.0.1", 50082)
	if err != nil || p != peer.New("127.0.0.1", 50082) {
		t.Fatalf("Should keep an IP address as it is, got %s: %v.", p, err)
	}

	p, err = peer.Resolve("localhost", 50082)
	if err != nil {
		t.Fatalf("Should be able to resolve localhost: %s", err)
	}
	if ip := net.ParseIP(p.Host); ip == nil || !ip.IsLoopback() || p.Port != 50082 {
		t.Fatalf("Should resolve localhost to a loopback address, got %s.", p)
	}

	if err := peer.CheckAdvertised("10.0.0.7"); err != nil {
		t.Fatalf("Should accept an IP address: %s", err)
	}
	for _, bad := range []string{"0.0.0.0", "node1.example.com", ""} {
		if err := peer.CheckAdvertised(bad); err == nil {
			t.Fatalf("Should refuse to advertise %q.", bad)
		}
	}
}

func Test_Concurrent(t *testing.T) {
	ps := peer.NewPeerSet()

	var wg sync.WaitGroup
	for i := range 50 {
		wg.Add(2)
		go func() {
			defer wg.Done()
			ps.Add(peer.New("host", 1000+i))
		}()
		go func() {
			defer wg.Done()
			for range ps.Copy() {
				ps.Len()
			}
		}()
	}
	wg.Wait()

	if ps.Len() != 50 {
		t.Fatalf("Should have 50 peers, got %d.", ps.Len())
	}
}
