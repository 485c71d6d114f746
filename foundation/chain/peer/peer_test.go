package peer_test

import (
	"testing"

	"github.com/coinforge/node/foundation/chain/peer"
)

func Test_CRUD(t *testing.T) {
	type table struct {
		name  string
		peers []peer.Peer
	}

	tt := []table{
		{
			name:  "basic",
			peers: []peer.Peer{{URL: "http://host1"}, {URL: "http://host2"}, {URL: "http://host3"}},
		},
	}

	for _, tst := range tt {
		f := func(t *testing.T) {
			ps := peer.NewSet()

			if added := ps.Add(tst.peers...); !added {
				t.Fatalf("Test %s:\tShould report new peers as added.", tst.name)
			}
			if added := ps.Add(tst.peers...); added {
				t.Fatalf("Test %s:\tShould report nothing added on re-add.", tst.name)
			}

			peers := ps.Copy("")
			if len(peers) != len(tst.peers) {
				t.Logf("Test %s:\tgot: %d", tst.name, len(peers))
				t.Logf("Test %s:\texp: %d", tst.name, len(tst.peers))
				t.Fatalf("Test %s:\tShould get back the right peers.", tst.name)
			}

			peers = ps.Copy("http://host2")
			if len(peers) != len(tst.peers)-1 {
				t.Logf("Test %s:\tgot: %d", tst.name, len(peers))
				t.Logf("Test %s:\texp: %d", tst.name, len(tst.peers)-1)
				t.Fatalf("Test %s:\tShould exclude self from the copy.", tst.name)
			}

			ps.Remove(peer.New("http://host1"))
			if ps.Contains("http://host1") {
				t.Fatalf("Test %s:\tShould remove the peer.", tst.name)
			}
			if !ps.Contains("http://host3") {
				t.Fatalf("Test %s:\tShould keep the other peers.", tst.name)
			}
		}

		t.Run(tst.name, f)
	}
}
