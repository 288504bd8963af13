package cmd

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

// Success and failure markers.
const (
	success = "\u2713"
	failed  = "\u2717"
)

func Test_Client(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/v1/utxo/0xabc":
			w.Write([]byte(`{"address":"0xabc","name":"kennedy","balance":30,"utxos":[]}`))
		default:
			w.WriteHeader(http.StatusConflict)
			w.Write([]byte(`{"error":"transaction already known"}`))
		}
	}))
	defer srv.Close()

	url = srv.URL

	t.Log("Given the need to talk to the node api.")
	{
		testID := 0
		t.Logf("\tTest %d:\tWhen reading a balance.", testID)
		{
			b, err := fetchBalance("0xabc")
			if err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould be able to read the balance: %v", failed, testID, err)
			}
			if b.Balance != 30 || b.Name != "kennedy" {
				t.Fatalf("\t%s\tTest %d:\tShould decode the balance, got %+v.", failed, testID, b)
			}
			t.Logf("\t%s\tTest %d:\tShould decode the balance.", success, testID)
		}

		testID++
		t.Logf("\tTest %d:\tWhen the node refuses a request.", testID)
		{
			var resp submitted
			err := post("/v1/tx/submit", map[string]string{}, &resp)
			if err == nil || !strings.Contains(err.Error(), "transaction already known") {
				t.Fatalf("\t%s\tTest %d:\tShould surface the node error, got %v.", failed, testID, err)
			}
			t.Logf("\t%s\tTest %d:\tShould surface the node error.", success, testID)
		}
	}
}

func Test_KeyPath(t *testing.T) {
	accountPath = "zblock/accounts/"

	accountName = "kennedy"
	if got := getPrivateKeyPath(); got != "zblock/accounts/kennedy.ecdsa" {
		t.Fatalf("\t%s\tShould add the key extension, got %s.", failed, got)
	}
	t.Logf("\t%s\tShould add the key extension.", success)

	accountName = "kennedy.ecdsa"
	if got := getPrivateKeyPath(); got != "zblock/accounts/kennedy.ecdsa" {
		t.Fatalf("\t%s\tShould keep an existing extension, got %s.", failed, got)
	}
	t.Logf("\t%s\tShould keep an existing extension.", success)
}
