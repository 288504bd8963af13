package validate_test

import (
	"testing"

	"github.com/ardanlabs/p2pledger/business/sys/validate"
)

// Success and failure markers.
const (
	success = "\u2713"
	failed  = "\u2717"
)

type payment struct {
	To    string `json:"to" validate:"required,address"`
	Value uint64 `json:"value" validate:"required,gt=0"`
}

func Test_Check(t *testing.T) {
	t.Log("Given the need to validate request models.")
	{
		testID := 0
		t.Logf("\tTest %d:\tWhen handling a valid model.", testID)
		{
			p := payment{To: "0xdd6B972ffcc631a62CAE1BB9d80b7ff429c8ebA4", Value: 10}
			if err := validate.Check(p); err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould accept the model: %s", failed, testID, err)
			}
			t.Logf("\t%s\tTest %d:\tShould accept the model.", success, testID)
		}

		testID++
		t.Logf("\tTest %d:\tWhen handling an invalid model.", testID)
		{
			err := validate.Check(payment{To: "bill"})
			if !validate.IsFieldErrors(err) {
				t.Fatalf("\t%s\tTest %d:\tShould return field errors, got %v.", failed, testID, err)
			}
			t.Logf("\t%s\tTest %d:\tShould return field errors.", success, testID)

			fields := validate.GetFieldErrors(err).Fields()
			if fields["to"] != "to must be a valid address" {
				t.Fatalf("\t%s\tTest %d:\tShould name the bad address, got %q.", failed, testID, fields["to"])
			}
			if _, exists := fields["value"]; !exists {
				t.Fatalf("\t%s\tTest %d:\tShould name the missing value.", failed, testID)
			}
			t.Logf("\t%s\tTest %d:\tShould use the json names of the fields.", success, testID)
		}
	}
}
