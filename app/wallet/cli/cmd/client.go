package cmd

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/ardanlabs/p2pledger/business/web/errs"
)

var client = http.Client{
	Timeout: 10 * time.Second,
}

// get calls the node api and decodes the response into the value.
func get(path string, v any) error {
	resp, err := client.Get(url + path)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	return decode(resp, v)
}

// post sends the value as json to the node api and decodes the response
// into the result.
func post(path string, body any, result any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return err
	}

	resp, err := client.Post(url+path, "application/json", bytes.NewReader(data))
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	return decode(resp, result)
}

func decode(resp *http.Response, v any) error {
	if resp.StatusCode >= http.StatusBadRequest {
		var er errs.ErrorResponse
		if err := json.NewDecoder(resp.Body).Decode(&er); err != nil {
			return fmt.Errorf("node returned %s", resp.Status)
		}
		return fmt.Errorf("node returned %s: %s", resp.Status, er.Error)
	}

	if v == nil {
		return nil
	}

	return json.NewDecoder(resp.Body).Decode(v)
}
