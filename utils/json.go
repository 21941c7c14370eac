package utils

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/pkg/errors"
)

func JsonDecodeHttpRequest(req *http.Request, val interface{}) (err error) {
	body, err := io.ReadAll(req.Body)
	if err != nil {
		return errors.Wrap(err, "unable to read the request")
	}

	if err = json.Unmarshal(body, val); err != nil {
		return errors.Wrap(err, fmt.Sprintf("unable to parse string '%s' to JSON object", string(body)))
	}

	return nil
}

func JsonLoadConfig(filepath string, v interface{}) error {
	if filepath == "" {
		return errors.New("filepath can not be empty")
	}
	if ok, err := PathExists(filepath); err != nil || !ok {
		return nil
	}
	f, err := os.ReadFile(filepath)
	if err != nil {
		return err
	}
	if len(f) == 0 {
		return nil
	}

	return json.Unmarshal(f, v)
}
