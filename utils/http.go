package utils

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

var (
	HEADER_TRIGGER_URL = "TriggerURL"
)

func HttpPostWithoutHeaders(url string, obj interface{}) ([]byte, error) {
	return HttpPost(url, nil, obj)
}

func HttpPostForObject(url string, headers map[string]string, obj interface{}, retObj interface{}) error {
	b, err := HttpPost(url, headers, obj)
	if err != nil {
		return err
	}

	if retObj == nil {
		return nil
	}

	err = json.Unmarshal(b, retObj)
	if err != nil {
		return errors.Wrap(err, "failed to json unmarshal response body")
	}

	return nil
}

type HttpPostError struct {
	error
	statusCode int
}

func (e HttpPostError) StatusCode() int {
	return e.statusCode
}

func HttpPost(url string, headers map[string]string, obj interface{}) ([]byte, error) {
	var b []byte
	var err error

	if obj != nil {
		b, err = json.Marshal(obj)
		if err != nil {
			return nil, errors.Wrap(err, fmt.Sprintf("unable to do HTTP post to %v", url))
		}
	} else {
		b = []byte("")
	}

	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(b))
	if err != nil {
		return nil, errors.Wrap(err, fmt.Sprintf("unable to do HTTP post to %v", url))
	}

	for k, v := range headers {
		req.Header.Add(k, v)
	}

	c := &http.Client{}

	triggerUrl := req.Header.Get(HEADER_TRIGGER_URL)
	if triggerUrl != "" {
		log.Debugf("[HTTP POST][ASYNC REPLY TO %s] %s, body: %s", triggerUrl, url, string(b))
	} else {
		log.Debugf("[HTTP POST] %s, body: %s", url, string(b))
	}

	rsp, err := c.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, fmt.Sprintf("unable to do HTTP post to %v", url))
	}
	defer rsp.Body.Close()

	body, err := io.ReadAll(rsp.Body)
	if err != nil {
		return nil, errors.Wrap(err, fmt.Sprintf("unable to read the response body from %v", url))
	}

	if rsp.StatusCode < 200 || rsp.StatusCode >= 300 {
		return nil, HttpPostError{
			error:      errors.Errorf("HTTP post to %v failed, status code: %v, response body: %s", url, rsp.StatusCode, string(body)),
			statusCode: rsp.StatusCode,
		}
	}

	return body, nil
}
