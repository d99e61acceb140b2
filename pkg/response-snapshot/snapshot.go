package snapshot

import (
	"bufio"
	"bytes"
	"net/http"
	"strconv"
	"time"
)

const receivedAtHeaderName = "Scache-Received-At"

// TimedResponse is a response snapshot together with the time it was
// received from the network. The receive time is needed for age-based
// rejection of stored entries.
type TimedResponse struct {
	Response   *http.Response
	ReceivedAt time.Time
}

// Marshal serializes a timed response to its HTTP/1.1 wire representation.
// The response body is intact and readable when Marshal returns.
func Marshal(tr TimedResponse) ([]byte, error) {
	res := tr.Response
	res.Header.Set(receivedAtHeaderName, strconv.FormatInt(tr.ReceivedAt.Unix(), 10))
	bts, err := responseToBytes(res)
	// remove the extra header just in case
	res.Header.Del(receivedAtHeaderName)
	return bts, err
}

// Unmarshal deserializes a snapshot previously produced by Marshal.
// The request, which may be nil, is associated with the returned response.
func Unmarshal(b []byte, req *http.Request) (TimedResponse, error) {
	tr := TimedResponse{}
	res, err := bytesToResponse(b, req)
	if err != nil {
		return tr, err
	}
	tr.Response = res
	if receivedInt, err := strconv.ParseInt(res.Header.Get(receivedAtHeaderName), 10, 64); err == nil {
		tr.ReceivedAt = time.Unix(receivedInt, 0)
	}
	res.Header.Del(receivedAtHeaderName)
	return tr, nil
}

// Clone returns a deep copy of the response with its own body reader.
// The original response body is intact and readable when Clone returns.
func Clone(res *http.Response) (*http.Response, error) {
	bts, err := responseToBytes(res)
	if err != nil {
		return nil, err
	}
	clone, err := bytesToResponse(bts, res.Request)
	if err != nil {
		return nil, err
	}
	return clone, nil
}

// bytesToResponse converts a byte slice to a http.Response.
func bytesToResponse(b []byte, req *http.Request) (*http.Response, error) {
	return http.ReadResponse(bufio.NewReader(bytes.NewReader(b)), req)
}

// responseToBytes converts a response to a byte slice.
// It returns the HTTP/1.1 representation of the response.
func responseToBytes(res *http.Response) ([]byte, error) {
	// the wire format needs a protocol version; responses built by hand
	// (tests, opaque placeholders) often leave it zero
	if res.ProtoMajor == 0 {
		res.ProtoMajor, res.ProtoMinor = 1, 1
	}
	// write response to buffer
	buf := &bytes.Buffer{}
	if err := res.Write(buf); err != nil {
		return nil, err
	}
	// set response body back
	bts := buf.Bytes()
	restored, err := http.ReadResponse(bufio.NewReader(bytes.NewReader(bts)), res.Request)
	if err != nil {
		return nil, err
	}
	res.Body = restored.Body
	// return buffer bytes
	return bts, nil
}
