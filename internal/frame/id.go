package frame

import (
	"errors"
	"strconv"

	"github.com/goccy/go-json"
)

// Id identifies a user or a message on the wire. Clients send ids either as
// JSON numbers or strings; canonical integers are written back as numbers.
type Id string

var errInvalidId = errors.New("id must be a string or an integer")

func (i Id) String() string {
	return string(i)
}

func (i Id) MarshalJSON() ([]byte, error) {
	if n, err := strconv.ParseInt(string(i), 10, 64); err == nil && strconv.FormatInt(n, 10) == string(i) {
		return []byte(string(i)), nil
	}

	return json.Marshal(string(i))
}

func (i *Id) UnmarshalJSON(data []byte) error {
	if len(data) == 0 || string(data) == "null" {
		*i = ""
		return nil
	}

	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*i = Id(s)
		return nil
	}

	n, err := strconv.ParseInt(string(data), 10, 64)
	if err != nil {
		return errInvalidId
	}
	*i = Id(strconv.FormatInt(n, 10))

	return nil
}
