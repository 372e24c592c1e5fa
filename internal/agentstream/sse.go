package agentstream

import (
	"bufio"
	"io"
	"strings"
)

const maxFrameBytes = 8 << 20

// frame is one server-sent event.
type frame struct {
	ID    string
	Event string
	Data  string
}

// readFrames parses a text/event-stream body and hands each complete frame to
// fn in order. It stops at EOF, on a read error, or when fn returns an error.
func readFrames(r io.Reader, fn func(frame) error) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxFrameBytes)

	var current frame
	var data []string
	dispatch := func() error {
		if current.Event == "" && len(data) == 0 {
			return nil
		}
		current.Data = strings.Join(data, "\n")
		if current.Event == "" {
			current.Event = "message"
		}
		err := fn(current)
		current = frame{}
		data = data[:0]
		return err
	}

	for scanner.Scan() {
		line := strings.TrimSuffix(scanner.Text(), "\r")
		if line == "" {
			if err := dispatch(); err != nil {
				return err
			}
			continue
		}
		if strings.HasPrefix(line, ":") {
			continue
		}
		field, value, _ := strings.Cut(line, ":")
		value = strings.TrimPrefix(value, " ")
		switch field {
		case "event":
			current.Event = value
		case "data":
			data = append(data, value)
		case "id":
			current.ID = value
		}
	}
	if err := scanner.Err(); err != nil {
		return err
	}
	return dispatch()
}
