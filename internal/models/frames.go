package models

import "encoding/json"

// NewFrame builds a server-initiated event frame.
func NewFrame(frameType string, data any) WSFrame {
	return WSFrame{Type: frameType, Data: mustMarshal(data)}
}

// AckFrame builds the reply to a request that carried a seq.
func AckFrame(seq uint64, data any) WSFrame {
	return WSFrame{Type: FrameAck, Seq: seq, Data: mustMarshal(data)}
}

// ErrorFrame builds an error frame carrying a wire error code.
func ErrorFrame(code string) WSFrame {
	return NewFrame(FrameError, code)
}

// Decode unmarshals a frame payload into out.
func Decode(raw json.RawMessage, out any) error {
	if len(raw) == 0 {
		return nil
	}
	return json.Unmarshal(raw, out)
}

func mustMarshal(data any) json.RawMessage {
	if data == nil {
		return nil
	}
	raw, err := json.Marshal(data)
	if err != nil {
		// All payload types marshal cleanly; a failure here is a programming error.
		panic(err)
	}
	return raw
}
