package protocol

import "encoding/json"

const StatusError = "error"

// Record is one opaque buffered sample, kept exactly as the device sent it.
type Record = json.RawMessage

// StatusResponse is the generic reply to set/clear style commands.
type StatusResponse struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

type SetTimeResponse struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
	Offset  int64  `json:"offset"`
	Time    string `json:"time"`
}

type ReadBufferResponse struct {
	Records []Record `json:"records"`
	Length  int      `json:"length"`
}

type GetNowResponse struct {
	Epoch int64  `json:"epoch"`
	Local string `json:"local"`
}

type GetStatusResponse struct {
	Logging    bool `json:"logging"`
	BufferSize int  `json:"bufferSize"`
	RateHz     int  `json:"rateHz"`
}

type SetSamplingRateResponse struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
	Rate    int    `json:"rate"`
}

type SetLogLevelResponse struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
	Printer string `json:"printer"`
	Level   int    `json:"level"`
}

type DropRecordsResponse struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
	Offset  int    `json:"offset"`
	Length  int    `json:"length"`
}

// CheckStatus turns an explicit {"status":"error"} reply into a DeviceError.
func CheckStatus(cmd Command, r Response) error {
	if r.Status() != StatusError {
		return nil
	}
	msg, _ := r.String("message")

	return &DeviceError{Command: cmd, Message: msg}
}
