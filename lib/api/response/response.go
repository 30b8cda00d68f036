package response

import "tapearn/lib/clock"

// Response is the envelope of every API answer.
type Response struct {
	Data          interface{} `json:"data,omitempty"`
	Success       bool        `json:"success" validate:"required"`
	StatusCode    int         `json:"status_code,omitempty"`
	StatusMessage string      `json:"status_message"`
	Timestamp     string      `json:"timestamp"`
}

func Ok(data interface{}) Response {
	return Response{
		Data:          data,
		Success:       true,
		StatusMessage: "Success",
		Timestamp:     clock.Now(),
	}
}

func Error(message string) Response {
	return Response{
		Success:       false,
		StatusMessage: message,
		Timestamp:     clock.Now(),
	}
}

// Fail is an Error that also carries the HTTP status in the body, for clients
// that only see the payload (the Mini App bridge).
func Fail(status int, message string) Response {
	r := Error(message)
	r.StatusCode = status
	return r
}
