package httpapi

// Result the JSON envelope for operator-facing endpoints. Controller-facing
// endpoints (sync, register) return bare payloads instead.
type Result[T any] struct {
	Code    int    `json:"code"`
	Type    string `json:"type"`
	Message string `json:"message"`
	Result  T      `json:"result"`
}

const (
	ResultSuccess = 2000
	ResultError   = -1
)

func Ok[T any](result T) Result[T] {
	return Result[T]{Code: ResultSuccess, Type: "success", Message: "ok", Result: result}
}

func Fail(message string) Result[any] {
	return Result[any]{Code: ResultError, Type: "error", Message: message, Result: nil}
}

// Denied carries the reason and diagnostic context of a policy denial or
// conflict so the operator UI can explain it
type Denied struct {
	Reason  string                 `json:"reason"`
	Context map[string]interface{} `json:"context,omitempty"`
}

func FailDenied(message string, denied Denied) Result[Denied] {
	return Result[Denied]{Code: ResultError, Type: "error", Message: message, Result: denied}
}
