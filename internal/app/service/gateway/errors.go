package gateway

import "errors"

// ErrGateway wraps any failure reported by the payment provider itself,
// as opposed to transport errors.
var ErrGateway = errors.New("payment gateway error")
