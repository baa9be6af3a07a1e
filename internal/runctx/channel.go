package runctx

// OfferLatest hands value to ch without blocking. When ch is full the oldest
// buffered value is dropped to make room, so readers always see the newest
// state.
func OfferLatest[T any](ch chan T, value T) {
	select {
	case ch <- value:
		return
	default:
	}
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- value:
	default:
	}
}
