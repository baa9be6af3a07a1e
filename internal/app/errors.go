package app

import "errors"

var (
	ErrReauthenticationRequired = errors.New("re-authentication required")
	ErrRealtimeConnect          = errors.New("realtime connect failed")
	ErrRoomSubscribe            = errors.New("room subscription failed")
	ErrRoomLoad                 = errors.New("room load failed")
)
