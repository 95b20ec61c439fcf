package logging

import "log/slog"

// Err records err under the key "error". A nil error yields an empty Attr.
func Err(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.Any("error", err)
}

func Component(name string) slog.Attr {
	return slog.String("component", name)
}

func Destination(dest string) slog.Attr {
	return slog.String("destination", dest)
}

func Handler(name string) slog.Attr {
	return slog.String("handler", name)
}

func Attempt(n int) slog.Attr {
	return slog.Int("attempt", n)
}

func SessionID(id string) slog.Attr {
	return slog.String("session_id", id)
}

func NotificationID(id int64) slog.Attr {
	return slog.Int64("notification_id", id)
}
