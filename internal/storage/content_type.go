package storage

import "strings"

func contentType(key string) string {
	switch {
	case strings.HasSuffix(key, ".ts"):
		return "video/mp2t"
	case strings.HasSuffix(key, ".m3u8"):
		return "application/vnd.apple.mpegurl"
	case strings.HasSuffix(key, ".aac"):
		return "audio/aac"
	case strings.HasSuffix(key, ".mp3"):
		return "audio/mpeg"
	}
	return "application/octet-stream"
}
