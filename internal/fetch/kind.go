package fetch

import "fmt"

// Kind is the requested output form for a URL.
type Kind int

const (
	KindVideo Kind = iota
	KindAudio
	KindLink
)

func (k Kind) String() string {
	switch k {
	case KindVideo:
		return "video"
	case KindAudio:
		return "audio"
	case KindLink:
		return "link"
	default:
		return "unknown"
	}
}

// ParseKind maps the wire tag used in callback data to a Kind.
func ParseKind(s string) (Kind, error) {
	switch s {
	case "video":
		return KindVideo, nil
	case "audio":
		return KindAudio, nil
	case "link":
		return KindLink, nil
	}

	return 0, fmt.Errorf("unknown kind %q", s)
}
