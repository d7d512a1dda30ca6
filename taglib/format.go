package taglib

// Format hints the guest at the container format of a buffer, bypassing
// content sniffing. FormatAuto lets the guest detect.
type Format uint32

const (
	FormatAuto Format = iota
	FormatMP3
	FormatFLAC
	FormatM4A
	FormatOGG
	FormatWAV
	FormatAPE
	FormatWV
	FormatOpus
)

var formatNames = map[Format]string{
	FormatAuto: "auto",
	FormatMP3:  "mp3",
	FormatFLAC: "flac",
	FormatM4A:  "m4a",
	FormatOGG:  "ogg",
	FormatWAV:  "wav",
	FormatAPE:  "ape",
	FormatWV:   "wv",
	FormatOpus: "opus",
}

func (f Format) String() string {
	if name, ok := formatNames[f]; ok {
		return name
	}
	return "unknown"
}

// FormatForExt maps a file extension (with or without the leading dot) to
// a format hint, defaulting to FormatAuto.
func FormatForExt(ext string) Format {
	if len(ext) > 0 && ext[0] == '.' {
		ext = ext[1:]
	}
	switch ext {
	case "mp3":
		return FormatMP3
	case "flac":
		return FormatFLAC
	case "m4a", "mp4", "aac":
		return FormatM4A
	case "ogg":
		return FormatOGG
	case "wav":
		return FormatWAV
	case "ape":
		return FormatAPE
	case "wv":
		return FormatWV
	case "opus":
		return FormatOpus
	default:
		return FormatAuto
	}
}
