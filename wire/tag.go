package wire

// Picture is embedded cover art or another attached image.
type Picture struct {
	MIMEType    string
	Data        []byte
	Description string
	Type        uint32
}

// Rating is a popularimeter entry: a normalized rating with the rater's
// identity and a play counter.
type Rating struct {
	Rating  float64
	Email   string
	Counter uint32
}

// Tag is one decoded tag record. String fields are empty when absent;
// numeric fields are zero when absent. Audio properties (bitrate through
// isLossless) are read-only as far as the guest is concerned and are
// ignored on write.
type Tag struct {
	Title       string
	Artist      string
	Album       string
	Genre       string
	Comment     string
	AlbumArtist string
	Composer    string

	Year  uint32
	Track uint32
	Disc  uint32
	BPM   uint32

	Bitrate       uint32
	SampleRate    uint32
	Channels      uint32
	Length        uint32
	LengthMs      uint32
	BitsPerSample uint32

	Codec           string
	ContainerFormat string
	IsLossless      bool

	Pictures []Picture
	Ratings  []Rating
}
