package wire

import (
	"bytes"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/CharlesWiltgen/taglib-wasm-sub003/errors"
)

// Field names as they appear on the wire. The guest matches these
// case-sensitively.
const (
	fieldTitle       = "title"
	fieldArtist      = "artist"
	fieldAlbum       = "album"
	fieldGenre       = "genre"
	fieldComment     = "comment"
	fieldAlbumArtist = "albumArtist"
	fieldComposer    = "composer"

	fieldYear  = "year"
	fieldTrack = "track"
	fieldDisc  = "disc"
	fieldBPM   = "bpm"

	fieldBitrate       = "bitrate"
	fieldSampleRate    = "sampleRate"
	fieldChannels      = "channels"
	fieldLength        = "length"
	fieldLengthMs      = "lengthMs"
	fieldBitsPerSample = "bitsPerSample"

	fieldCodec           = "codec"
	fieldContainerFormat = "containerFormat"
	fieldIsLossless      = "isLossless"

	fieldPictures = "pictures"
	fieldRatings  = "ratings"

	fieldMIMEType    = "mimeType"
	fieldData        = "data"
	fieldDescription = "description"
	fieldType        = "type"

	fieldRating  = "rating"
	fieldEmail   = "email"
	fieldCounter = "counter"
)

type fieldWriter struct {
	name  string
	write func(*msgpack.Encoder) error
}

// Encode serializes t as a MessagePack map. Fields at their zero value are
// omitted entirely rather than encoded as empty, so a round trip through
// Encode and Decode preserves "absent".
func Encode(t *Tag) ([]byte, error) {
	var fields []fieldWriter
	addString := func(name, v string) {
		if v == "" {
			return
		}
		fields = append(fields, fieldWriter{name, func(enc *msgpack.Encoder) error {
			return enc.EncodeString(v)
		}})
	}
	addUint := func(name string, v uint32) {
		if v == 0 {
			return
		}
		fields = append(fields, fieldWriter{name, func(enc *msgpack.Encoder) error {
			return enc.EncodeUint32(v)
		}})
	}

	addString(fieldTitle, t.Title)
	addString(fieldArtist, t.Artist)
	addString(fieldAlbum, t.Album)
	addString(fieldGenre, t.Genre)
	addString(fieldComment, t.Comment)
	addString(fieldAlbumArtist, t.AlbumArtist)
	addString(fieldComposer, t.Composer)

	addUint(fieldYear, t.Year)
	addUint(fieldTrack, t.Track)
	addUint(fieldDisc, t.Disc)
	addUint(fieldBPM, t.BPM)

	addUint(fieldBitrate, t.Bitrate)
	addUint(fieldSampleRate, t.SampleRate)
	addUint(fieldChannels, t.Channels)
	addUint(fieldLength, t.Length)
	addUint(fieldLengthMs, t.LengthMs)
	addUint(fieldBitsPerSample, t.BitsPerSample)

	addString(fieldCodec, t.Codec)
	addString(fieldContainerFormat, t.ContainerFormat)
	if t.IsLossless {
		fields = append(fields, fieldWriter{fieldIsLossless, func(enc *msgpack.Encoder) error {
			return enc.EncodeBool(true)
		}})
	}
	if len(t.Pictures) > 0 {
		pics := t.Pictures
		fields = append(fields, fieldWriter{fieldPictures, func(enc *msgpack.Encoder) error {
			return encodePictures(enc, pics)
		}})
	}
	if len(t.Ratings) > 0 {
		ratings := t.Ratings
		fields = append(fields, fieldWriter{fieldRatings, func(enc *msgpack.Encoder) error {
			return encodeRatings(enc, ratings)
		}})
	}

	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)
	if err := enc.EncodeMapLen(len(fields)); err != nil {
		return nil, encodeErr(err)
	}
	for _, f := range fields {
		if err := enc.EncodeString(f.name); err != nil {
			return nil, encodeErr(err)
		}
		if err := f.write(enc); err != nil {
			return nil, encodeErr(err)
		}
	}
	return buf.Bytes(), nil
}

func encodePictures(enc *msgpack.Encoder, pics []Picture) error {
	if err := enc.EncodeArrayLen(len(pics)); err != nil {
		return err
	}
	for _, p := range pics {
		if err := enc.EncodeMapLen(4); err != nil {
			return err
		}
		if err := enc.EncodeString(fieldMIMEType); err != nil {
			return err
		}
		if err := enc.EncodeString(p.MIMEType); err != nil {
			return err
		}
		if err := enc.EncodeString(fieldData); err != nil {
			return err
		}
		if err := enc.EncodeBytes(p.Data); err != nil {
			return err
		}
		if err := enc.EncodeString(fieldDescription); err != nil {
			return err
		}
		if err := enc.EncodeString(p.Description); err != nil {
			return err
		}
		if err := enc.EncodeString(fieldType); err != nil {
			return err
		}
		if err := enc.EncodeUint32(p.Type); err != nil {
			return err
		}
	}
	return nil
}

func encodeRatings(enc *msgpack.Encoder, ratings []Rating) error {
	if err := enc.EncodeArrayLen(len(ratings)); err != nil {
		return err
	}
	for _, r := range ratings {
		if err := enc.EncodeMapLen(3); err != nil {
			return err
		}
		if err := enc.EncodeString(fieldRating); err != nil {
			return err
		}
		if err := enc.EncodeFloat64(r.Rating); err != nil {
			return err
		}
		if err := enc.EncodeString(fieldEmail); err != nil {
			return err
		}
		if err := enc.EncodeString(r.Email); err != nil {
			return err
		}
		if err := enc.EncodeString(fieldCounter); err != nil {
			return err
		}
		if err := enc.EncodeUint32(r.Counter); err != nil {
			return err
		}
	}
	return nil
}

// Decode parses a MessagePack tag record. Unknown keys are skipped so the
// host keeps working when the guest grows its schema.
func Decode(data []byte) (*Tag, error) {
	dec := msgpack.NewDecoder(bytes.NewReader(data))
	n, err := dec.DecodeMapLen()
	if err != nil {
		return nil, decodeErr(nil, err)
	}
	t := &Tag{}
	for i := 0; i < n; i++ {
		key, err := dec.DecodeString()
		if err != nil {
			return nil, decodeErr(nil, err)
		}
		if err := decodeField(dec, t, key); err != nil {
			return nil, decodeErr([]string{key}, err)
		}
	}
	return t, nil
}

func decodeField(dec *msgpack.Decoder, t *Tag, key string) error {
	var err error
	switch key {
	case fieldTitle:
		t.Title, err = dec.DecodeString()
	case fieldArtist:
		t.Artist, err = dec.DecodeString()
	case fieldAlbum:
		t.Album, err = dec.DecodeString()
	case fieldGenre:
		t.Genre, err = dec.DecodeString()
	case fieldComment:
		t.Comment, err = dec.DecodeString()
	case fieldAlbumArtist:
		t.AlbumArtist, err = dec.DecodeString()
	case fieldComposer:
		t.Composer, err = dec.DecodeString()
	case fieldYear:
		t.Year, err = dec.DecodeUint32()
	case fieldTrack:
		t.Track, err = dec.DecodeUint32()
	case fieldDisc:
		t.Disc, err = dec.DecodeUint32()
	case fieldBPM:
		t.BPM, err = dec.DecodeUint32()
	case fieldBitrate:
		t.Bitrate, err = dec.DecodeUint32()
	case fieldSampleRate:
		t.SampleRate, err = dec.DecodeUint32()
	case fieldChannels:
		t.Channels, err = dec.DecodeUint32()
	case fieldLength:
		t.Length, err = dec.DecodeUint32()
	case fieldLengthMs:
		t.LengthMs, err = dec.DecodeUint32()
	case fieldBitsPerSample:
		t.BitsPerSample, err = dec.DecodeUint32()
	case fieldCodec:
		t.Codec, err = dec.DecodeString()
	case fieldContainerFormat:
		t.ContainerFormat, err = dec.DecodeString()
	case fieldIsLossless:
		t.IsLossless, err = dec.DecodeBool()
	case fieldPictures:
		t.Pictures, err = decodePictures(dec)
	case fieldRatings:
		t.Ratings, err = decodeRatings(dec)
	default:
		err = dec.Skip()
	}
	return err
}

func decodePictures(dec *msgpack.Decoder) ([]Picture, error) {
	n, err := dec.DecodeArrayLen()
	if err != nil {
		return nil, err
	}
	pics := make([]Picture, 0, n)
	for i := 0; i < n; i++ {
		var p Picture
		fields, err := dec.DecodeMapLen()
		if err != nil {
			return nil, err
		}
		for j := 0; j < fields; j++ {
			key, err := dec.DecodeString()
			if err != nil {
				return nil, err
			}
			switch key {
			case fieldMIMEType:
				p.MIMEType, err = dec.DecodeString()
			case fieldData:
				p.Data, err = dec.DecodeBytes()
			case fieldDescription:
				p.Description, err = dec.DecodeString()
			case fieldType:
				p.Type, err = dec.DecodeUint32()
			default:
				err = dec.Skip()
			}
			if err != nil {
				return nil, err
			}
		}
		pics = append(pics, p)
	}
	return pics, nil
}

func decodeRatings(dec *msgpack.Decoder) ([]Rating, error) {
	n, err := dec.DecodeArrayLen()
	if err != nil {
		return nil, err
	}
	ratings := make([]Rating, 0, n)
	for i := 0; i < n; i++ {
		var r Rating
		fields, err := dec.DecodeMapLen()
		if err != nil {
			return nil, err
		}
		for j := 0; j < fields; j++ {
			key, err := dec.DecodeString()
			if err != nil {
				return nil, err
			}
			switch key {
			case fieldRating:
				r.Rating, err = dec.DecodeFloat64()
			case fieldEmail:
				r.Email, err = dec.DecodeString()
			case fieldCounter:
				r.Counter, err = dec.DecodeUint32()
			default:
				err = dec.Skip()
			}
			if err != nil {
				return nil, err
			}
		}
		ratings = append(ratings, r)
	}
	return ratings, nil
}

func encodeErr(err error) error {
	return errors.Wrap(errors.PhaseCodec, errors.KindInvalidData, err, "encode tag record")
}

func decodeErr(path []string, err error) error {
	e := errors.Wrap(errors.PhaseCodec, errors.KindInvalidData, err, "decode tag record")
	e.Path = path
	return e
}
