package audiodecoder

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/dhowden/tag"
	goflac "github.com/go-flac/go-flac"
	"github.com/go-flac/flacpicture"
	"github.com/go-flac/flacvorbis"
)

// Tags carries descriptive metadata read alongside a probe. It is separate
// from frame decoding: a queue entry's display fields come from Tags, its
// playback format from Prober.Probe.
type Tags struct {
	Title, Artist, AlbumArtist, Album, Genre string
	Year, Track                              int
	CoverArt                                 []byte
	CoverMIME                                string
}

// ReadTags extracts descriptive metadata from location. FLAC files are read
// through their own native metadata blocks (go-flac); every other supported
// container goes through dhowden/tag's format-agnostic reader.
func ReadTags(location string) (Tags, error) {
	if strings.EqualFold(filepath.Ext(location), extFLAC) {
		return readFlacTags(location)
	}

	f, err := os.Open(location)
	if err != nil {
		return Tags{}, err
	}
	defer f.Close()

	m, err := tag.ReadFrom(f)
	if err != nil {
		return Tags{}, err
	}

	track, _ := m.Track()
	albumArtist := m.AlbumArtist()
	if albumArtist == "" {
		albumArtist = m.Artist()
	}

	t := Tags{
		Title:       m.Title(),
		Artist:      m.Artist(),
		AlbumArtist: albumArtist,
		Album:       m.Album(),
		Genre:       m.Genre(),
		Year:        m.Year(),
		Track:       track,
	}
	if pic := m.Picture(); pic != nil {
		t.CoverArt = pic.Data
		t.CoverMIME = pic.MIMEType
	}
	return t, nil
}

// readFlacTags reads VORBIS_COMMENT and PICTURE metadata blocks directly
// from a FLAC file's own container, rather than through dhowden/tag.
func readFlacTags(location string) (Tags, error) {
	file, err := goflac.ParseFile(location)
	if err != nil {
		return Tags{}, err
	}

	var t Tags
	for _, block := range file.Meta {
		switch block.Type {
		case goflac.VorbisComment:
			comment, err := flacvorbis.ParseFromMetaDataBlock(*block)
			if err != nil {
				continue
			}
			if v, err := comment.Get(flacvorbis.FIELD_TITLE); err == nil && len(v) > 0 {
				t.Title = v[0]
			}
			if v, err := comment.Get(flacvorbis.FIELD_ARTIST); err == nil && len(v) > 0 {
				t.Artist = v[0]
			}
			if v, err := comment.Get(flacvorbis.FIELD_ALBUM); err == nil && len(v) > 0 {
				t.Album = v[0]
			}
			if v, err := comment.Get(flacvorbis.FIELD_GENRE); err == nil && len(v) > 0 {
				t.Genre = v[0]
			}
		case goflac.Picture:
			pic, err := flacpicture.ParseFromMetaDataBlock(*block)
			if err != nil {
				continue
			}
			t.CoverArt = pic.ImageData
			t.CoverMIME = pic.MIME
		}
	}
	return t, nil
}

// IsMusicFile reports whether location's extension is one this package
// (and its Tags reader) supports.
func IsMusicFile(location string) bool {
	return SupportsExtension(location)
}
