// Package normalize turns raw API objects into the rows the loader stores and
// reports whatever is missing or odd about them.
package normalize

import (
	"fmt"
	"time"

	"github.com/ademuri/workout-music-tools/internal/quality"
	"github.com/ademuri/workout-music-tools/internal/spotify"
)

// Duration bounds outside which a track is flagged as suspicious.
const (
	MinDuration = 30 * time.Second
	MaxDuration = 10 * time.Minute
)

// Location says where a raw track was found.
type Location struct {
	PlaylistID string
	Position   int
}

func (l Location) String() string {
	return fmt.Sprintf("%s#%d", l.PlaylistID, l.Position)
}

// Track is a cleaned track master row. Empty strings and a nil ReleaseDate
// are stored as NULL.
type Track struct {
	ID              string
	Name            string
	NameClean       string
	ArtistID        string
	ArtistName      string
	ArtistNameClean string
	AlbumID         string
	AlbumName       string
	ReleaseDate     *ReleaseDate
	Duration        time.Duration
	Popularity      int
	Explicit        bool
	IsPlayable      *bool
	IsLocal         bool
	ISRC            string
}

type Artist struct {
	ID        string
	Name      string
	NameClean string
}

type Album struct {
	ID          string
	Name        string
	NameClean   string
	AlbumType   string
	ReleaseDate *ReleaseDate
	TotalTracks int
}

// Result is everything one playlist entry contributes to the masters.
type Result struct {
	Track   Track
	Artists []Artist
	Album   *Album
}

// NormalizeTrack cleans raw. A nil Result means the record had no id and must
// not be loaded; the returned issues say why.
func NormalizeTrack(raw *spotify.Track, loc Location) (*Result, []quality.Issue) {
	if raw == nil || raw.ID == "" {
		name := ""
		if raw != nil {
			name = raw.Name
		}
		return nil, []quality.Issue{{
			RecordType:  quality.RecordTrack,
			RecordID:    loc.String(),
			IssueType:   quality.MissingID,
			Description: fmt.Sprintf("track %q at position %d of playlist %s has no id", name, loc.Position, loc.PlaylistID),
			Severity:    quality.SeverityHigh,
		}}
	}

	var issues []quality.Issue
	report := func(typ quality.IssueType, sev quality.Severity, format string, args ...any) {
		issues = append(issues, quality.Issue{
			RecordType:  quality.RecordTrack,
			RecordID:    raw.ID,
			IssueType:   typ,
			Description: fmt.Sprintf(format, args...),
			Severity:    sev,
		})
	}
	missing := func(field string) {
		report(quality.MissingField, quality.SeverityMedium, "track %s has no %s", raw.ID, field)
	}

	res := &Result{Track: Track{
		ID:         raw.ID,
		Name:       raw.Name,
		NameClean:  CleanName(raw.Name),
		Duration:   time.Duration(raw.DurationMS) * time.Millisecond,
		Popularity: raw.Popularity,
		Explicit:   raw.Explicit,
		IsPlayable: raw.IsPlayable,
		IsLocal:    raw.IsLocal,
		ISRC:       raw.ExternalIDs["isrc"],
	}}
	t := &res.Track

	if raw.Name == "" {
		missing("name")
	}

	for _, a := range raw.Artists {
		if a.ID == "" {
			continue
		}
		res.Artists = append(res.Artists, Artist{ID: a.ID, Name: a.Name, NameClean: CleanName(a.Name)})
	}
	if len(res.Artists) == 0 {
		missing("artist")
	} else {
		primary := res.Artists[0]
		t.ArtistID, t.ArtistName, t.ArtistNameClean = primary.ID, primary.Name, primary.NameClean
	}

	if raw.Album == nil || raw.Album.ID == "" {
		missing("album")
		missing("release date")
	} else {
		album := &Album{
			ID:          raw.Album.ID,
			Name:        raw.Album.Name,
			NameClean:   CleanName(raw.Album.Name),
			AlbumType:   raw.Album.AlbumType,
			TotalTracks: raw.Album.TotalTracks,
		}
		t.AlbumID, t.AlbumName = album.ID, album.Name

		switch date, err := ParseReleaseDate(raw.Album.ReleaseDate); {
		case raw.Album.ReleaseDate == "":
			missing("release date")
		case err != nil:
			report(quality.MalformedDate, quality.SeverityMedium, "track %s: %v", raw.ID, err)
		default:
			if p, ok := ParsePrecision(raw.Album.ReleaseDatePrecision); ok && p != date.Precision {
				report(quality.MalformedDate, quality.SeverityMedium,
					"track %s: release date %q does not match precision %q", raw.ID, raw.Album.ReleaseDate, raw.Album.ReleaseDatePrecision)
			}
			album.ReleaseDate = &date
			t.ReleaseDate = &date
		}
		res.Album = album
	}

	if t.ISRC == "" {
		missing("ISRC")
	}

	if t.Duration < MinDuration || t.Duration > MaxDuration {
		report(quality.SuspiciousDuration, quality.SeverityLow,
			"track %s lasts %v, outside %v..%v", raw.ID, t.Duration, MinDuration, MaxDuration)
	}

	return res, issues
}
