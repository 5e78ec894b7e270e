package spotify

// Page is one page of a Spotify paging object. Items are pointers so that a
// JSON null inside the array survives decoding as nil.
type Page[T any] struct {
	Href   string `json:"href"`
	Items  []*T   `json:"items"`
	Limit  int    `json:"limit"`
	Next   string `json:"next"`
	Offset int    `json:"offset"`
	Total  int    `json:"total"`
}

type User struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
}

type Followers struct {
	Total int `json:"total"`
}

type TracksRef struct {
	Href  string `json:"href"`
	Total int    `json:"total"`
}

// Playlist covers both the simplified search result and the full object.
// Followers is only present on the full object.
type Playlist struct {
	ID            string     `json:"id"`
	Name          string     `json:"name"`
	Description   string     `json:"description"`
	Owner         *User      `json:"owner"`
	Followers     *Followers `json:"followers"`
	Tracks        *TracksRef `json:"tracks"`
	SnapshotID    string     `json:"snapshot_id"`
	Public        *bool      `json:"public"`
	Collaborative bool       `json:"collaborative"`
}

type PlaylistItem struct {
	AddedAt string `json:"added_at"`
	AddedBy *User  `json:"added_by"`
	IsLocal bool   `json:"is_local"`
	Track   *Track `json:"track"`
}

type SimpleArtist struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type SimpleAlbum struct {
	ID                   string         `json:"id"`
	Name                 string         `json:"name"`
	AlbumType            string         `json:"album_type"`
	ReleaseDate          string         `json:"release_date"`
	ReleaseDatePrecision string         `json:"release_date_precision"`
	TotalTracks          int            `json:"total_tracks"`
	Artists              []SimpleArtist `json:"artists"`
}

type Track struct {
	ID          string            `json:"id"`
	Name        string            `json:"name"`
	Type        string            `json:"type"`
	Artists     []SimpleArtist    `json:"artists"`
	Album       *SimpleAlbum      `json:"album"`
	DurationMS  int               `json:"duration_ms"`
	Popularity  int               `json:"popularity"`
	Explicit    bool              `json:"explicit"`
	IsPlayable  *bool             `json:"is_playable"`
	IsLocal     bool              `json:"is_local"`
	ExternalIDs map[string]string `json:"external_ids"`
}

type Artist struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	Genres     []string  `json:"genres"`
	Popularity int       `json:"popularity"`
	Followers  Followers `json:"followers"`
}

type Album struct {
	SimpleAlbum
	Label      string   `json:"label"`
	Genres     []string `json:"genres"`
	Popularity int      `json:"popularity"`
}

type artistsResponse struct {
	Artists []*Artist `json:"artists"`
}

type albumsResponse struct {
	Albums []*Album `json:"albums"`
}

type errorResponse struct {
	Error struct {
		Status  int    `json:"status"`
		Message string `json:"message"`
	} `json:"error"`
}
